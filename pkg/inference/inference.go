// Package inference provides a client for OpenAI-compatible chat
// completion APIs.
//
// The Provider interface abstracts the backend so callers can swap the
// hosted API for a local server or a mock without changing code:
//
//	llm, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-3.5-turbo"),
//	)
//	defer llm.Close()
//
//	resp, _ := llm.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage("You are concise."),
//	        inference.NewUserMessage("Hello"),
//	    },
//	})
package inference

import "context"

// Provider is the chat completion interface.
type Provider interface {
	// Chat generates a chat completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	// Model overrides the configured default model when set.
	Model string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// MaxTokens caps the completion length. 0 uses the config default.
	MaxTokens int

	// Temperature controls randomness. 0 uses the config default.
	Temperature float64

	// Stop sequences end the completion early.
	Stop []string
}

// ChatResponse is a chat completion result.
type ChatResponse struct {
	// Message is the assistant's reply.
	Message Message

	// FinishReason reports why generation stopped.
	FinishReason string

	// Usage reports token consumption.
	Usage Usage

	// Model is the model that produced the response.
	Model string

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}

// Usage reports token consumption for a request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
