// Package transcribe provides a client for OpenAI-compatible
// speech-to-text APIs.
//
// The Provider interface abstracts the backend so callers can swap the
// hosted Whisper API for a local inference server or a mock:
//
//	stt, _ := transcribe.NewOpenAI(
//	    transcribe.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer stt.Close()
//
//	f, _ := os.Open("capture.webm")
//	result, _ := stt.Transcribe(ctx, f, "capture.webm")
//	// result.Text holds the transcript
//
// Transcription is not retried inside the client: a failed call is
// reported to the caller immediately.
package transcribe

import (
	"context"
	"io"
)

// Provider is the speech-to-text interface.
type Provider interface {
	// Transcribe converts audio to text. The filename hint tells the
	// upstream API which container format to expect.
	Transcribe(ctx context.Context, audio io.Reader, filename string) (*Result, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Result is a completed transcription.
type Result struct {
	// Text is the best-effort transcript.
	Text string

	// Language is the detected language, when the API reports one.
	Language string

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}
