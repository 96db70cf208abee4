// Package chat generates assistant replies for a conversation and
// persists them as turns belonging to the requesting user.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/havenmind/haven/pkg/inference"
)

// SystemPrompt is the fixed instruction applied to every completion.
// It constrains tone and compliance posture for the assistant.
const SystemPrompt = "You are a helpful therapist assistant. Provide supportive and " +
	"professional responses while maintaining HIPAA compliance. Do not store or " +
	"repeat sensitive personal information."

// FallbackReply is the user-visible message boundaries may show when
// generation fails. The Responder itself never returns it: failures
// surface as errors and the caller decides what the user sees.
const FallbackReply = "I apologize, but I'm unable to process your request at the moment. " +
	"Please try again later."

// Turn author directions.
const (
	DirectionUser      = "user"
	DirectionAssistant = "assistant"
)

// Sentinel errors.
var (
	// ErrEmptyReply is returned when the model produces no usable text.
	ErrEmptyReply = errors.New("chat: empty reply from model")

	// ErrSaveTurn is returned when the reply was generated but could
	// not be persisted.
	ErrSaveTurn = errors.New("chat: save assistant turn")
)

// TurnStore persists conversation turns. Appends are transactional:
// a turn is either fully committed or not created at all.
type TurnStore interface {
	AppendTurn(ctx context.Context, userID int64, direction, content, voiceURL string) (int64, error)
}

// Config holds Responder settings.
type Config struct {
	// SystemPrompt overrides the default system instruction.
	SystemPrompt string

	// MaxTokens caps reply length.
	MaxTokens int

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Option is a functional option for configuring the Responder.
type Option func(*Config)

// WithSystemPrompt overrides the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Responder generates assistant replies and stores them under the
// requesting user's record.
type Responder struct {
	llm    inference.Provider
	store  TurnStore
	config *Config
	logger *slog.Logger
}

// NewResponder creates a Responder backed by the given model provider
// and turn store.
func NewResponder(llm inference.Provider, store TurnStore, opts ...Option) *Responder {
	cfg := &Config{
		SystemPrompt: SystemPrompt,
		MaxTokens:    150,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Responder{
		llm:    llm,
		store:  store,
		config: cfg,
		logger: cfg.Logger.With("component", "chat.responder"),
	}
}

// Reply generates a reply to message and persists it as an assistant
// turn tied to userID. The assistant turn is stored under the
// requesting user's record so the whole conversation is retrievable
// by user id.
//
// On upstream failure or empty output the error wraps ErrEmptyReply or
// the provider error; no turn is created and no fallback text is
// fabricated here.
func (r *Responder) Reply(ctx context.Context, userID int64, message string) (string, error) {
	resp, err := r.llm.Chat(ctx, &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage(r.config.SystemPrompt),
			inference.NewUserMessage(message),
		},
		MaxTokens: r.config.MaxTokens,
	})
	if err != nil {
		r.logger.Error("chat completion failed", "user_id", userID, "error", err)
		return "", fmt.Errorf("chat: generate reply: %w", err)
	}

	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		r.logger.Error("chat completion returned empty text", "user_id", userID)
		return "", ErrEmptyReply
	}

	if _, err := r.store.AppendTurn(ctx, userID, DirectionAssistant, reply, ""); err != nil {
		r.logger.Error("failed to persist assistant turn", "user_id", userID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrSaveTurn, err)
	}

	r.logger.Debug("assistant reply stored",
		"user_id", userID,
		"chars", len(reply),
		"latency_ms", resp.LatencyMs,
	)

	return reply, nil
}
