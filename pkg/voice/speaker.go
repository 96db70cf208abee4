package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/havenmind/haven/pkg/tts"
)

// DefaultSpeakAttempts bounds the synthesis retry loop. Synthesis
// failures are frequently transient upstream hiccups, so a few
// stateless attempts are tolerated before declaring failure.
const DefaultSpeakAttempts = 3

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithAttempts sets the bounded retry count.
func WithAttempts(n int) SpeakerOption {
	return func(s *Speaker) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithRetryDelay sets the delay between attempts.
func WithRetryDelay(d time.Duration) SpeakerOption {
	return func(s *Speaker) { s.retryDelay = d }
}

// WithSpeakerLogger sets the structured logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = l.With("component", "voice.speaker") }
}

// Speaker synthesizes reply text to speech and persists the artifact
// under a public static path.
type Speaker struct {
	tts        tts.Provider
	dir        string
	prefix     string
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewSpeaker creates a Speaker writing artifacts under dir and
// publishing them below the given URL prefix.
func NewSpeaker(provider tts.Provider, dir, prefix string, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		tts:        provider,
		dir:        dir,
		prefix:     strings.TrimSuffix(prefix, "/"),
		attempts:   DefaultSpeakAttempts,
		retryDelay: 200 * time.Millisecond,
		logger:     slog.Default().With("component", "voice.speaker"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak synthesizes text and writes the audio artifact to disk,
// returning its public URL path. The artifact filename is
// collision-resistant and never reused or overwritten.
//
// The upstream call is retried a small bounded number of times; a
// written-but-empty artifact is deleted and counts as a failure.
func (s *Speaker) Speak(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("voice: nothing to synthesize: %w", tts.ErrEmptyText)
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		url, err := s.speakOnce(ctx, text)
		if err == nil {
			return url, nil
		}
		lastErr = err
		s.logger.Warn("synthesis attempt failed",
			"attempt", attempt,
			"attempts", s.attempts,
			"error", err,
		)
	}

	return "", fmt.Errorf("voice: synthesis failed after %d attempts: %w", s.attempts, lastErr)
}

func (s *Speaker) speakOnce(ctx context.Context, text string) (string, error) {
	result, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	name := fmt.Sprintf("ai_response_%s_%s.mp3",
		time.Now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, result.Audio, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		return "", tts.ErrEmptyAudio
	}

	s.logger.Info("audio response generated",
		"file", name,
		"bytes", info.Size(),
		"latency_ms", result.LatencyMs,
	)

	return s.prefix + "/" + name, nil
}
