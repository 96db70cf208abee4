package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/havenmind/haven/pkg/tts"
)

func TestOpenAISynthesize(t *testing.T) {
	ctx := context.Background()

	t.Run("returns audio bytes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/audio/speech" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["voice"] != "alloy" {
				t.Errorf("expected voice alloy, got %v", payload["voice"])
			}
			if payload["model"] != "tts-1" {
				t.Errorf("expected model tts-1, got %v", payload["model"])
			}
			w.Write([]byte("mp3-bytes-here"))
		}))
		defer srv.Close()

		provider, err := tts.NewOpenAI(
			tts.WithAPIKey("test-key"),
			tts.WithBaseURL(srv.URL),
			tts.WithVoice(tts.VoiceAlloy),
		)
		if err != nil {
			t.Fatalf("new provider: %v", err)
		}
		defer provider.Close()

		result, err := provider.Synthesize(ctx, "Hello there")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(result.Audio) != "mp3-bytes-here" {
			t.Errorf("unexpected audio %q", result.Audio)
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
	})

	t.Run("empty text rejected without a call", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		provider, _ := tts.NewOpenAI(tts.WithAPIKey("test-key"), tts.WithBaseURL(srv.URL))
		defer provider.Close()

		if _, err := provider.Synthesize(ctx, "   "); !errors.Is(err, tts.ErrEmptyText) {
			t.Fatalf("expected ErrEmptyText, got %v", err)
		}
		if called {
			t.Error("upstream should not be called for empty text")
		}
	})

	t.Run("zero-length audio is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		provider, _ := tts.NewOpenAI(tts.WithAPIKey("test-key"), tts.WithBaseURL(srv.URL))
		defer provider.Close()

		if _, err := provider.Synthesize(ctx, "hello"); !errors.Is(err, tts.ErrEmptyAudio) {
			t.Fatalf("expected ErrEmptyAudio, got %v", err)
		}
	})

	t.Run("maps API error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer srv.Close()

		provider, _ := tts.NewOpenAI(tts.WithAPIKey("test-key"), tts.WithBaseURL(srv.URL))
		defer provider.Close()

		_, err := provider.Synthesize(ctx, "hello")
		var apiErr *tts.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsRetryable() {
			t.Error("429 should be retryable")
		}
	})
}
