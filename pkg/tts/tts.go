// Package tts provides a client for OpenAI-compatible text-to-speech
// APIs.
//
// All backends implement the Provider interface, enabling seamless
// switching without changing caller code:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceAlloy),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains MP3 audio bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the configured format.
	Audio []byte

	// Format describes the audio encoding (e.g. "mp3").
	Format string

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}

// Duration estimates playback length for MP3 output at the API's
// default bitrate. Zero when the format is unknown.
func (r *AudioResult) Duration() time.Duration {
	if r.Format != FormatMP3 {
		return 0
	}
	// OpenAI returns ~128kbps MP3
	const bytesPerSecond = 16000
	return time.Duration(len(r.Audio)/bytesPerSecond) * time.Second
}

// Output formats supported by the OpenAI speech API.
const (
	FormatMP3  = "mp3"
	FormatOpus = "opus"
	FormatAAC  = "aac"
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)
