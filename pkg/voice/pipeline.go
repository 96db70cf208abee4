package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/havenmind/haven/pkg/chat"
	"github.com/havenmind/haven/pkg/transcribe"
)

// Responder generates and persists the assistant's reply for a user
// message.
type Responder interface {
	Reply(ctx context.Context, userID int64, message string) (string, error)
}

// Synthesizer turns reply text into a published audio artifact.
type Synthesizer interface {
	Speak(ctx context.Context, text string) (string, error)
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l.With("component", "voice.pipeline") }
}

// Pipeline orchestrates one voice-message invocation. Steps run
// strictly in sequence; each invocation is an independent unit of work
// and shares nothing with concurrent invocations except the store.
type Pipeline struct {
	ingest    *Ingestor
	stt       transcribe.Provider
	store     chat.TurnStore
	responder Responder
	speaker   Synthesizer
	logger    *slog.Logger
}

// NewPipeline wires the pipeline's collaborators together.
func NewPipeline(ingest *Ingestor, stt transcribe.Provider, store chat.TurnStore, responder Responder, speaker Synthesizer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		ingest:    ingest,
		stt:       stt,
		store:     store,
		responder: responder,
		speaker:   speaker,
		logger:    slog.Default().With("component", "voice.pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one end-to-end invocation for a single upload.
//
// On failure the returned error is a *Fault carrying the failure kind.
// Synthesis failure alone does not fail the invocation: the result is
// returned with an empty AudioURL and an explanatory note, because the
// transcript and reply already exist and the UI depends on always
// having text.
func (p *Pipeline) Process(ctx context.Context, userID int64, audio []byte, contentType string) (*Result, error) {
	logger := p.logger.With("user_id", userID)
	state := StateReceived

	buf, err := p.ingest.Ingest(audio, contentType)
	if err != nil {
		logger.Warn("ingest rejected upload", "error", err)
		return nil, err
	}
	state = StateIngested

	// The buffer is released on every exit path, no exception.
	defer func() {
		if err := buf.Remove(); err != nil {
			logger.Error("failed to remove audio buffer", "path", buf.Path(), "error", err)
		}
	}()

	f, err := os.Open(buf.Path())
	if err != nil {
		return nil, NewFault(FaultTranscriptionFailed, state, fmt.Errorf("open buffer: %w", err))
	}
	transcript, err := p.stt.Transcribe(ctx, f, filepath.Base(buf.Path()))
	f.Close()
	if err != nil {
		logger.Error("transcription failed", "state", state, "error", err)
		return nil, NewFault(FaultTranscriptionFailed, state, err)
	}
	state = StateTranscribed
	logger.Debug("transcribed upload", "chars", len(transcript.Text))

	userTurnID, err := p.store.AppendTurn(ctx, userID, chat.DirectionUser, transcript.Text, "")
	if err != nil {
		logger.Error("failed to persist user turn", "state", state, "error", err)
		return nil, NewFault(FaultPersistenceFailed, state, err)
	}
	state = StateUserTurnSaved

	// The responder persists the assistant turn itself on success.
	reply, err := p.responder.Reply(ctx, userID, transcript.Text)
	if err != nil {
		kind := FaultGenerationFailed
		if errors.Is(err, chat.ErrSaveTurn) {
			state = StateReplied
			kind = FaultPersistenceFailed
		}
		logger.Error("reply generation failed", "state", state, "error", err)
		return nil, NewFault(kind, state, err)
	}
	state = StateAssistantTurnSaved

	result := &Result{
		Transcript: transcript.Text,
		Reply:      reply,
		UserTurnID: userTurnID,
	}

	audioURL, err := p.speaker.Speak(ctx, reply)
	if err != nil {
		// Partial success: the transcript and reply are already
		// produced and persisted, so a flaky synthesis step must not
		// discard them.
		logger.Warn("synthesis exhausted, returning partial result", "state", state, "error", err)
		result.Note = "Audio response unavailable"
		return result, nil
	}
	state = StateSynthesized

	result.AudioURL = audioURL
	state = StateDone
	logger.Info("voice message processed", "state", state, "audio_url", audioURL)

	return result, nil
}
