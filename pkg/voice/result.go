package voice

import (
	"errors"
	"fmt"
)

// State identifies a pipeline stage. States advance strictly in order;
// Failed is terminal and reachable from any state.
type State string

const (
	StateReceived           State = "received"
	StateIngested           State = "ingested"
	StateTranscribed        State = "transcribed"
	StateUserTurnSaved      State = "user_turn_saved"
	StateReplied            State = "replied"
	StateAssistantTurnSaved State = "assistant_turn_saved"
	StateSynthesized        State = "synthesized"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// FaultKind classifies a pipeline failure.
type FaultKind string

const (
	// Caller-input faults: reported immediately, never retried.
	FaultInvalidFormat   FaultKind = "invalid_format"
	FaultEmptyPayload    FaultKind = "empty_payload"
	FaultPayloadTooSmall FaultKind = "payload_too_small"

	// Upstream faults.
	FaultTranscriptionFailed FaultKind = "transcription_failed"
	FaultGenerationFailed    FaultKind = "generation_failed"
	FaultSynthesisFailed     FaultKind = "synthesis_failed"

	// Internal faults: logged with detail, surfaced generically.
	FaultPersistenceFailed FaultKind = "persistence_failed"
)

// CallerFault reports whether the kind is a caller-input fault
// (invalid upload) rather than an upstream or internal one.
func (k FaultKind) CallerFault() bool {
	switch k {
	case FaultInvalidFormat, FaultEmptyPayload, FaultPayloadTooSmall:
		return true
	}
	return false
}

// Fault is a classified pipeline error.
type Fault struct {
	// Kind classifies the failure.
	Kind FaultKind

	// State is the pipeline state in which the failure occurred.
	State State

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("voice: %s at %s: %v", f.Kind, f.State, f.Err)
	}
	return fmt.Sprintf("voice: %s at %s", f.Kind, f.State)
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault creates a classified pipeline error.
func NewFault(kind FaultKind, state State, err error) *Fault {
	return &Fault{Kind: kind, State: state, Err: err}
}

// KindOf extracts the fault kind from an error chain.
// Returns false when err is not a pipeline fault.
func KindOf(err error) (FaultKind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// Result is a completed pipeline invocation.
type Result struct {
	// Transcript is the user's transcribed speech.
	Transcript string

	// Reply is the assistant's text response.
	Reply string

	// AudioURL is the public path of the synthesized reply.
	// Empty on partial success (synthesis exhausted its retries).
	AudioURL string

	// Note explains a missing AudioURL.
	Note string

	// UserTurnID identifies the persisted user turn.
	UserTurnID int64
}

// Partial reports whether text results are available but audio
// synthesis did not succeed.
func (r *Result) Partial() bool {
	return r.AudioURL == ""
}
