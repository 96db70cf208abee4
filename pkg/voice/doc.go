// Package voice implements the voice-message pipeline: an uploaded
// audio capture is buffered, transcribed, answered by the assistant,
// and the reply is synthesized back to speech.
//
// One Process call runs the steps strictly in sequence:
//
//	Received -> Ingested -> Transcribed -> UserTurnSaved -> Replied
//	         -> AssistantTurnSaved -> Synthesized -> Done
//
// Any step can fail into a terminal Failed state carrying a FaultKind.
// Synthesis is the one soft spot: if the speaker exhausts its retries
// the pipeline still reports success with the transcript and reply but
// no audio URL, because the UI must always have text even when audio
// generation is flaky.
//
// The temporary audio buffer created during ingest is removed on every
// exit path, success or failure.
package voice
