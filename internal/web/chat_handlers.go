package web

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/havenmind/haven/pkg/voice"
)

// handleVoiceMessage accepts a multipart voice upload, runs it through
// the pipeline and returns the transcript, reply and audio URL.
//
// Synthesis failure is not an error here: the response carries the text
// with a null ai_audio_url so the client can still render the reply.
func (s *Server) handleVoiceMessage(c *fiber.Ctx) error {
	claims := claimsFrom(c)

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return badRequest(c, "No audio file provided.")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Could not read the uploaded audio.")
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return badRequest(c, "Could not read the uploaded audio.")
	}

	contentType := fileHeader.Header.Get(fiber.HeaderContentType)

	result, err := s.voice.Process(c.UserContext(), claims.UserID, data, contentType)
	if err != nil {
		return s.voiceFaultResponse(c, err)
	}

	s.broadcastTurn(result.UserTurnID, claims.UserID, "user", result.Transcript, "")
	s.broadcastTurn(0, claims.UserID, "assistant", result.Reply, result.AudioURL)

	resp := fiber.Map{
		"success":     true,
		"transcript":  result.Transcript,
		"ai_response": result.Reply,
	}
	if result.Partial() {
		resp["ai_audio_url"] = nil
		resp["note"] = result.Note
	} else {
		resp["ai_audio_url"] = result.AudioURL
	}
	return c.JSON(resp)
}

// voiceFaultResponse maps pipeline faults to HTTP responses. Caller
// faults become 400s with actionable text; everything else is a 500
// with a message that does not leak internals.
func (s *Server) voiceFaultResponse(c *fiber.Ctx, err error) error {
	kind, ok := voice.KindOf(err)
	if !ok {
		s.logger.Error("voice pipeline failed", "error", err)
		return serverError(c, "Something went wrong. Please try again.")
	}

	switch kind {
	case voice.FaultInvalidFormat:
		return badRequest(c, "Unsupported audio format. Please upload WebM audio.")
	case voice.FaultEmptyPayload:
		return badRequest(c, "Empty audio file. Please record again.")
	case voice.FaultPayloadTooSmall:
		return badRequest(c, "Audio file too small. Please record a longer message.")
	case voice.FaultTranscriptionFailed:
		s.logger.Error("transcription fault", "error", err)
		return serverError(c, "Failed to transcribe audio. Please try again.")
	case voice.FaultGenerationFailed:
		s.logger.Error("generation fault", "error", err)
		return serverError(c, "Failed to generate a response. Please try again.")
	default:
		s.logger.Error("voice pipeline fault", "kind", kind, "error", err)
		return serverError(c, "Something went wrong. Please try again.")
	}
}

// handleHistory returns the caller's conversation in order.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	limit := c.QueryInt("limit", 0)

	turns, err := s.store.ListTurns(c.UserContext(), claims.UserID, limit)
	if err != nil {
		s.logger.Error("history query failed", "user_id", claims.UserID, "error", err)
		return serverError(c, "Could not load your conversation history.")
	}

	items := make([]fiber.Map, 0, len(turns))
	for _, t := range turns {
		item := fiber.Map{
			"id":        t.ID,
			"role":      t.Direction,
			"content":   t.Content,
			"timestamp": t.CreatedAt,
		}
		if t.VoiceURL != "" {
			item["voice_url"] = t.VoiceURL
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"turns":   items,
	})
}
