package web

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/pkg/chat"
	"github.com/havenmind/haven/pkg/hub"
)

// Realtime channel events.
const (
	eventSendMessage = "send_message"
	eventMessage     = "message"
	eventTyping      = "typing"
	eventError       = "error"
)

type wsInbound struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

type wsOutbound struct {
	Event     string    `json:"event"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content,omitempty"`
	TurnID    int64     `json:"turn_id,omitempty"`
	Status    bool      `json:"status,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// handleChatWS serves the realtime typed-chat channel. Each
// send_message is echoed back as a persisted user turn, followed by a
// typing indicator and the assistant's reply.
func (s *Server) handleChatWS(conn *websocket.Conn) {
	claims, ok := conn.Locals(claimsKey).(*auth.Claims)
	if !ok {
		conn.Close()
		return
	}
	logger := s.logger.With("channel", "chat_ws", "user_id", claims.UserID)
	defer conn.Close()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Event != eventSendMessage {
			conn.WriteJSON(wsOutbound{Event: eventError, Content: "Unknown event."})
			continue
		}
		if in.Message == "" {
			conn.WriteJSON(wsOutbound{Event: eventError, Content: "Message text is required."})
			continue
		}

		ctx := context.Background()

		turnID, err := s.store.AppendTurn(ctx, claims.UserID, chat.DirectionUser, in.Message, "")
		if err != nil {
			logger.Error("failed to persist user turn", "error", err)
			conn.WriteJSON(wsOutbound{Event: eventError, Content: "Could not save your message. Please try again."})
			continue
		}
		s.broadcastTurn(turnID, claims.UserID, chat.DirectionUser, in.Message, "")

		conn.WriteJSON(wsOutbound{
			Event:     eventMessage,
			Role:      chat.DirectionUser,
			Content:   in.Message,
			TurnID:    turnID,
			Timestamp: time.Now().UTC(),
		})
		conn.WriteJSON(wsOutbound{Event: eventTyping, Status: true})

		reply, err := s.chat.Reply(ctx, claims.UserID, in.Message)
		fallback := false
		if err != nil {
			// The user always gets text back; the fallback is a
			// boundary concern and is never persisted as a turn.
			logger.Error("reply generation failed", "error", err)
			reply = chat.FallbackReply
			fallback = true
		} else {
			s.broadcastTurn(0, claims.UserID, chat.DirectionAssistant, reply, "")
		}

		conn.WriteJSON(wsOutbound{Event: eventTyping, Status: false})
		conn.WriteJSON(wsOutbound{
			Event:     eventMessage,
			Role:      chat.DirectionAssistant,
			Content:   reply,
			Fallback:  fallback,
			Timestamp: time.Now().UTC(),
		})
	}
}

// handleMonitorWS attaches a supervising therapist or admin to the
// turn broadcast.
func (s *Server) handleMonitorWS(conn *websocket.Conn) {
	hub.NewClient(s.monitor, conn).Run()
}

// broadcastTurn publishes a persisted turn to the supervision hub.
func (s *Server) broadcastTurn(turnID, userID int64, role, content, voiceURL string) {
	event := hub.NewTurnEvent(turnID, userID, "", role, content, false)
	if voiceURL != "" {
		event.VoiceURL = voiceURL
	}
	if err := s.monitor.BroadcastJSON(event); err != nil {
		s.logger.Error("turn broadcast failed", "error", err)
	}
}
