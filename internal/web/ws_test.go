package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/store"
	"github.com/havenmind/haven/pkg/chat"
)

// listen serves the app on a loopback listener and returns its address.
func listen(t *testing.T, env *testEnv) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := env.server.App()
	go app.Listener(ln)
	t.Cleanup(func() { env.server.Shutdown() })

	return ln.Addr().String()
}

func dialWS(t *testing.T, addr, path, token string) *gws.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s%s?token=%s", addr, path, token)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) wsOutbound {
	t.Helper()
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestChatWSRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	addr := listen(t, env)
	u, token := env.seedUser(t, "realtime@example.com", testPassword, store.RoleClient)

	conn := dialWS(t, addr, "/ws/chat", token)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":   "send_message",
		"message": "I feel anxious today",
	}))

	echo := readEvent(t, conn)
	assert.Equal(t, eventMessage, echo.Event)
	assert.Equal(t, chat.DirectionUser, echo.Role)
	assert.Equal(t, "I feel anxious today", echo.Content)
	assert.NotZero(t, echo.TurnID)

	typingOn := readEvent(t, conn)
	assert.Equal(t, eventTyping, typingOn.Event)
	assert.True(t, typingOn.Status)

	typingOff := readEvent(t, conn)
	assert.Equal(t, eventTyping, typingOff.Event)
	assert.False(t, typingOff.Status)

	reply := readEvent(t, conn)
	assert.Equal(t, eventMessage, reply.Event)
	assert.Equal(t, chat.DirectionAssistant, reply.Role)
	assert.Equal(t, env.chat.reply, reply.Content)
	assert.False(t, reply.Fallback)

	// Both turns were persisted under the sender.
	turns, err := env.store.ListTurns(context.Background(), u.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.DirectionUser, turns[0].Direction)
	assert.Equal(t, chat.DirectionAssistant, turns[1].Direction)
}

func TestChatWSFallbackOnGenerationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.chat.err = errors.New("model unavailable")
	addr := listen(t, env)
	u, token := env.seedUser(t, "fallback@example.com", testPassword, store.RoleClient)

	conn := dialWS(t, addr, "/ws/chat", token)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":   "send_message",
		"message": "hello?",
	}))

	readEvent(t, conn) // user echo
	readEvent(t, conn) // typing on
	readEvent(t, conn) // typing off
	reply := readEvent(t, conn)

	assert.Equal(t, chat.FallbackReply, reply.Content)
	assert.True(t, reply.Fallback)

	// The fallback is never persisted; only the user turn exists.
	turns, err := env.store.ListTurns(context.Background(), u.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, chat.DirectionUser, turns[0].Direction)
}

func TestChatWSRejectsUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	addr := listen(t, env)
	_, token := env.seedUser(t, "proto@example.com", testPassword, store.RoleClient)

	conn := dialWS(t, addr, "/ws/chat", token)
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "unknown"}))

	out := readEvent(t, conn)
	assert.Equal(t, eventError, out.Event)
}

func TestWSRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	addr := listen(t, env)

	_, resp, err := gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws/chat", addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestMonitorWSReceivesTurnBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	addr := listen(t, env)

	client, clientToken := env.seedUser(t, "watched@example.com", testPassword, store.RoleClient)
	_, therapistToken := env.seedUser(t, "super@example.com", testPassword, store.RoleTherapist)
	_, plainToken := env.seedUser(t, "plain@example.com", testPassword, store.RoleClient)

	// Clients cannot supervise.
	_, resp, err := gws.DefaultDialer.Dial(
		fmt.Sprintf("ws://%s/ws/monitor?token=%s", addr, plainToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)

	monitor := dialWS(t, addr, "/ws/monitor", therapistToken)

	// Give the hub time to register the supervisor before broadcasting.
	require.Eventually(t, func() bool {
		return env.server.monitor.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	chatConn := dialWS(t, addr, "/ws/chat", clientToken)
	require.NoError(t, chatConn.WriteJSON(map[string]string{
		"event":   "send_message",
		"message": "checking in",
	}))

	var userEvent struct {
		Event   string `json:"event"`
		UserID  int64  `json:"user_id"`
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	require.NoError(t, monitor.ReadJSON(&userEvent))
	assert.Equal(t, "turn", userEvent.Event)
	assert.Equal(t, client.ID, userEvent.UserID)
	assert.Equal(t, chat.DirectionUser, userEvent.Role)
	assert.Equal(t, "checking in", userEvent.Content)

	var assistantEvent struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	require.NoError(t, monitor.ReadJSON(&assistantEvent))
	assert.Equal(t, chat.DirectionAssistant, assistantEvent.Role)
	assert.Equal(t, env.chat.reply, assistantEvent.Content)
}
