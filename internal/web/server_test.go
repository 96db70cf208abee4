package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/internal/config"
	"github.com/havenmind/haven/internal/mail"
	"github.com/havenmind/haven/internal/store"
	"github.com/havenmind/haven/pkg/chat"
	"github.com/havenmind/haven/pkg/voice"
)

// fakeVoice is a scripted VoiceProcessor.
type fakeVoice struct {
	result      *voice.Result
	err         error
	lastUserID  int64
	lastCT      string
	lastPayload []byte
}

func (f *fakeVoice) Process(_ context.Context, userID int64, audio []byte, contentType string) (*voice.Result, error) {
	f.lastUserID = userID
	f.lastCT = contentType
	f.lastPayload = audio
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeChat persists the assistant turn like the real responder before
// returning the reply.
type fakeChat struct {
	st    *store.Store
	reply string
	err   error
}

func (f *fakeChat) Reply(ctx context.Context, userID int64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := f.st.AppendTurn(ctx, userID, chat.DirectionAssistant, f.reply, ""); err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrSaveTurn, err)
	}
	return f.reply, nil
}

type testEnv struct {
	server *Server
	store  *store.Store
	tokens *auth.Tokens
	voice  *fakeVoice
	chat   *fakeChat
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "haven.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Port:          "0",
		PublicBaseURL: "http://haven.test",
		MediaDir:      t.TempDir(),
		MediaPrefix:   "/voice_messages",
		JWTSecret:     "test-secret",
		TokenTTL:      time.Minute,
		LockoutLimit:  3,
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	fv := &fakeVoice{result: &voice.Result{
		Transcript: "I had a rough day",
		Reply:      "That sounds hard. Tell me more.",
		AudioURL:   "/voice_messages/ai_response_test.mp3",
		UserTurnID: 1,
	}}
	fc := &fakeChat{st: st, reply: "That sounds hard. Tell me more."}

	server := NewServer(cfg, st, tokens, fv, fc, mail.Disabled{})
	return &testEnv{server: server, store: st, tokens: tokens, voice: fv, chat: fc, cfg: cfg}
}

// seedUser creates a verified active user and returns it with a valid
// session token.
func (e *testEnv) seedUser(t *testing.T, email, password, role string) (*store.User, string) {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u, err := e.store.CreateUser(ctx, email, hash, role, "tok-"+email)
	require.NoError(t, err)
	u, err = e.store.VerifyUser(ctx, u.VerificationToken)
	require.NoError(t, err)

	token, err := e.tokens.Issue(u.ID, u.Role)
	require.NoError(t, err)
	return u, token
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return out
}

const testPassword = "Sup3rSecret!pass"

func TestRegisterVerifyLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	ctx := context.Background()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/register",
		map[string]string{"email": "new@example.com", "password": testPassword}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Unverified accounts cannot log in yet.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"email": "new@example.com", "password": testPassword}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	u, err := env.store.UserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, u.VerificationToken)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet,
		"/api/auth/verify?token="+u.VerificationToken, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"email": "new@example.com", "password": testPassword}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
}

func TestRegisterRoleSelection(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/register",
		map[string]string{"email": "t@example.com", "password": testPassword, "role": store.RoleTherapist}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	u, err := env.store.UserByEmail(context.Background(), "t@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleTherapist, u.Role)

	// Admin accounts cannot be self-provisioned.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/auth/register",
		map[string]string{"email": "a@example.com", "password": testPassword, "role": store.RoleAdmin}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	_, adminToken := env.seedUser(t, "admin@example.com", testPassword, store.RoleAdmin)
	target, _ := env.seedUser(t, "reset@example.com", testPassword, store.RoleClient)

	resp, err := app.Test(withToken(jsonRequest(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d", target.ID),
		map[string]string{"email": target.Email, "role": store.RoleClient, "password": "Fresh9!passphrase"}), adminToken), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got, err := env.store.UserByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(got.PasswordHash, "Fresh9!passphrase"))

	// Weak replacement passwords are rejected.
	resp, err = app.Test(withToken(jsonRequest(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d", target.ID),
		map[string]string{"email": target.Email, "role": store.RoleClient, "password": "weak"}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/register",
		map[string]string{"email": "weak@example.com", "password": "short"}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	env.seedUser(t, "dup@example.com", testPassword, store.RoleClient)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/register",
		map[string]string{"email": "dup@example.com", "password": testPassword}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	u, _ := env.seedUser(t, "lock@example.com", testPassword, store.RoleClient)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/login",
			map[string]string{"email": u.Email, "password": "Wrong!password99"}), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	// Even the correct password is rejected once locked.
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"email": u.Email, "password": testPassword}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	got, err := env.store.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	u, _ := env.seedUser(t, "inactive@example.com", testPassword, store.RoleClient)
	require.NoError(t, env.store.SetActive(context.Background(), u.ID, false))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"email": u.Email, "password": testPassword}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutRequiresAuthAndAudits(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	u, token := env.seedUser(t, "bye@example.com", testPassword, store.RoleClient)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/auth/logout", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(withToken(jsonRequest(http.MethodPost, "/api/auth/logout", nil), token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	entries, err := env.store.ListAudit(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "logout", entries[0].Action)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, u.ID, *entries[0].ActorID)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	_, clientToken := env.seedUser(t, "client@example.com", testPassword, store.RoleClient)

	resp, err := app.Test(withToken(httptest.NewRequest(http.MethodGet, "/api/admin/users", nil), clientToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	admin, adminToken := env.seedUser(t, "admin@example.com", testPassword, store.RoleAdmin)
	target, _ := env.seedUser(t, "target@example.com", testPassword, store.RoleClient)

	resp, err := app.Test(withToken(httptest.NewRequest(http.MethodGet, "/api/admin/users", nil), adminToken), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Len(t, body["users"], 2)

	// Deactivate another account.
	resp, err = app.Test(withToken(jsonRequest(http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/active", target.ID),
		map[string]bool{"active": false}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Self-deactivation is refused.
	resp, err = app.Test(withToken(jsonRequest(http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/active", admin.ID),
		map[string]bool{"active": false}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Promote the target to therapist.
	resp, err = app.Test(withToken(jsonRequest(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d", target.ID),
		map[string]string{"email": target.Email, "role": store.RoleTherapist}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Admins cannot drop their own admin role.
	resp, err = app.Test(withToken(jsonRequest(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d", admin.ID),
		map[string]string{"email": admin.Email, "role": store.RoleClient}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Self-deletion is refused; deleting the target works.
	resp, err = app.Test(withToken(httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/admin/users/%d", admin.ID), nil), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(withToken(httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/admin/users/%d", target.ID), nil), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err = env.store.UserByID(context.Background(), target.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Every admin action above left an audit entry.
	entries, err := env.store.ListAudit(context.Background(), 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "admin_set_active")
	assert.Contains(t, actions, "admin_update_user")
	assert.Contains(t, actions, "admin_delete_user")
}

func TestModerateTurnAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()
	ctx := context.Background()

	client, _ := env.seedUser(t, "client@example.com", testPassword, store.RoleClient)
	_, therapistToken := env.seedUser(t, "therapist@example.com", testPassword, store.RoleTherapist)
	_, adminToken := env.seedUser(t, "mod-admin@example.com", testPassword, store.RoleAdmin)

	turnID, err := env.store.AppendTurn(ctx, client.ID, chat.DirectionUser, "concerning", "")
	require.NoError(t, err)

	// Therapists supervise but cannot mutate moderation fields.
	resp, err := app.Test(withToken(jsonRequest(http.MethodPost,
		fmt.Sprintf("/api/admin/turns/%d/moderate", turnID),
		map[string]any{"flagged": true}), therapistToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(withToken(jsonRequest(http.MethodPost,
		fmt.Sprintf("/api/admin/turns/%d/moderate", turnID),
		map[string]any{"flagged": true, "notes": "check in", "sentiment": "negative"}), adminToken), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	turn, err := env.store.TurnByID(ctx, turnID)
	require.NoError(t, err)
	assert.True(t, turn.Flagged)
	assert.Equal(t, "check in", turn.ModerationNotes)
}
