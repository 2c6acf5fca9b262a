package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vseti/vseti-chat/internal/auth"
	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/proto"
	"github.com/vseti/vseti-chat/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	auth  *auth.Service
	hub   *core.Hub
	store *sqlite.SQLiteStore
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.AuthTimeout = 5 * time.Second
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	hub := core.NewHub(st, authService, &logger, core.Options{
		MaxContentLength: cfg.MaxContentLength,
		DuplicatePolicy:  core.DuplicatePolicy(cfg.DuplicateConnectionPolicy),
	})

	server := NewServer(hub, authService, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		hub.Shutdown()
		ts.Close()
		_ = st.Close()
	})

	return &testEnv{ts: ts, auth: authService, hub: hub, store: st}
}

// register creates a user and returns its id and token.
func (e *testEnv) register(t *testing.T, name string) (int64, string) {
	t.Helper()
	token, user, err := e.auth.Register(context.Background(), auth.Registration{
		Email:     name + "@example.com",
		Password:  "password123",
		FirstName: name,
	})
	require.NoError(t, err)
	return user.ID, token
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}))
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// expect reads frames until one with the given event name arrives.
func expect(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outbound {
	t.Helper()
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event == event {
			return out
		}
	}
}

func decodeData(t *testing.T, out outbound, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(out.Data, dst), fmt.Sprintf("data: %s", out.Data))
}

func authenticate(t *testing.T, ctx context.Context, conn *websocket.Conn, token string) proto.AuthSuccess {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeAuth, proto.AuthData{Token: token})
	var ok proto.AuthSuccess
	decodeData(t, expect(t, ctx, conn, proto.EventAuthSuccess), &ok)
	return ok
}
