package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grouptalk/grouptalk-server/internal/auth"
	"github.com/grouptalk/grouptalk-server/internal/chat"
	"github.com/grouptalk/grouptalk-server/internal/config"
	"github.com/grouptalk/grouptalk-server/internal/log"
	"github.com/grouptalk/grouptalk-server/internal/store"
	"github.com/grouptalk/grouptalk-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

type testEnv struct {
	ts          *httptest.Server
	store       store.Store
	authService *auth.Service
	chatService *chat.Service
}

// startTestServer wires a full server around in-memory storage.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")

	logger := log.Nop()
	chatService := chat.NewService(st, logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	server := NewServer(chatService, authService, st, &cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:          ts,
		store:       st,
		authService: authService,
		chatService: chatService,
	}
}

// serve runs a request straight through the handler and records the response.
func (e *testEnv) serve(req *stdhttp.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}
