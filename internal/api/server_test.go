package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/pkg/config"
)

// stubStore satisfies store.Store for routing tests. The gate tests
// below exercise only middleware, which never touches the store before
// rejecting a request; any accidental store access panics through the
// embedded nil interface and fails the test loudly.
type stubStore struct {
	store.Store
}

func (stubStore) Ping(ctx context.Context) error { return nil }

type noopHeartbeats struct{}

func (noopHeartbeats) RecordHeartbeat(ctx context.Context, nodeID string, at time.Time, latencyMS *int64) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *auth.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := auth.NewService(&auth.Config{
		JWTSecret:   []byte("router-test-secret-0123456789abcdef"),
		TokenExpiry: time.Hour,
	}, nil, logger)
	tracker := liveness.NewTracker(noopHeartbeats{}, logger)

	srv := NewServer(&config.Config{}, stubStore{}, authSvc, nil, nil, nil, tracker, logger)
	return srv, authSvc
}

func mintToken(t *testing.T, svc *auth.Service, userID string, admin bool) string {
	t.Helper()
	token, err := svc.GenerateToken(&models.User{ID: userID, IsAdmin: admin})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func doRequest(srv *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestHealthEndpointIsOpen(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("health body %q should report healthy", rec.Body.String())
	}
}

func TestOperatorSurfaceRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/nodes"},
		{http.MethodPost, "/api/nodes"},
		{http.MethodGet, "/api/nodes/n1"},
		{http.MethodGet, "/api/servers"},
		{http.MethodPost, "/api/servers"},
		{http.MethodPost, "/api/servers/s1/power"},
		{http.MethodGet, "/api/servers/s1/console"},
		{http.MethodGet, "/api/blueprints"},
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/activity"},
		{http.MethodDelete, "/api/allocations/a1"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := doRequest(srv, route.method, route.path, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("no token: got %d, want 401", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != "unauthorized" {
				t.Errorf("error code = %q, want unauthorized", code)
			}
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/servers", "not-a-jwt")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("garbage token: got %d, want 401", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		expiredSvc := auth.NewService(&auth.Config{
			JWTSecret:   []byte("router-test-secret-0123456789abcdef"),
			TokenExpiry: -time.Minute,
		}, nil, logger)
		token := mintToken(t, expiredSvc, "user-1", false)

		rec := doRequest(srv, http.MethodGet, "/api/servers", token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expired token: got %d, want 401", rec.Code)
		}
	})

	// Valid tokens must still say who they are; a malformed scheme or
	// a different scheme entirely never passes.
	t.Run("basic auth scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
		req.SetBasicAuth("admin", "hunter2")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("basic auth: got %d, want 401", rec.Code)
		}
	})
}

func TestAdminOnlyRoutesRejectNonAdmins(t *testing.T) {
	srv, authSvc := newTestServer(t)
	token := mintToken(t, authSvc, "user-1", false)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/nodes"},
		{http.MethodPost, "/api/nodes"},
		{http.MethodDelete, "/api/nodes/n1"},
		{http.MethodPost, "/api/nodes/n1/rotate-credential"},
		{http.MethodGet, "/api/nodes/n1/allocations"},
		{http.MethodDelete, "/api/allocations/a1"},
		{http.MethodPost, "/api/servers"},
		{http.MethodDelete, "/api/servers/s1"},
		{http.MethodPost, "/api/servers/s1/suspend"},
		{http.MethodPost, "/api/servers/s1/unsuspend"},
		{http.MethodPost, "/api/blueprints"},
		{http.MethodPatch, "/api/blueprints/b1"},
		{http.MethodDelete, "/api/blueprints/b1"},
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/users"},
		{http.MethodDelete, "/api/users/u1"},
		{http.MethodGet, "/api/activity"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := doRequest(srv, route.method, route.path, token)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("non-admin: got %d, want 403", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != "forbidden" {
				t.Errorf("error code = %q, want forbidden", code)
			}
		})
	}
}

func TestDaemonSurfaceRejectsOperatorTokens(t *testing.T) {
	srv, authSvc := newTestServer(t)

	t.Run("no credential", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/api/remote/heartbeat", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("no credential: got %d, want 401", rec.Code)
		}
	})

	// An operator JWT is not a node credential; the prefix check turns
	// it away before any lookup happens.
	t.Run("operator token", func(t *testing.T) {
		token := mintToken(t, authSvc, "admin-1", true)
		rec := doRequest(srv, http.MethodPost, "/api/remote/heartbeat", token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("operator token on daemon surface: got %d, want 401", rec.Code)
		}
	})

	t.Run("status report without credential", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/api/remote/servers/r1/status", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("no credential: got %d, want 401", rec.Code)
		}
	})
}

func TestUnknownRoutes(t *testing.T) {
	srv, authSvc := newTestServer(t)

	if rec := doRequest(srv, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}

	token := mintToken(t, authSvc, "admin-1", true)
	if rec := doRequest(srv, http.MethodPut, "/api/servers", token); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /api/servers = %d, want 405", rec.Code)
	}
}
