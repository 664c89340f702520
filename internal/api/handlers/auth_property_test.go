package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

func genEmail() gopter.Gen {
	return gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,10}\.(io|gg|dev)`)
}

func genPassword() gopter.Gen {
	return gen.RegexMatch(`[a-zA-Z0-9]{8,24}`)
}

func postJSON(path string, body any) *http.Request {
	encoded, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Code
}

func TestLoginRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	authService := newTestAuthService(newTestBox(t))

	properties.Property("valid credentials yield a token carrying the account's identity", prop.ForAll(
		func(email, password string, admin bool) bool {
			st := newMemStore()
			user := seedUser(t, st, email, password, admin)
			handler := NewAuthHandler(st, authService, testLogger())

			rr := httptest.NewRecorder()
			handler.Login(rr, postJSON("/api/auth/login", LoginRequest{Email: email, Password: password}))

			if rr.Code != http.StatusOK {
				return false
			}
			var resp LoginResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				return false
			}
			if resp.User == nil || resp.User.ID != user.ID {
				return false
			}
			claims, err := authService.ValidateToken(resp.Token)
			if err != nil {
				return false
			}
			return claims.UserID == user.ID &&
				claims.Admin == admin &&
				st.lastActivity() == models.ActivityLogin
		},
		genEmail(),
		genPassword(),
		gen.Bool(),
	))

	properties.Property("a wrong password is rejected without leaking which half was wrong", prop.ForAll(
		func(email, password string) bool {
			st := newMemStore()
			seedUser(t, st, email, password, false)
			handler := NewAuthHandler(st, authService, testLogger())

			rr := httptest.NewRecorder()
			handler.Login(rr, postJSON("/api/auth/login", LoginRequest{Email: email, Password: password + "x"}))

			if rr.Code != http.StatusUnauthorized {
				return false
			}
			// No token anywhere in the response, and no login recorded.
			return !strings.Contains(rr.Body.String(), "token") &&
				st.lastActivity() == ""
		},
		genEmail(),
		genPassword(),
	))

	properties.TestingRun(t)
}

func TestLoginValidation(t *testing.T) {
	authService := newTestAuthService(newTestBox(t))

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing email", body: `{"password":"hunter22hunter22"}`, code: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"op@panel.io"}`, code: http.StatusBadRequest},
		{name: "malformed json", body: `{"email":`, code: http.StatusBadRequest},
		{name: "unknown account", body: `{"email":"ghost@panel.io","password":"hunter22hunter22"}`, code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(newMemStore(), authService, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			handler.Login(rr, req)

			if rr.Code != tt.code {
				t.Errorf("status = %d, want %d", rr.Code, tt.code)
			}
		})
	}
}

func TestMe(t *testing.T) {
	authService := newTestAuthService(newTestBox(t))
	st := newMemStore()
	user := seedUser(t, st, "op@panel.io", "hunter22hunter22", true)
	handler := NewAuthHandler(st, authService, testLogger())

	t.Run("authenticated", func(t *testing.T) {
		req := asOperator(httptest.NewRequest(http.MethodGet, "/api/me", nil), user.ID, true)
		rr := httptest.NewRecorder()
		handler.Me(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var got models.User
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if got.ID != user.ID || got.Email != user.Email {
			t.Errorf("got user %s (%s), want %s (%s)", got.ID, got.Email, user.ID, user.Email)
		}
	})

	t.Run("no claims in context", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.Me(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
		if code := decodeErrorCode(t, rr); code != "unauthorized" {
			t.Errorf("code = %q, want unauthorized", code)
		}
	})
}
