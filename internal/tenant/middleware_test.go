package tenant

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/authn"
)

type fakeVerifier struct {
	claims authn.Claims
	err    error
}

func (f fakeVerifier) Verify(token string) (authn.Claims, error) {
	if f.err != nil {
		return authn.Claims{}, f.err
	}
	return f.claims, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddleware(t *testing.T) {
	orgID := uuid.New()

	t.Run("valid token sets organization in context", func(t *testing.T) {
		var gotOrg uuid.UUID
		h := Middleware(fakeVerifier{claims: authn.Claims{OrganizationID: orgID}}, discardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotOrg = FromContext(r.Context())
			}),
		)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		h.ServeHTTP(httptest.NewRecorder(), r)

		if gotOrg != orgID {
			t.Errorf("organization in context = %v, want %v", gotOrg, orgID)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		h := Middleware(fakeVerifier{claims: authn.Claims{OrganizationID: orgID}}, discardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not run")
			}),
		)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		h := Middleware(fakeVerifier{err: errors.New("bad token")}, discardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not run")
			}),
		)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("token accepted from query parameter", func(t *testing.T) {
		var gotOrg uuid.UUID
		h := Middleware(fakeVerifier{claims: authn.Claims{OrganizationID: orgID}}, discardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotOrg = FromContext(r.Context())
			}),
		)

		r := httptest.NewRequest(http.MethodGet, "/subscribe?token=good-token", nil)
		h.ServeHTTP(httptest.NewRecorder(), r)

		if gotOrg != orgID {
			t.Errorf("organization in context = %v, want %v", gotOrg, orgID)
		}
	})
}
