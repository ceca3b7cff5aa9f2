package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer"}

func TestIdentifyAllowsAnonymousSession(t *testing.T) {
	var identity struct {
		session string
		user    string
	}
	handler := Identify(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity.session = SessionIDFromContext(r.Context())
		identity.user = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, " sess-123 ")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if identity.session != "sess-123" {
		t.Fatalf("expected trimmed session, got %q", identity.session)
	}
	if identity.user != "" {
		t.Fatalf("expected no user, got %q", identity.user)
	}
}

func TestIdentifyRejectsInvalidToken(t *testing.T) {
	handler := Identify(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestIdentifyRejectsOversizedSession(t *testing.T) {
	handler := Identify(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, strings.Repeat("s", maxSessionIDLength+1))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdentifyAcceptsValidToken(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, userID, enums.UserRoleAdmin)

	var captured struct {
		user    string
		role    string
		session string
	}
	handler := Identify(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.session = SessionIDFromContext(r.Context())
		identity := IdentityFromContext(r.Context())
		if identity.UserID == nil || *identity.UserID != userID {
			t.Errorf("identity user mismatch: %v", identity.UserID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SessionHeader, "sess-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.role != string(enums.UserRoleAdmin) {
		t.Fatalf("expected role admin got %s", captured.role)
	}
	if captured.session != "sess-1" {
		t.Fatalf("expected session kept beside the user, got %q", captured.session)
	}
}

func TestRequireUserAndRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	chain := func(h http.Handler) http.Handler {
		return Identify(testJWT, nil)(RequireRole(nil, enums.UserRoleAdmin)(h))
	}

	anon := httptest.NewRecorder()
	chain(ok).ServeHTTP(anon, httptest.NewRequest(http.MethodPost, "/", nil))
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous caller got %d", anon.Code)
	}

	customer := httptest.NewRequest(http.MethodPost, "/", nil)
	customer.Header.Set("Authorization", "Bearer "+mintTestToken(t, uuid.New(), enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	chain(ok).ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, "/", nil)
	admin.Header.Set("Authorization", "Bearer "+mintTestToken(t, uuid.New(), enums.UserRoleAdmin))
	resp = httptest.NewRecorder()
	chain(ok).ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}

	user := Identify(testJWT, nil)(RequireUser(nil)(ok))
	resp = httptest.NewRecorder()
	user.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), time.Hour, auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
