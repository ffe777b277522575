package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer   abc  ": "abc",
		"BEARER abc":     "abc",
		"Basic abc":      "",
		"abc":            "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		if got := bearerToken(req); got != want {
			t.Fatalf("%q: expected %q got %q", header, want, got)
		}
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsVendorPrincipal(t *testing.T) {
	companyID := uuid.New()
	userID := uuid.New()
	token := mintTestToken(t, userID, enums.ActorRoleVendor, &companyID)

	var captured auth.Principal
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = PrincipalFromContext(r.Context())
		if UserIDFromContext(r.Context()) != userID.String() {
			t.Errorf("unexpected user in context")
		}
		if RoleFromContext(r.Context()) != string(enums.ActorRoleVendor) {
			t.Errorf("unexpected role in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID != userID || captured.CompanyID == nil || *captured.CompanyID != companyID {
		t.Fatalf("unexpected principal %+v", captured)
	}
}

func TestAuthAllowsOperatorWithoutCompany(t *testing.T) {
	token := mintTestToken(t, uuid.New(), enums.ActorRoleAdmin, nil)

	var captured auth.Principal
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !captured.IsOperator() || captured.CompanyID != nil {
		t.Fatalf("unexpected principal %+v", captured)
	}
}

func TestAuthRejectsVendorWithoutCompany(t *testing.T) {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.ActorRoleVendor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(nil, enums.ActorRoleAdmin, enums.ActorRoleStaff)

	cases := []struct {
		name   string
		role   enums.ActorRole
		seed   bool
		status int
	}{
		{"anonymous", "", false, http.StatusUnauthorized},
		{"admin", enums.ActorRoleAdmin, true, http.StatusOK},
		{"staff", enums.ActorRoleStaff, true, http.StatusOK},
		{"vendor", enums.ActorRoleVendor, true, http.StatusForbidden},
		{"driver", enums.ActorRoleDriver, true, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.seed {
			req = req.WithContext(WithPrincipal(req.Context(), auth.Principal{UserID: uuid.New(), Role: tc.role}))
		}
		resp := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.ActorRole, companyID *uuid.UUID) string {
	t.Helper()
	payload := auth.AccessTokenPayload{
		UserID:    userID,
		Role:      role,
		CompanyID: companyID,
		JTI:       uuid.NewString(),
	}
	token, err := auth.MintAccessToken(testJWT, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
