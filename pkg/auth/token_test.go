package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "marketplace",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()
	companyID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:    userID,
		Role:      enums.ActorRoleVendor,
		CompanyID: &companyID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.ActorRoleVendor {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.CompanyID == nil || *claims.CompanyID != companyID {
		t.Fatalf("company id not preserved")
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(now) {
		t.Fatalf("expected expiry in the future")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleVendor}); err == nil {
		t.Fatal("expected vendor without company to fail")
	}
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{Role: enums.ActorRoleAdmin}); err == nil {
		t.Fatal("expected missing user to fail")
	}
	if _, err := MintAccessToken(config.JWTConfig{Secret: "s"}, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin}); err == nil {
		t.Fatal("expected missing issuer to fail")
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	payload := AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleStaff}

	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	valid, err := MintAccessToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, valid); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
	other = cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, valid); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}

	parts := strings.Split(valid, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	if _, err := ParseAccessToken(cfg, parts[0]+"."+parts[1]+".tampered"); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestParseAccessTokenRunsActorValidation(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.ActorRoleVendor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = ParseAccessToken(cfg, signed)
	if !errors.Is(err, ErrMissingCompany) {
		t.Fatalf("expected ErrMissingCompany, got %v", err)
	}
}

func TestParseAccessTokenToleratesSmallSkew(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(10*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleDriver})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err != nil {
		t.Fatalf("token issued slightly in the future should parse: %v", err)
	}
}
