package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "beartask",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Role:   enums.MemberRoleStudent,
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
	if claims.Role != enums.MemberRoleStudent {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, cfg.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("jti should be generated when absent")
	}
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now().UTC(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRole("superuser"),
	})
	if err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	bad := cfg
	bad.Secret = "other-secret"
	if _, err := ParseAccessToken(bad, token); err == nil {
		t.Fatalf("expected signature validation failure")
	}
}

func TestParseAccessTokenRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	issued := time.Now().UTC().Add(-2 * time.Hour)
	token, err := MintAccessToken(cfg, issued, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleStudent,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expiry validation failure")
	}
}
