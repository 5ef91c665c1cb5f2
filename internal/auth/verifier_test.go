package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://id.example.com"

func newTestVerifier(t *testing.T, audience string) (*JWKSVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	raw, _ := json.Marshal(set)
	jwks, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		t.Fatalf("NewJWKSetJSON() error = %v", err)
	}
	return newJWKSVerifier(jwks, testIssuer, audience), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func claimsFor(issuer string, audience ...string) Claims {
	return Claims{
		UserID: "operator-1",
		Email:  "ops@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWKSVerifier_Validate(t *testing.T) {
	v, key := newTestVerifier(t, "quizgen")

	claims, err := v.Validate(sign(t, key, claimsFor(testIssuer, "quizgen")))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID != "operator-1" || claims.Email != "ops@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := v.Validate(sign(t, key, claimsFor("https://evil.example.com", "quizgen"))); err == nil {
		t.Error("wrong issuer should fail")
	}
	if _, err := v.Validate(sign(t, key, claimsFor(testIssuer, "other"))); !errors.Is(err, ErrInvalidAudience) {
		t.Errorf("err = %v, want ErrInvalidAudience", err)
	}

	noExpiry := claimsFor(testIssuer, "quizgen")
	noExpiry.ExpiresAt = nil
	if _, err := v.Validate(sign(t, key, noExpiry)); err == nil {
		t.Error("token without expiry should fail")
	}
}

func TestLegacyToken(t *testing.T) {
	token, err := IssueLegacyToken("u-1", "a@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ValidateLegacyToken(token, "s3cret")
	if err != nil {
		t.Fatalf("ValidateLegacyToken() error = %v", err)
	}
	if claims.UserID != "u-1" || claims.Issuer != legacyIssuer {
		t.Errorf("claims = %+v", claims)
	}
	if _, err := ValidateLegacyToken(token, "wrong"); err == nil {
		t.Error("wrong secret should fail")
	}
}
