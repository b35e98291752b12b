package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

const testIssuer = "https://auth.example.com"

func newTestGenerator(t *testing.T, ttl time.Duration) *Generator {
	t.Helper()
	provider, err := NewKeyProvider(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	return NewGenerator(provider, ttl)
}

func testIdentity() oauth.IdentityClaims {
	return oauth.IdentityClaims{
		Subject: "google-sub-123",
		Email:   "user@example.com",
		Name:    "Test User",
		Picture: "https://img.example.com/u",
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	gen := newTestGenerator(t, 15*time.Minute)
	ctx := context.Background()

	token, err := gen.GenerateAccessToken(ctx, testIdentity(), "client-1", "openid email", testIssuer)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	std, custom, err := gen.ValidateAccessToken(ctx, token, testIssuer)
	require.NoError(t, err)
	require.Equal(t, "google-sub-123", std.Subject)
	require.Equal(t, testIssuer, std.Issuer)
	require.Contains(t, std.Audience, "client-1")
	require.Equal(t, "openid email", custom.Scope)
	require.Equal(t, "user@example.com", custom.Email)

	remaining := time.Until(std.Expiry.Time())
	require.Greater(t, remaining, 14*time.Minute)
	require.LessOrEqual(t, remaining, 15*time.Minute)
}

func TestValidateAccessToken_WrongIssuer(t *testing.T) {
	gen := newTestGenerator(t, time.Minute)
	ctx := context.Background()

	token, err := gen.GenerateAccessToken(ctx, testIdentity(), "client-1", "openid", testIssuer)
	require.NoError(t, err)

	_, _, err = gen.ValidateAccessToken(ctx, token, "https://other.example.com")
	require.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	gen := newTestGenerator(t, -time.Minute)
	ctx := context.Background()

	token, err := gen.GenerateAccessToken(ctx, testIdentity(), "client-1", "openid", testIssuer)
	require.NoError(t, err)

	_, _, err = gen.ValidateAccessToken(ctx, token, testIssuer)
	require.Error(t, err)
}

func TestValidateAccessToken_WrongKey(t *testing.T) {
	gen := newTestGenerator(t, time.Minute)
	other := newTestGenerator(t, time.Minute)
	ctx := context.Background()

	token, err := other.GenerateAccessToken(ctx, testIdentity(), "client-1", "openid", testIssuer)
	require.NoError(t, err)

	// Signed by a key the first provider never published.
	_, _, err = gen.ValidateAccessToken(ctx, token, testIssuer)
	require.Error(t, err)
}

func TestKeyProvider_ConfiguredPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	provider, err := NewKeyProvider(config.Config{
		SigningKeyPEM: string(pemData),
		SigningKeyID:  "primary",
	}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "primary", provider.Current().KID)
	require.Equal(t, key.N, provider.Current().Key.N)
}

func TestKeyProvider_DerivedKIDMatchesJWKS(t *testing.T) {
	provider, err := NewKeyProvider(config.Config{}, zap.NewNop())
	require.NoError(t, err)

	kid := provider.Current().KID
	require.NotEmpty(t, kid)

	jwks := provider.JWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, kid, jwks.Keys[0].KeyID)
	require.Equal(t, "sig", jwks.Keys[0].Use)
	require.Equal(t, "RS256", jwks.Keys[0].Algorithm)
	require.True(t, jwks.Keys[0].IsPublic())

	pub, ok := provider.PublicKey(kid)
	require.True(t, ok)
	require.NotNil(t, pub)

	_, ok = provider.PublicKey("no-such-kid")
	require.False(t, ok)
}
