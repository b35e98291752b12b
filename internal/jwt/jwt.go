package jwt

import (
	"context"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

// Generator signs and validates access tokens. Tokens are stateless: nothing
// is persisted after issuance.
type Generator struct {
	keys      *KeyProvider
	accessTTL time.Duration
}

// NewGenerator constructs a JWT generator.
func NewGenerator(keys *KeyProvider, accessTTL time.Duration) *Generator {
	return &Generator{keys: keys, accessTTL: accessTTL}
}

// VerifiedToken pairs the standard and custom claim sets of a valid token.
type VerifiedToken struct {
	Claims *gojwt.Claims
	Access *AccessTokenClaims
}

// AccessTokenClaims represent the custom JWT payload for access tokens.
type AccessTokenClaims struct {
	Scope   string `json:"scope"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// AccessTTL reports the configured token lifetime.
func (g *Generator) AccessTTL() time.Duration {
	return g.accessTTL
}

// GenerateAccessToken produces a signed JWT bound to the client via aud.
func (g *Generator) GenerateAccessToken(ctx context.Context, identity oauth.IdentityClaims, clientID, scope, issuer string) (string, error) {
	key := g.keys.Current()

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Key},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	stdClaims := gojwt.Claims{
		Subject:   identity.Subject,
		Audience:  gojwt.Audience{clientID},
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.accessTTL)),
		NotBefore: gojwt.NewNumericDate(now),
	}

	custom := AccessTokenClaims{
		Scope:   scope,
		Email:   identity.Email,
		Name:    identity.Name,
		Picture: identity.Picture,
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}

	return token, nil
}

// ValidateAccessToken verifies the signature against the key published under
// the token's kid, then checks issuer and expiry.
func (g *Generator) ValidateAccessToken(ctx context.Context, token, issuer string) (*gojwt.Claims, *AccessTokenClaims, error) {
	allowed := []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(g.keys.Current().Algorithm)}
	parsed, err := gojwt.ParseSigned(token, allowed)
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}
	if len(parsed.Headers) == 0 {
		return nil, nil, fmt.Errorf("token missing JOSE header")
	}

	pub, ok := g.keys.PublicKey(parsed.Headers[0].KeyID)
	if !ok {
		return nil, nil, fmt.Errorf("unknown kid %q", parsed.Headers[0].KeyID)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(pub, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	if err := std.Validate(gojwt.Expected{Issuer: issuer, Time: time.Now()}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}

	return &std, &custom, nil
}
