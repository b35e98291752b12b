package jwt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/config"
)

// SigningKey is the private key currently used to sign access tokens.
type SigningKey struct {
	KID       string
	Key       *rsa.PrivateKey
	Algorithm string
}

// VerificationKey is a public key kept around so tokens signed before a
// rotation still verify until they expire.
type VerificationKey struct {
	KID       string
	Key       *rsa.PublicKey
	Algorithm string
}

// KeyProvider holds the signing key material for the process lifetime.
// Exactly one key signs; retired keys verify only. Keys are provisioned at
// startup and never regenerated mid-process.
type KeyProvider struct {
	current SigningKey
	retired []VerificationKey
}

// NewKeyProvider loads the signing key from config. Inline PEM wins over a key
// file; when neither is configured an ephemeral key is generated, which is
// only acceptable for development since tokens stop verifying on restart.
func NewKeyProvider(cfg config.Config, logger *zap.Logger) (*KeyProvider, error) {
	pemData := []byte(cfg.SigningKeyPEM)
	if len(pemData) == 0 && cfg.SigningKeyFile != "" {
		data, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key file: %w", err)
		}
		pemData = data
	}

	var key *rsa.PrivateKey
	if len(pemData) > 0 {
		parsed, err := parsePrivateKeyPEM(pemData)
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		key = parsed
	} else {
		generated, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		key = generated
		if logger != nil {
			logger.Warn("no signing key configured, generated an ephemeral key; tokens will not survive a restart")
		}
	}

	kid := cfg.SigningKeyID
	if kid == "" {
		derived, err := thumbprint(&key.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("derive kid: %w", err)
		}
		kid = derived
	}

	provider := &KeyProvider{
		current: SigningKey{KID: kid, Key: key, Algorithm: string(jose.RS256)},
	}

	for _, path := range cfg.RetiredKeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read retired key %s: %w", path, err)
		}
		pub, err := parsePublicKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse retired key %s: %w", path, err)
		}
		retiredKID, err := thumbprint(pub)
		if err != nil {
			return nil, fmt.Errorf("derive retired kid %s: %w", path, err)
		}
		provider.retired = append(provider.retired, VerificationKey{
			KID:       retiredKID,
			Key:       pub,
			Algorithm: string(jose.RS256),
		})
	}

	return provider, nil
}

// Current returns the active signing key.
func (p *KeyProvider) Current() SigningKey {
	return p.current
}

// PublicKey returns the public key published under kid, current or retired.
func (p *KeyProvider) PublicKey(kid string) (*rsa.PublicKey, bool) {
	if kid == p.current.KID {
		return &p.current.Key.PublicKey, true
	}
	for _, retired := range p.retired {
		if retired.KID == kid {
			return retired.Key, true
		}
	}
	return nil, false
}

// JWKS returns the public JSON Web Key Set: the current key plus every
// not-yet-retired verification key.
func (p *KeyProvider) JWKS() jose.JSONWebKeySet {
	keys := []jose.JSONWebKey{{
		KeyID:     p.current.KID,
		Use:       "sig",
		Algorithm: p.current.Algorithm,
		Key:       &p.current.Key.PublicKey,
	}}
	for _, retired := range p.retired {
		keys = append(keys, jose.JSONWebKey{
			KeyID:     retired.KID,
			Use:       "sig",
			Algorithm: retired.Algorithm,
			Key:       retired.Key,
		})
	}
	return jose.JSONWebKeySet{Keys: keys}
}

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := parsePrivateKeyFromBlock(block.Bytes); err == nil {
		return &key.PublicKey, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return pub, nil
}

func parsePrivateKeyFromBlock(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

// thumbprint derives a stable kid from the public key per RFC 7638.
func thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
