package service

import (
	"fmt"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	domainoauth "github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

// DiscoveryService builds responses for the OIDC discovery endpoints.
type DiscoveryService struct {
	cfg config.Config
}

// NewDiscoveryService constructs the service.
func NewDiscoveryService(cfg config.Config) *DiscoveryService {
	return &DiscoveryService{cfg: cfg}
}

// Issuer reports the configured issuer URL.
func (s *DiscoveryService) Issuer() string {
	return s.cfg.IssuerURL
}

// OpenIDConfiguration matches the OIDC discovery document.
type OpenIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// OpenIDConfigurationResponse builds the discovery document. The advertised
// code_challenge_methods_supported is the exact set the token endpoint
// verifies, no more and no less.
func (s *DiscoveryService) OpenIDConfigurationResponse() OpenIDConfiguration {
	issuer := s.cfg.IssuerURL
	return OpenIDConfiguration{
		Issuer:                           issuer,
		AuthorizationEndpoint:            fmt.Sprintf("%s/authorize", issuer),
		TokenEndpoint:                    fmt.Sprintf("%s/token", issuer),
		UserinfoEndpoint:                 fmt.Sprintf("%s/userinfo", issuer),
		JWKSURI:                          fmt.Sprintf("%s/jwks", issuer),
		ResponseTypesSupported:           []string{"code"},
		GrantTypesSupported:              []string{"authorization_code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported:                  []string{"openid", "profile", "email"},
		TokenEndpointAuthMethods:         []string{"none"},
		CodeChallengeMethodsSupported:    domainoauth.SupportedChallengeMethods(),
		ClaimsSupported:                  []string{"sub", "email", "name", "picture", "scope"},
	}
}
