// Package upstream encapsulates the server-to-server exchange with the
// upstream IdP. It never originates session state of its own, and it never
// retries: upstream codes are single-use, so a retry would fail anyway.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

// Federator exchanges an upstream authorization code for identity claims.
type Federator interface {
	Exchange(ctx context.Context, code string) (*oauth.IdentityClaims, error)
}

// GoogleFederator is the HTTP implementation backed by Google's token and
// userinfo endpoints.
type GoogleFederator struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	userInfoURL  string
	httpClient   *http.Client
}

var _ Federator = (*GoogleFederator)(nil)

// NewGoogleFederator constructs the federator. A nil client gets a bounded
// 10s timeout so a stalled upstream cannot pin request handlers.
func NewGoogleFederator(cfg config.Config, client *http.Client) *GoogleFederator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleFederator{
		clientID:     cfg.GoogleClientID,
		clientSecret: cfg.GoogleClientSecret,
		redirectURI:  cfg.GoogleRedirectURI,
		tokenURL:     cfg.GoogleTokenURL,
		userInfoURL:  cfg.GoogleUserInfoURL,
		httpClient:   client,
	}
}

// Exchange redeems the upstream code and returns normalized identity claims.
// Every failure mode surfaces as oauth.ErrUpstream.
func (f *GoogleFederator) Exchange(ctx context.Context, code string) (*oauth.IdentityClaims, error) {
	tokenResp, err := f.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	claims, err := f.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject", oauth.ErrUpstream)
	}
	return claims, nil
}

func (f *GoogleFederator) exchangeCode(ctx context.Context, code string) (*oauth.UpstreamTokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", f.redirectURI)
	data.Set("client_id", f.clientID)
	data.Set("client_secret", f.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build token request: %v", oauth.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", oauth.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", oauth.ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: token exchange status=%d", oauth.ErrUpstream, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", oauth.ErrUpstream, err)
	}

	token := &oauth.UpstreamTokenResponse{
		AccessToken: stringValue(raw["access_token"]),
		TokenType:   stringValue(raw["token_type"]),
		IDToken:     stringValue(raw["id_token"]),
		Scope:       stringValue(raw["scope"]),
		Raw:         raw,
	}
	if exp, ok := raw["expires_in"].(float64); ok {
		token.ExpiresIn = int64(exp)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("%w: empty access token", oauth.ErrUpstream)
	}
	return token, nil
}

func (f *GoogleFederator) fetchUserInfo(ctx context.Context, accessToken string) (*oauth.IdentityClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build userinfo request: %v", oauth.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request: %v", oauth.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read userinfo: %v", oauth.ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: userinfo status=%d", oauth.ErrUpstream, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", oauth.ErrUpstream, err)
	}

	return &oauth.IdentityClaims{
		Subject: stringValue(raw["sub"]),
		Email:   stringValue(raw["email"]),
		Name:    stringValue(raw["name"]),
		Picture: stringValue(raw["picture"]),
	}, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
