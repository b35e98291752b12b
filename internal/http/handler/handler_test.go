package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	domainoauth "github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
	httptransport "github.com/DrJLabs/forgetful-auth/internal/http"
	"github.com/DrJLabs/forgetful-auth/internal/http/handler"
	httpmiddleware "github.com/DrJLabs/forgetful-auth/internal/http/middleware"
	"github.com/DrJLabs/forgetful-auth/internal/jwt"
	"github.com/DrJLabs/forgetful-auth/internal/repository"
	"github.com/DrJLabs/forgetful-auth/internal/service"
	"github.com/DrJLabs/forgetful-auth/internal/store"
)

const (
	testClientID    = "memory-cli"
	testRedirectURI = "http://localhost:8765/callback"
	testIssuer      = "https://auth.example.com"

	pkceVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type stubFederator struct {
	identity domainoauth.IdentityClaims
	err      error
}

func (f *stubFederator) Exchange(ctx context.Context, code string) (*domainoauth.IdentityClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.identity
	return &out, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		ServiceName:       "forgetful-auth-test",
		IssuerURL:         testIssuer,
		GoogleClientID:    "upstream-client",
		GoogleRedirectURI: testIssuer + "/callback",
		GoogleAuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		AccessTokenTTL:    15 * time.Minute,
		AuthCodeTTL:       60 * time.Second,
		PendingRequestTTL: 10 * time.Minute,
		Clients: []config.ClientConfig{
			{ID: testClientID, RedirectURIs: []string{testRedirectURI}},
		},
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}

	mem := store.NewMemory(time.Hour)
	t.Cleanup(mem.Stop)

	keys, err := jwt.NewKeyProvider(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	generator := jwt.NewGenerator(keys, cfg.AccessTokenTTL)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	federator := &stubFederator{identity: domainoauth.IdentityClaims{
		Subject: "google-sub-123",
		Email:   "user@example.com",
		Name:    "Test User",
	}}

	clients := repository.NewStaticClientRepo(cfg.Clients)
	svc := service.NewOAuthService(mem, mem, clients, federator, generator, node, cfg, zap.NewNop())

	authHandler := handler.NewAuthHandler(svc, service.NewDiscoveryService(cfg), keys)
	authMiddleware := &httpmiddleware.Auth{OAuth: svc}

	return httptransport.NewRouter(cfg, authHandler, authMiddleware, nil)
}

func doRequest(router *gin.Engine, method, target string, body url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOpenIDConfiguration(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/.well-known/openid-configuration", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, testIssuer, doc["issuer"])
	require.Equal(t, testIssuer+"/authorize", doc["authorization_endpoint"])
	require.Equal(t, testIssuer+"/token", doc["token_endpoint"])
	require.Equal(t, testIssuer+"/jwks", doc["jwks_uri"])
	require.ElementsMatch(t, []any{"S256", "plain"}, doc["code_challenge_methods_supported"])
	require.ElementsMatch(t, []any{"code"}, doc["response_types_supported"])
	require.ElementsMatch(t, []any{"authorization_code"}, doc["grant_types_supported"])
	require.ElementsMatch(t, []any{"RS256"}, doc["id_token_signing_alg_values_supported"])
}

func TestJWKSEndpoint(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/jwks", "/.well-known/jwks.json"} {
		w := doRequest(router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var jwks struct {
			Keys []map[string]any `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jwks))
		require.Len(t, jwks.Keys, 1)
		require.Equal(t, "RSA", jwks.Keys[0]["kty"])
		require.Equal(t, "sig", jwks.Keys[0]["use"])
		require.NotEmpty(t, jwks.Keys[0]["kid"])
		// Private key material must never leak.
		require.NotContains(t, jwks.Keys[0], "d")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ok")
}

func TestAuthorize_RedirectsUpstream(t *testing.T) {
	router := newTestRouter(t)

	target := "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"state":                 {"client-state"},
		"code_challenge":        {pkceChallenge},
		"code_challenge_method": {"S256"},
	}.Encode()

	w := doRequest(router, http.MethodGet, target, nil)
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", location.Host)
	require.NotEmpty(t, location.Query().Get("state"))
}

func TestAuthorize_InvalidClientFailsClosed(t *testing.T) {
	router := newTestRouter(t)

	target := "/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"unknown"},
		"redirect_uri":  {"https://evil.example.com/cb"},
	}.Encode()

	w := doRequest(router, http.MethodGet, target, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
	require.Empty(t, w.Header().Get("Location"))
}

func TestFullAuthorizationCodeFlow(t *testing.T) {
	router := newTestRouter(t)

	// 1. /authorize redirects upstream and packs session state.
	authorizeTarget := "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"openid email"},
		"state":                 {"client-state"},
		"code_challenge":        {pkceChallenge},
		"code_challenge_method": {"S256"},
	}.Encode()
	w := doRequest(router, http.MethodGet, authorizeTarget, nil)
	require.Equal(t, http.StatusFound, w.Code)

	upstreamURL, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := upstreamURL.Query().Get("state")
	require.NotEmpty(t, state)

	// 2. /callback mints the single-use code and redirects to the client.
	callbackTarget := "/callback?" + url.Values{
		"code":  {"upstream-code"},
		"state": {state},
	}.Encode()
	w = doRequest(router, http.MethodGet, callbackTarget, nil)
	require.Equal(t, http.StatusFound, w.Code)

	clientRedirect, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(w.Header().Get("Location"), testRedirectURI))
	require.Equal(t, "client-state", clientRedirect.Query().Get("state"))
	code := clientRedirect.Query().Get("code")
	require.NotEmpty(t, code)

	// 3. /token redeems the code with the PKCE verifier.
	w = doRequest(router, http.MethodPost, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {testClientID},
		"code_verifier": {pkceVerifier},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResp))
	require.Equal(t, "bearer", tokenResp.TokenType)
	require.NotEmpty(t, tokenResp.AccessToken)
	require.Greater(t, tokenResp.ExpiresIn, 0)

	// 4. Replaying the code fails.
	w = doRequest(router, http.MethodPost, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {testClientID},
		"code_verifier": {pkceVerifier},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_grant")

	// 5. /userinfo honors the bearer token.
	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "google-sub-123", info["sub"])
	require.Equal(t, "user@example.com", info["email"])
}

func TestToken_UnsupportedGrantType(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/token", url.Values{
		"grant_type": {"password"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unsupported_grant_type")
}

func TestUserInfo_RequiresBearer(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/userinfo", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")

	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_ForgedStateRedirectsToErrorPage(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/callback?code=x&state=forged.state", nil)
	require.Equal(t, http.StatusFound, w.Code)

	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, testIssuer+"/error"))
	require.Contains(t, location, "access_denied")
}
