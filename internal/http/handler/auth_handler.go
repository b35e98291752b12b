package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/http/middleware"
	"github.com/DrJLabs/forgetful-auth/internal/jwt"
	"github.com/DrJLabs/forgetful-auth/internal/service"
)

// AuthHandler orchestrates the OAuth endpoints.
type AuthHandler struct {
	OAuth     service.OAuthService
	Discovery *service.DiscoveryService
	Keys      *jwt.KeyProvider
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(oauth service.OAuthService, discovery *service.DiscoveryService, keys *jwt.KeyProvider) *AuthHandler {
	return &AuthHandler{OAuth: oauth, Discovery: discovery, Keys: keys}
}

// OpenIDConfig returns the OpenID discovery document.
func (h *AuthHandler) OpenIDConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Discovery.OpenIDConfigurationResponse())
}

// JWKS exposes the public signing keys.
func (h *AuthHandler) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, h.Keys.JWKS())
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type authorizeRequest struct {
	ClientID            string `form:"client_id"`
	ResponseType        string `form:"response_type"`
	RedirectURI         string `form:"redirect_uri"`
	Scope               string `form:"scope"`
	State               string `form:"state"`
	CodeChallenge       string `form:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method"`
}

// Authorize validates the client request and redirects to the upstream
// provider. Validation failures before the redirect_uri is trusted are
// answered directly, never via redirect.
func (h *AuthHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid authorize request."})
		return
	}

	result, err := h.OAuth.Authorize(c.Request.Context(), service.AuthorizeInput{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		oauthErr := service.AsOAuthError(err)
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}

	c.Redirect(http.StatusFound, result.Location)
}

// Callback handles the upstream provider redirect and forwards the user
// agent back to the client with either a code or an error.
func (h *AuthHandler) Callback(c *gin.Context) {
	result, err := h.OAuth.HandleCallback(c.Request.Context(), service.CallbackInput{
		Code:  c.Query("code"),
		State: c.Query("state"),
	})
	if err != nil {
		oauthErr := service.AsOAuthError(err)
		zap.L().Warn("callback rejected", zap.String("error", oauthErr.Code))
		c.Redirect(http.StatusFound, h.issuerErrorURL(oauthErr))
		return
	}

	c.Redirect(http.StatusFound, result.Location)
}

type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	Code         string `form:"code" json:"code"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	ClientID     string `form:"client_id" json:"client_id"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
}

// Token redeems an authorization code for an access token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	resp, err := h.OAuth.Exchange(c.Request.Context(), service.TokenInput{
		GrantType:    req.GrantType,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		ClientID:     req.ClientID,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		oauthErr := service.AsOAuthError(err)
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

// UserInfo returns the identity claims behind the bearer token validated by
// the auth middleware.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	std, ok := middleware.GetStdClaims(c)
	access, hasAccess := middleware.GetAccessClaims(c)
	if !ok || std == nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	resp := gin.H{"sub": std.Subject}
	if hasAccess && access != nil {
		if access.Email != "" {
			resp["email"] = access.Email
		}
		if access.Name != "" {
			resp["name"] = access.Name
		}
		if access.Picture != "" {
			resp["picture"] = access.Picture
		}
		if access.Scope != "" {
			resp["scope"] = access.Scope
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) issuerErrorURL(oauthErr *service.OAuthError) string {
	errURL, err := url.Parse(fmt.Sprintf("%s/error", h.Discovery.Issuer()))
	if err != nil {
		return "/error"
	}
	q := errURL.Query()
	q.Set("error", oauthErr.Code)
	q.Set("error_description", oauthErr.Description)
	errURL.RawQuery = q.Encode()
	return errURL.String()
}
