package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/adapter/upstream"
	"github.com/DrJLabs/forgetful-auth/internal/config"
	domainoauth "github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
	"github.com/DrJLabs/forgetful-auth/internal/jwt"
	"github.com/DrJLabs/forgetful-auth/internal/repository"
	"github.com/DrJLabs/forgetful-auth/internal/store"
)

// RFC 7636 bounds for code_verifier length.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

const defaultScope = "openid profile email"

// upstreamScope is what we request from Google, independent of the scope the
// client asked us for.
const upstreamScope = "openid email profile"

// OAuthService drives the authorize, callback, and token-exchange pipeline.
type OAuthService interface {
	Authorize(ctx context.Context, in AuthorizeInput) (*AuthorizeResult, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error)
	Exchange(ctx context.Context, in TokenInput) (*TokenResponse, error)
	VerifyAccessToken(ctx context.Context, token string) (*jwt.VerifiedToken, error)
	UserInfo(ctx context.Context, token string) (*domainoauth.IdentityClaims, error)
}

// AuthorizeInput carries the /authorize query parameters.
type AuthorizeInput struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeResult is the upstream redirect target.
type AuthorizeResult struct {
	Location  string
	SessionID string
}

// CallbackInput carries the upstream redirect parameters.
type CallbackInput struct {
	Code  string
	State string
}

// CallbackResult is the redirect back to the client. ErrorCode is set when
// the redirect communicates a failure via OAuth2 error query parameters.
type CallbackResult struct {
	Location  string
	ErrorCode string
}

// TokenInput carries the /token request body.
type TokenInput struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
}

// TokenResponse is the successful /token payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type oauthService struct {
	pending   store.PendingRequestStore
	codes     store.CodeStore
	clients   repository.ClientRepository
	federator upstream.Federator
	jwt       *jwt.Generator
	node      *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOAuthService wires the service implementation.
func NewOAuthService(
	pending store.PendingRequestStore,
	codes store.CodeStore,
	clients repository.ClientRepository,
	federator upstream.Federator,
	generator *jwt.Generator,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		pending:   pending,
		codes:     codes,
		clients:   clients,
		federator: federator,
		jwt:       generator,
		node:      node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/DrJLabs/forgetful-auth/internal/service"),
	}
}

// Authorize validates a new authorization request and derives the upstream
// redirect. Validation failures never create partial state and never redirect
// to an unvalidated URI.
func (s *oauthService) Authorize(ctx context.Context, in AuthorizeInput) (*AuthorizeResult, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.Authorize")
	defer span.End()

	if in.ResponseType != "code" {
		return nil, newOAuthError(CodeUnsupportedResponseType, "Only response_type=code is supported.", http.StatusBadRequest)
	}

	clientID := strings.TrimSpace(in.ClientID)
	redirectURI := strings.TrimSpace(in.RedirectURI)
	if clientID == "" || redirectURI == "" {
		return nil, newOAuthError(CodeInvalidRequest, "client_id and redirect_uri are required.", http.StatusBadRequest)
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError(CodeInvalidRequest, "Unknown client.", http.StatusBadRequest)
	}
	if !client.AllowsRedirect(redirectURI) {
		return nil, newOAuthError(CodeInvalidRequest, "redirect_uri is not registered for this client.", http.StatusBadRequest)
	}

	challenge := strings.TrimSpace(in.CodeChallenge)
	method := strings.TrimSpace(in.CodeChallengeMethod)
	if method != "" && challenge == "" {
		return nil, newOAuthError(CodeInvalidRequest, "code_challenge_method requires code_challenge.", http.StatusBadRequest)
	}
	if method != "" && !domainoauth.IsSupportedChallengeMethod(method) {
		return nil, newOAuthError(CodeInvalidRequest, "code_challenge_method must be S256 or plain.", http.StatusBadRequest)
	}
	if challenge != "" && method == "" {
		method = domainoauth.MethodS256
	}

	sessionID, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	csrfToken, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate upstream csrf token: %w", err)
	}

	now := time.Now().UTC()
	req := domainoauth.AuthorizationRequest{
		SessionID:           sessionID,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               normalizeScope(in.Scope),
		State:               in.State,
		CodeChallenge:       challenge,
		CodeChallengeMethod: methodIfChallenge(challenge, method),
		UpstreamCSRFToken:   csrfToken,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.cfg.PendingRequestTTL),
	}
	if err := s.pending.SaveRequest(ctx, req); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist authorization request: %w", err)
	}

	location, err := s.upstreamAuthURL(sessionID, csrfToken)
	if err != nil {
		// Roll back so a bad upstream URL never leaves a dangling session.
		_ = s.pending.DeleteRequest(ctx, sessionID)
		return nil, fmt.Errorf("build upstream url: %w", err)
	}

	s.audit("authorization.started", "client_id", clientID, "session_id", sessionID, "pkce", challenge != "")
	return &AuthorizeResult{Location: location, SessionID: sessionID}, nil
}

// HandleCallback correlates the upstream redirect to the pending request,
// federates the upstream code into identity claims, and mints the single-use
// authorization code. This is the only place upstream identity crosses into
// our own trust domain; upstream tokens are never forwarded to the client.
func (s *oauthService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.HandleCallback")
	defer span.End()

	sessionID, csrfToken, ok := strings.Cut(in.State, ".")
	if !ok || sessionID == "" || csrfToken == "" {
		return nil, newOAuthError(CodeAccessDenied, "Invalid state.", http.StatusForbidden)
	}

	req, err := s.pending.GetRequest(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load authorization request: %w", err)
	}
	if req == nil {
		return nil, newOAuthError(CodeAccessDenied, "Unknown or expired authorization request.", http.StatusForbidden)
	}

	if subtle.ConstantTimeCompare([]byte(csrfToken), []byte(req.UpstreamCSRFToken)) != 1 {
		s.discardRequest(ctx, sessionID)
		s.audit("callback.csrf_mismatch", "session_id", sessionID)
		return nil, newOAuthError(CodeAccessDenied, "State mismatch.", http.StatusForbidden)
	}

	if strings.TrimSpace(in.Code) == "" {
		s.discardRequest(ctx, sessionID)
		return nil, newOAuthError(CodeAccessDenied, "Upstream denied the request.", http.StatusForbidden)
	}

	identity, err := s.federator.Exchange(ctx, in.Code)
	if err != nil {
		// The session must not stay redeemable after an upstream failure.
		s.discardRequest(ctx, sessionID)
		span.RecordError(err)
		s.audit("callback.upstream_error", "session_id", sessionID, "client_id", req.ClientID)
		return &CallbackResult{
			Location:  errorRedirect(req.RedirectURI, CodeUpstreamError, req.State),
			ErrorCode: CodeUpstreamError,
		}, nil
	}

	codeValue, err := secureRandomString(32)
	if err != nil {
		s.discardRequest(ctx, sessionID)
		return nil, fmt.Errorf("generate authorization code: %w", err)
	}

	now := time.Now().UTC()
	code := domainoauth.AuthorizationCode{
		ID:                  s.node.Generate().Int64(),
		Code:                codeValue,
		SessionID:           req.SessionID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scope:               req.Scope,
		Identity:            *identity,
		IssuedAt:            now,
		ExpiresAt:           now.Add(s.cfg.AuthCodeTTL),
	}
	if err := s.codes.SaveCode(ctx, code); err != nil {
		s.discardRequest(ctx, sessionID)
		span.RecordError(err)
		return nil, fmt.Errorf("persist authorization code: %w", err)
	}

	// The request yielded its one code; it must not be reusable.
	s.discardRequest(ctx, sessionID)

	s.audit("authorization_code.issued", "client_id", req.ClientID, "session_id", sessionID, "code_id", code.ID)
	return &CallbackResult{Location: successRedirect(req.RedirectURI, codeValue, req.State)}, nil
}

// Exchange is the PKCE validator and JWT minter. The code is not consumed
// until every check passes; consumption is a single atomic operation.
func (s *oauthService) Exchange(ctx context.Context, in TokenInput) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.Exchange")
	defer span.End()

	if !strings.EqualFold(in.GrantType, "authorization_code") {
		return nil, newOAuthError(CodeUnsupportedGrantType, "Only authorization_code is supported.", http.StatusBadRequest)
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, newOAuthError(CodeInvalidGrant, "Authorization code missing.", http.StatusBadRequest)
	}

	// Verifier bounds are checked before any store lookup.
	if in.CodeVerifier != "" {
		if l := len(in.CodeVerifier); l < minVerifierLength || l > maxVerifierLength {
			return nil, newOAuthError(CodeInvalidGrant, "code_verifier length out of range.", http.StatusBadRequest)
		}
	}

	stored, err := s.codes.GetCode(ctx, in.Code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load authorization code: %w", err)
	}
	if stored == nil {
		return nil, s.deny("unknown_code", in.ClientID)
	}

	if in.ClientID != stored.ClientID {
		return nil, s.deny("client_mismatch", in.ClientID)
	}
	if in.RedirectURI != stored.RedirectURI {
		return nil, s.deny("redirect_mismatch", in.ClientID)
	}

	if stored.CodeChallenge != "" {
		if in.CodeVerifier == "" {
			return nil, s.deny("missing_verifier", in.ClientID)
		}
		var computed string
		switch stored.CodeChallengeMethod {
		case domainoauth.MethodS256:
			computed = pkceChallenge(in.CodeVerifier)
		case domainoauth.MethodPlain:
			computed = in.CodeVerifier
		default:
			return nil, s.deny("unknown_challenge_method", in.ClientID)
		}
		if subtle.ConstantTimeCompare([]byte(computed), []byte(stored.CodeChallenge)) != 1 {
			return nil, s.deny("pkce_mismatch", in.ClientID)
		}
	}

	consumed, err := s.codes.ConsumeCode(ctx, in.Code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	if consumed == nil {
		// A concurrent redemption won the race.
		return nil, s.deny("already_consumed", in.ClientID)
	}

	access, err := s.jwt.GenerateAccessToken(ctx, consumed.Identity, consumed.ClientID, consumed.Scope, s.cfg.IssuerURL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	s.audit("token.issued", "client_id", consumed.ClientID, "subject", consumed.Identity.Subject, "code_id", consumed.ID)
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(s.jwt.AccessTTL().Seconds()),
	}, nil
}

// VerifyAccessToken checks signature, expiry, issuer, and that the audience
// is a registered client.
func (s *oauthService) VerifyAccessToken(ctx context.Context, token string) (*jwt.VerifiedToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	std, custom, err := s.jwt.ValidateAccessToken(ctx, token, s.cfg.IssuerURL)
	if err != nil {
		return nil, domainoauth.ErrTokenInvalid
	}
	if len(std.Audience) == 0 {
		return nil, domainoauth.ErrTokenInvalid
	}
	if _, err := s.clients.GetClient(ctx, std.Audience[0]); err != nil {
		return nil, domainoauth.ErrTokenInvalid
	}
	return &jwt.VerifiedToken{Claims: std, Access: custom}, nil
}

// UserInfo returns the identity claims carried by a valid bearer token.
func (s *oauthService) UserInfo(ctx context.Context, token string) (*domainoauth.IdentityClaims, error) {
	verified, err := s.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &domainoauth.IdentityClaims{
		Subject: verified.Claims.Subject,
		Email:   verified.Access.Email,
		Name:    verified.Access.Name,
		Picture: verified.Access.Picture,
	}, nil
}

func (s *oauthService) upstreamAuthURL(sessionID, csrfToken string) (string, error) {
	authURL, err := url.Parse(s.cfg.GoogleAuthURL)
	if err != nil {
		return "", err
	}
	params := authURL.Query()
	params.Set("client_id", s.cfg.GoogleClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", s.cfg.GoogleRedirectURI)
	params.Set("scope", upstreamScope)
	params.Set("state", sessionID+"."+csrfToken)
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

func (s *oauthService) discardRequest(ctx context.Context, sessionID string) {
	if err := s.pending.DeleteRequest(ctx, sessionID); err != nil {
		s.log().Warn("failed to delete authorization request", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *oauthService) deny(reason, clientID string) *OAuthError {
	s.audit("token.denied", "client_id", clientID, "reason", reason)
	return newOAuthError(CodeInvalidGrant, "Invalid authorization code.", http.StatusBadRequest)
}

func (s *oauthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *oauthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *oauthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func methodIfChallenge(challenge, method string) string {
	if challenge == "" {
		return ""
	}
	return method
}

func normalizeScope(scope string) string {
	trimmed := strings.TrimSpace(scope)
	if trimmed == "" {
		return defaultScope
	}
	return trimmed
}

func successRedirect(redirectURI, code, state string) string {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	params := target.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()
	return target.String()
}

func errorRedirect(redirectURI, errorCode, state string) string {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	params := target.Query()
	params.Set("error", errorCode)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()
	return target.String()
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
