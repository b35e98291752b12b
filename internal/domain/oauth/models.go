package oauth

import "time"

// Supported PKCE code challenge methods. The discovery document must advertise
// exactly this set, and the token endpoint must accept exactly this set.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// SupportedChallengeMethods returns the methods the token endpoint accepts.
func SupportedChallengeMethods() []string {
	return []string{MethodS256, MethodPlain}
}

// IsSupportedChallengeMethod reports whether the method can be verified.
func IsSupportedChallengeMethod(method string) bool {
	return method == MethodS256 || method == MethodPlain
}

// AuthorizationRequest captures a pending /authorize call while the end user
// is at the upstream IdP. Keyed by the server-generated SessionID, never by
// client-supplied values.
type AuthorizationRequest struct {
	SessionID           string    `json:"session_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	UpstreamCSRFToken   string    `json:"upstream_csrf_token"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the request may no longer produce a code.
func (r AuthorizationRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AuthorizationCode is the single-use credential handed back to the client
// after a successful upstream callback. Consumed transitions false to true
// exactly once; expired codes are never redeemable.
type AuthorizationCode struct {
	ID                  int64          `json:"id"`
	Code                string         `json:"code"`
	SessionID           string         `json:"session_id"`
	ClientID            string         `json:"client_id"`
	RedirectURI         string         `json:"redirect_uri"`
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod string         `json:"code_challenge_method,omitempty"`
	Scope               string         `json:"scope,omitempty"`
	Identity            IdentityClaims `json:"identity"`
	IssuedAt            time.Time      `json:"issued_at"`
	ExpiresAt           time.Time      `json:"expires_at"`
	Consumed            bool           `json:"consumed"`
}

// Expired reports whether the code may no longer be redeemed.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IdentityClaims holds the normalized identity obtained from the upstream IdP.
type IdentityClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// UpstreamTokenResponse models the upstream IdP token endpoint response.
type UpstreamTokenResponse struct {
	AccessToken string
	TokenType   string
	IDToken     string
	Scope       string
	ExpiresIn   int64
	Raw         map[string]any
}
