package access

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any missing, malformed or rejected session token.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the verified caller behind an embedded-app request.
type Identity struct {
	Shop      string // e.g. demo.myshopify.com
	UserID    string
	SessionID string
}

// CanAccessShop reports whether the identity was issued for shop.
func (i *Identity) CanAccessShop(shop string) bool {
	return i != nil && strings.EqualFold(i.Shop, shop)
}

// SessionClaims are the claims of a Shopify App Bridge session token.
type SessionClaims struct {
	Dest      string `json:"dest"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionVerifier validates App Bridge session tokens signed with the app secret.
type SessionVerifier struct {
	apiKey string
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewSessionVerifier creates a verifier for the app identified by apiKey.
func NewSessionVerifier(apiKey, apiSecret string) *SessionVerifier {
	return &SessionVerifier{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		leeway: 5 * time.Second,
		now:    time.Now,
	}
}

// Verify checks signature, audience, lifetime and issuer of a session token.
// Parameters:
//   - token: raw JWT from the Authorization header.
//
// Returns:
//   - *Identity: shop and user the token was issued for.
//   - error: wraps ErrUnauthorized on any failure.
func (v *SessionVerifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing session token", ErrUnauthorized)
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: session verification is not configured", ErrUnauthorized)
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.apiKey),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	shop, err := shopFromIssuer(claims.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if dest, err := url.Parse(claims.Dest); err != nil || !strings.EqualFold(dest.Host, shop) {
		return nil, fmt.Errorf("%w: dest %q does not match issuer shop", ErrUnauthorized, claims.Dest)
	}

	return &Identity{
		Shop:      shop,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
	}, nil
}

// shopFromIssuer extracts the shop host from an issuer of the form https://{shop}/admin.
func shopFromIssuer(iss string) (string, error) {
	u, err := url.Parse(iss)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("invalid issuer %q", iss)
	}
	if strings.TrimSuffix(u.Path, "/") != "/admin" {
		return "", fmt.Errorf("invalid issuer path %q", u.Path)
	}
	return strings.ToLower(u.Host), nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}
