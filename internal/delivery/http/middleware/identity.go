package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ticketbooth/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityCookieName is the cookie carrying the signed visitor ID.
const IdentityCookieName = "tb_visitor"

// visitorCookieTTL is roughly the longest cookie lifetime browsers still honor.
const visitorCookieTTL = 400 * 24 * time.Hour

// SetIdentity returns a context with the request identity set.
func SetIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the request identity from the context, if present.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

// IdentityIssuer derives an opaque identity for each request and makes it
// available via the request context. Returning visitors are recognized by an
// HMAC-signed cookie; first contact mints a random visitor ID and sets the
// cookie. When the cookie cannot be signed the remote IP is used instead, so
// the throttle still has a key to work with. The core never learns which
// mechanism produced the identity.
type IdentityIssuer struct {
	secret []byte
	logger *slog.Logger
}

// NewIdentityIssuer creates an IdentityIssuer signing cookies with the given secret.
func NewIdentityIssuer(secret string, logger *slog.Logger) *IdentityIssuer {
	return &IdentityIssuer{secret: []byte(secret), logger: logger}
}

// Wrap returns a handler that resolves the identity before calling next.
func (m *IdentityIssuer) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := m.fromCookie(r)
		if identity == "" {
			visitorID := uuid.NewString()
			signed, err := m.sign(visitorID)
			if err != nil {
				m.logger.Warn("sign visitor cookie failed, falling back to remote address", "err", err)
				identity = ipIdentity(r)
			} else {
				http.SetCookie(w, &http.Cookie{
					Name:     IdentityCookieName,
					Value:    signed,
					Path:     "/",
					MaxAge:   int(visitorCookieTTL.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
				identity = domain.Identity("visitor:" + visitorID)
			}
		}
		next(w, r.WithContext(SetIdentity(r.Context(), identity)))
	}
}

func (m *IdentityIssuer) fromCookie(r *http.Request) domain.Identity {
	cookie, err := r.Cookie(IdentityCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		// Tampered, expired, or signed with an old secret; treat as first contact.
		return ""
	}
	return domain.Identity("visitor:" + claims.Subject)
}

func (m *IdentityIssuer) sign(visitorID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   visitorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(visitorCookieTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign visitor token: %w", err)
	}
	return signed, nil
}

func ipIdentity(r *http.Request) domain.Identity {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return domain.Identity("ip:" + host)
}
