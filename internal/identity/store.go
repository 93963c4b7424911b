package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cengoxius/ecommerce01/internal/domain"
	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// CookieName is the cookie the user service sets on login.
const CookieName = "access_token"

const revokedPrefix = "revoked:"

type sessionKey struct{}

// Revocations records logged-out token ids.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocations keeps revoked token ids in Redis until the token would
// have expired anyway.
type RedisRevocations struct {
	client redis.Cmdable
}

// NewRedisRevocations creates a revocation list backed by client.
func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{client: client}
}

// Revoke marks tokenID revoked for ttl.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked.
func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check token %s: %w", tokenID, err)
	}
	return n > 0, nil
}

// Store resolves the shopper identity of each request.
type Store struct {
	verifier     *Verifier
	revocations  Revocations
	secureCookie bool
	nowFunc      func() time.Time
	logger       *slog.Logger
}

// NewStore creates an identity store. revocations may be nil, in which case
// logout only clears the cookie.
func NewStore(verifier *Verifier, revocations Revocations, secureCookie bool, logger *slog.Logger) *Store {
	return &Store{
		verifier:     verifier,
		revocations:  revocations,
		secureCookie: secureCookie,
		nowFunc:      time.Now,
		logger:       logger,
	}
}

// Middleware attaches the request's Session to its context. Requests
// without a usable token continue as guests.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := s.resolve(r)
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		if session.Authenticated() {
			ctx = logger.WithUserID(ctx, session.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Store) resolve(r *http.Request) domain.Session {
	raw := bearerToken(r)
	if raw == "" {
		return domain.Guest()
	}

	claims, err := s.verifier.Parse(raw)
	if err != nil {
		logger.WithContext(r.Context(), s.logger).Debug("ignoring access token", slog.String("error", err.Error()))
		return domain.Guest()
	}

	if s.revocations != nil && claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			logger.WithContext(r.Context(), s.logger).Warn("revocation check failed, treating request as guest",
				slog.String("error", err.Error()),
			)
			return domain.Guest()
		}
		if revoked {
			return domain.Guest()
		}
	}

	session := domain.NewSession(claims.UserID, claims.Name, claims.Email, claims.Role)
	session.Token = raw
	session.TokenID = claims.ID
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// CurrentSession returns the session attached by Middleware, or a guest.
func (s *Store) CurrentSession(ctx context.Context) domain.Session {
	if session, ok := ctx.Value(sessionKey{}).(domain.Session); ok {
		return session
	}
	return domain.Guest()
}

// Logout revokes the current token until its expiry.
func (s *Store) Logout(ctx context.Context) error {
	session := s.CurrentSession(ctx)
	if !session.Authenticated() || session.TokenID == "" || s.revocations == nil {
		return nil
	}
	ttl := session.ExpiresAt.Sub(s.nowFunc())
	if err := s.revocations.Revoke(ctx, session.TokenID, ttl); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ClearCookie expires the access token cookie in the browser.
func (s *Store) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithSession returns ctx carrying session. Used where requests do not pass
// through Middleware, such as tests.
func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}
