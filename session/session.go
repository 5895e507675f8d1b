// Package session issues and verifies the signed token that identifies a
// player across requests.
//
// The token is an HS256 JWT whose jti claim is the session identifier. It
// carries no game state: flags live server-side in a storage.Repository keyed
// by that identifier. The signing key is derived from an operator secret with
// HKDF and kept in a memguard enclave between uses.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/heist/internal/util"
	"github.com/jmcleod/heist/internal/uuid"
)

const (
	// CookieName is the cookie that carries the session token.
	CookieName = "heist_session"
	// DefaultTTL is the token lifetime when none is configured.
	DefaultTTL = 24 * time.Hour

	issuer  = "heist"
	keyInfo = "heist session token v1"
)

var (
	// ErrInvalidToken indicates a token that is malformed, signed with another
	// key or algorithm, or missing required claims.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrExpiredToken indicates a well-formed token past its expiry.
	ErrExpiredToken = errors.New("session token expired")
)

// Session identifies one player. It is passed explicitly into every service
// call that reads or writes per-player state.
type Session struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and verifies session tokens.
type Manager struct {
	key *memguard.Enclave
	ttl time.Duration
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the token lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager derives the signing key from secret. The caller keeps ownership
// of secret and may wipe it once NewManager returns.
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	key, err := util.HKDF(secret, nil, []byte(keyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	m := &Manager{
		key: memguard.NewEnclave(key),
		ttl: DefaultTTL,
		now: time.Now,
	}
	util.WipeBytes(key)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL reports the token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// New starts a session with a fresh random identifier and returns it together
// with its signed token.
func (m *Manager) New() (Session, string, error) {
	return m.issue(uuid.New())
}

func (m *Manager) issue(id string) (Session, string, error) {
	now := m.now().UTC().Truncate(time.Second)
	sess := Session{ID: id, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	})

	buf, err := m.key.Open()
	if err != nil {
		return Session{}, "", fmt.Errorf("opening session key: %w", err)
	}
	defer buf.Destroy()

	signed, err := token.SignedString(buf.Bytes())
	if err != nil {
		return Session{}, "", fmt.Errorf("signing session token: %w", err)
	}
	return sess, signed, nil
}

// Verify checks the token signature and claims and returns the session it
// identifies.
func (m *Manager) Verify(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidToken
	}

	buf, err := m.key.Open()
	if err != nil {
		return Session{}, fmt.Errorf("opening session key: %w", err)
	}
	defer buf.Destroy()

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return buf.Bytes(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, mapJWTError(err)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		return Session{}, ErrInvalidToken
	}
	return Session{
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// Resolve returns the session for r, starting a new one when the request
// carries no usable token. started reports whether a new session was created.
// A fresh cookie is written whenever a session starts or its token has less
// than half of its lifetime left.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (sess Session, started bool, err error) {
	if cookie, cerr := r.Cookie(CookieName); cerr == nil {
		if sess, err = m.Verify(cookie.Value); err == nil {
			if sess.ExpiresAt.Sub(m.now()) >= m.ttl/2 {
				return sess, false, nil
			}
			refreshed, token, err := m.issue(sess.ID)
			if err != nil {
				return Session{}, false, err
			}
			writeCookie(w, r, token, refreshed.ExpiresAt)
			return refreshed, false, nil
		}
	}

	sess, token, err := m.New()
	if err != nil {
		return Session{}, false, err
	}
	writeCookie(w, r, token, sess.ExpiresAt)
	return sess, true, nil
}

// Restart replaces the caller's session with a new one and writes its cookie.
// The previous identifier is never issued again.
func (m *Manager) Restart(w http.ResponseWriter, r *http.Request) (Session, error) {
	sess, token, err := m.New()
	if err != nil {
		return Session{}, err
	}
	writeCookie(w, r, token, sess.ExpiresAt)
	return sess, nil
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(Session)
	return sess, ok
}
