package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fruitshop/orderdesk/internal/enum"
)

var (
	ErrNoSession    = errors.New("please log in first")
	ErrTokenExpired = errors.New("session expired, please log in again")
	ErrEmptyToken   = errors.New("token is required")
)

// Session holds the credential of the logged-in operator or customer.
// Login populates it, Logout clears it, and every API client that needs a
// bearer token receives it explicitly.
type Session struct {
	secret string
	now    func() time.Time

	mu     sync.RWMutex
	token  string
	claims *Claims
}

// NewSession creates an empty session. When secret is non-empty tokens are
// verified on login; otherwise they are decoded as-is.
func NewSession(secret string) *Session {
	return &Session{secret: secret, now: time.Now}
}

// NewSessionWithToken is a convenience for CLIs and tests.
func NewSessionWithToken(secret, token string) (*Session, error) {
	s := NewSession(secret)
	if _, err := s.Login(token); err != nil {
		return nil, err
	}
	return s, nil
}

// Check parses token the way Login would, without storing it.
func (s *Session) Check(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	var (
		claims *Claims
		err    error
	)
	if s.secret != "" {
		claims, err = ValidateToken(s.secret, token)
	} else {
		claims, err = DecodeToken(token)
	}
	if err != nil {
		return nil, err
	}
	if claims.ExpiredAt(s.now()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Login replaces the current credential with token.
func (s *Session) Login(token string) (*Claims, error) {
	claims, err := s.Check(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.claims = claims
	s.mu.Unlock()
	return claims, nil
}

// Logout clears the credential.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.claims = nil
	s.mu.Unlock()
}

// Token returns the bearer token, or "" when logged out or expired.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.claims.ExpiredAt(s.now()) {
		return ""
	}
	return s.token
}

// Claims returns a copy of the current claims, or nil.
func (s *Session) Claims() *Claims {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}

// Active reports whether the session holds an unexpired token.
func (s *Session) Active() bool {
	return s.Token() != ""
}

// Expired reports whether a token is held but has passed its exp.
func (s *Session) Expired() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.claims.ExpiredAt(s.now())
}

// Username is the logged-in user's name, or "".
func (s *Session) Username() string {
	if c := s.Claims(); c != nil && s.Active() {
		return c.Username
	}
	return ""
}

// IsAdmin reports whether the session belongs to an admin.
func (s *Session) IsAdmin() bool {
	c := s.Claims()
	return c != nil && c.Role == enum.UserRoleAdmin && s.Active()
}
