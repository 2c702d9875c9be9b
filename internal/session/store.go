// ABOUTME: In-memory session store keyed by rotating opaque refresh tokens
// ABOUTME: Maintains a jti index so access tokens of removed sessions can be rejected

package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaxkeren/openclaw/internal/token"
)

// ErrNotFound is returned when a refresh token is unknown, expired or already rotated.
var ErrNotFound = errors.New("session not found")

// Meta is optional client metadata recorded on a session.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Session is the server-side record behind a refresh token.
type Session struct {
	ID                    string
	Email                 string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	AccessTokenJTI        string
	IssuedAt              time.Time
	LastUsedAt            time.Time
	IPAddress             string
	UserAgent             string
}

// Grant is a session together with the token pair handed to the client.
type Grant struct {
	Session         Session
	AccessToken     string
	AccessExpiresAt int64 // unix seconds
	RefreshToken    string
}

// jtiEntry points an access token at its session until the token expires.
type jtiEntry struct {
	sessionID string
	expiresAt time.Time
}

// Store owns all live sessions. It is safe for concurrent use; every
// read-modify-write happens under a single mutex.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session // keyed by refresh token
	byID       map[string]string   // session ID -> refresh token
	jtis       map[string]jtiEntry // access token JTI -> session
	codec      *token.Codec
	refreshTTL time.Duration
	now        func() time.Time
}

// New creates an empty store issuing access tokens with codec and refresh
// tokens valid for refreshTTL.
func New(codec *token.Codec, refreshTTL time.Duration) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		byID:       make(map[string]string),
		jtis:       make(map[string]jtiEntry),
		codec:      codec,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL returns how long a refresh token stays valid after issue.
func (s *Store) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Create starts a new session for email and returns its token pair.
func (s *Store) Create(email string, meta Meta) (*Grant, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	refreshToken, access, err := s.newTokens(email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:                    id.String(),
		Email:                 email,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: now.Add(s.refreshTTL),
		AccessTokenJTI:        access.JTI,
		IssuedAt:              now,
		LastUsedAt:            now,
		IPAddress:             meta.IPAddress,
		UserAgent:             meta.UserAgent,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(sess, access.ExpiresAt)

	return &Grant{
		Session:         *sess,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		RefreshToken:    refreshToken,
	}, nil
}

// Rotate exchanges refreshToken for a new token pair. The presented token is
// consumed: any later use of it returns ErrNotFound. Session ID and IssuedAt
// carry over to the rotated session.
func (s *Store) Rotate(refreshToken string, meta Meta) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[refreshToken]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	if now.After(old.RefreshTokenExpiresAt) {
		s.removeLocked(old)
		return nil, ErrNotFound
	}

	newRefresh, access, err := s.newTokens(old.Email)
	if err != nil {
		return nil, err
	}

	// Old entries go first so the consumed token can never resolve again.
	delete(s.sessions, old.RefreshToken)
	delete(s.byID, old.ID)
	delete(s.jtis, old.AccessTokenJTI)

	rotated := &Session{
		ID:                    old.ID,
		Email:                 old.Email,
		RefreshToken:          newRefresh,
		RefreshTokenExpiresAt: now.Add(s.refreshTTL),
		AccessTokenJTI:        access.JTI,
		IssuedAt:              old.IssuedAt,
		LastUsedAt:            now,
		IPAddress:             old.IPAddress,
		UserAgent:             old.UserAgent,
	}
	if meta.IPAddress != "" {
		rotated.IPAddress = meta.IPAddress
	}
	if meta.UserAgent != "" {
		rotated.UserAgent = meta.UserAgent
	}
	s.insertLocked(rotated, access.ExpiresAt)

	return &Grant{
		Session:         *rotated,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		RefreshToken:    newRefresh,
	}, nil
}

// Revoke removes the session behind refreshToken. It reports whether one existed.
func (s *Store) Revoke(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[refreshToken]
	if !ok {
		return false
	}
	s.removeLocked(sess)
	return true
}

// RevokeAllForEmail removes every session owned by email and returns how many
// were removed. Emails compare case-insensitively.
func (s *Store) RevokeAllForEmail(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sess := range s.sessions {
		if strings.EqualFold(sess.Email, email) {
			s.removeLocked(sess)
			count++
		}
	}
	return count
}

// SweepExpired removes sessions whose refresh token has expired, along with
// index entries for access tokens that have expired on their own. It returns
// the number of sessions removed.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.RLock()
	var staleTokens, staleJTIs []string
	for tok, sess := range s.sessions {
		if now.After(sess.RefreshTokenExpiresAt) {
			staleTokens = append(staleTokens, tok)
		}
	}
	for jti, e := range s.jtis {
		if now.After(e.expiresAt) {
			staleJTIs = append(staleJTIs, jti)
		}
	}
	s.mu.RUnlock()

	if len(staleTokens) == 0 && len(staleJTIs) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, tok := range staleTokens {
		// Re-check: the session may have been rotated or revoked meanwhile.
		if sess, ok := s.sessions[tok]; ok && now.After(sess.RefreshTokenExpiresAt) {
			s.removeLocked(sess)
			count++
		}
	}
	for _, jti := range staleJTIs {
		if e, ok := s.jtis[jti]; ok && now.After(e.expiresAt) {
			delete(s.jtis, jti)
		}
	}
	return count
}

// Get returns a copy of the session behind refreshToken.
func (s *Store) Get(refreshToken string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[refreshToken]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ResolveJTI implements token.RevocationIndex.
func (s *Store) ResolveJTI(jti string) (known, live bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jtis[jti]
	if !ok {
		return false, false
	}
	_, live = s.byID[e.sessionID]
	return true, live
}

// newTokens generates an opaque refresh token and signs an access token.
func (s *Store) newTokens(email string) (string, token.Issued, error) {
	refresh, err := uuid.NewRandom()
	if err != nil {
		return "", token.Issued{}, fmt.Errorf("generating refresh token: %w", err)
	}
	access, err := s.codec.Issue(email)
	if err != nil {
		return "", token.Issued{}, fmt.Errorf("issuing access token: %w", err)
	}
	return refresh.String(), access, nil
}

// insertLocked stores sess and indexes its access token. Must be called with mu held.
func (s *Store) insertLocked(sess *Session, accessExpiresAt int64) {
	s.sessions[sess.RefreshToken] = sess
	s.byID[sess.ID] = sess.RefreshToken
	s.jtis[sess.AccessTokenJTI] = jtiEntry{
		sessionID: sess.ID,
		expiresAt: time.Unix(accessExpiresAt, 0),
	}
}

// removeLocked deletes sess. Its jti entry stays behind, now dangling, so the
// outstanding access token fails verification until it expires and is swept.
// Must be called with mu held.
func (s *Store) removeLocked(sess *Session) {
	delete(s.sessions, sess.RefreshToken)
	delete(s.byID, sess.ID)
}
