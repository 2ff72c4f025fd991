package httphandler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

const (
	// SessionCookieName identifies the relay session.
	SessionCookieName = "keyquota_session"

	sessionTokenBytes = 32
	sessionTTL        = 24 * time.Hour
)

type session struct {
	token   string
	expires time.Time
}

// SessionStore holds per-session CSRF tokens in memory. Tokens do not survive
// a restart; clients call the session endpoint again.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]session{}, now: time.Now}
}

// Issue returns the CSRF token for the caller's session, starting a new
// session (and setting its cookie) when the request carries none or an
// expired one.
func (s *SessionStore) Issue(w http.ResponseWriter, r *http.Request) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpired(now)

	if c, err := r.Cookie(SessionCookieName); err == nil {
		if sess, ok := s.sessions[c.Value]; ok {
			return sess.token
		}
	}

	id := randomHex()
	token := randomHex()
	s.sessions[id] = session{token: token, expires: now.Add(sessionTTL)}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return token
}

// Validate reports whether token matches the token of the request's session.
func (s *SessionStore) Validate(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return false
	}

	s.mu.Lock()
	sess, ok := s.sessions[c.Value]
	s.mu.Unlock()

	if !ok || s.now().After(sess.expires) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.token), []byte(token)) == 1
}

func (s *SessionStore) purgeExpired(now time.Time) {
	for id, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, id)
		}
	}
}

func randomHex() string {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("session: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}
