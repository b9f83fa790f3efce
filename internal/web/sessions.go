package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askql/askql/internal/session"
)

const CookieName = "askql_session"

// SessionStore hands every browser its own conversation. Conversations share
// the database pool and generation backends of base but never their history.
type SessionStore struct {
	mu       sync.Mutex
	base     *session.Orchestrator
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	conversation *session.Orchestrator
	lastSeen     time.Time
}

func NewSessionStore(base *session.Orchestrator, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{
		base:     base,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*sessionEntry{},
	}
}

// Resolve returns the caller's conversation, starting a new one and setting
// the cookie when the request carries no live session id.
func (s *SessionStore) Resolve(w http.ResponseWriter, r *http.Request) (*session.Orchestrator, string) {
	now := s.now()
	if cookie, err := r.Cookie(CookieName); err == nil {
		if conversation, ok := s.lookup(cookie.Value, now); ok {
			return conversation, cookie.Value
		}
	}

	id := uuid.NewString()
	conversation := s.base.Fork()

	s.mu.Lock()
	s.sweepLocked(now)
	s.sessions[id] = &sessionEntry{conversation: conversation, lastSeen: now}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl / time.Second),
	})
	return conversation, id
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) lookup(id string, now time.Time) (*session.Orchestrator, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	entry.lastSeen = now
	return entry.conversation, true
}

func (s *SessionStore) sweepLocked(now time.Time) {
	for id, entry := range s.sessions {
		if now.Sub(entry.lastSeen) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
