// Package session keeps one authenticated browser-like session per portal
// search: cookies, hidden form fields, the anti-forgery token and the
// answer to the current challenge.
package session

import (
	"courtfetch/internal/portal"
	"errors"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
)

// ErrSessionExpired is returned when the portal keeps rejecting a session
// even after it was refreshed.
var ErrSessionExpired = errors.New("session expired")

type State int

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateExpired
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateExpired:
		return "expired"
	case StateInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// Session is shared by every worker of a search. Requests run under Do,
// which holds a read lock, a refresh holds the write lock so all workers
// pause until the new handshake is done.
type Session struct {
	Profile portal.Profile

	http     *resty.Client
	requests sync.RWMutex

	mutex      sync.Mutex
	state      State
	generation uint64
	hidden     url.Values
	token      string
	pending    string
	entryURL   string
}

// Do runs fn with the session's client. fn must not call Refresh.
func (s *Session) Do(fn func(client *resty.Client) error) error {
	s.requests.RLock()
	defer s.requests.RUnlock()
	return fn(s.http)
}

func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Generation increases with every handshake, workers pass the generation
// they saw to Refresh so a session is only refreshed once per expiry.
func (s *Session) Generation() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.generation
}

// Token is the current anti-forgery token, empty when the portal has none.
func (s *Session) Token() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.token
}

// HiddenFields returns a copy of the hidden inputs of the entry page.
func (s *Session) HiddenFields() url.Values {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := url.Values{}
	for k, v := range s.hidden {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// EntryURL is the page the session was established on, it is sent as the
// referer of follow up requests.
func (s *Session) EntryURL() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.entryURL == "" {
		return s.Profile.URL(s.Profile.EntryPath)
	}
	return s.entryURL
}

// ExpiresHeuristically is set for portals that only validate an answer
// together with a query, whether the session is still good is inferred
// from the query response.
func (s *Session) ExpiresHeuristically() bool {
	return s.Profile.Verification == nil
}

// HasPendingAnswer reports whether an answer is waiting to be submitted.
func (s *Session) HasPendingAnswer() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pending != ""
}

// TakeAnswer returns the pending answer and forgets it, an answer is never
// submitted twice.
func (s *Session) TakeAnswer() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	answer := s.pending
	s.pending = ""
	return answer
}

// MarkExpired flags the session as rejected by the portal. It is a no-op
// when the session has been refreshed since generation.
func (s *Session) MarkExpired(generation uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.generation != generation || s.state != StateReady {
		return
	}
	s.state = StateExpired
}

func (s *Session) setState(state State) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = state
}
