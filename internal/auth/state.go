package auth

import (
	"sync"
	"time"
)

// Session is the set of credentials for an authenticated user.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticated reports whether the session carries an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// ExpiredAt reports whether the access token must be refreshed before use at t.
// A zero expiry counts as already expired.
func (s Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Verifier     string
	AttemptState string
	Session      Session
	Version      uint64
}

// State holds the in-flight authorization attempt and the current session.
// It is owned by whoever constructs it and passed to every component that needs it.
// Every mutation is published to subscribers.
type State struct {
	// loginMu serializes attempt changes with the durable writes that follow them.
	loginMu sync.Mutex

	mu           sync.RWMutex
	verifier     string
	attemptState string
	session      Session
	version      uint64

	subs   map[int]chan Snapshot
	nextID int
}

// NewState returns an empty State.
func NewState() *State {
	return &State{subs: make(map[int]chan Snapshot)}
}

// BeginAttempt records the verifier and anti-forgery state for a new login,
// replacing any previous attempt.
func (s *State) BeginAttempt(verifier, state string) {
	s.mutate(func() {
		s.verifier = verifier
		s.attemptState = state
	})
}

// Attempt returns the verifier and anti-forgery state of the live attempt.
func (s *State) Attempt() (verifier, state string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifier, s.attemptState
}

// DiscardAttempt forgets the live attempt. The verifier is single-use.
func (s *State) DiscardAttempt() {
	s.mutate(func() {
		s.verifier = ""
		s.attemptState = ""
	})
}

// DiscardAttemptIf forgets the live attempt only while it still carries state.
// It reports whether anything was discarded.
func (s *State) DiscardAttemptIf(state string) bool {
	if state == "" {
		return false
	}
	return s.mutateIf(func() bool {
		if s.attemptState != state {
			return false
		}
		s.verifier = ""
		s.attemptState = ""
		return true
	})
}

// CompleteAttempt installs session and consumes the attempt, provided the
// live attempt still carries state. A newer attempt leaves everything untouched.
func (s *State) CompleteAttempt(state string, session Session) bool {
	if state == "" {
		return false
	}
	return s.mutateIf(func() bool {
		if s.attemptState != state {
			return false
		}
		s.verifier = ""
		s.attemptState = ""
		s.session = session
		return true
	})
}

// Session returns the current session.
func (s *State) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SetSession replaces the current session.
func (s *State) SetSession(session Session) {
	s.mutate(func() {
		s.session = session
	})
}

// ClearSession drops the current session.
func (s *State) ClearSession() {
	s.mutate(func() {
		s.session = Session{}
	})
}

// Clear drops both the live attempt and the session.
func (s *State) Clear() {
	s.mutate(func() {
		s.verifier = ""
		s.attemptState = ""
		s.session = Session{}
	})
}

// Snapshot returns a copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that always holds the most recent snapshot
// published after the call, and a function that ends the subscription.
// Slow readers skip intermediate snapshots and only see the latest one.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

func (s *State) mutate(fn func()) {
	s.mutateIf(func() bool {
		fn()
		return true
	})
}

// mutateIf applies fn and publishes a snapshot only when fn reports a change.
func (s *State) mutateIf(fn func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn() {
		return false
	}
	s.version++

	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return true
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Verifier:     s.verifier,
		AttemptState: s.attemptState,
		Session:      s.session,
		Version:      s.version,
	}
}
