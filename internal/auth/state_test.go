package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ExpiredAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{"zero expiry", Session{AccessToken: "a"}, true},
		{"in the past", Session{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}, true},
		{"exactly now", Session{AccessToken: "a", ExpiresAt: now}, true},
		{"in the future", Session{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.ExpiredAt(now))
		})
	}
}

func TestState_Lifecycle(t *testing.T) {
	s := NewState()
	assert.False(t, s.Session().Authenticated())

	s.BeginAttempt("verifier", "state-1")
	v, st := s.Attempt()
	assert.Equal(t, "verifier", v)
	assert.Equal(t, "state-1", st)

	session := Session{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Unix(1700000000, 0)}
	s.SetSession(session)
	assert.Equal(t, session, s.Session())

	s.DiscardAttempt()
	v, st = s.Attempt()
	assert.Empty(t, v)
	assert.Empty(t, st)
	assert.Equal(t, session, s.Session(), "discarding the attempt keeps the session")

	s.Clear()
	assert.Equal(t, Snapshot{Version: s.Snapshot().Version}, s.Snapshot())
}

func TestState_SnapshotVersion(t *testing.T) {
	s := NewState()
	before := s.Snapshot().Version

	s.SetSession(Session{AccessToken: "a"})
	s.ClearSession()

	assert.Equal(t, before+2, s.Snapshot().Version)
}

func TestState_SubscribeLatestValue(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.SetSession(Session{AccessToken: "first"})
	s.SetSession(Session{AccessToken: "second"})
	s.SetSession(Session{AccessToken: "third"})

	select {
	case snap := <-ch:
		assert.Equal(t, "third", snap.Session.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", snap)
	default:
	}
}

func TestState_SubscribeCancel(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")

	// Publishing after cancel must not block or panic.
	s.SetSession(Session{AccessToken: "a"})
}

func TestState_MultipleSubscribers(t *testing.T) {
	s := NewState()
	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	defer cancelB()

	s.BeginAttempt("v", "st")

	for _, ch := range []<-chan Snapshot{a, b} {
		snap := <-ch
		assert.Equal(t, "v", snap.Verifier)
		assert.Equal(t, "st", snap.AttemptState)
	}
}

func TestState_DiscardAttemptIf(t *testing.T) {
	s := NewState()
	s.BeginAttempt("V1", "S1")

	assert.False(t, s.DiscardAttemptIf(""))
	assert.False(t, s.DiscardAttemptIf("S0"))
	_, st := s.Attempt()
	assert.Equal(t, "S1", st)

	before := s.Snapshot().Version
	assert.True(t, s.DiscardAttemptIf("S1"))
	_, st = s.Attempt()
	assert.Empty(t, st)
	assert.Equal(t, before+1, s.Snapshot().Version)
}

func TestState_CompleteAttempt(t *testing.T) {
	s := NewState()
	s.BeginAttempt("V1", "S1")
	session := Session{AccessToken: "AT"}

	assert.False(t, s.CompleteAttempt("S0", session))
	assert.False(t, s.Session().Authenticated())

	assert.True(t, s.CompleteAttempt("S1", session))
	assert.Equal(t, session, s.Session())
	verifier, st := s.Attempt()
	assert.Empty(t, verifier)
	assert.Empty(t, st)

	assert.False(t, s.CompleteAttempt("S1", Session{AccessToken: "again"}), "an attempt completes once")
}
