package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRefreshing counts refresh grants and returns a canned token.
type fakeRefreshing struct {
	mu    sync.Mutex
	token *TokenResponse
	err   error
	calls int
	got   string
	delay time.Duration
}

func (f *fakeRefreshing) Refresh(_ context.Context, refreshToken string) (*TokenResponse, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = refreshToken
	return f.token, f.err
}

func (f *fakeRefreshing) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRefresher_AccessTokenFresh(t *testing.T) {
	state := NewState()
	state.SetSession(Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: fixedNow.Add(time.Hour)})
	client := &fakeRefreshing{}

	r := NewRefresher(state, newTestStore(t), client, nil, WithClock(func() time.Time { return fixedNow }))

	token, err := r.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT", token)
	assert.Zero(t, client.Calls())
}

func TestRefresher_AccessTokenExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		rotated   string
		wantRT    string
	}{
		{"expired, refresh token kept", fixedNow.Add(-time.Minute), "", "RT"},
		{"inside skew, refresh token rotated", fixedNow.Add(10 * time.Second), "RT2", "RT2"},
		{"zero expiry", time.Time{}, "", "RT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			state := NewState()
			store := newTestStore(t)
			state.SetSession(Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: tt.expiresAt})

			client := &fakeRefreshing{token: &TokenResponse{
				AccessToken:  "AT2",
				RefreshToken: tt.rotated,
				ExpiresAt:    fixedNow.Add(time.Hour),
			}}
			r := NewRefresher(state, store, client, nil, WithClock(func() time.Time { return fixedNow }))

			token, err := r.AccessToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "AT2", token)
			assert.Equal(t, "RT", client.got)

			session := state.Session()
			assert.Equal(t, "AT2", session.AccessToken)
			assert.Equal(t, tt.wantRT, session.RefreshToken)
			assert.Equal(t, fixedNow.Add(time.Hour), session.ExpiresAt)

			persisted, err := LoadSession(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, "AT2", persisted.AccessToken)
			assert.Equal(t, tt.wantRT, persisted.RefreshToken)
		})
	}
}

func TestRefresher_NotAuthenticated(t *testing.T) {
	r := NewRefresher(NewState(), newTestStore(t), &fakeRefreshing{}, nil)

	_, err := r.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefresher_RefreshFailureKeepsSession(t *testing.T) {
	state := NewState()
	original := Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: fixedNow.Add(-time.Minute)}
	state.SetSession(original)

	r := NewRefresher(state, newTestStore(t), &fakeRefreshing{err: ErrTokenEndpoint}, nil,
		WithClock(func() time.Time { return fixedNow }))

	_, err := r.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrTokenEndpoint)
	assert.Equal(t, original, state.Session())
}

func TestRefresher_ConcurrentCallersShareOneGrant(t *testing.T) {
	state := NewState()
	state.SetSession(Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: fixedNow.Add(-time.Minute)})

	client := &fakeRefreshing{
		token: &TokenResponse{AccessToken: "AT2", ExpiresAt: fixedNow.Add(time.Hour)},
		delay: 20 * time.Millisecond,
	}
	r := NewRefresher(state, newTestStore(t), client, nil, WithClock(func() time.Time { return fixedNow }))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := r.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "AT2", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, client.Calls())
}

func TestRefresher_ForcedRefresh(t *testing.T) {
	state := NewState()
	state.SetSession(Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: fixedNow.Add(time.Hour)})
	client := &fakeRefreshing{token: &TokenResponse{AccessToken: "AT2", ExpiresAt: fixedNow.Add(2 * time.Hour)}}

	r := NewRefresher(state, newTestStore(t), client, nil, WithSkew(0))

	session, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT2", session.AccessToken)
	assert.Equal(t, "RT", session.RefreshToken)
	assert.Equal(t, 1, client.Calls())
}

func TestRefresher_RestoreAndLogout(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saved := Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Unix(1700000000, 0)}
	require.NoError(t, SaveSession(ctx, store, saved))

	state := NewState()
	r := NewRefresher(state, store, &fakeRefreshing{}, nil)

	restored, err := r.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AT", restored.AccessToken)
	assert.Equal(t, "AT", state.Session().AccessToken)
	assert.True(t, saved.ExpiresAt.Equal(state.Session().ExpiresAt))

	require.NoError(t, r.Logout(ctx))
	assert.False(t, state.Session().Authenticated())

	again, err := LoadSession(ctx, store)
	require.NoError(t, err)
	assert.False(t, again.Authenticated())
}

func TestRefresher_RestoreEmpty(t *testing.T) {
	state := NewState()
	before := state.Snapshot().Version

	session, err := NewRefresher(state, newTestStore(t), &fakeRefreshing{}, nil).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, session.Authenticated())
	assert.Equal(t, before, state.Snapshot().Version, "nothing published when nothing is stored")
}
