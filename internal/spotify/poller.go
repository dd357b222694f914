package spotify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/metrics"
)

const (
	// DefaultPollInterval is the pause between successful polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxBackoff caps the pause after repeated failures.
	DefaultMaxBackoff = time.Minute
)

// NowPlayingFetcher reports current playback.
type NowPlayingFetcher interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error)
}

// TokenSource hands out usable access tokens and can force a refresh.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (auth.Session, error)
}

// Update is the result of one poll.
type Update struct {
	NowPlaying *NowPlaying // nil unless Outcome is OutcomeOK
	Outcome    Outcome
	Err        error
	At         time.Time
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Poller repeatedly queries current playback for as long as a session exists.
type Poller struct {
	fetcher    NowPlayingFetcher
	tokens     TokenSource
	state      *auth.State
	interval   time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	latest  Update
	hasData bool
	updates chan Update
}

// NewPoller creates a Poller.
func NewPoller(fetcher NowPlayingFetcher, tokens TokenSource, state *auth.State, cfg PollerConfig) *Poller {
	p := &Poller{
		fetcher:    fetcher,
		tokens:     tokens,
		state:      state,
		interval:   cfg.Interval,
		maxBackoff: cfg.MaxBackoff,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		updates:    make(chan Update, 1),
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.maxBackoff < p.interval {
		p.maxBackoff = max(DefaultMaxBackoff, p.interval)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Latest returns the most recent update, if any poll has completed.
func (p *Poller) Latest() (Update, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.hasData
}

// Updates delivers the most recent update. Intermediate updates are dropped
// when the reader falls behind. Intended for a single reader.
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

// Watch runs the poller for every session that appears until ctx is done.
func (p *Poller) Watch(ctx context.Context) error {
	snaps, cancel := p.state.Subscribe()
	defer cancel()

	for {
		if p.state.Session().Authenticated() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, auth.ErrNotAuthenticated) {
				return err
			}
			continue
		}

		p.logger.Debug("waiting for a session")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-snaps:
		}
	}
}

// Run polls until the session is cleared, returning nil, or until ctx is
// done, returning its error. It returns auth.ErrNotAuthenticated at once when
// there is no session.
func (p *Poller) Run(ctx context.Context) error {
	// Subscribe before checking so a clear in between is still observed.
	snaps, cancel := p.state.Subscribe()
	defer cancel()

	if !p.state.Session().Authenticated() {
		return auth.ErrNotAuthenticated
	}

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		for snap := range snaps {
			if !snap.Session.Authenticated() {
				stop()
				return
			}
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = p.maxBackoff

	p.logger.Info("now-playing poller started", zap.Duration("interval", p.interval))
	defer p.logger.Info("now-playing poller stopped")

	for {
		update := p.poll(sessionCtx)
		if sessionCtx.Err() != nil {
			break
		}
		p.publish(update)

		wait := p.interval
		if update.Outcome == OutcomeTransportError {
			wait = bo.NextBackOff()
			if wait == backoff.Stop {
				wait = p.maxBackoff
			}
			p.logger.Warn("poll failed, backing off", zap.Duration("wait", wait), zap.Error(update.Err))
		} else {
			bo.Reset()
		}

		if !sleep(sessionCtx, wait) {
			break
		}
	}

	return ctx.Err()
}

// poll performs one query. A rejected token triggers a single forced refresh
// and retry.
func (p *Poller) poll(ctx context.Context) Update {
	np, err := p.fetch(ctx)
	if errors.Is(err, ErrUnauthorized) {
		p.logger.Info("access token rejected, forcing refresh")
		if _, rerr := p.tokens.Refresh(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			np, err = p.fetch(ctx)
		}
	}

	outcome := Classify(err)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		outcome = OutcomeUnauthorized
	}
	p.metrics.RecordPollIteration(string(outcome))

	update := Update{Outcome: outcome, Err: err, At: time.Now()}
	if outcome == OutcomeOK {
		update.NowPlaying = np
	}
	return update
}

func (p *Poller) fetch(ctx context.Context) (*NowPlaying, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return p.fetcher.CurrentlyPlaying(ctx, token)
}

func (p *Poller) publish(u Update) {
	p.mu.Lock()
	p.latest = u
	p.hasData = true
	p.mu.Unlock()

	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- u:
	default:
	}
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
