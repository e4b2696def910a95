package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	cooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ashby_rate_limit_cooldown_seconds",
		Help: "Length of the most recently recorded upstream cooldown window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ashby_rate_limit_blocks_total",
		Help: "Total number of cooldown windows recorded after upstream 429 responses",
	})
)

// Tracker records upstream cooldowns and reports how long callers must wait.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns a snapshot of the shared cooldown.
func (t *Tracker) GetState(ctx context.Context) (CooldownState, error) {
	until, err := t.store.BlockedUntil(ctx)
	if err != nil {
		return CooldownState{}, fmt.Errorf("get cooldown state: %w", err)
	}
	return CooldownState{BlockedUntil: until, ObservedAt: t.now()}, nil
}

// Block records that upstream asked callers to back off for wait.
func (t *Tracker) Block(ctx context.Context, wait time.Duration) error {
	wait = clampWait(wait)
	if wait == 0 {
		return nil
	}

	until := t.now().Add(wait)
	if err := t.store.Block(ctx, until); err != nil {
		return err
	}

	rateLimitBlocksTotal.Inc()
	cooldownSeconds.Set(wait.Seconds())

	t.logger.Warn().
		Dur("wait", wait).
		Time("blocked_until", until).
		Msg("Upstream cooldown recorded")

	return nil
}

// Remaining returns how long callers must still wait before the next
// request. Store failures are returned with a zero wait so callers can
// choose to proceed.
func (t *Tracker) Remaining(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return 0, err
	}
	return state.Remaining(), nil
}
