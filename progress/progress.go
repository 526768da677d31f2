// Package progress is the top-level constructor for the progression engine,
// wiring storage, policies, notifications, and metrics behind functional
// options.
package progress

import (
	"context"
	"log/slog"
	"time"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/integrations/webhook"
)

// Option configures the engine builder.
type Option func(*config)

type config struct {
	store engine.Store
	mode  engine.DispatchMode
	opts  engine.Options
	sink  *webhook.Sink
}

// WithStore sets the persistence adapter.
func WithStore(s engine.Store) Option { return func(c *config) { c.store = s } }

// WithCatalog sets the badge catalog.
func WithCatalog(cat *core.BadgeCatalog) Option { return func(c *config) { c.opts.Catalog = cat } }

// WithLevels sets the level threshold table.
func WithLevels(t *core.LevelTable) Option { return func(c *config) { c.opts.Levels = t } }

// WithStreakPolicy sets the streak policy.
func WithStreakPolicy(p core.StreakPolicy) Option { return func(c *config) { c.opts.Streak = p } }

// WithAwards sets the direct XP amounts per event kind.
func WithAwards(a core.XPAwards) Option { return func(c *config) { c.opts.Awards = a } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m engine.Metrics) Option { return func(c *config) { c.opts.Metrics = m } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.opts.Logger = l } }

// WithDispatchMode selects sync or async notification dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRetry tunes the compare-and-swap retry loop.
func WithRetry(maxAttempts int, backoffBase, backoffCap time.Duration) Option {
	return func(c *config) {
		c.opts.MaxAttempts = maxAttempts
		c.opts.BackoffBase = backoffBase
		c.opts.BackoffCap = backoffCap
	}
}

// WithWebhooks posts every outcome notification to the given endpoints.
func WithWebhooks(sink *webhook.Sink) Option { return func(c *config) { c.sink = sink } }

// New builds a configured Engine. If not provided, defaults are used:
//   - store: in-memory
//   - catalog/levels/streak/awards: the stock defaults
//   - dispatch: async
func New(opts ...Option) *engine.Engine {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	if cfg.sink != nil {
		// Bridge all outcome notifications to the webhook sink
		for _, typ := range []core.NotificationType{
			core.NotifyXPGained,
			core.NotifyBadgeUnlocked,
			core.NotifyLevelUp,
			core.NotifyStreakExtended,
		} {
			bus.Subscribe(typ, func(_ context.Context, n core.Notification) { cfg.sink.OnNotification(n) })
		}
	}
	return engine.New(cfg.store, bus, cfg.opts)
}
