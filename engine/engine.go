package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"progresskit/core"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 10 * time.Millisecond
	defaultBackoffCap  = 200 * time.Millisecond
)

// Options tunes an Engine. Zero fields fall back to defaults.
type Options struct {
	Catalog     *core.BadgeCatalog
	Levels      *core.LevelTable
	Streak      core.StreakPolicy
	Awards      core.XPAwards
	Metrics     Metrics
	Logger      *slog.Logger
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Engine turns progression events into atomic state transitions. It holds no
// mutable shared state: every Apply is a pure computation on a loaded
// snapshot followed by one compare-and-swap, so a single Engine is safe for
// any number of concurrent callers.
type Engine struct {
	store       Store
	bus         *EventBus
	catalog     *core.BadgeCatalog
	levels      *core.LevelTable
	streak      core.StreakPolicy
	awards      core.XPAwards
	metrics     Metrics
	log         *slog.Logger
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// New builds an Engine over a store and notification bus.
func New(store Store, bus *EventBus, opts Options) *Engine {
	if store == nil || bus == nil {
		panic("engine.New requires non-nil store and bus")
	}
	e := &Engine{
		store:       store,
		bus:         bus,
		catalog:     opts.Catalog,
		levels:      opts.Levels,
		streak:      opts.Streak,
		awards:      opts.Awards,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
	}
	if e.catalog == nil {
		e.catalog = core.DefaultBadgeCatalog()
	}
	if e.levels == nil {
		e.levels = core.DefaultLevelTable()
	}
	if e.streak == (core.StreakPolicy{}) {
		e.streak = core.DefaultStreakPolicy()
	}
	if e.awards == (core.XPAwards{}) {
		e.awards = core.DefaultXPAwards()
	}
	if e.metrics == nil {
		e.metrics = NopMetrics()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	if e.backoffBase <= 0 {
		e.backoffBase = defaultBackoffBase
	}
	if e.backoffCap <= 0 {
		e.backoffCap = defaultBackoffCap
	}
	return e
}

// Outcome describes what a committed Apply changed, for toasts and
// notification layers.
type Outcome struct {
	NewBadges        []core.BadgeID `json:"new_badges,omitempty"`
	XPGained         int64          `json:"xp_gained"`
	LeveledUp        bool           `json:"leveled_up"`
	NewLevel         int            `json:"new_level"`
	NewStreakCurrent int            `json:"new_streak_current"`
}

// Apply executes one progression event as a single atomic transition.
//
// Each attempt loads the current record, computes the event's deltas plus
// any streak transition on a working copy, derives the level, cascades badge
// rewards to a fixpoint, and commits with a compare-and-swap. A version
// conflict discards the working copy and re-runs the attempt against a fresh
// load; the deltas are event-specific absolute increments, so re-applying to
// a newer snapshot is correct. After maxAttempts conflicts Apply fails with
// core.ErrConcurrentUpdateExceeded. Nothing is ever partially written.
func (e *Engine) Apply(ctx context.Context, event core.Event) (Outcome, error) {
	if err := event.Validate(); err != nil {
		e.metrics.ApplyRejected(event.Kind)
		return Outcome{}, fmt.Errorf("%w: %s", core.ErrInvalidEvent, err)
	}
	user, err := core.NormalizeUserID(event.UserID)
	if err != nil {
		e.metrics.ApplyRejected(event.Kind)
		return Outcome{}, fmt.Errorf("%w: %s", core.ErrInvalidEvent, err)
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return Outcome{}, err
			}
		}

		prev, err := e.store.Load(ctx, user)
		if err != nil {
			return Outcome{}, err
		}

		working, outcome, err := e.transition(prev, event)
		if err != nil {
			e.metrics.ApplyRejected(event.Kind)
			return Outcome{}, err
		}

		err = e.store.CompareAndSwap(ctx, user, prev.Version, working)
		if errors.Is(err, core.ErrVersionConflict) {
			e.metrics.VersionConflict()
			e.log.Debug("version conflict, retrying",
				"user", user, "event", event.Kind, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return Outcome{}, err
		}

		e.metrics.ApplyCommitted(event.Kind)
		e.publish(ctx, event, prev, working, outcome)
		return outcome, nil
	}

	e.metrics.RetriesExhausted()
	e.log.Warn("apply gave up under contention",
		"user", user, "event", event.Kind, "attempts", e.maxAttempts)
	return Outcome{}, core.ErrConcurrentUpdateExceeded
}

// transition computes the post-event state on a clone of prev. Pure except
// for reading the injected policies; never touches the store.
func (e *Engine) transition(prev core.ProgressionState, event core.Event) (core.ProgressionState, Outcome, error) {
	working := prev.Clone()

	switch event.Kind {
	case core.EventFlashcardCreated:
		working.Counters[core.CounterFlashcardsCreated]++
		working.XP += e.awards.Flashcard
	case core.EventDeckCreated:
		working.Counters[core.CounterDecksCreated]++
		working.XP += e.awards.Deck
	case core.EventCommentPosted:
		working.Counters[core.CounterCommentsPosted]++
		working.XP += e.awards.Comment
	case core.EventQuizCompleted:
		working.Counters[core.CounterQuizzesTaken]++
		if event.Correct == event.Total {
			working.Counters[core.CounterPerfectQuizzes]++
		}
		working.XP += e.awards.QuizXP(event.Correct, event.Total)
	case core.EventActivityOnDate:
		res, err := e.streak.Transition(working.LastActivityDate, working.StreakCurrent, working.StreakLongest, *event.Date)
		if err != nil {
			return core.ProgressionState{}, Outcome{}, err
		}
		working.StreakCurrent = res.Current
		working.StreakLongest = res.Longest
		working.XP += res.BonusXP
		day := *event.Date
		working.LastActivityDate = &day
	default:
		return core.ProgressionState{}, Outcome{}, core.ErrInvalidEvent
	}

	working.Level = e.levels.LevelFor(working.XP)

	// Cascade: a badge reward can cross a level boundary or satisfy another
	// badge, so re-evaluate until a fixpoint. Bounded by catalog size since
	// the badge set only grows.
	var newBadges []core.BadgeID
	for {
		earned := e.catalog.EvaluateNewlyEarned(working)
		if len(earned) == 0 {
			break
		}
		for _, def := range earned {
			working.Badges[def.ID] = struct{}{}
			working.XP += def.XPReward
			newBadges = append(newBadges, def.ID)
		}
		working.Level = e.levels.LevelFor(working.XP)
	}

	working.Version = prev.Version + 1
	working.Updated = time.Now().UTC()

	outcome := Outcome{
		NewBadges:        newBadges,
		XPGained:         working.XP - prev.XP,
		LeveledUp:        working.Level > prev.Level,
		NewLevel:         working.Level,
		NewStreakCurrent: working.StreakCurrent,
	}
	return working, outcome, nil
}

// publish emits outcome notifications after a successful commit.
func (e *Engine) publish(ctx context.Context, event core.Event, prev, next core.ProgressionState, out Outcome) {
	if out.XPGained != 0 {
		e.bus.Publish(ctx, core.NewXPGained(next.UserID, event.ID, out.XPGained, next.XP))
	}
	for _, id := range out.NewBadges {
		e.metrics.BadgeUnlocked(id)
		e.bus.Publish(ctx, core.NewBadgeUnlocked(next.UserID, event.ID, id))
	}
	if out.LeveledUp {
		e.metrics.LevelUp(out.NewLevel)
		e.bus.Publish(ctx, core.NewLevelUp(next.UserID, event.ID, out.NewLevel))
	}
	if next.StreakCurrent > prev.StreakCurrent {
		e.bus.Publish(ctx, core.NewStreakExtended(next.UserID, event.ID, next.StreakCurrent))
	}
}

// backoff sleeps exponentially (base * 2^(attempt-1), capped), aborting
// early on context cancellation.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	d := e.backoffBase << (attempt - 1)
	if d > e.backoffCap {
		d = e.backoffCap
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetState returns a read-only snapshot of the user's progression. It
// performs no mutation and may be served from a stale replica.
func (e *Engine) GetState(ctx context.Context, user core.UserID) (core.ProgressionState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.ProgressionState{}, err
	}
	return e.store.Load(ctx, normalized)
}

// CreateUser creates the zeroed progression record at registration time.
func (e *Engine) CreateUser(ctx context.Context, user core.UserID) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	return e.store.Create(ctx, normalized)
}

// DeleteUser removes the progression record alongside account deletion.
func (e *Engine) DeleteUser(ctx context.Context, user core.UserID) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	return e.store.Delete(ctx, normalized)
}

// Subscribe is a convenience passthrough to the notification bus.
func (e *Engine) Subscribe(typ core.NotificationType, handler func(context.Context, core.Notification)) func() {
	return e.bus.Subscribe(typ, handler)
}

// Close stops the notification bus workers.
func (e *Engine) Close() { e.bus.Close() }
