package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mem "progresskit/adapters/memory"
	"progresskit/core"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *mem.Store) {
	t.Helper()
	store := mem.New()
	eng := New(store, NewEventBus(DispatchSync), opts)
	if err := eng.CreateUser(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	return eng, store
}

// cascadeCatalog: first_flashcard rewards 10 XP which itself satisfies a
// second badge, exercising the fixpoint loop.
func cascadeCatalog(t *testing.T) *core.BadgeCatalog {
	t.Helper()
	cat, err := core.NewBadgeCatalog([]core.BadgeDefinition{
		{ID: "first_flashcard", XPReward: 10, Earned: core.CounterAtLeast(core.CounterFlashcardsCreated, 1)},
		{ID: "xp_20", XPReward: 0, Earned: core.XPAtLeast(20)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestApplyFlashcardCascade(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: cascadeCatalog(t)})
	out, err := eng.Apply(context.Background(), core.NewFlashcardCreated("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if out.XPGained != 20 {
		t.Fatalf("xp gained = %d, want 20 (10 direct + 10 badge)", out.XPGained)
	}
	if len(out.NewBadges) != 2 || out.NewBadges[0] != "first_flashcard" || out.NewBadges[1] != "xp_20" {
		t.Fatalf("badges = %v", out.NewBadges)
	}
	if out.NewLevel != 1 || out.LeveledUp {
		t.Fatalf("level outcome: %+v", out)
	}

	st, err := eng.GetState(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.XP != 20 || st.Level != 1 || st.Counter(core.CounterFlashcardsCreated) != 1 {
		t.Fatalf("state: %+v", st)
	}
}

func TestApplyStreakTransitions(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: emptyCatalog(t)})
	ctx := context.Background()

	jan1 := core.NewDate(2024, time.January, 1)
	if _, err := eng.Apply(ctx, core.NewActivityOnDate("alice", jan1)); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Apply(ctx, core.NewActivityOnDate("alice", core.NewDate(2024, time.January, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if out.NewStreakCurrent != 2 || out.XPGained != 5 {
		t.Fatalf("consecutive day: %+v", out)
	}

	out, err = eng.Apply(ctx, core.NewActivityOnDate("alice", core.NewDate(2024, time.January, 4)))
	if err != nil {
		t.Fatal(err)
	}
	if out.NewStreakCurrent != 1 || out.XPGained != 0 {
		t.Fatalf("2-day gap should reset: %+v", out)
	}

	st, _ := eng.GetState(ctx, "alice")
	if st.StreakLongest != 2 {
		t.Fatalf("longest = %d, want 2", st.StreakLongest)
	}
}

func TestApplyOutOfOrderLeavesStateUnchanged(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: emptyCatalog(t)})
	ctx := context.Background()

	if _, err := eng.Apply(ctx, core.NewActivityOnDate("alice", core.NewDate(2024, time.January, 5))); err != nil {
		t.Fatal(err)
	}
	before, _ := eng.GetState(ctx, "alice")

	_, err := eng.Apply(ctx, core.NewActivityOnDate("alice", core.NewDate(2024, time.January, 3)))
	if !errors.Is(err, core.ErrOutOfOrderEvent) {
		t.Fatalf("want ErrOutOfOrderEvent, got %v", err)
	}

	after, _ := eng.GetState(ctx, "alice")
	if after.Version != before.Version || after.XP != before.XP || after.StreakCurrent != before.StreakCurrent {
		t.Fatalf("state changed: before %+v after %+v", before, after)
	}
}

func TestApplyLevelBoundaryInclusive(t *testing.T) {
	table, err := core.NewLevelTable([]int64{0, 100})
	if err != nil {
		t.Fatal(err)
	}
	eng, _ := newTestEngine(t, Options{
		Catalog: emptyCatalog(t),
		Levels:  table,
		Awards:  core.XPAwards{Flashcard: 50, Deck: 1, Comment: 1, QuizBase: 1, QuizPerCorrect: 1, PerfectBonus: 1},
	})
	ctx := context.Background()

	out, err := eng.Apply(ctx, core.NewFlashcardCreated("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if out.LeveledUp {
		t.Fatal("50 xp should not level up")
	}
	out, err = eng.Apply(ctx, core.NewFlashcardCreated("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.LeveledUp || out.NewLevel != 2 {
		t.Fatalf("xp exactly at threshold must promote: %+v", out)
	}
}

func TestApplyQuizCounters(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: emptyCatalog(t)})
	ctx := context.Background()

	if _, err := eng.Apply(ctx, core.NewQuizCompleted("alice", 3, 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Apply(ctx, core.NewQuizCompleted("alice", 5, 5)); err != nil {
		t.Fatal(err)
	}

	st, _ := eng.GetState(ctx, "alice")
	if st.Counter(core.CounterQuizzesTaken) != 2 {
		t.Fatalf("quizzes taken = %d", st.Counter(core.CounterQuizzesTaken))
	}
	if st.Counter(core.CounterPerfectQuizzes) != 1 {
		t.Fatalf("perfect quizzes = %d", st.Counter(core.CounterPerfectQuizzes))
	}
	// 20+2*3 for the first, 20+2*5+10 for the perfect one
	if st.XP != 26+40 {
		t.Fatalf("xp = %d", st.XP)
	}
}

func TestApplyInvalidEventRejectedPreMutation(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: emptyCatalog(t)})
	ctx := context.Background()

	_, err := eng.Apply(ctx, core.Event{Kind: "bogus", UserID: "alice"})
	if !errors.Is(err, core.ErrInvalidEvent) {
		t.Fatalf("want ErrInvalidEvent, got %v", err)
	}

	st, _ := eng.GetState(ctx, "alice")
	if st.Version != 0 {
		t.Fatal("invalid event mutated state")
	}
}

func TestApplyUnknownUserIsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: emptyCatalog(t)})
	_, err := eng.Apply(context.Background(), core.NewFlashcardCreated("nobody"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// conflictStore forces the first n compare-and-swaps to fail, simulating a
// raced writer.
type conflictStore struct {
	Store
	remaining int64
}

func (c *conflictStore) CompareAndSwap(ctx context.Context, user core.UserID, expected int64, next core.ProgressionState) error {
	if atomic.AddInt64(&c.remaining, -1) >= 0 {
		return core.ErrVersionConflict
	}
	return c.Store.CompareAndSwap(ctx, user, expected, next)
}

func TestApplyRetriesThroughConflicts(t *testing.T) {
	base := mem.New()
	if err := base.Create(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	store := &conflictStore{Store: base, remaining: 2}
	eng := New(store, NewEventBus(DispatchSync), Options{
		Catalog:     emptyCatalog(t),
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})

	out, err := eng.Apply(context.Background(), core.NewFlashcardCreated("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if out.XPGained != 10 {
		t.Fatalf("xp gained = %d", out.XPGained)
	}
	st, _ := eng.GetState(context.Background(), "alice")
	if st.Counter(core.CounterFlashcardsCreated) != 1 {
		t.Fatal("retry double-applied or dropped the event")
	}
}

func TestApplyGivesUpAfterMaxAttempts(t *testing.T) {
	base := mem.New()
	if err := base.Create(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	store := &conflictStore{Store: base, remaining: 1 << 30}
	eng := New(store, NewEventBus(DispatchSync), Options{
		Catalog:     emptyCatalog(t),
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
	})

	_, err := eng.Apply(context.Background(), core.NewFlashcardCreated("alice"))
	if !errors.Is(err, core.ErrConcurrentUpdateExceeded) {
		t.Fatalf("want ErrConcurrentUpdateExceeded, got %v", err)
	}
}

func TestApplyHonorsCancellationDuringBackoff(t *testing.T) {
	base := mem.New()
	if err := base.Create(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	store := &conflictStore{Store: base, remaining: 1 << 30}
	eng := New(store, NewEventBus(DispatchSync), Options{
		Catalog:     emptyCatalog(t),
		BackoffBase: time.Hour,
		BackoffCap:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := eng.Apply(ctx, core.NewFlashcardCreated("alice"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

// Concurrent applies for one user must not lose updates: final totals match
// a serial application of the same events.
func TestConcurrentAppliesLoseNothing(t *testing.T) {
	eng, _ := newTestEngine(t, Options{
		Catalog:     emptyCatalog(t),
		MaxAttempts: 50,
		BackoffBase: time.Microsecond,
		BackoffCap:  time.Millisecond,
	})
	ctx := context.Background()

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := eng.Apply(ctx, core.NewFlashcardCreated("alice")); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	st, err := eng.GetState(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Counter(core.CounterFlashcardsCreated) != workers*perWorker {
		t.Fatalf("counters = %d, want %d", st.Counter(core.CounterFlashcardsCreated), workers*perWorker)
	}
	if st.XP != int64(workers*perWorker)*10 {
		t.Fatalf("xp = %d", st.XP)
	}
	if st.Level != core.DefaultLevelTable().LevelFor(st.XP) {
		t.Fatal("level not derived from xp")
	}
	if st.Version != workers*perWorker {
		t.Fatalf("version = %d, want %d", st.Version, workers*perWorker)
	}
}

func TestBadgesNeverShrink(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Catalog: cascadeCatalog(t)})
	ctx := context.Background()

	if _, err := eng.Apply(ctx, core.NewFlashcardCreated("alice")); err != nil {
		t.Fatal(err)
	}
	first, _ := eng.GetState(ctx, "alice")

	for i := 0; i < 5; i++ {
		if _, err := eng.Apply(ctx, core.NewCommentPosted("alice")); err != nil {
			t.Fatal(err)
		}
		st, _ := eng.GetState(ctx, "alice")
		if len(st.Badges) < len(first.Badges) {
			t.Fatal("badge set shrank")
		}
		for id := range first.Badges {
			if !st.HasBadge(id) {
				t.Fatalf("badge %s lost", id)
			}
		}
	}
}

func TestNotificationsPublishedAfterCommit(t *testing.T) {
	store := mem.New()
	bus := NewEventBus(DispatchSync)
	eng := New(store, bus, Options{Catalog: cascadeCatalog(t)})
	ctx := context.Background()
	if err := eng.CreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	var badges []core.BadgeID
	var xpTotal int64
	eng.Subscribe(core.NotifyBadgeUnlocked, func(_ context.Context, n core.Notification) {
		badges = append(badges, n.Badge)
	})
	eng.Subscribe(core.NotifyXPGained, func(_ context.Context, n core.Notification) {
		xpTotal = n.XPTotal
	})

	if _, err := eng.Apply(ctx, core.NewFlashcardCreated("alice")); err != nil {
		t.Fatal(err)
	}
	if len(badges) != 2 {
		t.Fatalf("badge notifications = %v", badges)
	}
	if xpTotal != 20 {
		t.Fatalf("xp total in notification = %d", xpTotal)
	}
}

func emptyCatalog(t *testing.T) *core.BadgeCatalog {
	t.Helper()
	cat, err := core.NewBadgeCatalog(nil)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}
