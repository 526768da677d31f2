package core

import "fmt"

// Predicate decides whether a badge is earned for a given state. Predicates
// must be pure, O(1), and monotone: once true for a state they stay true for
// any state reachable by further activity. That lets the engine test only
// not-yet-earned badges and guarantees a badge is never lost.
type Predicate func(ProgressionState) bool

// BadgeDefinition is one immutable catalog entry.
type BadgeDefinition struct {
	ID       BadgeID
	XPReward int64
	Earned   Predicate
}

// BadgeCatalog is the process-wide registry of badge definitions, loaded
// once at startup and safe for concurrent readers.
type BadgeCatalog struct {
	defs []BadgeDefinition
	byID map[BadgeID]int
}

// NewBadgeCatalog builds a catalog. Duplicate or invalid ids and nil
// predicates are configuration errors and fail the load.
func NewBadgeCatalog(defs []BadgeDefinition) (*BadgeCatalog, error) {
	c := &BadgeCatalog{
		defs: append([]BadgeDefinition(nil), defs...),
		byID: make(map[BadgeID]int, len(defs)),
	}
	for i, d := range c.defs {
		if err := ValidateBadgeID(d.ID); err != nil {
			return nil, fmt.Errorf("badge %q: %w", d.ID, err)
		}
		if d.XPReward < 0 {
			return nil, fmt.Errorf("badge %q: negative xp reward", d.ID)
		}
		if d.Earned == nil {
			return nil, fmt.Errorf("badge %q: nil predicate", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %q", d.ID)
		}
		c.byID[d.ID] = i
	}
	return c, nil
}

// Get returns the definition for id.
func (c *BadgeCatalog) Get(id BadgeID) (BadgeDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *BadgeCatalog) Len() int { return len(c.defs) }

// All returns the definitions in declaration order.
func (c *BadgeCatalog) All() []BadgeDefinition {
	return append([]BadgeDefinition(nil), c.defs...)
}

// EvaluateNewlyEarned returns, in declaration order, every badge not yet in
// state.Badges whose predicate holds. Declaration order keeps cascade
// results deterministic.
func (c *BadgeCatalog) EvaluateNewlyEarned(state ProgressionState) []BadgeDefinition {
	var earned []BadgeDefinition
	for _, d := range c.defs {
		if state.HasBadge(d.ID) {
			continue
		}
		if d.Earned(state) {
			earned = append(earned, d)
		}
	}
	return earned
}

// CounterAtLeast is a monotone predicate over a single counter.
func CounterAtLeast(kind CounterKind, n int64) Predicate {
	return func(s ProgressionState) bool { return s.Counter(kind) >= n }
}

// XPAtLeast is a monotone predicate over total XP.
func XPAtLeast(n int64) Predicate {
	return func(s ProgressionState) bool { return s.XP >= n }
}

// LongestStreakAtLeast is a monotone predicate over the longest streak.
// The current streak resets and must not be used in predicates.
func LongestStreakAtLeast(n int) Predicate {
	return func(s ProgressionState) bool { return s.StreakLongest >= n }
}

// LevelAtLeast is a monotone predicate over the derived level.
func LevelAtLeast(n int) Predicate {
	return func(s ProgressionState) bool { return s.Level >= n }
}

// DefaultBadgeCatalog is the stock catalog used when no custom one is
// supplied.
func DefaultBadgeCatalog() *BadgeCatalog {
	c, err := NewBadgeCatalog([]BadgeDefinition{
		{ID: "first_flashcard", XPReward: 10, Earned: CounterAtLeast(CounterFlashcardsCreated, 1)},
		{ID: "card_collector_50", XPReward: 25, Earned: CounterAtLeast(CounterFlashcardsCreated, 50)},
		{ID: "card_collector_250", XPReward: 100, Earned: CounterAtLeast(CounterFlashcardsCreated, 250)},
		{ID: "first_deck", XPReward: 15, Earned: CounterAtLeast(CounterDecksCreated, 1)},
		{ID: "deck_architect_10", XPReward: 50, Earned: CounterAtLeast(CounterDecksCreated, 10)},
		{ID: "first_quiz", XPReward: 10, Earned: CounterAtLeast(CounterQuizzesTaken, 1)},
		{ID: "quiz_veteran_25", XPReward: 50, Earned: CounterAtLeast(CounterQuizzesTaken, 25)},
		{ID: "perfectionist", XPReward: 20, Earned: CounterAtLeast(CounterPerfectQuizzes, 1)},
		{ID: "flawless_10", XPReward: 100, Earned: CounterAtLeast(CounterPerfectQuizzes, 10)},
		{ID: "first_comment", XPReward: 5, Earned: CounterAtLeast(CounterCommentsPosted, 1)},
		{ID: "conversationalist_50", XPReward: 40, Earned: CounterAtLeast(CounterCommentsPosted, 50)},
		{ID: "week_streak", XPReward: 30, Earned: LongestStreakAtLeast(7)},
		{ID: "month_streak", XPReward: 150, Earned: LongestStreakAtLeast(30)},
		{ID: "xp_1000", XPReward: 50, Earned: XPAtLeast(1000)},
		{ID: "level_5", XPReward: 25, Earned: LevelAtLeast(5)},
	})
	if err != nil {
		panic(err)
	}
	return c
}
