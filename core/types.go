package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the progression domain.
type UserID string

// CounterKind names one of the activity counters tracked per user.
type CounterKind string

const (
	CounterFlashcardsCreated CounterKind = "flashcards_created"
	CounterDecksCreated      CounterKind = "decks_created"
	CounterQuizzesTaken      CounterKind = "quizzes_taken"
	CounterPerfectQuizzes    CounterKind = "perfect_quizzes"
	CounterCommentsPosted    CounterKind = "comments_posted"
)

// BadgeID is a badge identifier from the catalog.
type BadgeID string

// ProgressionState is the durable per-user progression record. The engine
// owns it exclusively; all mutation goes through Engine.Apply. Level is
// always derived from XP, never stored independently of it.
type ProgressionState struct {
	UserID           UserID                `json:"user_id"`
	XP               int64                 `json:"xp"`
	Level            int                   `json:"level"`
	StreakCurrent    int                   `json:"streak_current"`
	StreakLongest    int                   `json:"streak_longest"`
	LastActivityDate *Date                 `json:"last_activity_date,omitempty"`
	Counters         map[CounterKind]int64 `json:"counters"`
	Badges           map[BadgeID]struct{}  `json:"badges"`
	Version          int64                 `json:"version"`
	Updated          time.Time             `json:"updated"`
}

// NewState returns a zeroed state for a freshly registered user (level 1).
func NewState(user UserID) ProgressionState {
	return ProgressionState{
		UserID:   user,
		Level:    1,
		Counters: map[CounterKind]int64{},
		Badges:   map[BadgeID]struct{}{},
		Updated:  time.Now().UTC(),
	}
}

// Clone returns a deep copy of the state. The engine computes every attempt
// on a clone so a failed compare-and-swap never leaks partial mutation.
func (s ProgressionState) Clone() ProgressionState {
	cp := s
	cp.Counters = make(map[CounterKind]int64, len(s.Counters))
	for k, v := range s.Counters {
		cp.Counters[k] = v
	}
	cp.Badges = make(map[BadgeID]struct{}, len(s.Badges))
	for k := range s.Badges {
		cp.Badges[k] = struct{}{}
	}
	if s.LastActivityDate != nil {
		d := *s.LastActivityDate
		cp.LastActivityDate = &d
	}
	return cp
}

// HasBadge reports whether the badge has been earned.
func (s ProgressionState) HasBadge(id BadgeID) bool {
	_, ok := s.Badges[id]
	return ok
}

// Counter returns the named counter, zero if never incremented.
func (s ProgressionState) Counter(kind CounterKind) int64 {
	return s.Counters[kind]
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateBadgeID ensures non-empty badge id with simple charset check.
func ValidateBadgeID(b BadgeID) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return errors.New("empty badge id")
	}
	// simple check: alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge id")
	}
	return nil
}
