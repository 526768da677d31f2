package core

// StreakPolicy computes daily-streak transitions from two calendar days.
// Pure; days are UTC calendar days (see Date).
type StreakPolicy struct {
	// BonusXP is awarded when a streak extends to a consecutive day.
	BonusXP int64
}

// DefaultStreakPolicy awards 5 bonus XP per consecutive-day extension.
func DefaultStreakPolicy() StreakPolicy {
	return StreakPolicy{BonusXP: 5}
}

// StreakResult is the outcome of one streak transition.
type StreakResult struct {
	Current  int
	Longest  int
	BonusXP  int64
	Extended bool
}

// Transition applies activity on day today to a streak whose last activity
// was prevLast (nil for first-ever activity).
//
//	nil prevLast   -> current = 1, no bonus
//	same day       -> unchanged, no bonus (idempotent re-activity)
//	next day       -> current+1, bonus
//	gap > 1 day    -> reset to 1, no bonus
//	earlier day    -> ErrOutOfOrderEvent
func (p StreakPolicy) Transition(prevLast *Date, prevCurrent, prevLongest int, today Date) (StreakResult, error) {
	res := StreakResult{Current: prevCurrent, Longest: prevLongest}
	switch {
	case prevLast == nil:
		res.Current = 1
	default:
		switch diff := today.DaysSince(*prevLast); {
		case diff < 0:
			return StreakResult{}, ErrOutOfOrderEvent
		case diff == 0:
			// same day, nothing to do
		case diff == 1:
			res.Current = prevCurrent + 1
			res.BonusXP = p.BonusXP
			res.Extended = true
		default:
			res.Current = 1
		}
	}
	if res.Current > res.Longest {
		res.Longest = res.Current
	}
	return res, nil
}
