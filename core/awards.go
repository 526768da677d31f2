package core

// XPAwards holds the direct XP granted per event kind, before any badge
// rewards or streak bonuses.
type XPAwards struct {
	Flashcard      int64 `json:"flashcard"`
	Deck           int64 `json:"deck"`
	Comment        int64 `json:"comment"`
	QuizBase       int64 `json:"quiz_base"`
	QuizPerCorrect int64 `json:"quiz_per_correct"`
	PerfectBonus   int64 `json:"perfect_bonus"`
}

// DefaultXPAwards returns the stock award amounts.
func DefaultXPAwards() XPAwards {
	return XPAwards{
		Flashcard:      10,
		Deck:           25,
		Comment:        5,
		QuizBase:       20,
		QuizPerCorrect: 2,
		PerfectBonus:   10,
	}
}

// QuizXP computes the direct XP for a quiz result.
func (a XPAwards) QuizXP(correct, total int) int64 {
	xp := a.QuizBase + a.QuizPerCorrect*int64(correct)
	if total > 0 && correct == total {
		xp += a.PerfectBonus
	}
	return xp
}
