package core

import "testing"

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewBadgeCatalog([]BadgeDefinition{
		{ID: "dup", XPReward: 1, Earned: XPAtLeast(1)},
		{ID: "dup", XPReward: 2, Earned: XPAtLeast(2)},
	})
	if err == nil {
		t.Fatal("duplicate badge id accepted")
	}
}

func TestCatalogRejectsNilPredicate(t *testing.T) {
	if _, err := NewBadgeCatalog([]BadgeDefinition{{ID: "b", XPReward: 1}}); err == nil {
		t.Fatal("nil predicate accepted")
	}
}

func TestEvaluateNewlyEarnedOrderAndSkip(t *testing.T) {
	cat, err := NewBadgeCatalog([]BadgeDefinition{
		{ID: "a", XPReward: 1, Earned: XPAtLeast(10)},
		{ID: "b", XPReward: 1, Earned: XPAtLeast(20)},
		{ID: "c", XPReward: 1, Earned: XPAtLeast(30)},
	})
	if err != nil {
		t.Fatal(err)
	}
	state := NewState("u")
	state.XP = 25
	state.Badges["a"] = struct{}{} // already earned, must be skipped
	earned := cat.EvaluateNewlyEarned(state)
	if len(earned) != 1 || earned[0].ID != "b" {
		t.Fatalf("unexpected result: %+v", earned)
	}

	state.XP = 100
	earned = cat.EvaluateNewlyEarned(state)
	if len(earned) != 2 || earned[0].ID != "b" || earned[1].ID != "c" {
		t.Fatalf("declaration order broken: %+v", earned)
	}
}

func TestDefaultCatalogLoads(t *testing.T) {
	cat := DefaultBadgeCatalog()
	if cat.Len() == 0 {
		t.Fatal("empty default catalog")
	}
	if _, ok := cat.Get("first_flashcard"); !ok {
		t.Fatal("first_flashcard missing")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := NewState("u")
	s.Counters[CounterFlashcardsCreated] = 1
	s.Badges["b"] = struct{}{}
	d := NewDate(2024, 1, 1)
	s.LastActivityDate = &d

	cp := s.Clone()
	cp.Counters[CounterFlashcardsCreated] = 99
	cp.Badges["other"] = struct{}{}
	*cp.LastActivityDate = NewDate(2025, 1, 1)

	if s.Counters[CounterFlashcardsCreated] != 1 {
		t.Fatal("counters shared")
	}
	if len(s.Badges) != 1 {
		t.Fatal("badges shared")
	}
	if *s.LastActivityDate != d {
		t.Fatal("last activity date shared")
	}
}

func TestEventValidate(t *testing.T) {
	if err := NewFlashcardCreated("u").Validate(); err != nil {
		t.Fatal(err)
	}
	if err := NewQuizCompleted("u", 5, 3).Validate(); err == nil {
		t.Fatal("correct > total accepted")
	}
	if err := NewQuizCompleted("u", 0, 0).Validate(); err == nil {
		t.Fatal("zero-question quiz accepted")
	}
	if err := (Event{Kind: "bogus", UserID: "u"}).Validate(); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if err := (Event{Kind: EventActivityOnDate, UserID: "u"}).Validate(); err == nil {
		t.Fatal("activity event without date accepted")
	}
}

func TestQuizXP(t *testing.T) {
	a := DefaultXPAwards()
	if got := a.QuizXP(3, 5); got != 26 {
		t.Fatalf("QuizXP(3,5) = %d", got)
	}
	if got := a.QuizXP(5, 5); got != 40 {
		t.Fatalf("perfect QuizXP(5,5) = %d", got)
	}
}
