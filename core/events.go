package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the progression event kinds the engine accepts.
type EventKind string

const (
	EventFlashcardCreated EventKind = "flashcard_created"
	EventDeckCreated      EventKind = "deck_created"
	EventQuizCompleted    EventKind = "quiz_completed"
	EventCommentPosted    EventKind = "comment_posted"
	EventActivityOnDate   EventKind = "activity_on_date"
)

// Event is one logical user action submitted to the engine. Events are
// transient inputs; the engine never persists them. The ID is a correlation
// id for logs and webhooks only — the engine performs no deduplication and
// assumes at-most-once delivery by the caller.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	UserID     UserID    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// QuizCompleted payload.
	Correct int `json:"correct,omitempty"`
	Total   int `json:"total,omitempty"`

	// ActivityOnDate payload.
	Date *Date `json:"date,omitempty"`
}

func newEvent(kind EventKind, user UserID) Event {
	return Event{ID: uuid.NewString(), Kind: kind, UserID: user, OccurredAt: time.Now().UTC()}
}

func NewFlashcardCreated(user UserID) Event {
	return newEvent(EventFlashcardCreated, user)
}

func NewDeckCreated(user UserID) Event {
	return newEvent(EventDeckCreated, user)
}

func NewQuizCompleted(user UserID, correct, total int) Event {
	ev := newEvent(EventQuizCompleted, user)
	ev.Correct = correct
	ev.Total = total
	return ev
}

func NewCommentPosted(user UserID) Event {
	return newEvent(EventCommentPosted, user)
}

func NewActivityOnDate(user UserID, day Date) Event {
	ev := newEvent(EventActivityOnDate, user)
	ev.Date = &day
	return ev
}

// Validate rejects malformed events before any state is touched.
func (e Event) Validate() error {
	if _, err := NormalizeUserID(e.UserID); err != nil {
		return err
	}
	switch e.Kind {
	case EventFlashcardCreated, EventDeckCreated, EventCommentPosted:
		return nil
	case EventQuizCompleted:
		if e.Total <= 0 || e.Correct < 0 || e.Correct > e.Total {
			return ErrInvalidEvent
		}
		return nil
	case EventActivityOnDate:
		if e.Date == nil || e.Date.IsZero() {
			return ErrInvalidEvent
		}
		return nil
	default:
		return ErrInvalidEvent
	}
}

// NotificationType enumerates outcome notifications published on the bus.
type NotificationType string

const (
	NotifyXPGained       NotificationType = "xp_gained"
	NotifyBadgeUnlocked  NotificationType = "badge_unlocked"
	NotifyLevelUp        NotificationType = "level_up"
	NotifyStreakExtended NotificationType = "streak_extended"
)

// Notification is an immutable record of something a committed Apply did,
// for UI/notification consumers. Published only after the commit succeeds.
type Notification struct {
	Type    NotificationType `json:"type"`
	Time    time.Time        `json:"time"`
	UserID  UserID           `json:"user_id"`
	EventID string           `json:"event_id,omitempty"`
	XPDelta int64            `json:"xp_delta,omitempty"`
	XPTotal int64            `json:"xp_total,omitempty"`
	Badge   BadgeID          `json:"badge,omitempty"`
	Level   int              `json:"level,omitempty"`
	Streak  int              `json:"streak,omitempty"`
}

func NewXPGained(user UserID, eventID string, delta, total int64) Notification {
	return Notification{Type: NotifyXPGained, Time: time.Now().UTC(), UserID: user, EventID: eventID, XPDelta: delta, XPTotal: total}
}

func NewBadgeUnlocked(user UserID, eventID string, badge BadgeID) Notification {
	return Notification{Type: NotifyBadgeUnlocked, Time: time.Now().UTC(), UserID: user, EventID: eventID, Badge: badge}
}

func NewLevelUp(user UserID, eventID string, level int) Notification {
	return Notification{Type: NotifyLevelUp, Time: time.Now().UTC(), UserID: user, EventID: eventID, Level: level}
}

func NewStreakExtended(user UserID, eventID string, streak int) Notification {
	return Notification{Type: NotifyStreakExtended, Time: time.Now().UTC(), UserID: user, EventID: eventID, Streak: streak}
}
