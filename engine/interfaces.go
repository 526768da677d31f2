package engine

import (
	"context"

	"progresskit/core"
)

// Store abstracts durable persistence of progression records with
// optimistic concurrency. The version token travels inside
// ProgressionState.Version; CompareAndSwap succeeds only while the stored
// version still equals expectedVersion.
//
// Errors: Load and CompareAndSwap return core.ErrNotFound for missing
// records, CompareAndSwap returns core.ErrVersionConflict on a lost race,
// Create returns core.ErrAlreadyExists, and infrastructure failures wrap
// core.ErrStorageUnavailable. All calls honor context cancellation.
type Store interface {
	Create(ctx context.Context, user core.UserID) error
	Load(ctx context.Context, user core.UserID) (core.ProgressionState, error)
	CompareAndSwap(ctx context.Context, user core.UserID, expectedVersion int64, next core.ProgressionState) error
	Delete(ctx context.Context, user core.UserID) error
}

// Metrics receives engine-level counters. Implementations must be safe for
// concurrent use; a no-op implementation is used when none is provided.
type Metrics interface {
	ApplyCommitted(kind core.EventKind)
	ApplyRejected(kind core.EventKind)
	VersionConflict()
	RetriesExhausted()
	BadgeUnlocked(id core.BadgeID)
	LevelUp(level int)
}

type nopMetrics struct{}

func (nopMetrics) ApplyCommitted(core.EventKind) {}
func (nopMetrics) ApplyRejected(core.EventKind) {}
func (nopMetrics) VersionConflict() {}
func (nopMetrics) RetriesExhausted() {}
func (nopMetrics) BadgeUnlocked(core.BadgeID) {}
func (nopMetrics) LevelUp(int) {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }
