package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

var (
	// ErrNotFound is returned when no entry exists for the given id.
	ErrNotFound = errors.New("schedule entry not found")
	// ErrConflict is returned when a status-guarded update matched no
	// row, meaning another writer got there first.
	ErrConflict = errors.New("schedule entry claimed by another writer")
)

// SchedulePatch carries the fields a guarded update may change. Nil
// fields are left untouched.
type SchedulePatch struct {
	Status        *model.ScheduleStatus
	ScheduledTime *time.Time
	Metadata      model.JSONMap
}

// ScheduleRepository is the durable schedule store. All mutation after
// creation goes through status-guarded updates so concurrent dispatcher
// instances cannot double-process an entry.
type ScheduleRepository interface {
	Create(ctx context.Context, entry *model.ScheduleEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error)
	List(ctx context.Context, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error)

	// ListDue returns pending entries with scheduled_time <= before,
	// ordered by priority then scheduled time.
	ListDue(ctx context.Context, before time.Time, limit int) ([]*model.ScheduleEntry, error)

	// Claim atomically increments the attempt counter of a pending
	// entry whose counter still equals expectedAttempts. ErrConflict
	// means another dispatcher already claimed this occurrence.
	Claim(ctx context.Context, id uuid.UUID, expectedAttempts int) error

	// UpdateIfStatus applies patch only while the entry still has the
	// expected status; ErrConflict otherwise.
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected model.ScheduleStatus, patch SchedulePatch) error

	CountByStatus(ctx context.Context) (map[model.ScheduleStatus]int, error)
	CountMissedSince(ctx context.Context, since time.Time) (int, error)
}
