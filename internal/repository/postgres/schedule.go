package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
)

type scheduleRepository struct {
	db *sqlx.DB
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) Create(ctx context.Context, entry *model.ScheduleEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if !entry.Platform.Valid() {
		return fmt.Errorf("unrecognized platform %q", entry.Platform)
	}
	if !entry.Status.Valid() {
		return fmt.Errorf("unrecognized status %q", entry.Status)
	}

	query := `
		INSERT INTO schedule_entries (
			id, recipient_id, platform, content, scheduled_time,
			delivery_window_seconds, priority, recurrence, status,
			attempts, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RecipientID,
		entry.Platform,
		entry.Content,
		entry.ScheduledTime,
		entry.DeliveryWindowSeconds,
		entry.Priority,
		entry.Recurrence,
		entry.Status,
		entry.Attempts,
		entry.Metadata,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule entry: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	query := `
		SELECT id, recipient_id, platform, content, scheduled_time,
			delivery_window_seconds, priority, recurrence, status,
			attempts, metadata, created_at, updated_at
		FROM schedule_entries
		WHERE id = $1
	`

	var entry model.ScheduleEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule entry: %w", err)
	}
	return &entry, nil
}

func (r *scheduleRepository) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	query := `
		SELECT id, recipient_id, platform, content, scheduled_time,
			delivery_window_seconds, priority, recurrence, status,
			attempts, metadata, created_at, updated_at
		FROM schedule_entries
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RecipientID != nil {
		args = append(args, *filter.RecipientID)
		query += " AND recipient_id = $" + strconv.Itoa(len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY scheduled_time DESC"

	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		query += " LIMIT $" + strconv.Itoa(len(args))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PageSize)
			query += " OFFSET $" + strconv.Itoa(len(args))
		}
	}

	var entries []*model.ScheduleEntry
	err := r.db.SelectContext(ctx, &entries, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule entries: %w", err)
	}
	return entries, nil
}

func (r *scheduleRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*model.ScheduleEntry, error) {
	query := `
		SELECT id, recipient_id, platform, content, scheduled_time,
			delivery_window_seconds, priority, recurrence, status,
			attempts, metadata, created_at, updated_at
		FROM schedule_entries
		WHERE status = $1
		AND scheduled_time <= $2
		ORDER BY priority ASC, scheduled_time ASC
		LIMIT $3
	`

	var entries []*model.ScheduleEntry
	err := r.db.SelectContext(ctx, &entries, query, model.ScheduleStatusPending, before, limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	return entries, nil
}

// Claim guards on both status and the attempt counter so two dispatcher
// instances racing on the same occurrence cannot both win.
func (r *scheduleRepository) Claim(ctx context.Context, id uuid.UUID, expectedAttempts int) error {
	query := `
		UPDATE schedule_entries
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
		AND status = $2
		AND attempts = $3
	`
	result, err := r.db.ExecContext(ctx, query, id, model.ScheduleStatusPending, expectedAttempts)
	if err != nil {
		return fmt.Errorf("failed to claim schedule entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if rows == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *scheduleRepository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected model.ScheduleStatus, patch repository.SchedulePatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("unrecognized status %q", *patch.Status)
	}

	query := `
		UPDATE schedule_entries
		SET status = COALESCE($3, status),
			scheduled_time = COALESCE($4, scheduled_time),
			metadata = COALESCE($5, metadata),
			updated_at = NOW()
		WHERE id = $1
		AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, expected, patch.Status, patch.ScheduledTime, patch.Metadata)
	if err != nil {
		return fmt.Errorf("failed to update schedule entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *scheduleRepository) CountByStatus(ctx context.Context) (map[model.ScheduleStatus]int, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM schedule_entries
		GROUP BY status
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ScheduleStatus]int)
	for rows.Next() {
		var status model.ScheduleStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *scheduleRepository) CountMissedSince(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM schedule_entries
		WHERE status = $1
		AND updated_at >= $2
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, model.ScheduleStatusMissed, since); err != nil {
		return 0, fmt.Errorf("failed to count missed entries: %w", err)
	}
	return count, nil
}
