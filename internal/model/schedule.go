package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusSent      ScheduleStatus = "sent"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusMissed    ScheduleStatus = "missed"
)

func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusPending, ScheduleStatusSent, ScheduleStatusFailed,
		ScheduleStatusCancelled, ScheduleStatusMissed:
		return true
	}
	return false
}

// Terminal reports whether the status ends an occurrence's lifecycle.
// Only pending entries are mutable by the dispatcher.
func (s ScheduleStatus) Terminal() bool {
	return s.Valid() && s != ScheduleStatusPending
}

type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformEmail    Platform = "email"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformTelegram, PlatformWhatsApp, PlatformEmail:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrenceRule describes how an entry repeats. A nil rule on a
// ScheduleEntry means the entry is one-shot.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	// Weekdays applies to weekly rules only.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	// TimeOfDay is the "HH:MM" send time in UTC. Empty means keep the
	// reference entry's time-of-day.
	TimeOfDay string `json:"time_of_day,omitempty"`
	// DayOfMonth applies to monthly rules. Zero means keep the reference
	// entry's day, clamped to the target month's length.
	DayOfMonth int `json:"day_of_month,omitempty"`
}

// Validate rejects malformed rules at creation time so expansion never
// has to deal with them.
func (r *RecurrenceRule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("weekly recurrence requires at least one weekday")
		}
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday %d", wd)
			}
		}
	case FrequencyMonthly:
		if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
			return fmt.Errorf("invalid day of month %d", r.DayOfMonth)
		}
	default:
		return fmt.Errorf("unsupported frequency %q", r.Frequency)
	}

	if r.TimeOfDay != "" {
		if _, err := time.Parse("15:04", r.TimeOfDay); err != nil {
			return fmt.Errorf("invalid time of day %q", r.TimeOfDay)
		}
	}
	return nil
}

func (r *RecurrenceRule) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *RecurrenceRule) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RecurrenceRule", src)
	}
	return json.Unmarshal(b, r)
}

// MetadataOriginalScheduledTime preserves the pre-override send time when
// an operator forces immediate delivery.
const MetadataOriginalScheduledTime = "original_scheduled_time"

// NoDeliveryDeadline disables the upper bound of the delivery window.
const NoDeliveryDeadline = -1

// ScheduleEntry is the unit of work: one concrete occurrence of a
// (possibly recurring) proactive message.
type ScheduleEntry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RecipientID uuid.UUID `db:"recipient_id" json:"recipient_id"`
	Platform    Platform  `db:"platform" json:"platform"`
	Content     string    `db:"content" json:"content"`
	// ScheduledTime is the earliest instant eligible for dispatch.
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	// DeliveryWindowSeconds bounds how late a send may still happen.
	// Zero means "at ScheduledTime and not after"; NoDeliveryDeadline
	// means no upper bound.
	DeliveryWindowSeconds int `db:"delivery_window_seconds" json:"delivery_window_seconds"`
	// Priority orders dispatch within a cycle; lower value wins,
	// earlier ScheduledTime breaks ties.
	Priority   int             `db:"priority" json:"priority"`
	Recurrence *RecurrenceRule `db:"recurrence" json:"recurrence,omitempty"`
	Status     ScheduleStatus  `db:"status" json:"status"`
	Attempts   int             `db:"attempts" json:"attempts"`
	Metadata   JSONMap         `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// WindowDeadline returns the latest instant the entry may still be sent,
// and false when the entry has no upper bound.
func (e *ScheduleEntry) WindowDeadline() (time.Time, bool) {
	if e.DeliveryWindowSeconds < 0 {
		return time.Time{}, false
	}
	return e.ScheduledTime.Add(time.Duration(e.DeliveryWindowSeconds) * time.Second), true
}

// CreateScheduleRequest is the inbound payload for schedule creation.
type CreateScheduleRequest struct {
	RecipientID           uuid.UUID       `json:"recipient_id" binding:"required"`
	Platform              Platform        `json:"platform" binding:"required,platform"`
	Content               string          `json:"content" binding:"required"`
	ScheduledTime         time.Time       `json:"scheduled_time" binding:"required"`
	DeliveryWindowSeconds *int            `json:"delivery_window_seconds,omitempty"`
	Priority              int             `json:"priority"`
	Recurrence            *RecurrenceRule `json:"recurrence,omitempty"`
	Metadata              JSONMap         `json:"metadata,omitempty"`
}

// ScheduleFilter narrows list queries.
type ScheduleFilter struct {
	RecipientID *uuid.UUID
	Status      *ScheduleStatus
	Pagination
}
