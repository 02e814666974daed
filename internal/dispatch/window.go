package dispatch

import (
	"time"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

// WindowState classifies an entry's position relative to its delivery
// window at a given instant.
type WindowState int

const (
	// NotYetDue means now precedes the scheduled time.
	NotYetDue WindowState = iota
	// Deliverable means now falls inside the delivery window.
	Deliverable
	// Missed means the window has closed. The classification is
	// monotonic in time: once missed, never deliverable again.
	Missed
)

func (s WindowState) String() string {
	switch s {
	case NotYetDue:
		return "not_yet_due"
	case Deliverable:
		return "deliverable"
	case Missed:
		return "missed"
	}
	return "unknown"
}

// EvaluateWindow decides whether now falls inside the entry's allowed
// send window. A zero-second window means "at the scheduled instant and
// not after"; a negative window means no upper bound.
func EvaluateWindow(entry *model.ScheduleEntry, now time.Time) WindowState {
	if now.Before(entry.ScheduledTime) {
		return NotYetDue
	}
	deadline, bounded := entry.WindowDeadline()
	if !bounded || !now.After(deadline) {
		return Deliverable
	}
	return Missed
}
