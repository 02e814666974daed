package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

func windowEntry(scheduled time.Time, windowSeconds int) *model.ScheduleEntry {
	return &model.ScheduleEntry{
		ScheduledTime:         scheduled,
		DeliveryWindowSeconds: windowSeconds,
	}
}

func TestEvaluateWindow(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		windowSeconds int
		now           time.Time
		want          WindowState
	}{
		{"before scheduled time", 60, scheduled.Add(-time.Second), NotYetDue},
		{"at scheduled time", 60, scheduled, Deliverable},
		{"inside window", 60, scheduled.Add(30 * time.Second), Deliverable},
		{"at window boundary", 60, scheduled.Add(60 * time.Second), Deliverable},
		{"after window", 60, scheduled.Add(61 * time.Second), Missed},
		{"zero window at instant", 0, scheduled, Deliverable},
		{"zero window one second late", 0, scheduled.Add(time.Second), Missed},
		{"unbounded window long after", model.NoDeliveryDeadline, scheduled.Add(240 * time.Hour), Deliverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateWindow(windowEntry(scheduled, tt.windowSeconds), tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Once the window closes the classification never goes back to
// deliverable, no matter how far time advances.
func TestEvaluateWindowMonotonicInTime(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	entry := windowEntry(scheduled, 60)

	now := scheduled
	missedSeen := false
	for i := 0; i < 300; i++ {
		state := EvaluateWindow(entry, now)
		if missedSeen {
			assert.Equal(t, Missed, state)
		}
		if state == Missed {
			missedSeen = true
		}
		now = now.Add(time.Second)
	}
	assert.True(t, missedSeen)
}
