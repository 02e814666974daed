package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleStatusTerminal(t *testing.T) {
	assert.False(t, ScheduleStatusPending.Terminal())
	for _, s := range []ScheduleStatus{ScheduleStatusSent, ScheduleStatusFailed, ScheduleStatusCancelled, ScheduleStatusMissed} {
		assert.True(t, s.Terminal(), string(s))
	}
	assert.False(t, ScheduleStatus("archived").Terminal())
}

func TestRecurrenceRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    RecurrenceRule
		wantErr bool
	}{
		{
			name: "daily",
			rule: RecurrenceRule{Frequency: FrequencyDaily},
		},
		{
			name: "daily with time of day",
			rule: RecurrenceRule{Frequency: FrequencyDaily, TimeOfDay: "09:30"},
		},
		{
			name: "weekly with weekdays",
			rule: RecurrenceRule{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Monday, time.Wednesday}},
		},
		{
			name:    "weekly without weekdays",
			rule:    RecurrenceRule{Frequency: FrequencyWeekly},
			wantErr: true,
		},
		{
			name:    "weekly with out of range weekday",
			rule:    RecurrenceRule{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Weekday(9)}},
			wantErr: true,
		},
		{
			name: "monthly",
			rule: RecurrenceRule{Frequency: FrequencyMonthly, DayOfMonth: 15},
		},
		{
			name:    "monthly with impossible day",
			rule:    RecurrenceRule{Frequency: FrequencyMonthly, DayOfMonth: 42},
			wantErr: true,
		},
		{
			name:    "unknown frequency",
			rule:    RecurrenceRule{Frequency: "hourly"},
			wantErr: true,
		},
		{
			name:    "malformed time of day",
			rule:    RecurrenceRule{Frequency: FrequencyDaily, TimeOfDay: "25:99"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindowDeadline(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	entry := &ScheduleEntry{ScheduledTime: scheduled, DeliveryWindowSeconds: 3600}
	deadline, ok := entry.WindowDeadline()
	require.True(t, ok)
	assert.Equal(t, scheduled.Add(time.Hour), deadline)

	// Zero window closes at the scheduled instant itself.
	entry.DeliveryWindowSeconds = 0
	deadline, ok = entry.WindowDeadline()
	require.True(t, ok)
	assert.Equal(t, scheduled, deadline)

	entry.DeliveryWindowSeconds = NoDeliveryDeadline
	_, ok = entry.WindowDeadline()
	assert.False(t, ok)
}

func TestJSONMapClone(t *testing.T) {
	src := JSONMap{"chat_id": "12345"}
	cp := src.Clone()
	cp["extra"] = true

	assert.NotContains(t, src, "extra")

	var nilMap JSONMap
	assert.Nil(t, nilMap.Clone())
}
