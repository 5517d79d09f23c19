package bootstrap

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courtbill/internal"
)

func TestDunningSchedule(t *testing.T) {
	tests := []struct {
		name           string
		values         map[string]any
		wantThresholds []int
		wantMax        int
		wantInterval   time.Duration
	}{
		{
			name:           "defaults",
			wantThresholds: []int{7, 14, 21},
			wantMax:        3,
			wantInterval:   24 * time.Hour,
		},
		{
			name: "overrides",
			values: map[string]any{
				"DUNNING_REMINDER_THRESHOLDS": "3, 10,30",
				"DUNNING_INTERVAL":            "6h",
				"DUNNING_MAX_REMINDERS":       2,
			},
			wantThresholds: []int{3, 10, 30},
			wantMax:        2,
			wantInterval:   6 * time.Hour,
		},
		{
			name:           "zero reminders stays zero",
			values:         map[string]any{"DUNNING_MAX_REMINDERS": 0},
			wantThresholds: []int{7, 14, 21},
			wantMax:        0,
			wantInterval:   24 * time.Hour,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}
			cfg, err := internal.LoadConfig(v)
			require.NoError(t, err)

			sched := DunningSchedule(cfg)
			require.NoError(t, sched.Validate())
			assert.Equal(t, tt.wantThresholds, sched.ReminderThresholds)
			assert.Equal(t, tt.wantMax, sched.MaxReminders)
			assert.Equal(t, tt.wantInterval, sched.Interval)
			assert.Equal(t, 24*time.Hour, sched.ReminderCooldown)
		})
	}
}
