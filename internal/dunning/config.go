package dunning

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/courtbill/internal/domain"
)

// Config controls the dunning schedule.
type Config struct {
	domain.ReminderPolicy

	SuspensionGraceDays int

	Interval    time.Duration
	Concurrency int

	// LockTTL bounds how long a crashed run can hold the run lock.
	LockTTL time.Duration
}

// DefaultConfig returns the stock schedule: reminders at 7, 14 and 21 days,
// suspension after 30.
func DefaultConfig() Config {
	return Config{
		ReminderPolicy:      domain.DefaultReminderPolicy(),
		SuspensionGraceDays: 30,
		Interval:            24 * time.Hour,
		Concurrency:         8,
		LockTTL:             30 * time.Minute,
	}
}

// Validate checks the thresholds and limits.
func (c Config) Validate() error {
	if err := ValidateThresholds(c.ReminderThresholds); err != nil {
		return err
	}
	if c.MaxReminders < 0 {
		return errors.New("max reminders must not be negative")
	}
	if c.ReminderCooldown < 0 {
		return errors.New("reminder cooldown must not be negative")
	}
	if c.SuspensionGraceDays < 0 {
		return errors.New("suspension grace days must not be negative")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	return nil
}

// ValidateThresholds requires positive, strictly ascending day offsets.
func ValidateThresholds(thresholds []int) error {
	prev := 0
	for i, d := range thresholds {
		if d <= 0 {
			return fmt.Errorf("reminder threshold %d must be positive, got %d", i, d)
		}
		if d <= prev {
			return fmt.Errorf("reminder thresholds must be ascending: %d follows %d", d, prev)
		}
		prev = d
	}
	return nil
}

// withDefaults fills in the operational settings only. The reminder policy is
// taken as given so the scheduler and the invoice service agree on it.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.LockTTL <= 0 {
		c.LockTTL = def.LockTTL
	}
	return c
}
