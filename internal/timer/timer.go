package timer

import (
	"errors"
	"strings"
	"time"
)

// Unit is the repeat interval unit of a maintenance timer.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
)

var (
	ErrInvalidUnit     = errors.New("interval unit must be one of: days, weeks, months")
	ErrInvalidInterval = errors.New("interval value must be positive")
	ErrDuplicateName   = errors.New("a timer with that name already exists in this server")
	ErrNotFound        = errors.New("timer not found")
	ErrNotPending      = errors.New("timer is not pending completion")
)

// ParseUnit normalizes a user-supplied interval unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case UnitDays:
		return UnitDays, nil
	case UnitWeeks:
		return UnitWeeks, nil
	case UnitMonths:
		return UnitMonths, nil
	default:
		return "", ErrInvalidUnit
	}
}

// Timer is one recurring maintenance obligation. Timers are unique by
// (guild, name); the name is the identity key and never changes after
// creation.
type Timer struct {
	Name          string
	IntervalValue int
	IntervalUnit  Unit
	Description   string
	Owner         string
	ChannelID     string
	NextDue       *time.Time
	IsPending     bool
	LastReminded  *time.Time
}

// NextDue computes the absolute due instant for an interval starting at ref.
// Months are an approximation (30 days), not calendar months.
func NextDue(value int, unit Unit, ref time.Time) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, ErrInvalidInterval
	}
	var d time.Duration
	switch unit {
	case UnitDays:
		d = time.Duration(value) * 24 * time.Hour
	case UnitWeeks:
		d = time.Duration(value) * 7 * 24 * time.Hour
	case UnitMonths:
		d = time.Duration(value) * 30 * 24 * time.Hour
	default:
		return time.Time{}, ErrInvalidUnit
	}
	return ref.Add(d), nil
}

// Settings is the process-wide configuration persisted alongside timers.
// The pending-reminder cadence is a single global knob: it applies to every
// timer in every guild.
type Settings struct {
	ReminderRepeatDays int
}
