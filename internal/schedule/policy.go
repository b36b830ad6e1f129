package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
)

var (
	ErrBadPattern    = errors.New("invalid recurring pattern")
	ErrBadTimezone   = errors.New("invalid timezone")
	ErrBadQuietHours = errors.New("invalid quiet hours window")
)

// PatternUnit is the base unit of a recurring pattern.
type PatternUnit string

const (
	UnitDaily   PatternUnit = "daily"
	UnitWeekly  PatternUnit = "weekly"
	UnitMonthly PatternUnit = "monthly"
)

// Pattern is a parsed recurring pattern: a unit and an interval count,
// e.g. "weekly:2" repeats every two weeks.
type Pattern struct {
	Unit     PatternUnit
	Interval int
}

// ParsePattern parses "daily|weekly|monthly[:interval]".
func ParsePattern(s string) (Pattern, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return Pattern{}, ErrBadPattern
	}

	interval := 1
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		n, err := strconv.Atoi(raw[i+1:])
		if err != nil || n < 1 {
			return Pattern{}, fmt.Errorf("%w: %q", ErrBadPattern, s)
		}
		interval = n
		raw = raw[:i]
	}

	unit := PatternUnit(raw)
	switch unit {
	case UnitDaily, UnitWeekly, UnitMonthly:
		return Pattern{Unit: unit, Interval: interval}, nil
	}
	return Pattern{}, fmt.Errorf("%w: %q", ErrBadPattern, s)
}

// shift returns base moved forward by n occurrences of the pattern.
func (p Pattern) shift(base time.Time, n int) time.Time {
	if n <= 0 {
		return base
	}
	steps := n * p.Interval
	switch p.Unit {
	case UnitWeekly:
		return base.AddDate(0, 0, 7*steps)
	case UnitMonthly:
		return base.AddDate(0, steps, 0)
	default:
		return base.AddDate(0, 0, steps)
	}
}

// Policy answers "is time T a valid dispatch moment for this campaign?".
// It is pure logic over a CampaignSchedule; Now is injectable for tests.
type Policy struct {
	Now func() time.Time
}

func NewPolicy() Policy {
	return Policy{Now: time.Now}
}

// Validate checks the parts of a schedule config that would otherwise fail at
// dispatch time: timezone, quiet-hour clock values, recurring pattern. A
// malformed config must reject activation, not poison per-message rows.
func (p Policy) Validate(cfg model.CampaignSchedule) error {
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return err
	}
	if cfg.RespectQuietHours {
		if _, err := parseClock(cfg.QuietHoursStart); err != nil {
			return err
		}
		if _, err := parseClock(cfg.QuietHoursEnd); err != nil {
			return err
		}
	}
	if cfg.Recurring {
		if _, err := ParsePattern(cfg.RecurringPattern); err != nil {
			return err
		}
	}
	return nil
}

// NextValidInstant computes the earliest valid dispatch instant at or after
// notBefore for the given occurrence (0 = first). The recurrence shift is
// applied before the quiet-hours adjustment.
func (p Policy) NextValidInstant(cfg model.CampaignSchedule, occurrence int, notBefore time.Time) (time.Time, error) {
	now := p.Now()

	if cfg.SendImmediately && !notBefore.After(now) && occurrence == 0 && !cfg.Recurring {
		return p.ApplyQuietHours(cfg, now)
	}

	base := now
	if cfg.ScheduledTime != nil && cfg.ScheduledTime.After(now) {
		base = *cfg.ScheduledTime
	}
	if notBefore.After(base) {
		base = notBefore
	}

	if cfg.Recurring {
		pat, err := ParsePattern(cfg.RecurringPattern)
		if err != nil {
			return time.Time{}, err
		}
		base = pat.shift(base, occurrence)
	}

	return p.ApplyQuietHours(cfg, base)
}

// ApplyQuietHours defers t to the next quiet-hours end boundary when t's local
// time of day falls inside [start, end). The window may wrap midnight; a
// zero-length window never triggers.
func (p Policy) ApplyQuietHours(cfg model.CampaignSchedule, t time.Time) (time.Time, error) {
	if !cfg.RespectQuietHours {
		return t, nil
	}

	start, err := parseClock(cfg.QuietHoursStart)
	if err != nil {
		return time.Time{}, err
	}
	end, err := parseClock(cfg.QuietHoursEnd)
	if err != nil {
		return time.Time{}, err
	}
	if start == end {
		// zero-length window: quiet hours disabled
		return t, nil
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if !inWindow(minute, start, end) {
		return t, nil
	}

	// advance to the end boundary on the same or next calendar day
	boundary := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !boundary.After(local) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary, nil
}

// inWindow tests minute-of-day membership in [start, end), wrapping midnight
// when start > end.
func inWindow(m, start, end int) bool {
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// parseClock parses "HH:MM" into minute-of-day.
func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadQuietHours, s)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimezone, tz)
	}
	return loc, nil
}
