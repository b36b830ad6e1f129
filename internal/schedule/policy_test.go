package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
)

func fixedPolicy(now time.Time) Policy {
	return Policy{Now: func() time.Time { return now }}
}

func TestParsePattern(t *testing.T) {
	cases := []struct {
		in       string
		unit     PatternUnit
		interval int
		ok       bool
	}{
		{"daily", UnitDaily, 1, true},
		{"Weekly", UnitWeekly, 1, true},
		{"monthly:3", UnitMonthly, 3, true},
		{"weekly:2", UnitWeekly, 2, true},
		{"", "", 0, false},
		{"hourly", "", 0, false},
		{"daily:0", "", 0, false},
		{"daily:x", "", 0, false},
	}
	for _, c := range cases {
		p, err := ParsePattern(c.in)
		if c.ok {
			if err != nil {
				t.Errorf("ParsePattern(%q): unexpected error %v", c.in, err)
				continue
			}
			if p.Unit != c.unit || p.Interval != c.interval {
				t.Errorf("ParsePattern(%q) = %+v", c.in, p)
			}
		} else if !errors.Is(err, ErrBadPattern) {
			t.Errorf("ParsePattern(%q): want ErrBadPattern, got %v", c.in, err)
		}
	}
}

func TestSendImmediately(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.DefaultSchedule(1)

	got, err := p.NextValidInstant(cfg, 0, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Errorf("got %v, want now %v", got, now)
	}
}

func TestScheduledTimeInPastMeansNow(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	past := now.Add(-48 * time.Hour)
	cfg := model.CampaignSchedule{CampaignID: 1, ScheduledTime: &past, Timezone: "UTC"}

	got, err := p.NextValidInstant(cfg, 0, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Errorf("past scheduled time: got %v, want %v", got, now)
	}
}

func TestScheduledTimeInFuture(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	future := now.Add(6 * time.Hour)
	cfg := model.CampaignSchedule{CampaignID: 1, ScheduledTime: &future, Timezone: "UTC"}

	got, err := p.NextValidInstant(cfg, 0, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(future) {
		t.Errorf("got %v, want %v", got, future)
	}
}

func TestQuietHoursWrapMidnight(t *testing.T) {
	// 23:30 local with a 22:00-08:00 quiet window defers to 08:00 next day.
	now := time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "UTC",
		RespectQuietHours: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}

	got, err := p.ApplyQuietHours(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestQuietHoursEarlyMorning(t *testing.T) {
	// 03:00 inside a wrapped 22:00-08:00 window defers to 08:00 the same day.
	now := time.Date(2025, 6, 3, 3, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "UTC",
		RespectQuietHours: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}

	got, err := p.ApplyQuietHours(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestQuietHoursOutsideWindowUntouched(t *testing.T) {
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "UTC",
		RespectQuietHours: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}

	got, err := p.ApplyQuietHours(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Errorf("noon should not be deferred, got %v", got)
	}
}

func TestQuietHoursZeroLengthDisabled(t *testing.T) {
	now := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "UTC",
		RespectQuietHours: true,
		QuietHoursStart:   "09:00",
		QuietHoursEnd:     "09:00",
	}

	got, err := p.ApplyQuietHours(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Errorf("zero-length window must never trigger, got %v", got)
	}
}

func TestQuietHoursRespectTimezone(t *testing.T) {
	// 02:30 UTC is 23:30 the previous day in America/Sao_Paulo (UTC-3),
	// inside a 22:00-08:00 local window; expect 08:00 local = 11:00 UTC.
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2025, 6, 3, 2, 30, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "America/Sao_Paulo",
		RespectQuietHours: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}

	got, err := p.ApplyQuietHours(cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 3, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRecurringOccurrences(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	start := now.Add(2 * time.Hour)
	cfg := model.CampaignSchedule{
		CampaignID:       1,
		ScheduledTime:    &start,
		Timezone:         "UTC",
		Recurring:        true,
		RecurringPattern: "weekly:2",
	}

	first, err := p.NextValidInstant(cfg, 0, now)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(start) {
		t.Errorf("occurrence 0: got %v, want %v", first, start)
	}

	third, err := p.NextValidInstant(cfg, 2, now)
	if err != nil {
		t.Fatal(err)
	}
	want := start.AddDate(0, 0, 28)
	if !third.Equal(want) {
		t.Errorf("occurrence 2: got %v, want %v", third, want)
	}
}

func TestRecurringBadPattern(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	p := fixedPolicy(now)
	cfg := model.CampaignSchedule{
		CampaignID:       1,
		Timezone:         "UTC",
		Recurring:        true,
		RecurringPattern: "fortnightly",
	}

	if _, err := p.NextValidInstant(cfg, 0, now); !errors.Is(err, ErrBadPattern) {
		t.Errorf("want ErrBadPattern, got %v", err)
	}
	if err := p.Validate(cfg); !errors.Is(err, ErrBadPattern) {
		t.Errorf("Validate: want ErrBadPattern, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := model.CampaignSchedule{
		CampaignID:        1,
		Timezone:          "Mars/Olympus",
		RespectQuietHours: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "08:00",
	}
	if err := NewPolicy().Validate(cfg); !errors.Is(err, ErrBadTimezone) {
		t.Errorf("want ErrBadTimezone, got %v", err)
	}

	cfg.Timezone = "UTC"
	cfg.QuietHoursStart = "25:99"
	if err := NewPolicy().Validate(cfg); !errors.Is(err, ErrBadQuietHours) {
		t.Errorf("want ErrBadQuietHours, got %v", err)
	}
}
