package market

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// Hours describes the regular equity session. Clock values are "HH:MM" in
// Timezone.
type Hours struct {
	Timezone   string   `json:"timezone" yaml:"timezone"`
	Open       string   `json:"open" yaml:"open"`
	Close      string   `json:"close" yaml:"close"`
	EntryStart string   `json:"entry_start" yaml:"entry_start"`
	EntryEnd   string   `json:"entry_end" yaml:"entry_end"`
	FlattenBy  string   `json:"flatten_by" yaml:"flatten_by"`
	Holidays   []string `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

// DefaultHolidays are the NYSE full-day closures for 2024 through 2026.
var DefaultHolidays = []string{
	"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29", "2024-05-27",
	"2024-06-19", "2024-07-04", "2024-09-02", "2024-11-28", "2024-12-25",
	"2025-01-01", "2025-01-09", "2025-01-20", "2025-02-17", "2025-04-18",
	"2025-05-26", "2025-06-19", "2025-07-04", "2025-09-01", "2025-11-27",
	"2025-12-25",
	"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03", "2026-05-25",
	"2026-06-19", "2026-07-03", "2026-09-07", "2026-11-26", "2026-12-25",
}

func DefaultHours() Hours {
	return Hours{
		Timezone:   "America/New_York",
		Open:       "09:30",
		Close:      "16:00",
		EntryStart: "09:35",
		EntryEnd:   "15:30",
		FlattenBy:  "15:58",
		Holidays:   append([]string(nil), DefaultHolidays...),
	}
}

// Calendar answers session questions for a wall-clock instant.
type Calendar struct {
	loc        *time.Location
	open       time.Duration
	close      time.Duration
	entryStart time.Duration
	entryEnd   time.Duration
	flattenBy  time.Duration
	holidays   map[string]struct{}
}

func NewCalendar(h Hours) (*Calendar, error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session timezone: %w", err)
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(h.Holidays))}

	clocks := []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"open", h.Open, &c.open},
		{"close", h.Close, &c.close},
		{"entry_start", h.EntryStart, &c.entryStart},
		{"entry_end", h.EntryEnd, &c.entryEnd},
		{"flatten_by", h.FlattenBy, &c.flattenBy},
	}
	for _, ck := range clocks {
		d, err := parseClock(ck.val)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", ck.name, err)
		}
		*ck.dst = d
	}
	if c.close <= c.open {
		return nil, fmt.Errorf("session close must be after open")
	}
	if c.entryStart < c.open || c.entryEnd > c.close || c.entryEnd <= c.entryStart {
		return nil, fmt.Errorf("entry window must sit inside the session")
	}
	if c.flattenBy > c.close {
		return nil, fmt.Errorf("flatten_by must not be after close")
	}
	for _, d := range h.Holidays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
		c.holidays[d] = struct{}{}
	}
	return c, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// SessionDate is the exchange-local calendar date of t.
func (c *Calendar) SessionDate(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format(dateLayout)]
	return !holiday
}

func (c *Calendar) timeOfDay(t time.Time) time.Duration {
	local := t.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return local.Sub(midnight)
}

func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	tod := c.timeOfDay(t)
	return tod >= c.open && tod < c.close
}

// InEntryWindow reports whether new entries may be opened at t.
func (c *Calendar) InEntryWindow(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	tod := c.timeOfDay(t)
	return tod >= c.entryStart && tod < c.entryEnd
}

// PastFlattenBy reports whether t is at or after the flatten-by boundary of a
// trading day.
func (c *Calendar) PastFlattenBy(t time.Time) bool {
	return c.IsTradingDay(t) && c.timeOfDay(t) >= c.flattenBy
}

func (c *Calendar) AfterClose(t time.Time) bool {
	return c.IsTradingDay(t) && c.timeOfDay(t) >= c.close
}

// NextOpen returns the next session open strictly after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < 14; i++ {
		open := day.Add(c.open)
		if open.After(t) && c.IsTradingDay(open) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(c.open)
}
