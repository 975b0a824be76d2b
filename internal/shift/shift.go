// Package shift answers whether an agent is on duty at a given instant and
// whether its shift covers a ticket's deadline.
//
// A nil *Shift is the "no shift" case: the agent is always on duty and can
// serve any deadline. Every method is safe to call on a nil receiver, so
// callers never branch on the shift being present.
package shift

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/errs"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

// Clock builds a TimeOfDay from hours and minutes.
func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock(parsed.Hour(), parsed.Minute()), nil
}

// Shift is a weekly recurring window. The window on each active weekday is
// [Start, End) in the shift's timezone. Overnight windows are not supported.
type Shift struct {
	Start    TimeOfDay
	End      TimeOfDay
	Weekdays []time.Weekday
	// Timezone is an IANA name; empty means UTC.
	Timezone string
}

// Parse builds a validated Shift. Weekdays use ISO numbering, 1=Monday
// through 7=Sunday; 0 is accepted as Sunday.
func Parse(start, end string, weekdays []int, timezone string) (*Shift, error) {
	s := &Shift{Timezone: timezone}
	var err error
	if s.Start, err = ParseTimeOfDay(start); err != nil {
		return nil, errs.Invalid("shift.start", "%v", err)
	}
	if s.End, err = ParseTimeOfDay(end); err != nil {
		return nil, errs.Invalid("shift.end", "%v", err)
	}
	for _, d := range weekdays {
		if d < 0 || d > 7 {
			return nil, errs.Invalid("shift.weekdays", "weekday %d out of range 1-7", d)
		}
		s.Weekdays = append(s.Weekdays, time.Weekday(d%7))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects a shift whose start is not before its end, times outside
// a day, and unknown timezones.
func (s *Shift) Validate() error {
	if s == nil {
		return nil
	}
	if s.Start < 0 || s.End > Clock(24, 0) {
		return errs.Invalid("shift", "times must lie within a day")
	}
	if s.Start >= s.End {
		return errs.Invalid("shift", "start %s must be before end %s", s.Start, s.End)
	}
	for _, d := range s.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return errs.Invalid("shift.weekdays", "invalid weekday %d", d)
		}
	}
	if _, err := loadLocation(s.Timezone); err != nil {
		return errs.Invalid("shift.timezone", "%v", err)
	}
	return nil
}

// OnDuty reports whether t falls inside one of the shift's windows.
func (s *Shift) OnDuty(t time.Time) bool {
	if s == nil {
		return true
	}
	local := t.In(s.location())
	if !s.activeOn(local.Weekday()) {
		return false
	}
	now := Clock(local.Hour(), local.Minute())
	return now >= s.Start && now < s.End
}

// CoverageEnd returns the end of the window covering now or, when now is
// off duty, the end of the next window. It returns false for a nil shift
// and for a shift with no active weekdays.
func (s *Shift) CoverageEnd(now time.Time) (time.Time, bool) {
	if s == nil || len(s.Weekdays) == 0 {
		return time.Time{}, false
	}
	loc := s.location()
	local := now.In(loc)
	y, m, d := local.Date()
	for i := 0; i <= 7; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !s.activeOn(day.Weekday()) {
			continue
		}
		end := time.Date(y, m, d+i, s.End.Hour(), s.End.Minute(), 0, 0, loc)
		if end.After(now) {
			return end, true
		}
	}
	return time.Time{}, false
}

// CanServe reports whether a ticket due at due can be given to an agent
// working this shift at now: the due date must not fall after the end of the
// current or next window.
func (s *Shift) CanServe(due, now time.Time) bool {
	if s == nil {
		return true
	}
	end, ok := s.CoverageEnd(now)
	if !ok {
		return false
	}
	return !due.After(end)
}

// Clone returns a deep copy.
func (s *Shift) Clone() *Shift {
	if s == nil {
		return nil
	}
	c := *s
	c.Weekdays = append([]time.Weekday(nil), s.Weekdays...)
	return &c
}

func (s *Shift) activeOn(d time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

func (s *Shift) location() *time.Location {
	loc, err := loadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var locations sync.Map

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locations.Store(name, loc)
	return loc, nil
}

type shiftJSON struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Weekdays []int  `json:"weekdays"`
	Timezone string `json:"timezone,omitempty"`
}

func (s Shift) MarshalJSON() ([]byte, error) {
	days := make([]int, 0, len(s.Weekdays))
	for _, d := range s.Weekdays {
		if d == time.Sunday {
			days = append(days, 7)
			continue
		}
		days = append(days, int(d))
	}
	return json.Marshal(shiftJSON{
		Start:    s.Start.String(),
		End:      s.End.String(),
		Weekdays: days,
		Timezone: s.Timezone,
	})
}

func (s *Shift) UnmarshalJSON(b []byte) error {
	var raw shiftJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw.Start, raw.End, raw.Weekdays, raw.Timezone)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
