package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Days is the fixed Sunday-first day-of-week domain. The index of each day
// matches time.Weekday.
var Days = [7]string{"일", "월", "화", "수", "목", "금", "토"}

// DayOf returns the Korean day string for a weekday.
func DayOf(wd time.Weekday) string {
	return Days[int(wd)]
}

// ValidDay reports whether day is a member of the 7-value domain.
func ValidDay(day string) bool {
	for _, d := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// ScheduleRecord is one bookable free-swim window at one facility. Records
// are regenerated wholesale per facility per refinement pass and never
// updated in place. PoolCode is denormalized so availability reads do not
// need a join.
type ScheduleRecord struct {
	PoolCode  string    `bson:"pool_code" json:"pool_code"`
	Day       string    `bson:"day" json:"day"`
	TimeRange string    `bson:"time_range" json:"time_range"`
	AdultFee  *int      `bson:"adult_fee,omitempty" json:"adult_fee,omitempty"`
	TeenFee   *int      `bson:"teen_fee,omitempty" json:"teen_fee,omitempty"`
	ChildFee  *int      `bson:"child_fee,omitempty" json:"child_fee,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// StartMinutes parses the record's time range and returns the start as
// minutes since midnight.
func (r ScheduleRecord) StartMinutes() (int, error) {
	start, _, err := ParseTimeRange(r.TimeRange)
	return start, err
}

// Validate checks the record against the domain: a known day, a parseable
// same-day time range, and non-negative fees where present.
func (r ScheduleRecord) Validate() error {
	if !ValidDay(r.Day) {
		return fmt.Errorf("day %q outside the %v domain", r.Day, Days)
	}
	if _, _, err := ParseTimeRange(r.TimeRange); err != nil {
		return err
	}
	for name, fee := range map[string]*int{"adult_fee": r.AdultFee, "teen_fee": r.TeenFee, "child_fee": r.ChildFee} {
		if fee != nil && *fee < 0 {
			return fmt.Errorf("%s is negative: %d", name, *fee)
		}
	}
	return nil
}

// ParseTimeRange converts "HH:MM-HH:MM" into start and end minutes since
// midnight. Whitespace around the dash is tolerated; everything else about
// the shape is strict.
func ParseTimeRange(tr string) (start, end int, err error) {
	parts := strings.SplitN(tr, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time range %q: want HH:MM-HH:MM", tr)
	}
	start, err = parseHHMM(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: %w", tr, err)
	}
	end, err = parseHHMM(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: %w", tr, err)
	}
	return start, end, nil
}

func parseHHMM(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("clock value %q: want HH:MM", s)
	}
	hour, errH := strconv.Atoi(hh)
	mins, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return hour*60 + mins, nil
}
