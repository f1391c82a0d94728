// Package schedule validates working program shifts.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

var (
	ErrInvalidDay   = errors.New("day_of_week must be between 1 and 7")
	ErrNoShifts     = errors.New("at least one shift is required")
	ErrShiftGap     = errors.New("shifts must be filled in order")
	ErrShiftOrder   = errors.New("shifts must be ordered and must not overlap")
	ErrShiftPartial = errors.New("shift start and end must both be set")
)

// ParseClock converts HH:MM into minutes after midnight. 24:00 is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || !twoDigits(h) || !twoDigits(m) {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || hh < 0 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return hh*60 + mm, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// Interval is a parsed shift in minutes, end exclusive.
type Interval struct {
	Start int
	End   int
}

// Intervals validates a day's shifts and returns the used ones in order.
func Intervals(shifts [3]model.Shift) ([]Interval, error) {
	var out []Interval
	seenEmpty := false
	for i, s := range shifts {
		start, end := strings.TrimSpace(s.Start), strings.TrimSpace(s.End)
		if start == "" && end == "" {
			seenEmpty = true
			continue
		}
		if start == "" || end == "" {
			return nil, fmt.Errorf("shift %d: %w", i+1, ErrShiftPartial)
		}
		if seenEmpty {
			return nil, fmt.Errorf("shift %d: %w", i+1, ErrShiftGap)
		}
		a, err := ParseClock(start)
		if err != nil {
			return nil, fmt.Errorf("shift %d: %w", i+1, err)
		}
		b, err := ParseClock(end)
		if err != nil {
			return nil, fmt.Errorf("shift %d: %w", i+1, err)
		}
		if a >= b {
			return nil, fmt.Errorf("shift %d: start must be before end", i+1)
		}
		if n := len(out); n > 0 && a < out[n-1].End {
			return nil, fmt.Errorf("shift %d: %w", i+1, ErrShiftOrder)
		}
		out = append(out, Interval{Start: a, End: b})
	}
	if len(out) == 0 {
		return nil, ErrNoShifts
	}
	return out, nil
}

// ValidateDay checks the day number and the shifts of one working program row.
func ValidateDay(day model.WorkingDay) error {
	if day.DayOfWeek < 1 || day.DayOfWeek > 7 {
		return ErrInvalidDay
	}
	_, err := Intervals(day.Shifts)
	return err
}

// Overlaps reports whether any shift of a intersects any shift of b. Both
// must already be valid.
func Overlaps(a, b [3]model.Shift) bool {
	ia, err := Intervals(a)
	if err != nil {
		return false
	}
	ib, err := Intervals(b)
	if err != nil {
		return false
	}
	for _, x := range ia {
		for _, y := range ib {
			if x.Start < y.End && y.Start < x.End {
				return true
			}
		}
	}
	return false
}

// Normalize trims every shift so stored values compare cleanly.
func Normalize(shifts [3]model.Shift) [3]model.Shift {
	for i := range shifts {
		shifts[i].Start = strings.TrimSpace(shifts[i].Start)
		shifts[i].End = strings.TrimSpace(shifts[i].End)
	}
	return shifts
}
