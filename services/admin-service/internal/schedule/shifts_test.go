package schedule

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func shifts(pairs ...string) [3]model.Shift {
	var out [3]model.Shift
	for i := 0; i+1 < len(pairs); i += 2 {
		out[i/2] = model.Shift{Start: pairs[i], End: pairs[i+1]}
	}
	return out
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{"00:00": 0, "09:30": 570, "24:00": 1440}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "9:30", "24:01", "12:60", "ab:cd", "0930", "+9:00", "-0:30", "09:+5", "+1:-0"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestValidateDay(t *testing.T) {
	tests := []struct {
		name    string
		day     model.WorkingDay
		wantErr error
	}{
		{"single shift", model.WorkingDay{DayOfWeek: 1, Shifts: shifts("09:00", "17:00")}, nil},
		{"three shifts", model.WorkingDay{DayOfWeek: 7, Shifts: shifts("08:00", "10:00", "10:00", "12:00", "13:00", "18:00")}, nil},
		{"bad day", model.WorkingDay{DayOfWeek: 0, Shifts: shifts("09:00", "17:00")}, ErrInvalidDay},
		{"no shifts", model.WorkingDay{DayOfWeek: 2}, ErrNoShifts},
		{"gap", model.WorkingDay{DayOfWeek: 3, Shifts: [3]model.Shift{{}, {Start: "09:00", End: "10:00"}}}, ErrShiftGap},
		{"overlap", model.WorkingDay{DayOfWeek: 4, Shifts: shifts("09:00", "12:00", "11:00", "13:00")}, ErrShiftOrder},
		{"partial", model.WorkingDay{DayOfWeek: 5, Shifts: shifts("09:00", "")}, ErrShiftPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDay(tt.day)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateDay(model.WorkingDay{DayOfWeek: 1, Shifts: shifts("17:00", "09:00")}); err == nil {
		t.Fatal("expected start after end to fail")
	}
}

func TestOverlaps(t *testing.T) {
	if !Overlaps(shifts("09:00", "12:00"), shifts("11:30", "14:00")) {
		t.Fatal("expected overlap")
	}
	if Overlaps(shifts("09:00", "12:00"), shifts("12:00", "14:00")) {
		t.Fatal("touching shifts must not overlap")
	}
	if Overlaps(shifts("09:00", "10:00", "15:00", "16:00"), shifts("10:00", "15:00")) {
		t.Fatal("expected no overlap")
	}
}
