// Package schedule normalizes weekly class schedules and tells whether two of them collide.
package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidTime is returned for time strings that are neither `HH:MM` nor `HH:MM AM|PM`.
var ErrInvalidTime = errors.New("invalid time")

// Schedule is a weekly recurring time window. Day is `Mon` or `Monday`,
// times are `HH:MM` (24h) or `HH:MM AM|PM` (12h).
type Schedule struct {
	Day      string `json:"day" db:"day" validate:"required,weekday"`
	FromTime string `json:"from_time" db:"from_time" validate:"required,timeofday"`
	ToTime   string `json:"to_time" db:"to_time" validate:"required,timeofday"`
}

func (s Schedule) String() string {
	return fmt.Sprintf("%s %s-%s", s.Day, s.FromTime, s.ToTime)
}

// Window returns the schedule bounds in minutes since midnight.
func (s Schedule) Window() (from, to int, err error) {
	if from, err = TimeToMinutes(s.FromTime); err != nil {
		return 0, 0, errors.Wrap(err, "parsing from_time")
	}
	if to, err = TimeToMinutes(s.ToTime); err != nil {
		return 0, 0, errors.Wrap(err, "parsing to_time")
	}
	return from, to, nil
}

// TimeToMinutes converts `HH:MM` or `HH:MM AM|PM` into minutes since midnight (0-1439).
// Minutes take two digits and may be left out with their colon, eg. `13`. The empty string is 0.
func TimeToMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var period string
	for _, p := range []string{"AM", "PM"} {
		if strings.Contains(s, p) {
			period = p
			s = strings.TrimSpace(strings.Replace(s, p, "", 1))
			break
		}
	}

	hour, minute, err := splitClock(s)
	if err != nil {
		return 0, err
	}

	switch period {
	case "":
		if hour > 23 {
			return 0, errors.Wrapf(ErrInvalidTime, "hour %d out of range", hour)
		}
	default:
		if hour > 12 {
			return 0, errors.Wrapf(ErrInvalidTime, "hour %d out of range", hour)
		}
		if period == "PM" && hour != 12 {
			hour += 12
		} else if period == "AM" && hour == 12 {
			hour = 0
		}
	}
	return hour*60 + minute, nil
}

// splitClock parses `H`, `HH`, `H:MM` or `HH:MM`.
func splitClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if !isDigits(parts[0], 1, 2) {
		return 0, 0, errors.Wrapf(ErrInvalidTime, "hour %q", parts[0])
	}
	hour, _ = strconv.Atoi(parts[0])
	if len(parts) == 2 {
		if !isDigits(parts[1], 2, 2) {
			return 0, 0, errors.Wrapf(ErrInvalidTime, "minute %q", parts[1])
		}
		if minute, _ = strconv.Atoi(parts[1]); minute > 59 {
			return 0, 0, errors.Wrapf(ErrInvalidTime, "minute %q", parts[1])
		}
	}
	return hour, minute, nil
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsValidTime reports whether s is a non-empty time TimeToMinutes accepts.
func IsValidTime(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, err := TimeToMinutes(s)
	return err == nil
}

// CheckTimeOverlap reports whether a and b fall on the same day and their half-open
// windows intersect. Days are compared as given; normalize them first.
// Windows that fail to parse never overlap.
func CheckTimeOverlap(a, b Schedule) bool {
	if a.Day != b.Day {
		return false
	}
	start1, end1, err := a.Window()
	if err != nil {
		return false
	}
	start2, end2, err := b.Window()
	if err != nil {
		return false
	}
	return start1 < end2 && start2 < end1
}
