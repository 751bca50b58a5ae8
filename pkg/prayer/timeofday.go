package prayer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// TimeOfDay is minutes since local midnight. It marshals as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM", ignoring a trailing timezone label such as
// " (EET)" that Al Adhan appends to timings.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, shell.Unparseable("aladhan", "time %q has no colon", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, shell.Unparseable("aladhan", "bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, shell.Unparseable("aladhan", "bad minute in %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// Of returns the time of day of t in t's location.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant at this time of day on the date of day, in day's
// location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, day.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
