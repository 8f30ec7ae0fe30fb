package delivery

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// parseClock parses HH:MM into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidPreference, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InQuietHours reports whether now falls inside the quiet-hours window,
// evaluated in loc. The end minute is exclusive; equal start and end is an
// empty window.
func InQuietHours(q QuietHours, now time.Time, loc *time.Location) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}

	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	switch {
	case start == end:
		return false
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

// InBatchWindow reports whether now is within tolerance of any batch time,
// evaluated in loc. Windows wrap across midnight.
func InBatchWindow(b BatchDelivery, now time.Time, loc *time.Location, tolerance time.Duration) bool {
	if !b.Enabled {
		return false
	}
	local := now.In(loc)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	const day = minutesPerDay * 60

	for _, t := range b.Times {
		m, err := parseClock(t)
		if err != nil {
			continue
		}
		d := secs - m*60
		if d < 0 {
			d = -d
		}
		if day-d < d {
			d = day - d
		}
		if time.Duration(d)*time.Second <= tolerance {
			return true
		}
	}
	return false
}
