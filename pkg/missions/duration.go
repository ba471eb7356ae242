package missions

import (
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// Duration computes the elapsed minutes between two HH:MM clock times on a
// single logical day. An end before the start means the flight crossed
// midnight, so a full day is added. Absent or unparsable inputs yield 0.
func Duration(start, end string) int {
	s, ok := parseClock(start)
	if !ok {
		return 0
	}
	e, ok := parseClock(end)
	if !ok {
		return 0
	}

	d := e - s
	if d < 0 {
		d += minutesPerDay
	}
	return d
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(v string) (int, bool) {
	h, m, found := strings.Cut(v, ":")
	if !found {
		return 0, false
	}

	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, false
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, false
	}

	return hours*60 + mins, true
}

// TotalMinutes sums the duration of the mission's flight logs.
func TotalMinutes(m Mission) int {
	total := 0
	for _, l := range m.Logs {
		total += Duration(l.Start, l.End)
	}
	return total
}
