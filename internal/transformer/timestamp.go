package transformer

import (
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout documents the only accepted account creation format.
const TimestampLayout = "YYYY-MM-DD HH:MM:SS.ffffff"

// Mirrors strptime("%Y-%m-%d %H:%M:%S.%f"): month, day and clock fields may
// have one or two digits, the fraction one to six.
var reTimestamp = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2}) (\d{1,2}):(\d{1,2}):(\d{1,2})\.(\d{1,6})$`)

// ParseTimestamp parses s in TimestampLayout as UTC. Anything that does not
// match exactly, or names an impossible date or time, yields ok=false.
func ParseTimestamp(s string) (time.Time, bool) {
	m := reTimestamp.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	n := make([]int, 6)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	year, month, day, hour, minute, sec := n[0], n[1], n[2], n[3], n[4], n[5]
	if year < 1 || month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	frac := m[7]
	micros, _ := strconv.Atoi(frac)
	for i := len(frac); i < 6; i++ {
		micros *= 10
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, micros*1000, time.UTC)
	if t.Day() != day {
		// time.Date normalizes Feb 30 into March.
		return time.Time{}, false
	}
	return t, true
}
