package provenance

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// HumanDuration renders seconds as "2h 3m 4s". Up to one minute the seconds
// keep millisecond precision ("1.234s"); above, they are truncated.
func HumanDuration(seconds float64) string {
	hours := math.Floor(seconds / 3600)
	minutes := math.Floor(math.Mod(seconds, 3600) / 60)
	rest := math.Mod(seconds, 60)

	var b strings.Builder
	if hours != 0 {
		fmt.Fprintf(&b, "%dh ", int64(hours))
	}
	if minutes != 0 || hours != 0 {
		fmt.Fprintf(&b, "%dm ", int64(minutes))
	}
	if seconds > 60 {
		fmt.Fprintf(&b, "%ds", int64(math.Floor(rest)))
	} else {
		s := strconv.FormatFloat(math.Round(rest*1000)/1000, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		b.WriteString(s + "s")
	}
	return b.String()
}

// DurationOf converts d for storage in an entry.
func DurationOf(d time.Duration) *Duration {
	return NewDuration(d.Seconds())
}
