package workflow

import (
	"fmt"
	"time"
)

// FormatDuration renders d as m:ss, truncating to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// ElapsedDuration formats end-start. A zero start yields "0:00".
func ElapsedDuration(start, end time.Time) string {
	if start.IsZero() {
		return "0:00"
	}
	return FormatDuration(end.Sub(start))
}
