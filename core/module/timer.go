package module

import (
	"fmt"
	"time"
)

// timestampLayout renders times as MM-DD-YYYY HH:MM:SS.mmm.
const timestampLayout = "01-02-2006 15:04:05.000"

// Timestamp returns the current local time formatted for profiling
// records.
func Timestamp() string { return time.Now().Format(timestampLayout) }

// FormatElapsed renders a duration as "<h> h <m> m <s> s <ms> ms".
func FormatElapsed(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%d h %d m %d s %d ms", h, m, s, ms)
}

// callRecord is one completed run: when it started, how long it took,
// and which submodule slots it invoked, in call order.
type callRecord struct {
	stamp   string
	elapsed time.Duration
	submods []string
}

func (r callRecord) String() string {
	return r.stamp + " : " + FormatElapsed(r.elapsed)
}
