package inter

import (
	"fmt"
	"time"
)

// Timestamp is a block timestamp in whole seconds since the Unix epoch, the
// resolution at which contracts observe time.
type Timestamp uint64

// FromTime truncates t to second precision. Times before the epoch map to 0.
func FromTime(t time.Time) Timestamp {
	if t.Unix() < 0 {
		return 0
	}
	return Timestamp(t.Unix())
}

// Unix returns the timestamp as Unix seconds.
func (t Timestamp) Unix() int64 {
	return int64(t)
}

// Time converts the timestamp to a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// Add returns t shifted forward by d, rounded down to whole seconds.
func (t Timestamp) Add(d time.Duration) Timestamp {
	if d <= 0 {
		return t
	}
	return t + Timestamp(d/time.Second)
}

// Since reports how long after `earlier` t is. It returns 0 when earlier is in
// the future, so elapsed-time checks never underflow.
func (t Timestamp) Since(earlier Timestamp) time.Duration {
	if earlier >= t {
		return 0
	}
	return time.Duration(t-earlier) * time.Second
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d", uint64(t))
}
