package common

import "time"

var processStart = time.Now()

// fallbackMonotonic uses the monotonic reading embedded in time.Time.
func fallbackMonotonic() int64 {
	return int64(time.Since(processStart)) + SecondNs
}
