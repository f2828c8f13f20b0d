package ratelimit

import (
	"strconv"
	"time"
)

// bucket returns the index of the window that now (unix ms) falls in.
// Windows are validated to be at least one millisecond long.
func bucket(now, window int64) int64 {
	return now / window
}

// bucketKey is the counter key for one identifier in one window:
// "{prefix}:{identifier}:{bucket}".
func bucketKey(prefix, identifier string, b int64) string {
	return prefix + ":" + identifier + ":" + strconv.FormatInt(b, 10)
}

// identifierKey is the key of state that spans windows (sliding log, token
// bucket): "{prefix}:{identifier}".
func identifierKey(prefix, identifier string) string {
	return prefix + ":" + identifier
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}
