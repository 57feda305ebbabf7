package cache

import (
	"fmt"
	"time"
)

// RateLimitKey returns the counter key for client in the fixed window
// containing now.
func RateLimitKey(client string, window time.Duration, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", client, now.Unix()/int64(window.Seconds()))
}
