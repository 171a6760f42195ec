package http

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter caps inbound websocket frames per connection. A nil limiter allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter allows perMinute frames per minute with bursts of the same size.
// perMinute <= 0 disables limiting.
func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}
