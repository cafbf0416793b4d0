package rpc

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("rate limit exceeded")

// maxRateDelay is the longest a request waits for a token before it is
// rejected instead.
const maxRateDelay = 2 * time.Second

// newLimiter returns a limiter admitting perSecond requests with the given
// burst; a non-positive rate disables limiting.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// limiting for a single request
func rateLimit(limiter *rate.Limiter) error {
	r := limiter.Reserve()
	if !r.OK() {
		return errRateLimited
	}
	delay := r.Delay()
	if delay > maxRateDelay {
		r.Cancel()
		return errRateLimited
	}
	time.Sleep(delay)
	return nil
}
