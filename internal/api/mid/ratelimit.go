package mid

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/leakwatch/leakwatch/internal/api/errs"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// RateLimit rejects requests above the limiter's sustained rate with a 429.
// A nil limiter disables throttling.
func RateLimit(limiter *rate.Limiter) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if limiter != nil && !limiter.Allow() {
				return errs.Newf(errs.TooManyRequests, "rate limit exceeded, retry later")
			}
			return next(ctx, r)
		}
		return h
	}
	return m
}
