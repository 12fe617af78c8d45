package mailer

import (
	"errors"
	"net"
	"net/textproto"
	"time"
)

// IsRetryable reports whether a failed send may succeed later:
// network failures and SMTP 4xx replies are transient, everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// backoff returns the wait before retry number attempt (1-based), capped at max.
func backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if d >= float64(max) {
			return max
		}
	}
	return min(time.Duration(d), max)
}
