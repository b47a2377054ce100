package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries int           // Maximum number of retries
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Upper bound for any single delay
	Multiplier float64       // Growth factor between retries, 2 when unset
}

// ErrorClass groups remote errors by how a retry should treat them
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassPermanent
	ClassRateLimited
	ClassNetwork
	ClassServer
)

func (c ErrorClass) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassRateLimited:
		return "rate-limited"
	case ClassNetwork:
		return "network"
	case ClassServer:
		return "server"
	}
	return "unknown"
}

// Markers are matched against the lowercased error text in this order, so an
// authorization failure that mentions a rate limit stays permanent.
var classMarkers = []struct {
	class   ErrorClass
	markers []string
}{
	{ClassPermanent, []string{"401", "403", "unauthorized", "forbidden", "bad credentials", "insufficient storage"}},
	{ClassRateLimited, []string{"rate limit", "too many requests", "429"}},
	{ClassNetwork, []string{"timeout", "connection refused", "connection reset", "network is unreachable", "temporary failure", "no such host"}},
	{ClassServer, []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout", "423 locked", "502", "503", "504"}},
}

// Classify sorts err into an ErrorClass. Context errors are ClassUnknown: the
// caller gave up and nothing should be retried.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassUnknown
	}

	msg := strings.ToLower(err.Error())
	for _, group := range classMarkers {
		for _, marker := range group.markers {
			if strings.Contains(msg, marker) {
				return group.class
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassNetwork
	}
	return ClassUnknown
}

// IsRetryableError reports whether another attempt may succeed
func IsRetryableError(err error) bool {
	switch Classify(err) {
	case ClassRateLimited, ClassNetwork, ClassServer:
		return true
	}
	return false
}

// retryDelay is the wait before retry number attempt (0 based). Rate limits
// back off linearly in steps of 5s, everything else exponentially from
// BaseDelay.
func retryDelay(config RetryConfig, class ErrorClass, attempt int) time.Duration {
	var delay time.Duration
	if class == ClassRateLimited {
		delay = time.Duration(attempt+1) * 5 * time.Second
	} else {
		multiplier := config.Multiplier
		if multiplier <= 1 {
			multiplier = 2
		}
		delay = time.Duration(float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay + time.Duration(rand.Float64()*float64(delay)*0.1)
}

// RetryWithBackoff runs operation until it succeeds, fails permanently or
// MaxRetries retries are used up
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			class := Classify(lastErr)
			delay := retryDelay(config, class, attempt-1)
			logrus.Debugf("Retry attempt %d/%d after %v (%s error: %v)",
				attempt+1, config.MaxRetries+1, delay, class, lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				logrus.Debugf("Operation succeeded on attempt %d", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			logrus.Debugf("Error is not retryable: %v", err)
			return err
		}
	}

	logrus.Warnf("Giving up after %d attempts: %v", config.MaxRetries+1, lastErr)
	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
