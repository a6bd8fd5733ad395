package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws/request"

	"secretsift/internal/config"
	"secretsift/internal/logging"
)

const jitterPercent = 0.1

// ServiceLimiter paces calls per API and retries throttled ones with exponential backoff.
// Each region owns its own limiter; limiters are never shared between inventories.
type ServiceLimiter struct {
	mu            sync.Mutex
	lastCallTimes map[string]time.Time
	config        config.RateLimitConfig
	apiLimits     map[string]int
}

// defaultAPILimits overrides the requests-per-second for individual EC2 APIs
var defaultAPILimits = map[string]int{
	// Called once per instance, so it gets more headroom than the listing calls
	"DescribeInstanceAttribute": 10,
}

// NewServiceLimiter creates a limiter from the given settings. Zero values fall back to defaults.
func NewServiceLimiter(cfg config.RateLimitConfig) *ServiceLimiter {
	defaults := config.DefaultRateLimitConfig
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}

	return &ServiceLimiter{
		lastCallTimes: make(map[string]time.Time),
		config:        cfg,
		apiLimits:     defaultAPILimits,
	}
}

// getInterval returns the minimum interval between requests for a given API
func (l *ServiceLimiter) getInterval(apiName string) time.Duration {
	if rps, ok := l.apiLimits[apiName]; ok && rps > 0 {
		return time.Second / time.Duration(rps)
	}
	return time.Second / time.Duration(l.config.RequestsPerSecond)
}

// addJitter adds random jitter to the delay
func addJitter(delay time.Duration) time.Duration {
	jitter := float64(delay) * jitterPercent
	return delay + time.Duration(jitter*(rand.Float64()*2-1))
}

// shouldRetry reports whether err is a throttling error worth retrying
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if request.IsErrorThrottle(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "throttling") ||
		strings.Contains(errStr, "rate exceeded") ||
		strings.Contains(errStr, "limit exceeded") ||
		strings.Contains(errStr, "too many requests")
}

// wait blocks until apiName may be called again and records the call time
func (l *ServiceLimiter) wait(ctx context.Context, apiName string) error {
	l.mu.Lock()
	lastCall, exists := l.lastCallTimes[apiName]
	minWait := l.getInterval(apiName)

	next := time.Now()
	if exists && next.Sub(lastCall) < minWait {
		next = lastCall.Add(minWait)
	}
	// Reserve the slot before sleeping so concurrent callers queue behind it
	l.lastCallTimes[apiName] = next
	l.mu.Unlock()

	sleepTime := time.Until(next)
	if sleepTime <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleepTime):
		return nil
	}
}

// Execute executes a function with rate limiting and exponential backoff
func (l *ServiceLimiter) Execute(ctx context.Context, apiName string, operation func() error) error {
	var err error
	delay := l.config.BaseDelay

	for attempt := 0; attempt < l.config.MaxRetries; attempt++ {
		if werr := l.wait(ctx, apiName); werr != nil {
			return werr
		}

		err = operation()
		if !shouldRetry(err) {
			return err
		}

		if attempt == l.config.MaxRetries-1 {
			break
		}

		logging.Debug("Rate limited, retrying operation", map[string]interface{}{
			"api":      apiName,
			"attempt":  attempt + 1,
			"maxRetry": l.config.MaxRetries,
			"delay":    delay.String(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay)):
		}

		delay *= 2
		if delay > l.config.MaxDelay {
			delay = l.config.MaxDelay
		}
	}

	return fmt.Errorf("max retries exceeded for %s: %w", apiName, err)
}
