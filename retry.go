package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var transientMarkers = []string{
	"failed to fetch",
	"network request failed",
	"timeout",
	"econnreset",
	"enotfound",
	"econnrefused",
	// net package spellings of the same failures
	"connection reset",
	"no such host",
	"connection refused",
}

// RetryPolicy configures the transport retry wrapper.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	// Notify is called before each retry sleep.
	Notify func(err error, wait time.Duration)
}

// DefaultRetryPolicy retries 3 times with 1s then 2s waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultRetryMaxAttempts,
		InitialInterval: DefaultRetryInitialInterval,
	}
}

// Retry runs op, retrying only transient transport failures.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryMaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryInitialInterval
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = policy.InitialInterval << uint(policy.MaxAttempts)

	opts := []backoff.RetryOption{
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
	}
	if policy.Notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(policy.Notify)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		out, err := op()
		if err != nil && !IsRetryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, opts...)
}

// IsRetryable reports whether err is a transient transport failure.
// Not-found and routing errors are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.Code == NotFoundCode || strings.HasPrefix(remote.Code, "PGRST2") || remote.Status == http.StatusNotFound {
			return false
		}
	}
	if ClassifyFetchError(err) == FetchProfileMissing {
		return false
	}

	return isTransientMessage(err.Error())
}

func isTransientMessage(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
