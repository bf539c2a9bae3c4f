package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

func fastPolicy(waits *[]time.Duration) auth.RetryPolicy {
	return auth.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		Notify: func(_ error, wait time.Duration) {
			if waits != nil {
				*waits = append(*waits, wait)
			}
		},
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	var waits []time.Duration
	attempts := 0

	out, err := auth.Retry(context.Background(), fastPolicy(&waits), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("read: connection reset by peer")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := auth.Retry(context.Background(), fastPolicy(nil), func() (int, error) {
		attempts++
		return 0, errors.New("network request failed")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "not found", err: &auth.RemoteError{Code: auth.NotFoundCode, Message: "timeout while fetching"}},
		{name: "routing", err: &auth.RemoteError{Code: "PGRST202", Message: "function not found"}},
		{name: "validation", err: auth.ErrUserNotPending},
		{name: "cancelled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			_, err := auth.Retry(context.Background(), fastPolicy(nil), func() (struct{}, error) {
				attempts++
				return struct{}{}, tt.err
			})
			require.Error(t, err)
			assert.Equal(t, 1, attempts)
			assert.False(t, auth.IsRetryable(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, auth.IsRetryable(nil))
	assert.True(t, auth.IsRetryable(errors.New("ECONNREFUSED")))
	assert.True(t, auth.IsRetryable(errors.New("i/o timeout")))
	assert.False(t, auth.IsRetryable(errors.New("duplicate key value")))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := auth.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
}
