package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	auth "github.com/txnjournal/go-txn-auth"
)

func TestClassifyFetchError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected auth.FetchErrorKind
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "no rows", err: &auth.RemoteError{Code: auth.NotFoundCode}, expected: auth.FetchProfileMissing},
		{name: "row level security", err: &auth.RemoteError{Code: "42501", Message: "new row violates row-level security policy"}, expected: auth.FetchPolicyRejected},
		{name: "permission code", err: &auth.RemoteError{Code: "42501", Message: "denied"}, expected: auth.FetchPermissionDenied},
		{name: "forbidden status", err: &auth.RemoteError{Status: http.StatusForbidden}, expected: auth.FetchPermissionDenied},
		{name: "other database code", err: &auth.RemoteError{Code: "23505", Message: "duplicate key"}, expected: auth.FetchDatabase},
		{name: "deadline", err: fmt.Errorf("lookup: %w", context.DeadlineExceeded), expected: auth.FetchTimeout},
		{name: "transport", err: errors.New("Failed to fetch"), expected: auth.FetchTransport},
		{name: "dns", err: errors.New("dial tcp: lookup db: no such host"), expected: auth.FetchTransport},
		{name: "rich not found", err: goerrors.New("gone", goerrors.CategoryNotFound), expected: auth.FetchProfileMissing},
		{name: "already classified", err: auth.NewFetchError(auth.FetchPolicyRejected, nil), expected: auth.FetchPolicyRejected},
		{name: "unknown", err: errors.New("weird"), expected: auth.FetchUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.ClassifyFetchError(tt.err))
		})
	}
}

func TestAuthErrorFromProvider(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    auth.AuthErrorKind
	}{
		{400, "Invalid login credentials", auth.AuthInvalidCredentials},
		{400, "Email not confirmed", auth.AuthEmailNotConfirmed},
		{429, "", auth.AuthRateLimited},
		{422, "User already registered", auth.AuthAlreadyRegistered},
		{422, "Password should be at least 6 characters", auth.AuthWeakPassword},
		{400, "Unable to validate email address: invalid format", auth.AuthInvalidEmail},
		{500, "database exploded", auth.AuthUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			err := auth.AuthErrorFromProvider(tt.status, tt.message)
			assert.Equal(t, tt.want, auth.AuthErrorKindOf(err))

			var remote *auth.RemoteError
			assert.True(t, errors.As(err, &remote))
		})
	}
}

func TestNewAuthErrorCategories(t *testing.T) {
	var rich *goerrors.Error

	assert.True(t, errors.As(auth.NewAuthError(auth.AuthRateLimited, nil), &rich))
	assert.Equal(t, goerrors.CategoryRateLimit, rich.Category)
	assert.Equal(t, http.StatusTooManyRequests, rich.Code)

	assert.True(t, errors.As(auth.NewAuthError(auth.AuthAlreadyRegistered, nil), &rich))
	assert.Equal(t, goerrors.CategoryConflict, rich.Category)

	assert.True(t, errors.As(auth.NewAuthError(auth.AuthInvalidCredentials, errors.New("cause")), &rich))
	assert.Equal(t, goerrors.CategoryAuth, rich.Category)
	assert.Equal(t, "invalid credentials", rich.Message)
}

func TestTextCodeOf(t *testing.T) {
	assert.Equal(t, "", auth.TextCodeOf(nil))
	assert.Equal(t, "", auth.TextCodeOf(errors.New("plain")))
	assert.Equal(t, auth.TextCodeUserNotPending, auth.TextCodeOf(auth.ErrUserNotPending))
	assert.True(t, auth.HasTextCode(auth.ErrConfirmationRequired, auth.TextCodeConfirmationRequired))
	assert.False(t, auth.HasTextCode(nil, auth.TextCodeConfirmationRequired))
	assert.Equal(t, auth.AuthUnknown, auth.AuthErrorKindOf(auth.ErrUserNotPending))
}

func TestIsConfigMissing(t *testing.T) {
	cfg := &auth.Config{}
	err := cfg.Validate()
	assert.True(t, auth.IsConfigMissing(err))

	var rich *goerrors.Error
	assert.True(t, errors.As(err, &rich))
	assert.Equal(t, []string{"SUPABASE_URL", "SUPABASE_ANON_KEY"}, rich.Metadata["missing"])
}
