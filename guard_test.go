package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

func TestAccessGuardEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		profile *auth.UserProfile
		err     error
		req     auth.Requirement
		want    auth.DecisionKind
		cause   string
	}{
		{
			name:    "active moderator enters the admin panel",
			profile: profile("u1", auth.RoleModerator, auth.StatusActive),
			req:     auth.RequireAdminPanel,
			want:    auth.DecisionGranted,
		},
		{
			name:    "active user is below the bar",
			profile: profile("u1", auth.RoleUser, auth.StatusActive),
			req:     auth.RequireAdminPanel,
			want:    auth.DecisionDeniedInsufficientRole,
		},
		{
			name:    "pending admin is unapproved before the role check",
			profile: profile("u1", auth.RoleAdmin, auth.StatusPending),
			req:     auth.RequireAdminPanel,
			want:    auth.DecisionDeniedUnapproved,
		},
		{
			name:    "suspended super admin is unapproved",
			profile: profile("u1", auth.RoleSuperAdmin, auth.StatusSuspended),
			req:     auth.RequireAdminPanel,
			want:    auth.DecisionDeniedUnapproved,
		},
		{
			name:    "moderator is below user management",
			profile: profile("u1", auth.RoleModerator, auth.StatusActive),
			req:     auth.RequireUserManagement,
			want:    auth.DecisionDeniedInsufficientRole,
		},
		{
			name:    "unknown role from the source is a system error",
			profile: profile("u1", auth.Role("owner"), auth.StatusActive),
			req:     auth.RequireAdminPanel,
			want:    auth.DecisionDeniedSystemError,
			cause:   auth.TextCodeInvalidRole,
		},
		{
			name:  "missing profile is a system error",
			err:   auth.NewFetchError(auth.FetchProfileMissing, nil),
			req:   auth.RequireAdminPanel,
			want:  auth.DecisionDeniedSystemError,
			cause: string(auth.FetchProfileMissing),
		},
		{
			name:  "policy rejection is classified",
			err:   &auth.RemoteError{Code: "42501", Message: "new row violates row-level security policy"},
			req:   auth.RequireAdminPanel,
			want:  auth.DecisionDeniedSystemError,
			cause: string(auth.FetchPolicyRejected),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &MockProfileSource{}
			source.On("Resolve", mock.Anything, mock.Anything).Return(tt.profile, tt.err).Once()

			guard := auth.NewAccessGuard(source, auth.WithGuardLogger(auth.NewZapLogger(nil)))
			d := guard.Evaluate(context.Background(), auth.SessionState{Session: session("u1")}, tt.req, "/admin")

			assert.Equal(t, tt.want, d.Kind, d.Reason)
			assert.Equal(t, tt.cause, d.Cause)
			if tt.want != auth.DecisionDeniedSystemError {
				assert.Equal(t, tt.profile.Role, d.Role)
				assert.NotNil(t, d.Profile)
			}
			if tt.want == auth.DecisionDeniedSystemError {
				assert.NotEmpty(t, d.Reason)
				assert.Error(t, d.Err)
			}
			source.AssertExpectations(t)
		})
	}
}

func TestAccessGuardUnauthenticated(t *testing.T) {
	source := &MockProfileSource{}
	guard := auth.NewAccessGuard(source)

	d := guard.Evaluate(context.Background(), auth.SessionState{}, auth.RequireAdminPanel, "/admin/users?page=2")
	assert.Equal(t, auth.DecisionDeniedUnauthenticated, d.Kind)
	assert.Equal(t, "/auth?redirect=%2Fadmin%2Fusers%3Fpage%3D2", d.RedirectTo)
	source.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)

	d = guard.Evaluate(context.Background(), auth.SessionState{Resolving: true}, auth.RequireAdminPanel, "/admin")
	assert.Equal(t, auth.DecisionResolving, d.Kind)
}

func TestAccessGuardTimeout(t *testing.T) {
	source := &MockProfileSource{}
	source.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(profile("u1", auth.RoleAdmin, auth.StatusActive), nil)

	guard := auth.NewAccessGuard(source,
		auth.WithPermissionCheckTimeout(20*time.Millisecond),
		auth.WithGuardLocale(auth.LocaleTraditionalChinese),
	)

	d := guard.Evaluate(context.Background(), auth.SessionState{Session: session("u1")}, auth.RequireAdminPanel, "/admin")
	assert.Equal(t, auth.DecisionDeniedSystemError, d.Kind)
	assert.Equal(t, string(auth.FetchTimeout), d.Cause)
	assert.Equal(t, "權限檢查逾時，請重新整理頁面", d.Reason)
}

func TestAccessGuardCountsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	source := &MockProfileSource{}
	source.On("Resolve", mock.Anything, mock.Anything).Return(profile("u1", auth.RoleAdmin, auth.StatusActive), nil)
	guard := auth.NewAccessGuard(source, auth.WithGuardMetrics(metrics))

	guard.Evaluate(context.Background(), auth.SessionState{Session: session("u1")}, auth.RequireAdminPanel, "/admin")
	guard.Evaluate(context.Background(), auth.SessionState{Session: session("u1")}, auth.RequireAdminPanel, "/admin")
	guard.Evaluate(context.Background(), auth.SessionState{}, auth.RequireAdminPanel, "/admin")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DecisionCounter(auth.DecisionGranted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecisionCounter(auth.DecisionDeniedUnauthenticated)))

	_, err = auth.NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestBuildSignInRedirect(t *testing.T) {
	assert.Equal(t, "/auth?redirect=%2Fadmin", auth.BuildSignInRedirect("", "/admin"))
	assert.Equal(t, "/login", auth.BuildSignInRedirect("/login", "https://evil.example/admin"))
	assert.Equal(t, "/login", auth.BuildSignInRedirect("/login", "//evil.example"))
}

func TestResumePath(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "local path", target: "/admin/users", want: "/admin/users"},
		{name: "missing", target: "", want: "/"},
		{name: "absolute url", target: "https://evil.example", want: "/"},
		{name: "protocol relative", target: "//evil.example", want: "/"},
		{name: "backslash trick", target: "/\\evil.example", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.target != "" {
				q.Set(auth.RedirectParam, tt.target)
			}
			assert.Equal(t, tt.want, auth.ResumePath(q, "/"))
		})
	}
}

func TestGuardMonitorFollowsSession(t *testing.T) {
	backend := &MockAuthBackend{}
	backend.On("SignInWithPassword", mock.Anything, "mod@example.com", "secret1").
		Return(session("mod"), nil).Once()
	backend.On("SignOut", mock.Anything, mock.Anything).Return(nil).Once()

	source := &MockProfileSource{}
	source.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(profile("mod", auth.RoleModerator, auth.StatusActive), nil)
	source.On("Resolve", mock.Anything, mock.Anything).Return(profile("mod", auth.RoleModerator, auth.StatusActive), nil)

	provider := auth.NewSessionProvider(backend, source)
	require.NoError(t, provider.Init(context.Background(), ""))

	guard := auth.NewAccessGuard(source)

	var mu sync.Mutex
	var seen []auth.DecisionKind
	monitor := auth.NewGuardMonitor(guard, provider, auth.RequireAdminPanel, "/admin", func(d auth.Decision) {
		mu.Lock()
		seen = append(seen, d.Kind)
		mu.Unlock()
	})
	monitor.Start(context.Background())
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		return monitor.Decision().Kind == auth.DecisionDeniedUnauthenticated
	}, time.Second, 5*time.Millisecond)

	_, err := provider.SignIn(context.Background(), "mod@example.com", "secret1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return monitor.Decision().Kind == auth.DecisionGranted
	}, time.Second, 5*time.Millisecond)

	provider.SignOut(context.Background())
	assert.Eventually(t, func() bool {
		return monitor.Decision().Kind == auth.DecisionDeniedUnauthenticated
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, auth.DecisionGranted)
}

func TestAccessGuardCancelledParent(t *testing.T) {
	source := &MockProfileSource{}
	source.On("Resolve", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	guard := auth.NewAccessGuard(source)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := guard.Evaluate(ctx, auth.SessionState{Session: session("u1")}, auth.RequireAdminPanel, "/admin")
	assert.Equal(t, auth.DecisionDeniedSystemError, d.Kind)
	assert.True(t, errors.Is(d.Err, context.Canceled))
}

func TestGuardMonitorStopDetaches(t *testing.T) {
	backend := &MockAuthBackend{}
	backend.On("SignInWithPassword", mock.Anything, "adm@example.com", "secret1").
		Return(session("adm"), nil).Once()

	source := &MockProfileSource{}
	source.On("CreateOrUpdate", mock.Anything, mock.Anything).Return(profile("adm", auth.RoleAdmin, auth.StatusActive), nil)
	source.On("Resolve", mock.Anything, mock.Anything).Return(profile("adm", auth.RoleAdmin, auth.StatusActive), nil)

	provider := auth.NewSessionProvider(backend, source)
	require.NoError(t, provider.Init(context.Background(), ""))

	monitor := auth.NewGuardMonitor(auth.NewAccessGuard(source), provider, auth.RequireAdminPanel, "/admin", nil)
	monitor.Start(context.Background())
	assert.Eventually(t, func() bool {
		return monitor.Decision().Kind == auth.DecisionDeniedUnauthenticated
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Stop()
		}()
	}
	wg.Wait()

	_, err := provider.SignIn(context.Background(), "adm@example.com", "secret1")
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return monitor.Decision().Kind == auth.DecisionGranted
	}, 50*time.Millisecond, 5*time.Millisecond)
	source.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
