package auth_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

func TestProfileResolverResolve(t *testing.T) {
	store := &MockAdminStore{}
	store.On("CurrentUserInfo", mock.MatchedBy(func(ctx context.Context) bool {
		return auth.ActorIDFromContext(ctx) == "u1"
	})).Return(record("u1", auth.RoleModerator, auth.StatusActive), nil).Once()

	resolver := auth.NewProfileResolver(store)
	p, err := resolver.Resolve(context.Background(), session("u1"))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, p.Role)
	store.AssertExpectations(t)
}

func TestProfileResolverResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		record *auth.ProfileRecord
		err    error
		want   string
	}{
		{name: "missing row", err: &auth.RemoteError{Code: auth.NotFoundCode, Message: "no rows"}, want: string(auth.FetchProfileMissing)},
		{name: "nil row", want: string(auth.FetchProfileMissing)},
		{name: "permission denied", err: &auth.RemoteError{Code: "42501", Message: "permission denied for table user_profiles"}, want: string(auth.FetchPermissionDenied)},
		{name: "network", err: &auth.RemoteError{Message: "connection refused"}, want: string(auth.FetchTransport)},
		{name: "other identity", record: record("someone-else", auth.RoleAdmin, auth.StatusActive), want: string(auth.FetchDatabase)},
		{name: "unknown role", record: &auth.ProfileRecord{ID: "u1", Role: "owner", Status: "active"}, want: auth.TextCodeInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockAdminStore{}
			store.On("CurrentUserInfo", mock.Anything).Return(tt.record, tt.err).Once()

			_, err := auth.NewProfileResolver(store).Resolve(context.Background(), session("u1"))
			require.Error(t, err)
			assert.Equal(t, tt.want, auth.TextCodeOf(err))
		})
	}
}

func TestProfileResolverResolveNeedsSession(t *testing.T) {
	store := &MockAdminStore{}
	_, err := auth.NewProfileResolver(store).Resolve(context.Background(), nil)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeNotAuthenticated))
	assert.Empty(t, store.Calls)
}

func TestProfileResolverCreatesPendingProfile(t *testing.T) {
	store := &MockAdminStore{}
	sink := &recordingSink{}

	s := session("u1")
	s.Identity.Metadata = map[string]any{
		"full_name":          "Trader One",
		"trading_experience": "professional",
		"initial_capital":    float64(50000),
		"currency":           "JPY",
		"timezone":           "Mars/Olympus",
		"role":               "super_admin",
	}

	store.On("GetProfile", mock.Anything, "u1").Return(nil, &auth.RemoteError{Code: auth.NotFoundCode}).Once()
	var inserted *auth.ProfileRecord
	store.On("InsertProfile", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*auth.ProfileRecord) }).
		Return(nil).Once()

	resolver := auth.NewProfileResolver(store, auth.WithResolverClock(clock), auth.WithResolverActivitySink(sink))
	p, err := resolver.CreateOrUpdate(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, auth.RoleUser, p.Role, "role never comes from metadata")
	assert.Equal(t, auth.StatusPending, p.Status)
	assert.Equal(t, "Trader One", p.FullName)
	assert.Equal(t, auth.ExperienceProfessional, p.TradingExperience)
	assert.True(t, decimal.NewFromInt(50000).Equal(p.InitialCapital))
	assert.Equal(t, "JPY", p.Currency)
	assert.Equal(t, auth.DefaultTimezone, p.Timezone)
	assert.Equal(t, fixedNow, p.CreatedAt)

	require.NotNil(t, inserted)
	assert.Equal(t, "user", inserted.Role)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventProfileCreated}, sink.Types())
	store.AssertExpectations(t)
}

func TestProfileResolverRefreshKeepsRoleAndStatus(t *testing.T) {
	store := &MockAdminStore{}
	s := session("u1")
	s.Identity.Email = "new@example.com"
	s.Identity.Metadata = map[string]any{"role": "super_admin"}

	existing := record("u1", auth.RoleModerator, auth.StatusSuspended)
	existing.Email = "old@example.com"
	existing.FullName = "Kept Name"

	store.On("GetProfile", mock.Anything, "u1").Return(existing, nil).Once()
	store.On("UpdateProfileDisplay", mock.Anything, "u1", auth.DisplayFields{
		Email:     "new@example.com",
		FullName:  "Kept Name",
		UpdatedAt: fixedNow,
	}).Return(nil).Once()

	p, err := auth.NewProfileResolver(store, auth.WithResolverClock(clock)).CreateOrUpdate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, p.Role)
	assert.Equal(t, auth.StatusSuspended, p.Status)
	assert.Equal(t, "new@example.com", p.Email)
	store.AssertNotCalled(t, "InsertProfile", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestProfileResolverRefreshSkipsUnchanged(t *testing.T) {
	store := &MockAdminStore{}
	store.On("GetProfile", mock.Anything, "u1").Return(record("u1", auth.RoleUser, auth.StatusActive), nil).Once()

	_, err := auth.NewProfileResolver(store).CreateOrUpdate(context.Background(), session("u1"))
	require.NoError(t, err)
	store.AssertNotCalled(t, "UpdateProfileDisplay", mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileResolverLookupFailureDoesNotCreate(t *testing.T) {
	store := &MockAdminStore{}
	store.On("GetProfile", mock.Anything, "u1").Return(nil, &auth.RemoteError{Message: "network request failed"}).Once()

	_, err := auth.NewProfileResolver(store).CreateOrUpdate(context.Background(), session("u1"))
	assert.Equal(t, string(auth.FetchTransport), auth.TextCodeOf(err))
	store.AssertNotCalled(t, "InsertProfile", mock.Anything, mock.Anything)
}

func TestNewProfileRecordDefaults(t *testing.T) {
	r := auth.NewProfileRecord(auth.Identity{ID: "u1", Email: "u1@example.com", Metadata: map[string]any{
		"initial_capital": "-10",
		"currency":        "XYZ",
	}}, fixedNow)

	assert.Equal(t, string(auth.ExperienceBeginner), r.TradingExperience)
	assert.True(t, auth.DefaultInitialCapital.Equal(r.InitialCapital))
	assert.Equal(t, auth.DefaultCurrency, r.Currency)
	assert.Equal(t, auth.DefaultTimezone, r.Timezone)
}
