package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	auth "github.com/txnjournal/go-txn-auth"
)

// MockAdminStore implements auth.AdminStore
type MockAdminStore struct {
	mock.Mock
}

func (m *MockAdminStore) GetProfile(ctx context.Context, id string) (*auth.ProfileRecord, error) {
	args := m.Called(ctx, id)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) InsertProfile(ctx context.Context, record *auth.ProfileRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAdminStore) UpdateProfileDisplay(ctx context.Context, id string, fields auth.DisplayFields) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockAdminStore) CurrentUserInfo(ctx context.Context) (*auth.ProfileRecord, error) {
	args := m.Called(ctx)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) ApproveUser(ctx context.Context, targetID string) (*auth.ProfileRecord, error) {
	args := m.Called(ctx, targetID)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) DeactivateUser(ctx context.Context, targetID, reason string) (*auth.ProfileRecord, error) {
	args := m.Called(ctx, targetID, reason)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) UpdateRole(ctx context.Context, targetID string, role auth.Role, at time.Time) (*auth.ProfileRecord, error) {
	args := m.Called(ctx, targetID, role, at)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) UpdateStatus(ctx context.Context, targetID string, status auth.AccountStatus, at time.Time) (*auth.ProfileRecord, error) {
	args := m.Called(ctx, targetID, status, at)
	return recordArg(args, 0), args.Error(1)
}

func (m *MockAdminStore) ListProfiles(ctx context.Context, query auth.ProfileQuery) (*auth.ProfilePage, error) {
	args := m.Called(ctx, query)
	page, _ := args.Get(0).(*auth.ProfilePage)
	return page, args.Error(1)
}

func (m *MockAdminStore) CountProfiles(ctx context.Context) (*auth.UserStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*auth.UserStats)
	return stats, args.Error(1)
}

func (m *MockAdminStore) RecentRecords(ctx context.Context, table auth.JournalTable, limit int) ([]auth.RecentRecord, error) {
	args := m.Called(ctx, table, limit)
	rows, _ := args.Get(0).([]auth.RecentRecord)
	return rows, args.Error(1)
}

func (m *MockAdminStore) AppendAdminLog(ctx context.Context, entry *auth.AdminLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAdminStore) AppendStatusHistory(ctx context.Context, entry *auth.StatusHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func recordArg(args mock.Arguments, i int) *auth.ProfileRecord {
	record, _ := args.Get(i).(*auth.ProfileRecord)
	return record
}

// MockAuthBackend implements auth.AuthBackend
type MockAuthBackend struct {
	mock.Mock
}

func (m *MockAuthBackend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.Identity, error) {
	args := m.Called(ctx, email, password, metadata)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func (m *MockAuthBackend) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockAuthBackend) SignOut(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockAuthBackend) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	args := m.Called(ctx, accessToken)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func (m *MockAuthBackend) ResetPasswordForEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockProfileSource implements auth.ProfileSource and auth.ProfileSyncer
type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) Resolve(ctx context.Context, session *auth.Session) (*auth.UserProfile, error) {
	args := m.Called(ctx, session)
	profile, _ := args.Get(0).(*auth.UserProfile)
	return profile, args.Error(1)
}

func (m *MockProfileSource) CreateOrUpdate(ctx context.Context, session *auth.Session) (*auth.UserProfile, error) {
	args := m.Called(ctx, session)
	profile, _ := args.Get(0).(*auth.UserProfile)
	return profile, args.Error(1)
}

// MockLimiter implements auth.AttemptLimiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func session(id string) *auth.Session {
	return &auth.Session{
		Identity:    auth.Identity{ID: id, Email: id + "@example.com"},
		AccessToken: "token-" + id,
	}
}

func profile(id string, role auth.Role, status auth.AccountStatus) *auth.UserProfile {
	return &auth.UserProfile{ID: id, Email: id + "@example.com", Role: role, Status: status}
}

func record(id string, role auth.Role, status auth.AccountStatus) *auth.ProfileRecord {
	return &auth.ProfileRecord{ID: id, Email: id + "@example.com", Role: string(role), Status: string(status)}
}

func approvedRecord(id, approver string) *auth.ProfileRecord {
	r := record(id, auth.RoleUser, auth.StatusActive)
	at := fixedNow
	r.ApprovedAt = &at
	r.ApprovedBy = &approver
	return r
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }
