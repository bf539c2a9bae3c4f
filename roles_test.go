package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

func TestRoleLevels(t *testing.T) {
	assert.Equal(t, 1, auth.RoleUser.Level())
	assert.Equal(t, 2, auth.RoleModerator.Level())
	assert.Equal(t, 3, auth.RoleAdmin.Level())
	assert.Equal(t, 4, auth.RoleSuperAdmin.Level())
	assert.Equal(t, 0, auth.Role("owner").Level())
}

func TestRoleIsAtLeast(t *testing.T) {
	tests := []struct {
		name string
		role auth.Role
		min  auth.Role
		want bool
	}{
		{name: "same role", role: auth.RoleAdmin, min: auth.RoleAdmin, want: true},
		{name: "higher role", role: auth.RoleSuperAdmin, min: auth.RoleModerator, want: true},
		{name: "lower role", role: auth.RoleUser, min: auth.RoleModerator, want: false},
		{name: "unknown role", role: auth.Role("owner"), min: auth.RoleUser, want: false},
		{name: "unknown minimum", role: auth.RoleSuperAdmin, min: auth.Role(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.IsAtLeast(tt.min))
		})
	}
}

func TestRolePredicates(t *testing.T) {
	tests := []struct {
		role        auth.Role
		adminPanel  bool
		manageUsers bool
	}{
		{role: auth.RoleUser, adminPanel: false, manageUsers: false},
		{role: auth.RoleModerator, adminPanel: true, manageUsers: false},
		{role: auth.RoleAdmin, adminPanel: true, manageUsers: true},
		{role: auth.RoleSuperAdmin, adminPanel: true, manageUsers: true},
		{role: auth.Role("root"), adminPanel: false, manageUsers: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.adminPanel, auth.IsAdminRole(tt.role))
			assert.Equal(t, tt.adminPanel, auth.CanAccessAdminPanel(tt.role))
			assert.Equal(t, tt.manageUsers, auth.CanManageUsers(tt.role))
		})
	}
}

func TestCanManageRole(t *testing.T) {
	assert.True(t, auth.CanManageRole(auth.RoleSuperAdmin, auth.RoleAdmin))
	assert.True(t, auth.CanManageRole(auth.RoleSuperAdmin, auth.RoleUser))
	assert.False(t, auth.CanManageRole(auth.RoleSuperAdmin, auth.RoleSuperAdmin))
	assert.False(t, auth.CanManageRole(auth.RoleAdmin, auth.RoleModerator))
	assert.False(t, auth.CanManageRole(auth.RoleModerator, auth.RoleAdmin))
	assert.False(t, auth.CanManageRole(auth.RoleSuperAdmin, auth.Role("owner")))

	assert.Equal(t,
		[]auth.Role{auth.RoleUser, auth.RoleModerator, auth.RoleAdmin},
		auth.AssignableRoles(auth.RoleSuperAdmin),
	)
	assert.Empty(t, auth.AssignableRoles(auth.RoleAdmin))
}

func TestParseRole(t *testing.T) {
	role, err := auth.ParseRole(" moderator ")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, role)

	_, err = auth.ParseRole("Admin")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidRole))
	assert.True(t, auth.IsValidationError(err))

	assert.True(t, auth.IsValidRole("super_admin"))
	assert.False(t, auth.IsValidRole(""))
}

func TestSortRolesByLevel(t *testing.T) {
	roles := []auth.Role{auth.RoleModerator, auth.RoleUser, auth.RoleSuperAdmin, auth.RoleAdmin}
	auth.SortRolesByLevel(roles)
	assert.Equal(t, []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleModerator, auth.RoleUser}, roles)
}

func TestRoleInfo(t *testing.T) {
	assert.Equal(t, "Administrator", auth.RoleAdmin.DisplayName(auth.LocaleEnglish))
	assert.Equal(t, "管理員", auth.RoleAdmin.DisplayName(auth.LocaleTraditionalChinese))
	assert.Equal(t, "Moderator", auth.RoleModerator.DisplayName("fr"))

	info := auth.Role("owner").Info(auth.LocaleEnglish)
	assert.Equal(t, "owner", info.DisplayName)
	assert.Equal(t, "gray", info.Color)
	assert.Equal(t, 0, info.Level)
}

func TestStatusPredicates(t *testing.T) {
	for _, status := range auth.Statuses() {
		assert.True(t, status.IsValid(), status)
	}
	assert.False(t, auth.AccountStatus("banned").IsValid())

	assert.True(t, auth.StatusActive.IsActive())
	assert.False(t, auth.StatusPending.IsActive())

	assert.True(t, auth.StatusInactive.IsDestructive())
	assert.True(t, auth.StatusSuspended.IsDestructive())
	assert.False(t, auth.StatusActive.IsDestructive())
	assert.False(t, auth.StatusPending.IsDestructive())
}

func TestParseStatus(t *testing.T) {
	status, err := auth.ParseStatus("suspended")
	require.NoError(t, err)
	assert.Equal(t, auth.StatusSuspended, status)

	_, err = auth.ParseStatus("banned")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidStatus))

	assert.Equal(t, "待審核", auth.StatusPending.Info(auth.LocaleTraditionalChinese).DisplayName)
}

func TestProfileRecordRejectsUnknownValues(t *testing.T) {
	p, err := record("u1", auth.RoleAdmin, auth.StatusActive).Profile()
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, p.Role)
	assert.Equal(t, auth.StatusActive, p.Status)

	_, err = (&auth.ProfileRecord{ID: "u1", Role: "owner", Status: "active"}).Profile()
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidRole))

	_, err = (&auth.ProfileRecord{ID: "u1", Role: "user", Status: "banned"}).Profile()
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidStatus))

	var nilRecord *auth.ProfileRecord
	_, err = nilRecord.Profile()
	assert.Equal(t, auth.FetchProfileMissing, auth.ClassifyFetchError(err))
}

func TestProfileQueryNormalize(t *testing.T) {
	q := auth.ProfileQuery{}.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, auth.DefaultPageSize, q.PageSize)
	assert.Equal(t, 0, q.Offset())

	q = auth.ProfileQuery{Page: 3, PageSize: 500}.Normalize()
	assert.Equal(t, auth.MaxPageSize, q.PageSize)
	assert.Equal(t, 200, q.Offset())

	page := &auth.ProfilePage{Total: 41, PageSize: 20}
	assert.Equal(t, 3, page.TotalPages())
}
