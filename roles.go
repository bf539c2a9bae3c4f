package auth

import (
	"sort"
	"strings"
)

// Role is the privilege tier of an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleLevels = map[Role]int{
	RoleUser:       1,
	RoleModerator:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Roles returns every role ordered by ascending level.
func Roles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the numeric tier, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(min Role) bool {
	if !r.IsValid() || !min.IsValid() {
		return false
	}
	return r.Level() >= min.Level()
}

func (r Role) String() string {
	return string(r)
}

// IsValidRole reports whether raw names one of the four roles.
func IsValidRole(raw string) bool {
	return Role(raw).IsValid()
}

// ParseRole converts untrusted input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(raw))
	if !role.IsValid() {
		return "", invalidRoleError(raw)
	}
	return role, nil
}

// IsAdminRole is true for moderator and above.
func IsAdminRole(r Role) bool {
	return r.IsAtLeast(RoleModerator)
}

// CanAccessAdminPanel is the panel-entry bar, identical to IsAdminRole.
func CanAccessAdminPanel(r Role) bool {
	return IsAdminRole(r)
}

// CanManageUsers is the approve/reject/status-change bar: admin and above.
func CanManageUsers(r Role) bool {
	return r.IsAtLeast(RoleAdmin)
}

// CanManageRole reports whether actor may assign target to another user.
// Only super admins assign roles, and never the super_admin role itself.
func CanManageRole(actor, target Role) bool {
	return actor == RoleSuperAdmin && target.IsValid() && target != RoleSuperAdmin
}

// AssignableRoles lists the roles actor may grant, ascending by level.
func AssignableRoles(actor Role) []Role {
	out := []Role{}
	for _, r := range Roles() {
		if CanManageRole(actor, r) {
			out = append(out, r)
		}
	}
	return out
}

// SortRolesByLevel sorts in place, highest level first.
func SortRolesByLevel(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Level() > roles[j].Level()
	})
}

// RoleInfo carries presentation metadata for a role.
type RoleInfo struct {
	Role        Role
	Level       int
	DisplayName string
	Description string
	Color       string
}

var roleInfo = map[string]map[Role]RoleInfo{
	LocaleEnglish: {
		RoleUser:       {Role: RoleUser, Level: 1, DisplayName: "User", Description: "Can record and review their own trades", Color: "blue"},
		RoleModerator:  {Role: RoleModerator, Level: 2, DisplayName: "Moderator", Description: "Can view the admin panel and review accounts", Color: "green"},
		RoleAdmin:      {Role: RoleAdmin, Level: 3, DisplayName: "Administrator", Description: "Can approve, reject and change the status of accounts", Color: "purple"},
		RoleSuperAdmin: {Role: RoleSuperAdmin, Level: 4, DisplayName: "Super Administrator", Description: "Can assign roles up to administrator", Color: "red"},
	},
	LocaleTraditionalChinese: {
		RoleUser:       {Role: RoleUser, Level: 1, DisplayName: "一般用戶", Description: "可記錄與檢視自己的交易", Color: "blue"},
		RoleModerator:  {Role: RoleModerator, Level: 2, DisplayName: "版主", Description: "可進入管理面板並審核帳號", Color: "green"},
		RoleAdmin:      {Role: RoleAdmin, Level: 3, DisplayName: "管理員", Description: "可核准、拒絕帳號並變更帳號狀態", Color: "purple"},
		RoleSuperAdmin: {Role: RoleSuperAdmin, Level: 4, DisplayName: "超級管理員", Description: "可指派至管理員為止的角色", Color: "red"},
	},
}

// Info returns display metadata in the given locale, English when unknown.
func (r Role) Info(locale string) RoleInfo {
	table, ok := roleInfo[locale]
	if !ok {
		table = roleInfo[LocaleEnglish]
	}
	if info, ok := table[r]; ok {
		return info
	}
	return RoleInfo{Role: r, DisplayName: string(r), Color: "gray"}
}

// DisplayName is a shortcut for Info(locale).DisplayName.
func (r Role) DisplayName(locale string) string {
	return r.Info(locale).DisplayName
}
