package auth

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// DefaultInitialCapital is assigned to new profiles without a valid value.
var DefaultInitialCapital = decimal.NewFromInt(10000)

const (
	DefaultCurrency = "USD"
	DefaultTimezone = "UTC"
)

// ProfileRecord is the raw user_profiles row as returned by the data store.
// Role and Status are untrusted until converted with Profile.
type ProfileRecord struct {
	bun.BaseModel     `bun:"table:user_profiles,alias:up"`
	ID                string          `bun:"id,pk" json:"id"`
	Email             string          `bun:"email,notnull" json:"email"`
	FullName          string          `bun:"full_name" json:"full_name,omitempty"`
	AvatarURL         string          `bun:"avatar_url" json:"avatar_url,omitempty"`
	Role              string          `bun:"role,notnull" json:"role"`
	Status            string          `bun:"status,notnull" json:"status"`
	TradingExperience string          `bun:"trading_experience" json:"trading_experience,omitempty"`
	InitialCapital    decimal.Decimal `bun:"initial_capital,type:numeric" json:"initial_capital"`
	Currency          string          `bun:"currency" json:"currency,omitempty"`
	Timezone          string          `bun:"timezone" json:"timezone,omitempty"`
	CreatedAt         *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	ApprovedAt        *time.Time      `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	ApprovedBy        *string         `bun:"approved_by,nullzero" json:"approved_by,omitempty"`
}

// Profile validates role and status and returns the typed profile.
// Values outside the closed sets fail, they are never coerced.
func (r *ProfileRecord) Profile() (*UserProfile, error) {
	if r == nil {
		return nil, NewFetchError(FetchProfileMissing, nil)
	}
	role, err := ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}

	p := &UserProfile{
		ID:                r.ID,
		Email:             r.Email,
		FullName:          r.FullName,
		AvatarURL:         r.AvatarURL,
		Role:              role,
		Status:            status,
		TradingExperience: TradingExperience(r.TradingExperience),
		InitialCapital:    r.InitialCapital,
		Currency:          r.Currency,
		Timezone:          r.Timezone,
		ApprovedAt:        r.ApprovedAt,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	if r.ApprovedBy != nil {
		p.ApprovedBy = *r.ApprovedBy
	}
	return p, nil
}

// UserProfile is the validated, application-owned record of an identity.
type UserProfile struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	FullName          string            `json:"full_name,omitempty"`
	AvatarURL         string            `json:"avatar_url,omitempty"`
	Role              Role              `json:"role"`
	Status            AccountStatus     `json:"status"`
	TradingExperience TradingExperience `json:"trading_experience,omitempty"`
	InitialCapital    decimal.Decimal   `json:"initial_capital"`
	Currency          string            `json:"currency,omitempty"`
	Timezone          string            `json:"timezone,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	ApprovedBy        string            `json:"approved_by,omitempty"`
}

// IsApproved is true once approved_at has been set.
func (p *UserProfile) IsApproved() bool {
	return p != nil && p.ApprovedAt != nil
}

// AdminLog is one append-only audit entry for an admin action.
type AdminLog struct {
	bun.BaseModel `bun:"table:admin_logs,alias:al"`
	ID            string         `bun:"id,pk" json:"id"`
	AdminID       string         `bun:"admin_id,notnull" json:"admin_id"`
	Action        string         `bun:"action,notnull" json:"action"`
	TargetUserID  string         `bun:"target_user_id,notnull" json:"target_user_id"`
	Details       map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

const (
	AdminActionApproveUser    = "APPROVE_USER"
	AdminActionRejectUser     = "REJECT_USER"
	AdminActionUpdateUserRole = "UPDATE_USER_ROLE"
)

// StatusHistoryEntry records one status change of a profile.
type StatusHistoryEntry struct {
	bun.BaseModel `bun:"table:user_status_history,alias:ush"`
	ID            string     `bun:"id,pk" json:"id"`
	UserID        string     `bun:"user_id,notnull" json:"user_id"`
	OldStatus     string     `bun:"old_status,notnull" json:"old_status"`
	NewStatus     string     `bun:"new_status,notnull" json:"new_status"`
	ChangedBy     string     `bun:"changed_by,notnull" json:"changed_by"`
	Reason        string     `bun:"reason" json:"reason,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// ProfileQuery filters and paginates the user listing.
type ProfileQuery struct {
	Search   string        `json:"search"`
	Role     Role          `json:"role"`
	Status   AccountStatus `json:"status"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Normalize applies pagination defaults and bounds.
func (q ProfileQuery) Normalize() ProfileQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset is the zero based row offset of the page.
func (q ProfileQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ProfilePage is one page of the user listing.
type ProfilePage struct {
	Items    []*ProfileRecord `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// TotalPages derived from Total and PageSize.
func (p *ProfilePage) TotalPages() int {
	if p == nil || p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// UserStats are the dashboard counters.
type UserStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Inactive  int `json:"inactive"`
	Suspended int `json:"suspended"`
	Staff     int `json:"staff"`
}

// JournalTable names a trading journal table read by the analytics view.
type JournalTable string

const (
	TableTrades     JournalTable = "trades"
	TableStrategies JournalTable = "strategies"
)

// IsValid reports whether t is a known journal table.
func (t JournalTable) IsValid() bool {
	return t == TableTrades || t == TableStrategies
}

// Validate returns an INVALID_INPUT error for unknown tables. Table names
// end up in queries, so stores call it before reading.
func (t JournalTable) Validate() error {
	if t.IsValid() {
		return nil
	}
	return inputError(fmt.Errorf("unknown journal table %q", string(t)), "invalid journal table")
}

// RecentRecord is the id and creation time of a journal row.
type RecentRecord struct {
	ID        string    `bun:"id" json:"id"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

// ActivityItem is one entry of the analytics feed.
type ActivityItem struct {
	Table     JournalTable `json:"type"`
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"timestamp"`
}

// SystemStats is the analytics overview. Sources that could not be read
// are listed in Unavailable and leave their counters at zero.
type SystemStats struct {
	TotalUsers      int            `json:"total_users"`
	ActiveUsers     int            `json:"active_users"`
	TotalTrades     int            `json:"total_trades"`
	TotalStrategies int            `json:"total_strategies"`
	RecentActivity  []ActivityItem `json:"recent_activity"`
	Unavailable     []string       `json:"unavailable,omitempty"`
}
