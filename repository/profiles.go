// Package repository is a bun backed data store for deployments that talk
// to Postgres directly instead of through PostgREST.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/uptrace/bun"
)

const profilesTable = "user_profiles"

// ProfileStore implements auth.AdminStore over bun. The caller is taken
// from the session in the context, so row level policies are the caller's
// responsibility at the service boundary.
type ProfileStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ auth.AdminStore = (*ProfileStore)(nil)

// NewProfileStore returns a store over db.
func NewProfileStore(db *bun.DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

// WithClock replaces the clock used for timestamps.
func (s *ProfileStore) WithClock(clock func() time.Time) *ProfileStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// GetProfile implements auth.ProfileStore.
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (*auth.ProfileRecord, error) {
	return s.getProfile(ctx, s.db, id)
}

func (s *ProfileStore) getProfile(ctx context.Context, db bun.IDB, id string) (*auth.ProfileRecord, error) {
	record := new(auth.ProfileRecord)
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load profile")
	}
	return record, nil
}

// InsertProfile implements auth.ProfileStore.
func (s *ProfileStore) InsertProfile(ctx context.Context, record *auth.ProfileRecord) error {
	now := s.now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		return storeError(err, "failed to insert profile")
	}
	return nil
}

// UpdateProfileDisplay implements auth.ProfileStore.
func (s *ProfileStore) UpdateProfileDisplay(ctx context.Context, id string, fields auth.DisplayFields) error {
	at := fields.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.NewUpdate().
		Table(profilesTable).
		Set("email = ?", fields.Email).
		Set("full_name = ?", fields.FullName).
		Set("avatar_url = ?", fields.AvatarURL).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return storeError(err, "failed to update profile")
	}
	return nil
}

// CurrentUserInfo implements auth.ProfileStore for the identity carried by
// the session in ctx.
func (s *ProfileStore) CurrentUserInfo(ctx context.Context) (*auth.ProfileRecord, error) {
	id := auth.ActorIDFromContext(ctx)
	if id == "" {
		return nil, auth.ErrNotAuthenticated
	}
	return s.GetProfile(ctx, id)
}

// ApproveUser implements auth.AdminStore. The conditional update and the
// approval metadata are written in one statement; a target that exists
// but is not pending yields (nil, nil).
func (s *ProfileStore) ApproveUser(ctx context.Context, targetID string) (*auth.ProfileRecord, error) {
	approver := auth.ActorIDFromContext(ctx)
	var out *auth.ProfileRecord

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now().UTC()
		q := tx.NewUpdate().
			Table(profilesTable).
			Set("status = ?", string(auth.StatusActive)).
			Set("approved_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", targetID).
			Where("status = ?", string(auth.StatusPending))
		if approver != "" {
			q = q.Set("approved_by = ?", approver)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}

		record, err := s.getProfile(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		out = record
		return nil
	})
	if err != nil {
		return nil, storeError(err, "failed to approve user")
	}
	return out, nil
}

// DeactivateUser implements auth.AdminStore.
func (s *ProfileStore) DeactivateUser(ctx context.Context, targetID, reason string) (*auth.ProfileRecord, error) {
	return s.UpdateStatus(ctx, targetID, auth.StatusInactive, s.now())
}

// UpdateRole implements auth.AdminStore.
func (s *ProfileStore) UpdateRole(ctx context.Context, targetID string, role auth.Role, at time.Time) (*auth.ProfileRecord, error) {
	return s.updateColumn(ctx, targetID, "role", string(role), at)
}

// UpdateStatus implements auth.AdminStore.
func (s *ProfileStore) UpdateStatus(ctx context.Context, targetID string, status auth.AccountStatus, at time.Time) (*auth.ProfileRecord, error) {
	return s.updateColumn(ctx, targetID, "status", string(status), at)
}

func (s *ProfileStore) updateColumn(ctx context.Context, targetID, column, value string, at time.Time) (*auth.ProfileRecord, error) {
	var out *auth.ProfileRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Table(profilesTable).
			Set("? = ?", bun.Ident(column), value).
			Set("updated_at = ?", at.UTC()).
			Where("id = ?", targetID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		out, err = s.getProfile(ctx, tx, targetID)
		return err
	})
	if err != nil {
		return nil, storeError(err, "failed to update "+column)
	}
	return out, nil
}

// ListProfiles implements auth.AdminStore.
func (s *ProfileStore) ListProfiles(ctx context.Context, query auth.ProfileQuery) (*auth.ProfilePage, error) {
	query = query.Normalize()
	var rows []*auth.ProfileRecord

	q := s.db.NewSelect().
		Model(&rows).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(query.PageSize).
		Offset(query.Offset())

	if term := strings.ToLower(strings.TrimSpace(query.Search)); term != "" {
		pattern := "%" + term + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(?TableAlias.full_name) LIKE ?", pattern).
				WhereOr("LOWER(?TableAlias.email) LIKE ?", pattern)
		})
	}
	if query.Role != "" {
		q = q.Where("?TableAlias.role = ?", string(query.Role))
	}
	if query.Status != "" {
		q = q.Where("?TableAlias.status = ?", string(query.Status))
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list profiles")
	}
	return &auth.ProfilePage{
		Items:    rows,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

type statusRoleCount struct {
	Status string `bun:"status"`
	Role   string `bun:"role"`
	N      int    `bun:"n"`
}

// CountProfiles implements auth.AdminStore.
func (s *ProfileStore) CountProfiles(ctx context.Context) (*auth.UserStats, error) {
	var counts []statusRoleCount
	err := s.db.NewSelect().
		Table(profilesTable).
		Column("status", "role").
		ColumnExpr("COUNT(*) AS n").
		Group("status", "role").
		Scan(ctx, &counts)
	if err != nil {
		return nil, storeError(err, "failed to count profiles")
	}

	stats := &auth.UserStats{}
	for _, c := range counts {
		stats.Total += c.N
		switch auth.AccountStatus(c.Status) {
		case auth.StatusPending:
			stats.Pending += c.N
		case auth.StatusActive:
			stats.Active += c.N
		case auth.StatusInactive:
			stats.Inactive += c.N
		case auth.StatusSuspended:
			stats.Suspended += c.N
		}
		if c.Role != string(auth.RoleUser) {
			stats.Staff += c.N
		}
	}
	return stats, nil
}

// RecentRecords implements auth.AdminStore.
func (s *ProfileStore) RecentRecords(ctx context.Context, table auth.JournalTable, limit int) ([]auth.RecentRecord, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	var rows []auth.RecentRecord
	err := s.db.NewSelect().
		Table(string(table)).
		Column("id", "created_at").
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, storeError(err, "failed to list "+string(table))
	}
	return rows, nil
}

// AppendAdminLog implements auth.AdminStore. An entry whose id already
// exists is skipped.
func (s *ProfileStore) AppendAdminLog(ctx context.Context, entry *auth.AdminLog) error {
	if entry.CreatedAt == nil {
		now := s.now().UTC()
		entry.CreatedAt = &now
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return storeError(err, "failed to append admin log")
	}
	return nil
}

// AppendStatusHistory implements auth.AdminStore.
func (s *ProfileStore) AppendStatusHistory(ctx context.Context, entry *auth.StatusHistoryEntry) error {
	if entry.CreatedAt == nil {
		now := s.now().UTC()
		entry.CreatedAt = &now
	}
	_, err := s.db.NewInsert().Model(entry).Exec(ctx)
	if err != nil {
		return storeError(err, "failed to append status history")
	}
	return nil
}

// storeError classifies err with the same fetch kinds the REST store uses.
func storeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if auth.TextCodeOf(err) != "" {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.NewFetchError(auth.FetchProfileMissing, goerrors.Wrap(err, goerrors.CategoryNotFound, msg))
	}
	return auth.NewFetchError(auth.ClassifyFetchError(err), goerrors.Wrap(err, goerrors.CategoryInternal, msg))
}
