package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	auth "github.com/txnjournal/go-txn-auth"
)

func table(name string) string {
	return restPrefix + "/" + name
}

func rpc(name string) string {
	return restPrefix + "/rpc/" + name
}

// singleRow reads exactly one row, failing with PGRST116 when none match.
func (c *Client) singleRow(ctx context.Context, req func() *resty.Request, path string) (*auth.ProfileRecord, error) {
	return auth.Retry(ctx, c.retry, func() (*auth.ProfileRecord, error) {
		var out auth.ProfileRecord
		resp, err := req().
			SetHeader("Accept", acceptSingleRow).
			SetResult(&out).
			Get(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}
		return &out, nil
	})
}

// GetProfile implements auth.ProfileStore.
func (c *Client) GetProfile(ctx context.Context, id string) (*auth.ProfileRecord, error) {
	record, err := c.singleRow(ctx, func() *resty.Request {
		return c.request(ctx).
			SetQueryParam("id", "eq."+id).
			SetQueryParam("select", "*")
	}, table(profilesTable))
	if err != nil {
		return nil, wrapFetch(err)
	}
	return record, nil
}

// InsertProfile implements auth.ProfileStore.
func (c *Client) InsertProfile(ctx context.Context, record *auth.ProfileRecord) error {
	resp, err := c.request(ctx).
		SetHeader(headerPrefer, preferMinimal).
		SetBody(record).
		Post(table(profilesTable))
	return checkWrite(resp, err)
}

// UpdateProfileDisplay implements auth.ProfileStore.
func (c *Client) UpdateProfileDisplay(ctx context.Context, id string, fields auth.DisplayFields) error {
	resp, err := c.request(ctx).
		SetHeader(headerPrefer, preferMinimal).
		SetQueryParam("id", "eq."+id).
		SetBody(map[string]any{
			"email":      fields.Email,
			"full_name":  fields.FullName,
			"avatar_url": fields.AvatarURL,
			"updated_at": fields.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}).
		Patch(table(profilesTable))
	return checkWrite(resp, err)
}

// CurrentUserInfo implements auth.ProfileStore using the
// get_current_user_info remote procedure with the caller's bearer token.
func (c *Client) CurrentUserInfo(ctx context.Context) (*auth.ProfileRecord, error) {
	if _, ok := auth.SessionFromContext(ctx); !ok {
		return nil, auth.ErrNotAuthenticated
	}
	record, err := auth.Retry(ctx, c.retry, func() (*auth.ProfileRecord, error) {
		var out auth.ProfileRecord
		resp, err := c.request(ctx).
			SetHeader("Accept", acceptSingleRow).
			SetBody(map[string]any{}).
			SetResult(&out).
			Post(rpc(rpcCurrentUser))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}
		return &out, nil
	})
	if err != nil {
		return nil, wrapFetch(err)
	}
	return record, nil
}

// ApproveUser implements auth.AdminStore. A procedure that returns no row
// (void, null or a scalar) yields (nil, nil) and the caller reads the
// target back.
func (c *Client) ApproveUser(ctx context.Context, targetID string) (*auth.ProfileRecord, error) {
	return c.mutateRPC(ctx, rpcApproveUser, map[string]any{
		"target_user_id": targetID,
	})
}

// DeactivateUser implements auth.AdminStore.
func (c *Client) DeactivateUser(ctx context.Context, targetID, reason string) (*auth.ProfileRecord, error) {
	return c.mutateRPC(ctx, rpcDeactivate, map[string]any{
		"target_user_id": targetID,
		"reason":         reason,
	})
}

// mutateRPC calls a procedure once, without retries. The body may be a row,
// a set of rows, or anything else, which carries no row.
func (c *Client) mutateRPC(ctx context.Context, name string, body map[string]any) (*auth.ProfileRecord, error) {
	resp, err := c.request(ctx).
		SetBody(body).
		Post(rpc(name))
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return decodeRow(resp.Body())
}

func decodeRow(raw []byte) (*auth.ProfileRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var rows []*auth.ProfileRecord
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, transportError(err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	case '{':
		var row auth.ProfileRecord
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, transportError(err)
		}
		if row.ID == "" {
			return nil, nil
		}
		return &row, nil
	default:
		return nil, nil
	}
}

// UpdateRole implements auth.AdminStore.
func (c *Client) UpdateRole(ctx context.Context, targetID string, role auth.Role, at time.Time) (*auth.ProfileRecord, error) {
	return c.patchProfile(ctx, targetID, map[string]any{
		"role":       string(role),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
}

// UpdateStatus implements auth.AdminStore.
func (c *Client) UpdateStatus(ctx context.Context, targetID string, status auth.AccountStatus, at time.Time) (*auth.ProfileRecord, error) {
	return c.patchProfile(ctx, targetID, map[string]any{
		"status":     string(status),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
}

func (c *Client) patchProfile(ctx context.Context, targetID string, body map[string]any) (*auth.ProfileRecord, error) {
	var out auth.ProfileRecord
	resp, err := c.request(ctx).
		SetHeader(headerPrefer, preferRepr).
		SetHeader("Accept", acceptSingleRow).
		SetQueryParam("id", "eq."+targetID).
		SetBody(body).
		SetResult(&out).
		Patch(table(profilesTable))
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return &out, nil
}

// ListProfiles implements auth.AdminStore.
func (c *Client) ListProfiles(ctx context.Context, query auth.ProfileQuery) (*auth.ProfilePage, error) {
	query = query.Normalize()
	params := map[string]string{
		"select": "*",
		"order":  "created_at.desc",
		"limit":  strconv.Itoa(query.PageSize),
		"offset": strconv.Itoa(query.Offset()),
	}
	if s := sanitizeSearch(query.Search); s != "" {
		params["or"] = fmt.Sprintf("(full_name.ilike.*%s*,email.ilike.*%s*)", s, s)
	}
	if query.Role != "" {
		params["role"] = "eq." + string(query.Role)
	}
	if query.Status != "" {
		params["status"] = "eq." + string(query.Status)
	}

	return auth.Retry(ctx, c.retry, func() (*auth.ProfilePage, error) {
		var rows []*auth.ProfileRecord
		resp, err := c.request(ctx).
			SetHeader(headerPrefer, preferCountExact).
			SetQueryParams(params).
			SetResult(&rows).
			Get(table(profilesTable))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}
		total := parseContentRangeTotal(resp.Header().Get("Content-Range"), len(rows))
		return &auth.ProfilePage{
			Items:    rows,
			Total:    total,
			Page:     query.Page,
			PageSize: query.PageSize,
		}, nil
	})
}

// CountProfiles implements auth.AdminStore.
func (c *Client) CountProfiles(ctx context.Context) (*auth.UserStats, error) {
	return auth.Retry(ctx, c.retry, func() (*auth.UserStats, error) {
		var rows []struct {
			Role   string `json:"role"`
			Status string `json:"status"`
		}
		resp, err := c.request(ctx).
			SetQueryParam("select", "role,status").
			SetResult(&rows).
			Get(table(profilesTable))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}

		stats := &auth.UserStats{Total: len(rows)}
		for _, r := range rows {
			switch auth.AccountStatus(r.Status) {
			case auth.StatusPending:
				stats.Pending++
			case auth.StatusActive:
				stats.Active++
			case auth.StatusInactive:
				stats.Inactive++
			case auth.StatusSuspended:
				stats.Suspended++
			}
			if r.Role != string(auth.RoleUser) {
				stats.Staff++
			}
		}
		return stats, nil
	})
}

// RecentRecords implements auth.AdminStore.
func (c *Client) RecentRecords(ctx context.Context, t auth.JournalTable, limit int) ([]auth.RecentRecord, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return auth.Retry(ctx, c.retry, func() ([]auth.RecentRecord, error) {
		var rows []auth.RecentRecord
		resp, err := c.request(ctx).
			SetQueryParam("select", "id,created_at").
			SetQueryParam("order", "created_at.desc").
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&rows).
			Get(table(string(t)))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}
		return rows, nil
	})
}

// AppendAdminLog implements auth.AdminStore. Duplicate ids are ignored so
// a deterministic id is appended once.
func (c *Client) AppendAdminLog(ctx context.Context, entry *auth.AdminLog) error {
	resp, err := c.request(ctx).
		SetHeader(headerPrefer, preferMinimal+",resolution=ignore-duplicates").
		SetBody(entry).
		Post(table(adminLogsTable))
	return checkWrite(resp, err)
}

// AppendStatusHistory implements auth.AdminStore.
func (c *Client) AppendStatusHistory(ctx context.Context, entry *auth.StatusHistoryEntry) error {
	resp, err := c.request(ctx).
		SetHeader(headerPrefer, preferMinimal).
		SetBody(entry).
		Post(table(statusLogTable))
	return checkWrite(resp, err)
}

func checkWrite(resp *resty.Response, err error) error {
	if err != nil {
		return transportError(err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

// wrapFetch classifies read failures.
func wrapFetch(err error) error {
	if err == nil {
		return nil
	}
	if auth.TextCodeOf(err) != "" {
		return err
	}
	return auth.NewFetchError(auth.ClassifyFetchError(err), err)
}

// parseContentRangeTotal reads "0-19/123" or "*/0".
func parseContentRangeTotal(header string, fallback int) int {
	i := strings.LastIndex(header, "/")
	if i < 0 {
		return fallback
	}
	n, err := strconv.Atoi(header[i+1:])
	if err != nil {
		return fallback
	}
	return n
}

// sanitizeSearch drops characters with meaning in PostgREST filters.
func sanitizeSearch(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '"', '\\', ':':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
