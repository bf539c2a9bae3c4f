package web

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	auth "github.com/txnjournal/go-txn-auth"
)

type confirmCtxKey struct{}

// RequestConfirmer confirms a destructive status change only when the
// request carried an explicit confirmation. Pass it to the AdminService
// with auth.WithConfirmer.
var RequestConfirmer = auth.ConfirmerFunc(func(ctx context.Context, _ auth.ConfirmationRequest) (bool, error) {
	confirmed, _ := ctx.Value(confirmCtxKey{}).(bool)
	return confirmed, nil
})

// RejectPayload carries the rejection reason.
type RejectPayload struct {
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r RejectPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

// RolePayload carries the role to assign.
type RolePayload struct {
	Role string `form:"role" json:"role"`
}

// Validate will run validation rules
func (r RolePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required),
	)
}

// StatusPayload carries the status to move to. Confirmed must be true for
// inactive and suspended.
type StatusPayload struct {
	Status    string `form:"status" json:"status"`
	Reason    string `form:"reason" json:"reason"`
	Confirmed bool   `form:"confirmed" json:"confirmed"`
}

// Validate will run validation rules
func (r StatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

// BatchPayload selects users for a batch operation.
type BatchPayload struct {
	IDs    []string `form:"ids" json:"ids"`
	Reason string   `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r BatchPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

// UserPage is the JSON shape of the user listing.
type UserPage struct {
	Items      []*auth.ProfileRecord `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// AdminHome describes the acting administrator.
func (s *Server) AdminHome(c *fiber.Ctx) error {
	profile := Profile(c)
	if profile == nil {
		return auth.ErrNotAuthenticated
	}
	return c.JSON(fiber.Map{
		"profile":          profile,
		"role":             profile.Role.Info(s.locale),
		"status":           profile.Status.Info(s.locale),
		"can_manage_users": auth.CanManageUsers(profile.Role),
		"assignable_roles": auth.AssignableRoles(profile.Role),
	})
}

// ListUsers serves GET /users?search=&role=&status=&page=&page_size=.
func (s *Server) ListUsers(c *fiber.Ctx) error {
	query := auth.ProfileQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Role:     auth.Role(c.Query("role")),
		Status:   auth.AccountStatus(c.Query("status")),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", auth.DefaultPageSize),
	}

	page, err := s.admin.ListUsers(c.UserContext(), Session(c), query)
	if err != nil {
		return err
	}
	return c.JSON(UserPage{
		Items:      page.Items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages(),
	})
}

// UserStats serves the dashboard counters.
func (s *Server) UserStats(c *fiber.Ctx) error {
	stats, err := s.admin.UserStats(c.UserContext(), Session(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// SystemStats serves the analytics overview.
func (s *Server) SystemStats(c *fiber.Ctx) error {
	stats, err := s.admin.SystemStats(c.UserContext(), Session(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// ApproveUser approves the pending account :id.
func (s *Server) ApproveUser(c *fiber.Ctx) error {
	profile, err := s.admin.ApproveUser(c.UserContext(), Session(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// RejectUser moves :id to inactive.
func (s *Server) RejectUser(c *fiber.Ctx) error {
	payload := new(RejectPayload)
	if err := parseOptionalBody(c, payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}

	profile, err := s.admin.RejectUser(c.UserContext(), Session(c), c.Params("id"), payload.Reason)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// ChangeRole assigns a role to :id.
func (s *Server) ChangeRole(c *fiber.Ctx) error {
	payload := new(RolePayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}
	role, err := auth.ParseRole(payload.Role)
	if err != nil {
		return err
	}

	profile, err := s.admin.ChangeRole(c.UserContext(), Session(c), c.Params("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// ChangeStatus moves :id to another status.
func (s *Server) ChangeStatus(c *fiber.Ctx) error {
	payload := new(StatusPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}
	status, err := auth.ParseStatus(payload.Status)
	if err != nil {
		return err
	}

	ctx := context.WithValue(c.UserContext(), confirmCtxKey{}, payload.Confirmed)
	profile, err := s.admin.ChangeStatus(ctx, Session(c), c.Params("id"), status, payload.Reason)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// BatchApprove approves every selected id and reports per id.
func (s *Server) BatchApprove(c *fiber.Ctx) error {
	payload := new(BatchPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}

	report, err := s.admin.BatchApprove(c.UserContext(), Session(c), payload.IDs)
	if err != nil {
		return err
	}
	return c.Status(batchStatus(report)).JSON(report)
}

// BatchReject rejects every selected id and reports per id.
func (s *Server) BatchReject(c *fiber.Ctx) error {
	payload := new(BatchPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}

	report, err := s.admin.BatchReject(c.UserContext(), Session(c), payload.IDs, payload.Reason)
	if err != nil {
		return err
	}
	return c.Status(batchStatus(report)).JSON(report)
}

// batchStatus is 207 when some items failed.
func batchStatus(report *auth.BatchReport) int {
	if report.Outcome == auth.BatchSuccess {
		return fiber.StatusOK
	}
	return fiber.StatusMultiStatus
}

func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return invalidPayload(err)
	}
	return nil
}
