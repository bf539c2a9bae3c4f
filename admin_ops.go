package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	DefaultRejectReason      = "Rejected by administrator"
	DefaultBatchRejectReason = "Rejected in batch by administrator"
	approveReason            = "Approved by administrator"
)

const (
	OperationApprove      = "approve"
	OperationReject       = "reject"
	OperationChangeRole   = "change_role"
	OperationChangeStatus = "change_status"
	OperationList         = "list_users"
	OperationStats        = "user_stats"
	OperationAnalytics    = "system_stats"
)

// ErrConfirmationRequired is returned when a destructive status change was
// not confirmed.
var ErrConfirmationRequired = goerrors.New("destructive status change requires confirmation", goerrors.CategoryOperation).
	WithTextCode(TextCodeConfirmationRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrUserNotPending is returned when approving an account that is not pending.
var ErrUserNotPending = goerrors.New("user is not pending approval", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserNotPending).
	WithCode(goerrors.CodeConflict)

// BatchOutcome summarises a batch run.
type BatchOutcome string

const (
	BatchSuccess BatchOutcome = "success"
	BatchPartial BatchOutcome = "partial"
	BatchFailure BatchOutcome = "failure"
)

// BatchItemResult is the outcome for one id of a batch.
type BatchItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// BatchReport aggregates a batch run. Every submitted id gets one result,
// blank and repeated ids included, so Succeeded + Failed always equals the
// selection size.
type BatchReport struct {
	Operation string            `json:"operation"`
	Outcome   BatchOutcome      `json:"outcome"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// FailedIDs lists ids that failed, in selection order.
func (r *BatchReport) FailedIDs() []string {
	out := []string{}
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res.ID)
		}
	}
	return out
}

func (r *BatchReport) add(id string, err error) {
	res := BatchItemResult{ID: id, OK: err == nil, Err: err}
	if err != nil {
		res.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Results = append(r.Results, res)
}

func (r *BatchReport) finish() *BatchReport {
	switch {
	case r.Failed == 0:
		r.Outcome = BatchSuccess
	case r.Succeeded == 0:
		r.Outcome = BatchFailure
	default:
		r.Outcome = BatchPartial
	}
	return r
}

// AdminService runs privileged mutations of other accounts. Every call
// re-checks the acting session with a fresh guard evaluation.
type AdminService struct {
	store        AdminStore
	guard        *AccessGuard
	machine      StatusMachine
	confirmer    Confirmer
	logger       Logger
	activitySink ActivitySink
	metrics      *Metrics
	now          func() time.Time
}

// AdminOption customizes an AdminService.
type AdminOption func(*AdminService)

// WithConfirmer sets the confirmation prompt for destructive status changes.
func WithConfirmer(c Confirmer) AdminOption {
	return func(s *AdminService) {
		s.confirmer = c
	}
}

// WithAdminLogger overrides the default logger.
func WithAdminLogger(logger Logger) AdminOption {
	return func(s *AdminService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAdminActivitySink publishes admin events.
func WithAdminActivitySink(sink ActivitySink) AdminOption {
	return func(s *AdminService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithAdminMetrics counts operations.
func WithAdminMetrics(m *Metrics) AdminOption {
	return func(s *AdminService) {
		s.metrics = m
	}
}

// WithAdminClock injects a custom clock (useful for tests).
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(s *AdminService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewAdminService builds the service. The guard must resolve profiles
// from the same data store.
func NewAdminService(store AdminStore, guard *AccessGuard, opts ...AdminOption) *AdminService {
	s := &AdminService{
		store:        store,
		guard:        guard,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.machine = NewStatusMachine(store,
		WithStateMachineClock(s.now),
		WithStateMachineLogger(s.logger),
		WithStateMachineActivitySink(s.activitySink),
	)
	return s
}

// ApproveUser moves a pending account to active in one store call that
// also sets approved_at and approved_by. Approving an account that is not
// pending fails with ErrUserNotPending and appends nothing.
func (s *AdminService) ApproveUser(ctx context.Context, session *Session, targetID string) (*UserProfile, error) {
	actor, ctx, err := s.authorize(ctx, session, OperationApprove, CanManageUsers)
	if err != nil {
		return nil, err
	}
	profile, err := s.approve(ctx, actor, targetID)
	s.metrics.observeAdminOperation(OperationApprove, err)
	return profile, err
}

// RejectUser moves an account to inactive, recording reason.
func (s *AdminService) RejectUser(ctx context.Context, session *Session, targetID, reason string) (*UserProfile, error) {
	actor, ctx, err := s.authorize(ctx, session, OperationReject, CanManageUsers)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectReason
	}
	profile, err := s.reject(ctx, actor, targetID, reason)
	s.metrics.observeAdminOperation(OperationReject, err)
	return profile, err
}

// ChangeRole assigns newRole to the target. The permission check runs
// before any call to the store.
func (s *AdminService) ChangeRole(ctx context.Context, session *Session, targetID string, newRole Role) (*UserProfile, error) {
	if !newRole.IsValid() {
		return nil, invalidRoleError(string(newRole))
	}
	actor, ctx, err := s.authorize(ctx, session, OperationChangeRole, func(r Role) bool {
		return CanManageRole(r, newRole)
	})
	if err != nil {
		return nil, err
	}
	if err := requireTarget(targetID); err != nil {
		return nil, err
	}

	profile, err := s.changeRole(ctx, actor, targetID, newRole)
	s.metrics.observeAdminOperation(OperationChangeRole, err)
	return profile, err
}

// ChangeStatus moves the target to newStatus. Moving to inactive or
// suspended needs a positive answer from the Confirmer. A pending account
// moved to active goes through ApproveUser so approval metadata is set.
func (s *AdminService) ChangeStatus(ctx context.Context, session *Session, targetID string, newStatus AccountStatus, reason string) (*UserProfile, error) {
	if !newStatus.IsValid() {
		return nil, invalidStatusError(string(newStatus))
	}
	actor, ctx, err := s.authorize(ctx, session, OperationChangeStatus, CanManageUsers)
	if err != nil {
		return nil, err
	}
	if err := requireTarget(targetID); err != nil {
		return nil, err
	}

	profile, err := s.changeStatus(ctx, actor, targetID, newStatus, reason)
	s.metrics.observeAdminOperation(OperationChangeStatus, err)
	return profile, err
}

// BatchApprove approves ids one at a time in selection order. Failed ids
// are reported and never retried.
func (s *AdminService) BatchApprove(ctx context.Context, session *Session, ids []string) (*BatchReport, error) {
	return s.batch(ctx, session, OperationApprove, ids, func(ctx context.Context, actor *UserProfile, id string) error {
		_, err := s.approve(ctx, actor, id)
		return err
	})
}

// BatchReject rejects ids one at a time in selection order.
func (s *AdminService) BatchReject(ctx context.Context, session *Session, ids []string, reason string) (*BatchReport, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultBatchRejectReason
	}
	return s.batch(ctx, session, OperationReject, ids, func(ctx context.Context, actor *UserProfile, id string) error {
		_, err := s.reject(ctx, actor, id, reason)
		return err
	})
}

// ListUsers returns one page of profiles matching query.
func (s *AdminService) ListUsers(ctx context.Context, session *Session, query ProfileQuery) (*ProfilePage, error) {
	query = query.Normalize()
	if err := query.Validate(); err != nil {
		return nil, inputError(err, "invalid user query")
	}
	_, ctx, err := s.authorize(ctx, session, OperationList, CanAccessAdminPanel)
	if err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx, query)
}

// UserStats returns the dashboard counters.
func (s *AdminService) UserStats(ctx context.Context, session *Session) (*UserStats, error) {
	_, ctx, err := s.authorize(ctx, session, OperationStats, CanAccessAdminPanel)
	if err != nil {
		return nil, err
	}
	return s.store.CountProfiles(ctx)
}

// Validate will run validation rules
func (q ProfileQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Search, validation.Length(0, 200)),
		validation.Field(&q.Role, validation.By(func(v any) error {
			if r, _ := v.(Role); r != "" && !r.IsValid() {
				return invalidRoleError(string(r))
			}
			return nil
		})),
		validation.Field(&q.Status, validation.By(func(v any) error {
			if st, _ := v.(AccountStatus); st != "" && !st.IsValid() {
				return invalidStatusError(string(st))
			}
			return nil
		})),
		validation.Field(&q.Page, validation.Min(1)),
		validation.Field(&q.PageSize, validation.Min(1), validation.Max(MaxPageSize)),
	)
}

func (s *AdminService) authorize(ctx context.Context, session *Session, op string, allowed func(Role) bool) (*UserProfile, context.Context, error) {
	if session == nil || session.Identity.IsZero() {
		return nil, ctx, ErrNotAuthenticated
	}

	d := s.guard.Evaluate(ctx, SessionState{Session: session}, RequireActive, "")
	switch d.Kind {
	case DecisionGranted:
	case DecisionDeniedUnauthenticated:
		return nil, ctx, ErrNotAuthenticated
	case DecisionDeniedSystemError:
		if d.Err != nil {
			return nil, ctx, d.Err
		}
		return nil, ctx, NewFetchError(FetchErrorKind(d.Cause), nil)
	default:
		return nil, ctx, forbiddenError(op, d.Role)
	}

	if !allowed(d.Role) {
		err := forbiddenError(op, d.Role)
		s.metrics.observeAdminOperation(op, err)
		return nil, ctx, err
	}
	return d.Profile, WithSession(ctx, session), nil
}

func (s *AdminService) approve(ctx context.Context, actor *UserProfile, targetID string) (*UserProfile, error) {
	if err := requireTarget(targetID); err != nil {
		return nil, err
	}
	current, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return s.approveRecord(ctx, actor, current)
}

func (s *AdminService) approveRecord(ctx context.Context, actor *UserProfile, current *ProfileRecord) (*UserProfile, error) {
	if current == nil {
		return nil, NewFetchError(FetchProfileMissing, nil)
	}
	targetID := current.ID
	notPending := func() error {
		return withMetadata(ErrUserNotPending, map[string]any{"target_user_id": targetID})
	}
	if current.Status != string(StatusPending) {
		return nil, notPending()
	}

	record, err := s.store.ApproveUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// procedures that return no row are confirmed by reading the target back
		record, err = s.store.GetProfile(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if !approvedBy(record, actor.ID) {
			return nil, notPending()
		}
	}
	profile, err := record.Profile()
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, targetID, StatusPending, StatusActive, actor.ID, approveReason)
	s.appendAdminLog(ctx, &AdminLog{
		ID:           approvalLogID(targetID),
		AdminID:      actor.ID,
		Action:       AdminActionApproveUser,
		TargetUserID: targetID,
		Details: map[string]any{
			"old_status":    string(StatusPending),
			"new_status":    string(StatusActive),
			"approved_by":   actor.ID,
			"approver_role": string(actor.Role),
		},
	})
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType:  ActivityEventUserApproved,
		Actor:      ActorRef{ID: actor.ID, Role: actor.Role},
		UserID:     targetID,
		FromStatus: StatusPending,
		ToStatus:   StatusActive,
	})
	return profile, nil
}

func (s *AdminService) reject(ctx context.Context, actor *UserProfile, targetID, reason string) (*UserProfile, error) {
	if err := requireTarget(targetID); err != nil {
		return nil, err
	}
	current, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if current.Status == string(StatusInactive) {
		return current.Profile()
	}

	record, err := s.store.DeactivateUser(ctx, targetID, reason)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = current
		record.Status = string(StatusInactive)
	}
	profile, err := record.Profile()
	if err != nil {
		return nil, err
	}

	from := AccountStatus(current.Status)
	s.appendHistory(ctx, targetID, from, StatusInactive, actor.ID, reason)
	s.appendAdminLog(ctx, &AdminLog{
		ID:           uuid.NewString(),
		AdminID:      actor.ID,
		Action:       AdminActionRejectUser,
		TargetUserID: targetID,
		Details: map[string]any{
			"old_status": current.Status,
			"new_status": string(StatusInactive),
			"reason":     reason,
		},
	})
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType:  ActivityEventUserRejected,
		Actor:      ActorRef{ID: actor.ID, Role: actor.Role},
		UserID:     targetID,
		FromStatus: from,
		ToStatus:   StatusInactive,
		Metadata:   map[string]any{"reason": reason},
	})
	return profile, nil
}

func (s *AdminService) changeRole(ctx context.Context, actor *UserProfile, targetID string, newRole Role) (*UserProfile, error) {
	current, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if current.Role == string(newRole) {
		return current.Profile()
	}
	if err := ctx.Err(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before role change")
	}

	record, err := s.store.UpdateRole(ctx, targetID, newRole, s.now())
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = current
		record.Role = string(newRole)
	}
	profile, err := record.Profile()
	if err != nil {
		return nil, err
	}

	s.appendAdminLog(ctx, &AdminLog{
		ID:           uuid.NewString(),
		AdminID:      actor.ID,
		Action:       AdminActionUpdateUserRole,
		TargetUserID: targetID,
		Details: map[string]any{
			"old_role":        current.Role,
			"new_role":        string(newRole),
			"updated_by_role": string(actor.Role),
		},
	})
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventUserRoleChanged,
		Actor:     ActorRef{ID: actor.ID, Role: actor.Role},
		UserID:    targetID,
		FromRole:  Role(current.Role),
		ToRole:    newRole,
	})
	return profile, nil
}

func (s *AdminService) changeStatus(ctx context.Context, actor *UserProfile, targetID string, newStatus AccountStatus, reason string) (*UserProfile, error) {
	record, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, err
	}
	current, err := record.Profile()
	if err != nil {
		return nil, err
	}

	if current.Status == StatusPending && newStatus == StatusActive {
		return s.approveRecord(ctx, actor, record)
	}

	return s.machine.Transition(ctx,
		ActorRef{ID: actor.ID, Role: actor.Role},
		current,
		newStatus,
		WithTransitionReason(reason),
		WithBeforeTransitionHook(s.confirmHook),
		WithAfterTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			s.appendHistory(ctx, targetID, tc.From, tc.To, tc.Actor.ID, tc.Meta.Reason)
			return nil
		}),
	)
}

func (s *AdminService) confirmHook(ctx context.Context, tc TransitionContext) error {
	if !tc.To.IsDestructive() {
		return nil
	}
	if s.confirmer == nil {
		return ErrConfirmationRequired
	}
	ok, err := s.confirmer.Confirm(ctx, ConfirmationRequest{
		ActorID:  tc.Actor.ID,
		TargetID: tc.Profile.ID,
		From:     tc.From,
		To:       tc.To,
		Reason:   tc.Meta.Reason,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConfirmationRequired
	}
	return nil
}

func (s *AdminService) batch(ctx context.Context, session *Session, op string, ids []string, run func(context.Context, *UserProfile, string) error) (*BatchReport, error) {
	ids = trimIDs(ids)
	if countNonBlank(ids) == 0 {
		return nil, goerrors.New("batch selection is empty", goerrors.CategoryBadInput).
			WithTextCode(TextCodeBatchEmpty).
			WithCode(goerrors.CodeBadRequest)
	}
	if len(ids) > MaxBatchSize {
		return nil, goerrors.New("batch selection is too large", goerrors.CategoryBadInput).
			WithTextCode(TextCodeBatchTooLarge).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"size": len(ids), "max": MaxBatchSize})
	}

	actor, ctx, err := s.authorize(ctx, session, op, CanManageUsers)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Operation: op, Results: make([]BatchItemResult, 0, len(ids))}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			cause := goerrors.Wrap(err, goerrors.CategoryOperation, "batch cancelled")
			for _, rest := range ids[i:] {
				report.add(rest, cause)
			}
			break
		}
		err := run(ctx, actor, id)
		s.metrics.observeAdminOperation(op, err)
		report.add(id, err)
	}
	return report.finish(), nil
}

func (s *AdminService) appendHistory(ctx context.Context, userID string, from, to AccountStatus, actorID, reason string) {
	entry := &StatusHistoryEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		OldStatus: string(from),
		NewStatus: string(to),
		ChangedBy: actorID,
		Reason:    reason,
	}
	now := s.now()
	entry.CreatedAt = &now
	if err := s.store.AppendStatusHistory(ctx, entry); err != nil {
		s.logger.Error("status history append failed", "user_id", userID, "from", from, "to", to, "error", err)
	}
}

func (s *AdminService) appendAdminLog(ctx context.Context, entry *AdminLog) {
	now := s.now()
	entry.CreatedAt = &now
	if err := s.store.AppendAdminLog(ctx, entry); err != nil {
		s.logger.Error("admin log append failed", "action", entry.Action, "target_user_id", entry.TargetUserID, "error", err)
	}
}

// approvedBy reports whether record is active and, when the store records
// the approver, was approved by actorID.
func approvedBy(record *ProfileRecord, actorID string) bool {
	if record == nil || record.Status != string(StatusActive) {
		return false
	}
	return record.ApprovedBy == nil || *record.ApprovedBy == actorID
}

// approvalLogID is stable per target so the approval entry is appended once.
func approvalLogID(targetID string) string {
	id, err := hashid.NewUUID("approve_user:" + targetID)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func requireTarget(targetID string) error {
	if strings.TrimSpace(targetID) == "" {
		return goerrors.New("target user id is required", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func trimIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimSpace(id)
	}
	return out
}

func countNonBlank(ids []string) int {
	n := 0
	for _, id := range ids {
		if id != "" {
			n++
		}
	}
	return n
}
