package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"
)

// ProfileResolver maps a session identity to its UserProfile.
type ProfileResolver struct {
	store        ProfileStore
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// ResolverOption customizes a ProfileResolver.
type ResolverOption func(*ProfileResolver)

// WithResolverLogger overrides the default logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *ProfileResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverActivitySink publishes profile.created events.
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *ProfileResolver) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

// WithResolverClock injects a custom clock (useful for tests).
func WithResolverClock(clock func() time.Time) ResolverOption {
	return func(r *ProfileResolver) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewProfileResolver builds a resolver over store.
func NewProfileResolver(store ProfileStore, opts ...ResolverOption) *ProfileResolver {
	r := &ProfileResolver{
		store:        store,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve is the read-only permission lookup for the session's identity.
// It asks the store for the caller's own info and validates role and status
// before anything else sees them.
func (r *ProfileResolver) Resolve(ctx context.Context, session *Session) (*UserProfile, error) {
	if session == nil || session.Identity.IsZero() {
		return nil, ErrNotAuthenticated
	}

	record, err := r.store.CurrentUserInfo(WithSession(ctx, session))
	if err != nil {
		return nil, asFetchError(err)
	}
	if record == nil {
		return nil, NewFetchError(FetchProfileMissing, nil)
	}
	if record.ID != "" && record.ID != session.Identity.ID {
		return nil, NewFetchError(FetchDatabase, fmt.Errorf("profile %s returned for identity %s", record.ID, session.Identity.ID))
	}

	return record.Profile()
}

// CreateOrUpdate runs on every sign-in. A missing profile is created with
// role user and status pending. An existing one only gets its display
// fields refreshed, role and status are never written here.
func (r *ProfileResolver) CreateOrUpdate(ctx context.Context, session *Session) (*UserProfile, error) {
	if session == nil || session.Identity.IsZero() {
		return nil, ErrNotAuthenticated
	}
	ctx = WithSession(ctx, session)
	identity := session.Identity

	existing, err := r.store.GetProfile(ctx, identity.ID)
	if err != nil {
		if ClassifyFetchError(err) != FetchProfileMissing {
			r.logger.Error("profile lookup failed", "user_id", identity.ID, "error", err)
			return nil, asFetchError(err)
		}
		return r.create(ctx, identity)
	}
	if existing == nil {
		return r.create(ctx, identity)
	}

	return r.refresh(ctx, identity, existing)
}

func (r *ProfileResolver) create(ctx context.Context, identity Identity) (*UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before profile create")
	}

	record := NewProfileRecord(identity, r.now())
	if err := r.store.InsertProfile(ctx, record); err != nil {
		r.logger.Error("profile create failed", "user_id", identity.ID, "error", err)
		return nil, asFetchError(err)
	}

	recordActivity(ctx, r.activitySink, r.logger, r.now, ActivityEvent{
		EventType: ActivityEventProfileCreated,
		Actor:     ActorRef{ID: identity.ID},
		UserID:    identity.ID,
		ToStatus:  StatusPending,
		ToRole:    RoleUser,
	})

	return record.Profile()
}

func (r *ProfileResolver) refresh(ctx context.Context, identity Identity, existing *ProfileRecord) (*UserProfile, error) {
	fields := DisplayFields{
		Email:     firstNonEmpty(identity.Email, existing.Email),
		FullName:  firstNonEmpty(identity.MetadataString("full_name"), existing.FullName),
		AvatarURL: firstNonEmpty(identity.MetadataString("avatar_url"), existing.AvatarURL),
		UpdatedAt: r.now(),
	}

	if fields.Email != existing.Email || fields.FullName != existing.FullName || fields.AvatarURL != existing.AvatarURL {
		if err := ctx.Err(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before profile update")
		}
		if err := r.store.UpdateProfileDisplay(ctx, existing.ID, fields); err != nil {
			r.logger.Error("profile update failed", "user_id", identity.ID, "error", err)
			return nil, asFetchError(err)
		}
		existing.Email = fields.Email
		existing.FullName = fields.FullName
		existing.AvatarURL = fields.AvatarURL
		existing.UpdatedAt = &fields.UpdatedAt
	}

	return existing.Profile()
}

// NewProfileRecord builds the default row for a first sign-in. Informational
// fields come from the identity metadata when valid, role and status never do.
func NewProfileRecord(identity Identity, now time.Time) *ProfileRecord {
	record := &ProfileRecord{
		ID:                identity.ID,
		Email:             identity.Email,
		FullName:          identity.MetadataString("full_name"),
		AvatarURL:         identity.MetadataString("avatar_url"),
		Role:              string(RoleUser),
		Status:            string(StatusPending),
		TradingExperience: string(ExperienceBeginner),
		InitialCapital:    DefaultInitialCapital,
		Currency:          DefaultCurrency,
		Timezone:          DefaultTimezone,
		CreatedAt:         &now,
		UpdatedAt:         &now,
	}

	if exp := TradingExperience(identity.MetadataString("trading_experience")); exp.IsValid() {
		record.TradingExperience = string(exp)
	}
	if capital, ok := metadataDecimal(identity.Metadata, "initial_capital"); ok && capital.IsPositive() {
		record.InitialCapital = capital
	}
	if currency := identity.MetadataString("currency"); containsString(SupportedCurrencies, currency) {
		record.Currency = currency
	}
	if tz := identity.MetadataString("timezone"); containsString(SupportedTimezones, tz) {
		record.Timezone = tz
	}

	return record
}

func metadataDecimal(meta map[string]any, key string) (decimal.Decimal, bool) {
	switch v := meta[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}

func asFetchError(err error) error {
	if err == nil {
		return nil
	}
	code := TextCodeOf(err)
	if code != "" {
		return err
	}
	return NewFetchError(ClassifyFetchError(err), err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
