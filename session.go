package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"
)

// SessionEvent names a change of the session state.
type SessionEvent string

const (
	SessionEventInitial   SessionEvent = "initial_session"
	SessionEventSignedIn  SessionEvent = "signed_in"
	SessionEventSignedOut SessionEvent = "signed_out"
)

// SessionState is a snapshot of the provider.
type SessionState struct {
	Session   *Session
	Resolving bool
}

// Authenticated is true once resolved with a session.
func (s SessionState) Authenticated() bool {
	return !s.Resolving && s.Session != nil
}

// IdentityID of the current session, empty when signed out.
func (s SessionState) IdentityID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.Identity.ID
}

// SessionListener observes state changes. Listeners run outside the
// provider lock and must not block.
type SessionListener func(event SessionEvent, state SessionState)

// ProfileSyncer runs the sign-in side of profile resolution.
type ProfileSyncer interface {
	CreateOrUpdate(ctx context.Context, session *Session) (*UserProfile, error)
}

// SignUpInput is the registration form.
type SignUpInput struct {
	Email             string            `json:"email"`
	Password          string            `json:"password"`
	FullName          string            `json:"full_name"`
	TradingExperience TradingExperience `json:"trading_experience"`
	InitialCapital    decimal.Decimal   `json:"initial_capital"`
	Currency          string            `json:"currency"`
	Timezone          string            `json:"timezone"`
}

// Validate will run validation rules
func (i SignUpInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Email, validation.Required, is.Email),
		validation.Field(&i.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&i.FullName, validation.Length(0, 200)),
		validation.Field(&i.TradingExperience, validation.In(
			ExperienceBeginner,
			ExperienceIntermediate,
			ExperienceAdvanced,
			ExperienceProfessional,
		)),
		validation.Field(&i.Currency, validation.In(toAny(SupportedCurrencies)...)),
		validation.Field(&i.Timezone, validation.In(toAny(SupportedTimezones)...)),
		validation.Field(&i.InitialCapital, validation.By(optionalPositiveDecimal)),
	)
}

// Metadata is the bag stored with the new identity.
func (i SignUpInput) Metadata() map[string]any {
	meta := map[string]any{}
	if i.FullName != "" {
		meta["full_name"] = i.FullName
	}
	if i.TradingExperience != "" {
		meta["trading_experience"] = string(i.TradingExperience)
	}
	if i.InitialCapital.IsPositive() {
		meta["initial_capital"] = i.InitialCapital.String()
	}
	if i.Currency != "" {
		meta["currency"] = i.Currency
	}
	if i.Timezone != "" {
		meta["timezone"] = i.Timezone
	}
	return meta
}

// SessionProvider holds the current session and wraps the auth backend.
// Create one per application, call Init on start and Dispose on shutdown.
type SessionProvider struct {
	mu        sync.RWMutex
	state     SessionState
	listeners map[int]SessionListener
	nextID    int
	disposed  bool

	backend      AuthBackend
	profiles     ProfileSyncer
	verifier     TokenVerifier
	limiter      AttemptLimiter
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// SessionProviderOption customizes a SessionProvider.
type SessionProviderOption func(*SessionProvider)

// WithTokenVerifier validates restored tokens locally before asking the backend.
func WithTokenVerifier(v TokenVerifier) SessionProviderOption {
	return func(p *SessionProvider) {
		p.verifier = v
	}
}

// WithAttemptLimiter bounds sign-in and reset attempts.
func WithAttemptLimiter(l AttemptLimiter) SessionProviderOption {
	return func(p *SessionProvider) {
		p.limiter = l
	}
}

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionProviderOption {
	return func(p *SessionProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSessionActivitySink publishes sign in and sign out events.
func WithSessionActivitySink(sink ActivitySink) SessionProviderOption {
	return func(p *SessionProvider) {
		p.activitySink = normalizeActivitySink(sink)
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionProviderOption {
	return func(p *SessionProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewSessionProvider starts in the resolving state until Init runs.
func NewSessionProvider(backend AuthBackend, profiles ProfileSyncer, opts ...SessionProviderOption) *SessionProvider {
	p := &SessionProvider{
		state:        SessionState{Resolving: true},
		listeners:    map[int]SessionListener{},
		backend:      backend,
		profiles:     profiles,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Init restores a session from a persisted access token. An empty or
// invalid token leaves the provider signed out, it is not an error.
func (p *SessionProvider) Init(ctx context.Context, accessToken string) error {
	var session *Session
	if token := strings.TrimSpace(accessToken); token != "" {
		identity, err := p.restore(ctx, token)
		if err != nil {
			p.logger.Info("session restore failed", "error", err)
		} else {
			session = &Session{Identity: *identity, AccessToken: token}
		}
	}

	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled during session init")
	}

	p.apply(SessionEventInitial, SessionState{Session: session})
	return nil
}

func (p *SessionProvider) restore(ctx context.Context, token string) (*Identity, error) {
	if p.verifier != nil {
		identity, err := p.verifier.Verify(ctx, token)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	if p.backend == nil {
		return nil, ErrNotAuthenticated
	}
	return p.backend.GetUser(ctx, token)
}

// SignUp creates an identity. It does not create the profile, that happens
// on the first sign-in.
func (p *SessionProvider) SignUp(ctx context.Context, input SignUpInput) (*Identity, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := input.Validate(); err != nil {
		return nil, signUpValidationError(err)
	}

	identity, err := p.backend.SignUp(ctx, input.Email, input.Password, input.Metadata())
	if err != nil {
		return nil, asAuthError(err)
	}
	return identity, nil
}

// SignIn establishes a session and syncs the profile before the session
// is published, so listeners can rely on the profile existing.
func (p *SessionProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, NewAuthError(AuthInvalidCredentials, nil)
	}

	if !p.allow(ctx, "signin:"+strings.ToLower(email)) {
		return nil, NewAuthError(AuthRateLimited, nil)
	}

	session, err := p.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		err = asAuthError(err)
		recordActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
			EventType: ActivityEventSignInFailed,
			Metadata:  map[string]any{"email": email, "reason": TextCodeOf(err)},
		})
		return nil, err
	}
	if session == nil || session.Identity.IsZero() {
		return nil, NewAuthError(AuthUnknown, errors.New("auth backend returned an empty session"))
	}

	prev := p.State()
	p.setResolving(true)

	if p.profiles != nil {
		if _, err := p.profiles.CreateOrUpdate(ctx, session); err != nil {
			p.logger.Error("profile sync failed on sign in", "user_id", session.Identity.ID, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		p.setResolving(prev.Resolving)
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled during sign in")
	}

	p.apply(SessionEventSignedIn, SessionState{Session: session})
	recordActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
		EventType: ActivityEventSignedIn,
		Actor:     ActorRef{ID: session.Identity.ID},
		UserID:    session.Identity.ID,
	})
	return session, nil
}

// SignOut is best effort: backend failures are logged and the local
// session is cleared regardless.
func (p *SessionProvider) SignOut(ctx context.Context) {
	current := p.State().Session
	if current != nil && p.backend != nil {
		if err := p.backend.SignOut(ctx, current); err != nil {
			p.logger.Warn("sign out failed", "user_id", current.Identity.ID, "error", err)
		}
	}

	p.apply(SessionEventSignedOut, SessionState{})
	if current != nil {
		recordActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
			EventType: ActivityEventSignedOut,
			Actor:     ActorRef{ID: current.Identity.ID},
			UserID:    current.Identity.ID,
		})
	}
}

// ResetPassword asks the backend to send a reset link.
func (p *SessionProvider) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return NewAuthError(AuthInvalidEmail, err)
	}
	if !p.allow(ctx, "reset:"+strings.ToLower(email)) {
		return NewAuthError(AuthRateLimited, nil)
	}
	if err := p.backend.ResetPasswordForEmail(ctx, email); err != nil {
		return asAuthError(err)
	}
	return nil
}

// State returns a snapshot of the current state.
func (p *SessionProvider) State() SessionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Subscribe registers l and returns a function that removes it.
func (p *SessionProvider) Subscribe(l SessionListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || l == nil {
		return func() {}
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Dispose drops every listener. State updates after Dispose are ignored.
func (p *SessionProvider) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
	p.listeners = map[int]SessionListener{}
}

func (p *SessionProvider) setResolving(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.disposed {
		p.state.Resolving = v
	}
}

func (p *SessionProvider) apply(event SessionEvent, next SessionState) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.state = next
	listeners := make([]SessionListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(event, next)
	}
}

func (p *SessionProvider) allow(ctx context.Context, key string) bool {
	if p.limiter == nil {
		return true
	}
	ok, err := p.limiter.Allow(ctx, key)
	if err != nil {
		p.logger.Warn("attempt limiter failed, allowing", "key", key, "error", err)
		return true
	}
	return ok
}

func asAuthError(err error) error {
	if strings.HasPrefix(TextCodeOf(err), "AUTH_") {
		return err
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return AuthErrorFromProvider(remote.Status, remote.Message)
	}
	if kind := classifyProviderMessage(0, err.Error()); kind != AuthUnknown {
		return NewAuthError(kind, err)
	}
	return NewAuthError(AuthUnknown, err)
}

func signUpValidationError(err error) error {
	var fields validation.Errors
	if errors.As(err, &fields) {
		if _, ok := fields["email"]; ok {
			return NewAuthError(AuthInvalidEmail, err)
		}
		if _, ok := fields["password"]; ok {
			return NewAuthError(AuthWeakPassword, err)
		}
	}
	return inputError(err, "invalid sign up input")
}

// optionalPositiveDecimal treats zero as omitted; the profile then gets
// DefaultInitialCapital.
func optionalPositiveDecimal(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.IsZero() {
		return nil
	}
	if !d.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
