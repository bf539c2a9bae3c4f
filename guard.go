package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DecisionKind is the outcome of one guard evaluation.
type DecisionKind int

const (
	DecisionResolving DecisionKind = iota
	DecisionGranted
	DecisionDeniedUnauthenticated
	DecisionDeniedUnapproved
	DecisionDeniedInsufficientRole
	DecisionDeniedSystemError
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionResolving:
		return "resolving"
	case DecisionGranted:
		return "granted"
	case DecisionDeniedUnauthenticated:
		return "denied_unauthenticated"
	case DecisionDeniedUnapproved:
		return "denied_unapproved"
	case DecisionDeniedInsufficientRole:
		return "denied_insufficient_role"
	case DecisionDeniedSystemError:
		return "denied_system_error"
	default:
		return "unknown"
	}
}

// Decision is computed fresh on every evaluation and never persisted.
type Decision struct {
	Kind DecisionKind
	// Role is set for Granted and DeniedInsufficientRole.
	Role Role
	// Status is set for Granted, DeniedUnapproved and DeniedInsufficientRole.
	Status AccountStatus
	// Cause is the text code of a DeniedSystemError.
	Cause string
	// Reason is the user-facing message.
	Reason string
	// RedirectTo is set for DeniedUnauthenticated.
	RedirectTo string
	Profile    *UserProfile
	Err        error
}

// Granted reports whether access was granted.
func (d Decision) Granted() bool {
	return d.Kind == DecisionGranted
}

// Requirement is the role bar of a protected area.
type Requirement struct {
	Name  string
	Allow func(Role) bool
}

var (
	// RequireAdminPanel admits moderators and above.
	RequireAdminPanel = Requirement{Name: "admin_panel", Allow: CanAccessAdminPanel}
	// RequireUserManagement admits admins and above.
	RequireUserManagement = Requirement{Name: "user_management", Allow: CanManageUsers}
	// RequireActive admits any active account.
	RequireActive = Requirement{Name: "active", Allow: func(r Role) bool { return r.IsValid() }}
)

// ProfileSource resolves the profile of a session, read-only.
type ProfileSource interface {
	Resolve(ctx context.Context, session *Session) (*UserProfile, error)
}

// DefaultSignInPath is where unauthenticated visitors are sent.
const DefaultSignInPath = "/auth"

// RedirectParam carries the originally requested path.
const RedirectParam = "redirect"

// AccessGuard decides whether a session may enter a protected area.
type AccessGuard struct {
	profiles   ProfileSource
	timeout    time.Duration
	locale     string
	messages   MessageCatalog
	signInPath string
	logger     Logger
	metrics    *Metrics
}

// GuardOption customizes an AccessGuard.
type GuardOption func(*AccessGuard)

// WithPermissionCheckTimeout bounds the profile lookup.
func WithPermissionCheckTimeout(d time.Duration) GuardOption {
	return func(g *AccessGuard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGuardLocale selects the message locale.
func WithGuardLocale(locale string) GuardOption {
	return func(g *AccessGuard) {
		if locale != "" {
			g.locale = locale
		}
	}
}

// WithGuardMessages overrides the message catalog.
func WithGuardMessages(c MessageCatalog) GuardOption {
	return func(g *AccessGuard) {
		if c != nil {
			g.messages = c
		}
	}
}

// WithSignInPath overrides DefaultSignInPath.
func WithSignInPath(path string) GuardOption {
	return func(g *AccessGuard) {
		if path != "" {
			g.signInPath = path
		}
	}
}

// WithGuardLogger overrides the default logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *AccessGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardMetrics counts decisions.
func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *AccessGuard) {
		g.metrics = m
	}
}

// NewAccessGuard builds a guard over profiles.
func NewAccessGuard(profiles ProfileSource, opts ...GuardOption) *AccessGuard {
	g := &AccessGuard{
		profiles:   profiles,
		timeout:    DefaultPermissionCheckTimeout,
		locale:     LocaleEnglish,
		messages:   DefaultMessages,
		signInPath: DefaultSignInPath,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Evaluate runs the decision procedure. The status check always runs
// before the role check, so an admin that is still pending is reported as
// unapproved.
func (g *AccessGuard) Evaluate(ctx context.Context, state SessionState, req Requirement, requestedPath string) Decision {
	d := g.evaluate(ctx, state, req, requestedPath)
	g.metrics.observeDecision(d.Kind)
	return d
}

func (g *AccessGuard) evaluate(ctx context.Context, state SessionState, req Requirement, requestedPath string) Decision {
	if state.Resolving {
		return Decision{Kind: DecisionResolving}
	}

	if state.Session == nil || state.Session.Identity.IsZero() {
		return Decision{
			Kind:       DecisionDeniedUnauthenticated,
			Reason:     g.messages.Lookup(g.locale, TextCodeNotAuthenticated, "Please sign in to continue."),
			RedirectTo: g.SignInRedirect(requestedPath),
		}
	}

	profile, err := g.resolve(ctx, state.Session)
	if err != nil {
		return g.systemError(err)
	}

	// the resolver validates, this keeps the guard closed if a source does not
	if !profile.Role.IsValid() {
		return g.systemError(invalidRoleError(string(profile.Role)))
	}
	if !profile.Status.IsValid() {
		return g.systemError(invalidStatusError(string(profile.Status)))
	}

	if !profile.Status.IsActive() {
		return Decision{
			Kind:    DecisionDeniedUnapproved,
			Role:    profile.Role,
			Status:  profile.Status,
			Reason:  g.messages.Lookup(g.locale, DecisionDeniedUnapproved.String(), "Your account is not active."),
			Profile: profile,
		}
	}

	allow := req.Allow
	if allow == nil {
		allow = CanAccessAdminPanel
	}
	if !allow(profile.Role) {
		return Decision{
			Kind:    DecisionDeniedInsufficientRole,
			Role:    profile.Role,
			Status:  profile.Status,
			Reason:  g.messages.Lookup(g.locale, DecisionDeniedInsufficientRole.String(), "Insufficient role."),
			Profile: profile,
		}
	}

	return Decision{
		Kind:    DecisionGranted,
		Role:    profile.Role,
		Status:  profile.Status,
		Profile: profile,
	}
}

type resolveResult struct {
	profile *UserProfile
	err     error
}

// resolve enforces the timeout even when the source ignores ctx.
func (g *AccessGuard) resolve(ctx context.Context, session *Session) (*UserProfile, error) {
	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan resolveResult, 1)
	go func() {
		p, err := g.profiles.Resolve(tctx, session)
		done <- resolveResult{profile: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.profile == nil {
			return nil, NewFetchError(FetchProfileMissing, nil)
		}
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewFetchError(FetchTimeout, res.err)
		}
		return res.profile, res.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewFetchError(FetchTimeout, tctx.Err())
	}
}

func (g *AccessGuard) systemError(err error) Decision {
	cause := TextCodeOf(err)
	if !IsValidationError(err) && cause != TextCodeNotAuthenticated {
		cause = string(ClassifyFetchError(err))
	}

	reason := g.messages.Lookup(g.locale, cause, "")
	if reason == "" || cause == string(FetchUnknown) {
		reason = err.Error()
	}

	g.logger.Error("permission check failed", "cause", cause, "error", err)
	return Decision{
		Kind:   DecisionDeniedSystemError,
		Cause:  cause,
		Reason: reason,
		Err:    err,
	}
}

// SignInRedirect builds the sign-in URL carrying path for resumption.
func (g *AccessGuard) SignInRedirect(path string) string {
	return BuildSignInRedirect(g.signInPath, path)
}

// BuildSignInRedirect returns signInPath?redirect=<escaped path>.
func BuildSignInRedirect(signInPath, path string) string {
	if signInPath == "" {
		signInPath = DefaultSignInPath
	}
	if !isLocalPath(path) {
		return signInPath
	}
	return signInPath + "?" + RedirectParam + "=" + url.QueryEscape(path)
}

// ResumePath returns the redirect target carried in query, or fallback when
// it is missing or points off-site.
func ResumePath(query url.Values, fallback string) string {
	target := query.Get(RedirectParam)
	if !isLocalPath(target) {
		return fallback
	}
	return target
}

func isLocalPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// GuardMonitor keeps a decision current for one protected area. It
// re-evaluates when the identity changes or on Refresh, and drops results
// computed for an identity that is no longer current.
type GuardMonitor struct {
	guard    *AccessGuard
	provider *SessionProvider
	req      Requirement
	path     string
	onChange func(Decision)

	mu          sync.Mutex
	decision    Decision
	identityID  string
	resolving   bool
	generation  int
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewGuardMonitor builds a monitor. onChange may be nil.
func NewGuardMonitor(guard *AccessGuard, provider *SessionProvider, req Requirement, path string, onChange func(Decision)) *GuardMonitor {
	return &GuardMonitor{
		guard:    guard,
		provider: provider,
		req:      req,
		path:     path,
		onChange: onChange,
		decision: Decision{Kind: DecisionResolving},
	}
}

// Start evaluates the current state and subscribes to session changes.
func (m *GuardMonitor) Start(ctx context.Context) {
	unsubscribe := m.provider.Subscribe(func(_ SessionEvent, state SessionState) {
		m.onState(state, false)
	})

	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.onState(m.provider.State(), true)
}

// Stop unsubscribes and cancels any in-flight evaluation.
func (m *GuardMonitor) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.cancel != nil {
		m.cancel()
	}
	m.generation++
	m.mu.Unlock()

	// listeners take m.mu, so unsubscribe outside it
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Refresh re-evaluates for the current identity, e.g. after a role change.
func (m *GuardMonitor) Refresh() {
	m.onState(m.provider.State(), true)
}

// Decision returns the latest decision.
func (m *GuardMonitor) Decision() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

func (m *GuardMonitor) onState(state SessionState, force bool) {
	m.mu.Lock()
	id := state.IdentityID()
	if !force && id == m.identityID && state.Resolving == m.resolving {
		m.mu.Unlock()
		return
	}
	prevID := m.identityID
	m.identityID = id
	m.resolving = state.Resolving
	m.generation++
	gen := m.generation
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if id != prevID {
		// never keep showing a decision that belongs to another identity
		m.decision = Decision{Kind: DecisionResolving}
	}
	m.mu.Unlock()

	go func() {
		d := m.guard.Evaluate(ctx, state, m.req, m.path)
		m.publish(gen, d)
	}()
}

func (m *GuardMonitor) publish(gen int, d Decision) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	changed := !sameDecision(m.decision, d)
	m.decision = d
	cb := m.onChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(d)
	}
}

func sameDecision(a, b Decision) bool {
	return a.Kind == b.Kind && a.Role == b.Role && a.Status == b.Status && a.Cause == b.Cause
}
