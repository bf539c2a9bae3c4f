// Package localauth is a self contained auth collaborator: bcrypt hashed
// credentials held in memory and HS256 access tokens. It backs local
// development and the test suites of packages that need a real backend.
package localauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	auth "github.com/txnjournal/go-txn-auth"
)

const minPasswordLength = 6

type account struct {
	identity auth.Identity
	hash     string
}

// Backend implements auth.AuthBackend in memory.
type Backend struct {
	mu       sync.RWMutex
	accounts map[string]*account
	revoked  map[string]struct{}
	resets   []string

	signer         *Signer
	verifier       *Verifier
	requireConfirm bool
	logger         auth.Logger
	now            func() time.Time
}

var _ auth.AuthBackend = (*Backend)(nil)

// Option customizes a Backend.
type Option func(*Backend)

// WithEmailConfirmation rejects sign in until ConfirmEmail was called.
func WithEmailConfirmation(required bool) Option {
	return func(b *Backend) {
		b.requireConfirm = required
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewBackend returns a backend signing tokens with secret.
func NewBackend(secret []byte, ttl time.Duration, opts ...Option) (*Backend, error) {
	b := &Backend{
		accounts: map[string]*account{},
		revoked:  map[string]struct{}{},
		logger:   auth.DefaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	b.signer = NewSigner(secret, "localauth", ttl)
	b.signer.now = b.now
	verifier, err := NewVerifier(VerifierConfig{
		Secret:   secret,
		Issuer:   "localauth",
		Audience: AuthenticatedAudience,
		Logger:   b.logger,
		Clock:    b.now,
	})
	if err != nil {
		return nil, err
	}
	b.verifier = verifier
	return b, nil
}

// Verifier returns the verifier for tokens minted by this backend.
func (b *Backend) Verifier() *Verifier {
	return b.verifier
}

// SignUp implements auth.AuthBackend.
func (b *Backend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, auth.NewAuthError(auth.AuthInvalidEmail, nil)
	}
	if len(password) < minPasswordLength {
		return nil, auth.NewAuthError(auth.AuthWeakPassword, nil)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, auth.NewAuthError(auth.AuthUnknown, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		return nil, auth.NewAuthError(auth.AuthAlreadyRegistered, nil)
	}

	identity := auth.Identity{
		ID:       uuid.NewString(),
		Email:    email,
		Metadata: cloneMetadata(metadata),
	}
	if !b.requireConfirm {
		at := b.now()
		identity.EmailConfirmedAt = &at
	}
	b.accounts[email] = &account{identity: identity, hash: hash}
	b.logger.Info("local account registered", "user_id", identity.ID)

	out := identity
	return &out, nil
}

// ConfirmEmail marks the account's email as confirmed.
func (b *Backend) ConfirmEmail(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[normalizeEmail(email)]
	if !ok {
		return false
	}
	at := b.now()
	acc.identity.EmailConfirmedAt = &at
	return true
}

// SignInWithPassword implements auth.AuthBackend.
func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	acc, ok := b.accounts[normalizeEmail(email)]
	var identity auth.Identity
	var hash string
	if ok {
		identity, hash = acc.identity, acc.hash
	}
	b.mu.RUnlock()

	if !ok {
		return nil, auth.NewAuthError(auth.AuthInvalidCredentials, nil)
	}
	if err := ComparePasswordAndHash(password, hash); err != nil {
		return nil, auth.NewAuthError(auth.AuthInvalidCredentials, nil)
	}
	if identity.EmailConfirmedAt == nil {
		return nil, auth.NewAuthError(auth.AuthEmailNotConfirmed, nil)
	}

	token, exp, err := b.signer.Sign(identity)
	if err != nil {
		return nil, auth.NewAuthError(auth.AuthUnknown, err)
	}
	return &auth.Session{
		Identity:     identity,
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    exp,
	}, nil
}

// SignOut implements auth.AuthBackend by revoking the access token.
func (b *Backend) SignOut(ctx context.Context, session *auth.Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	b.mu.Lock()
	b.revoked[session.AccessToken] = struct{}{}
	b.mu.Unlock()
	return nil
}

// GetUser implements auth.AuthBackend.
func (b *Backend) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	b.mu.RLock()
	_, revoked := b.revoked[accessToken]
	b.mu.RUnlock()
	if revoked {
		return nil, auth.ErrNotAuthenticated
	}

	claimed, err := b.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[normalizeEmail(claimed.Email)]
	if !ok || acc.identity.ID != claimed.ID {
		return nil, auth.ErrNotAuthenticated
	}
	out := acc.identity
	return &out, nil
}

// ResetPasswordForEmail implements auth.AuthBackend. Unknown addresses are
// accepted silently so callers cannot discover which accounts exist.
func (b *Backend) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		b.resets = append(b.resets, email)
	}
	return nil
}

// ResetRequests lists addresses a reset was requested for.
func (b *Backend) ResetRequests() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.resets...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
