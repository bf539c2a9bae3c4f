package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity is the principal issued by the external auth collaborator.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// MetadataString returns a string value from the metadata bag.
func (i Identity) MetadataString(key string) string {
	if i.Metadata == nil {
		return ""
	}
	switch v := i.Metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// IsZero is true for the empty identity.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Session is an authenticated session with the auth collaborator.
type Session struct {
	Identity     Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// AuthBackend is the external auth collaborator.
type AuthBackend interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, session *Session) error
	GetUser(ctx context.Context, accessToken string) (*Identity, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// ProfileStore reads and writes the caller's own profile. Implementations
// take the acting session from the context, see WithSession.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*ProfileRecord, error)
	InsertProfile(ctx context.Context, record *ProfileRecord) error
	UpdateProfileDisplay(ctx context.Context, id string, fields DisplayFields) error
	// CurrentUserInfo is the canonical permission source for the session in ctx.
	CurrentUserInfo(ctx context.Context) (*ProfileRecord, error)
}

// AdminStore is the privileged side of the data store.
type AdminStore interface {
	ProfileStore

	ApproveUser(ctx context.Context, targetID string) (*ProfileRecord, error)
	DeactivateUser(ctx context.Context, targetID, reason string) (*ProfileRecord, error)
	UpdateRole(ctx context.Context, targetID string, role Role, at time.Time) (*ProfileRecord, error)
	UpdateStatus(ctx context.Context, targetID string, status AccountStatus, at time.Time) (*ProfileRecord, error)
	ListProfiles(ctx context.Context, query ProfileQuery) (*ProfilePage, error)
	CountProfiles(ctx context.Context) (*UserStats, error)
	// RecentRecords lists the newest rows of a journal table, newest first.
	RecentRecords(ctx context.Context, table JournalTable, limit int) ([]RecentRecord, error)
	AppendAdminLog(ctx context.Context, entry *AdminLog) error
	AppendStatusHistory(ctx context.Context, entry *StatusHistoryEntry) error
}

// DisplayFields are the session-owned, denormalized profile fields.
type DisplayFields struct {
	Email     string
	FullName  string
	AvatarURL string
	UpdatedAt time.Time
}

// AttemptLimiter bounds sign-in and reset attempts per key.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenVerifier validates an access token locally and returns its identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenVerifierFunc adapts a function to the TokenVerifier interface, e.g.
// an AuthBackend's GetUser.
type TokenVerifierFunc func(ctx context.Context, token string) (*Identity, error)

// Verify implements TokenVerifier.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// Confirmer asks the acting administrator to confirm a destructive change.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, req ConfirmationRequest) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f(ctx, req)
}

// ConfirmationRequest describes the change awaiting confirmation.
type ConfirmationRequest struct {
	ActorID  string
	TargetID string
	From     AccountStatus
	To       AccountStatus
	Reason   string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + format(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// DefaultLogger is the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}
