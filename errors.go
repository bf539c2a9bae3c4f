package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// AuthErrorKind identifies a failure reported by the auth collaborator.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "AUTH_INVALID_CREDENTIALS"
	AuthEmailNotConfirmed  AuthErrorKind = "AUTH_EMAIL_NOT_CONFIRMED"
	AuthRateLimited        AuthErrorKind = "AUTH_RATE_LIMITED"
	AuthAlreadyRegistered  AuthErrorKind = "AUTH_ALREADY_REGISTERED"
	AuthWeakPassword       AuthErrorKind = "AUTH_WEAK_PASSWORD"
	AuthInvalidEmail       AuthErrorKind = "AUTH_INVALID_EMAIL"
	AuthUnknown            AuthErrorKind = "AUTH_UNKNOWN"
)

// FetchErrorKind classifies a failed read or write against the data store.
type FetchErrorKind string

const (
	FetchProfileMissing   FetchErrorKind = "FETCH_PROFILE_MISSING"
	FetchPolicyRejected   FetchErrorKind = "FETCH_POLICY_REJECTED"
	FetchPermissionDenied FetchErrorKind = "FETCH_PERMISSION_DENIED"
	FetchDatabase         FetchErrorKind = "FETCH_DATABASE"
	FetchTransport        FetchErrorKind = "FETCH_TRANSPORT"
	FetchTimeout          FetchErrorKind = "FETCH_TIMEOUT"
	FetchUnknown          FetchErrorKind = "FETCH_UNKNOWN"
)

const (
	TextCodeInvalidRole          = "INVALID_ROLE"
	TextCodeInvalidStatus        = "INVALID_STATUS"
	TextCodeInvalidInput         = "INVALID_INPUT"
	TextCodeForbidden            = "OPERATION_FORBIDDEN"
	TextCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	TextCodeUserNotPending       = "USER_NOT_PENDING"
	TextCodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	TextCodeConfigMissing        = "CONFIG_MISSING"
	TextCodeBatchEmpty           = "BATCH_EMPTY"
	TextCodeBatchTooLarge        = "BATCH_TOO_LARGE"
	TextCodeNotAuthenticated     = "NOT_AUTHENTICATED"
)

// NotFoundCode is the store error code for "no rows" on a single-row read.
const NotFoundCode = "PGRST116"

// ErrNotAuthenticated is returned by operations that need a session.
var ErrNotAuthenticated = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// RemoteError is the decoded error body of a data store or auth call.
type RemoteError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// TextCodeOf returns the first non-empty text code in the error chain.
func TextCodeOf(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if rich, ok := e.(*goerrors.Error); ok && rich.TextCode != "" {
			return rich.TextCode
		}
	}
	return ""
}

// HasTextCode reports whether err carries code anywhere in its chain.
func HasTextCode(err error, code string) bool {
	return err != nil && TextCodeOf(err) == code
}

// NewAuthError builds an AuthError of the given kind.
func NewAuthError(kind AuthErrorKind, cause error) error {
	category, code := goerrors.CategoryAuth, goerrors.CodeUnauthorized
	switch kind {
	case AuthRateLimited:
		category, code = goerrors.CategoryRateLimit, http.StatusTooManyRequests
	case AuthEmailNotConfirmed:
		code = goerrors.CodeForbidden
	case AuthAlreadyRegistered:
		category, code = goerrors.CategoryConflict, goerrors.CodeConflict
	case AuthWeakPassword, AuthInvalidEmail:
		category, code = goerrors.CategoryValidation, goerrors.CodeBadRequest
	}

	msg := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(string(kind), "AUTH_"), "_", " "))
	if cause == nil {
		return goerrors.New(msg, category).
			WithTextCode(string(kind)).
			WithCode(code)
	}
	return goerrors.Wrap(cause, category, msg).
		WithTextCode(string(kind)).
		WithCode(code)
}

// AuthErrorFromProvider maps the provider's raw message to a kind.
func AuthErrorFromProvider(status int, message string) error {
	return NewAuthError(classifyProviderMessage(status, message), &RemoteError{Status: status, Message: message})
}

func classifyProviderMessage(status int, message string) AuthErrorKind {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "invalid login credentials"), strings.Contains(m, "invalid credentials"):
		return AuthInvalidCredentials
	case strings.Contains(m, "email not confirmed"):
		return AuthEmailNotConfirmed
	case strings.Contains(m, "too many requests"), strings.Contains(m, "rate limit"), status == http.StatusTooManyRequests:
		return AuthRateLimited
	case strings.Contains(m, "already registered"):
		return AuthAlreadyRegistered
	case strings.Contains(m, "password should be at least"):
		return AuthWeakPassword
	case strings.Contains(m, "unable to validate email"), strings.Contains(m, "invalid email"):
		return AuthInvalidEmail
	default:
		return AuthUnknown
	}
}

// AuthErrorKindOf recovers the AuthErrorKind of err, AuthUnknown otherwise.
func AuthErrorKindOf(err error) AuthErrorKind {
	code := TextCodeOf(err)
	if strings.HasPrefix(code, "AUTH_") {
		return AuthErrorKind(code)
	}
	return AuthUnknown
}

// NewFetchError wraps cause with its fetch classification.
func NewFetchError(kind FetchErrorKind, cause error) error {
	category, code := goerrors.CategoryInternal, goerrors.CodeInternal
	switch kind {
	case FetchProfileMissing:
		category, code = goerrors.CategoryNotFound, goerrors.CodeNotFound
	case FetchPolicyRejected, FetchPermissionDenied:
		category, code = goerrors.CategoryAuthz, goerrors.CodeForbidden
	case FetchTransport, FetchTimeout:
		category = goerrors.CategoryOperation
	}

	msg := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(string(kind), "FETCH_"), "_", " "))
	if cause == nil {
		return goerrors.New(msg, category).WithTextCode(string(kind)).WithCode(code)
	}
	return goerrors.Wrap(cause, category, msg).WithTextCode(string(kind)).WithCode(code)
}

// ClassifyFetchError maps any data store failure onto a FetchErrorKind.
func ClassifyFetchError(err error) FetchErrorKind {
	if err == nil {
		return ""
	}

	if code := TextCodeOf(err); strings.HasPrefix(code, "FETCH_") {
		return FetchErrorKind(code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		return classifyRemote(remote)
	}

	if goerrors.IsNotFound(err) {
		return FetchProfileMissing
	}

	return classifyMessage(err.Error())
}

func classifyRemote(r *RemoteError) FetchErrorKind {
	msg := strings.ToLower(r.Message + " " + r.Details)
	switch {
	case r.Code == NotFoundCode:
		return FetchProfileMissing
	case strings.Contains(msg, "row level security"), strings.Contains(msg, "row-level security"):
		return FetchPolicyRejected
	case r.Code == "42501", strings.Contains(msg, "permission denied"), r.Status == http.StatusForbidden:
		return FetchPermissionDenied
	case r.Code != "":
		return FetchDatabase
	}
	return classifyMessage(msg)
}

func classifyMessage(msg string) FetchErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "row level security"), strings.Contains(m, "row-level security"):
		return FetchPolicyRejected
	case strings.Contains(m, "permission denied"):
		return FetchPermissionDenied
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"):
		return FetchTimeout
	case isTransientMessage(m):
		return FetchTransport
	default:
		return FetchUnknown
	}
}

// ValidationError for a role outside the closed set.
func invalidRoleError(raw string) error {
	return goerrors.New(fmt.Sprintf("invalid role %q", raw), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidRole).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"value": raw})
}

// ValidationError for a status outside the closed set.
func invalidStatusError(raw string) error {
	return goerrors.New(fmt.Sprintf("invalid status %q", raw), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidStatus).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"value": raw})
}

// IsValidationError is true for invalid role, status or input errors.
func IsValidationError(err error) bool {
	switch TextCodeOf(err) {
	case TextCodeInvalidRole, TextCodeInvalidStatus, TextCodeInvalidInput:
		return true
	}
	return false
}

func forbiddenError(op string, role Role) error {
	return goerrors.New(fmt.Sprintf("%s not permitted for role %q", op, role), goerrors.CategoryAuthz).
		WithTextCode(TextCodeForbidden).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{"operation": op, "role": string(role)})
}

func inputError(cause error, msg string) error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, msg).
		WithTextCode(TextCodeInvalidInput).
		WithCode(goerrors.CodeBadRequest)
}

// withMetadata annotates a copy of a sentinel so the shared value is never mutated.
func withMetadata(base *goerrors.Error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	return clone.WithMetadata(meta)
}
