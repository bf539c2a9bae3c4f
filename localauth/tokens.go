package localauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	auth "github.com/txnjournal/go-txn-auth"
)

const (
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
	TextCodeTokenMalformed = "TOKEN_MALFORMED"

	// AuthenticatedAudience is the audience of end user access tokens.
	AuthenticatedAudience = "authenticated"
)

var ErrTokenExpired = goerrors.New("access token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("access token malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// Claims are the access token claims issued for an identity.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Identity maps the claims to an auth identity.
func (c *Claims) Identity() *auth.Identity {
	return &auth.Identity{
		ID:       c.Subject,
		Email:    c.Email,
		Metadata: c.UserMetadata,
	}
}

// Signer mints HS256 access tokens.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer for secret. A zero ttl defaults to one hour.
func NewSigner(secret []byte, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Sign issues an access token for identity and returns it with its expiry.
func (s *Signer) Sign(identity auth.Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{AuthenticatedAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:        identity.Email,
		Role:         AuthenticatedAudience,
		UserMetadata: identity.Metadata,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, exp, nil
}

// SigningKey is a verification key addressed by kid.
type SigningKey struct {
	Key    any
	JWTAlg string
}

// VerifierConfig selects how token keys are resolved. The first of
// JWKSURL, SigningKeys and Secret that is set wins.
type VerifierConfig struct {
	JWKSURL     string
	SigningKeys map[string]SigningKey
	Secret      []byte
	Issuer      string
	Audience    string
	Logger      auth.Logger
	// Clock overrides the time used for expiry checks.
	Clock func() time.Time
}

// Verifier validates access tokens locally. It implements auth.TokenVerifier.
type Verifier struct {
	keyFunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
	parser  *jwt.Parser
	logger  auth.Logger
}

var _ auth.TokenVerifier = (*Verifier)(nil)

// NewVerifier builds a verifier from cfg.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	v := &Verifier{logger: logger}

	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				logger.Error("failed to do a background refresh of JWT set", "error", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to get JWT set")
		}
		v.jwks = jwks
		v.keyFunc = jwks.Keyfunc
	case len(cfg.SigningKeys) > 0:
		given := make(map[string]keyfunc.GivenKey, len(cfg.SigningKeys))
		for kid, key := range cfg.SigningKeys {
			given[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
				Algorithm: key.JWTAlg,
			})
		}
		v.keyFunc = keyfunc.NewGiven(given).Keyfunc
	case len(cfg.Secret) > 0:
		v.keyFunc = hmacKeyFunc(cfg.Secret, logger)
	default:
		return nil, goerrors.New("one of JWKS url, signing keys or secret is required", goerrors.CategoryBadInput).
			WithTextCode(auth.TextCodeConfigMissing)
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Clock != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Clock))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Verify implements auth.TokenVerifier.
func (v *Verifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, auth.ErrNotAuthenticated
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		return nil, normalizeValidationError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims.Identity(), nil
}

// Close stops the JWKS background refresh, if any.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func hmacKeyFunc(secret []byte, logger auth.Logger) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			logger.Error("token verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}
}

func normalizeValidationError(err error) error {
	base := ErrTokenMalformed
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		base = ErrTokenExpired
	}
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = err
	return clone.WithMetadata(map[string]any{"cause": err.Error()})
}
