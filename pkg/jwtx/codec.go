package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/cartogra/cartogra/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates access tokens from refresh tokens. It is embedded in the
// signed claims ("type") and is immutable once a token is issued.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// MinSecretLen is the minimum accepted HMAC secret length in bytes. Anything
// shorter makes brute forcing the signature practical.
const MinSecretLen = 32

// Identity is the claim payload carried by every issued token.
type Identity struct {
	UserID    string
	OrgID     string
	Email     string
	Superuser bool
}

// Claims is the on-the-wire claim set. Field names match what the rest of the
// platform (and external verifiers holding the shared secret) expect.
type Claims struct {
	jwt.RegisteredClaims

	OrgID     string `json:"org_id"`
	Email     string `json:"email,omitempty"`
	Superuser bool   `json:"is_superuser,omitempty"`
	Kind      Kind   `json:"type"`
}

// Identity re-assembles the Identity embedded in verified claims.
func (c Claims) Identity() Identity {
	return Identity{
		UserID:    c.Subject,
		OrgID:     c.OrgID,
		Email:     c.Email,
		Superuser: c.Superuser,
	}
}

// Config for a Codec. Secret and Algorithm come straight from application
// configuration; Audience is stamped and enforced when non-empty.
type Config struct {
	Secret    []byte
	Algorithm string // HS256 (default), HS384 or HS512
	Audience  string
}

// Codec signs and verifies tokens. It is pure: no I/O, no shared mutable
// state, safe for concurrent use.
type Codec struct {
	secret   []byte
	method   jwt.SigningMethod
	audience string
}

// NewCodec validates the configuration and returns a ready Codec. A missing
// or short secret is a hard error; the process must not serve traffic with a
// weak signing key.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("jwtx: secret must be at least %d bytes", MinSecretLen)
	}

	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("jwtx: unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &Codec{
		secret:   append([]byte(nil), cfg.Secret...),
		method:   method,
		audience: cfg.Audience,
	}, nil
}

// Issue signs a token of the given kind valid for ttl. The embedded expiry is
// exactly iat+ttl and every token carries a fresh ULID "jti".
func (c *Codec) Issue(id Identity, kind Kind, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("jwtx: ttl must be > 0")
	}

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.New().String(),
		},
		OrgID:     id.OrgID,
		Email:     id.Email,
		Superuser: id.Superuser,
		Kind:      kind,
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Verify checks the signature, expiry and kind of a token and returns its
// claims. All failures wrap ErrInvalidToken; see errors.go.
func (c *Codec) Verify(token string, kind Kind) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrBadSig
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrMalformed
	}
	if claims.Subject == "" || claims.OrgID == "" {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrMalformed)
	}
	// Callers dereference these; a signed token without them must not get
	// through even though the parser treats missing time claims as valid.
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrMalformed)
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}

	return *claims, nil
}
