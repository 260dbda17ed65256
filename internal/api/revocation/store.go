// Package revocation tracks invalidated tokens in redis: a per-token
// blacklist and a per-user "revoke all before" marker. Entries carry TTLs
// sized to the tokens they refer to, so the store cleans itself up.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cartogra/cartogra/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrDisabled reports that no backing store is attached, so a revocation
	// guarantee cannot be honoured. Explicit revoke operations fail closed on it.
	ErrDisabled = errors.New("revocation: store disabled")

	// ErrUnavailable wraps transport failures talking to redis.
	ErrUnavailable = errors.New("revocation: store unavailable")
)

const (
	blacklistPrefix = "blacklist:"
	revokeAllPrefix = "user_revoke_all:"
)

// Store is the remote revocation index. A nil client puts it in disabled
// mode: writes fail with ErrDisabled, reads report "not revoked".
//
// FailOpen governs read errors only: when true (the default deployment
// policy) an unreachable store reports "not revoked" in favour of
// availability; when false the error propagates and callers treat the token
// as invalid. Writes always surface errors regardless of the policy.
type Store struct {
	redis    redis.UniversalClient
	failOpen bool
}

func New(client redis.UniversalClient, failOpen bool) *Store {
	return &Store{redis: client, failOpen: failOpen}
}

// Disabled returns a store with no backing client.
func Disabled() *Store {
	return &Store{}
}

// Enabled reports whether a backing store is attached.
func (s *Store) Enabled() bool { return s.redis != nil }

// Blacklist marks a single token as revoked for ttl. ttl should be the
// token's remaining lifetime so the entry never outlives the token.
func (s *Store) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if ttl <= 0 {
		// Token already expired, nothing to record.
		return nil
	}
	if err := s.redis.Set(ctx, blacklistPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the token has been individually revoked.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	n, err := s.redis.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return s.readFailure(ctx, "blacklist check failed", err)
	}
	return n > 0, nil
}

// RevokeAll stamps the user's revoke-all marker with the current time for
// ttl. ttl should be the maximum refresh token lifetime so the marker
// outlives every token it can affect.
func (s *Store) RevokeAll(ctx context.Context, userID string, ttl time.Duration) error {
	if !s.Enabled() {
		return ErrDisabled
	}

	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.redis.Set(ctx, revokeAllPrefix+userID, stamp, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokedSince returns the user's revoke-all timestamp, or the zero time when
// no marker is set. Tokens issued strictly before the timestamp are revoked.
func (s *Store) RevokedSince(ctx context.Context, userID string) (time.Time, error) {
	if !s.Enabled() {
		return time.Time{}, nil
	}

	val, err := s.redis.Get(ctx, revokeAllPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		_, rerr := s.readFailure(ctx, "revoke-all check failed", err)
		return time.Time{}, rerr
	}

	stamp, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// A corrupt marker is treated like a missing one rather than locking
		// the user out forever.
		slogx.FromContext(ctx).Warn("revocation: corrupt revoke-all marker", "user_id", userID, "value", val)
		return time.Time{}, nil
	}
	return stamp, nil
}

func (s *Store) readFailure(ctx context.Context, msg string, err error) (bool, error) {
	if s.failOpen {
		slogx.FromContext(ctx).Warn("revocation: "+msg+", failing open", "error", err)
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
