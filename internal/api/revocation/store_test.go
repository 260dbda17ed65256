package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, failOpen bool) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, failOpen), mr
}

func TestBlacklist(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, true)
	ctx := context.Background()

	listed, err := s.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, listed)

	require.NoError(t, s.Blacklist(ctx, "tok-1", time.Minute))

	listed, err = s.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, listed)

	// The entry self-expires with the token's remaining lifetime.
	mr.FastForward(2 * time.Minute)
	listed, err = s.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, listed)
}

func TestBlacklistExpiredTokenIsNoop(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, true)

	require.NoError(t, s.Blacklist(context.Background(), "tok-stale", -time.Second))
	require.False(t, mr.Exists("blacklist:tok-stale"))
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, true)
	ctx := context.Background()

	since, err := s.RevokedSince(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, since.IsZero())

	before := time.Now().UTC()
	require.NoError(t, s.RevokeAll(ctx, "user-1", time.Hour))

	since, err = s.RevokedSince(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, since.Before(before))
	require.False(t, since.After(time.Now().UTC()))

	// The marker self-expires after the maximum refresh lifetime.
	mr.FastForward(2 * time.Hour)
	since, err = s.RevokedSince(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, since.IsZero())
}

func TestCorruptMarkerIgnored(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, true)

	mr.Set("user_revoke_all:user-1", "not-a-timestamp")
	since, err := s.RevokedSince(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, since.IsZero())
}

func TestDisabledMode(t *testing.T) {
	t.Parallel()
	s := Disabled()
	ctx := context.Background()

	require.False(t, s.Enabled())

	// Reads report "not revoked".
	listed, err := s.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	require.False(t, listed)

	since, err := s.RevokedSince(ctx, "user")
	require.NoError(t, err)
	require.True(t, since.IsZero())

	// Writes fail closed: the guarantee cannot be honoured.
	require.ErrorIs(t, s.Blacklist(ctx, "tok", time.Minute), ErrDisabled)
	require.ErrorIs(t, s.RevokeAll(ctx, "user", time.Minute), ErrDisabled)
}

func TestUnreachableStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reads fail open by policy", func(t *testing.T) {
		s, mr := newTestStore(t, true)
		mr.Close()

		listed, err := s.IsBlacklisted(ctx, "tok")
		require.NoError(t, err)
		require.False(t, listed)

		since, err := s.RevokedSince(ctx, "user")
		require.NoError(t, err)
		require.True(t, since.IsZero())
	})

	t.Run("reads surface errors when fail-open is off", func(t *testing.T) {
		s, mr := newTestStore(t, false)
		mr.Close()

		_, err := s.IsBlacklisted(ctx, "tok")
		require.ErrorIs(t, err, ErrUnavailable)

		_, err = s.RevokedSince(ctx, "user")
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("writes always surface errors", func(t *testing.T) {
		s, mr := newTestStore(t, true)
		mr.Close()

		require.ErrorIs(t, s.Blacklist(ctx, "tok", time.Minute), ErrUnavailable)
		require.ErrorIs(t, s.RevokeAll(ctx, "user", time.Minute), ErrUnavailable)
	})
}
