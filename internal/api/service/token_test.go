package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cartogra/cartogra/internal/api/revocation"
	"github.com/cartogra/cartogra/pkg/jwtx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testIdentity = jwtx.Identity{
	UserID:    "01J0USER00000000000000000A",
	OrgID:     "01J0ORG000000000000000000A",
	Email:     "ada@example.com",
	Superuser: false,
}

func newTokenService(t *testing.T, failOpen bool) (*TokenService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := jwtx.NewCodec(jwtx.Config{Secret: []byte(testSecret)})
	require.NoError(t, err)

	return &TokenService{
		Codec:       codec,
		Revocations: revocation.New(rdb, failOpen),
		AccessTTL:   30 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
	}, mr
}

func TestCreatePair(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)
	require.Equal(t, "bearer", pair.TokenType)
	require.Equal(t, int64(1800), pair.ExpiresIn)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	id, err := s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, testIdentity, id)

	id, err = s.Validate(ctx, pair.RefreshToken, jwtx.KindRefresh)
	require.NoError(t, err)
	require.Equal(t, testIdentity, id)

	// A refresh token never passes as an access token and vice versa.
	_, err = s.Validate(ctx, pair.RefreshToken, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindRefresh)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	next, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	id, err := s.Validate(ctx, next.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, testIdentity, id)

	// The presented refresh token is single use.
	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// The rotated one still works.
	_, err = s.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	_, err = s.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.RefreshToken))
	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Access tokens can be revoked individually too.
	require.NoError(t, s.Revoke(ctx, pair.AccessToken))
	_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeFailsClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled store", func(t *testing.T) {
		s, _ := newTokenService(t, true)
		s.Revocations = revocation.Disabled()

		pair, err := s.CreatePair(ctx, testIdentity)
		require.NoError(t, err)

		require.ErrorIs(t, s.Revoke(ctx, pair.RefreshToken), revocation.ErrDisabled)
	})

	t.Run("unreachable store", func(t *testing.T) {
		s, mr := newTokenService(t, true)

		pair, err := s.CreatePair(ctx, testIdentity)
		require.NoError(t, err)

		mr.Close()
		require.ErrorIs(t, s.Revoke(ctx, pair.RefreshToken), revocation.ErrUnavailable)
	})
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	require.NoError(t, s.RevokeAll(ctx, testIdentity.UserID))

	_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Other users are untouched.
	other := testIdentity
	other.UserID = "01J0OTHER0000000000000000A"
	otherPair, err := s.CreatePair(ctx, other)
	require.NoError(t, err)
	_, err = s.Validate(ctx, otherPair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
}

func TestRevokeAllBoundary(t *testing.T) {
	t.Parallel()
	s, mr := newTokenService(t, true)
	ctx := context.Background()

	// Plant a marker an hour in the past. Tokens issued now carry a later
	// iat and must survive it; the marker only catches what predates it.
	stamp := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, mr.Set("user_revoke_all:"+testIdentity.UserID, stamp))

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)

	// A corrupt marker must not lock the user out.
	require.NoError(t, mr.Set("user_revoke_all:"+testIdentity.UserID, "not-a-timestamp"))
	_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
}

func TestTimelessTokensRejected(t *testing.T) {
	t.Parallel()
	s, mr := newTokenService(t, true)
	ctx := context.Background()

	// Signed with the shared secret but carrying no exp or iat. The lifecycle
	// operations dereference both, so such a token must die at verification.
	mint := func(kind jwtx.Kind) string {
		claims := jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: testIdentity.UserID},
			OrgID:            testIdentity.OrgID,
			Kind:             kind,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return token
	}

	_, err := s.Refresh(ctx, mint(jwtx.KindRefresh))
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)

	// A standing revoke-all marker makes Validate compare against iat.
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	require.NoError(t, mr.Set("user_revoke_all:"+testIdentity.UserID, stamp))
	_, err = s.Validate(ctx, mint(jwtx.KindAccess), jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestValidateShortCircuits(t *testing.T) {
	t.Parallel()
	// failOpen=false so any redis read would error. A garbage token must be
	// rejected locally without the revocation store ever being consulted.
	s, mr := newTokenService(t, false)
	mr.Close()

	_, err := s.Validate(context.Background(), "not.a.token", jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	require.NotErrorIs(t, err, revocation.ErrUnavailable)
}

func TestValidateFailurePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fail open admits when redis is down", func(t *testing.T) {
		s, mr := newTokenService(t, true)
		pair, err := s.CreatePair(ctx, testIdentity)
		require.NoError(t, err)

		mr.Close()
		id, err := s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
		require.NoError(t, err)
		require.Equal(t, testIdentity, id)
	})

	t.Run("fail closed rejects when redis is down", func(t *testing.T) {
		s, mr := newTokenService(t, false)
		pair, err := s.CreatePair(ctx, testIdentity)
		require.NoError(t, err)

		mr.Close()
		_, err = s.Validate(ctx, pair.AccessToken, jwtx.KindAccess)
		require.ErrorIs(t, err, revocation.ErrUnavailable)
	})
}

func TestRefreshWithDisabledStore(t *testing.T) {
	t.Parallel()
	s, _ := newTokenService(t, true)
	s.Revocations = revocation.Disabled()
	ctx := context.Background()

	pair, err := s.CreatePair(ctx, testIdentity)
	require.NoError(t, err)

	// Without a revocation store the exchange still works, there is just no
	// single-use enforcement on the presented token.
	first, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, first.AccessToken)

	second, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, second.AccessToken)
}
