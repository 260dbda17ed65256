package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cartogra/cartogra/internal/api/domain"
	"github.com/cartogra/cartogra/internal/api/revocation"
	"github.com/cartogra/cartogra/pkg/jwtx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

var (
	// ErrTokenRevoked reports a structurally valid token that has been
	// blacklisted or caught by a revoke-all marker. HTTP handlers collapse
	// this and jwtx.ErrInvalidToken into the same 401 so callers cannot
	// probe which check failed.
	ErrTokenRevoked = errors.New("token_revoked")
)

// TokenService owns the token lifecycle: issuing pairs, rotating refresh
// tokens, revocation and validation. Tokens are stateless JWTs; revocation
// state lives in the revocation.Store.
type TokenService struct {
	Codec       *jwtx.Codec
	Revocations *revocation.Store
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// CreatePair issues a fresh access/refresh pair for the given identity.
func (s *TokenService) CreatePair(ctx context.Context, id jwtx.Identity) (*domain.TokenPair, error) {
	access, err := s.Codec.Issue(id, jwtx.KindAccess, s.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Codec.Issue(id, jwtx.KindRefresh, s.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the presented
// token. The presented token is blacklisted for its remaining lifetime
// BEFORE the new pair is issued, so a crash between the two steps costs the
// caller a re-login rather than leaving a live token behind.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.Codec.Verify(refreshToken, jwtx.KindRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.checkRevoked(ctx, refreshToken, claims); err != nil {
		return nil, err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := s.Revocations.Blacklist(ctx, refreshToken, remaining); err != nil {
		if !errors.Is(err, revocation.ErrDisabled) {
			return nil, err
		}
		// No revocation store attached; rotation cannot be enforced but the
		// exchange itself still works.
		slogx.FromContext(ctx).Debug("refresh rotation skipped, revocation store disabled")
	}

	return s.CreatePair(ctx, claims.Identity())
}

// Revoke blacklists the presented token for its remaining lifetime. Unlike
// validation reads, this is a write and always fails closed: a disabled or
// unreachable revocation store surfaces as an error so the caller knows the
// logout did not take effect.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.Codec.Verify(token, jwtx.KindRefresh)
	if errors.Is(err, jwtx.ErrWrongKind) {
		claims, err = s.Codec.Verify(token, jwtx.KindAccess)
	}
	if err != nil {
		return err
	}

	return s.Revocations.Blacklist(ctx, token, time.Until(claims.ExpiresAt.Time))
}

// RevokeAll invalidates every token issued to the user before now by writing
// a revoke-all marker. The marker lives as long as the longest-lived token
// could, after which it has nothing left to catch.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.Revocations.RevokeAll(ctx, userID, s.RefreshTTL); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("revoked all tokens", slog.String("user_id", userID))
	return nil
}

// Validate checks a token end to end: signature, expiry and kind first (the
// cheap local checks), then the blacklist, then the user's revoke-all marker.
// It short-circuits on the first failure so a garbage token never touches
// redis.
func (s *TokenService) Validate(ctx context.Context, token string, kind jwtx.Kind) (jwtx.Identity, error) {
	claims, err := s.Codec.Verify(token, kind)
	if err != nil {
		return jwtx.Identity{}, err
	}

	if err := s.checkRevoked(ctx, token, claims); err != nil {
		return jwtx.Identity{}, err
	}

	return claims.Identity(), nil
}

func (s *TokenService) checkRevoked(ctx context.Context, token string, claims jwtx.Claims) error {
	blacklisted, err := s.Revocations.IsBlacklisted(ctx, token)
	if err != nil {
		return err
	}
	if blacklisted {
		return ErrTokenRevoked
	}

	since, err := s.Revocations.RevokedSince(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if !since.IsZero() && claims.IssuedAt.Time.Before(since) {
		return ErrTokenRevoked
	}

	return nil
}
