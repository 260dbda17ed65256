package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/cartogra/cartogra/internal/api/domain"
	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/pkg/cryptox"
	"github.com/cartogra/cartogra/pkg/idx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

// MinPasswordLen is the minimum accepted password length for registration.
const MinPasswordLen = 8

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInactiveUser       = errors.New("inactive_user")
	ErrEmailTaken         = errors.New("email_taken")
	ErrWeakPassword       = errors.New("weak_password")
)

type UserService struct {
	Store store.Store
}

// RegisterInput is everything needed to open a new organization with its
// first user.
type RegisterInput struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	OrganizationName string
}

// Register creates an organization and its first user atomically. The first
// user of an organization is just a regular member; superuser is a platform
// level flag and is never self-assigned.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	l := slogx.FromContext(ctx)

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return domain.User{}, ErrInvalidCredentials
	}
	if len(in.Password) < MinPasswordLen {
		return domain.User{}, ErrWeakPassword
	}

	orgName := strings.TrimSpace(in.OrganizationName)
	if orgName == "" {
		orgName = in.Email[strings.Index(in.Email, "@")+1:]
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		OrgID:        idx.New().String(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Active:       true,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		org := domain.Organization{
			ID:     user.OrgID,
			Name:   orgName,
			Slug:   uniqueSlug(orgName, user.OrgID),
			Active: true,
		}
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}
		return tx.Users().CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	l.Info("registered user",
		slog.String("user_id", user.ID),
		slog.String("org_id", user.OrgID),
	)
	return user, nil
}

// Login verifies credentials and stamps last_login. Unknown emails and bad
// passwords return the same error so the endpoint cannot be used to probe
// which addresses exist.
func (s *UserService) Login(ctx context.Context, email, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("password verification failed", slog.String("user_id", u.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	if !u.Active {
		return domain.User{}, ErrInactiveUser
	}

	now := time.Now().UTC()
	if err := s.Store.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		// Login still succeeds; the stamp is informational.
		l.Warn("failed to stamp last_login", slog.String("user_id", u.ID), slog.Any("error", err))
	} else {
		u.LastLogin = &now
	}

	return u, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// GetOrganizationByID fetches an organization by id.
func (s *UserService) GetOrganizationByID(ctx context.Context, orgID string) (domain.Organization, error) {
	return s.Store.Organizations().GetOrganizationByID(ctx, orgID)
}

// uniqueSlug derives a URL slug from the organization name, suffixed with the
// tail of the org ULID so two organizations with the same name never collide.
func uniqueSlug(name, orgID string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	suffix := strings.ToLower(orgID[len(orgID)-6:])
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}
