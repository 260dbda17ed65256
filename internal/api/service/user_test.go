package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/internal/api/store/drivers/sqlite"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	return &UserService{Store: s}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	svc := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{
		Email:            "Ada@Example.com",
		Password:         "correct horse battery",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		OrganizationName: "Analytical Engines Ltd",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", u.Email)
	require.NotEmpty(t, u.ID)
	require.NotEmpty(t, u.OrgID)
	require.False(t, u.Superuser)
	require.NotEqual(t, "correct horse battery", u.PasswordHash)

	org, err := svc.GetOrganizationByID(ctx, u.OrgID)
	require.NoError(t, err)
	require.Equal(t, "Analytical Engines Ltd", org.Name)
	require.Contains(t, org.Slug, "analytical-engines-ltd")
	require.True(t, org.Active)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "long enough pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterDuplicateEmailRollsBack(t *testing.T) {
	t.Parallel()
	svc := newUserService(t)
	ctx := context.Background()

	in := RegisterInput{
		Email:            "dup@example.com",
		Password:         "correct horse battery",
		OrganizationName: "First Org",
	}
	first, err := svc.Register(ctx, in)
	require.NoError(t, err)

	in.OrganizationName = "Second Org"
	_, err = svc.Register(ctx, in)
	require.ErrorIs(t, err, ErrEmailTaken)

	// The second org must not have been left behind by the failed signup.
	st := svc.Store
	n, err := st.Users().CountByOrganization(ctx, first.OrgID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = st.Organizations().GetOrganizationBySlug(ctx, "first-org-"+lowerTail(first.OrgID))
	require.NoError(t, err)
}

func lowerTail(id string) string {
	return uniqueSlug("", id)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	svc := newUserService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{
		Email:    "login@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	u, err := svc.Login(ctx, "login@example.com", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, reg.ID, u.ID)
	require.NotNil(t, u.LastLogin)

	// Email lookup tolerates case differences.
	_, err = svc.Login(ctx, "LOGIN@example.com", "correct horse battery")
	require.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	svc := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{
		Email:    "victim@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "victim@example.com", "wrong password!!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email looks identical", func(t *testing.T) {
		_, err := svc.Login(ctx, "ghost@example.com", "whatever password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("deactivated user", func(t *testing.T) {
		require.NoError(t, svc.Store.Users().SetActive(ctx, u.ID, false))
		_, err := svc.Login(ctx, "victim@example.com", "correct horse battery")
		require.ErrorIs(t, err, ErrInactiveUser)
	})
}

func TestUniqueSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme-data-00abcd", uniqueSlug("Acme  Data!", "01J0XXXXXXXXXXXXXXXX00ABCD"))
	require.Equal(t, "00abcd", uniqueSlug("!!!", "01J0XXXXXXXXXXXXXXXX00ABCD"))
}

var _ store.Store = (*sqlite.Store)(nil)
