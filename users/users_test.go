package users_test

import (
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/users"
	fakeuserrepo "github.com/jrsteele09/go-wallet-web/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	require.Error(t, users.ValidatePasswordStrength("Ab1"))
	require.Error(t, users.ValidatePasswordStrength("alllower123"))
	require.Error(t, users.ValidatePasswordStrength("ALLUPPER123"))
	require.Error(t, users.ValidatePasswordStrength("NoNumbersHere"))
	require.NoError(t, users.ValidatePasswordStrength("Wallet2025"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := users.HashPassword("Wallet2025")
	require.NoError(t, err)
	u := &users.User{PasswordHash: hash}
	require.True(t, u.CheckPassword("Wallet2025"))
	require.False(t, u.CheckPassword("wallet2025"))
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", (&users.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}).DisplayName())
	require.Equal(t, "ada", (&users.User{Username: "ada", Email: "ada@example.com"}).DisplayName())
	require.Equal(t, "ada@example.com", (&users.User{Email: "ada@example.com"}).DisplayName())
}

func TestFakeUserRepo(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := &users.User{Email: " Ada@Example.com", Username: "Ada", Verified: true}
	require.NoError(t, repo.Upsert(u))
	require.NotEmpty(t, u.ID)

	byEmail, err := repo.GetByEmail("ada@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	byName, err := repo.GetByUsername("ADA")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)

	// returned users are copies
	byName.Blocked = true
	fresh, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	require.False(t, fresh.Blocked)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetLastLogin("ADA@example.com", at))
	require.NoError(t, repo.SetBlocked("ada@example.com", true))
	fresh, err = repo.GetByID(u.ID)
	require.NoError(t, err)
	require.Equal(t, at, fresh.LastLogin)
	require.False(t, fresh.CanLogin())

	require.NoError(t, repo.Delete("ada@example.com"))
	_, err = repo.GetByUsername("ada")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	require.ErrorIs(t, repo.Delete("ada@example.com"), apperrors.ErrUserNotFound)
}
