package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending/internal/identity"
	"lending/internal/models"
)

func TestBootstrapAndAuthenticateLibrarian(t *testing.T) {
	f := newFixture(t)

	lib, account, err := f.svc.BootstrapLibrarian(f.ctx, CreateLibrarianRequest{Name: "Mira", Email: "mira@example.org"}, "mira", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleLibrarian, account.Role)
	assert.NotEqual(t, "s3cret-pass", account.PasswordHash)

	caller, err := f.svc.Authenticate(f.ctx, "mira", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, identity.Librarian(lib.ID), caller)

	_, err = f.svc.Authenticate(f.ctx, "mira", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(f.ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.svc.BootstrapLibrarian(f.ctx, CreateLibrarianRequest{Name: "Mira 2", Email: "mira2@example.org"}, "mira", "s3cret-pass")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateMemberAccount(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")

	account, err := f.svc.CreateAccount(f.ctx, f.librarian, CreateAccountRequest{
		Username: "ada",
		Password: "analytical",
		Role:     models.UserRoleMember,
		MemberID: &member.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", account.Username)

	caller, err := f.svc.Authenticate(f.ctx, "ada", "analytical")
	require.NoError(t, err)
	id, ok := caller.MemberID()
	assert.True(t, ok)
	assert.Equal(t, member.ID, id)
}

func TestCreateAccountValidation(t *testing.T) {
	f := newFixture(t)
	member := f.member("Ada")
	lid, _ := f.librarian.LibrarianID()
	missing := int64(999)

	tests := []struct {
		name string
		req  CreateAccountRequest
		want error
	}{
		{"short password", CreateAccountRequest{Username: "a", Password: "short", Role: models.UserRoleMember, MemberID: &member.ID}, ErrInvalidInput},
		{"no username", CreateAccountRequest{Password: "long-enough", Role: models.UserRoleMember, MemberID: &member.ID}, ErrInvalidInput},
		{"unknown role", CreateAccountRequest{Username: "a", Password: "long-enough", Role: "ADMIN", MemberID: &member.ID}, ErrInvalidInput},
		{"member role without member", CreateAccountRequest{Username: "a", Password: "long-enough", Role: models.UserRoleMember, LibrarianID: &lid}, ErrInvalidInput},
		{"both ids", CreateAccountRequest{Username: "a", Password: "long-enough", Role: models.UserRoleLibrarian, LibrarianID: &lid, MemberID: &member.ID}, ErrInvalidInput},
		{"missing member", CreateAccountRequest{Username: "a", Password: "long-enough", Role: models.UserRoleMember, MemberID: &missing}, ErrMemberNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAccount(f.ctx, f.librarian, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.CreateAccount(f.ctx, identity.Member(member.ID), CreateAccountRequest{
		Username: "ada", Password: "long-enough", Role: models.UserRoleMember, MemberID: &member.ID,
	})
	assert.ErrorIs(t, err, ErrPermission)
}
