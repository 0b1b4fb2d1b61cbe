package service

import (
	"context"
	"testing"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (*AuthService, *fakeUsers) {
	t.Helper()
	users := newFakeUsers()
	return NewAuthService(testConfig(), users, newTestRedis(t), nopLog), users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, &model.RegisterRequest{Name: " Ada ", Email: "Ada@Example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, model.RoleStudent, res.User.Role)

	_, err = svc.Register(ctx, &model.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, &model.LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, model.RoleStudent, claims.Role)
}

func TestRevokeDenylistsToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, &model.RegisterRequest{Name: "Grace", Email: "grace@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)

	revoked, err := svc.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.Revoke(ctx, claims))
	revoked, err = svc.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, _ := newAuthFixture(t)
	other := NewAuthService(testConfig(), newFakeUsers(), newTestRedis(t), nopLog)
	other.cfg.JWTSecret = "someone-else"

	token, _, err := other.GenerateToken(&model.User{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()

	admin, created, err := svc.EnsureAdmin(ctx, "Root", "root@example.com", "first-pass")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	_, created, err = svc.EnsureAdmin(ctx, "Root", "root@example.com", "second-pass")
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := users.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.NoError(t, svc.CheckPassword(stored.PasswordHash, "second-pass"))

	_, err = svc.Register(ctx, &model.RegisterRequest{Name: "Stu", Email: "stu@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	_, _, err = svc.EnsureAdmin(ctx, "Stu", "stu@example.com", "x-pass-word")
	assert.Error(t, err, "students are not promoted")
}
