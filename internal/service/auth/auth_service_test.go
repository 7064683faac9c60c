package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/internal/testutil"
	"marketplace/internal/utils"
	apperr "marketplace/pkg/utils"
)

type fixture struct {
	svc   AuthService
	db    *gorm.DB
	redis *miniredis.Miniredis
	flash session.FlashStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	mr, client := testutil.NewRedis(t)
	jwt := utils.NewJWTManager("test-secret", "marketplace-test", time.Hour, 24*time.Hour)

	flash := session.NewRedisFlashStore(client, time.Hour)

	return &fixture{
		svc:   NewAuthService(repository.NewRepositories(db), jwt, client, flash, nil),
		db:    db,
		redis: mr,
		flash: flash,
	}
}

func (f *fixture) register(t *testing.T, username, role string) *model.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), &RegisterRequest{
		Username: username,
		Email:    username + "@Example.com",
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Customer", func(t *testing.T) {
		user := f.register(t, "cathy", "")
		assert.Equal(t, model.RoleCustomer, user.Role)
		assert.Equal(t, model.UserStatusActive, user.Status)
		assert.Equal(t, "cathy@example.com", user.Email)
		assert.Len(t, user.Salt, 32)
		assert.NotContains(t, user.PasswordHash, "password123")
	})

	t.Run("TraderApplication", func(t *testing.T) {
		user, err := f.svc.Register(ctx, &RegisterRequest{
			Username: "tom",
			Email:    "tom@example.com",
			Password: "password123",
			Role:     model.RoleTrader,
			ShopName: "Tom's Tools",
		})
		require.NoError(t, err)
		assert.Equal(t, model.UserStatusPending, user.Status)

		var shop model.Shop
		require.NoError(t, f.db.Where("trader_id = ?", user.ID).First(&shop).Error)
		assert.Equal(t, "Tom's Tools", shop.Name)
	})

	t.Run("Rejections", func(t *testing.T) {
		_, err := f.svc.Register(ctx, &RegisterRequest{Username: "cathy", Email: "other@example.com", Password: "password123"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = f.svc.Register(ctx, &RegisterRequest{Username: "other", Email: "CATHY@example.com", Password: "password123"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = f.svc.Register(ctx, &RegisterRequest{Username: "root", Email: "root@example.com", Password: "password123", Role: model.RoleAdmin})
		assert.ErrorIs(t, err, apperr.ErrInvalidParam)
		_, err = f.svc.Register(ctx, &RegisterRequest{Username: "long", Email: "long@example.com", Password: strings.Repeat("x", 41)})
		assert.ErrorIs(t, err, apperr.ErrInvalidParam)
	})
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "cathy", "")

	resp, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, model.RoleCustomer, resp.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	identity, err := f.svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.True(t, identity.Is(session.CapabilityCustomer))
	assert.NotEmpty(t, identity.TokenID)

	reloaded := testutil.Reload[model.User](t, f.db, user.ID)
	require.NotNil(t, reloaded.LastLoginIP)
	assert.Equal(t, "10.0.0.1", *reloaded.LastLoginIP)

	t.Run("ByEmail", func(t *testing.T) {
		_, err := f.svc.Login(ctx, &LoginRequest{Account: "Cathy@Example.com", Password: "password123"}, "")
		assert.NoError(t, err)
	})

	t.Run("RefreshTokenRejectedAsAccess", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, resp.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("SecondLoginReplacesSession", func(t *testing.T) {
		first, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		require.NoError(t, err)
		second, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, first.AccessToken)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		_, err = f.svc.Authenticate(ctx, second.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("DisabledAccountLosesAccess", func(t *testing.T) {
		current, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		require.NoError(t, err)
		require.NoError(t, f.db.Model(user).Update("status", model.UserStatusDisabled).Error)
		defer f.db.Model(user).Update("status", model.UserStatusActive)

		_, err = f.svc.Authenticate(ctx, current.AccessToken)
		assert.ErrorIs(t, err, apperr.ErrAccountDisabled)
		_, err = f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		assert.ErrorIs(t, err, apperr.ErrAccountDisabled)
	})

	t.Run("DisabledLoginReceivesNotices", func(t *testing.T) {
		require.NoError(t, f.db.Model(user).Update("status", model.UserStatusDisabled).Error)
		defer f.db.Model(user).Update("status", model.UserStatusActive)
		require.NoError(t, f.flash.Push(ctx, user.ID, apperr.FlashMessage{
			Category: session.FlashError,
			Message:  "Your account has been disabled after 2 violations.",
		}))

		_, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "wrong-password"}, "")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)

		_, err = f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		require.ErrorIs(t, err, apperr.ErrAccountDisabled)
		var inactive *InactiveAccountError
		require.True(t, errors.As(err, &inactive))
		require.Len(t, inactive.Notices, 1)
		assert.Contains(t, inactive.Notices[0].Message, "disabled after 2 violations")

		pending, err := f.flash.Drain(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestLogin_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "cathy", "")
	f.register(t, "tom", model.RoleTrader)

	_, err := f.svc.Login(ctx, &LoginRequest{Account: "nobody", Password: "password123"}, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	t.Run("PendingTrader", func(t *testing.T) {
		_, err := f.svc.Login(ctx, &LoginRequest{Account: "tom", Password: "password123"}, "")
		assert.ErrorIs(t, err, apperr.ErrAccountDisabled)
		assert.Contains(t, err.Error(), "awaiting approval")
	})

	t.Run("LockoutAfterFiveFailures", func(t *testing.T) {
		for i := 0; i < maxLoginAttempts; i++ {
			_, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "wrong-password"}, "")
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		}

		_, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		assert.ErrorIs(t, err, apperr.ErrRateLimit)

		f.redis.FastForward(loginLockout + time.Second)
		_, err = f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
		assert.NoError(t, err)
	})
}

func TestLogoutAndRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "cathy", "")

	resp, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
	require.NoError(t, err)

	refreshed, err := f.svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, resp.RefreshToken, refreshed.RefreshToken)

	identity, err := f.svc.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, identity))
	_, err = f.svc.Authenticate(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.True(t, f.redis.Exists(blacklistKey(identity.TokenID)))

	_, err = f.svc.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "cathy", "")
	oldSalt := user.Salt

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, user.ID, "wrong-password", "newpass456"), apperr.ErrInvalidParam)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, user.ID, "password123", "short"), apperr.ErrInvalidParam)
	require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "password123", "newpass456"))

	assert.NotEqual(t, oldSalt, testutil.Reload[model.User](t, f.db, user.ID).Salt)

	_, err := f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "password123"}, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Login(ctx, &LoginRequest{Account: "cathy", Password: "newpass456"}, "")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, 999, "password123", "newpass456"), apperr.ErrUserNotFound)
}
