package moderation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/internal/testutil"
	"marketplace/pkg/utils"
)

var admin = &session.Identity{UserID: 1, Username: "root", Capability: session.CapabilityAdmin}

type fixture struct {
	svc    ModerationService
	db     *gorm.DB
	flash  *session.RedisFlashStore
	trader *model.User
	shop   *model.Shop
	items  []*model.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewDB(t))
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	_, client := testutil.NewRedis(t)
	flash := session.NewRedisFlashStore(client, 0)

	f := &fixture{
		svc:   NewModerationService(repository.NewRepositories(db), flash, monitor.NewMetricsCollector("test"), 2),
		db:    db,
		flash: flash,
	}
	f.trader, f.shop = testutil.CreateTrader(t, db, "tom")
	for _, name := range []string{"Pen", "Ink", "Paper"} {
		f.items = append(f.items, testutil.CreateProduct(t, db, f.shop.ID, name, "1.00", 5))
	}
	return f
}

func (f *fixture) user(t *testing.T) *model.User {
	return testutil.Reload[model.User](t, f.db, f.trader.ID)
}

func (f *fixture) product(t *testing.T, i int) *model.Product {
	return testutil.Reload[model.Product](t, f.db, f.items[i].ID)
}

func TestDisableProductForViolation_Escalation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[0].ID, Reason: "counterfeit"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ViolationCount)
	assert.False(t, res.Escalated)

	assert.Equal(t, model.UserStatusActive, f.user(t).Status)
	assert.Equal(t, model.ProductStatusInactive, f.product(t, 0).Status)
	assert.True(t, f.product(t, 0).ModerationLocked)
	assert.Equal(t, model.ProductStatusActive, f.product(t, 1).Status)

	violation, err := f.svc.GetViolation(ctx, res.ViolationID)
	require.NoError(t, err)
	assert.Equal(t, model.ViolationTypeProduct, violation.ViolationType)
	assert.Equal(t, model.ViolationStatusPending, violation.Status)
	assert.Equal(t, model.SeverityMedium, violation.Severity)
	require.NotNil(t, violation.ProductID)
	assert.Equal(t, f.items[0].ID, *violation.ProductID)

	res, err = f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[1].ID, Reason: "misleading", Severity: "high"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ViolationCount)
	assert.True(t, res.Escalated)

	assert.Equal(t, model.UserStatusDisabled, f.user(t).Status)
	for i := range f.items {
		assert.Equal(t, model.ProductStatusInactive, f.product(t, i).Status)
	}

	msgs, err := f.flash.Drain(ctx, f.trader.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Message, "account has been disabled")

	t.Run("AlreadyDisabledNotEscalatedAgain", func(t *testing.T) {
		res, err := f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[2].ID, Reason: "spam"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.ViolationCount)
		assert.False(t, res.Escalated)
		assert.Equal(t, model.UserStatusDisabled, f.user(t).Status)

		msgs, err := f.flash.Drain(ctx, f.trader.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.NotContains(t, msgs[0].Message, "account has been disabled")
	})
}

func TestDisableProductForViolation_Concurrent(t *testing.T) {
	f := newFixtureOn(t, testutil.NewConcurrentDB(t))

	var wg sync.WaitGroup
	results := make([]*DisableResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.DisableProductForViolation(context.Background(), admin,
				&DisableRequest{ProductID: f.items[i].ID, Reason: "spam"})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	counts := []int{results[0].ViolationCount, results[1].ViolationCount}
	assert.ElementsMatch(t, []int{1, 2}, counts)
	assert.Equal(t, model.UserStatusDisabled, f.user(t).Status)
	assert.Equal(t, model.ProductStatusInactive, f.product(t, 2).Status)
}

func TestDisableProductForViolation_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: 999, Reason: "x"})
	assert.ErrorIs(t, err, utils.ErrProductNotFound)
	_, err = f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[0].ID})
	assert.ErrorIs(t, err, utils.ErrInvalidParam)
	_, err = f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[0].ID, Reason: "x", Severity: "extreme"})
	assert.ErrorIs(t, err, utils.ErrInvalidParam)

	orphan := testutil.CreateProduct(t, f.db, 999, "Orphan", "1.00", 1)
	_, err = f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: orphan.ID, Reason: "x"})
	assert.ErrorIs(t, err, utils.ErrShopNotFound)
	assert.Equal(t, model.ProductStatusActive, testutil.Reload[model.Product](t, f.db, orphan.ID).Status)
	assert.Zero(t, f.user(t).ViolationCount)
}

func TestRecordAndResolveViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	violation, err := f.svc.RecordViolation(ctx, admin, &RecordRequest{
		TraderID:      f.trader.ID,
		ViolationType: "late_shipping",
		Description:   "orders shipped after 10 days",
		Severity:      "Low",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ViolationStatusPending, violation.Status)
	assert.Equal(t, admin.UserID, violation.ReporterID)
	assert.Zero(t, f.user(t).ViolationCount)

	resolved, err := f.svc.ResolveViolation(ctx, admin, violation.ID, model.ActionWarning, "first notice")
	require.NoError(t, err)
	assert.Equal(t, model.ViolationStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ActionTaken)
	assert.Equal(t, model.ActionWarning, *resolved.ActionTaken)
	assert.Equal(t, "first notice", resolved.Notes)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, model.UserStatusActive, f.user(t).Status)

	_, err = f.svc.ResolveViolation(ctx, admin, violation.ID, model.ActionAccountDisabled, "")
	assert.ErrorIs(t, err, utils.ErrInvalidState)
	assert.Equal(t, model.UserStatusActive, f.user(t).Status)

	t.Run("AccountDisabledAction", func(t *testing.T) {
		v, err := f.svc.RecordViolation(ctx, admin, &RecordRequest{
			TraderID: f.trader.ID, ViolationType: "fraud", Description: "fake reviews", Severity: "high",
		})
		require.NoError(t, err)

		_, err = f.svc.ResolveViolation(ctx, admin, v.ID, model.ActionAccountDisabled, "")
		require.NoError(t, err)
		assert.Equal(t, model.UserStatusDisabled, f.user(t).Status)
		assert.Equal(t, model.ProductStatusActive, f.product(t, 0).Status)
	})

	t.Run("Dismiss", func(t *testing.T) {
		v, err := f.svc.RecordViolation(ctx, admin, &RecordRequest{
			TraderID: f.trader.ID, ViolationType: "spam", Description: "duplicate listings", Severity: "low",
		})
		require.NoError(t, err)

		dismissed, err := f.svc.DismissViolation(ctx, admin, v.ID, "not a violation")
		require.NoError(t, err)
		assert.Equal(t, model.ActionDismissed, *dismissed.ActionTaken)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := f.svc.ResolveViolation(ctx, admin, 999, model.ActionWarning, "")
		assert.ErrorIs(t, err, utils.ErrViolationNotFound)
		_, err = f.svc.ResolveViolation(ctx, admin, violation.ID, "ban", "")
		assert.ErrorIs(t, err, utils.ErrInvalidParam)

		customer := testutil.CreateUser(t, f.db, "cathy", model.RoleCustomer, model.UserStatusActive, 0)
		_, err = f.svc.RecordViolation(ctx, admin, &RecordRequest{
			TraderID: customer.ID, ViolationType: "spam", Description: "x", Severity: "low",
		})
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
		_, err = f.svc.RecordViolation(ctx, admin, &RecordRequest{
			TraderID: 999, ViolationType: "spam", Description: "x", Severity: "low",
		})
		assert.ErrorIs(t, err, utils.ErrUserNotFound)
	})

	violations, total, err := f.svc.ListViolations(ctx, repository.ViolationFilter{
		ReportedUserID: f.trader.ID,
		Status:         model.ViolationStatusResolved,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, violations, 3)
}

func TestResetAndEnable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[i].ID, Reason: "spam"})
		require.NoError(t, err)
	}
	require.Equal(t, model.UserStatusDisabled, f.user(t).Status)

	require.NoError(t, f.svc.ResetViolations(ctx, admin, f.trader.ID))
	user := f.user(t)
	assert.Zero(t, user.ViolationCount)
	assert.Equal(t, model.UserStatusDisabled, user.Status)

	require.NoError(t, f.svc.EnableAccount(ctx, admin, f.trader.ID))
	assert.Equal(t, model.UserStatusActive, f.user(t).Status)
	assert.Equal(t, model.ProductStatusInactive, f.product(t, 2).Status)

	// a fresh count after reset needs two more disables to escalate
	res, err := f.svc.DisableProductForViolation(ctx, admin, &DisableRequest{ProductID: f.items[2].ID, Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ViolationCount)
	assert.False(t, res.Escalated)
	assert.Equal(t, model.UserStatusActive, f.user(t).Status)

	assert.ErrorIs(t, f.svc.EnableAccount(ctx, admin, 999), utils.ErrUserNotFound)
}

func TestTraderApplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Approve", func(t *testing.T) {
		applicant := testutil.CreateUser(t, f.db, "amy", model.RoleTrader, model.UserStatusPending, 0)

		assert.ErrorIs(t, f.svc.EnableAccount(ctx, admin, applicant.ID), utils.ErrInvalidState)

		shop, err := f.svc.ApproveTrader(ctx, admin, applicant.ID)
		require.NoError(t, err)
		assert.Equal(t, applicant.ID, shop.TraderID)
		assert.Equal(t, model.UserStatusActive, testutil.Reload[model.User](t, f.db, applicant.ID).Status)

		_, err = f.svc.ApproveTrader(ctx, admin, applicant.ID)
		assert.ErrorIs(t, err, utils.ErrInvalidState)
	})

	t.Run("ApproveKeepsExistingShop", func(t *testing.T) {
		applicant := testutil.CreateUser(t, f.db, "bob", model.RoleTrader, model.UserStatusPending, 0)
		existing := &model.Shop{TraderID: applicant.ID, Name: "Bob's Books"}
		require.NoError(t, f.db.Create(existing).Error)

		shop, err := f.svc.ApproveTrader(ctx, admin, applicant.ID)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, shop.ID)
		assert.Equal(t, "Bob's Books", shop.Name)
	})

	t.Run("Reject", func(t *testing.T) {
		applicant := testutil.CreateUser(t, f.db, "eve", model.RoleTrader, model.UserStatusPending, 0)
		require.NoError(t, f.db.Create(&model.Shop{TraderID: applicant.ID, Name: "Eve's"}).Error)

		require.NoError(t, f.svc.RejectTrader(ctx, admin, applicant.ID))
		assert.Equal(t, model.UserStatusDisabled, testutil.Reload[model.User](t, f.db, applicant.ID).Status)

		var shops int64
		require.NoError(t, f.db.Model(&model.Shop{}).Where("trader_id = ?", applicant.ID).Count(&shops).Error)
		assert.Zero(t, shops)
	})

	t.Run("NotATrader", func(t *testing.T) {
		customer := testutil.CreateUser(t, f.db, "carl", model.RoleCustomer, model.UserStatusPending, 0)
		_, err := f.svc.ApproveTrader(ctx, admin, customer.ID)
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
	})

	users, total, err := f.svc.ListUsers(ctx, repository.UserFilter{Role: model.RoleTrader, Status: model.UserStatusActive})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, users, 3)
}
