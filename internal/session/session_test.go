package session

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/model"
	"marketplace/pkg/utils"
)

func TestCapabilityFromRole(t *testing.T) {
	c, ok := CapabilityFromRole(model.RoleTrader)
	require.True(t, ok)
	assert.Equal(t, CapabilityTrader, c)
	assert.Equal(t, "trader", c.String())

	_, ok = CapabilityFromRole("superuser")
	assert.False(t, ok)
	assert.Equal(t, "none", CapabilityNone.String())

	var nobody *Identity
	assert.False(t, nobody.Is(CapabilityAdmin))
	assert.True(t, (&Identity{Capability: CapabilityAdmin}).Is(CapabilityAdmin))
}

func TestRedisFlashStore(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	store := NewRedisFlashStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, 9,
		utils.FlashMessage{Category: FlashError, Message: "product 4 was disabled"},
		utils.FlashMessage{Category: FlashError, Message: "account disabled"},
	))
	assert.True(t, s.Exists("flash:9"))
	assert.Equal(t, time.Hour, s.TTL("flash:9"))

	msgs, err := store.Drain(ctx, 9)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "product 4 was disabled", msgs[0].Message)

	// one-shot
	msgs, err = store.Drain(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, s.Exists("flash:9"))

	assert.NoError(t, store.Push(ctx, 9))
	assert.False(t, s.Exists("flash:9"))
}

func TestRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	anon := From(c)
	assert.False(t, anon.Authenticated())
	assert.Zero(t, anon.UserID())
	assert.Same(t, anon, From(c))

	rc := NewRequestContext("req-1", &Identity{UserID: 7, Capability: CapabilityCustomer},
		[]utils.FlashMessage{{Category: FlashSuccess, Message: "left over"}})
	Attach(c, rc)
	got := From(c)
	require.Same(t, rc, got)
	assert.Equal(t, uint64(7), got.UserID())

	got.Success("order placed")
	got.Error("promo code expired")
	msgs := got.Flash()
	require.Len(t, msgs, 3)
	assert.Equal(t, "left over", msgs[0].Message)
	assert.Equal(t, FlashError, msgs[2].Category)
	assert.Empty(t, got.Flash())
}
