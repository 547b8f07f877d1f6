package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

func TestFindByCodeIsCaseInsensitive(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	seeded := dbtest.SeedCoupon(t, conn, "welcome10", enums.DiscountTypePercentage, 10, now,
		dbtest.WithCategories("coffee"))
	repo := NewRepository(conn)

	got, err := repo.FindByCode(context.Background(), " Welcome10 ")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, "WELCOME10", got.Code)
	assert.Equal(t, []string{"coffee"}, []string(got.ApplicableCategories))

	_, err = repo.FindByCode(context.Background(), "DOESNOTEXIST")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	coupon := &models.Coupon{Code: "save3000", Name: "save", Type: enums.DiscountTypeFixedAmount, Value: 3000,
		ValidFrom: now, ValidUntil: now.Add(time.Hour), IsActive: true}
	require.NoError(t, repo.Create(context.Background(), coupon))
	assert.Equal(t, "SAVE3000", coupon.Code)

	dup := &models.Coupon{Code: "SAVE3000", Name: "dup", Type: enums.DiscountTypeFixedAmount, Value: 1000,
		ValidFrom: now, ValidUntil: now.Add(time.Hour), IsActive: true}
	err := repo.Create(context.Background(), dup)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestListActiveSkipsInactive(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	dbtest.SeedCoupon(t, conn, "ACTIVE1", enums.DiscountTypeFixedAmount, 1000, now)
	dbtest.SeedCoupon(t, conn, "OFF1", enums.DiscountTypeFixedAmount, 1000, now, dbtest.Inactive())

	list, err := NewRepository(conn).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ACTIVE1", list[0].Code)
}

func TestIncrementUsageHonoursLimit(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	coupon := dbtest.SeedCoupon(t, conn, "ONCE1", enums.DiscountTypeFixedAmount, 1000, now, dbtest.WithUsageLimit(1, 0))
	repo := NewRepository(conn)

	require.NoError(t, repo.IncrementUsage(context.Background(), coupon.ID))
	err := repo.IncrementUsage(context.Background(), coupon.ID)
	assert.Equal(t, pkgerrors.CodeInvalidCoupon, pkgerrors.CodeOf(err))

	got, err := repo.FindByID(context.Background(), coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.True(t, got.UsageExhausted())
}
