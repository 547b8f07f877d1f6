package coupons

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Repository persists coupon definitions and redemption counts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByCode looks up a coupon case-insensitively.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).First(&coupon, "code = ?", models.NormalizeCouponCode(code)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "coupon %s not found", models.NormalizeCouponCode(code))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return &coupon, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "coupon %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return &coupon, nil
}

// ListActive returns coupons flagged active; validity windows are checked by
// the caller against its own clock.
func (r *Repository) ListActive(ctx context.Context) ([]models.Coupon, error) {
	var out []models.Coupon
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("code ASC").Find(&out).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "coupon code %s already exists", coupon.Code)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return nil
}

// IncrementUsage redeems one use, refusing once the usage limit is reached.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", id).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment coupon usage")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon usage limit reached")
	}
	return nil
}

// Redeem increments usage inside the caller's transaction.
func (r *Repository) Redeem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.WithTx(tx).IncrementUsage(ctx, id)
}

// Unredeem gives back one use. Used when an order is rolled back after commit.
func (r *Repository) Unredeem(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	res := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND usage_count > 0", id).
		Update("usage_count", gorm.Expr("usage_count - 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release coupon usage")
	}
	return nil
}
