package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// Coupon is a redeemable discount definition. Value is a percentage for
// percentage coupons and an amount in minor units otherwise.
type Coupon struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code                 string             `gorm:"column:code;not null;uniqueIndex"`
	Name                 string             `gorm:"column:name;not null"`
	Description          *string            `gorm:"column:description"`
	Type                 enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	Value                int64              `gorm:"column:value;not null"`
	MinOrderAmount       int64              `gorm:"column:min_order_amount;not null;default:0"`
	MaxDiscountAmount    *int64             `gorm:"column:max_discount_amount"`
	ValidFrom            time.Time          `gorm:"column:valid_from;not null"`
	ValidUntil           time.Time          `gorm:"column:valid_until;not null"`
	UsageLimit           *int               `gorm:"column:usage_limit"`
	UsageCount           int                `gorm:"column:usage_count;not null;default:0"`
	ApplicableCategories pq.StringArray     `gorm:"column:applicable_categories;type:text[]"`
	ApplicableProducts   pq.StringArray     `gorm:"column:applicable_products;type:text[]"`
	ApplicableUsers      pq.StringArray     `gorm:"column:applicable_users;type:text[]"`
	ValidWeekdays        pq.Int64Array      `gorm:"column:valid_weekdays;type:integer[]"`
	ValidHourFrom        *int               `gorm:"column:valid_hour_from"`
	ValidHourTo          *int               `gorm:"column:valid_hour_to"`
	IsActive             bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string { return "coupons" }

// NormalizeCouponCode canonicalizes user input for case-insensitive lookups.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsageExhausted reports whether the coupon hit its redemption cap.
func (c Coupon) UsageExhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}
