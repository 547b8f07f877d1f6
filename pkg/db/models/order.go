package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	"github.com/angelmondragon/voicecommerce-backend/pkg/types"
)

// Order is created atomically from a session cart and then driven through
// the status graph and the payment lifecycle.
type Order struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SessionID        uuid.UUID                `gorm:"column:session_id;type:uuid;not null;index"`
	Type             enums.OrderType          `gorm:"column:order_type;type:text;not null"`
	Status           enums.OrderStatus        `gorm:"column:status;type:text;not null"`
	StatusHistory    []StatusChange           `gorm:"column:status_history;type:jsonb;serializer:json"`
	PaymentStatus    enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaymentHistory   []PaymentChange          `gorm:"column:payment_history;type:jsonb;serializer:json"`
	PaymentSessionID *uuid.UUID               `gorm:"column:payment_session_id;type:uuid;index"`
	PaymentRetryable bool                     `gorm:"column:payment_retryable;not null;default:false"`
	Items            []OrderItem              `gorm:"column:items;type:jsonb;serializer:json"`
	Discounts        []OrderDiscount          `gorm:"column:discounts;type:jsonb;serializer:json"`
	Customer         CustomerInfo             `gorm:"column:customer;type:jsonb;serializer:json"`
	Fulfillment      Fulfillment              `gorm:"column:fulfillment;type:jsonb;serializer:json"`
	Subtotal         int64                    `gorm:"column:subtotal;not null"`
	DiscountTotal    int64                    `gorm:"column:discount_total;not null;default:0"`
	Tax              int64                    `gorm:"column:tax;not null;default:0"`
	DeliveryFee      int64                    `gorm:"column:delivery_fee;not null;default:0"`
	Total            int64                    `gorm:"column:total;not null"`
	Currency         enums.Currency           `gorm:"column:currency;type:text;not null"`
	ReceiptToken     *string                  `gorm:"column:receipt_token"`
	Notes            *string                  `gorm:"column:notes"`
	ConfirmedAt      *time.Time               `gorm:"column:confirmed_at"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	Quantity       int               `json:"quantity"`
	Options        map[string]string `json:"options,omitempty"`
	UnitPrice      int64             `json:"unit_price"`
	OptionModifier int64             `json:"option_modifier"`
	LineTotal      int64             `json:"line_total"`
}

type OrderDiscount struct {
	CouponID uuid.UUID          `json:"coupon_id"`
	Code     string             `json:"code"`
	Type     enums.DiscountType `json:"type"`
	Value    int64              `json:"value"`
	Amount   int64              `json:"amount"`
}

type StatusChange struct {
	From     enums.OrderStatus `json:"from,omitempty"`
	To       enums.OrderStatus `json:"to"`
	At       time.Time         `json:"at"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

type PaymentChange struct {
	Status           enums.OrderPaymentStatus `json:"status"`
	At               time.Time                `json:"at"`
	PaymentSessionID *uuid.UUID               `json:"payment_session_id,omitempty"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Fulfillment carries exactly one of Delivery or Pickup, matching the order type.
type Fulfillment struct {
	Delivery *DeliveryInfo `json:"delivery,omitempty"`
	Pickup   *PickupInfo   `json:"pickup,omitempty"`
}

type DeliveryInfo struct {
	Address          types.Address `json:"address"`
	DistanceKM       float64       `json:"distance_km"`
	Fee              int64         `json:"fee"`
	EstimatedMinutes int           `json:"estimated_minutes"`
	Instructions     string        `json:"instructions,omitempty"`
}

type PickupInfo struct {
	LocationID   string     `json:"location_id"`
	LocationName string     `json:"location_name"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// ItemCount sums quantities across lines.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
