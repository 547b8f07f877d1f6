package cart

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// Cart is held by value on the session. Total always equals
// max(0, Subtotal - DiscountTotal) after Recalculate.
type Cart struct {
	SessionID     uuid.UUID         `json:"sessionId"`
	UserID        string            `json:"userId,omitempty"`
	Items         []Item            `json:"items"`
	Discounts     []AppliedDiscount `json:"discounts"`
	Subtotal      int64             `json:"subtotal"`
	DiscountTotal int64             `json:"discountTotal"`
	Total         int64             `json:"total"`
	Currency      enums.Currency    `json:"currency"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type Item struct {
	LineID         string            `json:"lineId"`
	ProductID      string            `json:"productId"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	Quantity       int               `json:"quantity"`
	Options        map[string]string `json:"options,omitempty"`
	UnitPrice      int64             `json:"unitPrice"`
	OptionModifier int64             `json:"optionModifier"`
	LineTotal      int64             `json:"lineTotal"`
}

// AppliedDiscount keeps enough of the coupon to re-evaluate its amount when
// the cart changes.
type AppliedDiscount struct {
	CouponID    uuid.UUID          `json:"couponId"`
	Code        string             `json:"code"`
	Type        enums.DiscountType `json:"type"`
	Value       int64              `json:"value"`
	MaxDiscount *int64             `json:"maxDiscount,omitempty"`
	Amount      int64              `json:"amount"`
}

func New(sessionID uuid.UUID, userID string, currency enums.Currency) Cart {
	return Cart{
		SessionID: sessionID,
		UserID:    userID,
		Items:     []Item{},
		Discounts: []AppliedDiscount{},
		Currency:  currency,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums quantities across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) HasCoupon(id uuid.UUID) bool {
	for _, d := range c.Discounts {
		if d.CouponID == id {
			return true
		}
	}
	return false
}

// HasFreeShipping reports whether a free-shipping coupon is applied.
func (c *Cart) HasFreeShipping() bool {
	for _, d := range c.Discounts {
		if d.Type == enums.DiscountTypeFreeShipping {
			return true
		}
	}
	return false
}

func (c *Cart) Categories() map[string]bool {
	out := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		out[it.Category] = true
	}
	return out
}

func (c *Cart) ProductIDs() map[string]bool {
	out := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		out[it.ProductID] = true
	}
	return out
}

// Clone returns a deep copy so callers can mutate without aliasing the session.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		cp := it
		if it.Options != nil {
			cp.Options = make(map[string]string, len(it.Options))
			for k, v := range it.Options {
				cp.Options[k] = v
			}
		}
		out.Items[i] = cp
	}
	out.Discounts = append([]AppliedDiscount{}, c.Discounts...)
	return out
}

// lineID identifies a (product, options) pair independent of map order.
func lineID(productID string, options map[string]string) string {
	if len(options) == 0 {
		return productID
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(productID)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(options[k])
	}
	return b.String()
}
