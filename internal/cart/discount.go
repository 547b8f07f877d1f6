package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount prices one discount against a subtotal. Percentage values
// round half-up to whole minor units before the cap applies.
func ComputeDiscount(kind enums.DiscountType, value int64, maxDiscount *int64, subtotal int64) (int64, error) {
	var amount int64
	switch kind {
	case enums.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(value)).
			Div(hundred).
			Round(0).
			IntPart()
		if maxDiscount != nil && amount > *maxDiscount {
			amount = *maxDiscount
		}
	case enums.DiscountTypeFixedAmount:
		amount = value
		if amount > subtotal {
			amount = subtotal
		}
	case enums.DiscountTypeFreeShipping:
		return 0, nil
	default:
		return 0, pkgerrors.Newf(pkgerrors.CodeConfiguration, "unsupported discount type %q", kind)
	}
	if amount < 0 {
		amount = 0
	}
	return amount, nil
}

// ComputeCouponDiscount prices a stored coupon against the cart's subtotal.
func ComputeCouponDiscount(coupon *models.Coupon, c *Cart) (int64, error) {
	return ComputeDiscount(coupon.Type, coupon.Value, coupon.MaxDiscountAmount, c.Subtotal)
}

// Recalculate recomputes line totals, the subtotal, every applied discount
// amount and the total.
func Recalculate(c *Cart) error {
	var subtotal int64
	for i := range c.Items {
		it := &c.Items[i]
		it.LineTotal = (it.UnitPrice + it.OptionModifier) * int64(it.Quantity)
		subtotal += it.LineTotal
	}
	c.Subtotal = subtotal

	var discountTotal int64
	for i := range c.Discounts {
		d := &c.Discounts[i]
		amount, err := ComputeDiscount(d.Type, d.Value, d.MaxDiscount, subtotal)
		if err != nil {
			return err
		}
		d.Amount = amount
		discountTotal += amount
	}
	c.DiscountTotal = discountTotal

	total := subtotal - discountTotal
	if total < 0 {
		total = 0
	}
	c.Total = total
	return nil
}

// Policy bounds how discounts stack on one cart.
type Policy struct {
	MaxDiscounts           int
	MaxPercentageDiscounts int
}

func DefaultPolicy() Policy {
	return Policy{MaxDiscounts: 3, MaxPercentageDiscounts: 1}
}

// CanStack reports whether a discount of the given type may join the cart.
func (p Policy) CanStack(c *Cart, kind enums.DiscountType) error {
	if len(c.Discounts) >= p.MaxDiscounts {
		return pkgerrors.Newf(pkgerrors.CodeStackingLimit, "at most %d discounts can be combined", p.MaxDiscounts).
			WithDetails(map[string]any{"applied": len(c.Discounts), "max": p.MaxDiscounts})
	}
	if kind == enums.DiscountTypePercentage {
		n := 0
		for _, d := range c.Discounts {
			if d.Type == enums.DiscountTypePercentage {
				n++
			}
		}
		if n >= p.MaxPercentageDiscounts {
			return pkgerrors.Newf(pkgerrors.CodeStackingLimit, "at most %d percentage discount can be applied", p.MaxPercentageDiscounts).
				WithDetails(map[string]any{"applied_percentage": n, "max": p.MaxPercentageDiscounts})
		}
	}
	return nil
}

// Ineligibility reasons surfaced in INVALID_COUPON details.
const (
	ReasonNotFound    = "not_found"
	ReasonInactive    = "inactive"
	ReasonNotYetValid = "not_yet_valid"
	ReasonExpired     = "expired"
	ReasonUsageLimit  = "usage_limit_reached"
	ReasonMinOrder    = "min_order_not_met"
	ReasonCategory    = "category_restricted"
	ReasonProduct     = "product_restricted"
	ReasonUser        = "user_restricted"
	ReasonTimeWindow  = "outside_time_window"
)

// CheckEligibility validates a coupon against the cart, its owner and the
// current time. It returns nil or an INVALID_COUPON error with a reason.
func CheckEligibility(coupon *models.Coupon, c *Cart, now time.Time) error {
	reason := eligibilityReason(coupon, c, now)
	if reason == "" {
		return nil
	}
	return invalidCoupon(coupon.Code, reason)
}

func eligibilityReason(coupon *models.Coupon, c *Cart, now time.Time) string {
	switch {
	case !coupon.IsActive:
		return ReasonInactive
	case now.Before(coupon.ValidFrom):
		return ReasonNotYetValid
	case !now.Before(coupon.ValidUntil):
		return ReasonExpired
	case coupon.UsageExhausted():
		return ReasonUsageLimit
	case c.Subtotal < coupon.MinOrderAmount:
		return ReasonMinOrder
	}

	if len(coupon.ApplicableCategories) > 0 && !anyIn(coupon.ApplicableCategories, c.Categories()) {
		return ReasonCategory
	}
	if len(coupon.ApplicableProducts) > 0 && !anyIn(coupon.ApplicableProducts, c.ProductIDs()) {
		return ReasonProduct
	}
	if len(coupon.ApplicableUsers) > 0 {
		allowed := false
		for _, u := range coupon.ApplicableUsers {
			if u == c.UserID {
				allowed = true
				break
			}
		}
		if !allowed {
			return ReasonUser
		}
	}
	if !inTimeWindow(coupon, now) {
		return ReasonTimeWindow
	}
	return ""
}

func inTimeWindow(coupon *models.Coupon, now time.Time) bool {
	if len(coupon.ValidWeekdays) > 0 {
		ok := false
		for _, d := range coupon.ValidWeekdays {
			if time.Weekday(d) == now.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if coupon.ValidHourFrom != nil && now.Hour() < *coupon.ValidHourFrom {
		return false
	}
	if coupon.ValidHourTo != nil && now.Hour() >= *coupon.ValidHourTo {
		return false
	}
	return true
}

func anyIn(values []string, set map[string]bool) bool {
	for _, v := range values {
		if set[v] {
			return true
		}
	}
	return false
}

func invalidCoupon(code, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon cannot be used: "+reason).
		WithDetails(map[string]any{"code": code, "reason": reason})
}
