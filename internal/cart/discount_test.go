package cart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

func int64Ptr(v int64) *int64 { return &v }

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name     string
		kind     enums.DiscountType
		value    int64
		max      *int64
		subtotal int64
		want     int64
	}{
		{"percentage", enums.DiscountTypePercentage, 10, nil, 9000, 900},
		{"percentage rounds half up", enums.DiscountTypePercentage, 15, nil, 4510, 677},
		{"percentage capped", enums.DiscountTypePercentage, 50, int64Ptr(3000), 20000, 3000},
		{"fixed", enums.DiscountTypeFixedAmount, 3000, nil, 9000, 3000},
		{"fixed clamps to subtotal", enums.DiscountTypeFixedAmount, 3000, nil, 2000, 2000},
		{"free shipping is zero here", enums.DiscountTypeFreeShipping, 0, nil, 9000, 0},
		{"empty cart", enums.DiscountTypePercentage, 10, nil, 0, 0},
	}
	for _, tc := range cases {
		got, err := ComputeDiscount(tc.kind, tc.value, tc.max, tc.subtotal)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestComputeDiscountUnknownTypeIsConfigurationError(t *testing.T) {
	_, err := ComputeDiscount(enums.DiscountType("bogo"), 1, nil, 1000)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPolicyCanStack(t *testing.T) {
	policy := DefaultPolicy()
	c := &Cart{}

	c.Discounts = []AppliedDiscount{{Type: enums.DiscountTypePercentage}}
	if err := policy.CanStack(c, enums.DiscountTypePercentage); pkgerrors.CodeOf(err) != pkgerrors.CodeStackingLimit {
		t.Fatalf("second percentage discount must be rejected, got %v", err)
	}
	if err := policy.CanStack(c, enums.DiscountTypeFixedAmount); err != nil {
		t.Fatalf("fixed discount should stack with one percentage: %v", err)
	}

	c.Discounts = []AppliedDiscount{
		{Type: enums.DiscountTypeFixedAmount},
		{Type: enums.DiscountTypeFixedAmount},
		{Type: enums.DiscountTypeFreeShipping},
	}
	for _, kind := range []enums.DiscountType{enums.DiscountTypeFixedAmount, enums.DiscountTypePercentage, enums.DiscountTypeFreeShipping} {
		if err := policy.CanStack(c, kind); pkgerrors.CodeOf(err) != pkgerrors.CodeStackingLimit {
			t.Fatalf("fourth %s discount must be rejected, got %v", kind, err)
		}
	}

	relaxed := Policy{MaxDiscounts: 5, MaxPercentageDiscounts: 2}
	c.Discounts = []AppliedDiscount{{Type: enums.DiscountTypePercentage}}
	if err := relaxed.CanStack(c, enums.DiscountTypePercentage); err != nil {
		t.Fatalf("configured policy should allow a second percentage: %v", err)
	}
}

func TestCheckEligibilityReasons(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC) // Wednesday
	base := func() *models.Coupon {
		return &models.Coupon{
			ID:         uuid.New(),
			Code:       "TEST",
			Type:       enums.DiscountTypeFixedAmount,
			Value:      1000,
			ValidFrom:  now.Add(-time.Hour),
			ValidUntil: now.Add(time.Hour),
			IsActive:   true,
		}
	}
	c := &Cart{
		UserID:   "user-1",
		Subtotal: 9000,
		Items:    []Item{{ProductID: "americano", Category: "coffee", Quantity: 2}},
	}
	hourFrom, hourTo := 9, 12
	limit := 1

	cases := map[string]func(*models.Coupon){
		ReasonInactive:    func(cp *models.Coupon) { cp.IsActive = false },
		ReasonNotYetValid: func(cp *models.Coupon) { cp.ValidFrom = now.Add(time.Minute) },
		ReasonExpired:     func(cp *models.Coupon) { cp.ValidUntil = now },
		ReasonUsageLimit:  func(cp *models.Coupon) { cp.UsageLimit, cp.UsageCount = &limit, 1 },
		ReasonMinOrder:    func(cp *models.Coupon) { cp.MinOrderAmount = 10000 },
		ReasonCategory:    func(cp *models.Coupon) { cp.ApplicableCategories = []string{"dessert"} },
		ReasonProduct:     func(cp *models.Coupon) { cp.ApplicableProducts = []string{"latte"} },
		ReasonUser:        func(cp *models.Coupon) { cp.ApplicableUsers = []string{"user-2"} },
		ReasonTimeWindow:  func(cp *models.Coupon) { cp.ValidHourFrom, cp.ValidHourTo = &hourFrom, &hourTo },
	}
	for reason, mutate := range cases {
		coupon := base()
		mutate(coupon)
		err := CheckEligibility(coupon, c, now)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInvalidCoupon {
			t.Fatalf("%s: expected INVALID_COUPON, got %v", reason, err)
		}
		details, _ := typed.Details().(map[string]any)
		if details["reason"] != reason {
			t.Fatalf("expected reason %s, got %v", reason, details["reason"])
		}
	}

	ok := base()
	ok.ApplicableCategories = []string{"coffee"}
	ok.ApplicableUsers = []string{"user-1"}
	ok.ValidWeekdays = []int64{int64(time.Wednesday)}
	if err := CheckEligibility(ok, c, now); err != nil {
		t.Fatalf("expected eligible coupon, got %v", err)
	}
}

func TestCartTotalInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	kinds := []enums.DiscountType{enums.DiscountTypePercentage, enums.DiscountTypeFixedAmount, enums.DiscountTypeFreeShipping}

	properties.Property("total == max(0, subtotal - sum(discounts)) and never negative", prop.ForAll(
		func(prices []int64, quantities []int, discountValues []int64, caps []int64) bool {
			c := &Cart{}
			for i := 0; i < len(prices) && i < len(quantities); i++ {
				c.Items = append(c.Items, Item{
					ProductID:      "p",
					UnitPrice:      prices[i],
					OptionModifier: prices[i] % 700,
					Quantity:       quantities[i],
				})
			}
			for i, v := range discountValues {
				kind := kinds[i%len(kinds)]
				if kind == enums.DiscountTypePercentage {
					v = v % 101
				}
				d := AppliedDiscount{Type: kind, Value: v}
				if i < len(caps) && caps[i] > 0 {
					d.MaxDiscount = int64Ptr(caps[i])
				}
				c.Discounts = append(c.Discounts, d)
			}
			if err := Recalculate(c); err != nil {
				return false
			}

			var sum int64
			for _, d := range c.Discounts {
				if d.Amount < 0 || d.Amount > c.Subtotal {
					return false
				}
				sum += d.Amount
			}
			want := c.Subtotal - sum
			if want < 0 {
				want = 0
			}
			return c.Total == want && c.Total >= 0 && c.DiscountTotal == sum
		},
		gen.SliceOfN(4, gen.Int64Range(0, 20000)),
		gen.SliceOfN(4, gen.IntRange(1, 10)),
		gen.SliceOf(gen.Int64Range(0, 60000)),
		gen.SliceOf(gen.Int64Range(0, 5000)),
	))

	properties.TestingRun(t)
}
