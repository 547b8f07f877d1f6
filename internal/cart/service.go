package cart

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

const expiringSoonWindow = 7 * 24 * time.Hour

// Store loads and persists the cart held by a session. Callers serialize
// access per session.
type Store interface {
	LoadCart(ctx context.Context, sessionID uuid.UUID) (*Cart, error)
	SaveCart(ctx context.Context, c *Cart) error
}

type productLookup interface {
	Get(ctx context.Context, productID string) (*models.Product, error)
}

type couponLookup interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListActive(ctx context.Context) ([]models.Coupon, error)
}

// Service is the cart and discount engine.
type Service struct {
	store    Store
	products productLookup
	coupons  couponLookup
	policy   Policy
	now      func() time.Time
}

func NewService(store Store, products productLookup, coupons couponLookup, policy Policy, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if coupons == nil {
		return nil, fmt.Errorf("coupon lookup required")
	}
	if policy.MaxDiscounts <= 0 || policy.MaxPercentageDiscounts < 0 {
		return nil, fmt.Errorf("invalid stacking policy %+v", policy)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, products: products, coupons: coupons, policy: policy, now: now}, nil
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*Cart, error) {
	return s.store.LoadCart(ctx, sessionID)
}

// AddItem adds quantity of a product, merging with an existing line that
// carries the same options. Unselected option groups take their default.
func (s *Service) AddItem(ctx context.Context, sessionID uuid.UUID, productID string, qty int, options map[string]string) (*Cart, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s is not available", productID)
	}

	selected := withDefaultOptions(product, options)
	modifier, ok := product.OptionModifier(selected)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid options for %s", product.Name).
			WithDetails(map[string]any{"options": options})
	}

	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	inCart := 0
	for _, it := range c.Items {
		if it.ProductID == product.ID {
			inCart += it.Quantity
		}
	}
	if inCart+qty > product.Stock {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d of %s left", product.Stock-inCart, product.Name).
			WithDetails(map[string]any{"product_id": product.ID, "available": product.Stock - inCart, "requested": qty})
	}

	id := lineID(product.ID, selected)
	merged := false
	for i := range c.Items {
		if c.Items[i].LineID == id {
			c.Items[i].Quantity += qty
			c.Items[i].UnitPrice = product.Price
			c.Items[i].OptionModifier = modifier
			merged = true
			break
		}
	}
	if !merged {
		c.Items = append(c.Items, Item{
			LineID:         id,
			ProductID:      product.ID,
			Name:           product.Name,
			Category:       product.Category,
			Quantity:       qty,
			Options:        selected,
			UnitPrice:      product.Price,
			OptionModifier: modifier,
		})
	}
	return s.commit(ctx, c)
}

// UpdateQuantity sets a line's quantity; zero removes it. key is a line id
// or a product id (first matching line).
func (s *Service) UpdateQuantity(ctx context.Context, sessionID uuid.UUID, key string, qty int) (*Cart, error) {
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := findLine(c, key)
	if idx < 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "cart has no item %s", key)
	}
	if qty == 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return s.commit(ctx, c)
	}

	product, err := s.products.Get(ctx, c.Items[idx].ProductID)
	if err != nil {
		return nil, err
	}
	other := 0
	for i, it := range c.Items {
		if i != idx && it.ProductID == product.ID {
			other += it.Quantity
		}
	}
	if other+qty > product.Stock {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d of %s left", product.Stock-other, product.Name)
	}
	c.Items[idx].Quantity = qty
	return s.commit(ctx, c)
}

func (s *Service) RemoveItem(ctx context.Context, sessionID uuid.UUID, key string) (*Cart, error) {
	return s.UpdateQuantity(ctx, sessionID, key, 0)
}

// Clear empties items and discounts.
func (s *Service) Clear(ctx context.Context, sessionID uuid.UUID) (*Cart, error) {
	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.Items = []Item{}
	c.Discounts = []AppliedDiscount{}
	return s.commit(ctx, c)
}

// CouponQuote is the read-only outcome of validating a coupon.
type CouponQuote struct {
	CouponID uuid.UUID          `json:"couponId"`
	Code     string             `json:"code"`
	Name     string             `json:"name"`
	Type     enums.DiscountType `json:"type"`
	Value    int64              `json:"value"`
	Discount int64              `json:"discount"`
	Valid    bool               `json:"valid"`
	Reason   string             `json:"reason,omitempty"`
}

// ValidateCoupon checks a code against the session cart without mutating it.
// A positive cartTotal overrides the cart subtotal used for the checks.
func (s *Service) ValidateCoupon(ctx context.Context, sessionID uuid.UUID, code string, cartTotal int64) (*CouponQuote, error) {
	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	probe := c.Clone()
	if cartTotal > 0 {
		probe.Subtotal = cartTotal
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			return &CouponQuote{Code: models.NormalizeCouponCode(code), Reason: ReasonNotFound}, nil
		}
		return nil, err
	}
	quote := &CouponQuote{
		CouponID: coupon.ID,
		Code:     coupon.Code,
		Name:     coupon.Name,
		Type:     coupon.Type,
		Value:    coupon.Value,
	}
	if reason := eligibilityReason(coupon, &probe, s.now()); reason != "" {
		quote.Reason = reason
		return quote, nil
	}
	amount, err := ComputeCouponDiscount(coupon, &probe)
	if err != nil {
		return nil, err
	}
	quote.Discount = amount
	quote.Valid = true
	return quote, nil
}

// ApplyCoupon validates and attaches a coupon. Stacking limits are checked
// before eligibility so a full cart rejects any further coupon.
func (s *Service) ApplyCoupon(ctx context.Context, sessionID uuid.UUID, code string) (*Cart, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			return nil, invalidCoupon(models.NormalizeCouponCode(code), ReasonNotFound)
		}
		return nil, err
	}

	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.HasCoupon(coupon.ID) {
		return nil, pkgerrors.Newf(pkgerrors.CodeCouponApplied, "coupon %s is already applied", coupon.Code)
	}
	if err := s.policy.CanStack(c, coupon.Type); err != nil {
		return nil, err
	}
	if err := CheckEligibility(coupon, c, s.now()); err != nil {
		return nil, err
	}
	amount, err := ComputeCouponDiscount(coupon, c)
	if err != nil {
		return nil, err
	}

	c.Discounts = append(c.Discounts, AppliedDiscount{
		CouponID:    coupon.ID,
		Code:        coupon.Code,
		Type:        coupon.Type,
		Value:       coupon.Value,
		MaxDiscount: coupon.MaxDiscountAmount,
		Amount:      amount,
	})
	return s.commit(ctx, c)
}

// RemoveCoupon detaches an applied coupon by id or code.
func (s *Service) RemoveCoupon(ctx context.Context, sessionID uuid.UUID, couponRef string) (*Cart, error) {
	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(couponRef)
	for i, d := range c.Discounts {
		if d.CouponID.String() == ref || d.Code == models.NormalizeCouponCode(ref) {
			c.Discounts = append(c.Discounts[:i], c.Discounts[i+1:]...)
			return s.commit(ctx, c)
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "coupon %s is not applied", ref)
}

// CouponSuggestion ranks a coupon for the current cart.
type CouponSuggestion struct {
	CouponID          uuid.UUID          `json:"couponId"`
	Code              string             `json:"code"`
	Name              string             `json:"name"`
	Type              enums.DiscountType `json:"type"`
	Value             int64              `json:"value"`
	PotentialDiscount int64              `json:"potentialDiscount"`
	Applicable        bool               `json:"applicable"`
	Reason            string             `json:"reason,omitempty"`
	ExpiresAt         time.Time          `json:"expiresAt"`
	Priority          float64            `json:"priority"`
}

// ListAvailableCoupons ranks active coupons by
// 0.1*potential + 100*applicable + 10*percentage + 20*expiringWithin7Days.
func (s *Service) ListAvailableCoupons(ctx context.Context, sessionID uuid.UUID, userID string) ([]CouponSuggestion, error) {
	c, err := s.store.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	probe := c.Clone()
	if userID != "" {
		probe.UserID = userID
	}
	active, err := s.coupons.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	out := make([]CouponSuggestion, 0, len(active))
	for i := range active {
		coupon := &active[i]
		if !now.Before(coupon.ValidUntil) {
			continue
		}
		potential, err := ComputeCouponDiscount(coupon, &probe)
		if err != nil {
			continue
		}
		reason := eligibilityReason(coupon, &probe, now)
		if reason == "" && probe.HasCoupon(coupon.ID) {
			reason = "already_applied"
		}
		if reason == "" {
			if err := s.policy.CanStack(&probe, coupon.Type); err != nil {
				reason = "stacking_limit"
			}
		}
		sug := CouponSuggestion{
			CouponID:          coupon.ID,
			Code:              coupon.Code,
			Name:              coupon.Name,
			Type:              coupon.Type,
			Value:             coupon.Value,
			PotentialDiscount: potential,
			Applicable:        reason == "",
			Reason:            reason,
			ExpiresAt:         coupon.ValidUntil,
		}
		sug.Priority = priority(sug, now)
		out = append(out, sug)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func priority(s CouponSuggestion, now time.Time) float64 {
	score := 0.1 * float64(s.PotentialDiscount)
	if s.Applicable {
		score += 100
	}
	if s.Type == enums.DiscountTypePercentage {
		score += 10
	}
	if s.ExpiresAt.Sub(now) <= expiringSoonWindow {
		score += 20
	}
	return score
}

func (s *Service) commit(ctx context.Context, c *Cart) (*Cart, error) {
	if err := Recalculate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.store.SaveCart(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func withDefaultOptions(p *models.Product, options map[string]string) map[string]string {
	if len(p.Options) == 0 && len(options) == 0 {
		return nil
	}
	selected := make(map[string]string, len(p.Options))
	for _, g := range p.Options {
		if g.Default != "" {
			selected[g.Name] = g.Default
		}
	}
	for k, v := range options {
		selected[k] = v
	}
	return selected
}

func findLine(c *Cart, key string) int {
	for i, it := range c.Items {
		if it.LineID == key {
			return i
		}
	}
	for i, it := range c.Items {
		if it.ProductID == key {
			return i
		}
	}
	return -1
}
