package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/catalog"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
	"github.com/angelmondragon/voicecommerce-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Inventory reserves and returns product stock inside the order transaction.
type Inventory interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID string, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID string, qty int) error
}

// CouponRedeemer counts coupon uses inside the order transaction.
type CouponRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
	Unredeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
}

type locationLookup interface {
	Location(ctx context.Context, id string) (*models.StoreLocation, error)
	NearestLocation(ctx context.Context, at catalog.Point) (*models.StoreLocation, float64, error)
	PickupLocations(ctx context.Context, near *catalog.Point) ([]catalog.LocationDTO, error)
}

type sessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*sessions.Session) error) (*sessions.Session, error)
}

// Service is the order lifecycle manager.
type Service interface {
	CreateOrder(ctx context.Context, sessionID uuid.UUID, req CreateOrderRequest) (*models.Order, error)
	QuoteDeliveryFee(ctx context.Context, address types.Address, itemCount int, subtotal int64) (*DeliveryQuote, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, metadata map[string]any) (*models.Order, error)
	SchedulePickup(ctx context.Context, orderID uuid.UUID, locationID, preferredTime string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByPaymentSession(ctx context.Context, paymentSessionID uuid.UUID) (*models.Order, error)
	ListSessionOrders(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	PickupLocations(ctx context.Context, near *catalog.Point) ([]catalog.LocationDTO, error)
	AttachPaymentSession(ctx context.Context, orderID, paymentSessionID uuid.UUID) (*models.Order, error)
	MarkPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus, paymentSessionID *uuid.UUID) (*models.Order, error)
	AttachReceipt(ctx context.Context, orderID uuid.UUID, token string) (*models.Order, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Inventory Inventory
	Coupons   CouponRedeemer
	Locations locationLookup
	Sessions  sessionStore
	Delivery  config.DeliveryConfig
	Metrics   *metrics.CommerceMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory Inventory
	coupons   CouponRedeemer
	locations locationLookup
	sessions  sessionStore
	delivery  config.DeliveryConfig
	metrics   *metrics.CommerceMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if p.Coupons == nil {
		return nil, fmt.Errorf("coupon redeemer required")
	}
	if p.Locations == nil {
		return nil, fmt.Errorf("location lookup required")
	}
	if p.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		inventory: p.Inventory,
		coupons:   p.Coupons,
		locations: p.Locations,
		sessions:  p.Sessions,
		delivery:  p.Delivery,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// CreateOrder snapshots the session cart into a new order, reserves stock
// and redeems coupons in one transaction, then clears the cart and records
// the order on the session. If the session cannot be saved the order is
// cancelled and its reservations returned.
func (s *service) CreateOrder(ctx context.Context, sessionID uuid.UUID, req CreateOrderRequest) (*models.Order, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c := sess.Cart.Clone()
	if c.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Type:          req.OrderType,
		Status:        enums.OrderStatusCreated,
		StatusHistory: []models.StatusChange{{To: enums.OrderStatusCreated, At: now}},
		PaymentStatus: enums.OrderPaymentStatusPending,
		PaymentHistory: []models.PaymentChange{
			{Status: enums.OrderPaymentStatusPending, At: now},
		},
		Items:     snapshotItems(c.Items),
		Discounts: snapshotDiscounts(c.Discounts),
		Customer: models.CustomerInfo{
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: strings.TrimSpace(req.Customer.Email),
		},
		Currency: c.Currency,
	}
	if order.Currency == "" {
		order.Currency = enums.CurrencyKRW
	}
	if note := strings.TrimSpace(req.Instructions); note != "" {
		order.Notes = &note
	}

	switch req.OrderType {
	case enums.OrderTypeDelivery:
		quote, err := s.QuoteDeliveryFee(ctx, *req.DeliveryAddress, c.ItemCount(), c.Subtotal)
		if err != nil {
			return nil, err
		}
		fee := quote.Fee
		if c.HasFreeShipping() {
			fee = 0
		}
		order.DeliveryFee = fee
		order.Fulfillment.Delivery = &models.DeliveryInfo{
			Address:          *req.DeliveryAddress,
			DistanceKM:       quote.DistanceKM,
			Fee:              fee,
			EstimatedMinutes: quote.EstimatedMinutes,
			Instructions:     strings.TrimSpace(req.Instructions),
		}
	case enums.OrderTypePickup:
		loc, err := s.locations.Location(ctx, req.PickupLocationID)
		if err != nil {
			return nil, err
		}
		pickup := &models.PickupInfo{LocationID: loc.ID, LocationName: loc.Name}
		if strings.TrimSpace(req.PickupTime) != "" {
			at, err := s.pickupTime(loc, req.PickupTime, now)
			if err != nil {
				return nil, err
			}
			pickup.ScheduledAt = &at
		}
		order.Fulfillment.Pickup = pickup
	}

	order.Subtotal = c.Subtotal
	order.DiscountTotal = c.DiscountTotal
	order.Tax = vat(c.Total, s.taxRate())
	order.Total = c.Total + order.Tax + order.DeliveryFee

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, it := range order.Items {
			if err := s.inventory.Reserve(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		for _, d := range order.Discounts {
			if err := s.coupons.Redeem(ctx, tx, d.CouponID); err != nil {
				return err
			}
		}
		return s.repo.WithTx(tx).Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	_, err = s.sessions.Update(ctx, sessionID, func(sess *sessions.Session) error {
		sess.Cart = cart.New(sess.ID, sess.UserID, sess.Cart.Currency)
		sess.Cart.UpdatedAt = now
		id := order.ID
		sess.CurrentOrderID = &id
		return nil
	})
	if err != nil {
		if cerr := s.compensate(ctx, order, err); cerr != nil {
			return nil, multierr.Append(err, cerr)
		}
		return nil, err
	}

	s.metrics.IncOrder(string(order.Type))
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"session_id": sessionID.String(),
			"order_type": string(order.Type),
			"total":      order.Total,
		})
		s.logg.Info(logCtx, "order.created")
	}
	return order, nil
}

// compensate cancels an order whose session could not record it.
func (s *service) compensate(ctx context.Context, order *models.Order, cause error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var errs error
		for _, it := range order.Items {
			errs = multierr.Append(errs, s.inventory.Release(ctx, tx, it.ProductID, it.Quantity))
		}
		for _, d := range order.Discounts {
			errs = multierr.Append(errs, s.coupons.Unredeem(ctx, tx, d.CouponID))
		}
		if errs != nil {
			return errs
		}
		s.appendStatus(order, enums.OrderStatusCancelled, map[string]any{"reason": "session_update_failed"})
		return s.repo.WithTx(tx).Save(ctx, order)
	})
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		if err != nil {
			s.logg.Error(logCtx, "order.compensation_failed", multierr.Append(cause, err))
		} else {
			s.logg.Warn(s.logg.WithField(logCtx, "cause", cause.Error()), "order.compensated")
		}
	}
	return err
}

// QuoteDeliveryFee measures from the nearest store when the address carries
// coordinates, otherwise it trusts the declared distance.
func (s *service) QuoteDeliveryFee(ctx context.Context, address types.Address, itemCount int, subtotal int64) (*DeliveryQuote, error) {
	var (
		km     float64
		origin string
	)
	switch {
	case address.HasCoordinates():
		loc, dist, err := s.locations.NearestLocation(ctx, catalog.Point{Lat: *address.Lat, Lng: *address.Lng})
		if err != nil {
			return nil, err
		}
		km, origin = dist, loc.ID
	case address.DistanceKM != nil:
		km = *address.DistanceKM
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address needs coordinates or a distance").
			WithDetails(map[string]string{"address": "lat/lng or distance_km is required"})
	}
	if itemCount < 0 {
		itemCount = 0
	}
	quote := QuoteFee(s.delivery, km, itemCount, subtotal, s.now())
	quote.OriginLocationID = origin
	return &quote, nil
}

// SetOrderStatus moves an order along the status graph and records the
// change. confirmed additionally requires a completed payment.
func (s *service) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, metadata map[string]any) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", status)
	}
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, status) {
			return transitionError(order.Status, status)
		}
		if status == enums.OrderStatusConfirmed && order.PaymentStatus != enums.OrderPaymentStatusCompleted {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s has no completed payment", order.ID).
				WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
		}
		s.appendStatus(order, status, metadata)
		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithField(s.logg.WithOrderID(ctx, orderID.String()), "status", string(status))
		s.logg.Info(logCtx, "order.status_changed")
	}
	return out, nil
}

func (s *service) appendStatus(order *models.Order, to enums.OrderStatus, metadata map[string]any) {
	now := s.now()
	order.StatusHistory = append(order.StatusHistory, models.StatusChange{
		From:     order.Status,
		To:       to,
		At:       now,
		Metadata: metadata,
	})
	order.Status = to
	if to == enums.OrderStatusConfirmed {
		order.ConfirmedAt = &now
	}
}

// SchedulePickup sets the pickup time (RFC3339, or HH:MM for today) and
// optionally moves the pickup to another store.
func (s *service) SchedulePickup(ctx context.Context, orderID uuid.UUID, locationID, preferredTime string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != enums.OrderTypePickup {
		return nil, pkgerrors.Newf(pkgerrors.CodeOrderNotPickup, "order %s is a %s order", order.ID, order.Type)
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s is %s", order.ID, order.Status)
	}
	now := s.now()
	at, err := parsePickupTime(preferredTime, now)
	if err != nil {
		return nil, err
	}
	if !at.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodePickupTimeInPast, "pickup time must be in the future").
			WithDetails(map[string]any{"requested": at.Format(time.RFC3339)})
	}

	locationID = strings.TrimSpace(locationID)
	if locationID == "" && order.Fulfillment.Pickup != nil {
		locationID = order.Fulfillment.Pickup.LocationID
	}
	loc, err := s.locations.Location(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.IsOpenAt(at) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStoreClosed, "%s is closed at %s", loc.Name, at.Format("Mon 15:04")).
			WithDetails(map[string]any{"location_id": loc.ID, "requested": at.Format(time.RFC3339)})
	}

	order.Fulfillment.Pickup = &models.PickupInfo{LocationID: loc.ID, LocationName: loc.Name, ScheduledAt: &at}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) pickupTime(loc *models.StoreLocation, raw string, now time.Time) (time.Time, error) {
	at, err := parsePickupTime(raw, now)
	if err != nil {
		return time.Time{}, err
	}
	if !at.After(now) {
		return time.Time{}, pkgerrors.New(pkgerrors.CodePickupTimeInPast, "pickup time must be in the future")
	}
	if !loc.IsOpenAt(at) {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeStoreClosed, "%s is closed at %s", loc.Name, at.Format("Mon 15:04"))
	}
	return at, nil
}

func parsePickupTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at.In(now.Location()), nil
	}
	if hm, err := time.Parse("15:04", raw); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, pkgerrors.Newf(pkgerrors.CodeInvalidTimeFormat, "cannot read pickup time %q", raw).
		WithDetails(map[string]any{"expected": "RFC3339 or HH:MM"})
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

func (s *service) GetOrderByPaymentSession(ctx context.Context, paymentSessionID uuid.UUID) (*models.Order, error) {
	return s.repo.FindByPaymentSession(ctx, paymentSessionID)
}

func (s *service) ListSessionOrders(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

func (s *service) PickupLocations(ctx context.Context, near *catalog.Point) ([]catalog.LocationDTO, error) {
	return s.locations.PickupLocations(ctx, near)
}

// AttachPaymentSession links a new payment session. Only orders still
// awaiting payment accept one.
func (s *service) AttachPaymentSession(ctx context.Context, orderID, paymentSessionID uuid.UUID) (*models.Order, error) {
	return s.mutate(ctx, orderID, func(order *models.Order) error {
		if order.PaymentStatus != enums.OrderPaymentStatusPending && order.PaymentStatus != enums.OrderPaymentStatusFailed {
			return pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "order payment is %s", order.PaymentStatus)
		}
		if order.Status != enums.OrderStatusCreated {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s is %s", order.ID, order.Status)
		}
		id := paymentSessionID
		order.PaymentSessionID = &id
		return nil
	})
}

// MarkPaymentStatus records a payment outcome. A failure leaves the order
// retryable; any other status clears the flag.
func (s *service) MarkPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus, paymentSessionID *uuid.UUID) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment status %q", status)
	}
	return s.mutate(ctx, orderID, func(order *models.Order) error {
		if order.PaymentStatus == enums.OrderPaymentStatusCompleted && status != enums.OrderPaymentStatusCompleted {
			return pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "order %s is already paid", order.ID)
		}
		order.PaymentHistory = append(order.PaymentHistory, models.PaymentChange{
			Status:           status,
			At:               s.now(),
			PaymentSessionID: paymentSessionID,
		})
		order.PaymentStatus = status
		order.PaymentRetryable = status == enums.OrderPaymentStatusFailed
		if paymentSessionID != nil {
			id := *paymentSessionID
			order.PaymentSessionID = &id
		}
		return nil
	})
}

func (s *service) AttachReceipt(ctx context.Context, orderID uuid.UUID, token string) (*models.Order, error) {
	return s.mutate(ctx, orderID, func(order *models.Order) error {
		t := token
		order.ReceiptToken = &t
		return nil
	})
}

func (s *service) mutate(ctx context.Context, orderID uuid.UUID, fn func(*models.Order) error) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(order); err != nil {
			return err
		}
		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) taxRate() int64 {
	if s.delivery.TaxRatePercent < 0 {
		return 0
	}
	return s.delivery.TaxRatePercent
}

// vat is rate percent of amount, rounded half-up.
func vat(amount, ratePercent int64) int64 {
	if amount <= 0 || ratePercent <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func snapshotItems(items []cart.Item) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		var opts map[string]string
		if len(it.Options) > 0 {
			opts = make(map[string]string, len(it.Options))
			for k, v := range it.Options {
				opts[k] = v
			}
		}
		out = append(out, models.OrderItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Category:       it.Category,
			Quantity:       it.Quantity,
			Options:        opts,
			UnitPrice:      it.UnitPrice,
			OptionModifier: it.OptionModifier,
			LineTotal:      it.LineTotal,
		})
	}
	return out
}

func snapshotDiscounts(discounts []cart.AppliedDiscount) []models.OrderDiscount {
	out := make([]models.OrderDiscount, 0, len(discounts))
	for _, d := range discounts {
		out = append(out, models.OrderDiscount{
			CouponID: d.CouponID,
			Code:     d.Code,
			Type:     d.Type,
			Value:    d.Value,
			Amount:   d.Amount,
		})
	}
	return out
}
