package functions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/catalog"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/orders"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/statemachine"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/types"
)

const (
	defaultSearchResults   = 5
	defaultRecommendations = 3
	defaultToastDurationMS = 3000
)

type catalogPort interface {
	Search(ctx context.Context, query, category string, maxResults int) ([]catalog.ProductDTO, error)
	Get(ctx context.Context, productID string) (*models.Product, error)
	Recommendations(ctx context.Context, contextHint string, exclude []string, maxResults int) ([]catalog.ProductDTO, error)
}

type cartPort interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*cart.Cart, error)
	AddItem(ctx context.Context, sessionID uuid.UUID, productID string, qty int, options map[string]string) (*cart.Cart, error)
	ValidateCoupon(ctx context.Context, sessionID uuid.UUID, code string, cartTotal int64) (*cart.CouponQuote, error)
	ApplyCoupon(ctx context.Context, sessionID uuid.UUID, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context, sessionID uuid.UUID, couponRef string) (*cart.Cart, error)
	ListAvailableCoupons(ctx context.Context, sessionID uuid.UUID, userID string) ([]cart.CouponSuggestion, error)
}

type orderPort interface {
	CreateOrder(ctx context.Context, sessionID uuid.UUID, req orders.CreateOrderRequest) (*models.Order, error)
	QuoteDeliveryFee(ctx context.Context, address types.Address, itemCount int, subtotal int64) (*orders.DeliveryQuote, error)
	SchedulePickup(ctx context.Context, orderID uuid.UUID, locationID, preferredTime string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	PickupLocations(ctx context.Context, near *catalog.Point) ([]catalog.LocationDTO, error)
	MarkPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus, paymentSessionID *uuid.UUID) (*models.Order, error)
}

type paymentPort interface {
	Create(ctx context.Context, orderID uuid.UUID) (*payments.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*payments.Session, error)
	Process(ctx context.Context, id uuid.UUID) (*payments.Session, error)
	Cancel(ctx context.Context, id uuid.UUID) (*payments.Session, error)
	Retry(ctx context.Context, id uuid.UUID) (*payments.Session, error)
}

type settlementWatcher interface {
	Watch(paymentSessionID uuid.UUID) bool
	Stop(paymentSessionID uuid.UUID)
}

type sessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
}

type stateDriver interface {
	Transition(ctx context.Context, id uuid.UUID, to enums.SessionState, trigger statemachine.Trigger) (*sessions.Session, error)
	TransitionPath(ctx context.Context, id uuid.UUID, steps ...statemachine.Step) (*sessions.Session, error)
	Advance(ctx context.Context, id uuid.UUID, in intent.Intent) (*sessions.Session, error)
}

// Deps are the engines the handlers call into.
type Deps struct {
	Catalog     catalogPort
	Carts       cartPort
	Orders      orderPort
	Payments    paymentPort
	Settlements settlementWatcher
	Sessions    sessionReader
	Driver      stateDriver
	Now         func() time.Time
}

func (d Deps) validate() error {
	switch {
	case d.Catalog == nil:
		return fmt.Errorf("catalog required")
	case d.Carts == nil:
		return fmt.Errorf("cart service required")
	case d.Orders == nil:
		return fmt.Errorf("orders service required")
	case d.Payments == nil:
		return fmt.Errorf("payments service required")
	case d.Settlements == nil:
		return fmt.Errorf("payment reconciler required")
	case d.Sessions == nil:
		return fmt.Errorf("sessions service required")
	case d.Driver == nil:
		return fmt.Errorf("state machine driver required")
	}
	return nil
}

func (d *Dispatcher) runners() map[string]runner {
	return map[string]runner{
		SearchCatalog:        bind(checked[SearchCatalogParams], d.searchCatalog),
		GetProduct:           bind(checked[GetProductParams], d.getProduct),
		AddToCart:            bind(checked[AddToCartParams], d.addToCart),
		ViewCart:             bind(checked[ViewCartParams], d.viewCart),
		GetRecommendations:   bind(checked[GetRecommendationsParams], d.getRecommendations),
		ValidateCoupon:       bind(checked[ValidateCouponParams], d.validateCoupon),
		ApplyCoupon:          bind(checked[ApplyCouponParams], d.applyCoupon),
		RemoveCoupon:         bind(checked[RemoveCouponParams], d.removeCoupon),
		ListAvailableCoupons: bind(checked[ListAvailableCouponsParams], d.listAvailableCoupons),
		CreateOrder:          bind(orders.ValidateRequest, d.createOrder),
		QuoteDeliveryFee:     bind(checked[QuoteDeliveryFeeParams], d.quoteDeliveryFee),
		GetPickupLocations:   bind(checked[GetPickupLocationsParams], d.getPickupLocations),
		SchedulePickup:       bind(checked[SchedulePickupParams], d.schedulePickup),
		GetOrderStatus:       bind(checked[OrderRefParams], d.getOrderStatus),
		CreatePaymentSession: bind(checked[OrderRefParams], d.createPaymentSession),
		ProcessPayment:       bind(checked[PaymentRefParams], d.processPayment),
		CancelPayment:        bind(checked[PaymentRefParams], d.cancelPayment),
		RetryPayment:         bind(checked[PaymentRefParams], d.retryPayment),
		EmitUIUpdate:         bind(checked[EmitUIUpdateParams], d.emitUIUpdate),
		EmitToast:            bind(checked[EmitToastParams], d.emitToast),
	}
}

func (d *Dispatcher) searchCatalog(ctx context.Context, sessionID uuid.UUID, p SearchCatalogParams) (any, error) {
	limit := p.MaxResults
	if limit == 0 {
		limit = defaultSearchResults
	}
	products, err := d.deps.Catalog.Search(ctx, p.Query, p.Category, limit)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelProducts, "search_results", map[string]any{"query": p.Query, "products": products})
	return map[string]any{"products": products, "count": len(products)}, nil
}

func (d *Dispatcher) getProduct(ctx context.Context, sessionID uuid.UUID, p GetProductParams) (any, error) {
	product, err := d.deps.Catalog.Get(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	dto := catalog.ToDTO(*product)
	d.show(ctx, sessionID, uisync.PanelProducts, "detail", dto)
	return dto, nil
}

func (d *Dispatcher) addToCart(ctx context.Context, sessionID uuid.UUID, p AddToCartParams) (any, error) {
	c, err := d.deps.Carts.AddItem(ctx, sessionID, p.ProductID, p.Quantity, p.Options)
	if err != nil {
		return nil, err
	}
	d.advance(ctx, sessionID, intent.Intent{
		Category: enums.IntentCategoryProduct,
		Action:   intent.ActionAdd,
		Slots:    map[string]string{intent.SlotProduct: p.ProductID},
	})
	d.show(ctx, sessionID, uisync.PanelCart, "summary", c)
	d.toast(ctx, sessionID, enums.ToastKindSuccess, uisync.MsgCartUpdated)
	return c, nil
}

func (d *Dispatcher) viewCart(ctx context.Context, sessionID uuid.UUID, _ ViewCartParams) (any, error) {
	c, err := d.deps.Carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelCart, "summary", c)
	return c, nil
}

func (d *Dispatcher) getRecommendations(ctx context.Context, sessionID uuid.UUID, p GetRecommendationsParams) (any, error) {
	limit := p.MaxResults
	if limit == 0 {
		limit = defaultRecommendations
	}
	var exclude []string
	if c, err := d.deps.Carts.Get(ctx, sessionID); err == nil {
		for _, item := range c.Items {
			exclude = append(exclude, item.ProductID)
		}
	}
	products, err := d.deps.Catalog.Recommendations(ctx, p.Context, exclude, limit)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelProducts, "recommendations", map[string]any{"products": products})
	return map[string]any{"products": products, "count": len(products)}, nil
}

func (d *Dispatcher) validateCoupon(ctx context.Context, sessionID uuid.UUID, p ValidateCouponParams) (any, error) {
	return d.deps.Carts.ValidateCoupon(ctx, sessionID, p.Code, p.CartTotal)
}

func (d *Dispatcher) applyCoupon(ctx context.Context, sessionID uuid.UUID, p ApplyCouponParams) (any, error) {
	c, err := d.deps.Carts.ApplyCoupon(ctx, sessionID, p.CouponID)
	if err != nil {
		return nil, err
	}
	d.advance(ctx, sessionID, intent.Intent{
		Category: enums.IntentCategoryCoupon,
		Action:   intent.ActionApply,
		Slots:    map[string]string{intent.SlotCouponCode: p.CouponID},
	})
	d.show(ctx, sessionID, uisync.PanelCart, "summary", c)
	d.toast(ctx, sessionID, enums.ToastKindSuccess, uisync.MsgCouponApplied)
	return c, nil
}

func (d *Dispatcher) removeCoupon(ctx context.Context, sessionID uuid.UUID, p RemoveCouponParams) (any, error) {
	c, err := d.deps.Carts.RemoveCoupon(ctx, sessionID, p.CouponID)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelCart, "summary", c)
	return c, nil
}

func (d *Dispatcher) listAvailableCoupons(ctx context.Context, sessionID uuid.UUID, p ListAvailableCouponsParams) (any, error) {
	userID := p.UserID
	if userID == "" {
		sess, err := d.deps.Sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		userID = sess.UserID
	}
	coupons, err := d.deps.Carts.ListAvailableCoupons(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelCoupons, "available", map[string]any{"coupons": coupons})
	return map[string]any{"coupons": coupons, "count": len(coupons)}, nil
}

// createOrder moves the session to checkout, creates the order and opens
// its first payment session.
func (d *Dispatcher) createOrder(ctx context.Context, sessionID uuid.UUID, req orders.CreateOrderRequest) (any, error) {
	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Cart.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if sess.State != enums.SessionStateCheckoutInfo {
		if _, err := d.deps.Driver.Advance(ctx, sessionID, intent.Intent{
			Category:   enums.IntentCategoryOrder,
			Action:     intent.ActionCreate,
			Confidence: 1,
			Slots: map[string]string{
				intent.SlotOrderType:    string(req.OrderType),
				intent.SlotCustomerName: req.Customer.Name,
				intent.SlotPhone:        req.Customer.Phone,
			},
		}); err != nil {
			return nil, err
		}
	}

	order, err := d.deps.Orders.CreateOrder(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}
	if _, err := d.deps.Driver.Transition(ctx, sessionID, enums.SessionStatePaymentSessionCreated, statemachine.TriggerOrderCreated); err != nil {
		d.warn(ctx, sessionID, "functions.order_transition_failed", err)
	}
	ps, err := d.deps.Payments.Create(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"order": orders.ToDTO(order), "paymentSession": ps}
	d.show(ctx, sessionID, uisync.PanelCheckout, "order_created", out)
	return out, nil
}

func (d *Dispatcher) quoteDeliveryFee(ctx context.Context, sessionID uuid.UUID, p QuoteDeliveryFeeParams) (any, error) {
	c, err := d.deps.Carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	subtotal := c.Total
	if p.CartTotal > 0 {
		subtotal = p.CartTotal
	}
	quote, err := d.deps.Orders.QuoteDeliveryFee(ctx, p.Address, c.ItemCount(), subtotal)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"quote": quote, "freeShipping": c.HasFreeShipping()}
	d.show(ctx, sessionID, uisync.PanelCheckout, "delivery_quote", out)
	return out, nil
}

func (d *Dispatcher) getPickupLocations(ctx context.Context, sessionID uuid.UUID, p GetPickupLocationsParams) (any, error) {
	var near *catalog.Point
	if p.Location != nil {
		near = &catalog.Point{Lat: p.Location.Lat, Lng: p.Location.Lng}
	}
	locations, err := d.deps.Orders.PickupLocations(ctx, near)
	if err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelCheckout, "pickup_locations", map[string]any{"locations": locations})
	return map[string]any{"locations": locations, "count": len(locations)}, nil
}

func (d *Dispatcher) schedulePickup(ctx context.Context, sessionID uuid.UUID, p SchedulePickupParams) (any, error) {
	orderID, err := d.orderRef(ctx, sessionID, p.OrderID)
	if err != nil {
		return nil, err
	}
	order, err := d.deps.Orders.SchedulePickup(ctx, orderID, p.LocationID, p.PreferredTime)
	if err != nil {
		return nil, err
	}
	dto := orders.ToDTO(order)
	d.show(ctx, sessionID, uisync.PanelOrder, "pickup_scheduled", dto)
	return dto, nil
}

func (d *Dispatcher) getOrderStatus(ctx context.Context, sessionID uuid.UUID, p OrderRefParams) (any, error) {
	orderID, err := d.orderRef(ctx, sessionID, p.OrderID)
	if err != nil {
		return nil, err
	}
	order, err := d.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := orders.ToDTO(order)
	d.show(ctx, sessionID, uisync.PanelOrder, "status", dto)
	return dto, nil
}

func (d *Dispatcher) createPaymentSession(ctx context.Context, sessionID uuid.UUID, p OrderRefParams) (any, error) {
	orderID, err := d.orderRef(ctx, sessionID, p.OrderID)
	if err != nil {
		return nil, err
	}
	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	trigger := statemachine.TriggerOrderCreated
	switch sess.State {
	case enums.SessionStateCheckoutInfo, enums.SessionStatePaymentSessionCreated:
	case enums.SessionStatePaymentFailed:
		trigger = statemachine.TriggerPaymentRetried
	default:
		return nil, stateError(sess.State, enums.SessionStatePaymentSessionCreated, trigger)
	}

	ps, err := d.deps.Payments.Create(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if sess.State != enums.SessionStatePaymentSessionCreated {
		if _, err := d.deps.Driver.Transition(ctx, sessionID, enums.SessionStatePaymentSessionCreated, trigger); err != nil {
			d.warn(ctx, sessionID, "functions.payment_transition_failed", err)
		}
	}
	d.show(ctx, sessionID, uisync.PanelPayment, "session_created", ps)
	return ps, nil
}

// processPayment submits the session and hands the outcome to the
// reconciler. Only a session waiting in payment_session_created may pay.
func (d *Dispatcher) processPayment(ctx context.Context, sessionID uuid.UUID, p PaymentRefParams) (any, error) {
	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != enums.SessionStatePaymentSessionCreated {
		return nil, stateError(sess.State, enums.SessionStatePaymentPending, statemachine.TriggerPaymentStarted)
	}
	psID, err := d.paymentRef(ctx, sessionID, p.PaymentSessionID)
	if err != nil {
		return nil, err
	}

	ps, err := d.deps.Payments.Process(ctx, psID)
	if err != nil {
		return nil, err
	}
	if _, err := d.deps.Orders.MarkPaymentStatus(ctx, ps.OrderID, enums.OrderPaymentStatusProcessing, &ps.ID); err != nil {
		return nil, err
	}
	if _, err := d.deps.Driver.Transition(ctx, sessionID, enums.SessionStatePaymentPending, statemachine.TriggerPaymentStarted); err != nil {
		return nil, err
	}
	d.deps.Settlements.Watch(ps.ID)
	d.show(ctx, sessionID, uisync.PanelPayment, "processing", ps)
	return ps, nil
}

func (d *Dispatcher) cancelPayment(ctx context.Context, sessionID uuid.UUID, p PaymentRefParams) (any, error) {
	psID, err := d.paymentRef(ctx, sessionID, p.PaymentSessionID)
	if err != nil {
		return nil, err
	}
	d.deps.Settlements.Stop(psID)
	ps, err := d.deps.Payments.Cancel(ctx, psID)
	if err != nil {
		return nil, err
	}
	if _, err := d.deps.Orders.MarkPaymentStatus(ctx, ps.OrderID, enums.OrderPaymentStatusFailed, &ps.ID); err != nil {
		return nil, err
	}

	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	steps := []statemachine.Step{{To: enums.SessionStateCheckoutInfo, Trigger: statemachine.TriggerPaymentCancelled}}
	if sess.State == enums.SessionStatePaymentPending {
		steps = append([]statemachine.Step{{To: enums.SessionStatePaymentFailed, Trigger: statemachine.TriggerPaymentFailed}}, steps...)
	}
	if _, err := d.deps.Driver.TransitionPath(ctx, sessionID, steps...); err != nil {
		d.warn(ctx, sessionID, "functions.cancel_transition_failed", err)
	}
	d.show(ctx, sessionID, uisync.PanelPayment, "cancelled", ps)
	return ps, nil
}

func (d *Dispatcher) retryPayment(ctx context.Context, sessionID uuid.UUID, p PaymentRefParams) (any, error) {
	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != enums.SessionStatePaymentFailed {
		return nil, stateError(sess.State, enums.SessionStatePaymentSessionCreated, statemachine.TriggerPaymentRetried)
	}
	if sess.Context.RetryCount >= statemachine.MaxPaymentRetries {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "payment retried %d times already", sess.Context.RetryCount).
			WithDetails(map[string]any{"retries": sess.Context.RetryCount, "max": statemachine.MaxPaymentRetries})
	}
	psID, err := d.paymentRef(ctx, sessionID, p.PaymentSessionID)
	if err != nil {
		return nil, err
	}

	ps, err := d.deps.Payments.Retry(ctx, psID)
	if err != nil {
		return nil, err
	}
	if _, err := d.deps.Driver.Transition(ctx, sessionID, enums.SessionStatePaymentSessionCreated, statemachine.TriggerPaymentRetried); err != nil {
		return nil, err
	}
	d.show(ctx, sessionID, uisync.PanelPayment, "retry_ready", ps)
	return ps, nil
}

func (d *Dispatcher) emitUIUpdate(ctx context.Context, sessionID uuid.UUID, p EmitUIUpdateParams) (any, error) {
	if err := d.emitter.Emit(ctx, sessionID, uisync.UIUpdate{Panel: p.Panel, View: p.View, Data: p.Data}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit ui update")
	}
	return map[string]any{"emitted": true}, nil
}

func (d *Dispatcher) emitToast(ctx context.Context, sessionID uuid.UUID, p EmitToastParams) (any, error) {
	duration := p.Duration
	if duration == 0 {
		duration = defaultToastDurationMS
	}
	toast := uisync.Toast{Kind: enums.ToastKind(p.Kind), Message: p.Message, DurationMS: int64(duration)}
	if err := d.emitter.Emit(ctx, sessionID, toast); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit toast")
	}
	return map[string]any{"emitted": true}, nil
}

// orderRef resolves an explicit order id or the session's current order.
func (d *Dispatcher) orderRef(ctx context.Context, sessionID uuid.UUID, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
		}
		return id, nil
	}
	sess, err := d.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	if sess.CurrentOrderID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "session has no current order")
	}
	return *sess.CurrentOrderID, nil
}

// paymentRef resolves an explicit payment session id or the current order's.
func (d *Dispatcher) paymentRef(ctx context.Context, sessionID uuid.UUID, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment session id")
		}
		return id, nil
	}
	orderID, err := d.orderRef(ctx, sessionID, "")
	if err != nil {
		return uuid.Nil, err
	}
	order, err := d.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return uuid.Nil, err
	}
	if order.PaymentSessionID == nil {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodePaymentNotFound, "order %s has no payment session", order.ID)
	}
	return *order.PaymentSessionID, nil
}

func stateError(from, to enums.SessionState, trigger statemachine.Trigger) error {
	return pkgerrors.Newf(pkgerrors.CodeStateTransition, "cannot move session from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":        string(from),
			"to":          string(to),
			"trigger":     string(trigger),
			"recommended": string(enums.SessionStateIdle),
		})
}

// advance moves the session along with a business step. A session the step
// does not apply to stays where it is.
func (d *Dispatcher) advance(ctx context.Context, sessionID uuid.UUID, in intent.Intent) {
	in.Confidence = 1
	if _, err := d.deps.Driver.Advance(ctx, sessionID, in); err != nil && d.logg != nil {
		logCtx := d.logg.WithSessionID(ctx, sessionID.String())
		d.logg.Debug(d.logg.WithField(logCtx, "error", err.Error()), "functions.advance_skipped")
	}
}

func (d *Dispatcher) show(ctx context.Context, sessionID uuid.UUID, panel, view string, data any) {
	_ = d.emitter.Emit(ctx, sessionID, uisync.UIUpdate{Panel: panel, View: view, Data: data})
}

func (d *Dispatcher) toast(ctx context.Context, sessionID uuid.UUID, kind enums.ToastKind, key string) {
	_ = d.emitter.Emit(ctx, sessionID, d.toasts.New(kind, key))
}

func (d *Dispatcher) warn(ctx context.Context, sessionID uuid.UUID, msg string, err error) {
	if d.logg == nil {
		return
	}
	logCtx := d.logg.WithSessionID(ctx, sessionID.String())
	d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), msg)
}
