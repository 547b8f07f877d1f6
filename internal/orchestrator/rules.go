package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
)

// ruleTurn classifies text, asks for the first missing slot or runs the
// function the intent maps to. The caller holds the session lock.
func (o *Orchestrator) ruleTurn(ctx context.Context, sessionID uuid.UUID, text string) (*Turn, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.rule_turn")
	defer span.End()

	in := o.classifier.Classify(text)
	turn := &Turn{SessionID: sessionID, Mode: ModeRules, Intent: &in, Attempts: 1}

	name, params, mapped := functionForIntent(in, text)
	switch {
	case !intent.IsComplete(in):
		o.advance(ctx, sessionID, in)
		turn.Text = intent.ClarificationQuestion(in)
	case mapped:
		fc := functions.Call{ID: "rules-" + uuid.NewString(), Name: name, Parameters: params}
		resp := o.functions.Handle(ctx, sessionID, fc)
		rec := CallRecord{ID: fc.ID, Name: name, Success: resp.OK(), Attempts: 1}
		if resp.Error != nil {
			rec.ErrorCode = resp.Error.Code
		}
		turn.Calls = append(turn.Calls, rec)
	default:
		o.advance(ctx, sessionID, in)
	}

	if turn.Text != "" {
		o.emit(ctx, sessionID, uisync.UIUpdate{
			Panel: uisync.PanelChat,
			View:  "message",
			Data:  map[string]any{"role": llm.RoleAssistant, "text": turn.Text},
		})
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turn.State = sess.State
	return turn, nil
}

func (o *Orchestrator) advance(ctx context.Context, sessionID uuid.UUID, in intent.Intent) {
	if _, err := o.driver.Advance(ctx, sessionID, in); err != nil && o.logg != nil {
		logCtx := o.logg.WithFields(o.logg.WithSessionID(ctx, sessionID.String()), map[string]any{
			"intent": in.Key(),
			"error":  err.Error(),
		})
		o.logg.Debug(logCtx, "orchestrator.advance_skipped")
	}
}

// functionForIntent maps a complete intent to the function that serves it.
// Intents with no direct function only move the session.
func functionForIntent(in intent.Intent, text string) (string, json.RawMessage, bool) {
	slot := func(name string) string {
		v, _ := in.Slot(name)
		return v
	}
	var (
		name   string
		params map[string]any
	)
	switch in.Key() {
	case "product.add":
		qty := 1
		if n, err := strconv.Atoi(slot(intent.SlotQuantity)); err == nil && n > 0 {
			qty = n
		}
		name, params = functions.AddToCart, map[string]any{"productId": slot(intent.SlotProduct), "quantity": qty}
	case "product.detail":
		name, params = functions.GetProduct, map[string]any{"productId": slot(intent.SlotProduct)}
	case "product.search":
		query := slot(intent.SlotProductName)
		if query == "" {
			return "", nil, false
		}
		name, params = functions.SearchCatalog, map[string]any{"query": query}
	case "product.recommend":
		hint := text
		if runes := []rune(hint); len(runes) > 200 {
			hint = string(runes[:200])
		}
		name, params = functions.GetRecommendations, map[string]any{"context": hint}
	case "coupon.apply":
		name, params = functions.ApplyCoupon, map[string]any{"couponId": slot(intent.SlotCouponCode)}
	case "coupon.validate":
		name, params = functions.ValidateCoupon, map[string]any{"code": slot(intent.SlotCouponCode)}
	case "coupon.list":
		name, params = functions.ListAvailableCoupons, map[string]any{}
	case "order.status":
		name, params = functions.GetOrderStatus, map[string]any{}
	case "order.pickup":
		name, params = functions.SchedulePickup, map[string]any{"preferredTime": slot(intent.SlotPickupTime)}
	default:
		return "", nil, false
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", nil, false
	}
	return name, raw, true
}

