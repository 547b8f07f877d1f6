package orchestrator

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
)

const basePrompt = `You are the voice ordering assistant of a coffee shop. Customers speak Korean or English; answer in the customer's language in one or two short sentences suitable for speech.

Rules:
- Use the provided functions for every catalog, cart, coupon, order and payment action. Never invent products, prices, coupons or order numbers.
- Ask for one missing detail at a time (menu item, quantity, pickup or delivery, name, mobile number, address or pickup store).
- Confirm the cart total before creating an order. After create_order, ask the customer to confirm payment, then call process_payment.
- When a function fails, explain the problem briefly using its errorMessage and offer the next step.
- Do not read out ids.`

const summaryPrompt = `Summarize this conversation between a coffee shop voice assistant and a customer in at most five sentences. Keep product names, quantities, applied coupons, order type, customer name and phone, order and payment status. Write plain text.`

// systemMessages builds the instructions plus a snapshot of the session the
// model can rely on.
func systemMessages(sess *sessions.Session) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Session state: %s.", sess.State)
	c := sess.Cart
	if c.IsEmpty() {
		b.WriteString(" Cart is empty.")
	} else {
		fmt.Fprintf(&b, " Cart: %d items, subtotal %d, discounts %d, total %d %s.", c.ItemCount(), c.Subtotal, c.DiscountTotal, c.Total, c.Currency)
		for _, it := range c.Items {
			fmt.Fprintf(&b, "\n- %s x%d (%s)", it.Name, it.Quantity, it.ProductID)
		}
	}
	if sess.CurrentOrderID != nil {
		fmt.Fprintf(&b, "\nAn order is open for this session.")
	}
	if missing := sess.Context.MissingSlots; len(missing) > 0 {
		fmt.Fprintf(&b, "\nStill needed from the customer: %s.", strings.Join(missing, ", "))
	}
	return []llm.Message{llm.SystemMessage(basePrompt), llm.SystemMessage(b.String())}
}
