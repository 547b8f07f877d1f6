package functions

import "github.com/angelmondragon/voicecommerce-backend/internal/llm"

// Function names the model may call.
const (
	SearchCatalog        = "search_catalog"
	GetProduct           = "get_product"
	AddToCart            = "add_to_cart"
	ViewCart             = "view_cart"
	GetRecommendations   = "get_recommendations"
	ValidateCoupon       = "validate_coupon"
	ApplyCoupon          = "apply_coupon"
	RemoveCoupon         = "remove_coupon"
	ListAvailableCoupons = "list_available_coupons"
	CreateOrder          = "create_order"
	QuoteDeliveryFee     = "quote_delivery_fee"
	GetPickupLocations   = "get_pickup_locations"
	SchedulePickup       = "schedule_pickup"
	GetOrderStatus       = "get_order_status"
	CreatePaymentSession = "create_payment_session"
	ProcessPayment       = "process_payment"
	CancelPayment        = "cancel_payment"
	RetryPayment         = "retry_payment"
	EmitUIUpdate         = "emit_ui_update"
	EmitToast            = "emit_toast"
)

// Declaration describes one callable function to the model.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (d Declaration) Tool() llm.ToolDefinition {
	return llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

type props map[string]any

func object(properties props, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any(properties),
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func strLen(description string, minLen, maxLen int) map[string]any {
	s := str(description)
	s["minLength"] = minLen
	s["maxLength"] = maxLen
	return s
}

func enum(description string, values ...string) map[string]any {
	s := str(description)
	s["enum"] = values
	return s
}

func integer(description string, minimum, maximum int) map[string]any {
	return map[string]any{"type": "integer", "description": description, "minimum": minimum, "maximum": maximum}
}

func number(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func stringMap(description string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"description":          description,
		"additionalProperties": map[string]any{"type": "string"},
	}
}

func point(description string) map[string]any {
	s := object(props{"lat": number("latitude"), "lng": number("longitude")}, "lat", "lng")
	s["description"] = description
	return s
}

func address() map[string]any {
	return object(props{
		"street":      strLen("street address", 5, 200),
		"detail":      str("apartment, floor or other detail"),
		"city":        strLen("city", 1, 100),
		"postal_code": str("postal code"),
		"lat":         number("latitude"),
		"lng":         number("longitude"),
		"distance_km": map[string]any{"type": "number", "minimum": 0, "description": "known distance from the store"},
	}, "street", "city")
}

var paymentSessionRef = props{"paymentSessionId": str("payment session id; defaults to the current order's session")}

// Declarations returns the function schema in a stable order.
func Declarations() []Declaration {
	return []Declaration{
		{SearchCatalog, "Search the menu by free text and optional category.", object(props{
			"query":      strLen("search text", 0, 100),
			"category":   str("menu category such as coffee, bakery or dessert"),
			"maxResults": integer("result limit", 1, 20),
		}, "query")},
		{GetProduct, "Fetch one menu item with its options.", object(props{
			"productId": strLen("product id", 1, 64),
		}, "productId")},
		{AddToCart, "Add a menu item to the cart.", object(props{
			"productId": strLen("product id", 1, 64),
			"quantity":  integer("how many", 1, 99),
			"options":   stringMap("option group to choice, e.g. size: large"),
		}, "productId", "quantity")},
		{ViewCart, "Show the current cart.", object(props{})},
		{GetRecommendations, "Suggest menu items related to the conversation or cart.", object(props{
			"context":    strLen("what the customer is looking for", 0, 200),
			"maxResults": integer("result limit", 1, 10),
		}, "context")},
		{ValidateCoupon, "Check whether a coupon code could be applied, without applying it.", object(props{
			"code":      strLen("coupon code", 3, 32),
			"cartTotal": integer("amount to check against; defaults to the cart subtotal", 0, 100000000),
		}, "code")},
		{ApplyCoupon, "Apply a coupon code to the cart.", object(props{
			"couponId": strLen("coupon code", 3, 64),
		}, "couponId")},
		{RemoveCoupon, "Remove an applied coupon from the cart.", object(props{
			"couponId": strLen("coupon code or id", 3, 64),
		}, "couponId")},
		{ListAvailableCoupons, "List coupons the customer can use, best first.", object(props{
			"userId": str("customer id; defaults to the session user"),
		})},
		{CreateOrder, "Turn the cart into an order and open a payment session.", object(props{
			"orderType": enum("pickup or delivery", "pickup", "delivery"),
			"customerInfo": object(props{
				"name":  strLen("customer name", 2, 50),
				"phone": str("mobile number, e.g. 010-1234-5678"),
				"email": str("email address"),
			}, "name", "phone"),
			"deliveryAddress": address(),
			"pickupLocation":  str("store location id for pickup"),
			"pickupTime":      str("RFC3339 time or HH:MM today"),
			"instructions":    strLen("notes for the store", 0, 500),
		}, "orderType", "customerInfo")},
		{QuoteDeliveryFee, "Quote the delivery fee and ETA for an address.", object(props{
			"address":   address(),
			"cartTotal": integer("subtotal to quote; defaults to the cart total", 0, 100000000),
		}, "address")},
		{GetPickupLocations, "List pickup stores, nearest first when a location is given.", object(props{
			"location": point("customer position"),
		})},
		{SchedulePickup, "Set the pickup store and time of a pickup order.", object(props{
			"orderId":       str("order id; defaults to the current order"),
			"locationId":    str("store location id; defaults to the order's store"),
			"preferredTime": strLen("RFC3339 time or HH:MM today", 4, 40),
		}, "preferredTime")},
		{GetOrderStatus, "Look up an order.", object(props{
			"orderId": str("order id; defaults to the current order"),
		})},
		{CreatePaymentSession, "Open a new payment session for an unpaid order.", object(props{
			"orderId": str("order id; defaults to the current order"),
		})},
		{ProcessPayment, "Submit the payment session for processing.", object(paymentSessionRef)},
		{CancelPayment, "Cancel the payment session.", object(paymentSessionRef)},
		{RetryPayment, "Retry a failed payment session.", object(paymentSessionRef)},
		{EmitUIUpdate, "Update a panel of the customer's screen.", object(props{
			"panel": enum("screen panel", "chat", "products", "cart", "coupons", "checkout", "payment", "order", "system"),
			"view":  strLen("view name", 1, 50),
			"data":  map[string]any{"type": "object", "description": "view payload"},
		}, "panel", "view")},
		{EmitToast, "Show a short message to the customer.", object(props{
			"kind":     enum("severity", "info", "success", "warning", "error"),
			"message":  strLen("message text", 1, 200),
			"duration": integer("display time in milliseconds", 500, 15000),
		}, "kind", "message")},
	}
}

// Tools returns the declarations in the model client's shape.
func Tools() []llm.ToolDefinition {
	decls := Declarations()
	out := make([]llm.ToolDefinition, 0, len(decls))
	for _, d := range decls {
		out = append(out, d.Tool())
	}
	return out
}
