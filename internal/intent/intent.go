package intent

import (
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

const (
	ActionSearch    = "search"
	ActionAdd       = "add"
	ActionDetail    = "detail"
	ActionRecommend = "recommend"

	ActionApply    = "apply"
	ActionValidate = "validate"
	ActionList     = "list"

	ActionCreate = "create"
	ActionStatus = "status"
	ActionCancel = "cancel"
	ActionPickup = "pickup"

	ActionGreeting = "greeting"
	ActionChat     = "chat"
)

const (
	SlotProduct      = "product"
	SlotProductName  = "product_name"
	SlotQuantity     = "quantity"
	SlotCouponCode   = "coupon_code"
	SlotOrderType    = "order_type"
	SlotPhone        = "phone"
	SlotCustomerName = "customer_name"
	SlotPickupTime   = "pickup_time"
)

// Intent is the classifier's reading of one utterance.
type Intent struct {
	Category   enums.IntentCategory `json:"category"`
	Action     string               `json:"action"`
	Confidence float64              `json:"confidence"`
	Slots      map[string]string    `json:"slots,omitempty"`
}

// Key returns "category.action", the lookup key for required slots.
func (i Intent) Key() string {
	return string(i.Category) + "." + i.Action
}

func (i Intent) Slot(name string) (string, bool) {
	v, ok := i.Slots[name]
	return v, ok && v != ""
}

var requiredSlots = map[string][]string{
	"product.add":     {SlotProduct},
	"product.detail":  {SlotProduct},
	"coupon.apply":    {SlotCouponCode},
	"coupon.validate": {SlotCouponCode},
	"order.create":    {SlotOrderType, SlotCustomerName, SlotPhone},
	"order.pickup":    {SlotPickupTime},
}

var clarifications = map[string]string{
	SlotProduct:      "어떤 메뉴를 원하시나요?",
	SlotCouponCode:   "쿠폰 코드를 말씀해 주세요.",
	SlotOrderType:    "배달과 포장 중 어떤 방식으로 받으시겠어요?",
	SlotCustomerName: "주문하시는 분 성함을 알려 주세요.",
	SlotPhone:        "연락 가능한 휴대폰 번호를 알려 주세요.",
	SlotPickupTime:   "몇 시에 픽업하시겠어요?",
}

// MissingSlots lists required slots absent from i, in declaration order.
func MissingSlots(i Intent) []string {
	var missing []string
	for _, slot := range requiredSlots[i.Key()] {
		if _, ok := i.Slot(slot); !ok {
			missing = append(missing, slot)
		}
	}
	return missing
}

func IsComplete(i Intent) bool {
	return len(MissingSlots(i)) == 0
}

// ClarificationQuestion asks for the first missing slot, or returns "".
func ClarificationQuestion(i Intent) string {
	missing := MissingSlots(i)
	if len(missing) == 0 {
		return ""
	}
	return clarifications[missing[0]]
}
