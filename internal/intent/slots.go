package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

var (
	digitQuantityRe  = regexp.MustCompile(`(\d{1,2})\s*(?:개|잔|인분|cups?|pieces?|pcs)`)
	nativeQuantityRe = regexp.MustCompile(`(한|두|세|네|다섯|하나|둘|셋|넷)\s*(?:개|잔|인분)?`)
	couponCodeRe     = regexp.MustCompile(`[A-Z0-9]{4,}`)
	phoneRe          = regexp.MustCompile(`01[016789][-\s]?\d{3,4}[-\s]?\d{4}`)
	customerNameRe   = regexp.MustCompile(`(?:이름은|name is)\s*(\S+)`)
	pickupTimeRe     = regexp.MustCompile(`(\d{1,2})\s*[:시]\s*(\d{2})?\s*분?`)
)

var nativeNumbers = map[string]int{
	"한": 1, "하나": 1,
	"두": 2, "둘": 2,
	"세": 3, "셋": 3,
	"네": 4, "넷": 4,
	"다섯": 5,
}

var nameSuffixes = []string{"입니다", "이에요", "예요", "요"}

var couponStopwords = map[string]bool{
	"COUPON": true, "CODE": true, "PROMO": true, "DISCOUNT": true, "APPLY": true,
	"CHECK": true, "VALID": true, "PLEASE": true,
}

func (c *Classifier) extractSlots(original, normalized string, category enums.IntentCategory) map[string]string {
	slots := map[string]string{}

	if term, ok := c.matchProduct(normalized); ok {
		slots[SlotProduct] = term.ProductID
		name := term.Name
		if name == "" {
			name = term.Term
		}
		slots[SlotProductName] = name
	}
	if qty, ok := extractQuantity(normalized); ok {
		slots[SlotQuantity] = strconv.Itoa(qty)
	}
	if code, ok := extractCouponCode(original, category == enums.IntentCategoryCoupon); ok {
		slots[SlotCouponCode] = code
	}
	if orderType, ok := extractOrderType(normalized); ok {
		slots[SlotOrderType] = orderType.String()
	}
	if phone := phoneRe.FindString(normalized); phone != "" {
		slots[SlotPhone] = strings.NewReplacer("-", "", " ", "").Replace(phone)
	}
	if name, ok := extractCustomerName(normalized); ok {
		slots[SlotCustomerName] = name
	}
	if hhmm, ok := extractPickupTime(normalized); ok {
		slots[SlotPickupTime] = hhmm
	}
	return slots
}

func extractQuantity(text string) (int, bool) {
	if m := digitQuantityRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, true
		}
	}
	for _, m := range nativeQuantityRe.FindAllStringSubmatch(text, -1) {
		// bare "세"/"네" are too ambiguous without a counter word.
		if strings.TrimSpace(m[0]) == m[1] && len([]rune(m[1])) == 1 {
			continue
		}
		if n, ok := nativeNumbers[m[1]]; ok {
			return n, true
		}
	}
	return 0, false
}

// extractCouponCode prefers alphanumeric runs that contain a digit; letter-only
// runs are accepted only when the utterance is already about coupons.
func extractCouponCode(original string, couponContext bool) (string, bool) {
	upper := strings.ToUpper(original)
	var lettersOnly string
	for _, run := range couponCodeRe.FindAllString(upper, -1) {
		if couponStopwords[run] || isAllDigits(run) {
			continue
		}
		if strings.ContainsAny(run, "0123456789") {
			return run, true
		}
		if lettersOnly == "" {
			lettersOnly = run
		}
	}
	if couponContext && lettersOnly != "" {
		return lettersOnly, true
	}
	return "", false
}

func extractOrderType(text string) (enums.OrderType, bool) {
	switch {
	case strings.Contains(text, "배달") || containsKeyword(text, "delivery"):
		return enums.OrderTypeDelivery, true
	case strings.Contains(text, "포장") || strings.Contains(text, "픽업") ||
		containsKeyword(text, "pickup") || containsKeyword(text, "takeout"):
		return enums.OrderTypePickup, true
	}
	return "", false
}

func extractCustomerName(text string) (string, bool) {
	m := customerNameRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := m[1]
	for _, suffix := range nameSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	name = strings.Trim(name, ".,!?")
	return name, name != ""
}

func extractPickupTime(text string) (string, bool) {
	m := pickupTimeRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if (strings.Contains(text, "오후") || containsKeyword(text, "pm")) && hour < 12 {
		hour += 12
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
