package uisync

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Toast message keys.
const (
	MsgRetrying          = "retrying"
	MsgRateLimited       = "rate_limited"
	MsgContextTrimmed    = "context_trimmed"
	MsgFunctionFailed    = "function_failed"
	MsgQuotaExceeded     = "quota_exceeded"
	MsgTimeout           = "timeout"
	MsgAPIError          = "api_error"
	MsgPleaseRepeat      = "please_repeat"
	MsgDegraded          = "degraded"
	MsgCartUpdated       = "cart_updated"
	MsgCouponApplied     = "coupon_applied"
	MsgInvalidCoupon     = "invalid_coupon"
	MsgDuplicateCoupon   = "duplicate_coupon"
	MsgStackingLimit     = "stacking_limit"
	MsgInsufficientStock = "insufficient_stock"
	MsgNotFound          = "not_found"
	MsgStoreClosed       = "store_closed"
	MsgPaymentCompleted  = "payment_completed"
	MsgPaymentFailed     = "payment_failed"
	MsgPaymentExpired    = "payment_expired"
	MsgOrderConfirmed    = "order_confirmed"
	MsgSessionReset      = "session_reset"
	MsgGeneric           = "generic_error"
)

var toastMessages = map[language.Tag]map[string]string{
	language.Korean: {
		MsgRetrying:          "잠시 후 다시 시도할게요.",
		MsgRateLimited:       "요청이 많아요. %d초 후에 다시 시도할게요.",
		MsgContextTrimmed:    "대화가 길어져서 앞부분을 요약했어요.",
		MsgFunctionFailed:    "요청을 처리하지 못했어요. 다시 시도할게요.",
		MsgQuotaExceeded:     "지금은 음성 주문을 사용할 수 없어요. 화면에서 주문해 주세요.",
		MsgTimeout:           "응답이 늦어지고 있어요. 다시 시도할게요.",
		MsgAPIError:          "일시적인 오류가 발생했어요.",
		MsgPleaseRepeat:      "잘 못 들었어요. 다시 한 번 말씀해 주세요.",
		MsgDegraded:          "간단한 응답 모드로 전환했어요.",
		MsgCartUpdated:       "장바구니에 담았어요.",
		MsgCouponApplied:     "쿠폰이 적용됐어요.",
		MsgInvalidCoupon:     "사용할 수 없는 쿠폰이에요.",
		MsgDuplicateCoupon:   "이미 적용된 쿠폰이에요.",
		MsgStackingLimit:     "더 이상 할인을 함께 적용할 수 없어요.",
		MsgInsufficientStock: "재고가 부족해요.",
		MsgNotFound:          "찾을 수 없어요.",
		MsgStoreClosed:       "선택한 시간에는 매장이 문을 닫아요.",
		MsgPaymentCompleted:  "결제가 완료됐어요.",
		MsgPaymentFailed:     "결제에 실패했어요. 다시 시도해 주세요.",
		MsgPaymentExpired:    "결제 시간이 만료됐어요.",
		MsgOrderConfirmed:    "주문이 확정됐어요.",
		MsgSessionReset:      "처음부터 다시 도와드릴게요.",
		MsgGeneric:           "문제가 발생했어요. 다시 시도해 주세요.",
	},
	language.English: {
		MsgRetrying:          "Retrying shortly.",
		MsgRateLimited:       "Too many requests. Retrying in %d seconds.",
		MsgContextTrimmed:    "The conversation got long, so earlier turns were summarized.",
		MsgFunctionFailed:    "That request failed. Retrying.",
		MsgQuotaExceeded:     "Voice ordering is unavailable right now. Please order on screen.",
		MsgTimeout:           "This is taking longer than usual. Retrying.",
		MsgAPIError:          "A temporary error occurred.",
		MsgPleaseRepeat:      "Sorry, I didn't catch that. Please say it again.",
		MsgDegraded:          "Switched to simple response mode.",
		MsgCartUpdated:       "Added to your cart.",
		MsgCouponApplied:     "Coupon applied.",
		MsgInvalidCoupon:     "That coupon can't be used.",
		MsgDuplicateCoupon:   "That coupon is already applied.",
		MsgStackingLimit:     "No more discounts can be combined.",
		MsgInsufficientStock: "Not enough stock.",
		MsgNotFound:          "Not found.",
		MsgStoreClosed:       "The store is closed at that time.",
		MsgPaymentCompleted:  "Payment completed.",
		MsgPaymentFailed:     "Payment failed. Please try again.",
		MsgPaymentExpired:    "The payment session expired.",
		MsgOrderConfirmed:    "Your order is confirmed.",
		MsgSessionReset:      "Let's start over.",
		MsgGeneric:           "Something went wrong. Please try again.",
	},
}

var codeMessages = map[pkgerrors.Code]string{
	pkgerrors.CodeRateLimit:            MsgRateLimited,
	pkgerrors.CodeContextLength:        MsgContextTrimmed,
	pkgerrors.CodeFunctionCall:         MsgFunctionFailed,
	pkgerrors.CodeQuotaExceeded:        MsgQuotaExceeded,
	pkgerrors.CodeTimeout:              MsgTimeout,
	pkgerrors.CodeLLMAPI:               MsgAPIError,
	pkgerrors.CodeInvalidCoupon:        MsgInvalidCoupon,
	pkgerrors.CodeCouponApplied:        MsgDuplicateCoupon,
	pkgerrors.CodeStackingLimit:        MsgStackingLimit,
	pkgerrors.CodeInsufficientStock:    MsgInsufficientStock,
	pkgerrors.CodeNotFound:             MsgNotFound,
	pkgerrors.CodeLocationNotFound:     MsgNotFound,
	pkgerrors.CodeStoreClosed:          MsgStoreClosed,
	pkgerrors.CodePaymentExpired:       MsgPaymentExpired,
	pkgerrors.CodePaymentInvalidStatus: MsgPaymentFailed,
	pkgerrors.CodeStateTransition:      MsgSessionReset,
}

// Toasts renders localized toast messages.
type Toasts struct {
	printer  *message.Printer
	duration time.Duration
}

func NewToasts(locale string, duration time.Duration) (*Toasts, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.Korean))
	for tag, msgs := range toastMessages {
		for key, text := range msgs {
			if err := builder.SetString(tag, key, text); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", tag, key, err)
			}
		}
	}
	tag := language.Korean
	if strings.TrimSpace(locale) != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
		supported := []language.Tag{language.Korean, language.English}
		_, idx, _ := language.NewMatcher(supported).Match(parsed)
		tag = supported[idx]
	}
	if duration <= 0 {
		duration = 3 * time.Second
	}
	return &Toasts{
		printer:  message.NewPrinter(tag, message.Catalog(builder)),
		duration: duration,
	}, nil
}

func (t *Toasts) Text(key string, args ...any) string {
	return t.printer.Sprintf(key, args...)
}

func (t *Toasts) New(kind enums.ToastKind, key string, args ...any) Toast {
	return Toast{Kind: kind, Message: t.Text(key, args...), DurationMS: t.duration.Milliseconds()}
}

// ForError picks the message for err's code. Rate limits carry their delay.
func (t *Toasts) ForError(err error) Toast {
	code := pkgerrors.CodeOf(err)
	key, ok := codeMessages[code]
	if !ok {
		key = MsgGeneric
	}
	kind := enums.ToastKindError
	meta := pkgerrors.MetadataFor(code)
	if meta.Retryable {
		kind = enums.ToastKindWarning
	}
	if key == MsgRateLimited {
		seconds := 0
		if typed := pkgerrors.As(err); typed != nil {
			seconds = int((typed.RetryAfter() + time.Second - 1) / time.Second)
		}
		return t.New(kind, key, seconds)
	}
	return t.New(kind, key)
}
