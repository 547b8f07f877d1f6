package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

var receiptSigningMethod = jwt.SigningMethodHS256

// ReceiptClaims is the payload of a signed order receipt.
type ReceiptClaims struct {
	OrderID          uuid.UUID      `json:"order_id"`
	PaymentSessionID uuid.UUID      `json:"payment_session_id"`
	Amount           int64          `json:"amount"`
	Currency         enums.Currency `json:"currency"`
	PaidAt           time.Time      `json:"paid_at"`
	jwt.RegisteredClaims
}

type ReceiptInput struct {
	OrderID          uuid.UUID
	PaymentSessionID uuid.UUID
	Amount           int64
	Currency         enums.Currency
	PaidAt           time.Time
}

// SignReceipt issues an HS256 receipt token for a paid order.
func SignReceipt(cfg config.ReceiptsConfig, in ReceiptInput) (string, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", fmt.Errorf("receipt secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("receipt issuer is required")
	}
	if cfg.TTL <= 0 {
		return "", fmt.Errorf("receipt ttl must be positive")
	}

	claims := ReceiptClaims{
		OrderID:          in.OrderID,
		PaymentSessionID: in.PaymentSessionID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		PaidAt:           in.PaidAt.UTC(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   in.OrderID.String(),
			IssuedAt:  jwt.NewNumericDate(in.PaidAt),
			ExpiresAt: jwt.NewNumericDate(in.PaidAt.Add(cfg.TTL)),
			ID:        in.PaymentSessionID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(receiptSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing receipt: %w", err)
	}
	return signed, nil
}

// ParseReceipt validates a receipt token and returns its claims.
func ParseReceipt(cfg config.ReceiptsConfig, token string, now time.Time) (*ReceiptClaims, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("receipt secret is required")
	}

	claims := &ReceiptClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != receiptSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{receiptSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
