package orders

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/types"
)

var mobilePattern = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)

// CustomerInput identifies who receives the order.
type CustomerInput struct {
	Name  string `json:"name" validate:"required,min=2"`
	Phone string `json:"phone" validate:"required,mobile"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// CreateOrderRequest turns the session cart into an order. Delivery orders
// carry an address; pickup orders carry a store location id.
type CreateOrderRequest struct {
	OrderType        enums.OrderType `json:"orderType" validate:"required,oneof=pickup delivery"`
	Customer         CustomerInput   `json:"customerInfo"`
	DeliveryAddress  *types.Address  `json:"deliveryAddress,omitempty" validate:"required_if=OrderType delivery"`
	PickupLocationID string          `json:"pickupLocation,omitempty" validate:"required_if=OrderType pickup"`
	PickupTime       string          `json:"pickupTime,omitempty"`
	Instructions     string          `json:"instructions,omitempty" validate:"max=500"`
}

// OrderDTO is the order shape returned to the model and the UI.
type OrderDTO struct {
	ID               uuid.UUID                `json:"id"`
	SessionID        uuid.UUID                `json:"sessionId"`
	Type             enums.OrderType          `json:"orderType"`
	Status           enums.OrderStatus        `json:"status"`
	StatusHistory    []models.StatusChange    `json:"statusHistory"`
	PaymentStatus    enums.OrderPaymentStatus `json:"paymentStatus"`
	PaymentSessionID *uuid.UUID               `json:"paymentSessionId,omitempty"`
	PaymentRetryable bool                     `json:"paymentRetryable"`
	Items            []models.OrderItem       `json:"items"`
	Discounts        []models.OrderDiscount   `json:"discounts"`
	Customer         models.CustomerInfo      `json:"customer"`
	Delivery         *models.DeliveryInfo     `json:"delivery,omitempty"`
	Pickup           *models.PickupInfo       `json:"pickup,omitempty"`
	Subtotal         int64                    `json:"subtotal"`
	DiscountTotal    int64                    `json:"discountTotal"`
	Tax              int64                    `json:"tax"`
	DeliveryFee      int64                    `json:"deliveryFee"`
	Total            int64                    `json:"total"`
	Currency         enums.Currency           `json:"currency"`
	ReceiptToken     *string                  `json:"receiptToken,omitempty"`
	NextStatuses     []enums.OrderStatus      `json:"nextStatuses"`
	ConfirmedAt      *time.Time               `json:"confirmedAt,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
}

func ToDTO(o *models.Order) OrderDTO {
	return OrderDTO{
		ID:               o.ID,
		SessionID:        o.SessionID,
		Type:             o.Type,
		Status:           o.Status,
		StatusHistory:    o.StatusHistory,
		PaymentStatus:    o.PaymentStatus,
		PaymentSessionID: o.PaymentSessionID,
		PaymentRetryable: o.PaymentRetryable,
		Items:            o.Items,
		Discounts:        o.Discounts,
		Customer:         o.Customer,
		Delivery:         o.Fulfillment.Delivery,
		Pickup:           o.Fulfillment.Pickup,
		Subtotal:         o.Subtotal,
		DiscountTotal:    o.DiscountTotal,
		Tax:              o.Tax,
		DeliveryFee:      o.DeliveryFee,
		Total:            o.Total,
		Currency:         o.Currency,
		ReceiptToken:     o.ReceiptToken,
		NextStatuses:     NextStatuses(o.Status),
		ConfirmedAt:      o.ConfirmedAt,
		CreatedAt:        o.CreatedAt,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// ValidateRequest trims and checks a create-order request.
func ValidateRequest(req *CreateOrderRequest) error {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.PickupLocationID = strings.TrimSpace(req.PickupLocationID)
	if req.DeliveryAddress != nil {
		req.DeliveryAddress.Street = strings.TrimSpace(req.DeliveryAddress.Street)
		req.DeliveryAddress.City = strings.TrimSpace(req.DeliveryAddress.City)
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Namespace()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order request").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order request")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "mobile":
		return "must be a mobile number like 010-1234-5678"
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return "is invalid"
}
