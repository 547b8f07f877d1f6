package functions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/types"
)

type SearchCatalogParams struct {
	Query      string `json:"query" validate:"max=100"`
	Category   string `json:"category,omitempty" validate:"max=50"`
	MaxResults int    `json:"maxResults,omitempty" validate:"omitempty,min=1,max=20"`
}

type GetProductParams struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

type AddToCartParams struct {
	ProductID string            `json:"productId" validate:"required,max=64"`
	Quantity  int               `json:"quantity" validate:"required,min=1,max=99"`
	Options   map[string]string `json:"options,omitempty"`
}

type ViewCartParams struct{}

type GetRecommendationsParams struct {
	Context    string `json:"context" validate:"max=200"`
	MaxResults int    `json:"maxResults,omitempty" validate:"omitempty,min=1,max=10"`
}

type ValidateCouponParams struct {
	Code      string `json:"code" validate:"required,min=3,max=32"`
	CartTotal int64  `json:"cartTotal,omitempty" validate:"gte=0"`
}

type ApplyCouponParams struct {
	CouponID string `json:"couponId" validate:"required,min=3,max=64"`
}

type RemoveCouponParams struct {
	CouponID string `json:"couponId" validate:"required,min=3,max=64"`
}

type ListAvailableCouponsParams struct {
	UserID string `json:"userId,omitempty" validate:"max=64"`
}

type QuoteDeliveryFeeParams struct {
	Address   types.Address `json:"address"`
	CartTotal int64         `json:"cartTotal,omitempty" validate:"gte=0"`
}

type PointParam struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type GetPickupLocationsParams struct {
	Location *PointParam `json:"location,omitempty"`
}

type SchedulePickupParams struct {
	OrderID       string `json:"orderId,omitempty" validate:"omitempty,uuid"`
	LocationID    string `json:"locationId,omitempty" validate:"max=64"`
	PreferredTime string `json:"preferredTime" validate:"required,max=40"`
}

type OrderRefParams struct {
	OrderID string `json:"orderId,omitempty" validate:"omitempty,uuid"`
}

type PaymentRefParams struct {
	PaymentSessionID string `json:"paymentSessionId,omitempty" validate:"omitempty,uuid"`
}

type EmitUIUpdateParams struct {
	Panel string         `json:"panel" validate:"required,oneof=chat products cart coupons checkout payment order system"`
	View  string         `json:"view" validate:"required,max=50"`
	Data  map[string]any `json:"data,omitempty"`
}

type EmitToastParams struct {
	Kind     string `json:"kind" validate:"required,oneof=info success warning error"`
	Message  string `json:"message" validate:"required,max=200"`
	Duration int    `json:"duration,omitempty" validate:"omitempty,min=500,max=15000"`
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
	return v
}

func validateParams(p any) error {
	if err := validate.Struct(p); err != nil {
		return invalidParams(err)
	}
	return nil
}

func invalidParams(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Namespace()] = paramMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid function parameters").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid function parameters")
}

func paramMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "uuid":
		return "must be a uuid"
	}
	return "is invalid"
}
