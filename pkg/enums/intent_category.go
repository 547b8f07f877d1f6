package enums

import "fmt"

// IntentCategory is the coarse domain of a classified utterance.
type IntentCategory string

const (
	IntentCategoryProduct IntentCategory = "product"
	IntentCategoryCoupon  IntentCategory = "coupon"
	IntentCategoryOrder   IntentCategory = "order"
	IntentCategoryGeneral IntentCategory = "general"
)

var validIntentCategories = []IntentCategory{
	IntentCategoryProduct,
	IntentCategoryCoupon,
	IntentCategoryOrder,
	IntentCategoryGeneral,
}

// String implements fmt.Stringer.
func (i IntentCategory) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IntentCategory.
func (i IntentCategory) IsValid() bool {
	for _, candidate := range validIntentCategories {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIntentCategory converts raw input into an IntentCategory.
func ParseIntentCategory(value string) (IntentCategory, error) {
	for _, candidate := range validIntentCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent category %q", value)
}
