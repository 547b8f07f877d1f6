package enums

import "fmt"

// ToastKind drives the styling of a transient UI message.
type ToastKind string

const (
	ToastKindInfo    ToastKind = "info"
	ToastKindSuccess ToastKind = "success"
	ToastKindWarning ToastKind = "warning"
	ToastKindError   ToastKind = "error"
)

var validToastKinds = []ToastKind{
	ToastKindInfo,
	ToastKindSuccess,
	ToastKindWarning,
	ToastKindError,
}

// String implements fmt.Stringer.
func (t ToastKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ToastKind.
func (t ToastKind) IsValid() bool {
	for _, candidate := range validToastKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseToastKind converts raw input into a ToastKind.
func ParseToastKind(value string) (ToastKind, error) {
	for _, candidate := range validToastKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid toast kind %q", value)
}
