package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"storefront/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// MinCardDigits is the shortest accepted card number after separators are
// stripped.
const MinCardDigits = 16

// ValidationError carries per-field messages for the active step
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// fieldMessages maps json field name and failing tag to the shopper-facing
// message.
var fieldMessages = map[string]map[string]string{
	"first_name":  {"notblank": "First name is required"},
	"last_name":   {"notblank": "Last name is required"},
	"address":     {"notblank": "Address is required"},
	"city":        {"notblank": "City is required"},
	"state":       {"notblank": "State is required"},
	"zip_code":    {"notblank": "ZIP code is required"},
	"phone":       {"notblank": "Phone number is required"},
	"number":      {"notblank": "Card number is required", "cardnumber": "Invalid card number"},
	"expiry":      {"notblank": "Expiry date is required", "expiry": "Invalid expiry date format"},
	"cvv":         {"notblank": "CVV is required", "min": "Invalid CVV"},
	"holder_name": {"notblank": "Cardholder name is required"},
	"kind":        {"required": "Select a payment method", "oneof": "Unsupported payment method"},
	"email":       {"notblank": "Email is required for order confirmation", "guestemail": "Please enter a valid email address"},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "cardnumber", func(fl validator.FieldLevel) bool {
		digits := models.CardDigits(fl.Field().String())
		if len(digits) < MinCardDigits {
			return false
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
	mustRegister(v, "expiry", func(fl validator.FieldLevel) bool {
		return expiryPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "guestemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// ValidateShipping checks that every address field is filled in.
func ValidateShipping(addr models.ShippingAddress) error {
	return check(addr)
}

// ValidatePayment checks the fields required by the selected payment kind.
// UPI and wallet payments need no more than the selection itself.
func ValidatePayment(method models.PaymentMethod) error {
	if err := check(method); err != nil {
		return err
	}
	if method.Kind != models.PaymentKindCard {
		return nil
	}
	if method.Card == nil {
		return &ValidationError{Fields: map[string]string{"number": fieldMessages["number"]["notblank"]}}
	}
	return check(*method.Card)
}

type guestForm struct {
	Email string `json:"email" validate:"notblank,guestemail"`
}

// ValidateGuestEmail checks the email that unlocks guest checkout.
func ValidateGuestEmail(email string) error {
	return check(guestForm{Email: email})
}

func check(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %T: %w", v, err)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
