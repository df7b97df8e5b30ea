package promo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var ErrEmptyCode = errors.New("promo code is required")

// InvalidCodeError is returned for codes missing from the table. Message is
// safe to show to the shopper.
type InvalidCodeError struct {
	Code    string
	Message string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid promo code %q", e.Code)
}

// Validator maps promo codes to discount rates
type Validator struct {
	rates map[string]decimal.Decimal
	hint  string
}

// DefaultTable returns the storefront's fixed promo table.
func DefaultTable() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"SAVE10":    decimal.RequireFromString("0.10"),
		"FIRST15":   decimal.RequireFromString("0.15"),
		"WELCOME20": decimal.RequireFromString("0.20"),
	}
}

// NewValidator builds a validator over table. Codes are normalized to upper
// case and rates outside [0,1] are rejected.
func NewValidator(table map[string]decimal.Decimal) (*Validator, error) {
	rates := make(map[string]decimal.Decimal, len(table))
	codes := make([]string, 0, len(table))
	for code, rate := range table {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("promo %s: discount rate %s out of range", code, rate)
		}
		normalized := normalize(code)
		rates[normalized] = rate
		codes = append(codes, normalized)
	}
	sort.Strings(codes)

	return &Validator{rates: rates, hint: joinCodes(codes)}, nil
}

// Lookup resolves a shopper-entered code into the promo state to apply.
func (v *Validator) Lookup(code string) (models.PromoState, error) {
	normalized := normalize(code)
	if normalized == "" {
		return models.PromoState{}, ErrEmptyCode
	}

	rate, ok := v.rates[normalized]
	if !ok {
		msg := "Invalid promo code."
		if v.hint != "" {
			msg += " Try " + v.hint
		}
		return models.PromoState{}, &InvalidCodeError{Code: code, Message: msg}
	}

	return models.PromoState{Code: normalized, DiscountRate: rate}, nil
}

// SuccessMessage renders the confirmation shown after a code is applied.
func SuccessMessage(p models.PromoState) string {
	pct := p.DiscountRate.Mul(decimal.NewFromInt(100)).Round(0)
	return fmt.Sprintf("Promo code applied! %s%% discount", pct.String())
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func joinCodes(codes []string) string {
	switch len(codes) {
	case 0:
		return ""
	case 1:
		return codes[0]
	case 2:
		return codes[0] + " or " + codes[1]
	}
	return strings.Join(codes[:len(codes)-1], ", ") + ", or " + codes[len(codes)-1]
}
