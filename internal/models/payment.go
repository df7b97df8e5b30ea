package models

import (
	"database/sql/driver"
	"strings"
)

// PaymentKind tags the active variant of a PaymentMethod
type PaymentKind string

const (
	PaymentKindCard   PaymentKind = "card"
	PaymentKindUPI    PaymentKind = "upi"
	PaymentKindWallet PaymentKind = "wallet"
)

// PaymentMethod is a tagged record; only the variant named by Kind is read.
type PaymentMethod struct {
	Kind   PaymentKind    `json:"kind" validate:"required,oneof=card upi wallet"`
	Card   *CardDetails   `json:"card,omitempty" validate:"-"`
	UPI    *UPIDetails    `json:"upi,omitempty" validate:"-"`
	Wallet *WalletDetails `json:"wallet,omitempty" validate:"-"`
}

// CardDetails holds the card form. Number and CVV are never persisted.
type CardDetails struct {
	Number     string `json:"number" validate:"notblank,cardnumber"`
	Expiry     string `json:"expiry" validate:"notblank,expiry"`
	CVV        string `json:"cvv" validate:"notblank,min=3"`
	HolderName string `json:"holder_name" validate:"notblank"`
	SaveCard   bool   `json:"save_card"`
}

type UPIDetails struct {
	ID string `json:"id"`
}

type WalletDetails struct {
	Provider string `json:"provider"`
}

// PaymentSummary is the masked payment method kept on an order
type PaymentSummary struct {
	Kind           PaymentKind `json:"kind"`
	CardLast4      string      `json:"card_last4,omitempty"`
	HolderName     string      `json:"holder_name,omitempty"`
	UPIID          string      `json:"upi_id,omitempty"`
	WalletProvider string      `json:"wallet_provider,omitempty"`
}

func (p PaymentSummary) Value() (driver.Value, error) { return jsonValue(p) }

func (p *PaymentSummary) Scan(src interface{}) error { return jsonScan(src, p) }

// Summary masks the payment method for storage and display.
func (m PaymentMethod) Summary() PaymentSummary {
	s := PaymentSummary{Kind: m.Kind}
	switch m.Kind {
	case PaymentKindCard:
		if m.Card != nil {
			digits := CardDigits(m.Card.Number)
			if len(digits) >= 4 {
				s.CardLast4 = digits[len(digits)-4:]
			}
			s.HolderName = strings.TrimSpace(m.Card.HolderName)
		}
	case PaymentKindUPI:
		if m.UPI != nil {
			s.UPIID = m.UPI.ID
		}
	case PaymentKindWallet:
		if m.Wallet != nil {
			s.WalletProvider = m.Wallet.Provider
		}
	}
	return s
}

// CardDigits strips spaces and dashes from a card number.
func CardDigits(number string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(number)
}
