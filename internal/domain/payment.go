package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodBankSlip   PaymentMethod = "BANK_SLIP"
)

type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
)

// Payment is created once per reservation and never updated afterwards.
type Payment struct {
	ID            int64         `json:"id"`
	ReservationID int64         `json:"reservation_id"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	ProcessedAt   time.Time     `json:"processed_at"`

	CardType     string `json:"card_type,omitempty"`
	CardLastFour string `json:"card_last_four,omitempty"`
	CardExpiry   string `json:"card_expiry,omitempty"`

	SlipBarcode string     `json:"slip_barcode,omitempty"`
	SlipExpiry  *time.Time `json:"slip_expiry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
