package recon

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла или платежа.
type EventType string

// Имена событий совпадают с контрактом WebSocket API.
const (
	EventAgreementAccepted  EventType = "agreement_accepted"
	EventAgreementUpdated   EventType = "agreement_updated"
	EventAgreementCompleted EventType = "agreement_completed"
	EventPaymentSuccess     EventType = "payment_success"
)

// Event — событие, приходящее от сервера или из канала конвергенции.
// Доставка at-least-once: событие может прийти дважды, с опозданием
// или не по порядку. OccurredAt монотонно неубывающий в рамках одного
// источника, но строгий порядок между источниками не гарантирован.
type Event struct {
	Type          EventType  `json:"type"`
	AgreementID   uuid.UUID  `json:"agreement_id"`
	InstallmentID *uuid.UUID `json:"installment_id,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	Status        *string    `json:"status,omitempty"`
	Title         *string    `json:"title,omitempty"`
	FullyPaid     *bool      `json:"fully_paid,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
