package models

import (
	"time"

	"github.com/google/uuid"
)

// Agreement описывает договор между студентом и автором на фиксированную сумму.
// PaidAmount — денормализованная сумма оплаченных взносов; при расхождении
// с суммой по installments источником истины считается список взносов.
type Agreement struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	StudentID        uuid.UUID       `db:"student_id" json:"student_id"`
	WriterID         *uuid.UUID      `db:"writer_id" json:"writer_id,omitempty"`
	Title            string          `db:"title" json:"title"`
	TotalAmount      float64         `db:"total_amount" json:"total_amount"`
	DeclaredCurrency *string         `db:"declared_currency" json:"declared_currency,omitempty"`
	Gateway          *string         `db:"gateway" json:"gateway,omitempty"`
	NativeAmount     *float64        `db:"native_amount" json:"native_amount,omitempty"`
	ExchangeRate     *float64        `db:"exchange_rate" json:"exchange_rate,omitempty"`
	Status           AgreementStatus `db:"status" json:"status"`
	PaidAmount       float64         `db:"paid_amount" json:"paid_amount"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`

	// Пустой список валиден: договор с разовой оплатой без графика взносов.
	Installments []Installment `db:"-" json:"installments"`
}

// Installment описывает один запланированный взнос договора.
type Installment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	AgreementID uuid.UUID         `db:"agreement_id" json:"agreement_id"`
	Amount      float64           `db:"amount" json:"amount"`
	DueDate     time.Time         `db:"due_date" json:"due_date"`
	Status      InstallmentStatus `db:"status" json:"status"`
	PaymentDate *time.Time        `db:"payment_date" json:"payment_date,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// IsLumpSum сообщает, что договор оплачивается одним платежом без графика.
func (a *Agreement) IsLumpSum() bool {
	return len(a.Installments) == 0
}

// InstallmentByID ищет взнос по идентификатору.
func (a *Agreement) InstallmentByID(id uuid.UUID) *Installment {
	for i := range a.Installments {
		if a.Installments[i].ID == id {
			return &a.Installments[i]
		}
	}
	return nil
}

// GatewayPayment описывает исход транзакции, полученный от платёжного шлюза.
// Сам процессинг вне зоны ответственности сервиса: мы потребляем результат.
type GatewayPayment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Reference     string     `db:"reference" json:"reference"`
	AgreementID   uuid.UUID  `db:"agreement_id" json:"agreement_id"`
	InstallmentID *uuid.UUID `db:"installment_id" json:"installment_id,omitempty"`
	Amount        float64    `db:"amount" json:"amount"`
	Currency      string     `db:"currency" json:"currency"`
	Gateway       string     `db:"gateway" json:"gateway"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
