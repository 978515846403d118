package dto

import (
	"time"

	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/ledger"
	"github.com/writerlane/agreements-backend/internal/models"
)

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse is the standard success envelope
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthResponse carries the authenticated user with their token pair
type AuthResponse struct {
	User         *models.User  `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// AgreementResponse enriches an agreement with ledger-derived fields
// so clients never recompute progress or currency themselves
type AgreementResponse struct {
	*models.Agreement
	Currency      string  `json:"currency"`
	Paid          float64 `json:"paid"`
	PendingAmount float64 `json:"pending_amount"`
	Progress      float64 `json:"progress"`
	FullyPaid     bool    `json:"fully_paid"`
}

// NewAgreementResponse builds an AgreementResponse from an agreement
func NewAgreementResponse(a *models.Agreement) *AgreementResponse {
	return &AgreementResponse{
		Agreement:     a,
		Currency:      currency.ForAgreement(a),
		Paid:          ledger.PaidAmount(a),
		PendingAmount: ledger.PendingAmount(a),
		Progress:      ledger.Progress(a),
		FullyPaid:     ledger.IsFullyPaid(a),
	}
}

// NewAgreementListResponse maps a slice of agreements
func NewAgreementListResponse(agreements []models.Agreement) []*AgreementResponse {
	out := make([]*AgreementResponse, 0, len(agreements))
	for i := range agreements {
		out = append(out, NewAgreementResponse(&agreements[i]))
	}
	return out
}
