package dto

import (
	"time"
)

// RegisterRequest represents the request to register a new user
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginRequest represents the request to log in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to refresh a token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateAgreementRequest represents the request to create an agreement
type CreateAgreementRequest struct {
	Title            string               `json:"title" binding:"required"`
	TotalAmount      float64              `json:"total_amount" binding:"required"`
	DeclaredCurrency *string              `json:"declared_currency"`
	Gateway          *string              `json:"gateway"`
	NativeAmount     *float64             `json:"native_amount"`
	ExchangeRate     *float64             `json:"exchange_rate"`
	Installments     []InstallmentRequest `json:"installments"`
}

// InstallmentRequest represents one scheduled installment
type InstallmentRequest struct {
	Amount  float64   `json:"amount" binding:"required"`
	DueDate time.Time `json:"due_date" binding:"required"`
}

// GatewayCallbackRequest represents a payment gateway callback body
type GatewayCallbackRequest struct {
	Reference     string     `json:"reference"`
	AgreementID   string     `json:"agreement_id"`
	InstallmentID *string    `json:"installment_id"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Gateway       string     `json:"gateway"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at"`
}
