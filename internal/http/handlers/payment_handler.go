package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/dto"
	"github.com/writerlane/agreements-backend/internal/http/handlers/common"
	"github.com/writerlane/agreements-backend/internal/service"
)

// PaymentHandler принимает callback'и платёжных шлюзов.
type PaymentHandler struct {
	pool *service.PaymentPool
}

// NewPaymentHandler создаёт хэндлер.
func NewPaymentHandler(pool *service.PaymentPool) *PaymentHandler {
	return &PaymentHandler{pool: pool}
}

// GatewayCallback обрабатывает POST /webhooks/payments.
// Шлюз ждёт ответ синхронно, поэтому результат воркера дожидаемся здесь;
// пул лишь ограничивает конкурентность при пачках callback'ов.
func (h *PaymentHandler) GatewayCallback(c *gin.Context) {
	var req dto.GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	agreementID, err := uuid.Parse(req.AgreementID)
	if err != nil {
		common.RespondBadRequest(c, "agreement_id должен быть валидным UUID")
		return
	}

	var installmentID *uuid.UUID
	if req.InstallmentID != nil {
		parsed, err := uuid.Parse(*req.InstallmentID)
		if err != nil {
			common.RespondBadRequest(c, "installment_id должен быть валидным UUID")
			return
		}
		installmentID = &parsed
	}

	result, err := h.pool.Submit(c.Request.Context(), service.GatewayCallbackInput{
		Reference:     req.Reference,
		AgreementID:   agreementID,
		InstallmentID: installmentID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Gateway:       req.Gateway,
		Status:        req.Status,
		PaidAt:        req.PaidAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := <-result; err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "callback принят", nil)
}
