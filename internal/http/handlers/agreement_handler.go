package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/dto"
	"github.com/writerlane/agreements-backend/internal/http/handlers/common"
	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/service"
)

// AgreementHandler предоставляет HTTP слой для договоров.
type AgreementHandler struct {
	agreements *service.AgreementService
}

// NewAgreementHandler создаёт хэндлер.
func NewAgreementHandler(agreements *service.AgreementService) *AgreementHandler {
	return &AgreementHandler{agreements: agreements}
}

// Create обрабатывает POST /agreements. Создавать договоры может студент.
func (h *AgreementHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	role, _ := common.CurrentUserRole(c)
	if role != models.RoleStudent {
		common.RespondError(c, http.StatusForbidden, "создавать договоры может только студент")
		return
	}

	var req dto.CreateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	installments := make([]service.InstallmentInput, 0, len(req.Installments))
	for _, inst := range req.Installments {
		installments = append(installments, service.InstallmentInput{
			Amount:  inst.Amount,
			DueDate: inst.DueDate,
		})
	}

	a, err := h.agreements.Create(c.Request.Context(), userID, service.CreateAgreementInput{
		Title:            req.Title,
		TotalAmount:      req.TotalAmount,
		DeclaredCurrency: req.DeclaredCurrency,
		Gateway:          req.Gateway,
		NativeAmount:     req.NativeAmount,
		ExchangeRate:     req.ExchangeRate,
		Installments:     installments,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAgreementResponse(a))
}

// List обрабатывает GET /agreements: договоры пользователя в его роли.
func (h *AgreementHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	role, _ := common.CurrentUserRole(c)

	agreements, err := h.agreements.ListForUser(c.Request.Context(), userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementListResponse(agreements))
}

// Get обрабатывает GET /agreements/:id.
func (h *AgreementHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	a, err := h.agreements.Get(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementResponse(a))
}

// Accept обрабатывает POST /agreements/:id/accept. Принимает только автор.
func (h *AgreementHandler) Accept(c *gin.Context) {
	userID, id, ok := h.userAndID(c)
	if !ok {
		return
	}

	role, _ := common.CurrentUserRole(c)
	if role != models.RoleWriter {
		common.RespondError(c, http.StatusForbidden, "принимать договоры может только автор")
		return
	}

	a, err := h.agreements.Accept(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementResponse(a))
}

// Complete обрабатывает POST /agreements/:id/complete.
func (h *AgreementHandler) Complete(c *gin.Context) {
	userID, id, ok := h.userAndID(c)
	if !ok {
		return
	}

	a, err := h.agreements.Complete(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementResponse(a))
}

// Dispute обрабатывает POST /agreements/:id/dispute.
func (h *AgreementHandler) Dispute(c *gin.Context) {
	userID, id, ok := h.userAndID(c)
	if !ok {
		return
	}

	a, err := h.agreements.Dispute(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementResponse(a))
}

// Cancel обрабатывает POST /agreements/:id/cancel.
func (h *AgreementHandler) Cancel(c *gin.Context) {
	userID, id, ok := h.userAndID(c)
	if !ok {
		return
	}

	a, err := h.agreements.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgreementResponse(a))
}

func (h *AgreementHandler) userAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, uuid.Nil, false
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}

	return userID, id, true
}
