package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/writerlane/agreements-backend/internal/http/handlers/common"
	"github.com/writerlane/agreements-backend/internal/service"
)

// FinancialsHandler отдаёт агрегаты дашборда.
type FinancialsHandler struct {
	financials *service.FinancialsService
}

// NewFinancialsHandler создаёт хэндлер.
func NewFinancialsHandler(financials *service.FinancialsService) *FinancialsHandler {
	return &FinancialsHandler{financials: financials}
}

// Get обрабатывает GET /financials?month=&year=&currency=.
// Месяц и год по умолчанию текущие, отчётная валюта USD.
func (h *FinancialsHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	role, _ := common.CurrentUserRole(c)

	now := time.Now()
	month := time.Month(common.ParseIntQuery(c, "month", int(now.Month())))
	year := common.ParseIntQuery(c, "year", now.Year())
	if month < time.January || month > time.December {
		common.RespondBadRequest(c, "month должен быть от 1 до 12")
		return
	}

	result, err := h.financials.UserFinancials(c.Request.Context(), userID, role, month, year, c.Query("currency"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// LastKnownSpend обрабатывает GET /financials/last-known.
// Кэшированный lifetime spend для мгновенной отрисовки до пересчёта.
func (h *FinancialsHandler) LastKnownSpend(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	amount, cur, ok, err := h.financials.CachedLifetimeSpend(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"known":          ok,
		"lifetime_spent": amount,
		"currency":       cur,
	})
}
