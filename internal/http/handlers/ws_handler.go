package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/recon"
	"github.com/writerlane/agreements-backend/internal/service"
	"github.com/writerlane/agreements-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений.
type WSHandler struct {
	hub           *ws.Hub
	tokenManager  *service.TokenManager
	sessions      *recon.SessionManager
	agreementRepo service.AgreementRepo
	upgrader      websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, sessions *recon.SessionManager, repo service.AgreementRepo) *WSHandler {
	return &WSHandler{
		hub:           hub,
		tokenManager:  tokens,
		sessions:      sessions,
		agreementRepo: repo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
// Браузерный WebSocket не умеет заголовки, токен передаётся query параметром.
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return
	}

	userID, role, err := h.tokenManager.ParseAccess(rawToken)
	if err != nil || userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Сессия сведения живёт, пока у пользователя есть хотя бы одно
	// соединение. Провал bootstrap не рвёт соединение: уведомления
	// продолжают идти, сведение подхватит polling следующей сессии.
	fetcher := service.NewReconFetcher(h.agreementRepo, userID, role)
	if _, err := h.sessions.Acquire(c.Request.Context(), userID, fetcher); err != nil {
		logger.Log.Warnf("ws: сессия сведения для %s не поднялась: %v", userID, err)
	} else {
		defer h.sessions.Release(userID)
	}

	client := ws.NewClient(conn, h.hub, userID)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
