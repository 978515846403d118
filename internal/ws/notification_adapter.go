package ws

import (
	"context"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/models"
)

// NotificationServiceAdapter адаптирует NotificationService под NotificationSaver.
type NotificationServiceAdapter struct {
	service interface {
		CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error)
	}
}

// NewNotificationServiceAdapter создаёт новый адаптер.
func NewNotificationServiceAdapter(service interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error)
}) *NotificationServiceAdapter {
	return &NotificationServiceAdapter{service: service}
}

// SaveNotification реализует интерфейс NotificationSaver.
func (a *NotificationServiceAdapter) SaveNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	_, err := a.service.CreateNotification(ctx, userID, event, data)
	return err
}
