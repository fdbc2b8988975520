package service

import (
	"context"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

const notificationPageSize = 50

type NotificationService struct {
	notifications domain.NotificationRepository
}

func NewNotificationService(notifications domain.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

func (s *NotificationService) List(ctx context.Context, actor *models.User, unreadOnly bool) ([]*models.Notification, error) {
	return s.notifications.ListNotifications(ctx, actor.ID, unreadOnly, notificationPageSize)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor *models.User, id int64) error {
	return notFound(s.notifications.MarkNotificationRead(ctx, id, actor.ID), "notification not found")
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.User) (int64, error) {
	return s.notifications.MarkAllNotificationsRead(ctx, actor.ID)
}
