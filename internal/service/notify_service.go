package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/notify"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/pkg/logger"
)

// NotifyService is the dispatcher: it persists every notification first and
// then attempts best-effort real-time delivery. A failed push never fails
// the emitting transition; the stored row is retrievable on the next poll.
type NotifyService interface {
	Emit(ctx context.Context, recipientID int64, typ domain.NotificationType, payload map[string]any) error
	List(ctx context.Context, recipientID int64, limit, offset int, unreadOnly bool) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID int64) error
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	Stream(ctx context.Context, recipientID int64) (<-chan []byte, func(), error)
}

type notifyService struct {
	repo   repository.NotificationRepository
	broker notify.Broker
}

func NewNotifyService(repo repository.NotificationRepository, broker notify.Broker) NotifyService {
	return &notifyService{repo: repo, broker: broker}
}

func (s *notifyService) Emit(ctx context.Context, recipientID int64, typ domain.NotificationType, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	n := &domain.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Type:        typ,
		Payload:     raw,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	wire, err := json.Marshal(n)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal notification for push", "error", err, "notification_id", n.ID)
		return nil
	}
	if err := s.broker.Publish(ctx, recipientID, wire); err != nil {
		// Fire and forget: the persisted record is the source of truth.
		logger.WarnContext(ctx, "Real-time notification push failed", "error", err, "recipient_id", recipientID, "type", typ)
	}
	return nil
}

func (s *notifyService) List(ctx context.Context, recipientID int64, limit, offset int, unreadOnly bool) ([]domain.Notification, error) {
	return s.repo.ListByRecipient(ctx, recipientID, limit, offset, unreadOnly)
}

func (s *notifyService) MarkAllRead(ctx context.Context, recipientID int64) error {
	_, err := s.repo.MarkAllRead(ctx, recipientID)
	return err
}

func (s *notifyService) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notifyService) Stream(ctx context.Context, recipientID int64) (<-chan []byte, func(), error) {
	return s.broker.Subscribe(ctx, recipientID)
}
