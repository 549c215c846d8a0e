// Package notifications manages per-user append-only event records
// surfaced in the app's notification tray.
package notifications

import (
	"context"

	"github.com/elgen19/dearly-server/internal/models"
	"gorm.io/gorm"
)

// Service appends and mutates notification records
type Service struct {
	db *gorm.DB
}

// NewService creates a notification service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Notify appends a notification for a user
func (s *Service) Notify(ctx context.Context, userID uint, notifType, message string) error {
	n := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Message: message,
	}
	return s.db.WithContext(ctx).Create(&n).Error
}

// List returns a user's notifications, newest first
func (s *Service) List(ctx context.Context, userID uint) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// UnreadCount returns how many of a user's notifications are unread
func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = false", userID).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read; scoped to the owner
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification for the user read
func (s *Service) MarkAllRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = false", userID).
		Update("read", true).Error
}

// Delete removes one notification; scoped to the owner
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Clear removes all of a user's notifications
func (s *Service) Clear(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Notification{}).Error
}
