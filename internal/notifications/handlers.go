package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/elgen19/dearly-server/internal/auth"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListHandler returns the user's notifications, newest first
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)

		items, err := svc.List(c.Request.Context(), uid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": items})
	}
}

// UnreadCountHandler returns the user's unread notification count
func UnreadCountHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)

		count, err := svc.UnreadCount(c.Request.Context(), uid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": count})
	}
}

// MarkReadHandler marks one notification read
func MarkReadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
			return
		}

		if err := svc.MarkRead(c.Request.Context(), uid, uint(id)); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// MarkAllReadHandler marks every unread notification read
func MarkAllReadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)

		if err := svc.MarkAllRead(c.Request.Context(), uid); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications read"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// DeleteHandler removes one notification
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
			return
		}

		if err := svc.Delete(c.Request.Context(), uid, uint(id)); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ClearHandler removes all of the user's notifications
func ClearHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.CurrentUserID(c)

		if err := svc.Clear(c.Request.Context(), uid); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
