package notifications

import (
	"context"
	"testing"

	"github.com/elgen19/dearly-server/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory database with the notifications table
// migrated. A single connection keeps the memory database alive for the
// whole test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Notification{}))
	return db
}

func TestNotifyAppendsUnread(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 1, models.NotificationLetterRead, "Amy opened your letter"))

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationLetterRead, list[0].Type)
	assert.False(t, list[0].Read)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkAllReadLeavesZeroUnread(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 1, models.NotificationLetterRead, "Amy opened your letter"))
	require.NoError(t, svc.Notify(ctx, 1, models.NotificationQuizDone, "Amy finished your quiz"))
	require.NoError(t, svc.Notify(ctx, 2, models.NotificationLetterRead, "Ben opened your letter"))

	require.NoError(t, svc.MarkAllRead(ctx, 1))

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Another user's tray is untouched
	other, err := svc.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 1, models.NotificationLetterRead, "Amy opened your letter"))
	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Another user cannot mark it
	err = svc.MarkRead(ctx, 2, list[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, svc.MarkRead(ctx, 1, list[0].ID))
	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}
