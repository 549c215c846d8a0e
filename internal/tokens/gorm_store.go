package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/elgen19/dearly-server/internal/models"
	"gorm.io/gorm"
)

// GormStore persists letter tokens in Postgres via GORM
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed token store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Create(ctx context.Context, t *models.LetterToken) error {
	return g.db.WithContext(ctx).Create(t).Error
}

func (g *GormStore) GetByToken(ctx context.Context, token string) (*models.LetterToken, error) {
	var rec models.LetterToken
	err := g.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (g *GormStore) Renew(ctx context.Context, id uint, prevRenewalCount int, newExpiry time.Time) (bool, error) {
	result := g.db.WithContext(ctx).
		Model(&models.LetterToken{}).
		Where("id = ? AND renewal_count = ? AND is_active = true", id, prevRenewalCount).
		Updates(map[string]interface{}{
			"expires_at":    newExpiry,
			"renewal_count": prevRenewalCount + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (g *GormStore) DeactivateForLetter(ctx context.Context, letterID uint) error {
	return g.db.WithContext(ctx).
		Model(&models.LetterToken{}).
		Where("letter_id = ? AND is_active = true", letterID).
		Update("is_active", false).Error
}
