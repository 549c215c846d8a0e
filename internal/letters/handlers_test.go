package letters

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/notifications"
	"github.com/elgen19/dearly-server/internal/security"
	"github.com/elgen19/dearly-server/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- helpers ---

// fakeTokenStore serves canned token records for share-link tests
type fakeTokenStore struct {
	byToken map[string]*models.LetterToken
}

func (f *fakeTokenStore) Create(ctx context.Context, t *models.LetterToken) error {
	f.byToken[t.Token] = t
	return nil
}

func (f *fakeTokenStore) GetByToken(ctx context.Context, token string) (*models.LetterToken, error) {
	rec, ok := f.byToken[token]
	if !ok {
		return nil, tokens.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeTokenStore) Renew(ctx context.Context, id uint, prev int, newExpiry time.Time) (bool, error) {
	return false, nil
}

func (f *fakeTokenStore) DeactivateForLetter(ctx context.Context, letterID uint) error {
	return nil
}

func newSharedRouter(store *fakeTokenStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(nil, tokens.NewService(store), nil, nil, nil, &config.Config{}, logger, nil)

	r := gin.New()
	r.GET("/api/letters/shared/:token", h.Shared)
	return r
}

func doGet(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- tests ---

func TestSharedUnknownTokenReturns404(t *testing.T) {
	r := newSharedRouter(&fakeTokenStore{byToken: map[string]*models.LetterToken{}})

	w := doGet(t, r, "/api/letters/shared/deadbeef")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharedExpiredTokenReturns410(t *testing.T) {
	store := &fakeTokenStore{byToken: map[string]*models.LetterToken{
		"oldtoken": {
			Token:     "oldtoken",
			LetterID:  7,
			ExpiresAt: time.Now().Add(-time.Hour),
			IsActive:  true,
		},
	}}
	r := newSharedRouter(store)

	w := doGet(t, r, "/api/letters/shared/oldtoken")
	assert.Equal(t, http.StatusGone, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "no longer valid")
}

func TestSharedRevokedTokenReturns410(t *testing.T) {
	store := &fakeTokenStore{byToken: map[string]*models.LetterToken{
		"revoked": {
			Token:     "revoked",
			LetterID:  7,
			ExpiresAt: time.Now().Add(time.Hour),
			IsActive:  false,
		},
	}}
	r := newSharedRouter(store)

	w := doGet(t, r, "/api/letters/shared/revoked")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			"valid paragraph and heading",
			`[{"type":"heading","text":"Dear Amy"},{"type":"paragraph","text":"I miss you."}]`,
			false,
		},
		{
			"valid image",
			`[{"type":"image","url":"https://cdn.dearly.app/p/1.jpg","caption":"us"}]`,
			false,
		},
		{"empty array", `[]`, true},
		{"missing type", `[{"text":"hello"}]`, true},
		{"unknown type", `[{"type":"video"}]`, true},
		{"unknown field", `[{"type":"paragraph","font":"comic sans"}]`, true},
		{"not an array", `{"type":"paragraph"}`, true},
		{"not json", `hello`, true},
		{"empty input", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(json.RawMessage(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// newTestDB opens an in-memory database with the letter tables migrated.
// A single connection keeps the memory database alive for the whole test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Letter{}, &models.Notification{}))
	return db
}

// fakeObjectStore records attachment deletions
type fakeObjectStore struct {
	deleted []string
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestSecurityAnswerMarksReadOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	letter := models.Letter{
		UserID:             7,
		Title:              "For Amy",
		ReceiverEmail:      "amy@example.com",
		ReceiverName:       "Amy",
		Status:             models.LetterStatusUnread,
		SecurityType:       models.SecurityTypeQuiz,
		SecurityQuestion:   "Favorite color?",
		SecurityAnswerHash: security.HashAnswer("blue"),
	}
	require.NoError(t, db.Create(&letter).Error)

	store := &fakeTokenStore{byToken: map[string]*models.LetterToken{
		"tok": {
			Token:     "tok",
			UserID:    7,
			LetterID:  letter.ID,
			ExpiresAt: time.Now().Add(models.TokenValidity),
			IsActive:  true,
		},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(db, tokens.NewService(store), notifications.NewService(db), nil, nil, &config.Config{}, logger, nil)

	r := gin.New()
	r.POST("/api/letters/shared/:token/security", h.ValidateSecurity)

	// The receiver double-submits the correct answer
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/letters/shared/tok/security",
			strings.NewReader(`{"answer":"blue"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["valid"])
	}

	var got models.Letter
	require.NoError(t, db.First(&got, letter.ID).Error)
	assert.Equal(t, models.LetterStatusRead, got.Status)
	assert.NotNil(t, got.ReadAt)

	// Only the winning request notified the owner
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ?", letter.UserID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWrongSecurityAnswerLeavesLetterUnread(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	letter := models.Letter{
		UserID:             7,
		ReceiverEmail:      "amy@example.com",
		Status:             models.LetterStatusUnread,
		SecurityType:       models.SecurityTypeQuiz,
		SecurityQuestion:   "Favorite color?",
		SecurityAnswerHash: security.HashAnswer("blue"),
	}
	require.NoError(t, db.Create(&letter).Error)

	store := &fakeTokenStore{byToken: map[string]*models.LetterToken{
		"tok": {
			Token:     "tok",
			UserID:    7,
			LetterID:  letter.ID,
			ExpiresAt: time.Now().Add(models.TokenValidity),
			IsActive:  true,
		},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(db, tokens.NewService(store), notifications.NewService(db), nil, nil, &config.Config{}, logger, nil)

	r := gin.New()
	r.POST("/api/letters/shared/:token/security", h.ValidateSecurity)

	req := httptest.NewRequest(http.MethodPost, "/api/letters/shared/tok/security",
		strings.NewReader(`{"answer":"green"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var got models.Letter
	require.NoError(t, db.First(&got, letter.ID).Error)
	assert.Equal(t, models.LetterStatusUnread, got.Status)
}

func TestDeleteLetterRemovesAttachmentObjects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	letter := models.Letter{
		UserID:        7,
		ReceiverEmail: "amy@example.com",
		Status:        models.LetterStatusUnread,
		MusicKey:      "music/2026/08/song.mp3",
		VoiceKey:      "voice/2026/08/note.webm",
	}
	require.NoError(t, db.Create(&letter).Error)

	objects := &fakeObjectStore{}
	store := &fakeTokenStore{byToken: map[string]*models.LetterToken{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(db, tokens.NewService(store), notifications.NewService(db), nil, objects, &config.Config{}, logger, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", uint(7)) })
	r.DELETE("/api/letters/:id", h.Delete)

	req := httptest.NewRequest(http.MethodDelete,
		"/api/letters/"+strconv.FormatUint(uint64(letter.ID), 10), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"music/2026/08/song.mp3", "voice/2026/08/note.webm"}, objects.deleted)

	err := db.First(&models.Letter{}, letter.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
