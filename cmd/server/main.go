package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/elgen19/dearly-server/internal/accounts"
	"github.com/elgen19/dearly-server/internal/auth"
	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/database"
	"github.com/elgen19/dearly-server/internal/dates"
	"github.com/elgen19/dearly-server/internal/emails"
	"github.com/elgen19/dearly-server/internal/events"
	"github.com/elgen19/dearly-server/internal/games"
	"github.com/elgen19/dearly-server/internal/health"
	"github.com/elgen19/dearly-server/internal/letters"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/notifications"
	"github.com/elgen19/dearly-server/internal/quizzes"
	"github.com/elgen19/dearly-server/internal/storage"
	"github.com/elgen19/dearly-server/internal/tokens"
	"github.com/elgen19/dearly-server/internal/uploads"
	"github.com/elgen19/dearly-server/internal/verification"
	"github.com/elgen19/dearly-server/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close(db) }()

	if err := database.RunMigrations(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if cfg.Env == "development" {
		if err := database.SeedDevData(db); err != nil {
			logger.Warn("failed to seed dev data", "error", err)
		}
	}

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			logger.Error("invalid ENCRYPTION_KEY", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext")
	}

	auth.InitProviders(cfg)

	var store *storage.Client
	if cfg.S3Bucket != "" {
		store, err = storage.New(context.Background(), cfg)
		if err != nil {
			logger.Error("failed to configure object storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("S3_BUCKET not set, audio uploads are disabled")
	}

	publisher, err := events.NewPublisher(cfg.RedisURL)
	if err != nil {
		logger.Warn("read receipt events disabled", "error", err)
		publisher = nil
	} else {
		defer func() { _ = publisher.Close() }()
	}

	provider, err := mailer.New(cfg, logger)
	if err != nil {
		logger.Error("failed to configure email provider", "error", err)
		os.Exit(1)
	}
	sender := mailer.NewLoggingSender(db, provider, logger)
	logger.Info("email provider configured", "provider", sender.Name())

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = worker.CloseClient() }()

	stopWorker, err := worker.Start(cfg, db, sender)
	if err != nil {
		logger.Error("failed to start task worker", "error", err)
		os.Exit(1)
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer stopScheduler()

	deliverer := worker.NewDeliverer(worker.NewGormScheduledEmailStore(db), sender, logger, cfg.EmailSendDelay)

	router := setupRouter(cfg, db, deliverer, store, publisher, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

func setupRouter(cfg *config.Config, db *gorm.DB, deliverer *worker.Deliverer, store *storage.Client, publisher *events.Publisher, logger *slog.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Cron-Secret"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("dearly_session", sessionStore))

	r.GET("/health", gin.WrapF(health.Handler))

	tokenSvc := tokens.NewService(tokens.NewGormStore(db))
	notifySvc := notifications.NewService(db)
	enqueue := worker.EnqueueSendEmail

	// A typed nil *storage.Client must not reach the interface field
	var attachments letters.ObjectDeleter
	if store != nil {
		attachments = store
	}

	lh := letters.NewHandlers(db, tokenSvc, notifySvc, publisher, attachments, cfg, logger, enqueue)
	gh := games.NewHandlers(db, notifySvc, logger, enqueue)
	qh := quizzes.NewHandlers(db, notifySvc, logger, enqueue)
	dh := dates.NewHandlers(db, notifySvc, logger, enqueue)
	eh := emails.NewHandlers(db, deliverer, cfg, logger, enqueue)
	vh := verification.NewHandlers(db, cfg, logger, enqueue)
	uh := uploads.NewHandlers(store, logger)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.GET("/google/login", auth.HandleLogin)
		authGroup.GET("/google/callback", auth.HandleCallback(db, cfg))
		authGroup.POST("/logout", auth.HandleLogout)
		authGroup.GET("/me", auth.RequireAuth(), auth.HandleMe(db))
	}

	// Receiver-facing routes: reached through a share link, no session.
	api.GET("/letters/shared/:token", lh.Shared)
	api.POST("/letters/shared/:token/security", lh.ValidateSecurity)
	api.GET("/games/letter/:letterId", gh.ListByLetter)
	api.POST("/games/:id/complete", gh.Complete)
	api.GET("/quizzes/letter/:letterId", qh.ListByLetter)
	api.POST("/quizzes/:id/submit", qh.Submit)
	api.GET("/date-invitations/letter/:letterId", dh.ListByLetter)
	api.POST("/date-invitations/:id/respond", dh.Respond)
	api.POST("/receiver-accounts/register", accounts.RegisterHandler(db))
	api.GET("/receiver-accounts/:email/letters", accounts.LettersHandler(db))
	api.POST("/email-verification/send", vh.Send)
	api.POST("/email-verification/confirm", vh.Confirm)
	api.GET("/uploads/audio/*key", uh.StreamAudio)
	api.GET("/cron/scheduled-emails", eh.CronTrigger)

	authed := api.Group("", auth.RequireAuth())
	{
		authed.POST("/letters", lh.Create)
		authed.GET("/letters", lh.List)
		authed.GET("/letters/:id", lh.Get)
		authed.PUT("/letters/:id", lh.Update)
		authed.DELETE("/letters/:id", lh.Delete)
		authed.POST("/letters/:id/regenerate-token", lh.RegenerateToken)

		authed.POST("/games", gh.Create)
		authed.PUT("/games/:id", gh.Update)
		authed.DELETE("/games/:id", gh.Delete)

		authed.POST("/quizzes", qh.Create)
		authed.PUT("/quizzes/:id", qh.Update)
		authed.DELETE("/quizzes/:id", qh.Delete)

		authed.POST("/date-invitations", dh.Create)
		authed.PUT("/date-invitations/:id", dh.Update)
		authed.DELETE("/date-invitations/:id", dh.Delete)

		authed.GET("/notifications", notifications.ListHandler(notifySvc))
		authed.GET("/notifications/unread-count", notifications.UnreadCountHandler(notifySvc))
		authed.POST("/notifications/:id/read", notifications.MarkReadHandler(notifySvc))
		authed.POST("/notifications/read-all", notifications.MarkAllReadHandler(notifySvc))
		authed.DELETE("/notifications/:id", notifications.DeleteHandler(notifySvc))
		authed.DELETE("/notifications", notifications.ClearHandler(notifySvc))

		authed.POST("/email/send", eh.Send)
		authed.POST("/email/schedule", eh.Schedule)
		authed.GET("/email/scheduled", eh.ListScheduled)
		authed.DELETE("/email/scheduled/:id", eh.CancelScheduled)
		authed.POST("/email/scheduled/:id/resend", eh.ResendFailed)

		authed.POST("/uploads/music/presign", uh.PresignMusic)
		authed.POST("/uploads/voice/presign", uh.PresignVoice)
	}

	return r
}
