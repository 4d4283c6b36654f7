package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/linkgate/internal/config"
	"github.com/SergeiKhy/linkgate/internal/handler"
	"github.com/SergeiKhy/linkgate/internal/middleware"
	"github.com/SergeiKhy/linkgate/internal/repository"
	"github.com/SergeiKhy/linkgate/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Миграции схемы до старта сервера
	if err := repository.Migrate(repository.DSN(cfg.DB)); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Migrations applied")

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	clickRepo := repository.NewClickRepository(db)

	// Инициализация сервисов
	linkService := service.NewLinkService(linkRepo, cacheRepo, logger, cfg.App.BcryptCost)
	recorder := service.NewClickRecorder(clickRepo, logger)

	// Лимитер попыток разблокировки защищённых ссылок
	unlockLimiter := middleware.NewUnlockLimiter(middleware.UnlockLimiterConfig{
		AttemptsPerSecond: cfg.Unlock.AttemptsPerSecond,
		BurstSize:         cfg.Unlock.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer unlockLimiter.Stop()

	var ownerAuth gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		ownerAuth = middleware.RequireOwner(cfg.Auth.APIKeys)
		logger.Info("Owner authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(linkService, recorder, unlockLimiter, ownerAuth, cfg.App.BaseURL, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
