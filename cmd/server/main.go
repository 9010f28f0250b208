package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/adaptive-escrow/escrow-backend/internal/ai"
	"github.com/adaptive-escrow/escrow-backend/internal/config"
	"github.com/adaptive-escrow/escrow-backend/internal/db"
	"github.com/adaptive-escrow/escrow-backend/internal/goroutine"
	httpHandlers "github.com/adaptive-escrow/escrow-backend/internal/http/handlers"
	httpRouter "github.com/adaptive-escrow/escrow-backend/internal/http/router"
	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/repository"
	"github.com/adaptive-escrow/escrow-backend/internal/service"
	"github.com/adaptive-escrow/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	statsRepo := repository.NewStatsRepository(dbConn)
	suggestionRepo := repository.NewSuggestionRepository(dbConn)
	analyticsRepo := repository.NewAnalyticsRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGo(hub.Run)

	// Сервисы.
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	statsService := service.NewStatsService(escrowRepo, statsRepo)
	escrowService := service.NewEscrowService(escrowRepo, userRepo, statsService, hub)
	suggestionService := service.NewSuggestionService(aiClient, suggestionRepo, escrowRepo, userRepo, statsService, hub)
	profileService := service.NewProfileService(userRepo, statsService, statsService)
	analyticsService := service.NewAnalyticsService(analyticsRepo, userRepo, statsService)

	// HTTP хэндлеры.
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	aiHandler := httpHandlers.NewAIHandler(suggestionService)
	userHandler := httpHandlers.NewUserHandler(profileService, analyticsService)
	analyticsHandler := httpHandlers.NewAnalyticsHandler(analyticsService)
	wsHandler := httpHandlers.NewWSHandler(hub)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, escrowHandler, aiHandler, userHandler, analyticsHandler, wsHandler, healthHandler)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
