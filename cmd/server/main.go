package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/api"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/config"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/engine"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/repository"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/stream"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Логгер до всего остального: им пользуются все подсистемы
	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer utils.SyncLogger()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		utils.Logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	utils.Logger.Info("connected to database",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	followerRepo := repository.NewFollowerRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	// WebSocket hub для стрима алертов и обновлений позиций
	hub := stream.NewHub()
	go hub.Run()

	// Сервисы
	alertService := service.NewAlertService(alertRepo)
	alertService.SetStreamHub(hub)

	followerService := service.NewFollowerService(followerRepo, positionRepo, cfg.Security.EncryptionKey)
	signalService := service.NewSignalService()

	// Шлюз брокера
	gateway := broker.NewGateway(broker.GatewayConfig{
		BaseURL:        cfg.Broker.GatewayURL,
		RequestTimeout: cfg.Broker.RequestTimeout,
		RateLimit:      cfg.Broker.RateLimit,
		RateBurst:      cfg.Broker.RateBurst,
	})

	// Торговое ядро
	eng := engine.New(gateway, positionRepo, assignmentRepo, followerRepo,
		attemptRepo, signalService, alertService, cfg.Engine)
	eng.Tracker().SetStreamHub(hub)
	eng.Start()

	tradeService := service.NewTradeService(positionRepo, attemptRepo, eng)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		FollowerService: followerService,
		TradeService:    tradeService,
		AlertService:    alertService,
		SignalService:   signalService,
		Hub:             hub,
		APIToken:        cfg.Security.APIToken,
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		utils.Logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				utils.Logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				utils.Logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown: сначала останавливается прием запросов и ядро,
	// затем стрим и соединения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		utils.Logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Ядро дожидается незавершенных эпизодов
	eng.Stop()

	hub.Stop()

	if err := gateway.Close(); err != nil {
		utils.Logger.Error("gateway close failed", zap.Error(err))
	}

	utils.Logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
