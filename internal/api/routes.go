package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/api/handlers"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/api/middleware"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/stream"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	FollowerService service.FollowerServiceInterface
	TradeService    service.TradeServiceInterface
	AlertService    service.AlertServiceInterface
	SignalService   service.SignalServiceInterface
	Hub             *stream.Hub

	// APIToken защищает /api/v1. Пустой токен оставляет API закрытым.
	APIToken string
}

// SetupRoutes настраивает все HTTP маршруты управляющей поверхности
//
// Структура маршрутов:
//
// /api/v1/ (Bearer auth)
//
//	├── /followers/
//	│   ├── GET / - список фолловеров
//	│   ├── POST / - регистрация фолловера
//	│   ├── GET /{id} - фолловер по ID
//	│   ├── PATCH /{id} - обновление (enabled, policy, credentials)
//	│   ├── DELETE /{id} - удаление
//	│   └── POST /{id}/close-all - закрыть все позиции по рынку
//	├── /positions/
//	│   ├── GET / - активные позиции
//	│   ├── GET /{id} - позиция по ID
//	│   └── POST /{id}/close - закрытие по рынку
//	├── /episodes/
//	│   └── GET /{id}/attempts - журнал попыток лестницы
//	├── /alerts/
//	│   ├── GET / - журнал алертов
//	│   └── DELETE / - очистка старых записей
//	└── /signals/
//	    └── POST / - прием сигнала стратегии
//
// /ws/alerts - WebSocket стрим алертов и обновлений позиций
// /healthz - liveness probe (без auth)
// /metrics - Prometheus метрики (без auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только для /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var followerHandler *handlers.FollowerHandler
	if deps != nil && deps.FollowerService != nil && deps.TradeService != nil {
		followerHandler = handlers.NewFollowerHandler(deps.FollowerService, deps.TradeService)
	}

	var positionHandler *handlers.PositionHandler
	if deps != nil && deps.TradeService != nil {
		positionHandler = handlers.NewPositionHandler(deps.TradeService)
	}

	var alertHandler *handlers.AlertHandler
	if deps != nil && deps.AlertService != nil {
		alertHandler = handlers.NewAlertHandler(deps.AlertService)
	}

	var signalHandler *handlers.SignalHandler
	if deps != nil && deps.SignalService != nil {
		signalHandler = handlers.NewSignalHandler(deps.SignalService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	if deps != nil {
		api.Use(middleware.Auth(deps.APIToken))
	}

	// Follower routes
	if followerHandler != nil {
		api.HandleFunc("/followers", followerHandler.GetFollowers).Methods("GET")
		api.HandleFunc("/followers", followerHandler.CreateFollower).Methods("POST")
		api.HandleFunc("/followers/{id}", followerHandler.GetFollower).Methods("GET")
		api.HandleFunc("/followers/{id}", followerHandler.UpdateFollower).Methods("PATCH")
		api.HandleFunc("/followers/{id}", followerHandler.DeleteFollower).Methods("DELETE")
		api.HandleFunc("/followers/{id}/close-all", followerHandler.CloseAllPositions).Methods("POST")
	}

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
		api.HandleFunc("/positions/{id}", positionHandler.GetPosition).Methods("GET")
		api.HandleFunc("/positions/{id}/close", positionHandler.ClosePosition).Methods("POST")
		api.HandleFunc("/episodes/{id}/attempts", positionHandler.GetEpisodeAttempts).Methods("GET")
	}

	// Alert routes
	if alertHandler != nil {
		api.HandleFunc("/alerts", alertHandler.GetAlerts).Methods("GET")
		api.HandleFunc("/alerts", alertHandler.CleanupAlerts).Methods("DELETE")
	}

	// Signal intake
	if signalHandler != nil {
		api.HandleFunc("/signals", signalHandler.SubmitSignal).Methods("POST")
	}

	// WebSocket стрим алертов
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/alerts", func(w http.ResponseWriter, r *http.Request) {
			stream.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return router
}
