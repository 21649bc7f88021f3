package service

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/engine"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// AlertStreamBroadcaster - интерфейс для отправки алертов в WebSocket стрим.
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type AlertStreamBroadcaster interface {
	BroadcastAlert(alert *models.AlertEvent)
}

// AlertService принимает алерты торгового ядра, персистит их
// и раздаёт подключённым потребителям стрима.
//
// Реализует engine.AlertSink: сбои доставки логируются и учитываются
// метрикой, но никогда не возвращаются в торговый путь.
type AlertService struct {
	alertRepo AlertRepositoryInterface
	wsHub     AlertStreamBroadcaster
}

// NewAlertService создает новый экземпляр AlertService
func NewAlertService(alertRepo AlertRepositoryInterface) *AlertService {
	return &AlertService{alertRepo: alertRepo}
}

// SetStreamHub устанавливает WebSocket hub для broadcast алертов.
//
// Вызывается после инициализации Hub в main.go:
//
//	alertService := service.NewAlertService(alertRepo)
//	alertService.SetStreamHub(hub)
func (s *AlertService) SetStreamHub(hub AlertStreamBroadcaster) {
	s.wsHub = hub
}

// Publish принимает алерт от торгового ядра.
//
// Сначала персистит в БД (алерт получает ID), затем отдаёт в стрим.
// Сбой персистентности не блокирует стрим: событие всё равно уходит
// потребителям, потеря записи фиксируется метрикой.
func (s *AlertService) Publish(alert *models.AlertEvent) {
	if err := s.alertRepo.Create(alert); err != nil {
		engine.AlertDeliveryFailures.WithLabelValues("db").Inc()
		utils.Logger.Error("persist alert failed",
			zap.String("type", alert.Type),
			zap.String("message", alert.Message),
			zap.Error(err))
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastAlert(alert)
	}
}

// GetAlerts возвращает список алертов с фильтрацией по типам.
//
// types - список типов для фильтрации (например: ["ASSIGNMENT", "NO_MARGIN"]),
// пустой список возвращает все типы. Неизвестные типы отбрасываются.
// Алерты отсортированы по времени, новые сверху.
func (s *AlertService) GetAlerts(types []string, limit int) ([]*models.AlertEvent, error) {
	limit = clampLimit(limit)

	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && isValidAlertType(t) {
			normalized = append(normalized, t)
		}
	}

	if len(normalized) > 0 {
		return s.alertRepo.GetByTypes(normalized, limit)
	}
	return s.alertRepo.GetRecent(limit)
}

// GetAlertsByFollower возвращает алерты одного фолловера
func (s *AlertService) GetAlertsByFollower(followerID, limit int) ([]*models.AlertEvent, error) {
	return s.alertRepo.GetByFollower(followerID, clampLimit(limit))
}

// CleanupOld удаляет алерты старше указанного времени
func (s *AlertService) CleanupOld(olderThan time.Time) (int64, error) {
	return s.alertRepo.DeleteOlderThan(olderThan)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// isValidAlertType проверяет, является ли тип допустимым
func isValidAlertType(alertType string) bool {
	switch alertType {
	case models.AlertTypeNoMargin,
		models.AlertTypeMidTooLow,
		models.AlertTypeLimitReached,
		models.AlertTypeGatewayUnreachable,
		models.AlertTypeAssignment,
		models.AlertTypeRiskTierChange,
		models.AlertTypeAutoLiquidation:
		return true
	}
	return false
}
