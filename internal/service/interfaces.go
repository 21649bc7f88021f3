package service

import (
	"context"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/repository"
)

// FollowerRepositoryInterface определяет интерфейс репозитория фолловеров
type FollowerRepositoryInterface interface {
	Create(f *models.FollowerAccount) error
	GetByID(id int) (*models.FollowerAccount, error)
	GetAll() ([]*models.FollowerAccount, error)
	GetEnabled() ([]*models.FollowerAccount, error)
	Update(f *models.FollowerAccount) error
	SetEnabled(id int, enabled bool) error
	SetLastError(id int, lastError string) error
	Delete(id int) error
}

// PositionRepositoryInterface определяет интерфейс репозитория позиций
type PositionRepositoryInterface interface {
	GetByID(id int) (*models.Position, error)
	GetByEpisodeID(episodeID string) (*models.Position, error)
	GetActive() ([]*models.Position, error)
	GetActiveByFollower(followerID int) ([]*models.Position, error)
	CountActive() (int, error)
}

// AlertRepositoryInterface определяет интерфейс репозитория алертов
type AlertRepositoryInterface interface {
	Create(a *models.AlertEvent) error
	GetRecent(limit int) ([]*models.AlertEvent, error)
	GetByTypes(types []string, limit int) ([]*models.AlertEvent, error)
	GetByFollower(followerID, limit int) ([]*models.AlertEvent, error)
	CountSince(alertType string, since time.Time) (int, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// AssignmentRepositoryInterface определяет интерфейс репозитория ассайнментов
type AssignmentRepositoryInterface interface {
	GetUnresolved() ([]*models.AssignmentEvent, error)
	GetByPosition(positionID int) ([]*models.AssignmentEvent, error)
}

// AttemptRepositoryInterface определяет интерфейс репозитория попыток
type AttemptRepositoryInterface interface {
	GetByEpisode(episodeID string) ([]*models.OrderAttempt, error)
	CountByEpisode(episodeID string) (int, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ FollowerRepositoryInterface = (*repository.FollowerRepository)(nil)
var _ PositionRepositoryInterface = (*repository.PositionRepository)(nil)
var _ AlertRepositoryInterface = (*repository.AlertRepository)(nil)
var _ AssignmentRepositoryInterface = (*repository.AssignmentRepository)(nil)
var _ AttemptRepositoryInterface = (*repository.AttemptRepository)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// FollowerServiceInterface определяет интерфейс сервиса фолловеров
type FollowerServiceInterface interface {
	Register(req *RegisterFollowerRequest) (*models.FollowerAccount, error)
	GetAll() ([]*models.FollowerAccount, error)
	GetByID(id int) (*models.FollowerAccount, error)
	UpdateCredentials(id int, apiKey, apiSecret string) error
	UpdatePolicy(id int, policy string) error
	SetEnabled(id int, enabled bool) error
	Remove(id int) error
	Credentials(id int) (apiKey, apiSecret string, err error)
}

// AlertServiceInterface определяет интерфейс сервиса алертов
type AlertServiceInterface interface {
	GetAlerts(types []string, limit int) ([]*models.AlertEvent, error)
	GetAlertsByFollower(followerID, limit int) ([]*models.AlertEvent, error)
	CleanupOld(olderThan time.Time) (int64, error)
}

// SignalServiceInterface определяет интерфейс приема сигналов
type SignalServiceInterface interface {
	Submit(sig *models.Signal) error
	PendingCount() int
}

// TradeServiceInterface определяет интерфейс сервиса торговых операций
type TradeServiceInterface interface {
	GetActivePositions() ([]*models.Position, error)
	GetPosition(id int) (*models.Position, error)
	GetEpisodeAttempts(episodeID string) ([]*models.OrderAttempt, error)
	ClosePosition(ctx context.Context, positionID int, reason string) error
	CloseAllForFollower(ctx context.Context, followerID int, reason string) error
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ FollowerServiceInterface = (*FollowerService)(nil)
var _ AlertServiceInterface = (*AlertService)(nil)
var _ SignalServiceInterface = (*SignalService)(nil)
var _ TradeServiceInterface = (*TradeService)(nil)
