package engine

import (
	"context"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// Интерфейсы персистентности, требуемые торговым ядром.
// Реализуются репозиториями; в тестах подменяются моками.

// PositionStore - хранилище позиций и ног
type PositionStore interface {
	Create(p *models.Position) error
	GetByID(id int) (*models.Position, error)
	GetActive() ([]*models.Position, error)
	GetActiveByFollower(followerID int) ([]*models.Position, error)
	UpdateState(id int, state string) error
	MarkClosed(id int, closedAt time.Time) error
	SupersedeLeg(legID int, newLeg *models.Leg) error
}

// AssignmentStore - хранилище событий ассайнмента
type AssignmentStore interface {
	Create(e *models.AssignmentEvent) error
	// GetUnresolvedByPosition возвращает самый ранний необработанный
	// ассайнмент позиции, nil если таких нет
	GetUnresolvedByPosition(positionID int) (*models.AssignmentEvent, error)
	Resolve(id int, resolvedAt time.Time) error
}

// FollowerStore - хранилище фолловеров
type FollowerStore interface {
	GetByID(id int) (*models.FollowerAccount, error)
	GetEnabled() ([]*models.FollowerAccount, error)
	SetLastError(id int, lastError string) error
}

// AttemptStore - журнал попыток размещения ордеров
type AttemptStore interface {
	Create(a *models.OrderAttempt) error
}

// SignalSource - источник торговых сигналов мастер-стратегии
type SignalSource interface {
	// Poll возвращает новые сигналы с момента последнего опроса.
	// Дедупликацию по Signal.Key() выполняет движок.
	Poll(ctx context.Context) ([]*models.Signal, error)
}
