package service

import (
	"context"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// EngineControl - управляющая поверхность торгового ядра.
// Реализуется engine.Engine; интерфейс разрывает зависимость
// service -> engine в тестах.
type EngineControl interface {
	ClosePosition(ctx context.Context, positionID int, reason string) error
	CloseAllForFollower(ctx context.Context, followerID int, reason string) error
}

// TradeService - операции чтения и ручного управления позициями.
//
// Все мутации позиций идут через торговое ядро: сервис не трогает
// репозиторий позиций на запись.
type TradeService struct {
	positionRepo PositionRepositoryInterface
	attemptRepo  AttemptRepositoryInterface
	engine       EngineControl
}

// NewTradeService создает новый экземпляр сервиса
func NewTradeService(
	positionRepo PositionRepositoryInterface,
	attemptRepo AttemptRepositoryInterface,
	eng EngineControl,
) *TradeService {
	return &TradeService{
		positionRepo: positionRepo,
		attemptRepo:  attemptRepo,
		engine:       eng,
	}
}

// GetActivePositions возвращает все незакрытые позиции
func (s *TradeService) GetActivePositions() ([]*models.Position, error) {
	return s.positionRepo.GetActive()
}

// GetPosition возвращает позицию по ID
func (s *TradeService) GetPosition(id int) (*models.Position, error) {
	return s.positionRepo.GetByID(id)
}

// GetEpisodeAttempts возвращает журнал попыток эпизода
func (s *TradeService) GetEpisodeAttempts(episodeID string) ([]*models.OrderAttempt, error) {
	return s.attemptRepo.GetByEpisode(episodeID)
}

// ClosePosition инициирует закрытие позиции по рынку
func (s *TradeService) ClosePosition(ctx context.Context, positionID int, reason string) error {
	return s.engine.ClosePosition(ctx, positionID, reason)
}

// CloseAllForFollower закрывает все позиции фолловера
func (s *TradeService) CloseAllForFollower(ctx context.Context, followerID int, reason string) error {
	return s.engine.CloseAllForFollower(ctx, followerID, reason)
}
