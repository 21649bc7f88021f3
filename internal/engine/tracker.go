package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/config"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/retry"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// Ошибки трекера
var (
	ErrCloseInProgress = errors.New("position close already in progress")
)

// PositionBroadcaster - получатель обновлений позиций (WebSocket стрим)
type PositionBroadcaster interface {
	BroadcastPositionUpdate(p *models.Position)
}

// Tracker - единственный владелец lifecycle позиций.
//
// Исполнитель, риск-монитор и управляющая поверхность меняют позиции
// только через методы трекера. Все мутации для одного фолловера
// выполняются под его мьютексом.
type Tracker struct {
	positions   PositionStore
	assignments AssignmentStore
	followers   FollowerStore
	broker      broker.Broker
	locks       *FollowerLocks
	alerts      *AlertEmitter
	stream      PositionBroadcaster
	cfg         config.EngineConfig
}

// NewTracker создаёт трекер позиций
func NewTracker(positions PositionStore, assignments AssignmentStore, followers FollowerStore,
	b broker.Broker, locks *FollowerLocks, alerts *AlertEmitter, cfg config.EngineConfig) *Tracker {
	return &Tracker{
		positions:   positions,
		assignments: assignments,
		followers:   followers,
		broker:      b,
		locks:       locks,
		alerts:      alerts,
		cfg:         cfg,
	}
}

// SetStreamHub устанавливает WebSocket hub для стрима обновлений позиций.
// Вызывается при старте до запуска движка, до вызова стрим отключен.
func (t *Tracker) SetStreamHub(hub PositionBroadcaster) {
	t.stream = hub
}

// notifyUpdate отправляет актуальное состояние позиции в стрим
func (t *Tracker) notifyUpdate(positionID int) {
	if t.stream == nil {
		return
	}
	p, err := t.positions.GetByID(positionID)
	if err != nil {
		return
	}
	t.stream.BroadcastPositionUpdate(p)
}

// OpenFromFill создаёт позицию по исполненному эпизоду.
// Цена входа фиксируется как net credit комбо на короткой ноге.
func (t *Tracker) OpenFromFill(res *EpisodeResult, sig *models.Signal) (*models.Position, error) {
	p := &models.Position{
		FollowerID: sig.FollowerID,
		EpisodeID:  res.EpisodeID,
		Underlying: sig.Underlying,
		State:      models.PositionStateOpen,
		Legs: []models.Leg{
			{
				Right:      sig.Right(),
				Strike:     sig.ShortStrike,
				Expiry:     sig.Expiry,
				Side:       models.SideShort,
				Quantity:   sig.Quantity,
				EntryPrice: res.FilledPrice,
			},
			{
				Right:      sig.Right(),
				Strike:     sig.LongStrike,
				Expiry:     sig.Expiry,
				Side:       models.SideLong,
				Quantity:   sig.Quantity,
				EntryPrice: 0,
			},
		},
	}

	if err := t.positions.Create(p); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}

	utils.Logger.Info("position opened",
		zap.Int("position_id", p.ID),
		zap.Int("follower_id", p.FollowerID),
		zap.String("episode_id", p.EpisodeID),
		zap.Float64("net_credit", res.FilledPrice))

	if t.stream != nil {
		t.stream.BroadcastPositionUpdate(p)
	}

	return p, nil
}

// RequestClose закрывает позицию рыночными ордерами по обеим ногам.
//
// Идемпотентна: повторный вызов для CLOSED позиции - no-op без ошибки,
// для CLOSING возвращает ErrCloseInProgress. При сбое закрытия позиция
// откатывается из CLOSING в прежнее состояние.
func (t *Tracker) RequestClose(ctx context.Context, positionID int, reason string) error {
	p, err := t.positions.GetByID(positionID)
	if err != nil {
		return err
	}

	t.locks.Lock(p.FollowerID)
	defer t.locks.Unlock(p.FollowerID)

	// Перечитываем под мьютексом: состояние могло измениться
	p, err = t.positions.GetByID(positionID)
	if err != nil {
		return err
	}

	switch p.State {
	case models.PositionStateClosed:
		return nil
	case models.PositionStateClosing:
		return ErrCloseInProgress
	}

	prevState := p.State
	if err := t.positions.UpdateState(p.ID, models.PositionStateClosing); err != nil {
		return err
	}

	log := utils.Logger.With(
		zap.Int("position_id", p.ID),
		zap.Int("follower_id", p.FollowerID),
		zap.String("reason", reason))
	log.Info("closing position")

	follower, err := t.followers.GetByID(p.FollowerID)
	if err != nil {
		t.rollbackClosing(p.ID, prevState)
		return err
	}

	if err := t.closeLegs(ctx, follower.BrokerAccountID, p); err != nil {
		log.Error("position close failed, rolling back", zap.Error(err))
		t.rollbackClosing(p.ID, prevState)
		_ = t.followers.SetLastError(p.FollowerID, fmt.Sprintf("close position %d: %v", p.ID, err))
		return err
	}

	if err := t.positions.MarkClosed(p.ID, time.Now()); err != nil {
		return err
	}

	log.Info("position closed")
	t.notifyUpdate(p.ID)
	return nil
}

// closeLegs закрывает все активные ноги рыночными ордерами.
// Каждая нога закрывается с агрессивным retry: закрытие критично.
func (t *Tracker) closeLegs(ctx context.Context, accountID string, p *models.Position) error {
	cfg := retry.AggressiveConfig()
	cfg.MaxRetries = t.cfg.MaxCloseRetries
	cfg.RetryIf = retry.IsRetryable

	for _, leg := range p.Legs {
		if leg.Quantity == 0 {
			continue
		}
		contract := contractForLeg(p.Underlying, &leg)

		err := retry.Do(ctx, func() error {
			closeCtx, cancel := context.WithTimeout(ctx, t.cfg.CloseTimeout)
			defer cancel()
			_, err := t.broker.PlaceMarketClose(closeCtx, accountID, contract, leg.Quantity)
			return err
		}, cfg)

		if err != nil {
			return fmt.Errorf("close leg %s: %w", contract, err)
		}
	}
	return nil
}

// rollbackClosing возвращает позицию из CLOSING в прежнее состояние
func (t *Tracker) rollbackClosing(positionID int, prevState string) {
	if !models.CanTransitionPosition(models.PositionStateClosing, prevState) {
		prevState = models.PositionStateOpen
	}
	if err := t.positions.UpdateState(positionID, prevState); err != nil {
		utils.Logger.Error("rollback of closing state failed",
			zap.Int("position_id", positionID),
			zap.Error(err))
	}
}

// ReconcileOnce сверяет позиции с брокером и обрабатывает ассайнменты.
//
// Ассайнмент обнаруживается по недостаче короткой ноги: брокер
// сообщает меньше контрактов, чем числится в позиции. Длинная нога
// ребалансируется на ту же величину согласно политике фолловера.
func (t *Tracker) ReconcileOnce(ctx context.Context) {
	positions, err := t.positions.GetActive()
	if err != nil {
		utils.Logger.Error("reconcile: load positions failed", zap.Error(err))
		return
	}

	for _, p := range positions {
		if p.State == models.PositionStateClosing || p.State == models.PositionStateClosed {
			continue
		}
		if err := t.reconcilePosition(ctx, p); err != nil {
			utils.Logger.Error("reconcile position failed",
				zap.Int("position_id", p.ID),
				zap.Error(err))
		}
	}
}

func (t *Tracker) reconcilePosition(ctx context.Context, p *models.Position) error {
	t.locks.Lock(p.FollowerID)
	defer t.locks.Unlock(p.FollowerID)

	// Перечитываем под мьютексом
	p, err := t.positions.GetByID(p.ID)
	if err != nil {
		return err
	}
	if p.State == models.PositionStateClosing || p.State == models.PositionStateClosed {
		return nil
	}

	shortLeg := p.ShortLeg()
	if shortLeg == nil {
		return nil
	}

	follower, err := t.followers.GetByID(p.FollowerID)
	if err != nil {
		return err
	}

	brokerPositions, err := t.broker.Positions(ctx, follower.BrokerAccountID)
	if err != nil {
		return fmt.Errorf("broker positions: %w", err)
	}

	reported := reportedShortQty(brokerPositions, p.Underlying, shortLeg)
	if reported >= shortLeg.Quantity {
		return nil
	}

	// Недостача короткой ноги - ассайнмент
	assignedQty := shortLeg.Quantity - reported

	// Нерешённое событие прошлого свипа означает незавершённую
	// ребалансировку: она повторяется без нового события и алерта
	event, err := t.assignments.GetUnresolvedByPosition(p.ID)
	if err != nil {
		return fmt.Errorf("load unresolved assignment: %w", err)
	}
	if event == nil {
		event = &models.AssignmentEvent{
			PositionID:  p.ID,
			LegID:       shortLeg.ID,
			ExpectedQty: shortLeg.Quantity,
			ReportedQty: reported,
			DetectedAt:  time.Now(),
		}
		if err := t.assignments.Create(event); err != nil {
			return fmt.Errorf("persist assignment: %w", err)
		}

		AssignmentsDetected.Inc()
		t.alerts.Emit(models.AlertTypeAssignment, SeverityFor(models.AlertTypeAssignment), &p.FollowerID,
			fmt.Sprintf("short leg assignment detected on position %d: %d of %d contracts assigned",
				p.ID, assignedQty, shortLeg.Quantity),
			map[string]interface{}{
				"position_id":  p.ID,
				"assigned_qty": assignedQty,
				"expected_qty": shortLeg.Quantity,
				"reported_qty": reported,
			})

		utils.Logger.Warn("assignment detected",
			zap.Int("position_id", p.ID),
			zap.Int("assigned_qty", assignedQty),
			zap.String("rebalance_policy", follower.RebalancePolicy))
	}

	if p.State == models.PositionStateOpen {
		if err := t.positions.UpdateState(p.ID, models.PositionStateAssigned); err != nil {
			return err
		}
	}

	// Ребалансировка длинной ноги на величину ассайнмента
	if longLeg := p.LongLeg(); longLeg != nil {
		qty := assignedQty
		if qty > longLeg.Quantity {
			qty = longLeg.Quantity
		}
		if err := t.rebalanceLongLeg(ctx, follower, p.Underlying, longLeg, qty); err != nil {
			// Событие остаётся нерешённым: следующий свип повторит
			// ребалансировку
			t.alerts.Emit(models.AlertTypeGatewayUnreachable, SeverityFor(models.AlertTypeGatewayUnreachable), &p.FollowerID,
				fmt.Sprintf("rebalance of long leg failed on position %d: %v", p.ID, err),
				map[string]interface{}{
					"position_id":   p.ID,
					"assignment_id": event.ID,
					"qty":           qty,
					"error":         err.Error(),
				})
			return fmt.Errorf("rebalance long leg: %w", err)
		}
	}

	// Ноги заменяются записями с фактическими количествами
	if err := t.supersedeAfterAssignment(p, shortLeg, reported); err != nil {
		return err
	}

	if err := t.assignments.Resolve(event.ID, time.Now()); err != nil {
		return err
	}

	t.notifyUpdate(p.ID)
	return nil
}

// rebalanceLongLeg закрывает или исполняет qty контрактов длинной ноги
// согласно политике фолловера
func (t *Tracker) rebalanceLongLeg(ctx context.Context, follower *models.FollowerAccount, underlying string, leg *models.Leg, qty int) error {
	if qty <= 0 {
		return nil
	}
	contract := contractForLeg(underlying, leg)

	cfg := retry.AggressiveConfig()
	cfg.MaxRetries = t.cfg.MaxCloseRetries
	cfg.RetryIf = retry.IsRetryable

	return retry.Do(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, t.cfg.CloseTimeout)
		defer cancel()

		if follower.RebalancePolicy == models.RebalanceExercise {
			return t.broker.ExerciseOption(opCtx, follower.BrokerAccountID, contract, qty)
		}
		_, err := t.broker.PlaceMarketClose(opCtx, follower.BrokerAccountID, contract, qty)
		return err
	}, cfg)
}

// supersedeAfterAssignment заменяет ноги записями с фактическими
// количествами после ассайнмента и ребалансировки
func (t *Tracker) supersedeAfterAssignment(p *models.Position, shortLeg *models.Leg, reported int) error {
	var newShort *models.Leg
	if reported > 0 {
		leg := *shortLeg
		leg.ID = 0
		leg.Quantity = reported
		newShort = &leg
	}
	if err := t.positions.SupersedeLeg(shortLeg.ID, newShort); err != nil {
		return err
	}

	longLeg := p.LongLeg()
	if longLeg == nil {
		return nil
	}

	var newLong *models.Leg
	remaining := longLeg.Quantity - (shortLeg.Quantity - reported)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 0 {
		leg := *longLeg
		leg.ID = 0
		leg.Quantity = remaining
		newLong = &leg
	}
	return t.positions.SupersedeLeg(longLeg.ID, newLong)
}

// contractForLeg строит брокерский контракт по ноге позиции
func contractForLeg(underlying string, leg *models.Leg) broker.Contract {
	return broker.Contract{
		Underlying: underlying,
		Right:      leg.Right,
		Strike:     leg.Strike,
		Expiry:     leg.Expiry,
	}
}

// reportedShortQty возвращает абсолютное количество контрактов короткой
// ноги по данным брокера
func reportedShortQty(brokerPositions []broker.BrokerPosition, underlying string, leg *models.Leg) int {
	for _, bp := range brokerPositions {
		if bp.Contract.Underlying == underlying &&
			bp.Contract.Right == leg.Right &&
			bp.Contract.Strike == leg.Strike &&
			bp.Contract.Expiry.Equal(leg.Expiry) &&
			bp.Quantity < 0 {
			return -bp.Quantity
		}
	}
	return 0
}
