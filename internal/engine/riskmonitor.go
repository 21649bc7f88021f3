package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/config"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// Риск-уровни позиции по временной стоимости короткой ноги
const (
	TierSafe     = "SAFE"     // tv > upper
	TierRisk     = "RISK"     // lower < tv <= upper
	TierCritical = "CRITICAL" // tv <= lower
)

// TierFor возвращает риск-уровень для временной стоимости
func TierFor(timeValue, upper, lower float64) string {
	switch {
	case timeValue > upper:
		return TierSafe
	case timeValue > lower:
		return TierRisk
	default:
		return TierCritical
	}
}

// RiskMonitor периодически оценивает временную стоимость коротких ног
// открытых позиций и инициирует автоликвидацию при входе в CRITICAL.
//
// Таяние временной стоимости проданного опциона к нулю означает рост
// вероятности раннего ассайнмента: держать такую позицию дороже,
// чем закрыть её немедленно.
type RiskMonitor struct {
	positions PositionStore
	broker    broker.Broker
	tracker   *Tracker
	alerts    *AlertEmitter
	cfg       config.EngineConfig

	// lastTiers хранит последний известный уровень по ID позиции.
	// Уровень состояния монитора, не персистентный: после рестарта
	// первый свип заново публикует текущие уровни.
	mu        sync.Mutex
	lastTiers map[int]string
}

// NewRiskMonitor создаёт риск-монитор
func NewRiskMonitor(positions PositionStore, b broker.Broker, tracker *Tracker,
	alerts *AlertEmitter, cfg config.EngineConfig) *RiskMonitor {
	return &RiskMonitor{
		positions: positions,
		broker:    b,
		tracker:   tracker,
		alerts:    alerts,
		cfg:       cfg,
		lastTiers: make(map[int]string),
	}
}

// Run запускает периодический свип до отмены контекста
func (m *RiskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RiskInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce оценивает все открытые позиции один раз
func (m *RiskMonitor) SweepOnce(ctx context.Context) {
	positions, err := m.positions.GetActive()
	if err != nil {
		utils.Logger.Error("risk sweep: load positions failed", zap.Error(err))
		return
	}

	counts := map[string]int{}
	seen := make(map[int]bool, len(positions))

	for _, p := range positions {
		// Позиции в процессе закрытия не оцениваются
		if p.State == models.PositionStateClosing || p.State == models.PositionStateClosed {
			continue
		}
		seen[p.ID] = true

		tier, err := m.evaluatePosition(ctx, p)
		if err != nil {
			utils.Logger.Warn("risk evaluation failed",
				zap.Int("position_id", p.ID),
				zap.Error(err))
			continue
		}
		counts[tier]++
	}

	// Забываем закрытые позиции
	m.mu.Lock()
	for id := range m.lastTiers {
		if !seen[id] {
			delete(m.lastTiers, id)
		}
	}
	m.mu.Unlock()

	UpdateRiskTiers(counts)
}

// evaluatePosition вычисляет уровень позиции и реагирует на переходы
func (m *RiskMonitor) evaluatePosition(ctx context.Context, p *models.Position) (string, error) {
	shortLeg := p.ShortLeg()
	if shortLeg == nil {
		return TierSafe, nil
	}

	// Экспирировавшую ногу не оцениваем: ликвидировать нечего,
	// остаток разбирает сверка позиций
	if utils.IsExpired(shortLeg.Expiry, time.Now()) {
		return TierSafe, nil
	}

	tv, err := m.shortLegTimeValue(ctx, p, shortLeg)
	if err != nil {
		return "", err
	}

	tier := TierFor(tv, m.cfg.TimeValueUpper, m.cfg.TimeValueLower)

	m.mu.Lock()
	prev, known := m.lastTiers[p.ID]
	m.lastTiers[p.ID] = tier
	m.mu.Unlock()

	if known && prev != tier {
		m.alerts.Emit(models.AlertTypeRiskTierChange, SeverityFor(models.AlertTypeRiskTierChange), &p.FollowerID,
			fmt.Sprintf("position %d risk tier changed %s -> %s (time value %.3f)", p.ID, prev, tier, tv),
			map[string]interface{}{
				"position_id": p.ID,
				"from":        prev,
				"to":          tier,
				"time_value":  tv,
			})

		utils.Logger.Info("risk tier changed",
			zap.Int("position_id", p.ID),
			zap.String("from", prev),
			zap.String("to", tier),
			zap.Float64("time_value", tv))
	}

	// Автоликвидация только на переходе в CRITICAL, не на каждом свипе
	if tier == TierCritical && (!known || prev != TierCritical) {
		m.liquidate(ctx, p, tv)
	}

	return tier, nil
}

// shortLegTimeValue возвращает временную стоимость короткой ноги:
// рыночная цена опциона минус внутренняя стоимость
func (m *RiskMonitor) shortLegTimeValue(ctx context.Context, p *models.Position, leg *models.Leg) (float64, error) {
	optQuote, err := m.broker.GetQuote(ctx, contractForLeg(p.Underlying, leg))
	if err != nil {
		return 0, fmt.Errorf("option quote: %w", err)
	}

	underQuote, err := m.broker.GetUnderlyingQuote(ctx, p.Underlying)
	if err != nil {
		return 0, fmt.Errorf("underlying quote: %w", err)
	}

	intrinsic := Intrinsic(leg.Right, leg.Strike, underQuote.Mid())
	return TimeValue(optQuote.Mid(), intrinsic), nil
}

// liquidate инициирует принудительное закрытие позиции
func (m *RiskMonitor) liquidate(ctx context.Context, p *models.Position, tv float64) {
	utils.Logger.Warn("critical tier reached, liquidating position",
		zap.Int("position_id", p.ID),
		zap.Float64("time_value", tv))

	if err := m.tracker.RequestClose(ctx, p.ID, "risk tier CRITICAL"); err != nil {
		// Уже идущее закрытие не считается сбоем ликвидации
		if err == ErrCloseInProgress {
			return
		}
		utils.Logger.Error("auto liquidation failed",
			zap.Int("position_id", p.ID),
			zap.Error(err))

		// Позиция осталась открытой: уровень сбрасывается, чтобы
		// следующий свип повторил ликвидацию
		m.mu.Lock()
		delete(m.lastTiers, p.ID)
		m.mu.Unlock()

		m.alerts.Emit(models.AlertTypeGatewayUnreachable, SeverityFor(models.AlertTypeGatewayUnreachable), &p.FollowerID,
			fmt.Sprintf("auto liquidation of position %d failed: %v", p.ID, err),
			map[string]interface{}{
				"position_id": p.ID,
				"time_value":  tv,
				"error":       err.Error(),
			})
		return
	}

	AutoLiquidations.Inc()
	m.alerts.Emit(models.AlertTypeAutoLiquidation, SeverityFor(models.AlertTypeAutoLiquidation), &p.FollowerID,
		fmt.Sprintf("position %d force-closed: time value %.3f at or below critical threshold %.3f",
			p.ID, tv, m.cfg.TimeValueLower),
		map[string]interface{}{
			"position_id": p.ID,
			"time_value":  tv,
			"threshold":   m.cfg.TimeValueLower,
		})
}
