// Package engine реализует торговое ядро: исполнение сигналов
// вертикальных спредов по фолловерам, трекинг позиций, сверку
// ассайнментов и риск-мониторинг временной стоимости.
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

// Engine - оркестратор торгового ядра.
//
// Конкурентная модель: сигналы разных фолловеров исполняются
// параллельно, операции одного фолловера сериализуются его мьютексом.
// Периодические задачи (сверка, риск-свип) работают в собственных
// горутинах и конкурируют за те же мьютексы.
type Engine struct {
	broker    broker.Broker
	executor  *Executor
	tracker   *Tracker
	risk      *RiskMonitor
	followers FollowerStore
	signals   SignalSource
	alerts    *AlertEmitter
	locks     *FollowerLocks
	cfg       config.EngineConfig

	// seen - дедупликация сигналов по Signal.Key(). Ключи старше
	// seenRetention вычищаются при опросе источника.
	seenMu sync.Mutex
	seen   map[string]time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New создаёт движок со всеми подсистемами
func New(b broker.Broker, positions PositionStore, assignments AssignmentStore,
	followers FollowerStore, attempts AttemptStore, signals SignalSource,
	sink AlertSink, cfg config.EngineConfig) *Engine {

	locks := NewFollowerLocks()
	alerts := NewAlertEmitter(sink)

	onAttempt := func(a *models.OrderAttempt) {
		if err := attempts.Create(a); err != nil {
			utils.Logger.Error("persist order attempt failed",
				zap.String("episode_id", a.EpisodeID),
				zap.Int("attempt", a.AttemptIndex),
				zap.Error(err))
		}
	}

	tracker := NewTracker(positions, assignments, followers, b, locks, alerts, cfg)

	return &Engine{
		broker:    b,
		executor:  NewExecutor(b, cfg, onAttempt),
		tracker:   tracker,
		risk:      NewRiskMonitor(positions, b, tracker, alerts, cfg),
		followers: followers,
		signals:   signals,
		alerts:    alerts,
		locks:     locks,
		cfg:       cfg,
		seen:      make(map[string]time.Time),
	}
}

// Tracker возвращает трекер позиций для управляющей поверхности
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Start запускает фоновые циклы движка
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(3)
	go e.signalLoop(ctx)
	go e.reconcileLoop(ctx)
	go func() {
		defer e.wg.Done()
		e.risk.Run(ctx)
	}()

	utils.Logger.Info("engine started",
		zap.Duration("signal_poll", e.cfg.SignalPoll),
		zap.Duration("reconcile_interval", e.cfg.ReconcileInterval),
		zap.Duration("risk_interval", e.cfg.RiskInterval))
}

// Stop останавливает движок, дожидаясь завершения текущих эпизодов
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.alerts.Close()
	utils.Logger.Info("engine stopped")
}

// signalLoop опрашивает источник сигналов
func (e *Engine) signalLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SignalPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.pollSignals(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// seenRetention - срок хранения ключей дедупликации. Идентичность
// сигнала включает issued-at, поэтому повторная доставка старше
// этого окна невозможна.
const seenRetention = 24 * time.Hour

// pollSignals забирает новые сигналы и запускает эпизоды
func (e *Engine) pollSignals(ctx context.Context) {
	e.pruneSeen(time.Now().Add(-seenRetention))

	signals, err := e.signals.Poll(ctx)
	if err != nil {
		utils.Logger.Error("signal poll failed", zap.Error(err))
		return
	}

	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			utils.Logger.Warn("invalid signal dropped",
				zap.Int("follower_id", sig.FollowerID),
				zap.Error(err))
			continue
		}
		if !e.markSeen(sig.Key()) {
			continue
		}

		e.wg.Add(1)
		go func(sig *models.Signal) {
			defer e.wg.Done()
			e.HandleSignal(ctx, sig)
		}(sig)
	}
}

// markSeen регистрирует ключ сигнала; false - сигнал уже обработан
func (e *Engine) markSeen(key string) bool {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()

	if _, ok := e.seen[key]; ok {
		return false
	}
	e.seen[key] = time.Now()
	return true
}

// pruneSeen удаляет ключи дедупликации, зарегистрированные до cutoff
func (e *Engine) pruneSeen(cutoff time.Time) {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()

	for key, at := range e.seen {
		if at.Before(cutoff) {
			delete(e.seen, key)
		}
	}
}

// HandleSignal проводит полный эпизод исполнения сигнала для фолловера.
// Захватывает мьютекс фолловера на всю длительность эпизода.
func (e *Engine) HandleSignal(ctx context.Context, sig *models.Signal) *EpisodeResult {
	follower, err := e.followers.GetByID(sig.FollowerID)
	if err != nil {
		utils.Logger.Error("signal for unknown follower",
			zap.Int("follower_id", sig.FollowerID),
			zap.Error(err))
		return nil
	}
	if !follower.Enabled {
		utils.Logger.Info("signal skipped: follower disabled",
			zap.Int("follower_id", follower.ID))
		return nil
	}

	e.locks.Lock(follower.ID)
	defer e.locks.Unlock(follower.ID)

	episodeID := fmt.Sprintf("ep-%d-%d", follower.ID, time.Now().UnixNano())

	res := e.executor.Execute(ctx, episodeID, sig, follower)
	e.finishEpisode(res, sig, follower)
	return res
}

// finishEpisode записывает метрики, алерт и открывает позицию для FILLED
func (e *Engine) finishEpisode(res *EpisodeResult, sig *models.Signal, follower *models.FollowerAccount) {
	RecordEpisode(res.State, res.Attempts, res.FinishedAt.Sub(res.StartedAt).Seconds())

	if res.State == EpisodeFilled {
		RecordSlippage(res.InitialMid, res.FilledPrice)

		if _, err := e.tracker.OpenFromFill(res, sig); err != nil {
			utils.Logger.Error("opening position after fill failed",
				zap.String("episode_id", res.EpisodeID),
				zap.Error(err))
			_ = e.followers.SetLastError(follower.ID, fmt.Sprintf("episode %s: %v", res.EpisodeID, err))
		}
		return
	}

	// Каждый терминальный отказ порождает ровно один алерт
	alertType := TerminalAlertType(res.State)
	if alertType == "" {
		return
	}

	msg := fmt.Sprintf("episode %s for follower %d ended %s", res.EpisodeID, follower.ID, res.State)
	params := map[string]interface{}{
		"episode_id": res.EpisodeID,
		"underlying": sig.Underlying,
		"attempts":   res.Attempts,
	}
	switch res.State {
	case EpisodeMidTooLow:
		params["mid"] = res.InitialMid
		params["min_price"] = e.cfg.MinComboPrice
	case EpisodeNoMargin:
		if res.Margin != nil {
			params["required"] = res.Margin.InitialMargin
			params["available"] = res.Margin.AvailableFunds
		}
	case EpisodeLimitReached:
		params["initial_price"] = res.InitialPrice
		params["final_price"] = res.FinalPrice
	case EpisodeGatewayUnreachable:
		if res.Err != nil {
			params["error"] = res.Err.Error()
		}
		_ = e.followers.SetLastError(follower.ID, fmt.Sprintf("episode %s: gateway unreachable", res.EpisodeID))
	}

	e.alerts.Emit(alertType, SeverityFor(alertType), &follower.ID, msg, params)
}

// reconcileLoop периодически сверяет позиции с брокером
func (e *Engine) reconcileLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tracker.ReconcileOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ClosePosition закрывает позицию по запросу управляющей поверхности
func (e *Engine) ClosePosition(ctx context.Context, positionID int, reason string) error {
	return e.tracker.RequestClose(ctx, positionID, reason)
}

// CloseAllForFollower закрывает все позиции фолловера.
// Возвращает первую ошибку, продолжая закрывать остальные позиции.
func (e *Engine) CloseAllForFollower(ctx context.Context, followerID int, reason string) error {
	positions, err := e.tracker.positions.GetActiveByFollower(followerID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, p := range positions {
		if err := e.tracker.RequestClose(ctx, p.ID, reason); err != nil && err != ErrCloseInProgress {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
