package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/config"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// EpisodeResult - итог эпизода исполнения сигнала
type EpisodeResult struct {
	EpisodeID    string
	State        string // терминальное состояние эпизода
	Attempts     int    // размещённых ордеров
	InitialMid   float64
	InitialPrice float64 // лимит первой попытки
	FinalPrice   float64 // лимит последней попытки
	FilledPrice  float64 // средняя цена исполнения (для FILLED)
	Order        broker.ComboOrder
	Margin       *models.MarginCheckResult
	StartedAt    time.Time
	FinishedAt   time.Time
	Err          error
}

// Executor реализует лестницу лимитных ордеров для одного эпизода.
//
// Лестница стартует от mid комбо и спускается на PriceStep к рынку
// после каждого неисполненного таймаута. Шаг, пробивающий MinComboPrice,
// не размещается: эпизод завершается MID_TOO_LOW. До первого ордера
// выполняется проверка mid против минимума и what-if маржа: отказ на
// этих стадиях завершает эпизод без единого ордера.
type Executor struct {
	broker    broker.Broker
	margin    *MarginValidator
	cfg       config.EngineConfig
	onAttempt func(*models.OrderAttempt) // персистентность попыток, может быть nil
}

// NewExecutor создаёт исполнитель лестницы
func NewExecutor(b broker.Broker, cfg config.EngineConfig, onAttempt func(*models.OrderAttempt)) *Executor {
	return &Executor{
		broker:    b,
		margin:    NewMarginValidator(b, cfg.MarginTimeout),
		cfg:       cfg,
		onAttempt: onAttempt,
	}
}

// Execute проводит эпизод от расчёта цены до терминального состояния.
// Вызывающий обязан держать мьютекс фолловера на всё время вызова.
func (x *Executor) Execute(ctx context.Context, episodeID string, sig *models.Signal, follower *models.FollowerAccount) *EpisodeResult {
	res := &EpisodeResult{
		EpisodeID: episodeID,
		State:     EpisodePricing,
		StartedAt: time.Now(),
	}
	defer func() {
		res.FinishedAt = time.Now()
	}()

	log := utils.Logger.With(
		zap.String("episode_id", episodeID),
		zap.Int("follower_id", follower.ID),
		zap.String("underlying", sig.Underlying),
	)

	// Стадия PRICING
	mid, err := PriceCombo(ctx, x.broker, sig)
	if err != nil {
		log.Error("combo pricing failed", zap.Error(err))
		x.transition(res, EpisodeGatewayUnreachable)
		res.Err = err
		return res
	}
	res.InitialMid = mid

	if mid < x.cfg.MinComboPrice {
		log.Warn("combo mid below minimum, refusing to trade",
			zap.Float64("mid", mid),
			zap.Float64("min_price", x.cfg.MinComboPrice))
		x.transition(res, EpisodeMidTooLow)
		return res
	}

	price := utils.RoundToTick(mid, x.cfg.PriceTick)
	if price < x.cfg.MinComboPrice {
		price = x.cfg.MinComboPrice
	}
	res.InitialPrice = price

	// Стадия MARGIN_CHECK: один what-if на стартовой цене
	x.transition(res, EpisodeMarginCheck)

	order := ComboOrderForSignal(sig, follower.BrokerAccountID, price, x.cfg.PriceTick)
	check, err := x.margin.Validate(ctx, order)
	if err != nil {
		log.Error("margin validation unavailable", zap.Error(err))
		x.transition(res, EpisodeGatewayUnreachable)
		res.Err = err
		return res
	}
	res.Margin = check

	if !check.Approved {
		log.Warn("margin check rejected", zap.String("reason", check.Reason))
		x.transition(res, EpisodeNoMargin)
		return res
	}

	// Лестница лимитных ордеров
	for attempt := 1; attempt <= x.cfg.MaxAttempts; attempt++ {
		order.LimitPrice = price
		res.Order = order
		res.FinalPrice = price
		res.Attempts = attempt

		x.transition(res, EpisodeSubmitted)

		orderID, err := x.broker.PlaceComboOrder(ctx, order)
		if err != nil {
			log.Error("order placement failed",
				zap.Int("attempt", attempt),
				zap.Float64("limit_price", price),
				zap.Error(err))
			x.recordAttempt(res, sig, attempt, price, orderID, models.AttemptOutcomeRejected, err.Error())
			x.transition(res, EpisodeGatewayUnreachable)
			res.Err = err
			return res
		}

		log.Info("limit order placed",
			zap.Int("attempt", attempt),
			zap.Float64("limit_price", price),
			zap.String("order_id", orderID))

		x.transition(res, EpisodeWaiting)

		state, err := x.waitForFill(ctx, orderID)
		if err != nil {
			x.recordAttempt(res, sig, attempt, price, orderID, models.AttemptOutcomeTimeout, err.Error())
			x.transition(res, EpisodeGatewayUnreachable)
			res.Err = err
			return res
		}

		switch state.Status {
		case broker.OrderStatusFilled:
			res.FilledPrice = state.AvgFillPrice
			x.recordAttempt(res, sig, attempt, price, orderID, models.AttemptOutcomeFilled, "")
			x.transition(res, EpisodeFilled)
			log.Info("episode filled",
				zap.Int("attempts", attempt),
				zap.Float64("fill_price", state.AvgFillPrice))
			return res

		case broker.OrderStatusRejected:
			x.recordAttempt(res, sig, attempt, price, orderID, models.AttemptOutcomeRejected, "rejected by broker")
		default:
			// Таймаут попытки, ордер отменён
			x.recordAttempt(res, sig, attempt, price, orderID, models.AttemptOutcomeTimeout, "")
		}

		x.transition(res, EpisodeAdjusting)

		if attempt == x.cfg.MaxAttempts {
			log.Warn("ladder exhausted without fill",
				zap.Int("attempts", attempt),
				zap.Float64("final_price", price))
			x.transition(res, EpisodeLimitReached)
			return res
		}

		next, ok := NextLadderPrice(price, x.cfg.PriceStep, x.cfg.MinComboPrice)
		if !ok {
			log.Warn("ladder reached price floor without fill",
				zap.Int("attempts", attempt),
				zap.Float64("last_price", price),
				zap.Float64("min_price", x.cfg.MinComboPrice))
			x.transition(res, EpisodeMidTooLow)
			return res
		}
		price = next
	}

	// Недостижимо: цикл всегда завершается терминальным состоянием
	x.transition(res, EpisodeLimitReached)
	return res
}

// waitForFill опрашивает статус ордера до исполнения или таймаута попытки.
// По таймауту ордер отменяется; исполнение, успевшее пройти до отмены,
// засчитывается как FILLED.
func (x *Executor) waitForFill(ctx context.Context, orderID string) (*broker.OrderState, error) {
	deadline := time.After(x.cfg.AttemptTimeout)
	ticker := time.NewTicker(x.cfg.FillPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			state, err := x.broker.OrderStatus(ctx, orderID)
			if err != nil {
				return nil, err
			}
			if state.Status == broker.OrderStatusFilled || state.Status == broker.OrderStatusRejected {
				return state, nil
			}

		case <-deadline:
			return x.cancelAndConfirm(ctx, orderID)

		case <-ctx.Done():
			// Эпизод прерван: снимаем ордер, чтобы не оставить его висеть
			cancelCtx, cancel := context.WithTimeout(context.Background(), x.cfg.CloseTimeout)
			state, err := x.cancelAndConfirm(cancelCtx, orderID)
			cancel()
			if err != nil {
				return nil, err
			}
			if state.Status == broker.OrderStatusFilled {
				return state, nil
			}
			return nil, ctx.Err()
		}
	}
}

// cancelAndConfirm отменяет ордер и перечитывает финальный статус.
// Гонка отмены с исполнением разрешается в пользу исполнения.
func (x *Executor) cancelAndConfirm(ctx context.Context, orderID string) (*broker.OrderState, error) {
	if err := x.broker.CancelOrder(ctx, orderID); err != nil {
		return nil, err
	}

	state, err := x.broker.OrderStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// recordAttempt передаёт попытку в персистентность через callback
func (x *Executor) recordAttempt(res *EpisodeResult, sig *models.Signal, attempt int, price float64, orderID, outcome, errMsg string) {
	if x.onAttempt == nil {
		return
	}
	x.onAttempt(&models.OrderAttempt{
		EpisodeID:     res.EpisodeID,
		FollowerID:    sig.FollowerID,
		AttemptIndex:  attempt,
		LimitPrice:    price,
		BrokerOrderID: orderID,
		Outcome:       outcome,
		ErrorMessage:  errMsg,
		SubmittedAt:   time.Now(),
	})
}

// transition переводит эпизод в новое состояние с проверкой допустимости
func (x *Executor) transition(res *EpisodeResult, to string) {
	if !CanTransition(res.State, to) {
		utils.Logger.Error("invalid episode transition",
			zap.String("episode_id", res.EpisodeID),
			zap.String("from", res.State),
			zap.String("to", to))
	}
	res.State = to
}
