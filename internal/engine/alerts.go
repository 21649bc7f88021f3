package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// AlertSink получает алерты для доставки (персистентность, стрим).
// Сбой доставки не должен влиять на торговый путь: sink обязан
// поглощать свои ошибки.
type AlertSink interface {
	Publish(alert *models.AlertEvent)
}

// alertBufferSize - ёмкость буфера канала алертов.
// При переполнении алерт отбрасывается с инкрементом метрики,
// торговый путь никогда не блокируется на эмиссии.
const alertBufferSize = 256

// AlertEmitter - асинхронная доставка алертов из торгового ядра в sink
type AlertEmitter struct {
	sink   AlertSink
	ch     chan *models.AlertEvent
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewAlertEmitter создаёт эмиттер и запускает воркер доставки
func NewAlertEmitter(sink AlertSink) *AlertEmitter {
	ctx, cancel := context.WithCancel(context.Background())

	e := &AlertEmitter{
		sink:   sink,
		ch:     make(chan *models.AlertEvent, alertBufferSize),
		cancel: cancel,
	}

	e.wg.Add(1)
	go e.run(ctx)

	return e
}

// Emit публикует алерт. Неблокирующая: при переполнении буфера
// алерт теряется, факт потери фиксируется метрикой.
func (e *AlertEmitter) Emit(alertType, severity string, followerID *int, message string, params map[string]interface{}) {
	alert := &models.AlertEvent{
		Timestamp:  time.Now(),
		Type:       alertType,
		Severity:   severity,
		FollowerID: followerID,
		Message:    message,
		Params:     params,
	}

	select {
	case e.ch <- alert:
		RecordAlert(alertType)
	default:
		RecordBufferOverflow("alerts")
		utils.Logger.Warn("alert buffer overflow, alert dropped",
			zap.String("type", alertType),
			zap.String("message", message))
	}
}

// Close останавливает воркер, доставив уже принятые алерты
func (e *AlertEmitter) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *AlertEmitter) run(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case alert := <-e.ch:
			e.sink.Publish(alert)
		case <-ctx.Done():
			// Дренаж буфера перед выходом
			for {
				select {
				case alert := <-e.ch:
					e.sink.Publish(alert)
				default:
					return
				}
			}
		}
	}
}

// SeverityFor возвращает серьёзность для типа алерта
func SeverityFor(alertType string) string {
	switch alertType {
	case models.AlertTypeNoMargin, models.AlertTypeGatewayUnreachable, models.AlertTypeAutoLiquidation:
		return models.SeverityError
	case models.AlertTypeMidTooLow, models.AlertTypeLimitReached, models.AlertTypeAssignment:
		return models.SeverityWarn
	default:
		return models.SeverityInfo
	}
}
