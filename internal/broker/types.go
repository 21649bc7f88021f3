package broker

import (
	"fmt"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// Contract идентифицирует опционный контракт
type Contract struct {
	Underlying string    `json:"underlying"` // SPX, SPY
	Right      string    `json:"right"`      // CALL, PUT
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
}

// String возвращает человекочитаемый идентификатор контракта
func (c Contract) String() string {
	return fmt.Sprintf("%s %s %s %.2f", c.Underlying, utils.FormatExpiry(c.Expiry), c.Right, c.Strike)
}

// Quote содержит котировку контракта
type Quote struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid возвращает середину спреда bid/ask.
// При пустой стороне котировки возвращается другая сторона.
func (q Quote) Mid() float64 {
	return utils.Mid(q.Bid, q.Ask)
}

// ComboLeg - одна нога комбо-ордера
type ComboLeg struct {
	Contract Contract `json:"contract"`
	Side     string   `json:"side"` // BUY, SELL
	Ratio    int      `json:"ratio"`
}

// Стороны ноги комбо-ордера
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// ComboOrder - многоногий лимитный ордер (вертикальный спред).
// LimitPrice трактуется как net credit: положительная цена означает,
// что продавец спреда получает премию.
type ComboOrder struct {
	AccountID  string     `json:"account_id"`
	Legs       []ComboLeg `json:"legs"`
	Quantity   int        `json:"quantity"`
	LimitPrice float64    `json:"limit_price"`
}

// MarginResult - результат предварительного расчёта маржи (what-if)
type MarginResult struct {
	InitialMargin     float64 `json:"initial_margin"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	AvailableFunds    float64 `json:"available_funds"`
}

// Sufficient сообщает, хватает ли свободных средств под начальную маржу
func (m MarginResult) Sufficient() bool {
	return m.AvailableFunds >= m.InitialMargin
}

// Статусы ордера на стороне шлюза
const (
	OrderStatusSubmitted = "SUBMITTED"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
)

// OrderState - текущее состояние ордера на стороне шлюза
type OrderState struct {
	OrderID      string    `json:"order_id"`
	Status       string    `json:"status"`
	FilledQty    int       `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BrokerPosition - позиция по одному контракту, как её видит брокер.
// Quantity отрицательное для коротких позиций.
type BrokerPosition struct {
	AccountID string   `json:"account_id"`
	Contract  Contract `json:"contract"`
	Quantity  int      `json:"quantity"`
	AvgCost   float64  `json:"avg_cost"`
}

// GatewayError представляет ошибку шлюза брокера
type GatewayError struct {
	Op      string // операция (place_order, what_if_margin, ...)
	Code    int    // HTTP статус или код ошибки шлюза
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s (code %d)", e.Op, e.Message, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: code %d", e.Op, e.Code)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Temporary сообщает, является ли ошибка временной (сетевые сбои,
// 5xx и rate limit retry'ятся, 4xx - нет)
func (e *GatewayError) Temporary() bool {
	if e.Err != nil && e.Code == 0 {
		return true // транспортная ошибка
	}
	return e.Code >= 500 || e.Code == 429
}
