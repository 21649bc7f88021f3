package models

import (
	"fmt"
	"time"
)

// Signal представляет валидированный торговый сигнал от источника стратегии.
//
// Сигнал неизменяем после принятия. Уникальность определяется парой
// (follower_id, issued_at) — это позволяет идемпотентно переобрабатывать
// один и тот же сигнал без дублирования ордеров.
type Signal struct {
	StrategyKind string    `json:"strategy_kind" db:"strategy_kind"` // BULL_PUT, BEAR_CALL
	Underlying   string    `json:"underlying" db:"underlying"`       // SPX, SPY
	ShortStrike  float64   `json:"short_strike" db:"short_strike"`   // страйк продаваемой ноги
	LongStrike   float64   `json:"long_strike" db:"long_strike"`     // страйк защитной ноги
	Expiry       time.Time `json:"expiry" db:"expiry"`
	Quantity     int       `json:"quantity" db:"quantity"` // контрактов на ногу
	FollowerID   int       `json:"follower_id" db:"follower_id"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
}

// Виды стратегий (вертикальные спреды)
const (
	StrategyBullPut  = "BULL_PUT"  // short put + long put ниже
	StrategyBearCall = "BEAR_CALL" // short call + long call выше
)

// Key возвращает уникальный ключ сигнала для дедупликации
func (s *Signal) Key() string {
	return fmt.Sprintf("%d:%d", s.FollowerID, s.IssuedAt.UnixNano())
}

// Right возвращает право опциона для вида стратегии
func (s *Signal) Right() string {
	if s.StrategyKind == StrategyBearCall {
		return RightCall
	}
	return RightPut
}

// Validate проверяет внутреннюю согласованность сигнала
func (s *Signal) Validate() error {
	if s.StrategyKind != StrategyBullPut && s.StrategyKind != StrategyBearCall {
		return fmt.Errorf("unknown strategy kind: %q", s.StrategyKind)
	}
	if s.Underlying == "" {
		return fmt.Errorf("underlying is required")
	}
	if s.ShortStrike <= 0 || s.LongStrike <= 0 {
		return fmt.Errorf("strikes must be positive, got short=%.2f long=%.2f", s.ShortStrike, s.LongStrike)
	}
	if s.ShortStrike == s.LongStrike {
		return fmt.Errorf("short and long strikes must differ")
	}
	// Bull put: защитная нога ниже продаваемой. Bear call: выше.
	if s.StrategyKind == StrategyBullPut && s.LongStrike > s.ShortStrike {
		return fmt.Errorf("bull put requires long strike below short strike")
	}
	if s.StrategyKind == StrategyBearCall && s.LongStrike < s.ShortStrike {
		return fmt.Errorf("bear call requires long strike above short strike")
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", s.Quantity)
	}
	if s.Expiry.IsZero() {
		return fmt.Errorf("expiry is required")
	}
	return nil
}
