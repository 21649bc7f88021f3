package models

import "time"

// Position представляет открытую позицию фолловера (вертикальный спред).
//
// Позицией владеет исключительно Tracker: риск-монитор и исполнитель
// запрашивают изменения через его API и никогда не мутируют поля напрямую.
type Position struct {
	ID         int        `json:"id" db:"id"`
	FollowerID int        `json:"follower_id" db:"follower_id"`
	EpisodeID  string     `json:"episode_id" db:"episode_id"` // эпизод, открывший позицию
	Underlying string     `json:"underlying" db:"underlying"`
	Legs       []Leg      `json:"legs"`
	State      string     `json:"state" db:"state"` // OPEN, ASSIGNED, CLOSING, CLOSED
	OpenedAt   time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// Leg представляет одну ногу позиции.
// Нога неизменяема после создания — при ассайнменте или частичном
// закрытии она заменяется новой записью (supersede), а не мутируется.
type Leg struct {
	ID         int       `json:"id" db:"id"`
	PositionID int       `json:"position_id" db:"position_id"`
	Right      string    `json:"right" db:"opt_right"` // CALL, PUT
	Strike     float64   `json:"strike" db:"strike"`
	Expiry     time.Time `json:"expiry" db:"expiry"`
	Side       string    `json:"side" db:"side"` // LONG, SHORT
	Quantity   int       `json:"quantity" db:"quantity"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
}

// Права опциона
const (
	RightCall = "CALL"
	RightPut  = "PUT"
)

// Стороны ноги
const (
	SideLong  = "LONG"  // купленный опцион
	SideShort = "SHORT" // проданный опцион
)

// Состояния позиции (lifecycle)
const (
	PositionStateOpen     = "OPEN"     // позиция открыта, легла в мониторинг
	PositionStateAssigned = "ASSIGNED" // обнаружен ассайнмент короткой ноги
	PositionStateClosing  = "CLOSING"  // идёт закрытие (ручное или риск-триггер)
	PositionStateClosed   = "CLOSED"   // терминальное состояние
)

// ValidPositionTransitions определяет допустимые переходы lifecycle позиции
var ValidPositionTransitions = map[string][]string{
	PositionStateOpen:     {PositionStateAssigned, PositionStateClosing, PositionStateClosed},
	PositionStateAssigned: {PositionStateClosing, PositionStateClosed},
	PositionStateClosing:  {PositionStateClosed, PositionStateOpen}, // Open при откате неудачного закрытия
	PositionStateClosed:   {},
}

// CanTransitionPosition проверяет допустимость перехода состояния позиции
func CanTransitionPosition(from, to string) bool {
	allowed, ok := ValidPositionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для терминального состояния
func (p *Position) IsTerminal() bool {
	return p.State == PositionStateClosed
}

// ShortLeg возвращает короткую ногу позиции (nil, если нет)
func (p *Position) ShortLeg() *Leg {
	for i := range p.Legs {
		if p.Legs[i].Side == SideShort {
			return &p.Legs[i]
		}
	}
	return nil
}

// LongLeg возвращает длинную ногу позиции (nil, если нет)
func (p *Position) LongLeg() *Leg {
	for i := range p.Legs {
		if p.Legs[i].Side == SideLong {
			return &p.Legs[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию позиции (для безопасной выдачи наружу)
func (p *Position) Clone() *Position {
	cp := *p
	cp.Legs = make([]Leg, len(p.Legs))
	copy(cp.Legs, p.Legs)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
