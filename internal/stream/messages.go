package stream

import (
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// MessageType определяет тип сообщения стрима
type MessageType string

// Типы сообщений стрима
const (
	// MessageTypeAlert - алерт торгового ядра.
	// Отправляется при терминальных отказах эпизодов, ассайнментах,
	// сменах риск-уровня и автоликвидациях.
	MessageTypeAlert MessageType = "alert"

	// MessageTypePositionUpdate - обновление состояния позиции.
	// Отправляется при открытии, ассайнменте и закрытии позиции.
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeRiskUpdate - сводка риск-уровней по открытым позициям
	MessageTypeRiskUpdate MessageType = "riskUpdate"
)

// BaseMessage - базовая структура для всех сообщений стрима
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertMessage - сообщение с алертом
type AlertMessage struct {
	BaseMessage
	Data *AlertData `json:"data"`
}

// AlertData - данные алерта
type AlertData struct {
	// ID алерта в БД (0, если персистентность не удалась)
	ID int `json:"id"`

	// Тип алерта (NO_MARGIN, MID_TOO_LOW, LIMIT_REACHED,
	// GATEWAY_UNREACHABLE, ASSIGNMENT, RISK_TIER_CHANGE, AUTO_LIQUIDATION)
	Type string `json:"type"`

	// Уровень важности (INFO, WARN, ERROR)
	Severity string `json:"severity"`

	// ID фолловера (если алерт привязан к аккаунту)
	FollowerID *int `json:"follower_id,omitempty"`

	// Текст сообщения
	Message string `json:"message"`

	// Параметры события (цены, количества, пороги)
	Params map[string]interface{} `json:"params,omitempty"`

	// Время возникновения события
	Timestamp time.Time `json:"timestamp"`
}

// PositionUpdateMessage - сообщение об изменении позиции
type PositionUpdateMessage struct {
	BaseMessage
	PositionID int                 `json:"position_id"`
	Data       *PositionUpdateData `json:"data"`
}

// PositionUpdateData - данные обновления позиции
type PositionUpdateData struct {
	// Состояние позиции (OPEN, ASSIGNED, CLOSING, CLOSED)
	State string `json:"state"`

	FollowerID int    `json:"follower_id"`
	Underlying string `json:"underlying"`

	// Активные ноги позиции
	Legs []LegData `json:"legs,omitempty"`
}

// LegData - данные одной ноги позиции
type LegData struct {
	Right      string    `json:"right"`
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
}

// RiskUpdateMessage - сводка риск-уровней
type RiskUpdateMessage struct {
	BaseMessage
	// Количество позиций по уровням (SAFE, RISK, CRITICAL)
	Tiers map[string]int `json:"tiers"`
}

// NewAlertMessage создает сообщение алерта
func NewAlertMessage(alert *models.AlertEvent) *AlertMessage {
	return &AlertMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlert,
			Timestamp: time.Now(),
		},
		Data: &AlertData{
			ID:         alert.ID,
			Type:       alert.Type,
			Severity:   alert.Severity,
			FollowerID: alert.FollowerID,
			Message:    alert.Message,
			Params:     alert.Params,
			Timestamp:  alert.Timestamp,
		},
	}
}

// NewPositionUpdateMessage создает сообщение обновления позиции
func NewPositionUpdateMessage(p *models.Position) *PositionUpdateMessage {
	data := &PositionUpdateData{
		State:      p.State,
		FollowerID: p.FollowerID,
		Underlying: p.Underlying,
	}

	if len(p.Legs) > 0 {
		data.Legs = make([]LegData, len(p.Legs))
		for i, leg := range p.Legs {
			data.Legs[i] = LegData{
				Right:      leg.Right,
				Strike:     leg.Strike,
				Expiry:     leg.Expiry,
				Side:       leg.Side,
				Quantity:   leg.Quantity,
				EntryPrice: leg.EntryPrice,
			}
		}
	}

	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now(),
		},
		PositionID: p.ID,
		Data:       data,
	}
}

// NewRiskUpdateMessage создает сообщение сводки риск-уровней
func NewRiskUpdateMessage(tiers map[string]int) *RiskUpdateMessage {
	return &RiskUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRiskUpdate,
			Timestamp: time.Now(),
		},
		Tiers: tiers,
	}
}
