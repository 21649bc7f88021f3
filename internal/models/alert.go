package models

import "time"

// AlertEvent представляет структурированное событие для внешнего стрима.
//
// Write-once / append-only: ядро никогда не изменяет и не удаляет алерты.
// Маршрутизация (email, Telegram) выполняется внешним потребителем стрима.
type AlertEvent struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"`
	Severity   string                 `json:"severity" db:"severity"` // info, warn, error
	FollowerID *int                   `json:"follower_id,omitempty" db:"follower_id"`
	Message    string                 `json:"message" db:"message"`
	Params     map[string]interface{} `json:"params,omitempty" db:"params"` // JSON в БД
}

// Типы алертов
const (
	AlertTypeNoMargin           = "NO_MARGIN"           // what-if проверка отклонила ордер
	AlertTypeMidTooLow          = "MID_TOO_LOW"         // mid ниже минимально допустимой цены
	AlertTypeLimitReached       = "LIMIT_REACHED"       // лестница исчерпала попытки без исполнения
	AlertTypeGatewayUnreachable = "GATEWAY_UNREACHABLE" // транспортная ошибка брокера
	AlertTypeAssignment         = "ASSIGNMENT"          // ассайнмент короткой ноги
	AlertTypeRiskTierChange     = "RISK_TIER_CHANGE"    // смена риск-уровня позиции
	AlertTypeAutoLiquidation    = "AUTO_LIQUIDATION"    // принудительная ликвидация по риску
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
