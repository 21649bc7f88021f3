package models

import "time"

// OrderAttempt представляет одну попытку лимитного ордера внутри эпизода.
// Ограниченная упорядоченная последовательность попыток образует
// Execution Episode — единицу гарантии "не более одного исполнения".
type OrderAttempt struct {
	ID            int       `json:"id" db:"id"`
	EpisodeID     string    `json:"episode_id" db:"episode_id"`
	FollowerID    int       `json:"follower_id" db:"follower_id"`
	AttemptIndex  int       `json:"attempt_index" db:"attempt_index"` // начиная с 1
	LimitPrice    float64   `json:"limit_price" db:"limit_price"`
	BrokerOrderID string    `json:"broker_order_id" db:"broker_order_id"`
	Outcome       string    `json:"outcome" db:"outcome"` // filled, timeout, rejected
	ErrorMessage  string    `json:"error_message,omitempty" db:"error_message"`
	SubmittedAt   time.Time `json:"submitted_at" db:"submitted_at"`
}

// Исходы попытки
const (
	AttemptOutcomeFilled   = "filled"
	AttemptOutcomeTimeout  = "timeout"
	AttemptOutcomeRejected = "rejected"
)

// MarginCheckResult представляет результат предторговой what-if проверки маржи.
// Транзиентный объект: живёт только в рамках эпизода и не персистится.
type MarginCheckResult struct {
	Approved          bool    `json:"approved"`
	InitialMargin     float64 `json:"initial_margin"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	AvailableFunds    float64 `json:"available_funds"`
	Reason            string  `json:"reason,omitempty"` // причина отказа (если не approved)
}
