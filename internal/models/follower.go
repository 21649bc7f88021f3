package models

import "time"

// FollowerAccount представляет брокерский аккаунт фолловера.
//
// API ключи хранятся зашифрованными (AES-256-GCM) и не возвращаются в JSON.
type FollowerAccount struct {
	ID              int       `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	BrokerAccountID string    `json:"broker_account_id" db:"broker_account_id"`
	APIKey          string    `json:"-" db:"api_key"`    // зашифрован
	APISecret       string    `json:"-" db:"api_secret"` // зашифрован
	Enabled         bool      `json:"enabled" db:"enabled"`
	RebalancePolicy string    `json:"rebalance_policy" db:"rebalance_policy"` // EXERCISE, CLOSE
	LastError       string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Политики ребалансировки при ассайнменте короткой ноги
const (
	RebalanceExercise = "EXERCISE" // исполнить парную длинную ногу
	RebalanceClose    = "CLOSE"    // закрыть парную длинную ногу по рынку
)

// ValidRebalancePolicy проверяет допустимость политики
func ValidRebalancePolicy(p string) bool {
	return p == RebalanceExercise || p == RebalanceClose
}
