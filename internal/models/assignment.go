package models

import "time"

// AssignmentEvent представляет обнаруженный ассайнмент короткой ноги.
//
// Создаётся трекером при расхождении между ожидаемым и брокерским
// количеством по короткой ноге открытой позиции. Терминален после
// завершения ребалансировки (ResolvedAt != nil).
type AssignmentEvent struct {
	ID          int        `json:"id" db:"id"`
	PositionID  int        `json:"position_id" db:"position_id"`
	LegID       int        `json:"leg_id" db:"leg_id"` // ассайнутая короткая нога
	ExpectedQty int        `json:"expected_qty" db:"expected_qty"`
	ReportedQty int        `json:"reported_qty" db:"reported_qty"`
	DetectedAt  time.Time  `json:"detected_at" db:"detected_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// AssignedQty возвращает количество ассайнутых контрактов
func (a *AssignmentEvent) AssignedQty() int {
	return a.ExpectedQty - a.ReportedQty
}

// Resolved возвращает true, если ребалансировка завершена
func (a *AssignmentEvent) Resolved() bool {
	return a.ResolvedAt != nil
}
