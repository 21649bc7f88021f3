package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// Ошибки репозитория ассайнментов
var (
	ErrAssignmentNotFound = errors.New("assignment event not found")
)

// AssignmentRepository - работа с таблицей assignment_events
type AssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository создает новый экземпляр репозитория
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create записывает обнаруженный ассайнмент
func (r *AssignmentRepository) Create(e *models.AssignmentEvent) error {
	query := `
		INSERT INTO assignment_events (position_id, leg_id, expected_qty, reported_qty, detected_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if e.DetectedAt.IsZero() {
		e.DetectedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		e.PositionID,
		e.LegID,
		e.ExpectedQty,
		e.ReportedQty,
		e.DetectedAt,
	).Scan(&e.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetUnresolved возвращает ассайнменты, по которым ещё не выполнена
// ребалансировка длинной ноги
func (r *AssignmentRepository) GetUnresolved() ([]*models.AssignmentEvent, error) {
	query := `
		SELECT id, position_id, leg_id, expected_qty, reported_qty, detected_at, resolved_at
		FROM assignment_events
		WHERE resolved_at IS NULL
		ORDER BY detected_at`

	return r.queryEvents(query)
}

// GetUnresolvedByPosition возвращает самый ранний необработанный
// ассайнмент позиции, nil если таких нет
func (r *AssignmentRepository) GetUnresolvedByPosition(positionID int) (*models.AssignmentEvent, error) {
	query := `
		SELECT id, position_id, leg_id, expected_qty, reported_qty, detected_at, resolved_at
		FROM assignment_events
		WHERE position_id = $1 AND resolved_at IS NULL
		ORDER BY detected_at
		LIMIT 1`

	events, err := r.queryEvents(query, positionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// GetByPosition возвращает все ассайнменты позиции
func (r *AssignmentRepository) GetByPosition(positionID int) ([]*models.AssignmentEvent, error) {
	query := `
		SELECT id, position_id, leg_id, expected_qty, reported_qty, detected_at, resolved_at
		FROM assignment_events
		WHERE position_id = $1
		ORDER BY detected_at`

	return r.queryEvents(query, positionID)
}

// Resolve помечает ассайнмент обработанным
func (r *AssignmentRepository) Resolve(id int, resolvedAt time.Time) error {
	query := `
		UPDATE assignment_events
		SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL`

	result, err := r.db.Exec(query, resolvedAt, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAssignmentNotFound
	}

	return nil
}

// queryEvents выполняет запрос и сканирует список ассайнментов
func (r *AssignmentRepository) queryEvents(query string, args ...interface{}) ([]*models.AssignmentEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AssignmentEvent
	for rows.Next() {
		e := &models.AssignmentEvent{}
		err := rows.Scan(
			&e.ID,
			&e.PositionID,
			&e.LegID,
			&e.ExpectedQty,
			&e.ReportedQty,
			&e.DetectedAt,
			&e.ResolvedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
