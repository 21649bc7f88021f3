package repository

import (
	"database/sql"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// AttemptRepository - работа с таблицей order_attempts.
// Таблица append-only: каждая попытка лестницы фиксируется отдельной записью
// для аудита исполнения.
type AttemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository создает новый экземпляр репозитория
func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create записывает попытку размещения ордера
func (r *AttemptRepository) Create(a *models.OrderAttempt) error {
	query := `
		INSERT INTO order_attempts (episode_id, follower_id, attempt_index, limit_price, broker_order_id, outcome, error_message, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		a.EpisodeID,
		a.FollowerID,
		a.AttemptIndex,
		a.LimitPrice,
		a.BrokerOrderID,
		a.Outcome,
		a.ErrorMessage,
		a.SubmittedAt,
	).Scan(&a.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetByEpisode возвращает попытки эпизода в порядке размещения
func (r *AttemptRepository) GetByEpisode(episodeID string) ([]*models.OrderAttempt, error) {
	query := `
		SELECT id, episode_id, follower_id, attempt_index, limit_price, broker_order_id, outcome, error_message, submitted_at
		FROM order_attempts
		WHERE episode_id = $1
		ORDER BY attempt_index`

	rows, err := r.db.Query(query, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.OrderAttempt
	for rows.Next() {
		a := &models.OrderAttempt{}
		err := rows.Scan(
			&a.ID,
			&a.EpisodeID,
			&a.FollowerID,
			&a.AttemptIndex,
			&a.LimitPrice,
			&a.BrokerOrderID,
			&a.Outcome,
			&a.ErrorMessage,
			&a.SubmittedAt,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

// CountByEpisode возвращает число попыток эпизода
func (r *AttemptRepository) CountByEpisode(episodeID string) (int, error) {
	query := `SELECT COUNT(*) FROM order_attempts WHERE episode_id = $1`

	var count int
	err := r.db.QueryRow(query, episodeID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет попытки старше указанной даты (ретенция аудита)
func (r *AttemptRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM order_attempts WHERE submitted_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
