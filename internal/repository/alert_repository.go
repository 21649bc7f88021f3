package repository

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AlertRepository - работа с таблицей alerts.
// Таблица append-only: алерты никогда не обновляются и не удаляются
// движком, только читаются управляющей поверхностью.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository создает новый экземпляр репозитория
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create записывает алерт. Params сериализуются в JSONB.
func (r *AlertRepository) Create(a *models.AlertEvent) error {
	query := `
		INSERT INTO alerts (alert_type, severity, follower_id, message, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	params, err := json.Marshal(a.Params)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		query,
		a.Type,
		a.Severity,
		a.FollowerID,
		a.Message,
		params,
		a.Timestamp,
	).Scan(&a.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetRecent возвращает последние N алертов
func (r *AlertRepository) GetRecent(limit int) ([]*models.AlertEvent, error) {
	query := `
		SELECT id, alert_type, severity, follower_id, message, params, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryAlerts(query, limit)
}

// GetByTypes возвращает последние алерты указанных типов
func (r *AlertRepository) GetByTypes(types []string, limit int) ([]*models.AlertEvent, error) {
	query := `
		SELECT id, alert_type, severity, follower_id, message, params, created_at
		FROM alerts
		WHERE alert_type = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryAlerts(query, pq.Array(types), limit)
}

// GetByFollower возвращает последние алерты фолловера
func (r *AlertRepository) GetByFollower(followerID, limit int) ([]*models.AlertEvent, error) {
	query := `
		SELECT id, alert_type, severity, follower_id, message, params, created_at
		FROM alerts
		WHERE follower_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryAlerts(query, followerID, limit)
}

// CountSince возвращает число алертов типа с указанного момента
func (r *AlertRepository) CountSince(alertType string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE alert_type = $1 AND created_at >= $2`

	var count int
	err := r.db.QueryRow(query, alertType, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет алерты старше указанной даты (ретенция)
func (r *AlertRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM alerts WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryAlerts выполняет запрос и сканирует список алертов
func (r *AlertRepository) queryAlerts(query string, args ...interface{}) ([]*models.AlertEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.AlertEvent
	for rows.Next() {
		a := &models.AlertEvent{}
		var params []byte
		err := rows.Scan(
			&a.ID,
			&a.Type,
			&a.Severity,
			&a.FollowerID,
			&a.Message,
			&params,
			&a.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &a.Params); err != nil {
				return nil, err
			}
		}
		alerts = append(alerts, a)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}
