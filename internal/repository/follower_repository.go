package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// Ошибки репозитория фолловеров
var (
	ErrFollowerNotFound = errors.New("follower not found")
)

// FollowerRepository - работа с таблицей followers
type FollowerRepository struct {
	db *sql.DB
}

// NewFollowerRepository создает новый экземпляр репозитория
func NewFollowerRepository(db *sql.DB) *FollowerRepository {
	return &FollowerRepository{db: db}
}

// Create создает запись фолловера. API ключи должны быть зашифрованы
// до вызова репозитория.
func (r *FollowerRepository) Create(f *models.FollowerAccount) error {
	query := `
		INSERT INTO followers (name, broker_account_id, api_key, api_secret, enabled, rebalance_policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		f.Name,
		f.BrokerAccountID,
		f.APIKey,
		f.APISecret,
		f.Enabled,
		f.RebalancePolicy,
		f.CreatedAt,
		f.UpdatedAt,
	).Scan(&f.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetByID возвращает фолловера по ID
func (r *FollowerRepository) GetByID(id int) (*models.FollowerAccount, error) {
	query := `
		SELECT id, name, broker_account_id, api_key, api_secret, enabled, rebalance_policy, last_error, created_at, updated_at
		FROM followers
		WHERE id = $1`

	f := &models.FollowerAccount{}
	err := r.db.QueryRow(query, id).Scan(
		&f.ID,
		&f.Name,
		&f.BrokerAccountID,
		&f.APIKey,
		&f.APISecret,
		&f.Enabled,
		&f.RebalancePolicy,
		&f.LastError,
		&f.CreatedAt,
		&f.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFollowerNotFound
		}
		return nil, err
	}

	return f, nil
}

// GetAll возвращает всех фолловеров
func (r *FollowerRepository) GetAll() ([]*models.FollowerAccount, error) {
	query := `
		SELECT id, name, broker_account_id, api_key, api_secret, enabled, rebalance_policy, last_error, created_at, updated_at
		FROM followers
		ORDER BY id`

	return r.queryFollowers(query)
}

// GetEnabled возвращает фолловеров, участвующих в копировании сигналов
func (r *FollowerRepository) GetEnabled() ([]*models.FollowerAccount, error) {
	query := `
		SELECT id, name, broker_account_id, api_key, api_secret, enabled, rebalance_policy, last_error, created_at, updated_at
		FROM followers
		WHERE enabled = true
		ORDER BY id`

	return r.queryFollowers(query)
}

// Update обновляет данные фолловера
func (r *FollowerRepository) Update(f *models.FollowerAccount) error {
	query := `
		UPDATE followers
		SET name = $1, broker_account_id = $2, api_key = $3, api_secret = $4,
		    enabled = $5, rebalance_policy = $6, updated_at = $7
		WHERE id = $8`

	f.UpdatedAt = time.Now()

	result, err := r.db.Exec(query,
		f.Name,
		f.BrokerAccountID,
		f.APIKey,
		f.APISecret,
		f.Enabled,
		f.RebalancePolicy,
		f.UpdatedAt,
		f.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrFollowerNotFound
	}

	return nil
}

// SetEnabled включает или выключает фолловера
func (r *FollowerRepository) SetEnabled(id int, enabled bool) error {
	query := `
		UPDATE followers
		SET enabled = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, enabled, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrFollowerNotFound
	}

	return nil
}

// SetLastError сохраняет последнюю ошибку фолловера (пустая строка очищает)
func (r *FollowerRepository) SetLastError(id int, lastError string) error {
	query := `
		UPDATE followers
		SET last_error = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, lastError, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrFollowerNotFound
	}

	return nil
}

// Delete удаляет фолловера
func (r *FollowerRepository) Delete(id int) error {
	query := `DELETE FROM followers WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrFollowerNotFound
	}

	return nil
}

// queryFollowers выполняет запрос и сканирует список фолловеров
func (r *FollowerRepository) queryFollowers(query string, args ...interface{}) ([]*models.FollowerAccount, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []*models.FollowerAccount
	for rows.Next() {
		f := &models.FollowerAccount{}
		err := rows.Scan(
			&f.ID,
			&f.Name,
			&f.BrokerAccountID,
			&f.APIKey,
			&f.APISecret,
			&f.Enabled,
			&f.RebalancePolicy,
			&f.LastError,
			&f.CreatedAt,
			&f.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		followers = append(followers, f)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return followers, nil
}
