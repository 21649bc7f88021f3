package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrLegNotFound      = errors.New("position leg not found")
)

// PositionRepository - работа с таблицами positions и position_legs.
//
// Ноги неизменяемы: supersede помечает старую ногу superseded_at
// и вставляет новую в одной транзакции. Активные ноги позиции -
// те, у которых superseded_at IS NULL.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create создает позицию вместе с ногами в одной транзакции
func (r *PositionRepository) Create(p *models.Position) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p.OpenedAt = time.Now()

	err = tx.QueryRow(`
		INSERT INTO positions (follower_id, episode_id, underlying, state, opened_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.FollowerID,
		p.EpisodeID,
		p.Underlying,
		p.State,
		p.OpenedAt,
	).Scan(&p.ID)
	if err != nil {
		return err
	}

	for i := range p.Legs {
		leg := &p.Legs[i]
		leg.PositionID = p.ID

		err = tx.QueryRow(`
			INSERT INTO position_legs (position_id, opt_right, strike, expiry, side, quantity, entry_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			leg.PositionID,
			leg.Right,
			leg.Strike,
			leg.Expiry,
			leg.Side,
			leg.Quantity,
			leg.EntryPrice,
		).Scan(&leg.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID возвращает позицию с активными ногами
func (r *PositionRepository) GetByID(id int) (*models.Position, error) {
	query := `
		SELECT id, follower_id, episode_id, underlying, state, opened_at, closed_at
		FROM positions
		WHERE id = $1`

	p := &models.Position{}
	err := r.db.QueryRow(query, id).Scan(
		&p.ID,
		&p.FollowerID,
		&p.EpisodeID,
		&p.Underlying,
		&p.State,
		&p.OpenedAt,
		&p.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	if err := r.loadLegs(p); err != nil {
		return nil, err
	}

	return p, nil
}

// GetActive возвращает все незакрытые позиции с активными ногами
func (r *PositionRepository) GetActive() ([]*models.Position, error) {
	query := `
		SELECT id, follower_id, episode_id, underlying, state, opened_at, closed_at
		FROM positions
		WHERE state != $1
		ORDER BY opened_at`

	return r.queryPositions(query, models.PositionStateClosed)
}

// GetActiveByFollower возвращает незакрытые позиции фолловера
func (r *PositionRepository) GetActiveByFollower(followerID int) ([]*models.Position, error) {
	query := `
		SELECT id, follower_id, episode_id, underlying, state, opened_at, closed_at
		FROM positions
		WHERE follower_id = $1 AND state != $2
		ORDER BY opened_at`

	return r.queryPositions(query, followerID, models.PositionStateClosed)
}

// GetByEpisodeID возвращает позицию, открытую указанным эпизодом
func (r *PositionRepository) GetByEpisodeID(episodeID string) (*models.Position, error) {
	query := `
		SELECT id, follower_id, episode_id, underlying, state, opened_at, closed_at
		FROM positions
		WHERE episode_id = $1`

	p := &models.Position{}
	err := r.db.QueryRow(query, episodeID).Scan(
		&p.ID,
		&p.FollowerID,
		&p.EpisodeID,
		&p.Underlying,
		&p.State,
		&p.OpenedAt,
		&p.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	if err := r.loadLegs(p); err != nil {
		return nil, err
	}

	return p, nil
}

// UpdateState обновляет состояние позиции.
// Допустимость перехода проверяет вызывающий (Tracker).
func (r *PositionRepository) UpdateState(id int, state string) error {
	query := `
		UPDATE positions
		SET state = $1
		WHERE id = $2`

	result, err := r.db.Exec(query, state, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// MarkClosed переводит позицию в CLOSED и фиксирует время закрытия
func (r *PositionRepository) MarkClosed(id int, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET state = $1, closed_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, models.PositionStateClosed, closedAt, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// SupersedeLeg заменяет ногу новой записью в одной транзакции.
// Используется при ассайнменте и частичном закрытии: старая нога
// помечается superseded_at, новая вставляется с обновлённым количеством.
func (r *PositionRepository) SupersedeLeg(legID int, newLeg *models.Leg) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE position_legs
		SET superseded_at = $1
		WHERE id = $2 AND superseded_at IS NULL`,
		time.Now(), legID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLegNotFound
	}

	if newLeg != nil {
		err = tx.QueryRow(`
			INSERT INTO position_legs (position_id, opt_right, strike, expiry, side, quantity, entry_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			newLeg.PositionID,
			newLeg.Right,
			newLeg.Strike,
			newLeg.Expiry,
			newLeg.Side,
			newLeg.Quantity,
			newLeg.EntryPrice,
		).Scan(&newLeg.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CountActive возвращает количество незакрытых позиций
func (r *PositionRepository) CountActive() (int, error) {
	query := `SELECT COUNT(*) FROM positions WHERE state != $1`

	var count int
	err := r.db.QueryRow(query, models.PositionStateClosed).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// loadLegs загружает активные ноги позиции
func (r *PositionRepository) loadLegs(p *models.Position) error {
	query := `
		SELECT id, position_id, opt_right, strike, expiry, side, quantity, entry_price
		FROM position_legs
		WHERE position_id = $1 AND superseded_at IS NULL
		ORDER BY id`

	rows, err := r.db.Query(query, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p.Legs = nil
	for rows.Next() {
		var leg models.Leg
		err := rows.Scan(
			&leg.ID,
			&leg.PositionID,
			&leg.Right,
			&leg.Strike,
			&leg.Expiry,
			&leg.Side,
			&leg.Quantity,
			&leg.EntryPrice,
		)
		if err != nil {
			return err
		}
		p.Legs = append(p.Legs, leg)
	}

	return rows.Err()
}

// queryPositions выполняет запрос и загружает ноги каждой позиции
func (r *PositionRepository) queryPositions(query string, args ...interface{}) ([]*models.Position, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		err := rows.Scan(
			&p.ID,
			&p.FollowerID,
			&p.EpisodeID,
			&p.Underlying,
			&p.State,
			&p.OpenedAt,
			&p.ClosedAt,
		)
		if err != nil {
			rows.Close()
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, p := range positions {
		if err := r.loadLegs(p); err != nil {
			return nil, err
		}
	}

	return positions, nil
}
