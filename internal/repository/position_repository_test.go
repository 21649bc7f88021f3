package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// ============================================================
// PositionRepository Tests
// ============================================================

func testPosition() *models.Position {
	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	return &models.Position{
		FollowerID: 7,
		EpisodeID:  "ep-1",
		Underlying: "SPX",
		State:      models.PositionStateOpen,
		Legs: []models.Leg{
			{Right: models.RightPut, Strike: 5600, Expiry: expiry, Side: models.SideShort, Quantity: 10, EntryPrice: 1.20},
			{Right: models.RightPut, Strike: 5550, Expiry: expiry, Side: models.SideLong, Quantity: 10, EntryPrice: 0.40},
		},
	}
}

func TestPositionRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	p := testPosition()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO positions`).
		WithArgs(7, "ep-1", "SPX", models.PositionStateOpen, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`INSERT INTO position_legs`).
		WithArgs(3, models.RightPut, 5600.0, sqlmock.AnyArg(), models.SideShort, 10, 1.20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectQuery(`INSERT INTO position_legs`).
		WithArgs(3, models.RightPut, 5550.0, sqlmock.AnyArg(), models.SideLong, 10, 0.40).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectCommit()

	repo := NewPositionRepository(db)
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if p.ID != 3 {
		t.Errorf("position ID = %d, want 3", p.ID)
	}
	if p.Legs[0].ID != 30 || p.Legs[1].ID != 31 {
		t.Errorf("leg IDs = %d, %d", p.Legs[0].ID, p.Legs[1].ID)
	}
	if p.Legs[0].PositionID != 3 {
		t.Errorf("leg position ID = %d", p.Legs[0].PositionID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryCreateRollsBackOnLegError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	p := testPosition()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO positions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`INSERT INTO position_legs`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	repo := NewPositionRepository(db)
	if err := repo.Create(p); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "follower_id", "episode_id", "underlying", "state", "opened_at", "closed_at"}).
			AddRow(3, 7, "ep-1", "SPX", models.PositionStateOpen, now, nil))
	mock.ExpectQuery(`SELECT .+ FROM position_legs WHERE position_id = \$1 AND superseded_at IS NULL`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position_id", "opt_right", "strike", "expiry", "side", "quantity", "entry_price"}).
			AddRow(30, 3, models.RightPut, 5600.0, expiry, models.SideShort, 10, 1.20).
			AddRow(31, 3, models.RightPut, 5550.0, expiry, models.SideLong, 10, 0.40))

	repo := NewPositionRepository(db)
	p, err := repo.GetByID(3)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}

	if len(p.Legs) != 2 {
		t.Fatalf("legs = %d, want 2", len(p.Legs))
	}
	if short := p.ShortLeg(); short == nil || short.Strike != 5600 {
		t.Errorf("short leg = %+v", short)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id = \$1`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPositionRepository(db)
	_, err = repo.GetByID(99)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("error = %v, want ErrPositionNotFound", err)
	}
}

func TestPositionRepositoryUpdateState(t *testing.T) {
	tests := []struct {
		name        string
		rowsChanged int64
		expectError error
	}{
		{"success", 1, nil},
		{"not found", 0, ErrPositionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			mock.ExpectExec(`UPDATE positions SET state = \$1 WHERE id = \$2`).
				WithArgs(models.PositionStateClosing, 3).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsChanged))

			repo := NewPositionRepository(db)
			err = repo.UpdateState(3, models.PositionStateClosing)
			if !errors.Is(err, tt.expectError) {
				t.Errorf("error = %v, want %v", err, tt.expectError)
			}
		})
	}
}

func TestPositionRepositorySupersedeLeg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	newLeg := &models.Leg{
		PositionID: 3,
		Right:      models.RightPut,
		Strike:     5550,
		Expiry:     expiry,
		Side:       models.SideLong,
		Quantity:   6,
		EntryPrice: 0.40,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE position_legs SET superseded_at = \$1`).
		WithArgs(sqlmock.AnyArg(), 31).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO position_legs`).
		WithArgs(3, models.RightPut, 5550.0, expiry, models.SideLong, 6, 0.40).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(40))
	mock.ExpectCommit()

	repo := NewPositionRepository(db)
	if err := repo.SupersedeLeg(31, newLeg); err != nil {
		t.Fatalf("SupersedeLeg() error: %v", err)
	}
	if newLeg.ID != 40 {
		t.Errorf("new leg ID = %d, want 40", newLeg.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositorySupersedeLegAlreadySuperseded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE position_legs SET superseded_at = \$1`).
		WithArgs(sqlmock.AnyArg(), 31).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewPositionRepository(db)
	if err := repo.SupersedeLeg(31, nil); !errors.Is(err, ErrLegNotFound) {
		t.Errorf("error = %v, want ErrLegNotFound", err)
	}
}

func TestPositionRepositoryMarkClosed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	closedAt := time.Now()

	mock.ExpectExec(`UPDATE positions SET state = \$1, closed_at = \$2 WHERE id = \$3`).
		WithArgs(models.PositionStateClosed, closedAt, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPositionRepository(db)
	if err := repo.MarkClosed(3, closedAt); err != nil {
		t.Fatalf("MarkClosed() error: %v", err)
	}
}
