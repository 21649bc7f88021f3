package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

var errMockNotFound = errors.New("not found")

// ============================================================
// Mock Repositories
// ============================================================

type mockFollowerRepo struct {
	mu        sync.Mutex
	nextID    int
	followers map[int]*models.FollowerAccount

	createErr error
}

func newMockFollowerRepo() *mockFollowerRepo {
	return &mockFollowerRepo{
		nextID:    1,
		followers: make(map[int]*models.FollowerAccount),
	}
}

func (m *mockFollowerRepo) Create(f *models.FollowerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	f.ID = m.nextID
	m.nextID++
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	cp := *f
	m.followers[f.ID] = &cp
	return nil
}

func (m *mockFollowerRepo) GetByID(id int) (*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.followers[id]
	if !ok {
		return nil, errMockNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFollowerRepo) GetAll() ([]*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.FollowerAccount
	for _, f := range m.followers {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockFollowerRepo) GetEnabled() ([]*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.FollowerAccount
	for _, f := range m.followers {
		if f.Enabled {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockFollowerRepo) Update(f *models.FollowerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.followers[f.ID]; !ok {
		return errMockNotFound
	}
	cp := *f
	m.followers[f.ID] = &cp
	return nil
}

func (m *mockFollowerRepo) SetEnabled(id int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.followers[id]
	if !ok {
		return errMockNotFound
	}
	f.Enabled = enabled
	return nil
}

func (m *mockFollowerRepo) SetLastError(id int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.followers[id]
	if !ok {
		return errMockNotFound
	}
	f.LastError = lastError
	return nil
}

func (m *mockFollowerRepo) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.followers[id]; !ok {
		return errMockNotFound
	}
	delete(m.followers, id)
	return nil
}

type mockPositionRepo struct {
	mu        sync.Mutex
	positions map[int]*models.Position
}

func newMockPositionRepo() *mockPositionRepo {
	return &mockPositionRepo{positions: make(map[int]*models.Position)}
}

func (m *mockPositionRepo) GetByID(id int) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[id]
	if !ok {
		return nil, errMockNotFound
	}
	return p.Clone(), nil
}

func (m *mockPositionRepo) GetByEpisodeID(episodeID string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.positions {
		if p.EpisodeID == episodeID {
			return p.Clone(), nil
		}
	}
	return nil, errMockNotFound
}

func (m *mockPositionRepo) GetActive() ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Position
	for _, p := range m.positions {
		if p.State != models.PositionStateClosed {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockPositionRepo) GetActiveByFollower(followerID int) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Position
	for _, p := range m.positions {
		if p.FollowerID == followerID && p.State != models.PositionStateClosed {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockPositionRepo) CountActive() (int, error) {
	active, _ := m.GetActive()
	return len(active), nil
}

func (m *mockPositionRepo) add(p *models.Position) {
	m.mu.Lock()
	m.positions[p.ID] = p.Clone()
	m.mu.Unlock()
}

type mockAlertRepo struct {
	mu     sync.Mutex
	nextID int
	alerts []*models.AlertEvent

	createErr error
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{nextID: 1}
}

func (m *mockAlertRepo) Create(a *models.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	a.ID = m.nextID
	m.nextID++
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *mockAlertRepo) GetRecent(limit int) ([]*models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.alerts[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAlertRepo) GetByTypes(types []string, limit int) ([]*models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	out := make([]*models.AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if typeSet[m.alerts[i].Type] {
			cp := *m.alerts[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) GetByFollower(followerID, limit int) ([]*models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.alerts[i]
		if a.FollowerID != nil && *a.FollowerID == followerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) CountSince(alertType string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, a := range m.alerts {
		if a.Type == alertType && !a.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockAlertRepo) DeleteOlderThan(timestamp time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*models.AlertEvent
	var deleted int64
	for _, a := range m.alerts {
		if a.Timestamp.Before(timestamp) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return deleted, nil
}

type mockAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.OrderAttempt
}

func (m *mockAttemptRepo) GetByEpisode(episodeID string) ([]*models.OrderAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.OrderAttempt
	for _, a := range m.attempts {
		if a.EpisodeID == episodeID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAttemptRepo) CountByEpisode(episodeID string) (int, error) {
	attempts, _ := m.GetByEpisode(episodeID)
	return len(attempts), nil
}

// ============================================================
// Mock Broadcasters / Engine
// ============================================================

type mockStreamHub struct {
	mu     sync.Mutex
	alerts []*models.AlertEvent
}

func (m *mockStreamHub) BroadcastAlert(alert *models.AlertEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.alerts = append(m.alerts, &cp)
}

func (m *mockStreamHub) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

type mockEngineControl struct {
	mu        sync.Mutex
	closed    []int
	closedAll []int
	closeErr  error
}

func (m *mockEngineControl) ClosePosition(ctx context.Context, positionID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, positionID)
	return nil
}

func (m *mockEngineControl) CloseAllForFollower(ctx context.Context, followerID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return m.closeErr
	}
	m.closedAll = append(m.closedAll, followerID)
	return nil
}
