package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// ============================================================
// Mock Broker
// ============================================================

type mockBroker struct {
	mu sync.Mutex

	getQuoteFunc           func(ctx context.Context, c broker.Contract) (*broker.Quote, error)
	getUnderlyingQuoteFunc func(ctx context.Context, underlying string) (*broker.Quote, error)
	whatIfMarginFunc       func(ctx context.Context, order broker.ComboOrder) (*broker.MarginResult, error)
	placeComboOrderFunc    func(ctx context.Context, order broker.ComboOrder) (string, error)
	cancelOrderFunc        func(ctx context.Context, orderID string) error
	orderStatusFunc        func(ctx context.Context, orderID string) (*broker.OrderState, error)
	placeMarketCloseFunc   func(ctx context.Context, accountID string, c broker.Contract, quantity int) (string, error)
	exerciseOptionFunc     func(ctx context.Context, accountID string, c broker.Contract, quantity int) error
	positionsFunc          func(ctx context.Context, accountID string) ([]broker.BrokerPosition, error)

	placedOrders  []broker.ComboOrder
	cancelled     []string
	marketCloses  []broker.Contract
	exercised     []broker.Contract
	closeQtys     []int
	exerciseQtys  []int
	statusPolls   int
}

func (m *mockBroker) Name() string { return "mock" }

func (m *mockBroker) GetQuote(ctx context.Context, c broker.Contract) (*broker.Quote, error) {
	if m.getQuoteFunc != nil {
		return m.getQuoteFunc(ctx, c)
	}
	return &broker.Quote{Bid: 1.0, Ask: 1.1}, nil
}

func (m *mockBroker) GetUnderlyingQuote(ctx context.Context, underlying string) (*broker.Quote, error) {
	if m.getUnderlyingQuoteFunc != nil {
		return m.getUnderlyingQuoteFunc(ctx, underlying)
	}
	return &broker.Quote{Bid: 5600, Ask: 5600}, nil
}

func (m *mockBroker) WhatIfMargin(ctx context.Context, order broker.ComboOrder) (*broker.MarginResult, error) {
	if m.whatIfMarginFunc != nil {
		return m.whatIfMarginFunc(ctx, order)
	}
	return &broker.MarginResult{InitialMargin: 1000, AvailableFunds: 10000}, nil
}

func (m *mockBroker) PlaceComboOrder(ctx context.Context, order broker.ComboOrder) (string, error) {
	m.mu.Lock()
	m.placedOrders = append(m.placedOrders, order)
	n := len(m.placedOrders)
	m.mu.Unlock()

	if m.placeComboOrderFunc != nil {
		return m.placeComboOrderFunc(ctx, order)
	}
	return orderID(n), nil
}

func (m *mockBroker) CancelOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, id)
	m.mu.Unlock()

	if m.cancelOrderFunc != nil {
		return m.cancelOrderFunc(ctx, id)
	}
	return nil
}

func (m *mockBroker) OrderStatus(ctx context.Context, id string) (*broker.OrderState, error) {
	m.mu.Lock()
	m.statusPolls++
	m.mu.Unlock()

	if m.orderStatusFunc != nil {
		return m.orderStatusFunc(ctx, id)
	}
	return &broker.OrderState{OrderID: id, Status: broker.OrderStatusSubmitted}, nil
}

func (m *mockBroker) PlaceMarketClose(ctx context.Context, accountID string, c broker.Contract, quantity int) (string, error) {
	m.mu.Lock()
	m.marketCloses = append(m.marketCloses, c)
	m.closeQtys = append(m.closeQtys, quantity)
	m.mu.Unlock()

	if m.placeMarketCloseFunc != nil {
		return m.placeMarketCloseFunc(ctx, accountID, c, quantity)
	}
	return "mkt-1", nil
}

func (m *mockBroker) ExerciseOption(ctx context.Context, accountID string, c broker.Contract, quantity int) error {
	m.mu.Lock()
	m.exercised = append(m.exercised, c)
	m.exerciseQtys = append(m.exerciseQtys, quantity)
	m.mu.Unlock()

	if m.exerciseOptionFunc != nil {
		return m.exerciseOptionFunc(ctx, accountID, c, quantity)
	}
	return nil
}

func (m *mockBroker) Positions(ctx context.Context, accountID string) ([]broker.BrokerPosition, error) {
	if m.positionsFunc != nil {
		return m.positionsFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *mockBroker) Close() error { return nil }

func (m *mockBroker) placedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.placedOrders)
}

func orderID(n int) string {
	return "ord-" + strconv.Itoa(n)
}

// ============================================================
// Mock Stores
// ============================================================

type mockPositionStore struct {
	mu        sync.Mutex
	nextID    int
	nextLegID int
	positions map[int]*models.Position

	createErr      error
	updateStateErr error
}

func newMockPositionStore() *mockPositionStore {
	return &mockPositionStore{
		nextID:    1,
		nextLegID: 100,
		positions: make(map[int]*models.Position),
	}
}

func (s *mockPositionStore) Create(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}

	p.ID = s.nextID
	s.nextID++
	p.OpenedAt = time.Now()
	for i := range p.Legs {
		p.Legs[i].ID = s.nextLegID
		s.nextLegID++
		p.Legs[i].PositionID = p.ID
	}
	s.positions[p.ID] = p.Clone()
	return nil
}

func (s *mockPositionStore) GetByID(id int) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, errNotFound
	}
	return p.Clone(), nil
}

func (s *mockPositionStore) GetActive() ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Position
	for _, p := range s.positions {
		if p.State != models.PositionStateClosed {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *mockPositionStore) GetActiveByFollower(followerID int) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Position
	for _, p := range s.positions {
		if p.FollowerID == followerID && p.State != models.PositionStateClosed {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *mockPositionStore) UpdateState(id int, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateStateErr != nil {
		return s.updateStateErr
	}

	p, ok := s.positions[id]
	if !ok {
		return errNotFound
	}
	p.State = state
	return nil
}

func (s *mockPositionStore) MarkClosed(id int, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return errNotFound
	}
	p.State = models.PositionStateClosed
	p.ClosedAt = &closedAt
	return nil
}

func (s *mockPositionStore) SupersedeLeg(legID int, newLeg *models.Leg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.positions {
		for i := range p.Legs {
			if p.Legs[i].ID == legID {
				// Удаление старой ноги и вставка новой
				p.Legs = append(p.Legs[:i], p.Legs[i+1:]...)
				if newLeg != nil {
					leg := *newLeg
					leg.ID = s.nextLegID
					s.nextLegID++
					p.Legs = append(p.Legs, leg)
				}
				return nil
			}
		}
	}
	return errNotFound
}

type mockAssignmentStore struct {
	mu       sync.Mutex
	nextID   int
	events   []*models.AssignmentEvent
	resolved []int
}

func newMockAssignmentStore() *mockAssignmentStore {
	return &mockAssignmentStore{nextID: 1}
}

func (s *mockAssignmentStore) Create(e *models.AssignmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *mockAssignmentStore) GetUnresolvedByPosition(positionID int) (*models.AssignmentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.PositionID != positionID {
			continue
		}
		resolved := false
		for _, id := range s.resolved {
			if id == e.ID {
				resolved = true
				break
			}
		}
		if !resolved {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *mockAssignmentStore) Resolve(id int, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolved = append(s.resolved, id)
	return nil
}

type mockFollowerStore struct {
	mu        sync.Mutex
	followers map[int]*models.FollowerAccount
	lastError map[int]string
}

func newMockFollowerStore(followers ...*models.FollowerAccount) *mockFollowerStore {
	s := &mockFollowerStore{
		followers: make(map[int]*models.FollowerAccount),
		lastError: make(map[int]string),
	}
	for _, f := range followers {
		s.followers[f.ID] = f
	}
	return s
}

func (s *mockFollowerStore) GetByID(id int) (*models.FollowerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.followers[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *mockFollowerStore) GetEnabled() ([]*models.FollowerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.FollowerAccount
	for _, f := range s.followers {
		if f.Enabled {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *mockFollowerStore) SetLastError(id int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError[id] = lastError
	return nil
}

type mockAttemptStore struct {
	mu       sync.Mutex
	attempts []*models.OrderAttempt
}

func (s *mockAttemptStore) Create(a *models.OrderAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.attempts = append(s.attempts, &cp)
	return nil
}

// record - callback для NewExecutor
func (s *mockAttemptStore) record(a *models.OrderAttempt) {
	_ = s.Create(a)
}

// ============================================================
// Mock Alert Sink
// ============================================================

type mockAlertSink struct {
	mu     sync.Mutex
	alerts []*models.AlertEvent
}

func (s *mockAlertSink) Publish(alert *models.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
}

func (s *mockAlertSink) byType(alertType string) []*models.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.AlertEvent
	for _, a := range s.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// waitForAlerts ждёт, пока sink получит хотя бы n алертов типа
func (s *mockAlertSink) waitForAlerts(alertType string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.byType(alertType)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return len(s.byType(alertType)) >= n
}

var errNotFound = notFoundError("not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }
