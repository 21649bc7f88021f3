package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/repository"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
)

// ErrMockDatabase имитирует ошибку базы данных
var ErrMockDatabase = errors.New("mock database error")

// ============ MockFollowerService ============

type MockFollowerService struct {
	mu        sync.Mutex
	nextID    int
	followers map[int]*models.FollowerAccount
	errors    map[string]error
}

func NewMockFollowerService() *MockFollowerService {
	return &MockFollowerService{
		nextID:    1,
		followers: make(map[int]*models.FollowerAccount),
		errors:    make(map[string]error),
	}
}

func (m *MockFollowerService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op] = err
}

func (m *MockFollowerService) AddFollower(name string, enabled bool) *models.FollowerAccount {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := &models.FollowerAccount{
		ID:              m.nextID,
		Name:            name,
		BrokerAccountID: "DU100",
		Enabled:         enabled,
		RebalancePolicy: models.RebalanceClose,
		CreatedAt:       time.Now(),
	}
	m.followers[f.ID] = f
	m.nextID++
	return f
}

func (m *MockFollowerService) Register(req *service.RegisterFollowerRequest) (*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["register"]; err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, service.ErrMissingName
	}
	if req.APIKey == "" || req.APISecret == "" {
		return nil, service.ErrMissingCredentials
	}
	policy := req.RebalancePolicy
	if policy == "" {
		policy = models.RebalanceClose
	}
	if !models.ValidRebalancePolicy(strings.ToUpper(policy)) {
		return nil, service.ErrInvalidPolicy
	}

	f := &models.FollowerAccount{
		ID:              m.nextID,
		Name:            req.Name,
		BrokerAccountID: req.BrokerAccountID,
		RebalancePolicy: strings.ToUpper(policy),
		CreatedAt:       time.Now(),
	}
	m.followers[f.ID] = f
	m.nextID++
	return f, nil
}

func (m *MockFollowerService) GetAll() ([]*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	out := make([]*models.FollowerAccount, 0, len(m.followers))
	for _, f := range m.followers {
		out = append(out, f)
	}
	return out, nil
}

func (m *MockFollowerService) GetByID(id int) (*models.FollowerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	f, ok := m.followers[id]
	if !ok {
		return nil, repository.ErrFollowerNotFound
	}
	return f, nil
}

func (m *MockFollowerService) UpdateCredentials(id int, apiKey, apiSecret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["update"]; err != nil {
		return err
	}
	if _, ok := m.followers[id]; !ok {
		return repository.ErrFollowerNotFound
	}
	return nil
}

func (m *MockFollowerService) UpdatePolicy(id int, policy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["update"]; err != nil {
		return err
	}
	f, ok := m.followers[id]
	if !ok {
		return repository.ErrFollowerNotFound
	}
	if !models.ValidRebalancePolicy(strings.ToUpper(policy)) {
		return service.ErrInvalidPolicy
	}
	f.RebalancePolicy = strings.ToUpper(policy)
	return nil
}

func (m *MockFollowerService) SetEnabled(id int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["update"]; err != nil {
		return err
	}
	f, ok := m.followers[id]
	if !ok {
		return repository.ErrFollowerNotFound
	}
	f.Enabled = enabled
	return nil
}

func (m *MockFollowerService) Remove(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["remove"]; err != nil {
		return err
	}
	if _, ok := m.followers[id]; !ok {
		return repository.ErrFollowerNotFound
	}
	delete(m.followers, id)
	return nil
}

func (m *MockFollowerService) Credentials(id int) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.followers[id]; !ok {
		return "", "", repository.ErrFollowerNotFound
	}
	return "key", "secret", nil
}

// ============ MockTradeService ============

type MockTradeService struct {
	mu        sync.Mutex
	positions map[int]*models.Position
	attempts  []*models.OrderAttempt
	closed    []int
	closedAll []int
	errors    map[string]error
}

func NewMockTradeService() *MockTradeService {
	return &MockTradeService{
		positions: make(map[int]*models.Position),
		errors:    make(map[string]error),
	}
}

func (m *MockTradeService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op] = err
}

func (m *MockTradeService) AddPosition(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
}

func (m *MockTradeService) GetActivePositions() ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	var out []*models.Position
	for _, p := range m.positions {
		if p.State != models.PositionStateClosed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockTradeService) GetPosition(id int) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	p, ok := m.positions[id]
	if !ok {
		return nil, repository.ErrPositionNotFound
	}
	return p, nil
}

func (m *MockTradeService) GetEpisodeAttempts(episodeID string) ([]*models.OrderAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	var out []*models.OrderAttempt
	for _, a := range m.attempts {
		if a.EpisodeID == episodeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockTradeService) ClosePosition(ctx context.Context, positionID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["close"]; err != nil {
		return err
	}
	if _, ok := m.positions[positionID]; !ok {
		return repository.ErrPositionNotFound
	}
	m.closed = append(m.closed, positionID)
	return nil
}

func (m *MockTradeService) CloseAllForFollower(ctx context.Context, followerID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["close"]; err != nil {
		return err
	}
	m.closedAll = append(m.closedAll, followerID)
	return nil
}

// ============ MockAlertService ============

type MockAlertService struct {
	mu     sync.Mutex
	alerts []*models.AlertEvent
	errors map[string]error
}

func NewMockAlertService() *MockAlertService {
	return &MockAlertService{errors: make(map[string]error)}
}

func (m *MockAlertService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op] = err
}

func (m *MockAlertService) AddAlert(alertType, severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts = append(m.alerts, &models.AlertEvent{
		ID:        len(m.alerts) + 1,
		Timestamp: time.Now(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
	})
}

func (m *MockAlertService) GetAlerts(types []string, limit int) ([]*models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[strings.ToUpper(strings.TrimSpace(t))] = true
	}

	var out []*models.AlertEvent
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if len(typeSet) == 0 || typeSet[m.alerts[i].Type] {
			out = append(out, m.alerts[i])
		}
	}
	return out, nil
}

func (m *MockAlertService) GetAlertsByFollower(followerID, limit int) ([]*models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["get"]; err != nil {
		return nil, err
	}
	var out []*models.AlertEvent
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.alerts[i]
		if a.FollowerID != nil && *a.FollowerID == followerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAlertService) CleanupOld(olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errors["cleanup"]; err != nil {
		return 0, err
	}
	var kept []*models.AlertEvent
	var deleted int64
	for _, a := range m.alerts {
		if a.Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return deleted, nil
}

// ============ MockSignalService ============

type MockSignalService struct {
	mu        sync.Mutex
	submitted []*models.Signal
	submitErr error
}

func NewMockSignalService() *MockSignalService {
	return &MockSignalService{}
}

func (m *MockSignalService) Submit(sig *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.submitErr != nil {
		return m.submitErr
	}
	if sig.IssuedAt.IsZero() {
		sig.IssuedAt = time.Now()
	}
	if err := sig.Validate(); err != nil {
		return err
	}
	m.submitted = append(m.submitted, sig)
	return nil
}

func (m *MockSignalService) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}
