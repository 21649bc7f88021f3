package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/engine"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// ErrSignalQueueFull возвращается, когда входная очередь сигналов переполнена
var ErrSignalQueueFull = errors.New("signal queue is full")

// maxPendingSignals ограничивает входную очередь: источник стратегии
// не должен накапливать устаревшие сигналы при остановленном движке
const maxPendingSignals = 1024

// SignalService - входная очередь торговых сигналов мастер-стратегии.
//
// Сигналы поступают через управляющую поверхность (POST /api/v1/signals)
// и забираются движком поллингом. Дедупликацию по Signal.Key()
// выполняет движок, очередь только валидирует и буферизует.
type SignalService struct {
	mu      sync.Mutex
	pending []*models.Signal
}

var _ engine.SignalSource = (*SignalService)(nil)

// NewSignalService создает новый экземпляр сервиса
func NewSignalService() *SignalService {
	return &SignalService{}
}

// Submit валидирует сигнал и ставит его в очередь.
// IssuedAt по умолчанию - момент приема.
func (s *SignalService) Submit(sig *models.Signal) error {
	if sig.IssuedAt.IsZero() {
		sig.IssuedAt = time.Now()
	}
	if err := sig.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= maxPendingSignals {
		return ErrSignalQueueFull
	}

	cp := *sig
	s.pending = append(s.pending, &cp)
	return nil
}

// Poll возвращает и снимает с очереди все накопленные сигналы
func (s *SignalService) Poll(ctx context.Context) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, nil
	}

	out := s.pending
	s.pending = nil
	return out, nil
}

// PendingCount возвращает размер очереди (для health/диагностики)
func (s *SignalService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
