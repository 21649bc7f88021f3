package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

type mockSignalSource struct {
	mu      sync.Mutex
	pending []*models.Signal
}

func (s *mockSignalSource) push(sig *models.Signal) {
	s.mu.Lock()
	s.pending = append(s.pending, sig)
	s.mu.Unlock()
}

func (s *mockSignalSource) Poll(ctx context.Context) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.pending
	s.pending = nil
	return out, nil
}

type engineFixture struct {
	engine      *Engine
	broker      *mockBroker
	positions   *mockPositionStore
	assignments *mockAssignmentStore
	followers   *mockFollowerStore
	attempts    *mockAttemptStore
	signals     *mockSignalSource
	sink        *mockAlertSink
}

func newEngineFixture(b *mockBroker) *engineFixture {
	f := &engineFixture{
		broker:      b,
		positions:   newMockPositionStore(),
		assignments: newMockAssignmentStore(),
		followers:   newMockFollowerStore(testFollower()),
		attempts:    &mockAttemptStore{},
		signals:     &mockSignalSource{},
		sink:        &mockAlertSink{},
	}
	f.engine = New(b, f.positions, f.assignments, f.followers, f.attempts,
		f.signals, f.sink, testEngineConfig())
	return f
}

func fillingBroker() *mockBroker {
	b := &mockBroker{getQuoteFunc: spreadQuotes(1.20)}
	b.orderStatusFunc = func(ctx context.Context, id string) (*broker.OrderState, error) {
		return &broker.OrderState{OrderID: id, Status: broker.OrderStatusFilled, FilledQty: 10, AvgFillPrice: 1.20}, nil
	}
	return b
}

func TestHandleSignalFilledOpensPosition(t *testing.T) {
	f := newEngineFixture(fillingBroker())

	res := f.engine.HandleSignal(context.Background(), testSignal())
	if res == nil || res.State != EpisodeFilled {
		t.Fatalf("result = %+v, want FILLED", res)
	}

	// Исполненный эпизод открывает позицию
	positions, _ := f.positions.GetActiveByFollower(7)
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.EpisodeID != res.EpisodeID {
		t.Errorf("position episode = %s, want %s", p.EpisodeID, res.EpisodeID)
	}
	if short := p.ShortLeg(); short == nil || short.EntryPrice != 1.20 {
		t.Errorf("short leg = %+v", short)
	}

	// Исполнение не порождает алертов
	time.Sleep(20 * time.Millisecond)
	f.sink.mu.Lock()
	n := len(f.sink.alerts)
	f.sink.mu.Unlock()
	if n != 0 {
		t.Errorf("alerts after fill = %d, want 0", n)
	}

	// Попытка записана
	if len(f.attempts.attempts) != 1 {
		t.Errorf("attempts recorded = %d, want 1", len(f.attempts.attempts))
	}
}

func TestHandleSignalDisabledFollowerSkipped(t *testing.T) {
	b := fillingBroker()
	f := newEngineFixture(b)
	f.followers.followers[7].Enabled = false

	res := f.engine.HandleSignal(context.Background(), testSignal())
	if res != nil {
		t.Errorf("result = %+v, want nil for disabled follower", res)
	}
	if b.placedCount() != 0 {
		t.Error("disabled follower must not trade")
	}
}

func TestHandleSignalUnknownFollowerSkipped(t *testing.T) {
	b := fillingBroker()
	f := newEngineFixture(b)

	sig := testSignal()
	sig.FollowerID = 99

	if res := f.engine.HandleSignal(context.Background(), sig); res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if b.placedCount() != 0 {
		t.Error("unknown follower must not trade")
	}
}

func TestHandleSignalTerminalFailureEmitsOneAlert(t *testing.T) {
	b := &mockBroker{getQuoteFunc: spreadQuotes(0.55)}
	f := newEngineFixture(b)

	res := f.engine.HandleSignal(context.Background(), testSignal())
	if res.State != EpisodeMidTooLow {
		t.Fatalf("state = %s", res.State)
	}

	if !f.sink.waitForAlerts(models.AlertTypeMidTooLow, 1, time.Second) {
		t.Fatal("MID_TOO_LOW alert not emitted")
	}

	alerts := f.sink.byType(models.AlertTypeMidTooLow)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(alerts))
	}
	alert := alerts[0]
	if alert.FollowerID == nil || *alert.FollowerID != 7 {
		t.Errorf("alert follower = %v", alert.FollowerID)
	}
	if alert.Severity != models.SeverityWarn {
		t.Errorf("severity = %s, want WARN", alert.Severity)
	}
	if _, ok := alert.Params["mid"]; !ok {
		t.Error("MID_TOO_LOW alert must carry observed mid")
	}
}

func TestHandleSignalGatewayFailureRecordsFollowerError(t *testing.T) {
	b := &mockBroker{
		getQuoteFunc: func(ctx context.Context, c broker.Contract) (*broker.Quote, error) {
			return nil, &broker.GatewayError{Op: "quote", Message: "connection refused", Err: context.DeadlineExceeded}
		},
	}
	f := newEngineFixture(b)

	res := f.engine.HandleSignal(context.Background(), testSignal())
	if res.State != EpisodeGatewayUnreachable {
		t.Fatalf("state = %s", res.State)
	}

	if !f.sink.waitForAlerts(models.AlertTypeGatewayUnreachable, 1, time.Second) {
		t.Fatal("GATEWAY_UNREACHABLE alert not emitted")
	}

	f.followers.mu.Lock()
	lastErr := f.followers.lastError[7]
	f.followers.mu.Unlock()
	if lastErr == "" {
		t.Error("gateway failure must be recorded on the follower")
	}
}

func TestSignalDeduplication(t *testing.T) {
	f := newEngineFixture(fillingBroker())

	sig := testSignal()
	if !f.engine.markSeen(sig.Key()) {
		t.Error("first occurrence must be accepted")
	}
	if f.engine.markSeen(sig.Key()) {
		t.Error("duplicate signal must be rejected")
	}

	other := testSignal()
	other.IssuedAt = sig.IssuedAt
	other.FollowerID = 8
	if !f.engine.markSeen(other.Key()) {
		t.Error("same spread for another follower is a distinct signal")
	}
}

func TestLimitReachedAlertCarriesLadderPrices(t *testing.T) {
	b := &mockBroker{getQuoteFunc: spreadQuotes(1.20)}
	f := newEngineFixture(b)

	res := f.engine.HandleSignal(context.Background(), testSignal())
	if res.State != EpisodeLimitReached {
		t.Fatalf("state = %s, want LIMIT_REACHED", res.State)
	}

	if !f.sink.waitForAlerts(models.AlertTypeLimitReached, 1, time.Second) {
		t.Fatal("LIMIT_REACHED alert not emitted")
	}

	alert := f.sink.byType(models.AlertTypeLimitReached)[0]
	initial, ok := alert.Params["initial_price"].(float64)
	if !ok || !priceEq(initial, 1.20) {
		t.Errorf("initial_price = %v, want 1.20", alert.Params["initial_price"])
	}
	final, ok := alert.Params["final_price"].(float64)
	if !ok || !priceEq(final, 0.75) {
		t.Errorf("final_price = %v, want 0.75", alert.Params["final_price"])
	}
	if n, _ := alert.Params["attempts"].(int); n != 10 {
		t.Errorf("attempts = %v, want 10", alert.Params["attempts"])
	}
}

func TestSeenKeysPrunedAfterRetention(t *testing.T) {
	f := newEngineFixture(fillingBroker())

	sig := testSignal()
	if !f.engine.markSeen(sig.Key()) {
		t.Fatal("first occurrence must be accepted")
	}
	if f.engine.markSeen(sig.Key()) {
		t.Fatal("duplicate must be rejected before pruning")
	}

	f.engine.pruneSeen(time.Now().Add(time.Minute))

	if !f.engine.markSeen(sig.Key()) {
		t.Error("pruned key must be accepted again")
	}
}

func TestEngineStartProcessesPolledSignals(t *testing.T) {
	f := newEngineFixture(fillingBroker())

	cfg := testEngineConfig()
	cfg.SignalPoll = 5 * time.Millisecond
	cfg.ReconcileInterval = time.Hour
	cfg.RiskInterval = time.Hour
	f.engine.cfg = cfg

	f.signals.push(testSignal())

	f.engine.Start()
	defer f.engine.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		positions, _ := f.positions.GetActiveByFollower(7)
		if len(positions) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("polled signal was not executed")
}

func TestCloseAllForFollower(t *testing.T) {
	f := newEngineFixture(fillingBroker())

	for i := 0; i < 3; i++ {
		sig := testSignal()
		sig.ShortStrike = 5600 + float64(i)*10
		sig.LongStrike = 5550 + float64(i)*10
		if res := f.engine.HandleSignal(context.Background(), sig); res.State != EpisodeFilled {
			t.Fatalf("setup fill failed: %s", res.State)
		}
	}

	if err := f.engine.CloseAllForFollower(context.Background(), 7, "follower disabled"); err != nil {
		t.Fatalf("CloseAllForFollower() error: %v", err)
	}

	positions, _ := f.positions.GetActiveByFollower(7)
	if len(positions) != 0 {
		t.Errorf("active positions after close-all = %d, want 0", len(positions))
	}
}
