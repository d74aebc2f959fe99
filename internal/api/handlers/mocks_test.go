package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// ============ Mock Engine ============

// MockEngine мок для EngineController
type MockEngine struct {
	mu sync.Mutex

	startErr error
	started  []models.EngineConfig
	stopped  int
	running  bool
	lastErr  error

	trades []models.TradeRecord
	cycles []*models.TradeCycle
	stats  models.PerformanceStats
	risk   models.RiskState
}

func (m *MockEngine) Start(ctx context.Context, cfg models.EngineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, cfg)
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *MockEngine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	m.running = false
}

func (m *MockEngine) Status() models.EngineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := ""
	if n := len(m.started); n > 0 {
		pair = m.started[n-1].Pair
	}
	return models.EngineStatus{Running: m.running, Pair: pair, State: models.CycleIdle, Risk: m.risk}
}

func (m *MockEngine) Stats() models.PerformanceStats { return m.stats }
func (m *MockEngine) Trades() []models.TradeRecord   { return m.trades }
func (m *MockEngine) Cycles() []*models.TradeCycle   { return m.cycles }
func (m *MockEngine) LastError() error               { return m.lastErr }
func (m *MockEngine) State() models.RiskState        { return m.risk }

func (m *MockEngine) Config() models.EngineConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.started); n > 0 {
		return m.started[n-1]
	}
	return models.EngineConfig{}
}

// ============ Mock Ledger ============

// MockLedger мок для LedgerStatsProvider
type MockLedger struct {
	stats   models.LedgerStats
	records []models.TradeRecord
	err     error
	limit   int
}

func (m *MockLedger) Snapshot(ctx context.Context) (models.LedgerStats, error) {
	return m.stats, m.err
}

func (m *MockLedger) Recent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	m.limit = limit
	return m.records, m.err
}

// ============ Mock Balances ============

type MockBalances struct {
	balances map[string]exchange.Balance
	at       time.Time
}

func (m *MockBalances) LastBalances() (map[string]exchange.Balance, time.Time, bool) {
	return m.balances, m.at, m.balances != nil
}

var errMock = errors.New("mock failure")

func sampleTrades() []models.TradeRecord {
	ts := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	return []models.TradeRecord{
		{ID: "t-1", Type: models.TradeBuy, Price: 100, Timestamp: ts},
		{ID: "t-2", Type: models.TradeSell, Price: 102, ProfitPct: 2, Timestamp: ts.Add(time.Minute)},
		{ID: "t-3", Type: models.TradeBuy, Price: 101, Timestamp: ts.Add(2 * time.Minute)},
	}
}
