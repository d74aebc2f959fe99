package models

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"cyclebot/pkg/utils"
)

// ============ EngineConfig Tests ============

func TestEngineConfig_WithDefaults(t *testing.T) {
	cfg := EngineConfig{Pair: "btc_try", TargetProfitPct: 2, TradeAmount: 500}.WithDefaults()

	if cfg.Pair != "BTCTRY" {
		t.Errorf("Pair = %q, want BTCTRY", cfg.Pair)
	}
	if cfg.QuoteAsset != "TRY" {
		t.Errorf("QuoteAsset = %q, want TRY", cfg.QuoteAsset)
	}
	if cfg.StopLossPct != DefaultStopLossPct {
		t.Errorf("StopLossPct = %v, want %v", cfg.StopLossPct, DefaultStopLossPct)
	}
	if cfg.CheckInterval() != time.Second {
		t.Errorf("CheckInterval = %v, want 1s", cfg.CheckInterval())
	}
	if cfg.BaseAsset() != "BTC" {
		t.Errorf("BaseAsset = %q, want BTC", cfg.BaseAsset())
	}
}

func TestEngineConfig_BaseAssetExplicitQuote(t *testing.T) {
	cfg := EngineConfig{Pair: "ASRTRY", QuoteAsset: "TRY"}
	if got := cfg.BaseAsset(); got != "ASR" {
		t.Errorf("BaseAsset = %q, want ASR", got)
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	valid := EngineConfig{Pair: "BTCTRY", TargetProfitPct: 2, StopLossPct: -5, TradeAmount: 1000}

	tests := []struct {
		name     string
		mutate   func(c *EngineConfig)
		wantErr  bool
		errField string
	}{
		{"valid", func(c *EngineConfig) {}, false, ""},
		{"empty pair", func(c *EngineConfig) { c.Pair = "" }, true, "pair"},
		{"zero target", func(c *EngineConfig) { c.TargetProfitPct = 0 }, true, "target_profit_pct"},
		{"positive stoploss", func(c *EngineConfig) { c.StopLossPct = 3 }, true, "stop_loss_pct"},
		{"zero amount", func(c *EngineConfig) { c.TradeAmount = 0 }, true, "trade_amount"},
		{"negative interval", func(c *EngineConfig) { c.CheckIntervalMs = -1 }, true, "check_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var verrs utils.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errField) {
				t.Errorf("error %q should mention %q", err, tt.errField)
			}
		})
	}
}

// ============ TradeCycle Tests ============

func TestCycleState_IsTerminal(t *testing.T) {
	terminal := map[CycleState]bool{
		CycleIdle:             false,
		CycleBuyPlaced:        false,
		CycleAwaitingBuyFill:  false,
		CycleSellPlaced:       false,
		CycleAwaitingSellFill: false,
		CycleCompleted:        true,
		CycleAborted:          true,
	}
	for state, want := range terminal {
		if got := state.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", state, got, want)
		}
	}
}

func TestTradeCycle_UnrealizedPct(t *testing.T) {
	c := &TradeCycle{BuyPrice: 100}

	if got := c.UnrealizedPct(102.5); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("UnrealizedPct(102.5) = %v, want 2.5", got)
	}
	if got := c.UnrealizedPct(0); got != 0 {
		t.Errorf("UnrealizedPct(0) = %v, want 0", got)
	}
	if got := (&TradeCycle{}).UnrealizedPct(100); got != 0 {
		t.Errorf("without buy price = %v, want 0", got)
	}
}

func TestTradeCycle_Clone(t *testing.T) {
	closed := time.Now()
	c := &TradeCycle{ID: "c1", State: CycleCompleted, ClosedAt: &closed}

	cp := c.Clone()
	cp.State = CycleAborted
	*cp.ClosedAt = closed.Add(time.Hour)

	if c.State != CycleCompleted {
		t.Error("Clone shares State with original")
	}
	if !c.ClosedAt.Equal(closed) {
		t.Error("Clone shares ClosedAt with original")
	}
	if (*TradeCycle)(nil).Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestTradeCycle_HasPosition(t *testing.T) {
	tests := []struct {
		name  string
		cycle TradeCycle
		want  bool
	}{
		{"awaiting buy", TradeCycle{State: CycleAwaitingBuyFill}, false},
		{"awaiting sell", TradeCycle{State: CycleAwaitingSellFill, ConfirmedQty: 0.01}, true},
		{"completed", TradeCycle{State: CycleCompleted, ConfirmedQty: 0.01}, false},
	}
	for _, tt := range tests {
		if got := tt.cycle.HasPosition(); got != tt.want {
			t.Errorf("%s: HasPosition() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ============ TradeRecord Tests ============

func TestTradeRecord_LedgerFormat(t *testing.T) {
	rec := TradeRecord{
		Type:      TradeSell,
		Price:     102.5,
		Amount:    0.01,
		ProfitPct: 2.5,
		Timestamp: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	// Поля файла истории
	for _, field := range []string{`"type":"sell"`, `"price":102.5`, `"amount":0.01`, `"profit":2.5`, `"timestamp":"2024-01-15T10:00:00Z"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("JSON %s не содержит %s", data, field)
		}
	}
}

// ============ PerformanceStats Tests ============

func TestComputePerformance(t *testing.T) {
	records := []TradeRecord{
		{Type: TradeBuy, Price: 100},
		{Type: TradeSell, ProfitPct: 2.5},
		{Type: TradeBuy, Price: 100},
		{Type: TradeSell, ProfitPct: -5},
		{Type: TradeSell, ProfitPct: 1.5},
		{Type: TradeSell, ProfitPct: 0},
	}

	s := ComputePerformance(records)

	if s.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", s.TotalTrades)
	}
	// сделка с нулевой прибылью считается убыточной
	if s.ProfitableTrades != 2 || s.LossTrades != 2 {
		t.Errorf("profitable/loss = %d/%d, want 2/2", s.ProfitableTrades, s.LossTrades)
	}
	if math.Abs(s.TotalProfit-(-1)) > 1e-9 {
		t.Errorf("TotalProfit = %v, want -1", s.TotalProfit)
	}
	if math.Abs(s.AverageProfit-(-0.25)) > 1e-9 {
		t.Errorf("AverageProfit = %v, want -0.25", s.AverageProfit)
	}
	if s.WinRate != 50 {
		t.Errorf("WinRate = %v, want 50", s.WinRate)
	}
}

func TestComputePerformance_ZeroProfit(t *testing.T) {
	s := ComputePerformance([]TradeRecord{{Type: TradeSell, ProfitPct: 0}})
	if s.TotalTrades != 1 || s.ProfitableTrades != 0 || s.LossTrades != 1 || s.WinRate != 0 {
		t.Errorf("stats = %+v, want one loss", s)
	}
}

func TestComputePerformance_Empty(t *testing.T) {
	s := ComputePerformance(nil)
	if s != (PerformanceStats{}) {
		t.Errorf("empty ledger stats = %+v, want zero", s)
	}
}

func TestDefaultRiskLimits(t *testing.T) {
	l := DefaultRiskLimits()
	if l.MaxDailyLossPct != 5 || l.MaxPositionSizePct != 20 || l.MaxTradesPerDay != 10 {
		t.Errorf("DefaultRiskLimits = %+v", l)
	}
}
