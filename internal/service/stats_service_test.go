package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cyclebot/internal/models"
)

// ============================================================
// Фейковый журнал
// ============================================================

type fakeLedger struct {
	overall    models.PerformanceStats
	periods    map[time.Time]models.PeriodStats
	stopLosses int
	byPair     []models.PairStat
	records    []models.TradeRecord

	err error

	periodCalls []time.Time
	reason      string
	limit       int
	since       time.Time
}

func (f *fakeLedger) Overall(ctx context.Context) (models.PerformanceStats, error) {
	return f.overall, f.err
}

func (f *fakeLedger) Period(ctx context.Context, since time.Time) (models.PeriodStats, error) {
	f.periodCalls = append(f.periodCalls, since)
	return f.periods[since], nil
}

func (f *fakeLedger) CountByReason(ctx context.Context, reason string) (int, error) {
	f.reason = reason
	return f.stopLosses, nil
}

func (f *fakeLedger) ByPair(ctx context.Context) ([]models.PairStat, error) {
	return f.byPair, nil
}

func (f *fakeLedger) ListRecent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func (f *fakeLedger) ListSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	f.since = since
	return f.records, f.err
}

type fakeStatsHub struct {
	got []models.LedgerStats
}

func (h *fakeStatsHub) BroadcastStats(stats models.LedgerStats) {
	h.got = append(h.got, stats)
}

type fakeRestorer struct {
	records []models.TradeRecord
}

func (r *fakeRestorer) Restore(records []models.TradeRecord) int {
	r.records = records
	return len(records)
}

var statsNow = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

func newTestStatsService(l *fakeLedger) *StatsService {
	s := NewStatsService(l)
	s.SetClock(func() time.Time { return statsNow }, time.UTC)
	return s
}

// ============================================================
// Snapshot
// ============================================================

func TestStatsService_Snapshot(t *testing.T) {
	dayStart := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	weekStart := statsNow.AddDate(0, 0, -7)

	l := &fakeLedger{
		overall: models.PerformanceStats{TotalTrades: 4, ProfitableTrades: 3, LossTrades: 1, TotalProfit: 4.5},
		periods: map[time.Time]models.PeriodStats{
			dayStart:  {Trades: 1, ProfitPct: 2},
			weekStart: {Trades: 4, ProfitPct: 4.5},
		},
		stopLosses: 1,
		byPair:     []models.PairStat{{Pair: "BTCTRY", Trades: 4, ProfitPct: 4.5}},
	}

	stats, err := newTestStatsService(l).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if stats.Overall.TotalTrades != 4 || stats.Overall.TotalProfit != 4.5 {
		t.Errorf("Overall = %+v", stats.Overall)
	}
	if stats.Today.Trades != 1 || stats.Week.Trades != 4 {
		t.Errorf("Today = %+v, Week = %+v", stats.Today, stats.Week)
	}
	if len(l.periodCalls) != 2 || !l.periodCalls[0].Equal(dayStart) || !l.periodCalls[1].Equal(weekStart) {
		t.Errorf("period bounds = %v", l.periodCalls)
	}
	if l.reason != models.ExitReasonStopLoss || stats.StopLosses != 1 {
		t.Errorf("stop-loss reason %q, count %d", l.reason, stats.StopLosses)
	}
	if len(stats.ByPair) != 1 || !stats.UpdatedAt.Equal(statsNow) {
		t.Errorf("ByPair = %+v, UpdatedAt = %v", stats.ByPair, stats.UpdatedAt)
	}
}

func TestStatsService_SnapshotEmptyAndError(t *testing.T) {
	stats, err := newTestStatsService(&fakeLedger{}).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	// пустой список, а не null в JSON
	if stats.ByPair == nil {
		t.Error("ByPair must be empty slice")
	}

	dbErr := errors.New("db down")
	_, err = newTestStatsService(&fakeLedger{err: dbErr}).Snapshot(context.Background())
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped db error", err)
	}
}

// ============================================================
// Recent / RestoreRisk / Refresh
// ============================================================

func TestStatsService_RecentLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 100},
		{-1, 100},
		{20, 20},
		{5000, 100},
	}

	for _, tt := range tests {
		l := &fakeLedger{}
		if _, err := newTestStatsService(l).Recent(context.Background(), tt.in); err != nil {
			t.Fatalf("Recent(%d): %v", tt.in, err)
		}
		if l.limit != tt.want {
			t.Errorf("Recent(%d) limit = %d, want %d", tt.in, l.limit, tt.want)
		}
	}
}

func TestStatsService_RestoreRisk(t *testing.T) {
	l := &fakeLedger{records: []models.TradeRecord{
		{Type: models.TradeSell, ProfitPct: -2, Timestamp: statsNow.Add(-time.Hour)},
		{Type: models.TradeSell, ProfitPct: 1, Timestamp: statsNow.AddDate(0, 0, -1)},
	}}
	r := &fakeRestorer{}

	n, err := newTestStatsService(l).RestoreRisk(context.Background(), r)
	if err != nil {
		t.Fatalf("RestoreRisk: %v", err)
	}
	if n != 2 || len(r.records) != 2 {
		t.Errorf("restored %d, gate got %d", n, len(r.records))
	}
	// начало вчерашних суток
	want := time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC)
	if !l.since.Equal(want) {
		t.Errorf("since = %v, want %v", l.since, want)
	}

	if _, err := newTestStatsService(&fakeLedger{err: errors.New("boom")}).RestoreRisk(context.Background(), r); err == nil {
		t.Error("expected ledger error")
	}
}

func TestStatsService_Refresh(t *testing.T) {
	hub := &fakeStatsHub{}
	s := newTestStatsService(&fakeLedger{overall: models.PerformanceStats{TotalTrades: 2}})

	// без hub ничего не происходит
	s.Refresh(context.Background())

	s.SetWebSocketHub(hub)
	s.Refresh(context.Background())
	if len(hub.got) != 1 || hub.got[0].Overall.TotalTrades != 2 {
		t.Errorf("broadcast = %+v", hub.got)
	}

	failing := newTestStatsService(&fakeLedger{err: errors.New("boom")})
	failing.SetWebSocketHub(hub)
	failing.Refresh(context.Background())
	if len(hub.got) != 1 {
		t.Error("failed snapshot must not be broadcast")
	}
}
