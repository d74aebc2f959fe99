package service

import (
	"context"
	"fmt"
	"time"

	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// LedgerReader - выборки из постоянного журнала сделок
//
// Реализуется repository.TradeRepository.
type LedgerReader interface {
	Overall(ctx context.Context) (models.PerformanceStats, error)
	Period(ctx context.Context, since time.Time) (models.PeriodStats, error)
	CountByReason(ctx context.Context, reason string) (int, error)
	ByPair(ctx context.Context) ([]models.PairStat, error)
	ListRecent(ctx context.Context, limit int) ([]models.TradeRecord, error)
	ListSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error)
}

// StatsBroadcaster - интерфейс для отправки обновлений статистики через WebSocket
type StatsBroadcaster interface {
	BroadcastStats(stats models.LedgerStats)
}

// RiskRestorer - риск-менеджер, восстанавливающий дневной учёт из журнала
type RiskRestorer interface {
	Restore(records []models.TradeRecord) int
}

// StatsService - статистика между сессиями по журналу сделок.
//
// Функции:
// - Snapshot: итоги, сегодня, неделя, стоп-лоссы, разбивка по парам
// - Recent: последние записи журнала
// - RestoreRisk: дневной учёт риск-менеджера после перезапуска
// - Refresh: пересчёт и рассылка через WebSocket после сделки
type StatsService struct {
	ledger LedgerReader
	wsHub  StatsBroadcaster
	loc    *time.Location
	now    func() time.Time
	log    *utils.Logger
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(ledger LedgerReader) *StatsService {
	return &StatsService{
		ledger: ledger,
		loc:    time.Local,
		now:    time.Now,
		log:    utils.L().WithComponent("stats"),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast статистики.
//
// Вызывается после инициализации Hub в main.go:
//
//	statsService := service.NewStatsService(tradeRepo)
//	statsService.SetWebSocketHub(wsHub)
func (s *StatsService) SetWebSocketHub(hub StatsBroadcaster) {
	s.wsHub = hub
}

// SetClock подменяет часы и часовой пояс границ суток (для тестов)
func (s *StatsService) SetClock(now func() time.Time, loc *time.Location) {
	if now != nil {
		s.now = now
	}
	if loc != nil {
		s.loc = loc
	}
}

// Snapshot собирает статистику журнала
func (s *StatsService) Snapshot(ctx context.Context) (models.LedgerStats, error) {
	now := s.now()
	out := models.LedgerStats{UpdatedAt: now.UTC()}

	var err error
	if out.Overall, err = s.ledger.Overall(ctx); err != nil {
		return models.LedgerStats{}, fmt.Errorf("overall stats: %w", err)
	}
	if out.Today, err = s.ledger.Period(ctx, utils.DayStartIn(now, s.loc)); err != nil {
		return models.LedgerStats{}, fmt.Errorf("today stats: %w", err)
	}
	if out.Week, err = s.ledger.Period(ctx, utils.LastNDays(now, 7).Start); err != nil {
		return models.LedgerStats{}, fmt.Errorf("week stats: %w", err)
	}
	if out.StopLosses, err = s.ledger.CountByReason(ctx, models.ExitReasonStopLoss); err != nil {
		return models.LedgerStats{}, fmt.Errorf("stop-loss count: %w", err)
	}
	if out.ByPair, err = s.ledger.ByPair(ctx); err != nil {
		return models.LedgerStats{}, fmt.Errorf("pair stats: %w", err)
	}
	if out.ByPair == nil {
		out.ByPair = []models.PairStat{}
	}
	return out, nil
}

// Recent - последние записи журнала, новые первыми
func (s *StatsService) Recent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.ledger.ListRecent(ctx, limit)
}

// RestoreRisk передаёт риск-менеджеру продажи со вчерашнего дня
//
// Возвращает число учтённых записей.
func (s *StatsService) RestoreRisk(ctx context.Context, gate RiskRestorer) (int, error) {
	since := utils.DayStartIn(s.now(), s.loc).AddDate(0, 0, -1)
	records, err := s.ledger.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("load ledger since %s: %w", utils.DayKey(since), err)
	}
	n := gate.Restore(records)
	s.log.Info("Risk ledger restored",
		utils.Int("records", len(records)),
		utils.Int("applied", n))
	return n, nil
}

// Refresh пересчитывает статистику и рассылает её подписчикам
func (s *StatsService) Refresh(ctx context.Context) {
	if s.wsHub == nil {
		return
	}
	stats, err := s.Snapshot(ctx)
	if err != nil {
		s.log.Warn("Stats refresh failed", utils.Err(err))
		return
	}
	s.wsHub.BroadcastStats(stats)
}
