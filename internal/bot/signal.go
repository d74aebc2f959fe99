package bot

import (
	"sync"
	"time"

	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// ============================================================
// Пороги стратегии
// ============================================================

const (
	// DefaultHistoryCapacity - размер кольцевого буфера цен
	DefaultHistoryCapacity = 1000

	// minEntryPoints - при меньшей истории вход разрешён всегда
	minEntryPoints = 10

	trendThresholdPct = 0.5
	minTrendPoints    = 3

	entryTrendWindow      = 5 * time.Minute
	entryVolatilityWindow = 10 * time.Minute
	entryMaxVolatilityPct = 2.0
	dipLookback           = 5
	dipThresholdPct       = 1.0

	exitTrendWindow        = 2 * time.Minute
	exitVolatilityWindow   = 5 * time.Minute
	exitMinVolatilityPct   = 3.0
	exitTargetFraction     = 0.8
	sizingVolatilityWindow = 10 * time.Minute
)

// SignalEngine - история цен и эвристики входа/выхода
//
// Все методы безопасны для вызова из разных горутин: тикер пишет цены,
// рабочая горутина движка читает сигналы.
type SignalEngine struct {
	mu sync.RWMutex

	// кольцевой буфер: head - самая старая точка
	buf  []models.PricePoint
	head int
	size int

	trades   []models.TradeRecord
	tradeCap int

	now func() time.Time
}

// NewSignalEngine создаёт движок сигналов; capacity <= 0 - DefaultHistoryCapacity
func NewSignalEngine(capacity int) *SignalEngine {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &SignalEngine{
		buf:      make([]models.PricePoint, capacity),
		tradeCap: capacity,
		now:      time.Now,
	}
}

// SetClock подменяет часы (для тестов)
func (s *SignalEngine) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddPrice добавляет цену с текущим временем
func (s *SignalEngine) AddPrice(price float64) {
	s.mu.RLock()
	now := s.now()
	s.mu.RUnlock()
	s.AddPoint(models.PricePoint{Price: price, Timestamp: now})
}

// AddPoint добавляет наблюдение; при заполнении вытесняется самое старое
func (s *SignalEngine) AddPoint(p models.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = p
		s.size++
		return
	}
	s.buf[s.head] = p
	s.head = (s.head + 1) % len(s.buf)
}

// Len - число точек в истории
func (s *SignalEngine) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity - ёмкость буфера
func (s *SignalEngine) Capacity() int {
	return len(s.buf)
}

// Points возвращает копию истории от старых к новым
func (s *SignalEngine) Points() []models.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PricePoint, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.at(i)
	}
	return out
}

// Reset очищает историю цен и сделок
func (s *SignalEngine) Reset() {
	s.mu.Lock()
	s.head, s.size = 0, 0
	s.trades = nil
	s.mu.Unlock()
}

func (s *SignalEngine) at(i int) models.PricePoint {
	return s.buf[(s.head+i)%len(s.buf)]
}

// windowLocked - цены за последние window (включая границу)
func (s *SignalEngine) windowLocked(window time.Duration) []float64 {
	cutoff := s.now().Add(-window)
	prices := make([]float64, 0, s.size)
	for i := 0; i < s.size; i++ {
		p := s.at(i)
		if !p.Timestamp.Before(cutoff) {
			prices = append(prices, p.Price)
		}
	}
	return prices
}

// ============================================================
// Индикаторы
// ============================================================

// Trend сравнивает средние первой и второй половины окна
//
// При нечётном числе точек средняя точка не входит ни в одну половину.
func (s *SignalEngine) Trend(window time.Duration) models.Trend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trendLocked(window)
}

func (s *SignalEngine) trendLocked(window time.Duration) models.Trend {
	prices := s.windowLocked(window)
	if len(prices) < minTrendPoints {
		return models.TrendStable
	}

	half := len(prices) / 2
	first := utils.Mean(prices[:half])
	second := utils.Mean(prices[len(prices)-half:])
	if first <= 0 {
		return models.TrendStable
	}

	change := utils.PercentChange(first, second)
	switch {
	case change > trendThresholdPct:
		return models.TrendRising
	case change < -trendThresholdPct:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

// Volatility - (max-min)/mean*100 за окно; 0 если точек меньше двух
func (s *SignalEngine) Volatility(window time.Duration) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volatilityLocked(window)
}

func (s *SignalEngine) volatilityLocked(window time.Duration) float64 {
	prices := s.windowLocked(window)
	if len(prices) < 2 {
		return 0
	}
	mean := utils.Mean(prices)
	if mean <= 0 {
		return 0
	}
	lo, hi := utils.MinMax(prices)
	return (hi - lo) / mean * 100
}

// MovingAverage - среднее последних periods точек; 0 при нехватке истории
func (s *SignalEngine) MovingAverage(periods int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if periods <= 0 || s.size < periods {
		return 0
	}
	prices := make([]float64, 0, periods)
	for i := s.size - periods; i < s.size; i++ {
		prices = append(prices, s.at(i).Price)
	}
	return utils.Mean(prices)
}

// ============================================================
// Рекомендации
// ============================================================

// ShouldEnter решает, можно ли покупать по текущей цене
//
// Любое из условий: мало истории; низкая волатильность без падения;
// цена упала больше чем на 1% относительно точки пятью наблюдениями ранее.
func (s *SignalEngine) ShouldEnter(price, balance float64) bool {
	if price <= 0 || balance <= 0 {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size < minEntryPoints {
		return true
	}

	trend := s.trendLocked(entryTrendWindow)
	if s.volatilityLocked(entryVolatilityWindow) < entryMaxVolatilityPct && trend != models.TrendFalling {
		return true
	}

	if s.size >= dipLookback {
		ref := s.at(s.size - dipLookback).Price
		if ref > 0 && (ref-price)/ref*100 > dipThresholdPct {
			return true
		}
	}
	return false
}

// ShouldExit решает, закрывать ли позицию, и возвращает причину
func (s *SignalEngine) ShouldExit(price, buyPrice, targetPct, stopLossPct float64) (bool, string) {
	if price <= 0 || buyPrice <= 0 {
		return false, ""
	}

	profit := utils.PercentChange(buyPrice, price)
	if profit >= targetPct {
		return true, models.ExitReasonTarget
	}
	if profit <= stopLossPct {
		return true, models.ExitReasonStopLoss
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if profit >= targetPct*exitTargetFraction &&
		s.trendLocked(exitTrendWindow) == models.TrendFalling &&
		s.volatilityLocked(exitVolatilityWindow) > exitMinVolatilityPct {
		return true, models.ExitReasonTrendReversal
	}
	return false, ""
}

// RecommendedPositionSize уменьшает долю риска при высокой волатильности
func (s *SignalEngine) RecommendedPositionSize(balance, riskPct float64) float64 {
	if balance <= 0 || riskPct <= 0 {
		return 0
	}

	vol := s.Volatility(sizingVolatilityWindow)
	multiplier := 1.0
	switch {
	case vol > 5:
		multiplier = 0.5
	case vol > 3:
		multiplier = 0.7
	}
	return balance * riskPct * multiplier / 100
}

// ============================================================
// Журнал сделок в памяти
// ============================================================

// AddTrade добавляет запись в журнал текущего процесса
func (s *SignalEngine) AddTrade(rec models.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, rec)
	if len(s.trades) > s.tradeCap {
		s.trades = append([]models.TradeRecord(nil), s.trades[len(s.trades)-s.tradeCap:]...)
	}
}

// Trades возвращает копию журнала
func (s *SignalEngine) Trades() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TradeRecord(nil), s.trades...)
}

// PerformanceStats - статистика по продажам журнала
func (s *SignalEngine) PerformanceStats() models.PerformanceStats {
	return models.ComputePerformance(s.Trades())
}
