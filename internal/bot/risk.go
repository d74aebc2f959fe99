package bot

import (
	"sync"
	"time"

	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// RiskGate - дневные лимиты: убыток, размер позиции, число сделок
//
// Журнал хранится по дням: текущий и предыдущий. Более старые дни
// выбрасываются при ротации, поэтому память не растёт.
type RiskGate struct {
	mu sync.RWMutex

	limits models.RiskLimits
	loc    *time.Location
	now    func() time.Time

	current riskDay
	prior   riskDay
}

// riskDay - результаты сделок одного календарного дня
type riskDay struct {
	key     string // 2006-01-02
	results []float64
}

func (d riskDay) sum() float64 {
	return utils.Sum(d.results)
}

// NewRiskGate создаёт риск-менеджер; нулевые лимиты заменяются значениями по умолчанию
func NewRiskGate(limits models.RiskLimits) *RiskGate {
	def := models.DefaultRiskLimits()
	if limits.MaxDailyLossPct <= 0 {
		limits.MaxDailyLossPct = def.MaxDailyLossPct
	}
	if limits.MaxPositionSizePct <= 0 {
		limits.MaxPositionSizePct = def.MaxPositionSizePct
	}
	if limits.MaxTradesPerDay <= 0 {
		limits.MaxTradesPerDay = def.MaxTradesPerDay
	}

	return &RiskGate{
		limits: limits,
		loc:    time.Local,
		now:    time.Now,
	}
}

// SetClock подменяет часы и часовой пояс границы дня (для тестов)
func (g *RiskGate) SetClock(now func() time.Time, loc *time.Location) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	if loc != nil {
		g.loc = loc
	}
}

// Limits возвращает действующие лимиты
func (g *RiskGate) Limits() models.RiskLimits {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limits
}

func (g *RiskGate) todayKey() string {
	return utils.DayKey(g.now().In(g.loc))
}

// todayLocked - записи текущего дня без изменения состояния
func (g *RiskGate) todayLocked() riskDay {
	key := g.todayKey()
	if g.current.key == key {
		return g.current
	}
	return riskDay{key: key}
}

// CanTrade проверяет лимиты по порядку и возвращает причину первого отказа
//
// Только читает состояние: повторный вызов с теми же аргументами даёт тот же ответ.
func (g *RiskGate) CanTrade(amount, totalBalance float64) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	today := g.todayLocked()

	if today.sum() <= -g.limits.MaxDailyLossPct {
		return false, ReasonDailyLoss
	}
	if totalBalance <= 0 || amount/totalBalance*100 > g.limits.MaxPositionSizePct {
		return false, ReasonPositionSize
	}
	if len(today.results) >= g.limits.MaxTradesPerDay {
		return false, ReasonTradeCount
	}
	return true, ""
}

// Check - CanTrade в виде ошибки *RiskError
func (g *RiskGate) Check(amount, totalBalance float64) error {
	if ok, reason := g.CanTrade(amount, totalBalance); !ok {
		return &RiskError{Reason: reason}
	}
	return nil
}

// RecordTrade добавляет результат сделки (в процентах) к текущему дню
func (g *RiskGate) RecordTrade(profitLossPct float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rotateLocked()
	g.current.results = append(g.current.results, profitLossPct)
}

// rotateLocked сдвигает корзины при смене даты
func (g *RiskGate) rotateLocked() {
	now := g.now().In(g.loc)
	key := utils.DayKey(now)
	if g.current.key == key {
		return
	}

	yesterday := utils.DayKey(now.AddDate(0, 0, -1))
	switch {
	case g.current.key == yesterday:
		g.prior = g.current
	case g.prior.key != yesterday:
		g.prior = riskDay{}
	}
	g.current = riskDay{key: key}
}

// Restore загружает результаты продаж из журнала (после перезапуска процесса)
//
// Учитываются только продажи текущего и предыдущего дня.
func (g *RiskGate) Restore(records []models.TradeRecord) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rotateLocked()
	now := g.now().In(g.loc)
	yesterday := utils.DayKey(now.AddDate(0, 0, -1))
	if g.prior.key == "" {
		g.prior.key = yesterday
	}

	n := 0
	for _, r := range records {
		if r.Type != models.TradeSell {
			continue
		}
		switch utils.DayKey(r.Timestamp.In(g.loc)) {
		case g.current.key:
			g.current.results = append(g.current.results, r.ProfitPct)
			n++
		case yesterday:
			g.prior.results = append(g.prior.results, r.ProfitPct)
			n++
		}
	}
	return n
}

// DailyProfitLossPct - сумма результатов сегодняшних сделок
func (g *RiskGate) DailyProfitLossPct() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.todayLocked().sum()
}

// TradeCountToday - число сделок за сегодня
func (g *RiskGate) TradeCountToday() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.todayLocked().results)
}

// PriorDayProfitLossPct - итог предыдущего дня (если он ещё хранится)
func (g *RiskGate) PriorDayProfitLossPct() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	yesterday := utils.DayKey(g.now().In(g.loc).AddDate(0, 0, -1))
	switch yesterday {
	case g.prior.key:
		return g.prior.sum()
	case g.current.key:
		return g.current.sum()
	}
	return 0
}

// State - снимок дневного состояния
func (g *RiskGate) State() models.RiskState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	today := g.todayLocked()
	return models.RiskState{
		DailyProfitLossPct: today.sum(),
		TradeCountToday:    len(today.results),
		LastResetDate:      today.key,
		Limits:             g.limits,
	}
}
