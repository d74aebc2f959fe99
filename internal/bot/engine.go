package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/pkg/retry"
	"cyclebot/pkg/utils"
)

// TradeSink - постоянный журнал сделок (реализации в internal/repository)
type TradeSink interface {
	AppendTrade(ctx context.Context, rec models.TradeRecord) error
}

// SellConfirmMode - чем подтверждается исполнение продажи
type SellConfirmMode string

const (
	// SellConfirmPrice - цена дошла до цели (может дать ложное завершение,
	// если лимитный ордер не исполнился из-за очереди)
	SellConfirmPrice SellConfirmMode = "price"

	// SellConfirmBalance - цена дошла до цели и баланс актива уменьшился
	SellConfirmBalance SellConfirmMode = "balance"
)

// maxRecentCycles - сколько завершённых циклов хранить для API
const maxRecentCycles = 50

var cycleStates = []string{
	string(models.CycleIdle),
	string(models.CycleBuyPlaced),
	string(models.CycleAwaitingBuyFill),
	string(models.CycleSellPlaced),
	string(models.CycleAwaitingSellFill),
	string(models.CycleCompleted),
	string(models.CycleAborted),
}

// Settings - поведение движка, не зависящее от конкретного цикла
type Settings struct {
	BuyOffsetPct    float64       // скидка лимитной покупки от рынка, % (0.05)
	Cooldown        time.Duration // пауза между циклами в непрерывном режиме
	OrderRetryDelay time.Duration // пауза между отменой ордеров и повтором покупки

	EntryGating bool // ждать ShouldEnter перед покупкой
	EarlyExit   bool // стоп-лосс и выход на развороте тренда
	SellConfirm SellConfirmMode

	Fill            FillWaitConfig
	HistoryCapacity int
	EventBuffer     int
	SinkTimeout     time.Duration
}

// DefaultSettings - значения по умолчанию
func DefaultSettings() Settings {
	return Settings{
		BuyOffsetPct:    0.05,
		Cooldown:        5 * time.Second,
		OrderRetryDelay: time.Second,
		EntryGating:     true,
		EarlyExit:       true,
		SellConfirm:     SellConfirmPrice,
		Fill:            DefaultFillWaitConfig(),
		HistoryCapacity: DefaultHistoryCapacity,
		EventBuffer:     256,
		SinkTimeout:     5 * time.Second,
	}
}

// Options - зависимости движка; обязателен только Gateway
type Options struct {
	Gateway    exchange.Gateway
	Sink       TradeSink
	Signals    *SignalEngine
	Risk       *RiskGate
	FillWaiter FillWaiter
	Settings   *Settings
}

// Engine - движок циклов покупка → исполнение → продажа → исполнение
//
// Один активный цикл на движок. Рабочая горутина ведёт цикл, тикер цены
// работает параллельно, события доставляются подписчикам через диспетчер.
type Engine struct {
	gw       exchange.Gateway
	balances *balanceCache
	sink     TradeSink
	signals  *SignalEngine
	risk     *RiskGate
	fills    FillWaiter
	orders   *OrderExecutor
	settings Settings
	reads    retry.Config
	events   *dispatcher
	log      *utils.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	closed    bool
	cfg       models.EngineConfig
	cycle     *models.TradeCycle
	recent    []*models.TradeCycle
	lastPrice float64
	completed int
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine создаёт движок
func NewEngine(opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, errors.New("engine: gateway is required")
	}

	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	settings.Fill = settings.Fill.withDefaults()
	if settings.SellConfirm == "" {
		settings.SellConfirm = SellConfirmPrice
	}
	if settings.SinkTimeout <= 0 {
		settings.SinkTimeout = 5 * time.Second
	}

	gw := newBalanceCache(opts.Gateway)
	e := &Engine{
		gw:       gw,
		balances: gw,
		sink:     opts.Sink,
		signals:  opts.Signals,
		risk:     opts.Risk,
		fills:    opts.FillWaiter,
		settings: settings,
		orders:   NewOrderExecutor(gw, settings.OrderRetryDelay),
		events:   newDispatcher(settings.EventBuffer),
		log:      utils.L().WithComponent("engine"),
	}
	if e.signals == nil {
		e.signals = NewSignalEngine(settings.HistoryCapacity)
	}
	if e.risk == nil {
		e.risk = NewRiskGate(models.DefaultRiskLimits())
	}
	if e.fills == nil {
		e.fills = NewBalanceFillDetector(gw, settings.Fill)
	}

	e.reads = retry.ReadConfig()
	e.reads.OnRetry = func(attempt int, err error, delay time.Duration) {
		RecordGatewayError("read")
		e.log.Debug("gateway read retry", utils.Int("attempt", attempt), utils.Err(err), utils.Duration("delay", delay))
	}

	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	return e, nil
}

// Signals - движок сигналов (история цен и журнал процесса)
func (e *Engine) Signals() *SignalEngine { return e.signals }

// Risk - риск-менеджер
func (e *Engine) Risk() *RiskGate { return e.risk }

// ============================================================
// Управление
// ============================================================

// Start запускает цикл (или серию циклов в непрерывном режиме)
//
// Возвращает ErrAlreadyRunning, ошибку конфигурации или *RiskError при
// вето риск-менеджера. Проверка лимитов выполняется рабочей горутиной,
// Start ждёт её результата; ctx ограничивает только это ожидание.
func (e *Engine) Start(ctx context.Context, cfg models.EngineConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(e.baseCtx)
	done := make(chan struct{})
	e.running = true
	e.cfg = cfg
	e.cycle = nil
	e.lastErr = nil
	e.lastPrice = 0
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	SetEngineRunning(true)
	e.log.Info("engine starting",
		utils.Pair(cfg.Pair),
		utils.Float64("target_pct", cfg.TargetProfitPct),
		utils.Float64("stop_loss_pct", cfg.StopLossPct),
		utils.Float64("amount", cfg.TradeAmount),
		utils.Bool("continuous", cfg.Continuous),
	)

	admitted := make(chan error, 1)
	go e.run(runCtx, cfg, admitted)

	select {
	case err := <-admitted:
		if err != nil {
			<-done
			// отмена допуска - это Stop или Close, как и в finish
			if errors.Is(err, context.Canceled) {
				return ErrStopped
			}
			return err
		}
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Stop прерывает текущий цикл и ждёт завершения рабочей горутины
//
// Уже размещённые ордера не отменяются.
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel, done := e.cancel, e.done
	e.mu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done закрывается, когда текущий запуск завершён
func (e *Engine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.done
}

// Close останавливает движок и доставку событий
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.Stop()
	e.baseCancel()
	e.events.close()
	return nil
}

// Subscribe регистрирует обработчики; любой может быть nil
//
// Обработчики вызываются из одной горутины и не должны блокироваться надолго.
func (e *Engine) Subscribe(priceFn PriceFunc, statusFn StatusFunc, tradeFn TradeFunc) (unsubscribe func()) {
	return e.events.subscribe(subscriber{price: priceFn, status: statusFn, trade: tradeFn})
}

// ============================================================
// Снимки состояния
// ============================================================

// Status - снимок состояния движка
func (e *Engine) Status() models.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := models.EngineStatus{
		Running:         e.running,
		Pair:            e.cfg.Pair,
		State:           models.CycleIdle,
		CurrentPrice:    e.lastPrice,
		TradeAmount:     e.cfg.TradeAmount,
		CompletedCycles: e.completed,
		Risk:            e.risk.State(),
		UpdatedAt:       time.Now(),
	}
	if c := e.cycle; c != nil {
		st.State = c.State
		st.BuyPrice = c.BuyPrice
		st.TargetPrice = c.SellTargetPrice
		st.PositionOpen = c.HasPosition()
		st.Quantity = c.ConfirmedQty
		if st.PositionOpen {
			st.UnrealizedPct = c.UnrealizedPct(e.lastPrice)
		}
		st.Cycle = c.Clone()
	}
	return st
}

// Stats - статистика сделок текущего процесса
func (e *Engine) Stats() models.PerformanceStats {
	return e.signals.PerformanceStats()
}

// Trades - журнал сделок текущего процесса
func (e *Engine) Trades() []models.TradeRecord {
	return e.signals.Trades()
}

// Cycles - последние завершённые циклы, новые в конце
func (e *Engine) Cycles() []*models.TradeCycle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.TradeCycle, len(e.recent))
	for i, c := range e.recent {
		out[i] = c.Clone()
	}
	return out
}

// Config - параметры текущего (или последнего) запуска
func (e *Engine) Config() models.EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// LastError - причина завершения последнего запуска (nil - штатно)
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// ============================================================
// Рабочая горутина
// ============================================================

func (e *Engine) run(ctx context.Context, cfg models.EngineConfig, admitted chan<- error) {
	var runErr error
	defer func() {
		if admitted != nil {
			admitted <- runErr
		}
		e.finish(ctx, runErr)
	}()

	ticker := NewPriceTicker(e.gw, cfg.Pair, cfg.CheckInterval(), e.onTick)
	tickCtx, stopTicker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker.Run(tickCtx)
	}()
	defer func() {
		stopTicker()
		wg.Wait()
	}()

	for {
		quote, err := e.admit(ctx, cfg)
		if admitted != nil {
			admitted <- err
			admitted = nil
		}
		if err != nil {
			runErr = err
			return
		}

		if err := e.runCycle(ctx, cfg, ticker, quote); err != nil {
			runErr = err
			return
		}
		if !cfg.Continuous {
			return
		}

		e.emitStatus(ctx, fmt.Sprintf("Следующий цикл через %s", utils.FormatDuration(e.settings.Cooldown)))
		if err := sleepCtx(ctx, e.settings.Cooldown); err != nil {
			runErr = err
			return
		}
	}
}

// finish снимает флаг работы и сообщает подписчикам причину остановки
func (e *Engine) finish(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		err = ErrStopped
	}

	e.mu.Lock()
	e.running = false
	e.lastErr = err
	e.cancel = nil
	done := e.done
	e.mu.Unlock()

	SetEngineRunning(false)

	msg := "Бот остановлен"
	switch {
	case err == nil:
		e.log.Info("engine finished")
	case errors.Is(err, ErrStopped):
		e.log.Info("engine stopped by request")
	default:
		msg += ": " + err.Error()
		e.log.Warn("engine finished with error", utils.Err(err))
	}
	e.emitStatus(ctx, msg)

	close(done)
}

// admit читает баланс и спрашивает риск-менеджер
func (e *Engine) admit(ctx context.Context, cfg models.EngineConfig) (exchange.Balance, error) {
	balances, err := e.readBalances(ctx)
	if err != nil {
		return exchange.Balance{}, fmt.Errorf("fetch balances: %w", err)
	}

	quote := balances[cfg.QuoteAsset]
	if err := e.risk.Check(cfg.TradeAmount, quote.Total()); err != nil {
		var re *RiskError
		if errors.As(err, &re) {
			RecordRiskRejection(re.Reason)
		}
		e.log.Warn("trade vetoed by risk gate",
			utils.Pair(cfg.Pair),
			utils.Float64("amount", cfg.TradeAmount),
			utils.Float64("quote_balance", quote.Total()),
			utils.Err(err),
		)
		return quote, err
	}
	return quote, nil
}

// runCycle проводит один цикл; любая ошибка переводит цикл в Aborted
func (e *Engine) runCycle(ctx context.Context, cfg models.EngineConfig, ticker *PriceTicker, quote exchange.Balance) (err error) {
	c := &models.TradeCycle{
		ID:               uuid.New().String(),
		Pair:             cfg.Pair,
		BaseAsset:        cfg.BaseAsset(),
		QuoteAsset:       cfg.QuoteAsset,
		TargetProfitPct:  cfg.TargetProfitPct,
		StopLossPct:      cfg.StopLossPct,
		TradeAmountQuote: cfg.TradeAmount,
		State:            models.CycleIdle,
		OpenedAt:         time.Now(),
	}
	e.mu.Lock()
	e.cycle = c
	e.mu.Unlock()
	SetCycleState(string(c.State), cycleStates)

	log := e.log.WithPair(c.Pair).WithCycleID(c.ID)
	defer func() {
		if err != nil {
			e.abort(ctx, c, err)
		}
	}()

	e.emitStatus(ctx, "Бот запущен - "+StateInfo(c.State))

	if e.settings.EntryGating {
		if err := e.awaitEntry(ctx, ticker, quote.Free); err != nil {
			return err
		}
	}

	baseline, err := e.placeBuy(ctx, c)
	if err != nil {
		return err
	}
	log.Info("buy placed",
		utils.Price(c.BuyPrice), utils.Quantity(c.PlannedQty), utils.Float64("baseline", baseline))

	if err := e.awaitBuyFill(ctx, c, baseline); err != nil {
		return err
	}

	sellBaseline, sellPlacedAt, err := e.placeSell(ctx, c)
	if err != nil {
		return err
	}
	log.Info("sell placed", utils.Price(c.SellTargetPrice), utils.Quantity(c.ConfirmedQty))

	return e.awaitSellFill(ctx, c, ticker, sellBaseline, sellPlacedAt)
}

// awaitEntry ждёт тика, на котором стратегия разрешает вход
func (e *Engine) awaitEntry(ctx context.Context, ticker *PriceTicker, quoteFree float64) error {
	var lastStatus time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-ticker.Ticks():
			if e.signals.ShouldEnter(p.Price, quoteFree) {
				return nil
			}
			if time.Since(lastStatus) >= e.settings.Fill.StatusEvery {
				lastStatus = time.Now()
				e.emitStatus(ctx, fmt.Sprintf("Ожидание условий входа - цена %.8g", p.Price))
			}
		}
	}
}

// placeBuy снимает баланс базового актива и размещает лимитную покупку
func (e *Engine) placeBuy(ctx context.Context, c *models.TradeCycle) (float64, error) {
	price, err := e.readPrice(ctx, c.Pair)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}

	limit := price * (1 - e.settings.BuyOffsetPct/100)
	qty := c.TradeAmountQuote / limit

	balances, err := e.readBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot balances: %w", err)
	}
	baseline := balances[c.BaseAsset].Free

	ref, err := e.orders.Buy(ctx, c.Pair, qty, limit)
	if err != nil {
		return 0, err
	}
	if ref.Price > 0 {
		limit = ref.Price
	}
	if ref.Quantity > 0 {
		qty = ref.Quantity
	}

	if err := e.mutate(c, func() error {
		c.BuyPrice = limit
		c.PlannedQty = qty
		return transition(c, models.CycleBuyPlaced)
	}); err != nil {
		return 0, err
	}
	e.emitStatus(ctx, fmt.Sprintf("Лимитная покупка %s: %.8f по %.8g", c.Pair, qty, limit))
	return baseline, nil
}

// awaitBuyFill ждёт прироста баланса и фиксирует подтверждённое количество
func (e *Engine) awaitBuyFill(ctx context.Context, c *models.TradeCycle, baseline float64) error {
	if err := e.mutate(c, func() error {
		return transition(c, models.CycleAwaitingBuyFill)
	}); err != nil {
		return err
	}
	e.emitStatus(ctx, StateInfo(c.State))

	waitCtx, cancel := context.WithTimeout(ctx, e.settings.Fill.Timeout)
	defer cancel()

	delta, err := e.fills.WaitForFill(waitCtx, FillRequest{
		Asset:    c.BaseAsset,
		Baseline: baseline,
		OnWaiting: func(waited time.Duration) {
			e.emitStatus(ctx, fmt.Sprintf("Ожидание исполнения покупки - %s", utils.FormatDuration(waited)))
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: no %s balance increase after %s", ErrFillTimeout, c.BaseAsset, e.settings.Fill.Timeout)
		}
		return err
	}

	if err := e.mutate(c, func() error {
		return confirmQty(c, delta)
	}); err != nil {
		return err
	}

	e.recordTrade(ctx, models.TradeRecord{
		ID:        uuid.New().String(),
		CycleID:   c.ID,
		Pair:      c.Pair,
		Type:      models.TradeBuy,
		Price:     c.BuyPrice,
		Amount:    delta,
		Timestamp: time.Now(),
	})
	e.emitStatus(ctx, fmt.Sprintf("Покупка исполнена: +%.8f %s", delta, c.BaseAsset))
	return nil
}

// placeSell вычисляет цель и выставляет продажу подтверждённого количества
func (e *Engine) placeSell(ctx context.Context, c *models.TradeCycle) (float64, time.Time, error) {
	var target float64
	if err := e.mutate(c, func() error {
		var err error
		target, err = setSellTarget(c)
		return err
	}); err != nil {
		return 0, time.Time{}, err
	}

	var sellBaseline float64
	if e.settings.SellConfirm == SellConfirmBalance {
		balances, err := e.readBalances(ctx)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("snapshot balances: %w", err)
		}
		sellBaseline = balances[c.BaseAsset].Total()
	}

	placedAt := time.Now()
	if _, err := e.orders.Sell(ctx, c.Pair, c.ConfirmedQty, target); err != nil {
		return 0, time.Time{}, err
	}

	if err := e.mutate(c, func() error {
		if err := transition(c, models.CycleSellPlaced); err != nil {
			return err
		}
		return transition(c, models.CycleAwaitingSellFill)
	}); err != nil {
		return 0, time.Time{}, err
	}
	e.emitStatus(ctx, fmt.Sprintf("Продажа выставлена: %.8f %s по %.8g", c.ConfirmedQty, c.BaseAsset, target))
	return sellBaseline, placedAt, nil
}

// awaitSellFill следит за ценой до цели или раннего выхода
func (e *Engine) awaitSellFill(ctx context.Context, c *models.TradeCycle, ticker *PriceTicker, sellBaseline float64, placedAt time.Time) error {
	var lastStatus time.Time
	for {
		var p models.PricePoint
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p = <-ticker.Ticks():
		}
		// цена, полученная до выставления продажи, не считается
		if p.Timestamp.Before(placedAt) {
			continue
		}

		if p.Price >= c.SellTargetPrice {
			if e.settings.SellConfirm == SellConfirmBalance {
				settled, err := e.sellSettled(ctx, c.BaseAsset, sellBaseline)
				if err != nil {
					e.log.Warn("sell confirmation poll failed", utils.Pair(c.Pair), utils.Err(err))
					continue
				}
				if !settled {
					e.emitStatus(ctx, "Цена достигла цели - ожидание исполнения продажи")
					continue
				}
			}
			return e.complete(ctx, c, p.Price, models.ExitReasonTarget)
		}

		if e.settings.EarlyExit {
			exit, reason := e.signals.ShouldExit(p.Price, c.BuyPrice, c.TargetProfitPct, c.StopLossPct)
			if exit && reason != models.ExitReasonTarget {
				return e.exitEarly(ctx, c, p.Price, reason)
			}
		}

		if time.Since(lastStatus) >= e.settings.Fill.StatusEvery {
			lastStatus = time.Now()
			e.emitStatus(ctx, fmt.Sprintf("Ожидание продажи - прибыль %.2f%%, цель %.8g",
				c.UnrealizedPct(p.Price), c.SellTargetPrice))
		}
	}
}

// sellSettled - баланс актива опустился ниже снимка перед продажей
func (e *Engine) sellSettled(ctx context.Context, asset string, baseline float64) (bool, error) {
	balances, err := e.readBalances(ctx)
	if err != nil {
		return false, err
	}
	return balances[asset].Total() < baseline, nil
}

// exitEarly снимает целевую продажу и продаёт по наблюдаемой цене
func (e *Engine) exitEarly(ctx context.Context, c *models.TradeCycle, price float64, reason string) error {
	e.log.Warn("early exit",
		utils.Pair(c.Pair), utils.CycleID(c.ID), utils.String("reason", reason),
		utils.Price(price), utils.ProfitPct(c.UnrealizedPct(price)))

	if err := e.orders.CancelAll(ctx, c.Pair); err != nil {
		return fmt.Errorf("cancel target sell: %w", err)
	}
	if _, err := e.orders.Sell(ctx, c.Pair, c.ConfirmedQty, price); err != nil {
		return err
	}
	return e.complete(ctx, c, price, reason)
}

// complete фиксирует результат цикла
func (e *Engine) complete(ctx context.Context, c *models.TradeCycle, price float64, reason string) error {
	profit := c.UnrealizedPct(price)
	now := time.Now()

	if err := e.mutate(c, func() error {
		if err := transition(c, models.CycleCompleted); err != nil {
			return err
		}
		c.ExitPrice = price
		c.ExitReason = reason
		c.ProfitPct = profit
		c.ClosedAt = &now
		e.completed++
		e.archiveLocked(c)
		return nil
	}); err != nil {
		return err
	}

	e.risk.RecordTrade(profit)
	e.recordTrade(ctx, models.TradeRecord{
		ID:        uuid.New().String(),
		CycleID:   c.ID,
		Pair:      c.Pair,
		Type:      models.TradeSell,
		Price:     price,
		Amount:    c.ConfirmedQty,
		ProfitPct: profit,
		Reason:    reason,
		Timestamp: now,
	})
	RecordCycle(c.Pair, "completed", reason, profit)

	e.log.Info("cycle completed",
		utils.Pair(c.Pair), utils.CycleID(c.ID), utils.String("reason", reason),
		utils.Price(price), utils.ProfitPct(profit))
	e.emitStatus(ctx, fmt.Sprintf("Цикл завершён (%s): прибыль %.2f%%", reason, profit))
	return nil
}

// abort переводит цикл в Aborted с причиной
func (e *Engine) abort(ctx context.Context, c *models.TradeCycle, cause error) {
	if errors.Is(cause, context.Canceled) {
		cause = ErrStopped
	}
	now := time.Now()

	_ = e.mutate(c, func() error {
		if c.State.IsTerminal() {
			return nil
		}
		if err := transition(c, models.CycleAborted); err != nil {
			return err
		}
		c.Error = cause.Error()
		c.ClosedAt = &now
		e.archiveLocked(c)
		return nil
	})
	RecordCycle(c.Pair, "aborted", "", 0)

	e.log.Warn("cycle aborted",
		utils.Pair(c.Pair), utils.CycleID(c.ID), utils.String("from_state", string(c.State)), utils.Err(cause))
	e.emitStatus(ctx, "Цикл прерван: "+cause.Error())
}

// mutate изменяет цикл под блокировкой (Status читает его параллельно)
func (e *Engine) mutate(c *models.TradeCycle, fn func() error) error {
	e.mu.Lock()
	err := fn()
	state := c.State
	e.mu.Unlock()

	SetCycleState(string(state), cycleStates)
	return err
}

func (e *Engine) archiveLocked(c *models.TradeCycle) {
	e.recent = append(e.recent, c.Clone())
	if len(e.recent) > maxRecentCycles {
		e.recent = append([]*models.TradeCycle(nil), e.recent[len(e.recent)-maxRecentCycles:]...)
	}
}

// ============================================================
// События и журнал
// ============================================================

// onTick вызывается тикером на каждой цене
func (e *Engine) onTick(p models.PricePoint) {
	e.signals.AddPoint(p)

	e.mu.Lock()
	e.lastPrice = p.Price
	pair := e.cfg.Pair
	var pct float64
	if c := e.cycle; c != nil && c.BuyPrice > 0 && !c.State.IsTerminal() {
		pct = c.UnrealizedPct(p.Price)
	}
	e.mu.Unlock()

	RecordPrice(pair, p.Price)
	e.events.tryEnqueue(event{kind: eventPrice, price: p.Price, profitPct: pct})
}

func (e *Engine) emitStatus(ctx context.Context, msg string) {
	RecordEvent("status")
	e.events.enqueue(ctx, event{kind: eventStatus, msg: msg})
}

// recordTrade пишет сделку в журнал процесса, постоянный журнал и подписчикам
func (e *Engine) recordTrade(ctx context.Context, rec models.TradeRecord) {
	e.signals.AddTrade(rec)

	if e.sink != nil {
		// остановка движка не должна терять уже совершённую сделку
		sinkCtx, cancel := context.WithTimeout(e.baseCtx, e.settings.SinkTimeout)
		if err := e.sink.AppendTrade(sinkCtx, rec); err != nil {
			SinkErrors.Inc()
			e.log.Error("trade ledger append failed",
				utils.CycleID(rec.CycleID), utils.String("type", string(rec.Type)), utils.Err(err))
		}
		cancel()
	}

	RecordEvent("trade")
	e.events.enqueue(ctx, event{kind: eventTrade, trade: rec})
}

func (e *Engine) readPrice(ctx context.Context, pair string) (float64, error) {
	return retry.DoWithResult(ctx, func() (float64, error) {
		return e.gw.GetPrice(ctx, pair)
	}, e.reads)
}

func (e *Engine) readBalances(ctx context.Context) (map[string]exchange.Balance, error) {
	return retry.DoWithResult(ctx, func() (map[string]exchange.Balance, error) {
		return e.gw.GetBalances(ctx)
	}, e.reads)
}
