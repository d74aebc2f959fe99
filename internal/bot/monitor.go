package bot

import (
	"context"
	"fmt"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/pkg/retry"
	"cyclebot/pkg/utils"
)

// ============================================================
// Детектор исполнения покупки
// ============================================================

// FillWaitConfig - расписание опроса баланса
type FillWaitConfig struct {
	InitialInterval time.Duration // 2s
	MaxInterval     time.Duration // 5s
	Step            time.Duration // +1s
	UnchangedPolls  int           // 15 опросов без изменений - шаг вверх
	StatusEvery     time.Duration // 10s
	Timeout         time.Duration // 600s
}

// DefaultFillWaitConfig - значения по умолчанию
func DefaultFillWaitConfig() FillWaitConfig {
	return FillWaitConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     5 * time.Second,
		Step:            time.Second,
		UnchangedPolls:  15,
		StatusEvery:     10 * time.Second,
		Timeout:         600 * time.Second,
	}
}

func (c FillWaitConfig) withDefaults() FillWaitConfig {
	def := DefaultFillWaitConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Step <= 0 {
		c.Step = def.Step
	}
	if c.UnchangedPolls <= 0 {
		c.UnchangedPolls = def.UnchangedPolls
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = def.StatusEvery
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// FillRequest - что ждать: рост свободного баланса актива относительно снимка
type FillRequest struct {
	Asset    string
	Baseline float64

	// OnWaiting вызывается с периодом StatusEvery, пока исполнения нет
	OnWaiting func(waited time.Duration)
}

// FillWaiter ждёт исполнения покупки и возвращает прирост баланса
//
// Опрос баланса - одна из возможных реализаций; push-шлюз может
// реализовать тот же интерфейс.
type FillWaiter interface {
	WaitForFill(ctx context.Context, req FillRequest) (float64, error)
}

// adaptiveInterval - интервал опроса, растущий при отсутствии изменений
type adaptiveInterval struct {
	cfg       FillWaitConfig
	current   time.Duration
	unchanged int
}

func newAdaptiveInterval(cfg FillWaitConfig) *adaptiveInterval {
	a := &adaptiveInterval{cfg: cfg}
	a.Reset()
	return a
}

// Reset - начальный интервал и обнулённый счётчик
func (a *adaptiveInterval) Reset() {
	a.current = a.cfg.InitialInterval
	a.unchanged = 0
}

// Observe учитывает результат опроса и возвращает интервал до следующего
func (a *adaptiveInterval) Observe(changed bool) time.Duration {
	if changed {
		a.Reset()
		return a.current
	}

	a.unchanged++
	if a.unchanged >= a.cfg.UnchangedPolls {
		a.unchanged = 0
		if next := a.current + a.cfg.Step; next < a.cfg.MaxInterval {
			a.current = next
		} else {
			a.current = a.cfg.MaxInterval
		}
	}
	return a.current
}

// Current - текущий интервал
func (a *adaptiveInterval) Current() time.Duration {
	return a.current
}

// BalanceFillDetector - FillWaiter на основе разницы балансов
type BalanceFillDetector struct {
	gw    exchange.Gateway
	cfg   FillWaitConfig
	reads retry.Config
	log   *utils.Logger

	// after - таймер ожидания (подменяется в тестах)
	after func(time.Duration) <-chan time.Time
}

// NewBalanceFillDetector создаёт детектор
func NewBalanceFillDetector(gw exchange.Gateway, cfg FillWaitConfig) *BalanceFillDetector {
	reads := retry.ReadConfig()
	reads.OnRetry = func(int, error, time.Duration) { RecordGatewayError("balances") }

	return &BalanceFillDetector{
		gw:    gw,
		cfg:   cfg.withDefaults(),
		reads: reads,
		log:   utils.L().WithComponent("fill-detector"),
		after: time.After,
	}
}

// WaitForFill опрашивает баланс: сразу, затем по адаптивному интервалу
//
// Ошибки шлюза не прерывают ожидание; его ограничивает только Timeout.
func (d *BalanceFillDetector) WaitForFill(ctx context.Context, req FillRequest) (float64, error) {
	start := time.Now()
	deadline := d.after(d.cfg.Timeout)
	interval := newAdaptiveInterval(d.cfg)

	var waited, sinceStatus time.Duration
	var last float64
	haveLast := false

	for polls := 0; ; polls++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		free, err := d.poll(ctx, req.Asset)
		RecordEvent("fill_poll")
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			d.log.Warn("balance poll failed", utils.Asset(req.Asset), utils.Err(err))
		case free-req.Baseline > 0:
			delta := free - req.Baseline
			FillWaitDuration.Observe(time.Since(start).Seconds())
			d.log.Info("buy fill confirmed by balance",
				utils.Asset(req.Asset),
				utils.Float64("baseline", req.Baseline),
				utils.Float64("balance", free),
				utils.Quantity(delta),
				utils.Int("polls", polls+1),
			)
			return delta, nil
		}

		changed := err == nil && haveLast && free != last
		if err == nil {
			last, haveLast = free, true
		}
		next := interval.Current()
		if polls > 0 {
			next = interval.Observe(changed)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline:
			return 0, fmt.Errorf("%w: no %s balance increase after %s", ErrFillTimeout, req.Asset, d.cfg.Timeout)
		case <-d.after(next):
		}

		waited += next
		sinceStatus += next
		if sinceStatus >= d.cfg.StatusEvery {
			sinceStatus = 0
			if req.OnWaiting != nil {
				req.OnWaiting(waited)
			}
		}
	}
}

func (d *BalanceFillDetector) poll(ctx context.Context, asset string) (float64, error) {
	balances, err := retry.DoWithResult(ctx, func() (map[string]exchange.Balance, error) {
		return d.gw.GetBalances(ctx)
	}, d.reads)
	if err != nil {
		return 0, err
	}
	return balances[asset].Free, nil
}

// ============================================================
// Тикер цены
// ============================================================

// PriceTicker опрашивает цену с фиксированным интервалом
//
// Каждый тик передаётся в OnTick и кладётся в почтовый ящик на одно
// место: читатель всегда получает самую свежую цену.
type PriceTicker struct {
	gw       exchange.Gateway
	pair     string
	interval time.Duration
	reads    retry.Config
	log      *utils.Logger

	onTick func(models.PricePoint)
	latest chan models.PricePoint
	now    func() time.Time
}

// NewPriceTicker создаёт тикер пары
func NewPriceTicker(gw exchange.Gateway, pair string, interval time.Duration, onTick func(models.PricePoint)) *PriceTicker {
	if interval <= 0 {
		interval = models.DefaultCheckIntervalMs * time.Millisecond
	}
	reads := retry.ReadConfig()
	reads.OnRetry = func(int, error, time.Duration) { RecordGatewayError("price") }

	return &PriceTicker{
		gw:       gw,
		pair:     pair,
		interval: interval,
		reads:    reads,
		log:      utils.L().WithComponent("price-ticker").WithPair(pair),
		onTick:   onTick,
		latest:   make(chan models.PricePoint, 1),
		now:      time.Now,
	}
}

// Ticks - канал с последней ценой
func (t *PriceTicker) Ticks() <-chan models.PricePoint {
	return t.latest
}

// Run опрашивает цену до отмены контекста; первый опрос сразу
func (t *PriceTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *PriceTicker) tick(ctx context.Context) {
	price, err := retry.DoWithResult(ctx, func() (float64, error) {
		return t.gw.GetPrice(ctx, t.pair)
	}, t.reads)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Warn("price poll failed", utils.Err(err))
		}
		return
	}
	if price <= 0 {
		return
	}

	p := models.PricePoint{Price: price, Timestamp: t.now()}
	if t.onTick != nil {
		t.onTick(p)
	}
	t.offer(p)
}

// offer кладёт точку в ящик, вытесняя непрочитанную
func (t *PriceTicker) offer(p models.PricePoint) {
	select {
	case t.latest <- p:
		return
	default:
	}
	select {
	case <-t.latest:
	default:
	}
	select {
	case t.latest <- p:
	default:
		RecordBufferOverflow("price_mailbox")
	}
}
