package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cyclebot/pkg/utils"
)

const paperName = "paper"

// PaperConfig - параметры демо-биржи
type PaperConfig struct {
	// Начальные балансы; пусто - TRY 10000, BTC 0.001, ASR 100
	Balances map[string]float64

	// Начальные цены; для неизвестных пар - 1.0
	Prices map[string]float64

	// Volatility - стандартное отклонение шага случайного блуждания в процентах (0 - цена стоит)
	Volatility float64

	// Drift - средний шаг блуждания в процентах
	Drift float64

	// BuyFillDelay - через сколько исполняется покупка, даже если цена не дошла до лимита
	BuyFillDelay time.Duration

	// FeePct - комиссия в процентах, удерживается из полученного актива
	FeePct float64

	// RejectWithOpenOrders - отклонять ордер, если по паре уже есть открытый (как BTCTurk)
	RejectWithOpenOrders bool

	Seed int64
}

// DefaultPaperConfig - балансы и цены демо-режима
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		Balances: map[string]float64{"TRY": 10000, "BTC": 0.001, "ASR": 100},
		Prices: map[string]float64{
			"BTCTRY": 2500000,
			"ASRTRY": 0.85,
		},
		Volatility:   0.15,
		Drift:        0.01,
		BuyFillDelay: 3 * time.Second,
		FeePct:       0.1,
	}
}

type paperOrder struct {
	ref      OrderRef
	base     string
	quote    string
	placedAt time.Time
}

// Paper - бумажная биржа: случайное блуждание цены, исполнение лимитных ордеров по цене
type Paper struct {
	cfg PaperConfig

	mu       sync.Mutex
	balances map[string]Balance
	prices   map[string]float64
	orders   []*paperOrder
	rnd      *rand.Rand
	nextID   int64

	now func() time.Time
	log *utils.Logger
}

// NewPaper создаёт демо-биржу
func NewPaper(cfg PaperConfig) *Paper {
	def := DefaultPaperConfig()
	if len(cfg.Balances) == 0 {
		cfg.Balances = def.Balances
	}
	if len(cfg.Prices) == 0 {
		cfg.Prices = def.Prices
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Paper{
		cfg:      cfg,
		balances: make(map[string]Balance, len(cfg.Balances)),
		prices:   make(map[string]float64, len(cfg.Prices)),
		rnd:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
		log:      utils.L().WithComponent("paper"),
	}
	for asset, v := range cfg.Balances {
		p.balances[strings.ToUpper(asset)] = Balance{Free: v}
	}
	for pair, v := range cfg.Prices {
		p.prices[utils.NormalizePair(pair)] = v
	}
	return p
}

func (p *Paper) Name() string { return paperName }

func (p *Paper) Ping(ctx context.Context) error { return ctx.Err() }

func (p *Paper) Close() error { return nil }

// SetPrice фиксирует цену пары и сразу проверяет исполнение ордеров
func (p *Paper) SetPrice(pair string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[utils.NormalizePair(pair)] = price
	p.matchLocked()
}

// SetClock подменяет часы (для тестов)
func (p *Paper) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// GetPrice делает шаг случайного блуждания и возвращает цену
func (p *Paper) GetPrice(ctx context.Context, pair string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pair = utils.NormalizePair(pair)
	price, ok := p.prices[pair]
	if !ok {
		price = 1.0
	}
	if p.cfg.Volatility > 0 {
		step := p.cfg.Drift + p.rnd.NormFloat64()*p.cfg.Volatility
		price = math.Max(price*(1+step/100), 1e-8)
	}
	p.prices[pair] = price
	p.matchLocked()

	return price, nil
}

// GetBalances возвращает копию балансов после проверки исполнения
func (p *Paper) GetBalances(ctx context.Context) (map[string]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.matchLocked()
	out := make(map[string]Balance, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

// SubmitLimitOrder резервирует средства и ставит ордер в книгу
func (p *Paper) SubmitLimitOrder(ctx context.Context, side Side, pair string, qty, price float64) (OrderRef, error) {
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}
	if qty <= 0 || price <= 0 {
		return OrderRef{}, &ExchangeError{Exchange: paperName, Code: "INVALID_ORDER", Message: "quantity and price must be positive"}
	}

	pair = utils.NormalizePair(pair)
	base, quote := utils.ExtractBaseAsset(pair), utils.ExtractQuoteAsset(pair)
	if base == "" {
		return OrderRef{}, fmt.Errorf("%w: %s", ErrUnknownAsset, pair)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.RejectWithOpenOrders {
		for _, o := range p.orders {
			if o.ref.Pair == pair {
				return OrderRef{}, &ExchangeError{Exchange: paperName, Code: CodeOpenOrders, Message: CodeOpenOrders}
			}
		}
	}

	switch side {
	case SideBuy:
		cost := qty * price
		b := p.balances[quote]
		if b.Free < cost {
			return OrderRef{}, &ExchangeError{Exchange: paperName, Code: "INSUFFICIENT_BALANCE", Message: "insufficient " + quote}
		}
		b.Free -= cost
		b.Locked += cost
		p.balances[quote] = b
	case SideSell:
		b := p.balances[base]
		if b.Free < qty {
			return OrderRef{}, &ExchangeError{Exchange: paperName, Code: "INSUFFICIENT_BALANCE", Message: "insufficient " + base}
		}
		b.Free -= qty
		b.Locked += qty
		p.balances[base] = b
	default:
		return OrderRef{}, &ExchangeError{Exchange: paperName, Code: "INVALID_SIDE", Message: string(side)}
	}

	p.nextID++
	ref := OrderRef{
		ID:            strconv.FormatInt(p.nextID, 10),
		ClientOrderID: uuid.New().String(),
		Pair:          pair,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		CreatedAt:     p.now(),
	}
	p.orders = append(p.orders, &paperOrder{ref: ref, base: base, quote: quote, placedAt: ref.CreatedAt})

	p.log.Debug("paper order placed",
		utils.Pair(pair), utils.Side(string(side)), utils.Price(price), utils.Quantity(qty), utils.OrderID(ref.ID))

	return ref, nil
}

// CancelOpenOrders снимает ордера пары и возвращает резерв
func (p *Paper) CancelOpenOrders(ctx context.Context, pair string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pair = utils.NormalizePair(pair)
	kept := p.orders[:0]
	for _, o := range p.orders {
		if o.ref.Pair != pair {
			kept = append(kept, o)
			continue
		}
		p.releaseLocked(o)
	}
	p.orders = kept
	return nil
}

// OpenOrders - число открытых ордеров пары
func (p *Paper) OpenOrders(pair string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pair = utils.NormalizePair(pair)
	n := 0
	for _, o := range p.orders {
		if o.ref.Pair == pair {
			n++
		}
	}
	return n
}

func (p *Paper) releaseLocked(o *paperOrder) {
	switch o.ref.Side {
	case SideBuy:
		cost := o.ref.Quantity * o.ref.Price
		b := p.balances[o.quote]
		b.Locked -= cost
		b.Free += cost
		p.balances[o.quote] = b
	case SideSell:
		b := p.balances[o.base]
		b.Locked -= o.ref.Quantity
		b.Free += o.ref.Quantity
		p.balances[o.base] = b
	}
}

// matchLocked исполняет ордера, до которых дошла цена (покупки - также по таймауту)
func (p *Paper) matchLocked() {
	now := p.now()
	fee := 1 - p.cfg.FeePct/100

	kept := p.orders[:0]
	for _, o := range p.orders {
		price, ok := p.prices[o.ref.Pair]
		if !ok {
			kept = append(kept, o)
			continue
		}

		switch o.ref.Side {
		case SideBuy:
			delayed := p.cfg.BuyFillDelay > 0 && now.Sub(o.placedAt) >= p.cfg.BuyFillDelay
			if price > o.ref.Price && !delayed {
				kept = append(kept, o)
				continue
			}
			cost := o.ref.Quantity * o.ref.Price
			q := p.balances[o.quote]
			q.Locked -= cost
			p.balances[o.quote] = q

			b := p.balances[o.base]
			b.Free += o.ref.Quantity * fee
			p.balances[o.base] = b

		case SideSell:
			if price < o.ref.Price {
				kept = append(kept, o)
				continue
			}
			b := p.balances[o.base]
			b.Locked -= o.ref.Quantity
			p.balances[o.base] = b

			q := p.balances[o.quote]
			q.Free += o.ref.Quantity * o.ref.Price * fee
			p.balances[o.quote] = q
		}

		p.log.Debug("paper order filled", utils.Pair(o.ref.Pair), utils.Side(string(o.ref.Side)), utils.OrderID(o.ref.ID))
	}
	p.orders = kept
}
