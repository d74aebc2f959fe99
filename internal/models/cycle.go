package models

import "time"

// CycleState - состояние цикла покупка → продажа
type CycleState string

// Состояния цикла
const (
	CycleIdle             CycleState = "idle"
	CycleBuyPlaced        CycleState = "buy_placed"
	CycleAwaitingBuyFill  CycleState = "awaiting_buy_fill"
	CycleSellPlaced       CycleState = "sell_placed"
	CycleAwaitingSellFill CycleState = "awaiting_sell_fill"
	CycleCompleted        CycleState = "completed"
	CycleAborted          CycleState = "aborted"
)

// IsTerminal - цикл завершён (успешно или аварийно)
func (s CycleState) IsTerminal() bool {
	return s == CycleCompleted || s == CycleAborted
}

// Причины закрытия позиции
const (
	ExitReasonTarget        = "target"
	ExitReasonStopLoss      = "stoploss"
	ExitReasonTrendReversal = "trend-reversal"
)

// TradeCycle - один полный цикл покупка → исполнение → продажа → исполнение
//
// Изменяется только движком. ConfirmedQty и SellTargetPrice выставляются один раз.
type TradeCycle struct {
	ID               string     `json:"id" db:"id"`
	Pair             string     `json:"pair" db:"pair"`               // BTCTRY
	BaseAsset        string     `json:"base_asset" db:"base_asset"`   // BTC
	QuoteAsset       string     `json:"quote_asset" db:"quote_asset"` // TRY
	TargetProfitPct  float64    `json:"target_profit_pct" db:"target_profit_pct"`
	StopLossPct      float64    `json:"stop_loss_pct" db:"stop_loss_pct"`           // отрицательный, например -5
	TradeAmountQuote float64    `json:"trade_amount_quote" db:"trade_amount_quote"` // сумма покупки в quote
	State            CycleState `json:"state" db:"state"`
	BuyPrice         float64    `json:"buy_price" db:"buy_price"`
	PlannedQty       float64    `json:"planned_qty" db:"planned_qty"`
	ConfirmedQty     float64    `json:"confirmed_qty" db:"confirmed_qty"` // дельта баланса после покупки
	SellTargetPrice  float64    `json:"sell_target_price" db:"sell_target_price"`
	ExitPrice        float64    `json:"exit_price,omitempty" db:"exit_price"`
	ExitReason       string     `json:"exit_reason,omitempty" db:"exit_reason"`
	ProfitPct        float64    `json:"profit_pct" db:"profit_pct"`
	Error            string     `json:"error,omitempty" db:"error"`
	OpenedAt         time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// HasPosition - актив куплен и ещё не продан
func (c *TradeCycle) HasPosition() bool {
	return c.ConfirmedQty > 0 && !c.State.IsTerminal()
}

// UnrealizedPct - текущая прибыль в процентах относительно цены покупки
func (c *TradeCycle) UnrealizedPct(price float64) float64 {
	if c.BuyPrice <= 0 || price <= 0 {
		return 0
	}
	return (price - c.BuyPrice) / c.BuyPrice * 100
}

// Clone возвращает копию для выдачи наружу без гонок
func (c *TradeCycle) Clone() *TradeCycle {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
