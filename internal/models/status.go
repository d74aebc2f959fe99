package models

import "time"

// EngineStatus - снимок состояния движка для API и WebSocket
type EngineStatus struct {
	Running         bool        `json:"running"`
	Pair            string      `json:"pair,omitempty"`
	State           CycleState  `json:"state"`
	CurrentPrice    float64     `json:"current_price"`
	BuyPrice        float64     `json:"buy_price"`
	TargetPrice     float64     `json:"target_price"`
	UnrealizedPct   float64     `json:"current_profit"`
	PositionOpen    bool        `json:"is_position_open"`
	TradeAmount     float64     `json:"trade_amount"`
	Quantity        float64     `json:"coin_quantity"`
	CompletedCycles int         `json:"completed_cycles"`
	Cycle           *TradeCycle `json:"cycle,omitempty"`
	Risk            RiskState   `json:"risk"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
