package models

import (
	"strings"
	"time"

	"cyclebot/pkg/utils"
)

// Значения по умолчанию для параметров цикла
const (
	DefaultStopLossPct     = -5.0
	DefaultCheckIntervalMs = 1000
)

// EngineConfig - параметры цикла, передаваемые вызывающей стороной
//
// После Start не изменяются: движок хранит копию.
type EngineConfig struct {
	Pair            string  `json:"pair" yaml:"pair"`
	QuoteAsset      string  `json:"quote_asset,omitempty" yaml:"quote_asset"` // пусто - определяется по паре
	TargetProfitPct float64 `json:"target_profit_pct" yaml:"target_profit_pct"`
	StopLossPct     float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TradeAmount     float64 `json:"trade_amount" yaml:"trade_amount"` // в котируемой валюте
	CheckIntervalMs int64   `json:"check_interval_ms" yaml:"check_interval_ms"`
	Continuous      bool    `json:"continuous" yaml:"continuous"` // новый цикл после завершения
}

// WithDefaults возвращает копию с заполненными пустыми полями
func (c EngineConfig) WithDefaults() EngineConfig {
	c.Pair = utils.NormalizePair(c.Pair)
	if c.QuoteAsset == "" {
		c.QuoteAsset = utils.ExtractQuoteAsset(c.Pair)
	}
	c.QuoteAsset = strings.ToUpper(c.QuoteAsset)
	if c.StopLossPct == 0 {
		c.StopLossPct = DefaultStopLossPct
	}
	if c.CheckIntervalMs <= 0 {
		c.CheckIntervalMs = DefaultCheckIntervalMs
	}
	return c
}

// BaseAsset - актив, баланс которого отслеживается для подтверждения покупки
func (c EngineConfig) BaseAsset() string {
	if c.QuoteAsset != "" {
		norm := utils.NormalizePair(c.Pair)
		if strings.HasSuffix(norm, c.QuoteAsset) && len(norm) > len(c.QuoteAsset) {
			return strings.TrimSuffix(norm, c.QuoteAsset)
		}
	}
	return utils.ExtractBaseAsset(c.Pair)
}

// CheckInterval - интервал опроса цены
func (c EngineConfig) CheckInterval() time.Duration {
	if c.CheckIntervalMs <= 0 {
		return DefaultCheckIntervalMs * time.Millisecond
	}
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

// Validate проверяет все поля и возвращает utils.ValidationErrors
func (c EngineConfig) Validate() error {
	var errs utils.ValidationErrors

	errs.AddError("pair", utils.ValidatePair(c.Pair))
	errs.AddError("target_profit_pct", utils.ValidateTargetProfit(c.TargetProfitPct))
	errs.AddError("stop_loss_pct", utils.ValidateStopLoss(c.StopLossPct))
	errs.AddError("trade_amount", utils.ValidateAmount(c.TradeAmount))
	if c.CheckIntervalMs < 0 {
		errs.Add("check_interval_ms", "must not be negative")
	}
	if c.BaseAsset() == "" {
		errs.Add("quote_asset", "cannot derive base asset from pair")
	}

	return errs.Err()
}
