package exchange

import (
	"fmt"
	"strings"
)

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{
	btcturkName,
	paperName,
}

// Options - всё, что нужно фабрике для создания биржи
type Options struct {
	Name    string
	BTCTurk BTCTurkConfig
	Paper   PaperConfig
}

// NewExchange создаёт биржу по имени
//
// BTCTurk без API ключей работает в демо-режиме: возвращается бумажная биржа.
func NewExchange(opts Options) (Exchange, error) {
	switch strings.ToLower(opts.Name) {
	case btcturkName:
		if opts.BTCTurk.APIKey == "" || opts.BTCTurk.APISecret == "" {
			return NewPaper(opts.Paper), nil
		}
		return NewBTCTurk(opts.BTCTurk)
	case paperName, "demo":
		return NewPaper(opts.Paper), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", opts.Name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, s := range SupportedExchanges {
		if name == s {
			return true
		}
	}
	return name == "demo"
}
