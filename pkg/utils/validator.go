package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - проверка параметров цикла и учётных данных биржи

var (
	ErrInvalidPair       = errors.New("invalid trading pair")
	ErrInvalidPercentage = errors.New("percentage out of range")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidStopLoss   = errors.New("stop loss must be negative and above -100")
	ErrInvalidAPIKey     = errors.New("invalid API key")
)

var pairPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}([-_/][A-Z0-9]{2,10})?$`)

// KnownQuoteAssets - котируемые валюты, по которым пара делится на base/quote.
// Порядок важен: более длинные суффиксы проверяются первыми.
var KnownQuoteAssets = []string{"USDT", "USDC", "TRY", "EUR", "BTC", "ETH"}

// NormalizePair приводит пару к виду BTCTRY (верхний регистр, без разделителей)
func NormalizePair(pair string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "")
	return r.Replace(strings.ToUpper(strings.TrimSpace(pair)))
}

// ValidatePair проверяет формат торговой пары
func ValidatePair(pair string) error {
	if !pairPattern.MatchString(strings.ToUpper(pair)) {
		return fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	if ExtractQuoteAsset(pair) == "" {
		return fmt.Errorf("%w: unknown quote asset in %q", ErrInvalidPair, pair)
	}
	return nil
}

// ExtractQuoteAsset возвращает котируемую валюту пары ("" если не распознана)
func ExtractQuoteAsset(pair string) string {
	upper := strings.ToUpper(pair)
	for _, sep := range []string{"-", "_", "/"} {
		if i := strings.LastIndex(upper, sep); i > 0 {
			return upper[i+1:]
		}
	}
	for _, q := range KnownQuoteAssets {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			return q
		}
	}
	return ""
}

// ExtractBaseAsset возвращает базовый актив пары: BTCTRY -> BTC
func ExtractBaseAsset(pair string) string {
	quote := ExtractQuoteAsset(pair)
	if quote == "" {
		return ""
	}
	norm := NormalizePair(pair)
	return strings.TrimSuffix(norm, quote)
}

// ValidatePercentage - значение в диапазоне [0, 100]
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidPercentage, pct)
	}
	return nil
}

// ValidateTargetProfit - целевая прибыль в (0, 100]
func ValidateTargetProfit(pct float64) error {
	if pct <= 0 || pct > 100 {
		return fmt.Errorf("%w: target profit %v", ErrInvalidPercentage, pct)
	}
	return nil
}

// ValidateStopLoss - стоп-лосс задаётся отрицательным процентом, например -5
func ValidateStopLoss(pct float64) error {
	if pct >= 0 || pct <= -100 {
		return fmt.Errorf("%w: %v", ErrInvalidStopLoss, pct)
	}
	return nil
}

// ValidateAmount - сумма сделки в котируемой валюте
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateAPIKey - базовая проверка ключа: непустой, без пробелов, не короче 8 символов
func ValidateAPIKey(key string) error {
	if len(key) < 8 || strings.ContainsAny(key, " \t\n") {
		return ErrInvalidAPIKey
	}
	return nil
}

// ============================================================
// ValidationErrors - накопление ошибок по полям
// ============================================================

// ValidationError - ошибка конкретного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors собирает ошибки всех полей, чтобы вернуть их разом
type ValidationErrors []ValidationError

func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку поля; nil игнорируется
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		v.Add(field, err.Error())
	}
}

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err возвращает nil, если ошибок нет
func (v ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}
