package exchange

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Gateway - всё, что движку нужно от биржи
//
// Все методы блокирующие (сетевой I/O) и вызываются только из рабочих
// горутин движка, никогда из обработчиков API.
type Gateway interface {
	// GetPrice возвращает последнюю цену пары
	GetPrice(ctx context.Context, pair string) (float64, error)

	// GetBalances возвращает балансы всех активов аккаунта
	GetBalances(ctx context.Context) (map[string]Balance, error)

	// SubmitLimitOrder размещает лимитный ордер
	SubmitLimitOrder(ctx context.Context, side Side, pair string, qty, price float64) (OrderRef, error)

	// CancelOpenOrders отменяет все открытые ордера пары
	CancelOpenOrders(ctx context.Context, pair string) error
}

// Exchange - Gateway с сервисными методами подключения
type Exchange interface {
	Gateway

	// Name возвращает имя биржи
	Name() string

	// Ping проверяет доступность API и валидность ключей
	Ping(ctx context.Context) error

	// Close освобождает соединения
	Close() error
}

// Balance - баланс актива
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total - свободный + заблокированный в ордерах
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// Side - сторона ордера
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRef - подтверждение приёма ордера биржей (не исполнения!)
type OrderRef struct {
	ID            string    `json:"id"`
	ClientOrderID string    `json:"client_order_id"`
	Pair          string    `json:"pair"`
	Side          Side      `json:"side"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

// ============================================================
// Ошибки
// ============================================================

// CodeOpenOrders - код отказа биржи из-за конфликтующих открытых ордеров
const CodeOpenOrders = "FAILED_ORDER_WITH_OPEN_ORDERS"

var (
	// ErrOpenOrders - ордер отклонён, пока у пары есть открытые ордера
	ErrOpenOrders = errors.New("order rejected: open orders exist")

	// ErrUnknownAsset - пары/актива нет на бирже
	ErrUnknownAsset = errors.New("unknown asset")
)

// ExchangeError - бизнес-ошибка, возвращённая API биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return e.Exchange + ": " + e.Code + ": " + e.Message
	}
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для errors.Is/As
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Is: отказ с кодом открытых ордеров совпадает с ErrOpenOrders
func (e *ExchangeError) Is(target error) bool {
	return target == ErrOpenOrders && e.IsOpenOrders()
}

// IsOpenOrders - отказ из-за открытых ордеров
func (e *ExchangeError) IsOpenOrders() bool {
	return e.Code == CodeOpenOrders || strings.Contains(e.Message, CodeOpenOrders)
}

// Retryable - бизнес-отказы не повторяются, кроме лимита запросов
func (e *ExchangeError) Retryable() bool {
	return e.Code == "429"
}

// GatewayError - транспортная ошибка (сеть, 5xx, таймаут), повторяемая
type GatewayError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return e.Exchange + " " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable - отмену контекста не повторяем
func (e *GatewayError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

// IsOpenOrdersRejection - ошибка означает отказ из-за открытых ордеров
func IsOpenOrdersRejection(err error) bool {
	return errors.Is(err, ErrOpenOrders)
}
