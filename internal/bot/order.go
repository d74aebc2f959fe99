package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/pkg/retry"
	"cyclebot/pkg/utils"
)

// OrderExecutor - отправка лимитных ордеров с обработкой отказа из-за открытых ордеров
type OrderExecutor struct {
	gw         exchange.Gateway
	retryDelay time.Duration
	log        *utils.Logger
}

// NewOrderExecutor создаёт исполнитель; retryDelay - пауза между отменой и повтором
func NewOrderExecutor(gw exchange.Gateway, retryDelay time.Duration) *OrderExecutor {
	return &OrderExecutor{
		gw:         gw,
		retryDelay: retryDelay,
		log:        utils.L().WithComponent("orders"),
	}
}

// Buy размещает лимитную покупку
//
// При отказе FAILED_ORDER_WITH_OPEN_ORDERS отменяет открытые ордера пары,
// ждёт retryDelay и повторяет один раз. Повторный отказ - ErrOrderRejected.
func (oe *OrderExecutor) Buy(ctx context.Context, pair string, qty, price float64) (exchange.OrderRef, error) {
	start := time.Now()
	ref, err := oe.gw.SubmitLimitOrder(ctx, exchange.SideBuy, pair, qty, price)
	if err == nil {
		OrderLatency.WithLabelValues(string(exchange.SideBuy)).Observe(msSince(start))
		return ref, nil
	}
	if !exchange.IsOpenOrdersRejection(err) {
		return exchange.OrderRef{}, classifyOrderError(err)
	}

	oe.log.Warn("buy rejected due to open orders, cancelling and retrying",
		utils.Pair(pair), utils.Err(err))
	RecordOrderRetry(pair)

	cancelErr := retry.Do(ctx, func() error {
		return oe.gw.CancelOpenOrders(ctx, pair)
	}, retry.DefaultConfig())
	if cancelErr != nil {
		return exchange.OrderRef{}, fmt.Errorf("%w: cancel open orders: %v", ErrOrderRejected, cancelErr)
	}

	if err := sleepCtx(ctx, oe.retryDelay); err != nil {
		return exchange.OrderRef{}, err
	}

	start = time.Now()
	ref, err = oe.gw.SubmitLimitOrder(ctx, exchange.SideBuy, pair, qty, price)
	if err != nil {
		return exchange.OrderRef{}, fmt.Errorf("%w: retry after cancel: %v", ErrOrderRejected, err)
	}
	OrderLatency.WithLabelValues(string(exchange.SideBuy)).Observe(msSince(start))
	return ref, nil
}

// Sell размещает лимитную продажу (без повторов)
func (oe *OrderExecutor) Sell(ctx context.Context, pair string, qty, price float64) (exchange.OrderRef, error) {
	start := time.Now()
	ref, err := oe.gw.SubmitLimitOrder(ctx, exchange.SideSell, pair, qty, price)
	if err != nil {
		return exchange.OrderRef{}, classifyOrderError(err)
	}
	OrderLatency.WithLabelValues(string(exchange.SideSell)).Observe(msSince(start))
	return ref, nil
}

// CancelAll отменяет открытые ордера пары с повторами
func (oe *OrderExecutor) CancelAll(ctx context.Context, pair string) error {
	return retry.Do(ctx, func() error {
		return oe.gw.CancelOpenOrders(ctx, pair)
	}, retry.DefaultConfig())
}

// classifyOrderError: бизнес-отказ биржи - ErrOrderRejected, остальное как есть
func classifyOrderError(err error) error {
	var exErr *exchange.ExchangeError
	if errors.As(err, &exErr) {
		return fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	return err
}

// sleepCtx - пауза, прерываемая отменой контекста
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
