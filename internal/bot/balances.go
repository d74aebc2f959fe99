package bot

import (
	"context"
	"sync"
	"time"

	"cyclebot/internal/exchange"
)

// BalanceObserver получает каждый прочитанный снимок балансов
type BalanceObserver func(balances map[string]exchange.Balance)

// balanceCache запоминает последние балансы, прочитанные через шлюз.
//
// Через него идут все чтения балансов движка: допуск, ожидание исполнения
// и подтверждение продажи.
type balanceCache struct {
	exchange.Gateway

	mu       sync.RWMutex
	last     map[string]exchange.Balance
	at       time.Time
	observer BalanceObserver
}

func newBalanceCache(gw exchange.Gateway) *balanceCache {
	return &balanceCache{Gateway: gw}
}

func (c *balanceCache) GetBalances(ctx context.Context) (map[string]exchange.Balance, error) {
	balances, err := c.Gateway.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := copyBalances(balances)

	c.mu.Lock()
	c.last, c.at = snapshot, time.Now()
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer(copyBalances(snapshot))
	}
	return balances, nil
}

func (c *balanceCache) snapshot() (map[string]exchange.Balance, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil, time.Time{}, false
	}
	return copyBalances(c.last), c.at, true
}

func (c *balanceCache) setObserver(fn BalanceObserver) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func copyBalances(src map[string]exchange.Balance) map[string]exchange.Balance {
	out := make(map[string]exchange.Balance, len(src))
	for asset, b := range src {
		out[asset] = b
	}
	return out
}

// LastBalances - последний снимок балансов, прочитанный движком.
// ok == false, пока движок ни разу не читал балансы.
func (e *Engine) LastBalances() (balances map[string]exchange.Balance, observedAt time.Time, ok bool) {
	return e.balances.snapshot()
}

// OnBalances задаёт получателя снимков балансов (nil отключает)
//
// Вызывается из рабочей горутины, получатель не должен блокироваться.
func (e *Engine) OnBalances(fn BalanceObserver) {
	e.balances.setObserver(fn)
}
