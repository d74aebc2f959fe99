package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

func TestEngine_LastBalancesFromWorkerReads(t *testing.T) {
	gw := newScriptedGateway(100)
	gw.fillAfterPolls = 2
	gw.priceAfterSell = 102.5

	e, _ := newTestEngine(t, gw, fastSettings(), models.DefaultRiskLimits())

	if _, _, ok := e.LastBalances(); ok {
		t.Fatal("no balances must be reported before the first read")
	}

	var mu sync.Mutex
	var observed []map[string]exchange.Balance
	e.OnBalances(func(b map[string]exchange.Balance) {
		mu.Lock()
		observed = append(observed, b)
		mu.Unlock()
	})

	before := time.Now()
	if err := e.Start(context.Background(), testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, e)

	got, at, ok := e.LastBalances()
	if !ok {
		t.Fatal("balances must be recorded after a run")
	}
	if at.Before(before) {
		t.Errorf("observed at %v, before start %v", at, before)
	}
	if _, ok := got["TRY"]; !ok {
		t.Errorf("balances = %+v, want TRY", got)
	}

	// снимок - копия
	got["TRY"] = exchange.Balance{Free: -1}
	again, _, _ := e.LastBalances()
	if again["TRY"].Free == -1 {
		t.Error("caller mutated cached balances")
	}

	mu.Lock()
	defer mu.Unlock()
	// допуск и опросы исполнения покупки
	if len(observed) < 3 {
		t.Errorf("observer calls = %d, want at least 3", len(observed))
	}
}

// failingBalances - шлюз, у которого чтение балансов всегда падает
type failingBalances struct {
	*scriptedGateway
}

func (g failingBalances) GetBalances(context.Context) (map[string]exchange.Balance, error) {
	return nil, errors.New("balance endpoint down")
}

func TestBalanceCache_KeepsLastGoodSnapshot(t *testing.T) {
	cache := newBalanceCache(newScriptedGateway(100))
	if _, err := cache.GetBalances(context.Background()); err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	first, at, _ := cache.snapshot()

	cache.Gateway = failingBalances{newScriptedGateway(100)}
	if _, err := cache.GetBalances(context.Background()); err == nil {
		t.Fatal("error must be returned to the caller")
	}

	got, gotAt, found := cache.snapshot()
	if !found || got["TRY"].Free != first["TRY"].Free || !gotAt.Equal(at) {
		t.Errorf("snapshot after failed read = %+v at %v", got, gotAt)
	}
}
