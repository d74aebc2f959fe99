package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"cyclebot/internal/models"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := newDispatcher(16)

	var mu sync.Mutex
	var got []string
	d.subscribe(subscriber{
		status: func(msg string) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		},
		trade: func(rec models.TradeRecord) {
			mu.Lock()
			got = append(got, "trade:"+string(rec.Type))
			mu.Unlock()
		},
	})

	ctx := context.Background()
	d.enqueue(ctx, event{kind: eventStatus, msg: "a"})
	d.enqueue(ctx, event{kind: eventTrade, trade: models.TradeRecord{Type: models.TradeBuy}})
	d.enqueue(ctx, event{kind: eventStatus, msg: "b"})
	d.close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "trade:buy", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := newDispatcher(4)
	defer d.close()

	calls := make(chan float64, 4)
	unsubscribe := d.subscribe(subscriber{price: func(price, _ float64) { calls <- price }})

	d.tryEnqueue(event{kind: eventPrice, price: 1})
	select {
	case p := <-calls:
		if p != 1 {
			t.Errorf("price = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("price not delivered")
	}

	unsubscribe()
	unsubscribe() // повторный вызов безопасен

	d.tryEnqueue(event{kind: eventPrice, price: 2})
	d.close()
	select {
	case p := <-calls:
		t.Errorf("delivered after unsubscribe: %v", p)
	default:
	}
}

func TestDispatcher_SubscriberPanic(t *testing.T) {
	d := newDispatcher(4)

	var mu sync.Mutex
	var got []string
	d.subscribe(subscriber{status: func(msg string) { panic("boom") }})
	d.subscribe(subscriber{status: func(msg string) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}})

	d.enqueue(context.Background(), event{kind: eventStatus, msg: "one"})
	d.enqueue(context.Background(), event{kind: eventStatus, msg: "two"})
	d.close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Errorf("healthy subscriber got %v, want both events", got)
	}
}

func TestDispatcher_TryEnqueueDropsWhenFull(t *testing.T) {
	d := newDispatcher(1)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	delivered := 0
	d.subscribe(subscriber{price: func(float64, float64) {
		mu.Lock()
		delivered++
		mu.Unlock()
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}})

	if !d.tryEnqueue(event{kind: eventPrice, price: 1}) {
		t.Fatal("first enqueue must succeed")
	}
	<-entered // доставка заблокирована, очередь пуста

	if !d.tryEnqueue(event{kind: eventPrice, price: 2}) {
		t.Fatal("second enqueue must fit the buffer")
	}
	if d.tryEnqueue(event{kind: eventPrice, price: 3}) {
		t.Fatal("third enqueue must be dropped")
	}

	close(release)
	d.close()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}

func TestDispatcher_EnqueueRespectsContext(t *testing.T) {
	d := newDispatcher(1)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	d.subscribe(subscriber{status: func(string) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}})
	defer func() {
		close(release)
		d.close()
	}()

	d.enqueue(context.Background(), event{kind: eventStatus, msg: "busy"})
	<-entered
	d.enqueue(context.Background(), event{kind: eventStatus, msg: "queued"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if d.enqueue(ctx, event{kind: eventStatus, msg: "late"}) {
		t.Error("enqueue into a full buffer must give up on ctx")
	}
}
