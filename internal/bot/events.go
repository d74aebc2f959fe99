package bot

import (
	"context"
	"sync"

	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// Обработчики событий движка
type (
	PriceFunc  func(price, profitPct float64)
	StatusFunc func(msg string)
	TradeFunc  func(rec models.TradeRecord)
)

type eventKind int

const (
	eventPrice eventKind = iota
	eventStatus
	eventTrade
)

type event struct {
	kind      eventKind
	price     float64
	profitPct float64
	msg       string
	trade     models.TradeRecord
}

type subscriber struct {
	price  PriceFunc
	status StatusFunc
	trade  TradeFunc
}

// dispatcher доставляет события подписчикам из одной горутины,
// поэтому обработчики никогда не выполняются параллельно
type dispatcher struct {
	events  chan event
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	subs   map[int]subscriber
	nextID int

	log *utils.Logger
}

func newDispatcher(buffer int) *dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &dispatcher{
		events:  make(chan event, buffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[int]subscriber),
		log:     utils.L().WithComponent("dispatcher"),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.events:
			d.deliver(ev)
		case <-d.quit:
			// доставляем то, что уже в очереди
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) subscribe(s subscriber) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = s
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) deliver(ev event) {
	d.mu.RLock()
	subs := make([]subscriber, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.RUnlock()

	for _, s := range subs {
		d.call(s, ev)
	}
}

// call вызывает обработчик; паника подписчика не останавливает доставку
func (d *dispatcher) call(s subscriber, ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("subscriber panic", utils.Any("panic", r))
		}
	}()

	switch ev.kind {
	case eventPrice:
		if s.price != nil {
			s.price(ev.price, ev.profitPct)
		}
	case eventStatus:
		if s.status != nil {
			s.status(ev.msg)
		}
	case eventTrade:
		if s.trade != nil {
			s.trade(ev.trade)
		}
	}
}

// tryEnqueue ставит событие в очередь без ожидания (цены: старые можно терять)
func (d *dispatcher) tryEnqueue(ev event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		RecordBufferOverflow("events")
		RecordBufferBacklog("events", cap(d.events), len(d.events))
		return false
	}
}

// enqueue ждёт места в очереди (статусы и сделки не теряются),
// пока не отменён ctx и не закрыт диспетчер
func (d *dispatcher) enqueue(ctx context.Context, ev event) bool {
	select {
	case d.events <- ev:
		return true
	default:
	}
	select {
	case d.events <- ev:
		return true
	case <-ctx.Done():
	case <-d.quit:
	}
	RecordBufferOverflow("events")
	return false
}

// close останавливает горутину доставки после опустошения очереди
func (d *dispatcher) close() {
	d.once.Do(func() { close(d.quit) })
	<-d.stopped
}
