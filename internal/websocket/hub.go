package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cyclebot/internal/bot"
	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const broadcastBufferSize = 256

var (
	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cyclebot",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Подключенные WebSocket клиенты",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "ws",
		Name:      "dropped_messages_total",
		Help:      "Сообщения, не попавшие в очередь broadcast",
	})
)

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast событий движка всем подключенным клиентам.
//
// Типы сообщений:
// - price: цена и текущая прибыль
// - status: строка статуса движка
// - trade: запись журнала сделок
// - engine: снимок состояния движка
// - stats: статистика журнала
// - balances: балансы аккаунта
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Подписать на движок: unsubscribe := hub.AttachEngine(engine)
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	dropped int64
	origins *OriginChecker
	log     *utils.Logger
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(nil),
		log:        utils.L().WithComponent("ws-hub"),
	}
}

// SetAllowedOrigins задаёт разрешённые Origin для upgrade (пусто или "*" - все)
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.origins = NewOriginChecker(origins)
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Возвращается после Stop; все клиенты при этом отключаются.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			clientsGauge.Set(float64(n))
			h.log.Debug("Client connected", utils.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			clientsGauge.Set(float64(n))
			h.log.Debug("Client disconnected", utils.Int("clients", n))

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			clientsGauge.Set(0)
			return
		}
	}
}

// fanOut: копируем список под коротким RLock → отправляем без Lock → удаляем медленных под Write Lock
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// клиент не успевает читать
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range toRemove {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	clientsGauge.Set(float64(n))
	h.log.Warn("Removed slow clients", utils.Int("removed", len(toRemove)), utils.Int("clients", n))
}

// Stop останавливает Run (повторный вызов безопасен)
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast сериализует сообщение и ставит в очередь без блокировки
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("Error marshaling broadcast message", utils.Err(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
//
// При заполненной очереди сообщение отбрасывается: движок не ждёт медленных клиентов.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddInt64(&h.dropped, 1)
		droppedTotal.Inc()
	}
}

// BroadcastPrice отправляет цену и текущую прибыль
func (h *Hub) BroadcastPrice(price, profitPct float64) {
	h.Broadcast(NewPriceMessage(price, profitPct))
}

// BroadcastStatus отправляет строку статуса
func (h *Hub) BroadcastStatus(msg string) {
	h.Broadcast(NewStatusMessage(msg))
}

// BroadcastTrade отправляет запись журнала
func (h *Hub) BroadcastTrade(rec models.TradeRecord) {
	h.Broadcast(NewTradeMessage(rec))
}

// BroadcastEngine отправляет снимок движка
func (h *Hub) BroadcastEngine(status models.EngineStatus) {
	h.Broadcast(NewEngineMessage(status))
}

// BroadcastStats отправляет статистику журнала
func (h *Hub) BroadcastStats(stats models.LedgerStats) {
	h.Broadcast(NewStatsMessage(stats))
}

// BroadcastBalances отправляет балансы
func (h *Hub) BroadcastBalances(balances map[string]exchange.Balance) {
	h.Broadcast(NewBalancesMessage(balances))
}

// EventSource - движок с подпиской на события
type EventSource interface {
	Subscribe(priceFn bot.PriceFunc, statusFn bot.StatusFunc, tradeFn bot.TradeFunc) (unsubscribe func())
	Status() models.EngineStatus
}

// AttachEngine транслирует события движка клиентам
//
// На каждое сообщение статуса дополнительно уходит снимок движка.
func (h *Hub) AttachEngine(src EventSource) (unsubscribe func()) {
	return src.Subscribe(
		h.BroadcastPrice,
		func(msg string) {
			h.BroadcastStatus(msg)
			h.BroadcastEngine(src.Status())
		},
		h.BroadcastTrade,
	)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages - число отброшенных из-за переполнения очереди сообщений
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
