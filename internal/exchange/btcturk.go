package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"cyclebot/pkg/ratelimit"
	"cyclebot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	btcturkName    = "btcturk"
	btcturkBaseURL = "https://api.btcturk.com"

	// категории лимитов запросов
	limitPublic  = "public"
	limitPrivate = "private"
)

// BTCTurkConfig - параметры клиента BTCTurk
type BTCTurkConfig struct {
	APIKey    string
	APISecret string // base64, как выдаёт биржа
	BaseURL   string

	// Лимиты запросов (req/s); 0 - значения по умолчанию
	PublicRate  float64
	PrivateRate float64

	HTTP HTTPClientConfig
}

// BTCTurk - REST клиент спотовой биржи BTCTurk
type BTCTurk struct {
	apiKey  string
	secret  []byte
	baseURL string

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *utils.Logger

	// масштабы цены/количества по парам из exchangeinfo
	scales   map[string]pairScale
	scalesMu sync.RWMutex

	now func() time.Time
}

type pairScale struct {
	price    int
	quantity int
}

// NewBTCTurk создаёт клиент; секрет декодируется из base64
func NewBTCTurk(cfg BTCTurkConfig) (*BTCTurk, error) {
	secret, err := base64.StdEncoding.DecodeString(cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("btcturk: api secret must be base64: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = btcturkBaseURL
	}
	if cfg.PublicRate <= 0 {
		cfg.PublicRate = 5
	}
	if cfg.PrivateRate <= 0 {
		cfg.PrivateRate = 2
	}
	if cfg.HTTP == (HTTPClientConfig{}) {
		cfg.HTTP = DefaultHTTPClientConfig()
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(limitPublic, cfg.PublicRate, cfg.PublicRate*2)
	limiter.Add(limitPrivate, cfg.PrivateRate, cfg.PrivateRate*2)

	return &BTCTurk{
		apiKey:     cfg.APIKey,
		secret:     secret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: NewHTTPClient(cfg.HTTP),
		limiter:    limiter,
		log:        utils.L().WithComponent("btcturk"),
		scales:     make(map[string]pairScale),
		now:        time.Now,
	}, nil
}

func (b *BTCTurk) Name() string {
	return btcturkName
}

// sign: base64(HMAC-SHA256(secret, apiKey + stamp))
func (b *BTCTurk) sign(stamp string) string {
	h := hmac.New(sha256.New, b.secret)
	h.Write([]byte(b.apiKey + stamp))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// envelope - общий формат ответа BTCTurk
type envelope struct {
	Success bool                `json:"success"`
	Message *string             `json:"message"`
	Code    int                 `json:"code"`
	Data    jsoniter.RawMessage `json:"data"`
}

// doRequest выполняет запрос и возвращает поле data
func (b *BTCTurk) doRequest(ctx context.Context, method, endpoint string, query url.Values, body interface{}, signed bool) (jsoniter.RawMessage, error) {
	category := limitPublic
	if signed {
		category = limitPrivate
	}
	if err := b.limiter.Wait(ctx, category); err != nil {
		return nil, &GatewayError{Exchange: btcturkName, Op: endpoint, Err: err}
	}

	reqURL := b.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		stamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		req.Header.Set("X-PCK", b.apiKey)
		req.Header.Set("X-Stamp", stamp)
		req.Header.Set("X-Signature", b.sign(stamp))
	}

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Exchange: btcturkName, Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Exchange: btcturkName, Op: endpoint, Err: err}
	}

	b.log.Debug("btcturk request",
		utils.String("method", method),
		utils.String("endpoint", endpoint),
		utils.Int("status", resp.StatusCode),
		utils.Latency(float64(time.Since(start).Microseconds())/1000),
	)

	if resp.StatusCode >= 500 {
		return nil, &GatewayError{Exchange: btcturkName, Op: endpoint, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ExchangeError{Exchange: btcturkName, Code: "429", Message: "rate limit exceeded"}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ExchangeError{
			Exchange: btcturkName,
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  "malformed response",
			Original: err,
		}
	}

	if !env.Success || resp.StatusCode >= 400 {
		msg := "request failed"
		if env.Message != nil && *env.Message != "" {
			msg = *env.Message
		}
		code := strconv.Itoa(env.Code)
		if strings.Contains(msg, CodeOpenOrders) {
			code = CodeOpenOrders
		}
		return nil, &ExchangeError{Exchange: btcturkName, Code: code, Message: msg}
	}

	return env.Data, nil
}

// ============================================================
// Market data
// ============================================================

// GetPrice - последняя цена сделки по паре
func (b *BTCTurk) GetPrice(ctx context.Context, pair string) (float64, error) {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v2/ticker", url.Values{"pairSymbol": {pair}}, nil, false)
	if err != nil {
		return 0, err
	}

	var tickers []struct {
		Pair string    `json:"pair"`
		Last flexFloat `json:"last"`
	}
	if err := json.Unmarshal(data, &tickers); err != nil {
		return 0, &ExchangeError{Exchange: btcturkName, Message: "decode ticker", Original: err}
	}

	for _, t := range tickers {
		if strings.EqualFold(t.Pair, pair) {
			if t.Last <= 0 {
				return 0, &ExchangeError{Exchange: btcturkName, Message: "ticker has no last price for " + pair}
			}
			return float64(t.Last), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, pair)
}

// Pairs возвращает список торгуемых пар и кэширует их масштабы
func (b *BTCTurk) Pairs(ctx context.Context) ([]string, error) {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v2/server/exchangeinfo", nil, nil, false)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Name             string `json:"name"`
			Status           string `json:"status"`
			NumeratorScale   int    `json:"numeratorScale"`
			DenominatorScale int    `json:"denominatorScale"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, &ExchangeError{Exchange: btcturkName, Message: "decode exchangeinfo", Original: err}
	}

	pairs := make([]string, 0, len(info.Symbols))
	b.scalesMu.Lock()
	for _, s := range info.Symbols {
		b.scales[s.Name] = pairScale{price: s.DenominatorScale, quantity: s.NumeratorScale}
		if s.Status == "" || strings.EqualFold(s.Status, "TRADING") {
			pairs = append(pairs, s.Name)
		}
	}
	b.scalesMu.Unlock()

	return pairs, nil
}

// scaleFor возвращает точность пары; при отсутствии кэша загружает exchangeinfo
func (b *BTCTurk) scaleFor(ctx context.Context, pair string) pairScale {
	b.scalesMu.RLock()
	s, ok := b.scales[pair]
	b.scalesMu.RUnlock()
	if ok {
		return s
	}

	if _, err := b.Pairs(ctx); err != nil {
		b.log.Warn("exchangeinfo unavailable, using default precision", utils.Pair(pair), utils.Err(err))
	}

	b.scalesMu.RLock()
	s, ok = b.scales[pair]
	b.scalesMu.RUnlock()
	if !ok {
		s = pairScale{price: 8, quantity: 8}
	}
	return s
}

// ============================================================
// Account
// ============================================================

// flexFloat принимает число как в виде строки, так и числом
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// GetBalances - балансы всех активов аккаунта
func (b *BTCTurk) GetBalances(ctx context.Context) (map[string]Balance, error) {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v1/users/balances", nil, nil, true)
	if err != nil {
		return nil, err
	}

	var items []struct {
		Asset  string    `json:"asset"`
		Free   flexFloat `json:"free"`
		Locked flexFloat `json:"locked"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &ExchangeError{Exchange: btcturkName, Message: "decode balances", Original: err}
	}

	out := make(map[string]Balance, len(items))
	for _, it := range items {
		out[strings.ToUpper(it.Asset)] = Balance{Free: float64(it.Free), Locked: float64(it.Locked)}
	}
	return out, nil
}

// Ping проверяет ключи запросом балансов
func (b *BTCTurk) Ping(ctx context.Context) error {
	_, err := b.GetBalances(ctx)
	return err
}

// ============================================================
// Orders
// ============================================================

type orderRequest struct {
	Quantity         string `json:"quantity"`
	Price            string `json:"price"`
	NewOrderClientID string `json:"newOrderClientId"`
	OrderMethod      string `json:"orderMethod"`
	OrderType        string `json:"orderType"`
	PairSymbol       string `json:"pairSymbol"`
}

// SubmitLimitOrder размещает лимитный ордер; цена и количество округляются вниз до точности пары
func (b *BTCTurk) SubmitLimitOrder(ctx context.Context, side Side, pair string, qty, price float64) (OrderRef, error) {
	scale := b.scaleFor(ctx, pair)
	qty = utils.RoundDown(qty, pow10(-scale.quantity))
	price = utils.RoundDown(price, pow10(-scale.price))
	if qty <= 0 || price <= 0 {
		return OrderRef{}, &ExchangeError{Exchange: btcturkName, Message: fmt.Sprintf("order too small: qty=%v price=%v", qty, price)}
	}

	clientID := uuid.New().String()
	req := orderRequest{
		Quantity:         strconv.FormatFloat(qty, 'f', scale.quantity, 64),
		Price:            strconv.FormatFloat(price, 'f', scale.price, 64),
		NewOrderClientID: clientID,
		OrderMethod:      "limit",
		OrderType:        string(side),
		PairSymbol:       pair,
	}

	data, err := b.doRequest(ctx, http.MethodPost, "/api/v1/order", nil, req, true)
	if err != nil {
		return OrderRef{}, err
	}

	var resp struct {
		ID       int64 `json:"id"`
		Datetime int64 `json:"datetime"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return OrderRef{}, &ExchangeError{Exchange: btcturkName, Message: "decode order", Original: err}
	}

	created := b.now()
	if resp.Datetime > 0 {
		created = utils.FromUnixMillis(resp.Datetime)
	}

	return OrderRef{
		ID:            strconv.FormatInt(resp.ID, 10),
		ClientOrderID: clientID,
		Pair:          pair,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		CreatedAt:     created,
	}, nil
}

// CancelOpenOrders отменяет все открытые ордера пары
func (b *BTCTurk) CancelOpenOrders(ctx context.Context, pair string) error {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v1/openOrders", url.Values{"pairSymbol": {pair}}, nil, true)
	if err != nil {
		return err
	}

	type openOrder struct {
		ID int64 `json:"id"`
	}
	var book struct {
		Asks []openOrder `json:"asks"`
		Bids []openOrder `json:"bids"`
	}
	if err := json.Unmarshal(data, &book); err != nil {
		return &ExchangeError{Exchange: btcturkName, Message: "decode open orders", Original: err}
	}

	orders := append(book.Asks, book.Bids...)
	for _, o := range orders {
		q := url.Values{"id": {strconv.FormatInt(o.ID, 10)}}
		if _, err := b.doRequest(ctx, http.MethodDelete, "/api/v1/order", q, nil, true); err != nil {
			return fmt.Errorf("cancel order %d: %w", o.ID, err)
		}
	}

	if len(orders) > 0 {
		b.log.Info("open orders cancelled", utils.Pair(pair), utils.Int("count", len(orders)))
	}
	return nil
}

// Close закрывает idle соединения
func (b *BTCTurk) Close() error {
	closeIdle(b.httpClient)
	return nil
}

func pow10(n int) float64 {
	v := 1.0
	for ; n < 0; n++ {
		v /= 10
	}
	for ; n > 0; n-- {
		v *= 10
	}
	return v
}
