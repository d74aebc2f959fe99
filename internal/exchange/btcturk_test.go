package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testSecret = "c2VjcmV0LWtleS1mb3ItdGVzdHM=" // base64("secret-key-for-tests")

// fakeBTCTurk - минимальный HTTP сервер с ответами в формате BTCTurk
type fakeBTCTurk struct {
	t *testing.T

	mu        sync.Mutex
	orders    []string // тела POST /api/v1/order
	cancelled []string
	rejectN   int // сколько первых ордеров отклонить с FAILED_ORDER_WITH_OPEN_ORDERS
}

func (f *fakeBTCTurk) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	key, stamp, sig := r.Header.Get("X-PCK"), r.Header.Get("X-Stamp"), r.Header.Get("X-Signature")
	secret, _ := base64.StdEncoding.DecodeString(testSecret)
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(key + stamp))
	if key != "pub-key" || sig != base64.StdEncoding.EncodeToString(h.Sum(nil)) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"success":false,"message":"UNAUTHORIZED","code":401}`)
		return false
	}
	return true
}

func (f *fakeBTCTurk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v2/ticker":
		io.WriteString(w, `{"data":[{"pair":"`+r.URL.Query().Get("pairSymbol")+`","last":2500000.5}],"success":true,"message":null,"code":0}`)

	case r.URL.Path == "/api/v2/server/exchangeinfo":
		io.WriteString(w, `{"data":{"symbols":[{"name":"BTCTRY","status":"TRADING","numeratorScale":8,"denominatorScale":0},{"name":"ASRTRY","status":"TRADING","numeratorScale":2,"denominatorScale":3}]},"success":true,"code":0}`)

	case r.URL.Path == "/api/v1/users/balances":
		if !f.checkAuth(w, r) {
			return
		}
		io.WriteString(w, `{"data":[{"asset":"TRY","balance":"1000.5","locked":"0.5","free":"1000"},{"asset":"btc","balance":"0.01","locked":"0","free":"0.01"}],"success":true,"code":0}`)

	case r.URL.Path == "/api/v1/order" && r.Method == http.MethodPost:
		if !f.checkAuth(w, r) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.orders = append(f.orders, string(body))
		reject := len(f.orders) <= f.rejectN
		f.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"success":false,"message":"FAILED_ORDER_WITH_OPEN_ORDERS","code":1126}`)
			return
		}
		io.WriteString(w, `{"data":{"id":9001,"datetime":1700000000000,"type":"buy","method":"limit"},"success":true,"message":"SUCCESS","code":0}`)

	case r.URL.Path == "/api/v1/openOrders":
		if !f.checkAuth(w, r) {
			return
		}
		io.WriteString(w, `{"data":{"asks":[{"id":11}],"bids":[{"id":12}]},"success":true,"code":0}`)

	case r.URL.Path == "/api/v1/order" && r.Method == http.MethodDelete:
		if !f.checkAuth(w, r) {
			return
		}
		f.mu.Lock()
		f.cancelled = append(f.cancelled, r.URL.Query().Get("id"))
		f.mu.Unlock()
		io.WriteString(w, `{"success":true,"code":0}`)

	case r.URL.Path == "/broken":
		w.WriteHeader(http.StatusBadGateway)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestBTCTurk(t *testing.T, fake *fakeBTCTurk) *BTCTurk {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewBTCTurk(BTCTurkConfig{
		APIKey:      "pub-key",
		APISecret:   testSecret,
		BaseURL:     srv.URL,
		PublicRate:  1000,
		PrivateRate: 1000,
	})
	if err != nil {
		t.Fatalf("NewBTCTurk: %v", err)
	}
	return client
}

func TestNewBTCTurk_InvalidSecret(t *testing.T) {
	if _, err := NewBTCTurk(BTCTurkConfig{APIKey: "k", APISecret: "%%%"}); err == nil {
		t.Error("expected error for non-base64 secret")
	}
}

func TestBTCTurk_GetPrice(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t})

	price, err := c.GetPrice(context.Background(), "BTCTRY")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != 2500000.5 {
		t.Errorf("price = %v, want 2500000.5", price)
	}
}

func TestBTCTurk_GetBalances(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t})

	balances, err := c.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}

	if got := balances["TRY"]; got.Free != 1000 || got.Locked != 0.5 {
		t.Errorf("TRY = %+v", got)
	}
	if got := balances["BTC"]; got.Free != 0.01 {
		t.Errorf("BTC = %+v (asset must be upper-cased)", got)
	}
}

func TestBTCTurk_BadSignature(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t})
	c.apiKey = "other-key"

	_, err := c.GetBalances(context.Background())
	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if exErr.Message != "UNAUTHORIZED" {
		t.Errorf("Message = %q", exErr.Message)
	}
}

func TestBTCTurk_SubmitLimitOrder(t *testing.T) {
	fake := &fakeBTCTurk{t: t}
	c := newTestBTCTurk(t, fake)

	ref, err := c.SubmitLimitOrder(context.Background(), SideBuy, "ASRTRY", 117.6543, 0.849575)
	if err != nil {
		t.Fatalf("SubmitLimitOrder: %v", err)
	}

	if ref.ID != "9001" {
		t.Errorf("ID = %q, want 9001", ref.ID)
	}
	if ref.ClientOrderID == "" {
		t.Error("ClientOrderID must be generated")
	}
	if !ref.CreatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CreatedAt = %v", ref.CreatedAt)
	}

	// Количество и цена округлены вниз до точности пары
	body := fake.orders[0]
	for _, want := range []string{`"quantity":"117.65"`, `"price":"0.849"`, `"orderMethod":"limit"`, `"orderType":"buy"`, `"pairSymbol":"ASRTRY"`} {
		if !strings.Contains(body, want) {
			t.Errorf("order body %s does not contain %s", body, want)
		}
	}
}

func TestBTCTurk_SubmitLimitOrder_OpenOrdersRejection(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t, rejectN: 1})

	_, err := c.SubmitLimitOrder(context.Background(), SideBuy, "BTCTRY", 0.001, 2500000)
	if !IsOpenOrdersRejection(err) {
		t.Fatalf("expected open-orders rejection, got %v", err)
	}

	var exErr *ExchangeError
	if !errors.As(err, &exErr) || exErr.Code != CodeOpenOrders {
		t.Errorf("Code = %v", err)
	}
	if exErr.Retryable() {
		t.Error("business rejection must not be retryable")
	}
}

func TestBTCTurk_CancelOpenOrders(t *testing.T) {
	fake := &fakeBTCTurk{t: t}
	c := newTestBTCTurk(t, fake)

	if err := c.CancelOpenOrders(context.Background(), "BTCTRY"); err != nil {
		t.Fatalf("CancelOpenOrders: %v", err)
	}

	if strings.Join(fake.cancelled, ",") != "11,12" {
		t.Errorf("cancelled = %v, want [11 12]", fake.cancelled)
	}
}

func TestBTCTurk_ServerErrorIsGatewayError(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t})

	_, err := c.doRequest(context.Background(), http.MethodGet, "/broken", nil, nil, false)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if !gwErr.Retryable() {
		t.Error("5xx must be retryable")
	}
}

func TestBTCTurk_Pairs(t *testing.T) {
	c := newTestBTCTurk(t, &fakeBTCTurk{t: t})

	pairs, err := c.Pairs(context.Background())
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("pairs = %v", pairs)
	}
	if s := c.scaleFor(context.Background(), "ASRTRY"); s.price != 3 || s.quantity != 2 {
		t.Errorf("ASRTRY scale = %+v", s)
	}
}
