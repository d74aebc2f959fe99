package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cyclebot/internal/bot"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

func defaultStartConfig() models.EngineConfig {
	return models.EngineConfig{
		Pair:            "BTCTRY",
		TargetProfitPct: 2,
		StopLossPct:     -5,
		TradeAmount:     1000,
		CheckIntervalMs: 1000,
	}
}

// ============ EngineHandler.Start ============

func TestEngineHandler_Start(t *testing.T) {
	validation := utils.ValidationErrors{{Field: "trade_amount", Message: "must be positive"}}

	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantCode   string
	}{
		{"defaults only", "", nil, http.StatusAccepted, ""},
		{"override fields", `{"pair":"ETHTRY","target_profit_pct":3}`, nil, http.StatusAccepted, ""},
		{"malformed body", `{"pair":`, nil, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"leverage":10}`, nil, http.StatusBadRequest, "bad_request"},
		{"validation", "", fmt.Errorf("invalid engine config: %w", validation), http.StatusBadRequest, "validation"},
		{"already running", "", bot.ErrAlreadyRunning, http.StatusConflict, "already_running"},
		{"risk veto", "", &bot.RiskError{Reason: bot.ReasonPositionSize}, http.StatusUnprocessableEntity, "risk_rejected"},
		{"closed", "", bot.ErrEngineClosed, http.StatusServiceUnavailable, "closed"},
		{"cancelled", "", context.Canceled, http.StatusRequestTimeout, "cancelled"},
		{"gateway", "", errMock, http.StatusBadGateway, "gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &MockEngine{startErr: tt.startErr}
			h := NewEngineHandler(eng, defaultStartConfig())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Start(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestEngineHandler_StartMergesDefaults(t *testing.T) {
	eng := &MockEngine{}
	h := NewEngineHandler(eng, defaultStartConfig())

	body := `{"pair":"ETHTRY","continuous":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Start(w, req)

	if len(eng.started) != 1 {
		t.Fatalf("Start calls = %d", len(eng.started))
	}
	got := eng.started[0]
	if got.Pair != "ETHTRY" || !got.Continuous || got.TargetProfitPct != 2 || got.TradeAmount != 1000 {
		t.Errorf("config = %+v", got)
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Running || resp.Pair != "ETHTRY" {
		t.Errorf("status = %+v", resp)
	}
}

func TestEngineHandler_ValidationFields(t *testing.T) {
	verrs := utils.ValidationErrors{{Field: "pair", Message: "required"}}
	eng := &MockEngine{startErr: fmt.Errorf("invalid engine config: %w", verrs)}
	h := NewEngineHandler(eng, models.EngineConfig{})

	w := httptest.NewRecorder()
	h.Start(w, httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "pair" {
		t.Errorf("fields = %+v", resp.Fields)
	}
}

// ============ Stop / Status / списки ============

func TestEngineHandler_StopAndStatus(t *testing.T) {
	eng := &MockEngine{running: true, lastErr: bot.ErrStopped}
	h := NewEngineHandler(eng, defaultStartConfig())

	w := httptest.NewRecorder()
	h.Stop(w, httptest.NewRequest(http.MethodPost, "/api/v1/engine/stop", nil))
	if w.Code != http.StatusOK || eng.stopped != 1 {
		t.Fatalf("stop: status %d, calls %d", w.Code, eng.stopped)
	}

	w = httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/api/v1/engine/status", nil))

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Running || resp.LastError != bot.ErrStopped.Error() {
		t.Errorf("status = %+v", resp)
	}
}

func TestEngineHandler_EmptyListsAreArrays(t *testing.T) {
	h := NewEngineHandler(&MockEngine{}, defaultStartConfig())

	for name, fn := range map[string]http.HandlerFunc{
		"cycles": h.Cycles,
		"trades": h.Trades,
	} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := strings.TrimSpace(w.Body.String()); got != "[]" {
			t.Errorf("%s body = %s, want []", name, got)
		}
	}
}
