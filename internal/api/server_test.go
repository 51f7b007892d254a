package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/order"
	"oms/internal/risk"
	"oms/internal/schema"
	"oms/pkg/exception"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrders struct {
	intents []schema.OrderIntent
	process order.Result
	err     error
	status  order.Status
	cancel  order.Result
	records map[string]og.Record
}

func (f *fakeOrders) ProcessOrder(_ context.Context, intent schema.OrderIntent) (order.Result, error) {
	f.intents = append(f.intents, intent)
	return f.process, f.err
}

func (f *fakeOrders) CancelOrder(_ context.Context, key string) (order.Result, error) {
	res := f.cancel
	res.Key = key
	return res, f.err
}

func (f *fakeOrders) GetOrderStatus(_ context.Context, key string) (order.Status, error) {
	st := f.status
	st.Key = key
	return st, f.err
}

func (f *fakeOrders) Record(key string) (og.Record, bool) {
	r, ok := f.records[key]
	return r, ok
}

type envelope struct {
	Result map[string]any `json:"result"`
	Error  string         `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func newTestServer(t *testing.T, orders *fakeOrders) (http.Handler, *risk.Gate) {
	t.Helper()
	gate, err := risk.NewGate(risk.DefaultConfig())
	require.NoError(t, err)
	return NewServer(":0", orders, gate, obs.NewMetrics()).Router(), gate
}

func TestCreateOrder(t *testing.T) {
	testCases := []struct {
		desc    string
		outcome order.Outcome
		err     error
		code    int
	}{
		{desc: "submitted", outcome: order.OutcomeSubmitted, code: http.StatusCreated},
		{desc: "rejected by risk", outcome: order.OutcomeRejected, code: http.StatusOK},
		{desc: "invalid", outcome: order.OutcomeInvalid, err: exception.ErrOrderInvalidIntent, code: http.StatusBadRequest},
		{desc: "venue failure", outcome: order.OutcomeFailed, err: exception.ErrVenue, code: http.StatusBadGateway},
		{desc: "not running", outcome: order.OutcomeNotRunning, err: exception.ErrOrderNotRunning, code: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			orders := &fakeOrders{process: order.Result{Outcome: tc.outcome, Key: "order_1"}, err: tc.err}
			h, _ := newTestServer(t, orders)

			code, env := do(t, h, http.MethodPost, "/v1/orders",
				`{"order_id":"order_1","symbol":"BTC","side":"BUY","order_type":"limit","quantity":"0.5","price":"100"}`)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, string(tc.outcome), env.Result["outcome"])
			if tc.err != nil {
				assert.Equal(t, tc.err.Error(), env.Error)
			}

			require.Len(t, orders.intents, 1)
			intent := orders.intents[0]
			assert.Equal(t, schema.OrderSideBuy, intent.Side)
			assert.Equal(t, schema.OrderTypeLimit, intent.Type)
			assert.True(t, decimal.RequireFromString("0.5").Equal(intent.Quantity))
		})
	}
}

func TestCreateOrderMalformedBody(t *testing.T) {
	orders := &fakeOrders{}
	h, _ := newTestServer(t, orders)

	code, env := do(t, h, http.MethodPost, "/v1/orders", `{"quantity":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, exception.ErrOrderInvalidIntent.Error())
	assert.Empty(t, orders.intents)
}

func TestOrderStatus(t *testing.T) {
	orders := &fakeOrders{status: order.Status{State: og.OrderStateFilled}}
	h, _ := newTestServer(t, orders)

	code, env := do(t, h, http.MethodGet, "/v1/orders/order_1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FILLED", env.Result["state"])
	assert.Equal(t, "order_1", env.Result["order_id"])

	orders.err = &order.VenueError{Op: "get_order_status", Key: "order_1", Err: exception.ErrVenueUnknownOrder}
	code, _ = do(t, h, http.MethodGet, "/v1/orders/order_1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelOrder(t *testing.T) {
	orders := &fakeOrders{cancel: order.Result{Outcome: order.OutcomeCanceled}}
	h, _ := newTestServer(t, orders)

	code, env := do(t, h, http.MethodDelete, "/v1/orders/order_1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "canceled", env.Result["outcome"])

	orders.cancel = order.Result{Outcome: order.OutcomeInvalid}
	orders.err = errors.Wrap(exception.ErrOrderNotCancelable, "order order_1 is FILLED")
	code, env = do(t, h, http.MethodDelete, "/v1/orders/order_1", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Error, "not cancelable")
}

func TestOrderHistory(t *testing.T) {
	orders := &fakeOrders{records: map[string]og.Record{
		"order_1": {Key: "order_1", State: og.OrderStateSent, History: []og.Entry{{State: og.OrderStatePending}, {State: og.OrderStateSent}}},
	}}
	h, _ := newTestServer(t, orders)

	code, env := do(t, h, http.MethodGet, "/v1/orders/order_1/history", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SENT", env.Result["state"])
	assert.Len(t, env.Result["history"], 2)

	code, env = do(t, h, http.MethodGet, "/v1/orders/order_2/history", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, env.Error, exception.ErrOrderUnknown.Error())
}

func TestRiskEndpoints(t *testing.T) {
	h, gate := newTestServer(t, &fakeOrders{})
	gate.RecordPositionOpen(schema.Position{Symbol: "BTC", Quantity: decimal.NewFromInt(1), Notional: decimal.NewFromInt(100)})

	code, env := do(t, h, http.MethodGet, "/v1/risk", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Result["openPositions"])

	code, _ = do(t, h, http.MethodPut, "/v1/risk/config",
		`{"maxPositionSizePct":0.2,"maxDailyLossPct":0.05,"maxOpenPositions":4,"maxExposurePerAssetPct":0.1}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4, gate.Config().MaxOpenPositions)

	code, env = do(t, h, http.MethodPut, "/v1/risk/config", `{"maxPositionSizePct":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, exception.ErrRiskInvalidConfig.Error())
	assert.Equal(t, 4, gate.Config().MaxOpenPositions)

	gate.RecordPositionClose("BTC", decimal.NewFromInt(-10))
	code, _ = do(t, h, http.MethodPost, "/v1/risk/reset", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, gate.Snapshot().DailyPnL.IsZero())

	code, env = do(t, h, http.MethodGet, "/v1/risk/size?balance=10000&entryPrice=100&stopLossPct=0.5", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", env.Result["quantity"])

	code, _ = do(t, h, http.MethodGet, "/v1/risk/size?balance=10000&entryPrice=abc&stopLossPct=0.5", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t, &fakeOrders{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "outcomeCounts")
}
