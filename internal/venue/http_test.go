package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
	"oms/pkg/exception"
)

func newGateway(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var reads atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(apiKeyHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":"10000.5","currency":"USD"}`))
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req schema.CreateOrderRequest
		if !assert.Equal(t, http.MethodPost, r.Method) || !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if req.Symbol == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"error","message":"unknown symbol"}`))
			return
		}
		if req.Symbol == "SOFT" {
			_, _ = w.Write([]byte(`{"status":"error","message":"venue busy"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(schema.VenueOrder{
			ID: "v-1", Key: req.Key, Symbol: req.Symbol, Side: req.Side,
			Status: "filled", Filled: req.Quantity, Amount: req.Quantity, AvgPrice: req.Price,
		})
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/orders/"):]
		w.Header().Set("Content-Type", "application/json")
		switch {
		case key == "missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","message":"not found"}`))
		case r.Method == http.MethodDelete:
			assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
			_, _ = w.Write([]byte(`{"id":"v-1","client_order_id":"` + key + `","status":"canceled"}`))
		case key == "flaky" && reads.Add(1) < 2:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"status":"error","message":"bad gateway"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"v-1","status":"closed","filled":"0.4","amount":"1"}`))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &reads
}

func TestNewHTTPRequiresBaseURL(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{BaseURL: "  "})
	assert.ErrorIs(t, err, exception.ErrVenueEmptyBaseURL)
}

func TestHTTPVenue(t *testing.T) {
	srv, reads := newGateway(t)
	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: time.Second, RetryCount: 2})
	require.NoError(t, err)
	ctx := context.Background()

	info, err := h.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.Balance.Equal(d("10000.5")))

	order, err := h.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTC", Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, Quantity: d("1"), Price: d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.Key)
	assert.True(t, order.IsImmediateFill())
	assert.True(t, order.AvgPrice.Equal(d("100")))

	status, err := h.GetOrderStatus(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", status.Key)
	assert.True(t, status.Filled.Equal(d("0.4")))

	canceled, err := h.CancelOrder(ctx, "order_1", "BTC")
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusCanceled, canceled.Status)

	_, err = h.GetOrderStatus(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}

func TestHTTPVenueFailures(t *testing.T) {
	srv, _ := newGateway(t)
	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	order, err := h.CreateOrder(ctx, schema.CreateOrderRequest{Key: "order_1", Symbol: "BAD", Quantity: d("1")})
	assert.ErrorIs(t, err, exception.ErrVenueStatusError)
	assert.True(t, order.IsError())
	assert.Equal(t, "unknown symbol", order.Message)
	assert.Equal(t, "order_1", order.Key)

	order, err = h.CreateOrder(ctx, schema.CreateOrderRequest{Key: "order_2", Symbol: "SOFT", Quantity: d("1")})
	assert.ErrorIs(t, err, exception.ErrVenueStatusError)
	assert.True(t, order.IsError())
	assert.Equal(t, "venue busy", order.Message)

	order, err = h.GetOrderStatus(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrVenueUnknownOrder)
	assert.True(t, order.IsError())

	down, err := NewHTTP(HTTPConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	order, err = down.CreateOrder(ctx, schema.CreateOrderRequest{Key: "order_3", Symbol: "BTC", Quantity: d("1")})
	assert.ErrorIs(t, err, exception.ErrVenue)
	assert.True(t, order.IsError())
}
