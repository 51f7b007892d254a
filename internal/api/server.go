// Package api exposes the order pipeline and the risk gate over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/bus"
	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/order"
	"oms/internal/risk"
	"oms/internal/schema"
	"oms/pkg/exception"
)

// OrderService is the pipeline surface the handlers need.
type OrderService interface {
	ProcessOrder(ctx context.Context, intent schema.OrderIntent) (order.Result, error)
	CancelOrder(ctx context.Context, key string) (order.Result, error)
	GetOrderStatus(ctx context.Context, key string) (order.Status, error)
	Record(key string) (og.Record, bool)
}

// RiskService is the risk gate surface the handlers need.
type RiskService interface {
	Snapshot() risk.Snapshot
	UpdateConfig(cfg risk.Config) error
	ResetDailyMetrics()
	PositionSize(balance, entryPrice decimal.Decimal, stopLossPct float64) decimal.Decimal
}

// Server is a thin JSON front for OrderService and RiskService.
type Server struct {
	orders  OrderService
	risk    RiskService
	metrics *obs.Metrics
	srv     *http.Server
}

// NewServer builds the router and the http.Server listening on addr.
func NewServer(addr string, orders OrderService, gate RiskService, metrics *obs.Metrics) *Server {
	s := &Server{orders: orders, risk: gate, metrics: metrics}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	v1 := r.Group("/v1")

	orders := v1.Group("/orders")
	orders.POST("", s.handleOrderCreate)
	orders.GET("/:key", s.handleOrderStatus)
	orders.DELETE("/:key", s.handleOrderCancel)
	orders.GET("/:key/history", s.handleOrderHistory)

	riskGroup := v1.Group("/risk")
	riskGroup.GET("", s.handleRiskSnapshot)
	riskGroup.PUT("/config", s.handleRiskConfig)
	riskGroup.POST("/reset", s.handleRiskReset)
	riskGroup.GET("/size", s.handleRiskSize)

	v1.GET("/metrics", func(c *gin.Context) { c.JSON(http.StatusOK, s.metrics.Snapshot()) })

	return r
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logs.Infof("api: listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("api: serve, err: %+v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type orderRequest struct {
	Key        string          `json:"order_id"`
	StrategyID string          `json:"strategy_id"`
	Account    string          `json:"account"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Type       string          `json:"order_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

func (r orderRequest) intent() schema.OrderIntent {
	return schema.OrderIntent{
		Key:        r.Key,
		StrategyID: r.StrategyID,
		Account:    r.Account,
		Symbol:     r.Symbol,
		Side:       schema.ParseOrderSide(r.Side),
		Type:       schema.ParseOrderType(r.Type),
		Quantity:   r.Quantity,
		Price:      r.Price,
		StopPrice:  r.StopPrice,
	}
}

type response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func reply(c *gin.Context, code int, result any, err error) {
	resp := response{Result: result}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(code, resp)
}

func (s *Server) handleOrderCreate(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, http.StatusBadRequest, nil, errors.Wrap(exception.ErrOrderInvalidIntent, err.Error()))
		return
	}

	res, err := s.orders.ProcessOrder(c.Request.Context(), req.intent())
	reply(c, outcomeCode(res.Outcome), res, err)
}

func (s *Server) handleOrderStatus(c *gin.Context) {
	status, err := s.orders.GetOrderStatus(c.Request.Context(), c.Param("key"))
	reply(c, errorCode(err, http.StatusOK), status, err)
}

func (s *Server) handleOrderCancel(c *gin.Context) {
	res, err := s.orders.CancelOrder(c.Request.Context(), c.Param("key"))
	code := outcomeCode(res.Outcome)
	if errors.Is(err, exception.ErrOrderNotCancelable) {
		code = http.StatusConflict
	}
	reply(c, code, res, err)
}

func (s *Server) handleOrderHistory(c *gin.Context) {
	record, ok := s.orders.Record(c.Param("key"))
	if !ok {
		reply(c, http.StatusNotFound, nil, errors.Wrapf(exception.ErrOrderUnknown, "order %s", c.Param("key")))
		return
	}
	reply(c, http.StatusOK, record, nil)
}

func (s *Server) handleRiskSnapshot(c *gin.Context) {
	reply(c, http.StatusOK, s.risk.Snapshot(), nil)
}

func (s *Server) handleRiskConfig(c *gin.Context) {
	var cfg risk.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		reply(c, http.StatusBadRequest, nil, errors.Wrap(exception.ErrRiskInvalidConfig, err.Error()))
		return
	}
	if err := s.risk.UpdateConfig(cfg); err != nil {
		reply(c, http.StatusBadRequest, nil, err)
		return
	}
	reply(c, http.StatusOK, s.risk.Snapshot().Config, nil)
}

func (s *Server) handleRiskReset(c *gin.Context) {
	s.risk.ResetDailyMetrics()
	reply(c, http.StatusOK, s.risk.Snapshot(), nil)
}

func outcomeCode(outcome order.Outcome) int {
	switch outcome {
	case order.OutcomeSubmitted:
		return http.StatusCreated
	case order.OutcomeRejected, order.OutcomeCanceled:
		return http.StatusOK
	case order.OutcomeInvalid:
		return http.StatusBadRequest
	case order.OutcomeNotRunning:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func errorCode(err error, ok int) int {
	switch {
	case err == nil, bus.IsTransportError(err):
		return ok
	case errors.Is(err, exception.ErrOrderNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, exception.ErrOrderEmptyKey):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrVenueUnknownOrder):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// handleRiskSize answers GET /v1/risk/size?balance=&entryPrice=&stopLossPct=.
func (s *Server) handleRiskSize(c *gin.Context) {
	var args [3]decimal.Decimal
	for i, name := range []string{"balance", "entryPrice", "stopLossPct"} {
		v, err := decimal.NewFromString(c.Query(name))
		if err != nil {
			reply(c, http.StatusBadRequest, nil, errors.Wrapf(exception.ErrRiskInvalidConfig, "query %s: %v", name, err))
			return
		}
		args[i] = v
	}
	qty := s.risk.PositionSize(args[0], args[1], args[2].InexactFloat64())
	reply(c, http.StatusOK, gin.H{"quantity": qty}, nil)
}
