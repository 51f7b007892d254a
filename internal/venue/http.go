package venue

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Venue = (*HTTP)(nil)

const apiKeyHeader = "X-API-KEY"

// HTTPConfig configures the REST venue gateway client.
type HTTPConfig struct {
	BaseURL    string        `json:"baseUrl" yaml:"baseUrl"`
	APIKey     string        `json:"apiKey" yaml:"apiKey"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount int           `json:"retryCount" yaml:"retryCount"`
}

// HTTP talks JSON to a venue gateway:
// GET /account, POST /orders, DELETE /orders/{key}, GET /orders/{key}.
type HTTP struct {
	client *resty.Client
}

// NewHTTP creates the REST adapter.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	host := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if host == "" {
		return nil, exception.ErrVenueEmptyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// only idempotent reads are retried; order placement is not
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	client.JSONMarshal = sonic.ConfigStd.Marshal
	client.JSONUnmarshal = sonic.ConfigStd.Unmarshal
	if cfg.APIKey != "" {
		client.SetHeader(apiKeyHeader, cfg.APIKey)
	}
	return &HTTP{client: client}, nil
}

func (h *HTTP) GetAccountInfo(ctx context.Context) (schema.AccountInfo, error) {
	var info schema.AccountInfo
	resp, err := h.client.R().SetContext(ctx).SetResult(&info).Get("/account")
	if err != nil {
		return schema.AccountInfo{}, errors.Wrapf(exception.ErrVenue, "get account: %v", err)
	}
	if !resp.IsSuccess() {
		return schema.AccountInfo{}, errors.Wrapf(exception.ErrVenueStatusError, "get account: http %d: %s", resp.StatusCode(), bodyMessage(resp))
	}
	return info, nil
}

func (h *HTTP) CreateOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	r := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	return h.do(r, http.MethodPost, "/orders", req.Key)
}

func (h *HTTP) CancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error) {
	r := h.client.R().SetContext(ctx)
	if symbol != "" {
		r.SetQueryParam("symbol", symbol)
	}
	return h.do(r, http.MethodDelete, "/orders/"+url.PathEscape(key), key)
}

func (h *HTTP) GetOrderStatus(ctx context.Context, key string) (schema.VenueOrder, error) {
	return h.do(h.client.R().SetContext(ctx), http.MethodGet, "/orders/"+url.PathEscape(key), key)
}

func (h *HTTP) do(r *resty.Request, method, endpoint, key string) (schema.VenueOrder, error) {
	var order, failure schema.VenueOrder
	r.SetResult(&order).SetError(&failure)

	resp, err := r.Execute(method, endpoint)
	if err != nil {
		return schema.StatusError(key, err.Error()), errors.Wrapf(exception.ErrVenue, "%s %s: %v", method, endpoint, err)
	}

	if !resp.IsSuccess() {
		msg := failure.Message
		if msg == "" {
			msg = bodyMessage(resp)
		}
		failed := schema.StatusError(key, msg)
		if resp.StatusCode() == http.StatusNotFound {
			return failed, errors.Wrapf(exception.ErrVenueUnknownOrder, "order %s", key)
		}
		return failed, errors.Wrapf(exception.ErrVenueStatusError, "%s %s: http %d: %s", method, endpoint, resp.StatusCode(), msg)
	}

	if order.Key == "" {
		order.Key = key
	}
	if order.IsError() {
		return order, errors.Wrapf(exception.ErrVenueStatusError, "%s %s: %s", method, endpoint, order.Message)
	}
	return order, nil
}

func bodyMessage(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if body == "" {
		return resp.Status()
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return body
}
