package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Категории запросов для rate limiting
const (
	categoryOrders  = "orders"
	categoryData    = "data"
	categoryAccount = "account"
)

// GatewayConfig - настройки REST шлюза брокера
type GatewayConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimit      float64 // запросов в секунду
	RateBurst      float64
}

// Gateway - клиент REST шлюза брокера, реализует интерфейс Broker.
//
// Шлюз мультиплексирует несколько брокерских счетов: каждый запрос,
// затрагивающий счёт, несёт account_id. Котировки общие для всех счетов.
type Gateway struct {
	baseURL string
	http    *HTTPClient
	limits  *ratelimit.MultiLimiter
	timeout time.Duration
}

// NewGateway создаёт клиент шлюза брокера.
// Ордера лимитируются вдвое жёстче котировок: превышение pacing-лимита
// на ордерных эндпоинтах приводит к отклонению ордера шлюзом.
func NewGateway(cfg GatewayConfig) *Gateway {
	httpCfg := DefaultHTTPClientConfig()
	if cfg.RequestTimeout > 0 {
		httpCfg.TotalTimeout = cfg.RequestTimeout
	}

	rate := cfg.RateLimit
	if rate <= 0 {
		rate = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = rate * 2
	}

	limits := ratelimit.NewMultiLimiter()
	limits.Add(categoryData, rate, burst)
	limits.Add(categoryOrders, rate/2, burst/2)
	limits.Add(categoryAccount, rate/2, burst/2)

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    NewHTTPClient(httpCfg),
		limits:  limits,
		timeout: httpCfg.TotalTimeout,
	}
}

// Name возвращает имя шлюза
func (g *Gateway) Name() string {
	return "gateway"
}

// GetQuote получает котировку опционного контракта
func (g *Gateway) GetQuote(ctx context.Context, c Contract) (*Quote, error) {
	params := url.Values{}
	params.Set("underlying", c.Underlying)
	params.Set("right", c.Right)
	params.Set("strike", fmt.Sprintf("%.2f", c.Strike))
	params.Set("expiry", c.Expiry.Format("20060102"))

	var quote Quote
	if err := g.doJSON(ctx, categoryData, http.MethodGet,
		"/v1/quotes/option?"+params.Encode(), nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetUnderlyingQuote получает котировку базового актива
func (g *Gateway) GetUnderlyingQuote(ctx context.Context, underlying string) (*Quote, error) {
	var quote Quote
	if err := g.doJSON(ctx, categoryData, http.MethodGet,
		"/v1/quotes/underlying/"+url.PathEscape(underlying), nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// WhatIfMargin выполняет предварительный расчёт маржи без размещения ордера
func (g *Gateway) WhatIfMargin(ctx context.Context, order ComboOrder) (*MarginResult, error) {
	var result MarginResult
	if err := g.doJSON(ctx, categoryAccount, http.MethodPost,
		"/v1/orders/whatif", order, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// placeOrderResponse - ответ шлюза на размещение ордера
type placeOrderResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceComboOrder размещает лимитный комбо-ордер
func (g *Gateway) PlaceComboOrder(ctx context.Context, order ComboOrder) (string, error) {
	var resp placeOrderResponse
	if err := g.doJSON(ctx, categoryOrders, http.MethodPost,
		"/v1/orders", order, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", &GatewayError{Op: "place_order", Message: "gateway returned empty order id"}
	}
	return resp.OrderID, nil
}

// CancelOrder отменяет ордер. Ответ 404 или 409 (ордер уже в терминальном
// статусе) не считается ошибкой: вызывающий перепроверяет статус.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	err := g.doJSON(ctx, categoryOrders, http.MethodDelete,
		"/v1/orders/"+url.PathEscape(orderID), nil, nil)
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && (gwErr.Code == http.StatusNotFound || gwErr.Code == http.StatusConflict) {
		return nil
	}
	return err
}

// OrderStatus возвращает текущее состояние ордера
func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (*OrderState, error) {
	var state OrderState
	if err := g.doJSON(ctx, categoryOrders, http.MethodGet,
		"/v1/orders/"+url.PathEscape(orderID), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// marketCloseRequest - запрос на рыночное закрытие позиции по контракту
type marketCloseRequest struct {
	AccountID string   `json:"account_id"`
	Contract  Contract `json:"contract"`
	Quantity  int      `json:"quantity"`
}

// PlaceMarketClose закрывает позицию по контракту рыночным ордером
func (g *Gateway) PlaceMarketClose(ctx context.Context, accountID string, c Contract, quantity int) (string, error) {
	req := marketCloseRequest{AccountID: accountID, Contract: c, Quantity: quantity}

	var resp placeOrderResponse
	if err := g.doJSON(ctx, categoryOrders, http.MethodPost,
		"/v1/orders/market-close", req, &resp); err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

// ExerciseOption подаёт инструкцию на исполнение длинного опциона
func (g *Gateway) ExerciseOption(ctx context.Context, accountID string, c Contract, quantity int) error {
	req := marketCloseRequest{AccountID: accountID, Contract: c, Quantity: quantity}
	return g.doJSON(ctx, categoryOrders, http.MethodPost, "/v1/exercise", req, nil)
}

// Positions возвращает позиции счёта, как их видит брокер
func (g *Gateway) Positions(ctx context.Context, accountID string) ([]BrokerPosition, error) {
	var positions []BrokerPosition
	if err := g.doJSON(ctx, categoryAccount, http.MethodGet,
		"/v1/accounts/"+url.PathEscape(accountID)+"/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Close закрывает соединения со шлюзом
func (g *Gateway) Close() error {
	g.http.Close()
	return nil
}

// errorResponse - тело ошибки шлюза
type errorResponse struct {
	Error string `json:"error"`
}

// doJSON выполняет запрос к шлюзу: rate limit, сериализация, разбор ошибок.
// out может быть nil, если тело ответа не нужно.
func (g *Gateway) doJSON(ctx context.Context, category, method, path string, in, out interface{}) error {
	op := opFromPath(method, path)

	if err := g.limits.Wait(ctx, category); err != nil {
		return &GatewayError{Op: op, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &GatewayError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Op: op, Code: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.Unmarshal(data, &errResp)
		return &GatewayError{Op: op, Code: resp.StatusCode, Message: errResp.Error}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &GatewayError{Op: op, Code: resp.StatusCode, Err: err}
		}
	}
	return nil
}

// opFromPath строит имя операции для GatewayError
func opFromPath(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.ToLower(method) + " " + path
}
