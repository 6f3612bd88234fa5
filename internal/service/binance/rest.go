package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"TrendEngine/internal/domain/models"
	icache "TrendEngine/internal/service/cache"
	"TrendEngine/internal/service/ratelimit"
	xhttp "TrendEngine/pkg/http"
	"TrendEngine/pkg/logger"
)

const (
	klineCacheTTL = time.Minute

	// Public kline fetches are throttled well under the exchange request
	// weight so signed trading calls never compete for budget.
	klineBurst     = 10
	klinePerSecond = 2
)

// Gateway is the live execution gateway over the futures REST API. It also
// serves kline history for the higher-timeframe and correlation gates,
// caching fetched series so gate checks never hammer the exchange.
type Gateway struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *xhttp.Client
	cache     *icache.TTLCache
	limiter   *ratelimit.Limiter
	log       *logger.Logger
}

// NewGateway creates a live REST gateway.
func NewGateway(baseURL, apiKey, apiSecret string, client *xhttp.Client, log *logger.Logger) *Gateway {
	return &Gateway{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    client,
		cache:     icache.NewTTLCache(),
		limiter:   ratelimit.New(),
		log:       log,
	}
}

func (g *Gateway) sign(values url.Values) string {
	values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	qs := values.Encode()
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(qs))
	return qs + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (g *Gateway) signedCall(ctx context.Context, method, path string, values url.Values, dest any) error {
	err := g.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: method,
		URL:    g.baseURL + path + "?" + g.sign(values),
		Headers: map[string]string{
			"X-MBX-APIKEY": g.apiKey,
		},
	}, dest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	AvgPrice    string `json:"avgPrice"`
	ExecutedQty string `json:"executedQty"`
	UpdateTime  int64  `json:"updateTime"`
}

// PlaceOrder submits a market order and returns the fill.
func (g *Gateway) PlaceOrder(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error) {
	return g.marketOrder(ctx, symbol, side, quantity, false)
}

// ClosePosition submits a reduce-only market order on the opposite side of
// the position. side is the side of the position being closed.
func (g *Gateway) ClosePosition(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error) {
	return g.marketOrder(ctx, symbol, side.Opposite(), quantity, true)
}

func (g *Gateway) marketOrder(ctx context.Context, symbol string, side models.Side, quantity float64, reduceOnly bool) (*models.Fill, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("side", string(side))
	v.Set("type", "MARKET")
	v.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	v.Set("newOrderRespType", "RESULT")
	if reduceOnly {
		v.Set("reduceOnly", "true")
	}

	var resp orderResponse
	if err := g.signedCall(ctx, xhttp.MethodPost, "/fapi/v1/order", v, &resp); err != nil {
		return nil, err
	}

	price := parseF(resp.AvgPrice)
	qty := parseF(resp.ExecutedQty)
	if qty == 0 {
		qty = quantity
	}
	return &models.Fill{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Time:     time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

// AccountBalance returns the available USDT balance.
func (g *Gateway) AccountBalance(ctx context.Context) (float64, error) {
	var resp []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := g.signedCall(ctx, xhttp.MethodGet, "/fapi/v2/balance", url.Values{}, &resp); err != nil {
		return 0, err
	}
	for _, b := range resp {
		if b.Asset == "USDT" {
			return parseF(b.AvailableBalance), nil
		}
	}
	return 0, fmt.Errorf("no USDT balance entry")
}

// OpenPositions returns the exchange's open position report.
func (g *Gateway) OpenPositions(ctx context.Context) ([]models.ExternalPosition, error) {
	var resp []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := g.signedCall(ctx, xhttp.MethodGet, "/fapi/v2/positionRisk", url.Values{}, &resp); err != nil {
		return nil, err
	}
	out := make([]models.ExternalPosition, 0, len(resp))
	for _, p := range resp {
		out = append(out, models.ExternalPosition{
			Symbol:     p.Symbol,
			Amount:     parseF(p.PositionAmt),
			EntryPrice: parseF(p.EntryPrice),
		})
	}
	return out, nil
}

// Bars returns recent klines for the symbol at the given interval, from
// cache when a fresh fetch happened within the last minute.
func (g *Gateway) Bars(symbol, timeframe string, limit int) (*models.Series, bool) {
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, timeframe, limit)
	if v, ok := g.cache.Get(key); ok {
		return v.(*models.Series), true
	}
	if !g.limiter.Allow("klines", klineBurst, klinePerSecond) {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bars, err := g.fetchKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		g.log.Warn("kline fetch failed",
			logger.String("symbol", symbol),
			logger.String("timeframe", timeframe),
			logger.Error(err))
		return nil, false
	}

	s := models.NewSeries(symbol)
	for _, b := range bars {
		s.Append(b)
	}
	g.cache.Set(key, s, klineCacheTTL)
	return s, true
}

// HourlyReturns returns the last `periods` close-to-close hourly returns.
func (g *Gateway) HourlyReturns(ctx context.Context, symbol string, periods int) ([]float64, error) {
	if !g.limiter.Allow("klines", klineBurst, klinePerSecond) {
		return nil, fmt.Errorf("kline request budget exhausted")
	}
	bars, err := g.fetchKlines(ctx, symbol, "1h", periods+1)
	if err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("not enough hourly bars for %s", symbol)
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	return returns, nil
}

func (g *Gateway) fetchKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	var raw [][]json.RawMessage
	err := g.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    g.baseURL + "/fapi/v1/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {interval},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			OpenTime:  time.UnixMilli(rawInt(k[0])).UTC(),
			CloseTime: time.UnixMilli(rawInt(k[6])).UTC(),
			Open:      rawFloat(k[1]),
			High:      rawFloat(k[2]),
			Low:       rawFloat(k[3]),
			Close:     rawFloat(k[4]),
			Volume:    rawFloat(k[5]),
		})
	}
	return bars, nil
}

func rawInt(m json.RawMessage) int64 {
	var n int64
	if json.Unmarshal(m, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	}
	return 0
}

func rawFloat(m json.RawMessage) float64 {
	var f float64
	if json.Unmarshal(m, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	return 0
}
