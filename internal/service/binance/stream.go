package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/engine/orderbook"
	"TrendEngine/pkg/logger"
)

// DepthSink receives partial depth snapshots from the stream.
type DepthSink interface {
	ApplySnapshot(symbol string, bids, asks []orderbook.Level, updateID int64)
}

// Stream implements the market feed over the futures websocket combined
// stream. Closed klines become bars; partial depth frames are forwarded to
// the depth sink. Unclosed klines are dropped at the socket so the decision
// path only ever sees finished bars.
type Stream struct {
	url            string
	timeframe      string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	depthStream    bool
	depth          DepthSink
	log            *logger.Logger

	conn      *websocket.Conn
	symbols   []string
	connected atomic.Bool
	nextID    atomic.Int64
}

// NewStream creates a websocket market feed.
func NewStream(url, timeframe string, reconnectDelay, pingInterval time.Duration,
	depthStream bool, depth DepthSink, log *logger.Logger) *Stream {
	return &Stream{
		url:            url,
		timeframe:      timeframe,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		depthStream:    depthStream,
		depth:          depth,
		log:            log,
	}
}

// Connect establishes the websocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.conn = conn
	s.connected.Store(true)
	s.log.Info("binance stream connected", logger.String("url", s.url))
	return nil
}

// Subscribe subscribes to kline and depth streams for the symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	if s.conn == nil || !s.connected.Load() {
		return fmt.Errorf("binance stream not connected")
	}
	s.symbols = symbols

	params := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		params = append(params, fmt.Sprintf("%s@kline_%s", lower, s.timeframe))
		if s.depthStream {
			params = append(params, fmt.Sprintf("%s@depth20@100ms", lower))
		}
	}

	msg := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     s.nextID.Add(1),
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("binance streams subscribed",
		logger.Int("symbols", len(symbols)),
		logger.String("timeframe", s.timeframe))
	return nil
}

type wsFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsKline struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type wsDepth struct {
	EventType string      `json:"e"`
	Symbol    string      `json:"s"`
	UpdateID  int64       `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

// Read streams closed bars and errors. Depth frames are dispatched to the
// sink inline; the bar channel drops on backpressure rather than stalling
// the socket.
func (s *Stream) Read(ctx context.Context) (<-chan models.Bar, <-chan error) {
	bars := make(chan models.Bar, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(bars)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if s.conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := s.conn.ReadMessage()
				if err != nil {
					s.connected.Store(false)
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}

				var frame wsFrame
				if err := json.Unmarshal(b, &frame); err != nil || frame.Data == nil {
					// subscribe acks and control frames
					continue
				}

				switch {
				case strings.Contains(frame.Stream, "@kline_"):
					s.handleKline(frame.Data, bars)
				case strings.Contains(frame.Stream, "@depth"):
					s.handleDepth(frame.Stream, frame.Data)
				}
			}
		}
	}()

	return bars, errs
}

func (s *Stream) handleKline(data json.RawMessage, bars chan<- models.Bar) {
	var k wsKline
	if err := json.Unmarshal(data, &k); err != nil || !k.Kline.Closed {
		return
	}
	bar := models.Bar{
		Symbol:    k.Symbol,
		OpenTime:  time.UnixMilli(k.Kline.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.Kline.CloseTime).UTC(),
		Open:      parseF(k.Kline.Open),
		High:      parseF(k.Kline.High),
		Low:       parseF(k.Kline.Low),
		Close:     parseF(k.Kline.Close),
		Volume:    parseF(k.Kline.Volume),
	}
	select {
	case bars <- bar:
	default:
		s.log.Warn("bar channel full, dropping", logger.String("symbol", bar.Symbol))
	}
}

func (s *Stream) handleDepth(stream string, data json.RawMessage) {
	if s.depth == nil {
		return
	}
	var d wsDepth
	if err := json.Unmarshal(data, &d); err != nil {
		return
	}
	symbol := d.Symbol
	if symbol == "" {
		// partial depth frames omit the symbol; recover it from the stream name
		if i := strings.Index(stream, "@"); i > 0 {
			symbol = strings.ToUpper(stream[:i])
		}
	}
	s.depth.ApplySnapshot(symbol, parseLevels(d.Bids), parseLevels(d.Asks), d.UpdateID)
}

func parseLevels(raw [][2]string) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(raw))
	for _, l := range raw {
		out = append(out, orderbook.Level{Price: parseF(l[0]), Quantity: parseF(l[1])})
	}
	return out
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Reconnect closes and re-establishes the connection and subscriptions.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx, s.symbols)
}

// Close closes the websocket connection.
func (s *Stream) Close() error {
	s.connected.Store(false)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected reports connection status.
func (s *Stream) IsConnected() bool { return s.connected.Load() }
