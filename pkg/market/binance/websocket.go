package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient subscribes to Binance futures public streams. Each
// subscription owns one connection and returns a channel plus a stop
// function; closing the context or calling stop ends the read loop.
type StreamClient struct {
	URL    string // e.g. wss://fstream.binance.com/ws
	dialer *websocket.Dialer
}

// NewStreamClient builds a stream client for the given websocket base URL.
func NewStreamClient(wsURL string) *StreamClient {
	return &StreamClient{URL: wsURL, dialer: websocket.DefaultDialer}
}

// SubscribeAggTrades streams aggregated trades, the last-price source.
func (c *StreamClient) SubscribeAggTrades(ctx context.Context, symbol string) (<-chan AggTrade, func(), error) {
	stream := strings.ToLower(symbol) + "@aggTrade"
	return subscribe(ctx, c, stream, func(msg []byte) (AggTrade, error) {
		var raw struct {
			Symbol string `json:"s"`
			Price  string `json:"p"`
			Qty    string `json:"q"`
			Time   int64  `json:"T"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return AggTrade{}, err
		}
		return AggTrade{Symbol: raw.Symbol, Price: f64(raw.Price), Qty: f64(raw.Qty), Time: raw.Time}, nil
	})
}

// SubscribeMarkPrice streams the 1s mark-price feed, the risk reference.
func (c *StreamClient) SubscribeMarkPrice(ctx context.Context, symbol string) (<-chan MarkPrice, func(), error) {
	stream := strings.ToLower(symbol) + "@markPrice@1s"
	return subscribe(ctx, c, stream, func(msg []byte) (MarkPrice, error) {
		var raw struct {
			Symbol  string `json:"s"`
			Price   string `json:"p"`
			Funding string `json:"r"`
			Time    int64  `json:"E"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return MarkPrice{}, err
		}
		return MarkPrice{Symbol: raw.Symbol, Price: f64(raw.Price), FundingRate: f64(raw.Funding), Time: raw.Time}, nil
	})
}

// SubscribeKlines streams live candles for symbol at interval.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	return subscribe(ctx, c, stream, func(msg []byte) (Kline, error) {
		var raw struct {
			Data struct {
				OpenTime  int64  `json:"t"`
				CloseTime int64  `json:"T"`
				Symbol    string `json:"s"`
				Open      string `json:"o"`
				Close     string `json:"c"`
				High      string `json:"h"`
				Low       string `json:"l"`
				Volume    string `json:"v"`
				Closed    bool   `json:"x"`
			} `json:"k"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return Kline{}, err
		}
		return Kline{
			Symbol:    raw.Data.Symbol,
			OpenTime:  raw.Data.OpenTime,
			CloseTime: raw.Data.CloseTime,
			Open:      f64(raw.Data.Open),
			High:      f64(raw.Data.High),
			Low:       f64(raw.Data.Low),
			Close:     f64(raw.Data.Close),
			Volume:    f64(raw.Data.Volume),
			Closed:    raw.Data.Closed,
		}, nil
	})
}

// subscribe dials one stream and pumps parsed events into a buffered channel.
// The read loop exits on context cancellation, stop, or any read error.
func subscribe[T any](ctx context.Context, c *StreamClient, stream string, parse func([]byte) (T, error)) (<-chan T, func(), error) {
	u := fmt.Sprintf("%s/%s", c.URL, stream)
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", stream, err)
	}

	out := make(chan T, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("[BINANCE] %s read error: %v", stream, err)
				return
			}

			parsed, err := parse(msg)
			if err != nil {
				log.Printf("[BINANCE] %s parse error: %v", stream, err)
				continue
			}
			select {
			case out <- parsed:
			default:
				// Consumer stalled; drop rather than block the read loop.
			}
		}
	}()

	return out, stop, nil
}
