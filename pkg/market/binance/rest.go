package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFapiURL = "https://fapi.binance.com/fapi/v1"
	defaultSpotURL = "https://api.binance.com/api/v3"
)

// RestClient reads public market data. Futures endpoints are primary; klines
// fall back to the spot API when the futures host rejects the symbol.
type RestClient struct {
	FapiURL string
	SpotURL string
	http    *http.Client
}

// NewRestClient builds a client with sane timeouts.
func NewRestClient() *RestClient {
	return &RestClient{
		FapiURL: defaultFapiURL,
		SpotURL: defaultSpotURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Klines fetches up to limit recent candles for symbol at interval.
func (c *RestClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	symbol = strings.ToUpper(symbol)
	klines, err := c.klinesFrom(ctx, c.FapiURL, symbol, interval, limit)
	if err == nil {
		return klines, nil
	}
	klines, spotErr := c.klinesFrom(ctx, c.SpotURL, symbol, interval, limit)
	if spotErr != nil {
		return nil, fmt.Errorf("klines %s: futures: %v, spot: %w", symbol, err, spotErr)
	}
	return klines, nil
}

func (c *RestClient) klinesFrom(ctx context.Context, base, symbol, interval string, limit int) ([]Kline, error) {
	u := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&limit=%d", base, symbol, interval, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines status %d", resp.StatusCode)
	}

	// Rows are [openTime, open, high, low, close, volume, closeTime, ...].
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	out := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		var openTime, closeTime int64
		var o, h, l, cl, v string
		if json.Unmarshal(row[0], &openTime) != nil ||
			json.Unmarshal(row[1], &o) != nil ||
			json.Unmarshal(row[2], &h) != nil ||
			json.Unmarshal(row[3], &l) != nil ||
			json.Unmarshal(row[4], &cl) != nil ||
			json.Unmarshal(row[5], &v) != nil ||
			json.Unmarshal(row[6], &closeTime) != nil {
			continue
		}
		out = append(out, Kline{
			Symbol:    symbol,
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      f64(o),
			High:      f64(h),
			Low:       f64(l),
			Close:     f64(cl),
			Volume:    f64(v),
			Closed:    true,
		})
	}
	return out, nil
}

// Depth fetches a truncated order-book snapshot from the futures API.
func (c *RestClient) Depth(ctx context.Context, symbol string, limit int) (DepthSnapshot, error) {
	symbol = strings.ToUpper(symbol)
	u := fmt.Sprintf("%s/depth?symbol=%s&limit=%d", c.FapiURL, symbol, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return DepthSnapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DepthSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DepthSnapshot{}, fmt.Errorf("depth status %d", resp.StatusCode)
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return DepthSnapshot{}, fmt.Errorf("decode depth: %w", err)
	}

	snap := DepthSnapshot{Symbol: symbol}
	for _, b := range raw.Bids {
		snap.Bids = append(snap.Bids, [2]float64{f64(b[0]), f64(b[1])})
	}
	for _, a := range raw.Asks {
		snap.Asks = append(snap.Asks, [2]float64{f64(a[0]), f64(a[1])})
	}
	return snap, nil
}
