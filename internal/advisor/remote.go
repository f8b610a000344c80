package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RemoteAnalyzer calls an external JSON analysis service. Calls are rate
// limited client-side; the service composing it handles every failure by
// falling back to the heuristic.
type RemoteAnalyzer struct {
	Endpoint string
	APIKey   string
	Model    string

	http    *http.Client
	limiter *rate.Limiter
}

// NewRemoteAnalyzer builds a client capped at rpm requests per minute.
func NewRemoteAnalyzer(endpoint, apiKey, model string, rpm float64) *RemoteAnalyzer {
	if rpm <= 0 {
		rpm = 10
	}
	return &RemoteAnalyzer{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(rpm/60), 1),
	}
}

type remoteRequest struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Closes    []float64 `json:"closes"`
	Sentiment float64   `json:"sentiment"`
}

type remoteResponse struct {
	Side            string  `json:"side"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	SuggestedStop   float64 `json:"suggestedStop"`
	SuggestedTarget float64 `json:"suggestedTarget"`
}

func (r *RemoteAnalyzer) Analyze(ctx context.Context, req Request) (Signal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Signal{}, fmt.Errorf("advisor rate limit: %w", err)
	}

	closes := make([]float64, 0, 5)
	if n := len(req.Candles); n > 0 {
		for _, c := range req.Candles[max(0, n-5):] {
			closes = append(closes, c.Close)
		}
	}
	body, err := json.Marshal(remoteRequest{
		Symbol:    req.Symbol,
		Price:     req.Price,
		Closes:    closes,
		Sentiment: req.Sentiment,
	})
	if err != nil {
		return Signal{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Signal{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return Signal{}, fmt.Errorf("advisor request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Signal{}, fmt.Errorf("advisor status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Signal{}, fmt.Errorf("advisor decode: %w", err)
	}

	var action Action
	switch out.Side {
	case "LONG":
		action = ActionLong
	case "SHORT":
		action = ActionShort
	default:
		return Signal{}, fmt.Errorf("advisor returned unknown side %q", out.Side)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Signal{}, fmt.Errorf("advisor confidence %v out of range", out.Confidence)
	}

	return Signal{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Action:     action,
		Confidence: out.Confidence,
		StopLoss:   out.SuggestedStop,
		TakeProfit: out.SuggestedTarget,
		Reasoning:  out.Reasoning,
		Model:      r.Model,
		IssuedAt:   time.Now(),
	}, nil
}
