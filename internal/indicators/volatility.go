package indicators

import "math"

// Volatility is the standard deviation of simple returns over the last
// period values, as a fraction of price. Returns 0 with insufficient data.
func Volatility(values []float64, period int) float64 {
	if period <= 1 || len(values) < period {
		return 0
	}
	window := values[len(values)-period:]
	returns := make([]float64, 0, period-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}
