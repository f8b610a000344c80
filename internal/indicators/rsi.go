package indicators

// RSI computes the relative strength index over the last period deltas using
// the plain average-gain / average-loss form. Returns 50 (neutral) when there
// is not enough data, 100 when there are no losses in the window.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}
	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}
