package indicators

// SMA returns the simple moving average of the last period values. It
// returns 0 when fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// CrossedAbove reports whether the short average sits above the long one,
// a coarse uptrend check.
func CrossedAbove(values []float64, short, long int) bool {
	s, l := SMA(values, short), SMA(values, long)
	return s != 0 && l != 0 && s > l
}
