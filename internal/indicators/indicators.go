package indicators

import (
	"math"
)

// ATR calculates the Average True Range over the last period bars as the
// simple mean of true range. This is the Turtle "N": the volatility unit used
// for stop distance and position sizing.
//
// TR_i = max(high_i - low_i, |high_i - close_{i-1}|, |low_i - close_{i-1}|)
func ATR(high, low, close []float64, period int) float64 {
	n := len(close)
	if n < period+1 || len(high) != n || len(low) != n || period < 1 {
		return 0
	}

	sum := 0.0
	for i := n - period; i < n; i++ {
		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))
		sum += tr
	}
	return sum / float64(period)
}

// HighestHigh returns the highest high of the last period bars
func HighestHigh(high []float64, period int) float64 {
	n := len(high)
	if n < period || period < 1 {
		return 0
	}
	max := high[n-period]
	for i := n - period + 1; i < n; i++ {
		if high[i] > max {
			max = high[i]
		}
	}
	return max
}

// LowestLow returns the lowest low of the last period bars
func LowestLow(low []float64, period int) float64 {
	n := len(low)
	if n < period || period < 1 {
		return 0
	}
	min := low[n-period]
	for i := n - period + 1; i < n; i++ {
		if low[i] < min {
			min = low[i]
		}
	}
	return min
}

// Momentum returns the absolute close-to-close change over the last period
// bars, e.g. Momentum(closes, 20) = close_now - close_20_bars_ago.
func Momentum(close []float64, period int) float64 {
	n := len(close)
	if n < period+1 || period < 1 {
		return 0
	}
	return close[n-1] - close[n-1-period]
}

// AverageVolume returns the mean volume of the last period bars
func AverageVolume(volume []int64, period int) float64 {
	n := len(volume)
	if n < period || period < 1 {
		return 0
	}
	var sum int64
	for i := n - period; i < n; i++ {
		sum += volume[i]
	}
	return float64(sum) / float64(period)
}
