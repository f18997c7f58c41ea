package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// SMA calculates the Simple Moving Average over the last period bars using
// cinar/indicator and returns the most recent value, or 0 when there is not
// enough history.
func SMA(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period {
		return 0
	}

	pricesChan := make(chan float64, len(prices))
	for _, p := range prices {
		pricesChan <- p
	}
	close(pricesChan)

	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	smaChan := smaIndicator.Compute(pricesChan)

	var last float64
	var got bool
	for val := range smaChan {
		last = val
		got = true
	}
	if !got {
		return 0
	}
	return last
}

// EMA calculates the Exponential Moving Average over the given period using
// cinar/indicator and returns the most recent value.
func EMA(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period {
		return 0
	}

	pricesChan := make(chan float64, len(prices))
	for _, p := range prices {
		pricesChan <- p
	}
	close(pricesChan)

	emaIndicator := trend.NewEmaWithPeriod[float64](period)
	emaChan := emaIndicator.Compute(pricesChan)

	var last float64
	var got bool
	for val := range emaChan {
		last = val
		got = true
	}
	if !got {
		return 0
	}
	return last
}
