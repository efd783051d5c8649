// Package indicators provides moving averages over price series.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// SMA calculates the Simple Moving Average for the given period.
// The result has len(values)-period+1 elements.
func SMA(values []float64, period int) ([]float64, error) {
	if err := checkInput(values, period); err != nil {
		return nil, err
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	inputChan := helper.SliceToChan(values)
	outputChan := sma.Compute(inputChan)

	return helper.ChanToSlice(outputChan), nil
}

// EMA calculates the Exponential Moving Average for the given period.
func EMA(values []float64, period int) ([]float64, error) {
	if err := checkInput(values, period); err != nil {
		return nil, err
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	inputChan := helper.SliceToChan(values)
	outputChan := ema.Compute(inputChan)

	return helper.ChanToSlice(outputChan), nil
}

// LastEMA returns the most recent EMA value.
func LastEMA(values []float64, period int) (float64, error) {
	ema, err := EMA(values, period)
	if err != nil {
		return 0, err
	}
	if len(ema) == 0 {
		return 0, fmt.Errorf("ema(%d) produced no values", period)
	}

	return ema[len(ema)-1], nil
}

func checkInput(values []float64, period int) error {
	if period < 1 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}

	return nil
}
