// Package indicator supplies the signed [-1,+1] strength reading that
// internal/mtf and internal/basesignal both consume from a raw candle
// series. Momentum is a rate-of-change reading over a closed candle
// series.
package indicator

import (
	"math"

	"github.com/lattice-q/spotrader/internal/model"
)

// Momentum computes close-to-close rate of change over Lookback candles
// and squashes it into [-1,+1] as tanh(roc/Sensitivity): a fractional move
// equal to Sensitivity reads about ±0.76, and larger moves approach ±1.
type Momentum struct {
	Lookback    int
	Sensitivity float64
}

func NewMomentum(lookback int, sensitivity float64) Momentum {
	if lookback <= 0 {
		lookback = 14
	}
	if sensitivity <= 0 {
		sensitivity = 0.05
	}
	return Momentum{Lookback: lookback, Sensitivity: sensitivity}
}

// Strength returns ok=false when there are fewer than Lookback+1 candles;
// the caller treats that as "indicator unavailable", never a 0 reading.
func (m Momentum) Strength(candles []model.Candle) (float64, bool) {
	if len(candles) < m.Lookback+1 {
		return 0, false
	}
	last := candles[len(candles)-1].Close
	prior := candles[len(candles)-1-m.Lookback].Close
	if prior == 0 {
		return 0, false
	}
	roc := (last - prior) / prior
	return tanh(roc / m.Sensitivity), true
}

func tanh(x float64) float64 { return math.Tanh(x) }
