package scoring

import (
	"fmt"
	"math"
)

// WeightSet defines the relative importance of each complexity signal.
// All weights must sum to 1.0 (±0.001 tolerance).
type WeightSet struct {
	Verb         float64
	Volume       float64
	Scope        float64
	Coordination float64
}

// DefaultWeights returns the standard signal weight distribution.
func DefaultWeights() WeightSet {
	return WeightSet{
		Verb:         0.30,
		Volume:       0.20,
		Scope:        0.25,
		Coordination: 0.25,
	}
}

// Sum returns the total of all weights.
func (w WeightSet) Sum() float64 {
	return w.Verb + w.Volume + w.Scope + w.Coordination
}

// Validate checks that weights sum to 1.0 and none are negative.
func (w WeightSet) Validate() error {
	if math.Abs(w.Sum()-1.0) > 0.001 {
		return fmt.Errorf("weights sum to %.4f, must sum to 1.0", w.Sum())
	}
	for _, v := range []float64{w.Verb, w.Volume, w.Scope, w.Coordination} {
		if v < 0 {
			return fmt.Errorf("negative weight: %f", v)
		}
	}
	return nil
}
