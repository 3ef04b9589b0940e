/*
Copyright © 2026 the Binning authors.
This file is part of Binning.

Binning is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Binning is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Binning.  If not, see <http://www.gnu.org/licenses/>.
*/

package binning

import (
	"fmt"
	"math"
)

// AggregatorAverage computes the weighted mean and standard deviation
// of a variable.
//
// Spatial features are the sum, the sum of squares and the number of
// valid values. Each spatial bin then contributes to the temporal sums
// with weight n^c, where n is its number of valid values and c is the
// weight coefficient: c = 1 weights every observation equally and c = 0
// weights every source image equally.
type AggregatorAverage struct {
	aggregatorBase
	varIndex    int
	weightCoeff float64
	transform   func(float32) float32
}

// NewAggregatorAverage returns an AVG aggregator for the named variable.
// weightCoeff must be in [0, 1].
func NewAggregatorAverage(varCtx *VariableContext, varName string, weightCoeff float64, fillValue float32) (*AggregatorAverage, error) {
	a, err := newAverage(varCtx, varName, weightCoeff, fillValue)
	if err != nil {
		return nil, err
	}
	a.name = TypeAverage
	a.outputFeatures = featureNames(varName, "mean", "sigma")
	return a, nil
}

func newAverage(varCtx *VariableContext, varName string, weightCoeff float64, fillValue float32) (*AggregatorAverage, error) {
	i, err := varCtx.mustIndex(varName)
	if err != nil {
		return nil, err
	}
	if weightCoeff < 0 || weightCoeff > 1 {
		return nil, fmt.Errorf("binning: weight coefficient must be in [0, 1] but is %g", weightCoeff)
	}
	return &AggregatorAverage{
		aggregatorBase: aggregatorBase{
			spatialFeatures:  featureNames(varName, "sum_x", "sum_xx", "counts"),
			temporalFeatures: featureNames(varName, "sum_x", "sum_xx", "sum_w"),
			fillValue:        fillValue,
		},
		varIndex:    i,
		weightCoeff: weightCoeff,
	}, nil
}

// InitSpatial implements Aggregator.
func (a *AggregatorAverage) InitSpatial(_ *Context, v WritableVector) { fill(v, 0) }

// AggregateSpatial implements Aggregator. NaN values are ignored.
func (a *AggregatorAverage) AggregateSpatial(_ *Context, obs Vector, v WritableVector) {
	x := obs.Get(a.varIndex)
	if isNaN(x) {
		return
	}
	if a.transform != nil {
		x = a.transform(x)
	}
	v.Set(0, v.Get(0)+x)
	v.Set(1, v.Get(1)+x*x)
	v.Set(2, v.Get(2)+1)
}

// CompleteSpatial implements Aggregator. The sums are kept as they are.
func (a *AggregatorAverage) CompleteSpatial(_ *Context, _ int, _ WritableVector) {}

// InitTemporal implements Aggregator.
func (a *AggregatorAverage) InitTemporal(_ *Context, v WritableVector) { fill(v, 0) }

// AggregateTemporal implements Aggregator.
func (a *AggregatorAverage) AggregateTemporal(_ *Context, spatial Vector, _ int, v WritableVector) {
	n := float64(spatial.Get(2))
	if n <= 0 {
		return
	}
	w := math.Pow(n, a.weightCoeff)
	f := w / n
	v.Set(0, v.Get(0)+float32(float64(spatial.Get(0))*f))
	v.Set(1, v.Get(1)+float32(float64(spatial.Get(1))*f))
	v.Set(2, v.Get(2)+float32(w))
}

// CompleteTemporal implements Aggregator.
func (a *AggregatorAverage) CompleteTemporal(_ *Context, _ int, _ WritableVector) {}

// ComputeOutput implements Aggregator.
func (a *AggregatorAverage) ComputeOutput(t Vector, out WritableVector) {
	mean, variance, ok := weightedMoments(t)
	if !ok {
		fill(out, a.fillValue)
		return
	}
	out.Set(0, float32(mean))
	out.Set(1, float32(math.Sqrt(variance)))
}

// weightedMoments returns the mean and variance encoded by temporal sums
// (sum_x, sum_xx, sum_w).
func weightedMoments(t Vector) (mean, variance float64, ok bool) {
	w := float64(t.Get(2))
	if w <= 0 {
		return 0, 0, false
	}
	mean = float64(t.Get(0)) / w
	variance = float64(t.Get(1))/w - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, variance, true
}
