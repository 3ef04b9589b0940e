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
	"sort"
	"strconv"
)

// DefaultPercentage is the percentile computed when none is configured.
const DefaultPercentage = 90

// AggregatorPercentile computes a percentile of the per-image means of
// a variable. Spatial features are the sum and the number of valid
// values; NaN values are ignored.
type AggregatorPercentile struct {
	aggregatorBase
	varIndex   int
	percentage int
}

// NewAggregatorPercentile returns a PERCENTILE aggregator computing
// the given percentile (0-100) of the named variable.
func NewAggregatorPercentile(varCtx *VariableContext, varName string, percentage int, fillValue float32) (*AggregatorPercentile, error) {
	i, err := varCtx.mustIndex(varName)
	if err != nil {
		return nil, err
	}
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf("binning: percentage must be in [0, 100] but is %d", percentage)
	}
	names := []string{varName + "_P" + strconv.Itoa(percentage)}
	return &AggregatorPercentile{
		aggregatorBase: aggregatorBase{
			name:             TypePercentile,
			spatialFeatures:  featureNames(varName, "sum_x", "counts"),
			temporalFeatures: names,
			outputFeatures:   names,
			fillValue:        fillValue,
		},
		varIndex:   i,
		percentage: percentage,
	}, nil
}

// InitSpatial implements Aggregator.
func (a *AggregatorPercentile) InitSpatial(_ *Context, v WritableVector) { fill(v, 0) }

// AggregateSpatial implements Aggregator.
func (a *AggregatorPercentile) AggregateSpatial(_ *Context, obs Vector, v WritableVector) {
	x := obs.Get(a.varIndex)
	if isNaN(x) {
		return
	}
	v.Set(0, v.Get(0)+x)
	v.Set(1, v.Get(1)+1)
}

// CompleteSpatial implements Aggregator. It turns the sum into a mean.
func (a *AggregatorPercentile) CompleteSpatial(_ *Context, _ int, v WritableVector) {
	if n := v.Get(1); n > 0 {
		v.Set(0, v.Get(0)/n)
	} else {
		v.Set(0, float32(math.NaN()))
	}
}

// InitTemporal implements Aggregator.
func (a *AggregatorPercentile) InitTemporal(ctx *Context, v WritableVector) {
	ctx.Values = ctx.Values[:0]
	v.Set(0, 0)
}

// AggregateTemporal implements Aggregator. The spatial means are
// collected in ctx until the bin is completed.
func (a *AggregatorPercentile) AggregateTemporal(ctx *Context, spatial Vector, _ int, _ WritableVector) {
	if x := spatial.Get(0); !isNaN(x) {
		ctx.Values = append(ctx.Values, x)
	}
}

// CompleteTemporal implements Aggregator.
func (a *AggregatorPercentile) CompleteTemporal(ctx *Context, _ int, v WritableVector) {
	if len(ctx.Values) == 0 {
		v.Set(0, a.fillValue)
		return
	}
	values := ctx.Values
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	v.Set(0, ComputePercentile(float64(a.percentage), values))
	ctx.Values = nil
}

// ComputeOutput implements Aggregator.
func (a *AggregatorPercentile) ComputeOutput(t Vector, out WritableVector) {
	out.Set(0, t.Get(0))
}

// ComputePercentile returns the p-th percentile (0-100) of values, which
// must be sorted in ascending order. The rank of the percentile is
// p/100*(N+1); ranks between two values are interpolated linearly and
// ranks outside [1, N] are clamped to the first or last value.
func ComputePercentile(p float64, values []float32) float32 {
	n := len(values)
	if n == 0 {
		return float32(math.NaN())
	}
	rank := p / 100 * float64(n+1)
	k := math.Floor(rank)
	d := rank - k
	switch {
	case k < 1:
		return values[0]
	case int(k) >= n:
		return values[n-1]
	}
	lo, hi := float64(values[int(k)-1]), float64(values[int(k)])
	return float32(lo + d*(hi-lo))
}
