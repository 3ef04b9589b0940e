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

import "math"

// AggregatorOnMaxSet retains the values of a set of variables taken from
// the observation, and later the spatial bin, with the largest value of
// a driver variable.
type AggregatorOnMaxSet struct {
	aggregatorBase
	indices []int // driver first
}

// NewAggregatorOnMaxSet returns an ON_MAX_SET aggregator that maximizes
// onMaxVar and retains setVars with it.
func NewAggregatorOnMaxSet(varCtx *VariableContext, fillValue float32, onMaxVar string, setVars ...string) (*AggregatorOnMaxSet, error) {
	vars := append([]string{onMaxVar}, setVars...)
	indices := make([]int, len(vars))
	for i, name := range vars {
		j, err := varCtx.mustIndex(name)
		if err != nil {
			return nil, err
		}
		indices[i] = j
	}
	names := append([]string{onMaxVar + "_max"}, setVars...)
	return &AggregatorOnMaxSet{
		aggregatorBase: aggregatorBase{
			name:             TypeOnMaxSet,
			spatialFeatures:  names,
			temporalFeatures: names,
			outputFeatures:   names,
			fillValue:        fillValue,
		},
		indices: indices,
	}, nil
}

func (a *AggregatorOnMaxSet) init(v WritableVector) {
	fill(v, float32(math.NaN()))
	v.Set(0, negInf)
}

// InitSpatial implements Aggregator.
func (a *AggregatorOnMaxSet) InitSpatial(_ *Context, v WritableVector) { a.init(v) }

// AggregateSpatial implements Aggregator.
func (a *AggregatorOnMaxSet) AggregateSpatial(_ *Context, obs Vector, v WritableVector) {
	if obs.Get(a.indices[0]) > v.Get(0) {
		for i, j := range a.indices {
			v.Set(i, obs.Get(j))
		}
	}
}

// CompleteSpatial implements Aggregator.
func (a *AggregatorOnMaxSet) CompleteSpatial(_ *Context, _ int, _ WritableVector) {}

// InitTemporal implements Aggregator.
func (a *AggregatorOnMaxSet) InitTemporal(_ *Context, v WritableVector) { a.init(v) }

// AggregateTemporal implements Aggregator.
func (a *AggregatorOnMaxSet) AggregateTemporal(_ *Context, spatial Vector, _ int, v WritableVector) {
	if spatial.Get(0) > v.Get(0) {
		for i := 0; i < v.Size(); i++ {
			v.Set(i, spatial.Get(i))
		}
	}
}

// CompleteTemporal implements Aggregator.
func (a *AggregatorOnMaxSet) CompleteTemporal(_ *Context, _ int, _ WritableVector) {}

// ComputeOutput implements Aggregator.
func (a *AggregatorOnMaxSet) ComputeOutput(t Vector, out WritableVector) {
	if t.Get(0) == negInf {
		fill(out, a.fillValue)
		return
	}
	for i := 0; i < out.Size(); i++ {
		out.Set(i, t.Get(i))
	}
}
