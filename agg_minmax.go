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

// AggregatorMinMax tracks the minimum and maximum of a variable.
type AggregatorMinMax struct {
	aggregatorBase
	varIndex int
}

// NewAggregatorMinMax returns a MIN_MAX aggregator for the named variable.
func NewAggregatorMinMax(varCtx *VariableContext, varName string, fillValue float32) (*AggregatorMinMax, error) {
	i, err := varCtx.mustIndex(varName)
	if err != nil {
		return nil, err
	}
	names := featureNames(varName, "min", "max")
	return &AggregatorMinMax{
		aggregatorBase: aggregatorBase{
			name:             TypeMinMax,
			spatialFeatures:  names,
			temporalFeatures: names,
			outputFeatures:   names,
			fillValue:        fillValue,
		},
		varIndex: i,
	}, nil
}

var (
	posInf = float32(math.Inf(1))
	negInf = float32(math.Inf(-1))
)

func (a *AggregatorMinMax) init(v WritableVector) {
	v.Set(0, posInf)
	v.Set(1, negInf)
}

func (a *AggregatorMinMax) extend(v WritableVector, min, max float32) {
	if min < v.Get(0) {
		v.Set(0, min)
	}
	if max > v.Get(1) {
		v.Set(1, max)
	}
}

// InitSpatial implements Aggregator.
func (a *AggregatorMinMax) InitSpatial(_ *Context, v WritableVector) { a.init(v) }

// AggregateSpatial implements Aggregator.
func (a *AggregatorMinMax) AggregateSpatial(_ *Context, obs Vector, v WritableVector) {
	x := obs.Get(a.varIndex)
	a.extend(v, x, x)
}

// CompleteSpatial implements Aggregator.
func (a *AggregatorMinMax) CompleteSpatial(_ *Context, _ int, _ WritableVector) {}

// InitTemporal implements Aggregator.
func (a *AggregatorMinMax) InitTemporal(_ *Context, v WritableVector) { a.init(v) }

// AggregateTemporal implements Aggregator.
func (a *AggregatorMinMax) AggregateTemporal(_ *Context, spatial Vector, _ int, v WritableVector) {
	a.extend(v, spatial.Get(0), spatial.Get(1))
}

// CompleteTemporal implements Aggregator.
func (a *AggregatorMinMax) CompleteTemporal(_ *Context, _ int, _ WritableVector) {}

// ComputeOutput implements Aggregator.
func (a *AggregatorMinMax) ComputeOutput(t Vector, out WritableVector) {
	min, max := t.Get(0), t.Get(1)
	if min > max {
		// Nothing contributed.
		fill(out, a.fillValue)
		return
	}
	out.Set(0, min)
	out.Set(1, max)
}
