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

// logEpsilon replaces values that are too small to take a logarithm of.
const logEpsilon = 1e-30

// AggregatorAverageML computes maximum likelihood estimates for a
// log-normally distributed variable. It accumulates the natural
// logarithms of the values the same way AggregatorAverage accumulates
// the values themselves.
type AggregatorAverageML struct {
	*AggregatorAverage
}

// NewAggregatorAverageML returns an AVG_ML aggregator for the named variable.
func NewAggregatorAverageML(varCtx *VariableContext, varName string, weightCoeff float64, fillValue float32) (*AggregatorAverageML, error) {
	a, err := newAverage(varCtx, varName, weightCoeff, fillValue)
	if err != nil {
		return nil, err
	}
	a.name = TypeAverageML
	a.outputFeatures = featureNames(varName, "mean", "sigma", "median", "mode")
	a.transform = func(x float32) float32 {
		return float32(math.Log(math.Max(float64(x), logEpsilon)))
	}
	return &AggregatorAverageML{AggregatorAverage: a}, nil
}

// ComputeOutput implements Aggregator.
func (a *AggregatorAverageML) ComputeOutput(t Vector, out WritableVector) {
	avgLogs, varLogs, ok := weightedMoments(t)
	if !ok {
		fill(out, a.fillValue)
		return
	}
	mean := math.Exp(avgLogs + 0.5*varLogs)
	out.Set(0, float32(mean))
	out.Set(1, float32(mean*math.Sqrt(math.Exp(varLogs)-1)))
	out.Set(2, float32(math.Exp(avgLogs)))
	out.Set(3, float32(math.Exp(avgLogs-varLogs)))
}
