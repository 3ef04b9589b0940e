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
	"errors"
	"fmt"
	"math"
	"strings"
)

// Aggregator computes statistics of one or more variables. It first
// accumulates observations into spatial features, then spatial bins into
// temporal features, and finally derives output features from the
// temporal ones.
//
// The vectors passed to an aggregator are views of the aggregator's own
// features within a bin; obs is the full sample vector of an observation.
type Aggregator interface {
	// Name returns the type name of the aggregator, e.g. "AVG".
	Name() string

	SpatialFeatureNames() []string
	TemporalFeatureNames() []string
	OutputFeatureNames() []string

	// OutputFillValue is reported for every output feature of a bin
	// that received no valid contributions.
	OutputFillValue() float32

	InitSpatial(ctx *Context, v WritableVector)
	AggregateSpatial(ctx *Context, obs Vector, v WritableVector)
	CompleteSpatial(ctx *Context, numSpatialObs int, v WritableVector)

	InitTemporal(ctx *Context, v WritableVector)
	AggregateTemporal(ctx *Context, spatial Vector, numSpatialObs int, v WritableVector)
	CompleteTemporal(ctx *Context, numTemporalObs int, v WritableVector)

	// ComputeOutput derives the output features from the temporal
	// features. It has no side effects.
	ComputeOutput(temporal Vector, out WritableVector)
}

// Aggregator type names.
const (
	TypeAverage    = "AVG"
	TypeAverageML  = "AVG_ML"
	TypeMinMax     = "MIN_MAX"
	TypeOnMaxSet   = "ON_MAX_SET"
	TypePercentile = "PERCENTILE"
)

// ErrUnknownAggregator is returned for an unsupported aggregator type.
var ErrUnknownAggregator = errors.New("binning: unknown aggregator type")

// AggregatorConfig specifies an aggregator and its parameters.
type AggregatorConfig struct {
	// Type is one of AVG, AVG_ML, MIN_MAX, ON_MAX_SET or PERCENTILE.
	Type string `json:"type" toml:"type" mapstructure:"type"`

	// VarName is the variable to aggregate.
	VarName string `json:"varName,omitempty" toml:"varName,omitempty" mapstructure:"varName"`

	// VarNames are the variables of ON_MAX_SET: the first one is
	// maximized and the others are retained with it.
	VarNames []string `json:"varNames,omitempty" toml:"varNames,omitempty" mapstructure:"varNames"`

	// Percentage is the percentile computed by PERCENTILE. Default 90.
	Percentage int `json:"percentage,omitempty" toml:"percentage,omitempty" mapstructure:"percentage"`

	// WeightCoeff is the exponent applied to the observation count of
	// each spatial bin by AVG and AVG_ML. Default 1.
	WeightCoeff *float64 `json:"weightCoeff,omitempty" toml:"weightCoeff,omitempty" mapstructure:"weightCoeff"`

	// FillValue is the output value of empty bins. Default NaN.
	FillValue *float64 `json:"fillValue,omitempty" toml:"fillValue,omitempty" mapstructure:"fillValue"`
}

// VariableNames returns the variables the configured aggregator reads.
func (c AggregatorConfig) VariableNames() []string {
	if c.VarName != "" {
		return []string{c.VarName}
	}
	return c.VarNames
}

func (c AggregatorConfig) fillValue() float32 {
	if c.FillValue == nil {
		return float32(math.NaN())
	}
	return float32(*c.FillValue)
}

// NewAggregator creates the aggregator described by cfg. All variables
// it reads must be defined in varCtx.
func NewAggregator(varCtx *VariableContext, cfg AggregatorConfig) (Aggregator, error) {
	switch strings.ToUpper(cfg.Type) {
	case TypeAverage, TypeAverageML:
		if cfg.VarName == "" {
			return nil, fmt.Errorf("binning: aggregator %s requires varName", cfg.Type)
		}
		w := 1.0
		if cfg.WeightCoeff != nil {
			w = *cfg.WeightCoeff
		}
		if strings.ToUpper(cfg.Type) == TypeAverage {
			return NewAggregatorAverage(varCtx, cfg.VarName, w, cfg.fillValue())
		}
		return NewAggregatorAverageML(varCtx, cfg.VarName, w, cfg.fillValue())
	case TypeMinMax:
		if cfg.VarName == "" {
			return nil, fmt.Errorf("binning: aggregator %s requires varName", cfg.Type)
		}
		return NewAggregatorMinMax(varCtx, cfg.VarName, cfg.fillValue())
	case TypeOnMaxSet:
		if len(cfg.VarNames) == 0 {
			return nil, fmt.Errorf("binning: aggregator %s requires varNames", cfg.Type)
		}
		return NewAggregatorOnMaxSet(varCtx, cfg.fillValue(), cfg.VarNames[0], cfg.VarNames[1:]...)
	case TypePercentile:
		if cfg.VarName == "" {
			return nil, fmt.Errorf("binning: aggregator %s requires varName", cfg.Type)
		}
		p := cfg.Percentage
		if p == 0 {
			p = DefaultPercentage
		}
		return NewAggregatorPercentile(varCtx, cfg.VarName, p, cfg.fillValue())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, cfg.Type)
	}
}

// aggregatorBase holds the feature names and fill value shared by all
// aggregator implementations.
type aggregatorBase struct {
	name             string
	spatialFeatures  []string
	temporalFeatures []string
	outputFeatures   []string
	fillValue        float32
}

func (a *aggregatorBase) Name() string                   { return a.name }
func (a *aggregatorBase) SpatialFeatureNames() []string  { return a.spatialFeatures }
func (a *aggregatorBase) TemporalFeatureNames() []string { return a.temporalFeatures }
func (a *aggregatorBase) OutputFeatureNames() []string   { return a.outputFeatures }
func (a *aggregatorBase) OutputFillValue() float32       { return a.fillValue }

// featureNames returns "{varName}_{suffix}" for every suffix.
func featureNames(varName string, suffixes ...string) []string {
	names := make([]string, len(suffixes))
	for i, s := range suffixes {
		names[i] = varName + "_" + s
	}
	return names
}

func fill(v WritableVector, x float32) {
	for i := 0; i < v.Size(); i++ {
		v.Set(i, x)
	}
}

func isNaN(x float32) bool { return x != x }
