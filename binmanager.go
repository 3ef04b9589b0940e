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

// BinManager combines an ordered list of aggregators into one bin layout.
// The layout is fixed when the BinManager is created, so a BinManager can
// be shared by any number of goroutines.
type BinManager struct {
	aggregators     []Aggregator
	spatialOffsets  []int
	temporalOffsets []int
	outputOffsets   []int

	spatialFeatureCount  int
	temporalFeatureCount int
	outputFeatureCount   int
}

// NewBinManager returns a BinManager for the given aggregators.
func NewBinManager(aggregators ...Aggregator) *BinManager {
	m := &BinManager{
		aggregators:     aggregators,
		spatialOffsets:  make([]int, len(aggregators)),
		temporalOffsets: make([]int, len(aggregators)),
		outputOffsets:   make([]int, len(aggregators)),
	}
	for i, a := range aggregators {
		m.spatialOffsets[i] = m.spatialFeatureCount
		m.spatialFeatureCount += len(a.SpatialFeatureNames())
		m.temporalOffsets[i] = m.temporalFeatureCount
		m.temporalFeatureCount += len(a.TemporalFeatureNames())
		m.outputOffsets[i] = m.outputFeatureCount
		m.outputFeatureCount += len(a.OutputFeatureNames())
	}
	return m
}

// AggregatorCount returns the number of aggregators.
func (m *BinManager) AggregatorCount() int { return len(m.aggregators) }

// Aggregator returns the i-th aggregator.
func (m *BinManager) Aggregator(i int) Aggregator { return m.aggregators[i] }

// SpatialFeatureCount returns the number of spatial features of a bin.
func (m *BinManager) SpatialFeatureCount() int { return m.spatialFeatureCount }

// TemporalFeatureCount returns the number of temporal features of a bin.
func (m *BinManager) TemporalFeatureCount() int { return m.temporalFeatureCount }

// OutputFeatureCount returns the number of output features of a bin.
func (m *BinManager) OutputFeatureCount() int { return m.outputFeatureCount }

// SpatialFeatureNames returns the names of all spatial features in layout order.
func (m *BinManager) SpatialFeatureNames() []string {
	return m.names(Aggregator.SpatialFeatureNames, m.spatialFeatureCount)
}

// TemporalFeatureNames returns the names of all temporal features in layout order.
func (m *BinManager) TemporalFeatureNames() []string {
	return m.names(Aggregator.TemporalFeatureNames, m.temporalFeatureCount)
}

// OutputFeatureNames returns the names of all output features in layout order.
func (m *BinManager) OutputFeatureNames() []string {
	return m.names(Aggregator.OutputFeatureNames, m.outputFeatureCount)
}

func (m *BinManager) names(f func(Aggregator) []string, n int) []string {
	out := make([]string, 0, n)
	for _, a := range m.aggregators {
		out = append(out, f(a)...)
	}
	return out
}

// TemporalFillValues returns, for every temporal feature, the fill value
// of the aggregator it belongs to.
func (m *BinManager) TemporalFillValues() []float32 {
	out := make([]float32, 0, m.temporalFeatureCount)
	for _, a := range m.aggregators {
		for range a.TemporalFeatureNames() {
			out = append(out, a.OutputFillValue())
		}
	}
	return out
}

// SpatialVector returns the spatial features of the i-th aggregator within bin.
func (m *BinManager) SpatialVector(bin *SpatialBin, i int) *VectorImpl {
	return NewVector(bin.Properties).window(m.spatialOffsets[i], len(m.aggregators[i].SpatialFeatureNames()))
}

// TemporalVector returns the temporal features of the i-th aggregator within bin.
func (m *BinManager) TemporalVector(bin *TemporalBin, i int) *VectorImpl {
	return NewVector(bin.Properties).window(m.temporalOffsets[i], len(m.aggregators[i].TemporalFeatureNames()))
}

// CreateSpatialBin returns a new, initialized spatial bin.
func (m *BinManager) CreateSpatialBin(index uint64) *SpatialBin {
	bin := NewSpatialBin(index, m.spatialFeatureCount)
	for i, a := range m.aggregators {
		a.InitSpatial(m.spatialContext(bin, i), m.SpatialVector(bin, i))
	}
	return bin
}

// AggregateSpatialBin adds an observation to a spatial bin.
func (m *BinManager) AggregateSpatialBin(obs Observation, bin *SpatialBin) {
	v := obs.Vector()
	for i, a := range m.aggregators {
		a.AggregateSpatial(m.spatialContext(bin, i), v, m.SpatialVector(bin, i))
	}
	bin.NumObs++
}

// CompleteSpatialBin completes a spatial bin. It must be called exactly
// once per bin, after the last observation has been added.
func (m *BinManager) CompleteSpatialBin(bin *SpatialBin) {
	for i, a := range m.aggregators {
		a.CompleteSpatial(m.spatialContext(bin, i), bin.NumObs, m.SpatialVector(bin, i))
	}
	bin.contexts = nil
}

// CreateTemporalBin returns a new, initialized temporal bin.
func (m *BinManager) CreateTemporalBin(index uint64) *TemporalBin {
	bin := NewTemporalBin(index, m.temporalFeatureCount)
	for i, a := range m.aggregators {
		a.InitTemporal(m.temporalContext(bin, i), m.TemporalVector(bin, i))
	}
	return bin
}

// AggregateTemporalBin adds a completed spatial bin to a temporal bin.
func (m *BinManager) AggregateTemporalBin(spatial *SpatialBin, temporal *TemporalBin) {
	for i, a := range m.aggregators {
		a.AggregateTemporal(m.temporalContext(temporal, i), m.SpatialVector(spatial, i), spatial.NumObs, m.TemporalVector(temporal, i))
	}
	temporal.NumObs += spatial.NumObs
	temporal.NumPasses++
}

// CompleteTemporalBin completes a temporal bin. It must be called exactly
// once per bin, after the last spatial bin has been added.
func (m *BinManager) CompleteTemporalBin(bin *TemporalBin) {
	for i, a := range m.aggregators {
		a.CompleteTemporal(m.temporalContext(bin, i), bin.NumObs, m.TemporalVector(bin, i))
	}
	bin.contexts = nil
}

// CreateOutputVector returns a vector large enough for all output features.
func (m *BinManager) CreateOutputVector() *VectorImpl {
	return NewVector(make([]float32, m.outputFeatureCount))
}

// ComputeOutput computes the output features of a completed temporal bin.
func (m *BinManager) ComputeOutput(bin *TemporalBin, out *VectorImpl) {
	for i, a := range m.aggregators {
		n := len(a.OutputFeatureNames())
		a.ComputeOutput(m.TemporalVector(bin, i), out.window(out.offset+m.outputOffsets[i], n))
	}
}

func (m *BinManager) spatialContext(bin *SpatialBin, i int) *Context {
	return contextAt(&bin.contexts, len(m.aggregators), i)
}

func (m *BinManager) temporalContext(bin *TemporalBin, i int) *Context {
	return contextAt(&bin.contexts, len(m.aggregators), i)
}
