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
	"math"
	"reflect"
	"testing"
)

func testBinManager(t *testing.T) (*VariableContext, *BinManager) {
	vc := testVarCtx("a", "b", "c")
	avg, err := NewAggregatorAverage(vc, "a", 1, float32(math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	minMax, err := NewAggregatorMinMax(vc, "b", float32(math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewAggregatorPercentile(vc, "c", 50, float32(math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	return vc, NewBinManager(avg, minMax, p)
}

func TestBinManager_layout(t *testing.T) {
	_, m := testBinManager(t)
	if m.AggregatorCount() != 3 {
		t.Errorf("aggregators: %d", m.AggregatorCount())
	}
	if have, want := m.SpatialFeatureNames(), []string{"a_sum_x", "a_sum_xx", "a_counts", "b_min", "b_max", "c_sum_x", "c_counts"}; !reflect.DeepEqual(have, want) {
		t.Errorf("spatial features: have %v, want %v", have, want)
	}
	if have, want := m.TemporalFeatureNames(), []string{"a_sum_x", "a_sum_xx", "a_sum_w", "b_min", "b_max", "c_P50"}; !reflect.DeepEqual(have, want) {
		t.Errorf("temporal features: have %v, want %v", have, want)
	}
	if have, want := m.OutputFeatureNames(), []string{"a_mean", "a_sigma", "b_min", "b_max", "c_P50"}; !reflect.DeepEqual(have, want) {
		t.Errorf("output features: have %v, want %v", have, want)
	}
	if m.SpatialFeatureCount() != 7 || m.TemporalFeatureCount() != 6 || m.OutputFeatureCount() != 5 {
		t.Errorf("feature counts %d, %d, %d", m.SpatialFeatureCount(), m.TemporalFeatureCount(), m.OutputFeatureCount())
	}
	if len(m.TemporalFillValues()) != m.TemporalFeatureCount() {
		t.Errorf("fill values: %d", len(m.TemporalFillValues()))
	}
}

func TestBinManager_lifecycle(t *testing.T) {
	_, m := testBinManager(t)

	var spatial []*SpatialBin
	for _, image := range [][]Observation{
		{obs(1, 5, 2), obs(3, -1, 4)},
		{obs(5, 0, 9)},
	} {
		sb := m.CreateSpatialBin(12)
		if sb.Index != 12 || len(sb.Properties) != 7 {
			t.Fatalf("created %v", sb)
		}
		for _, o := range image {
			m.AggregateSpatialBin(o, sb)
		}
		if sb.NumObs != len(image) {
			t.Errorf("spatial observations: have %d, want %d", sb.NumObs, len(image))
		}
		m.CompleteSpatialBin(sb)
		spatial = append(spatial, sb)
	}
	if have, want := spatial[0].Properties, []float32{4, 10, 2, -1, 5, 3, 2}; !reflect.DeepEqual(have, want) {
		t.Errorf("spatial bin: have %v, want %v", have, want)
	}

	tb := TemporalBinner{BinManager: m}.ReduceBins(12, spatial)
	if tb.NumObs != 3 || tb.NumPasses != 2 {
		t.Errorf("temporal counts: have %d/%d, want 3/2", tb.NumObs, tb.NumPasses)
	}
	if have, want := tb.Properties, []float32{9, 35, 3, -1, 5, 6}; !reflect.DeepEqual(have, want) {
		t.Errorf("temporal bin: have %v, want %v", have, want)
	}

	out := m.CreateOutputVector()
	m.ComputeOutput(tb, out)
	want := []float64{3, math.Sqrt(35.0/3 - 9), -1, 5, 6}
	for i, w := range want {
		if different(float64(out.Get(i)), w, 1e-5) {
			t.Errorf("output %s: have %g, want %g", m.OutputFeatureNames()[i], out.Get(i), w)
		}
	}
	// ComputeOutput has no side effects.
	out2 := m.CreateOutputVector()
	m.ComputeOutput(tb, out2)
	if !reflect.DeepEqual(out.Floats(), out2.Floats()) {
		t.Errorf("repeated output differs: %v != %v", out, out2)
	}
}

func TestBinManager_vectors(t *testing.T) {
	_, m := testBinManager(t)
	bin := m.CreateSpatialBin(0)
	v := m.SpatialVector(bin, 1)
	if v.Size() != 2 {
		t.Fatalf("size %d", v.Size())
	}
	v.Set(0, 42)
	if bin.Properties[3] != 42 {
		t.Errorf("vector is not a view of the bin: %v", bin.Properties)
	}
}
