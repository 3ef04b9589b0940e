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
	"context"
	"reflect"
	"sort"
	"testing"
)

type memSource map[uint64][]*SpatialBin

func (m memSource) Groups(_ context.Context, r IndexRange, fn func(uint64, []*SpatialBin) error) error {
	var keys []uint64
	for k := range m {
		if r.Contains(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if err := fn(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func TestRowPartitioner(t *testing.T) {
	g, err := NewSEAGrid(18)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 1, 4, 7, 18, 50} {
		p := RowPartitioner{Grid: g, NumPartitions: n}
		ranges := p.Ranges()
		want := n
		if want < 1 {
			want = 1
		}
		if want > 18 {
			want = 18
		}
		if len(ranges) != want {
			t.Errorf("%d partitions: have %d ranges", n, len(ranges))
		}
		if ranges[0].Start != 0 || ranges[len(ranges)-1].End != g.NumBins() {
			t.Errorf("%d partitions: ranges %v do not cover the grid", n, ranges)
		}
		for i, r := range ranges {
			if r.Start >= r.End {
				t.Errorf("%d partitions: empty range %v", n, r)
			}
			if i > 0 && ranges[i-1].End != r.Start {
				t.Errorf("%d partitions: gap between %v and %v", n, ranges[i-1], r)
			}
			// Ranges start at row boundaries.
			if row := g.RowIndex(r.Start); g.FirstBinIndex(row) != r.Start {
				t.Errorf("%d partitions: range %v does not start a row", n, r)
			}
			if p.Partition(r.Start) != i || p.Partition(r.End-1) != i {
				t.Errorf("%d partitions: range %v is not partition %d", n, r, i)
			}
		}
	}
}

func TestReduceParallel(t *testing.T) {
	ctx := testBinningContext(t)
	m := ctx.BinManager
	src := make(memSource)
	for idx := uint64(0); idx < ctx.Grid.NumBins(); idx += 97 {
		for pass := 0; pass < int(idx%3)+1; pass++ {
			sb := m.CreateSpatialBin(idx)
			m.AggregateSpatialBin(Observation{Samples: []float32{float32(pass)}}, sb)
			m.CompleteSpatialBin(sb)
			src[idx] = append(src[idx], sb)
		}
	}
	binner := TemporalBinner{BinManager: m}

	seq, err := ReduceParallel(context.Background(), binner, src, RowPartitioner{Grid: ctx.Grid, NumPartitions: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	par, err := ReduceParallel(context.Background(), binner, src, RowPartitioner{Grid: ctx.Grid, NumPartitions: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(par) != len(src) {
		t.Fatalf("have %d bins, want %d", len(par), len(src))
	}
	for i := 1; i < len(par); i++ {
		if par[i-1].Index >= par[i].Index {
			t.Fatalf("output not sorted at %d: %d >= %d", i, par[i-1].Index, par[i].Index)
		}
	}
	if !reflect.DeepEqual(seq, par) {
		t.Error("parallel reduction differs from sequential reduction")
	}
	for _, b := range par {
		if b.NumPasses != len(src[b.Index]) {
			t.Errorf("bin %d: %d passes, want %d", b.Index, b.NumPasses, len(src[b.Index]))
		}
	}
}

func TestReduceParallel_cancel(t *testing.T) {
	tctx := testBinningContext(t)
	src := memSource{5: {tctx.BinManager.CreateSpatialBin(5)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReduceParallel(ctx, TemporalBinner{BinManager: tctx.BinManager}, src, RowPartitioner{Grid: tctx.Grid, NumPartitions: 2}, nil)
	if err == nil {
		t.Error("expected an error from a cancelled context")
	}
}
