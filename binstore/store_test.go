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

package binstore

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spatialmodel/binning"
	"github.com/spatialmodel/binning/internal/pgtest"
)

func testContext(t *testing.T) *binning.BinningContext {
	ctx, err := binning.NewBinningContext(18, 1, "", nil, []binning.AggregatorConfig{
		{Type: binning.TypeAverage, VarName: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctx
}

func spatialBin(ctx *binning.BinningContext, index uint64, values ...float32) *binning.SpatialBin {
	m := ctx.BinManager
	b := m.CreateSpatialBin(index)
	for _, v := range values {
		m.AggregateSpatialBin(binning.Observation{Samples: []float32{v}}, b)
	}
	m.CompleteSpatialBin(b)
	return b
}

func testStores(t *testing.T) map[string]Store {
	mem, err := Open("memory", "")
	if err != nil {
		t.Fatal(err)
	}
	sqlite, err := Open("sqlite", filepath.Join(t.TempDir(), "bins.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		mem.Close()
		sqlite.Close()
	})
	return map[string]Store{"memory": mem, "sqlite": sqlite}
}

type group struct {
	index uint64
	bins  []*binning.SpatialBin
}

func collect(t *testing.T, s Store, r binning.IndexRange) []group {
	var out []group
	err := s.Groups(context.Background(), r, func(idx uint64, bins []*binning.SpatialBin) error {
		out = append(out, group{idx, bins})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestStore(t *testing.T) {
	ctx := testContext(t)
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.ForProduct("p1").ConsumeSpatialBins(ctx, []*binning.SpatialBin{
				spatialBin(ctx, 40, 1, 2),
				spatialBin(ctx, 3, 5),
			}); err != nil {
				t.Fatal(err)
			}
			if err := s.ForProduct("p2").ConsumeSpatialBins(ctx, []*binning.SpatialBin{
				spatialBin(ctx, 40, 3),
				spatialBin(ctx, 411, 4),
			}); err != nil {
				t.Fatal(err)
			}

			n, err := s.Count(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if n != 4 {
				t.Errorf("count: have %d, want 4", n)
			}
			products, err := s.Products(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if want := []string{"p1", "p2"}; !reflect.DeepEqual(products, want) {
				t.Errorf("products: have %v, want %v", products, want)
			}

			all := collect(t, s, binning.IndexRange{Start: 0, End: ctx.Grid.NumBins()})
			var indices []uint64
			for _, g := range all {
				indices = append(indices, g.index)
				for _, b := range g.bins {
					if b.Index != g.index {
						t.Errorf("bin %d in group %d", b.Index, g.index)
					}
				}
			}
			if want := []uint64{3, 40, 411}; !reflect.DeepEqual(indices, want) {
				t.Errorf("groups: have %v, want %v", indices, want)
			}
			if len(all[1].bins) != 2 {
				t.Fatalf("group 40 has %d bins", len(all[1].bins))
			}
			var sum float32
			var numObs int
			for _, b := range all[1].bins {
				sum += b.Properties[0]
				numObs += b.NumObs
			}
			if sum != 6 || numObs != 3 {
				t.Errorf("group 40: sum %g, %d observations", sum, numObs)
			}

			part := collect(t, s, binning.IndexRange{Start: 4, End: 411})
			if len(part) != 1 || part[0].index != 40 {
				t.Errorf("range [4, 411): %v", part)
			}
		})
	}
}

func TestStore_callbackError(t *testing.T) {
	ctx := testContext(t)
	stop := errors.New("stop")
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.ConsumeSpatialBins(ctx, []*binning.SpatialBin{spatialBin(ctx, 1, 1), spatialBin(ctx, 2, 1)}); err != nil {
				t.Fatal(err)
			}
			var calls int
			err := s.Groups(context.Background(), binning.IndexRange{Start: 0, End: 10}, func(uint64, []*binning.SpatialBin) error {
				calls++
				return stop
			})
			if !errors.Is(err, stop) {
				t.Errorf("have error %v, want %v", err, stop)
			}
			if calls != 1 {
				t.Errorf("callback called %d times after an error", calls)
			}
			if products, _ := s.Products(context.Background()); len(products) != 0 {
				t.Errorf("unnamed bins listed as products %v", products)
			}
		})
	}
}

func TestStore_reduce(t *testing.T) {
	ctx := testContext(t)
	stores := testStores(t)
	for _, s := range stores {
		for pass, step := range []uint64{13, 7, 5} {
			var bins []*binning.SpatialBin
			for idx := uint64(0); idx < ctx.Grid.NumBins(); idx += step {
				bins = append(bins, spatialBin(ctx, idx, float32(idx%7), float32(pass)))
			}
			if err := s.ConsumeSpatialBins(ctx, bins); err != nil {
				t.Fatal(err)
			}
		}
	}
	binner := binning.TemporalBinner{BinManager: ctx.BinManager}
	p := binning.RowPartitioner{Grid: ctx.Grid, NumPartitions: 4}
	mem, err := binning.ReduceParallel(context.Background(), binner, stores["memory"], p, nil)
	if err != nil {
		t.Fatal(err)
	}
	sql, err := binning.ReduceParallel(context.Background(), binner, stores["sqlite"], p, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Sums of small integers do not depend on the order of the bins in a group.
	if len(mem) == 0 || !reflect.DeepEqual(mem, sql) {
		t.Errorf("memory and sqlite reductions differ: %d and %d bins", len(mem), len(sql))
	}
}

func TestStore_postgres(t *testing.T) {
	dsn := pgtest.SetupTestDB(context.Background(), t)
	s, err := Open(DriverPostgres, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := testContext(t)
	if err := s.ForProduct("p1").ConsumeSpatialBins(ctx, []*binning.SpatialBin{
		spatialBin(ctx, 40, 1, 2),
		spatialBin(ctx, 3, 5),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.ForProduct("p2").ConsumeSpatialBins(ctx, []*binning.SpatialBin{spatialBin(ctx, 40, 3)}); err != nil {
		t.Fatal(err)
	}
	products, err := s.Products(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"p1", "p2"}; !reflect.DeepEqual(products, want) {
		t.Errorf("products: have %v, want %v", products, want)
	}
	groups := collect(t, s, binning.IndexRange{Start: 0, End: ctx.Grid.NumBins()})
	if len(groups) != 2 || groups[0].index != 3 || groups[1].index != 40 || len(groups[1].bins) != 2 {
		t.Errorf("groups: %v", groups)
	}
}

func TestOpen_unknownDriver(t *testing.T) {
	if _, err := Open("oracle", ""); err == nil {
		t.Error("expected an error")
	}
}
