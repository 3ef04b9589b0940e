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
	"testing"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}

func TestNewSEAGrid_invalid(t *testing.T) {
	for _, n := range []int{-2, 0, 1, 2, 3, 7} {
		if _, err := NewSEAGrid(n); err == nil {
			t.Errorf("%d rows: expected an error", n)
		}
	}
	if _, err := NewSEAGrid(4); err != nil {
		t.Errorf("4 rows: %v", err)
	}
}

func TestSEAGrid_numBins(t *testing.T) {
	g, err := NewSEAGrid(DefaultNumRows)
	if err != nil {
		t.Fatal(err)
	}
	if g.NumBins() != 5940422 {
		t.Errorf("number of bins: have %d, want 5940422", g.NumBins())
	}
	if g.NumCols(0) != 3 || g.NumCols(DefaultNumRows-1) != 3 {
		t.Errorf("polar rows: have %d and %d columns, want 3", g.NumCols(0), g.NumCols(DefaultNumRows-1))
	}
	if g.NumCols(DefaultNumRows/2) != 2*DefaultNumRows {
		t.Errorf("equator row: have %d columns, want %d", g.NumCols(DefaultNumRows/2), 2*DefaultNumRows)
	}
	var sum uint64
	for row := 0; row < g.NumRows(); row++ {
		if g.FirstBinIndex(row) != sum {
			t.Fatalf("row %d: first bin %d, want %d", row, g.FirstBinIndex(row), sum)
		}
		sum += uint64(g.NumCols(row))
	}
}

func TestSEAGrid_rowMonotonic(t *testing.T) {
	g, err := NewSEAGrid(180)
	if err != nil {
		t.Fatal(err)
	}
	prev := -1
	for lat := 90.0; lat >= -90; lat -= 0.01 {
		idx := g.BinIndex(lat, 12.3)
		row := g.RowIndex(idx)
		if row < prev {
			t.Fatalf("lat %g: row %d is less than previous row %d", lat, row, prev)
		}
		if row < 0 || row >= g.NumRows() {
			t.Fatalf("lat %g: row %d out of range", lat, row)
		}
		prev = row
	}
	if r := g.RowIndex(g.BinIndex(90, 0)); r != 0 {
		t.Errorf("north pole row %d", r)
	}
	if r := g.RowIndex(g.BinIndex(-90, 0)); r != g.NumRows()-1 {
		t.Errorf("south pole row %d", r)
	}
}

func TestSEAGrid_injectiveWithinRow(t *testing.T) {
	g, err := NewSEAGrid(36)
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < g.NumRows(); row++ {
		lat := g.CenterLat(row)
		n := g.NumCols(row)
		seen := make(map[uint64]bool)
		prev := uint64(0)
		for col := 0; col < n; col++ {
			lon := -180 + 360*(float64(col)+0.5)/float64(n)
			idx := g.BinIndex(lat, lon)
			if seen[idx] {
				t.Fatalf("row %d col %d: duplicate index %d", row, col, idx)
			}
			if col > 0 && idx <= prev {
				t.Fatalf("row %d col %d: index %d not increasing", row, col, idx)
			}
			if idx != g.FirstBinIndex(row)+uint64(col) {
				t.Fatalf("row %d col %d: index %d", row, col, idx)
			}
			seen[idx] = true
			prev = idx
		}
	}
}

func TestSEAGrid_centerLatLon(t *testing.T) {
	g, err := NewSEAGrid(18)
	if err != nil {
		t.Fatal(err)
	}
	for idx := uint64(0); idx < g.NumBins(); idx++ {
		lat, lon := g.CenterLatLon(idx)
		if back := g.BinIndex(lat, lon); back != idx {
			t.Errorf("bin %d: center (%g, %g) maps to bin %d", idx, lat, lon, back)
		}
		b := g.CellBounds(idx)
		if lon < b.Min.X || lon > b.Max.X || lat < b.Min.Y || lat > b.Max.Y {
			t.Errorf("bin %d: center (%g, %g) outside bounds %v", idx, lat, lon, b)
		}
	}
	lat, lon := g.CenterLatLon(0)
	if absDifferent(lat, 85, 1e-10) {
		t.Errorf("first bin latitude %g", lat)
	}
	if lon <= -180 || lon >= 180 {
		t.Errorf("first bin longitude %g", lon)
	}
}

func TestSEAGrid_clamp(t *testing.T) {
	g, err := NewSEAGrid(18)
	if err != nil {
		t.Fatal(err)
	}
	row := g.RowIndex(g.BinIndex(5, 0))
	if idx := g.BinIndex(5, 180); idx != g.FirstBinIndex(row)+uint64(g.NumCols(row)-1) {
		t.Errorf("lon 180: bin %d", idx)
	}
	if idx := g.BinIndex(5, -180); idx != g.FirstBinIndex(row) {
		t.Errorf("lon -180: bin %d", idx)
	}
	if idx := g.BinIndex(100, 0); g.RowIndex(idx) != 0 {
		t.Errorf("lat 100: bin %d", idx)
	}
}

func TestSEAGrid_outOfRangePanics(t *testing.T) {
	g, err := NewSEAGrid(18)
	if err != nil {
		t.Fatal(err)
	}
	for name, f := range map[string]func(){
		"row -1":    func() { g.NumCols(-1) },
		"row 18":    func() { g.CenterLat(18) },
		"bin index": func() { g.RowIndex(g.NumBins()) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			f()
		})
	}
}

func TestSeadasGrid(t *testing.T) {
	g, err := NewSEAGrid(18)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSeadasGrid(g)
	if s.FirstBinIndex(0) != 1 {
		t.Errorf("first SeaDAS bin number %d", s.FirstBinIndex(0))
	}
	// The southernmost base row is the first SeaDAS row.
	if n := s.ConvertBinIndex(g.FirstBinIndex(17)); n != 1 {
		t.Errorf("south-west bin number %d", n)
	}
	if s.NumCols(0) != g.NumCols(17) {
		t.Errorf("columns: have %d, want %d", s.NumCols(0), g.NumCols(17))
	}
	last := s.FirstBinIndex(17) + uint64(s.NumCols(17)) - 1
	if last != g.NumBins() {
		t.Errorf("last SeaDAS bin number %d, want %d", last, g.NumBins())
	}
	for idx := uint64(0); idx < g.NumBins(); idx++ {
		n := s.ConvertBinIndex(idx)
		back, ok := s.RevertBinIndex(n)
		if !ok || back != idx {
			t.Fatalf("bin %d: SeaDAS number %d reverts to %d (%v)", idx, n, back, ok)
		}
	}
	if _, ok := s.RevertBinIndex(0); ok {
		t.Error("bin number 0 should not exist")
	}
	if _, ok := s.RevertBinIndex(g.NumBins() + 1); ok {
		t.Error("bin number past the end should not exist")
	}
}
