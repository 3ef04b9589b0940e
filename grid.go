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

	"github.com/ctessum/geom"
)

// DefaultNumRows is the number of grid rows used when none is configured.
// It gives bins of about 9.28 km edge length.
const DefaultNumRows = 2160

// PlanetaryGrid maps geographic positions to bin indices. Bin indices
// increase with row and then with column, and rows are numbered
// from north to south.
type PlanetaryGrid interface {
	// NumRows returns the number of grid rows.
	NumRows() int

	// NumCols returns the number of columns in the given row.
	NumCols(row int) int

	// NumBins returns the total number of bins in the grid.
	NumBins() uint64

	// FirstBinIndex returns the index of the westernmost bin in the given row.
	FirstBinIndex(row int) uint64

	// BinIndex returns the index of the bin containing the given position.
	BinIndex(lat, lon float64) uint64

	// RowIndex returns the row containing the given bin.
	RowIndex(binIndex uint64) int

	// CenterLat returns the latitude of the center of the given row.
	CenterLat(row int) float64

	// CenterLatLon returns the position of the center of the given bin.
	CenterLatLon(binIndex uint64) (lat, lon float64)
}

// SEAGrid is the integerized sinusoidal equal-area grid used by
// SeaWiFS and SeaDAS Level-3 products. All bins have approximately
// the same area.
type SEAGrid struct {
	numRows  int
	latBin   []float64
	baseBin  []uint64
	numBin   []int
	totalBin uint64
}

// NewSEAGrid creates a grid with the given number of rows, which must
// be an even number greater than 2.
func NewSEAGrid(numRows int) (*SEAGrid, error) {
	if numRows <= 2 {
		return nil, fmt.Errorf("binning: number of grid rows must be greater than 2 but is %d", numRows)
	}
	if numRows%2 != 0 {
		return nil, fmt.Errorf("binning: number of grid rows must be even but is %d", numRows)
	}
	g := &SEAGrid{
		numRows: numRows,
		latBin:  make([]float64, numRows),
		baseBin: make([]uint64, numRows),
		numBin:  make([]int, numRows),
	}
	var base uint64
	for row := 0; row < numRows; row++ {
		lat := 90 - (float64(row)+0.5)*180/float64(numRows)
		n := int(2*float64(numRows)*math.Cos(lat*math.Pi/180) + 0.5)
		if n < 1 {
			n = 1
		}
		g.latBin[row] = lat
		g.numBin[row] = n
		g.baseBin[row] = base
		base += uint64(n)
	}
	g.totalBin = base
	return g, nil
}

// NumRows implements PlanetaryGrid.
func (g *SEAGrid) NumRows() int { return g.numRows }

// NumCols implements PlanetaryGrid.
func (g *SEAGrid) NumCols(row int) int {
	g.checkRow(row)
	return g.numBin[row]
}

// NumBins implements PlanetaryGrid.
func (g *SEAGrid) NumBins() uint64 { return g.totalBin }

// FirstBinIndex implements PlanetaryGrid.
func (g *SEAGrid) FirstBinIndex(row int) uint64 {
	g.checkRow(row)
	return g.baseBin[row]
}

// CenterLat implements PlanetaryGrid.
func (g *SEAGrid) CenterLat(row int) float64 {
	g.checkRow(row)
	return g.latBin[row]
}

// BinIndex implements PlanetaryGrid.
func (g *SEAGrid) BinIndex(lat, lon float64) uint64 {
	row := g.rowOfLat(lat)
	return g.baseBin[row] + uint64(g.colOfLon(lon, row))
}

// RowIndex implements PlanetaryGrid.
func (g *SEAGrid) RowIndex(binIndex uint64) int {
	if binIndex >= g.totalBin {
		panic(fmt.Errorf("binning: bin index %d out of range [0, %d)", binIndex, g.totalBin))
	}
	// First row whose base index is beyond binIndex, minus one.
	return sort.Search(g.numRows, func(i int) bool { return g.baseBin[i] > binIndex }) - 1
}

// CenterLatLon implements PlanetaryGrid.
func (g *SEAGrid) CenterLatLon(binIndex uint64) (lat, lon float64) {
	row := g.RowIndex(binIndex)
	col := binIndex - g.baseBin[row]
	return g.latBin[row], 360*(float64(col)+0.5)/float64(g.numBin[row]) - 180
}

// CellBounds returns the longitude/latitude rectangle covered by the given bin.
func (g *SEAGrid) CellBounds(binIndex uint64) *geom.Bounds {
	row := g.RowIndex(binIndex)
	col := float64(binIndex - g.baseBin[row])
	width := 360 / float64(g.numBin[row])
	height := 180 / float64(g.numRows)
	return &geom.Bounds{
		Min: geom.Point{X: -180 + col*width, Y: g.latBin[row] - height/2},
		Max: geom.Point{X: -180 + (col+1)*width, Y: g.latBin[row] + height/2},
	}
}

func (g *SEAGrid) rowOfLat(lat float64) int {
	if lat >= 90 {
		return 0
	}
	if lat <= -90 {
		return g.numRows - 1
	}
	row := (g.numRows - 1) - int((90+lat)*float64(g.numRows)/180)
	if row < 0 {
		return 0
	}
	if row >= g.numRows {
		return g.numRows - 1
	}
	return row
}

func (g *SEAGrid) colOfLon(lon float64, row int) int {
	n := g.numBin[row]
	if lon <= -180 {
		return 0
	}
	if lon >= 180 {
		return n - 1
	}
	col := int((180 + lon) * float64(n) / 360)
	if col < 0 {
		return 0
	}
	if col >= n {
		return n - 1
	}
	return col
}

func (g *SEAGrid) checkRow(row int) {
	if row < 0 || row >= g.numRows {
		panic(fmt.Errorf("binning: row %d out of range [0, %d)", row, g.numRows))
	}
}
