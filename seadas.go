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

// SeadasGrid translates the rows and bins of a PlanetaryGrid into the
// numbering used by SeaDAS bin files: rows are counted from south to
// north and bin numbers start at 1.
type SeadasGrid struct {
	base     PlanetaryGrid
	startNum []uint64
}

// NewSeadasGrid wraps the given grid.
func NewSeadasGrid(base PlanetaryGrid) *SeadasGrid {
	n := base.NumRows()
	s := &SeadasGrid{
		base:     base,
		startNum: make([]uint64, n),
	}
	start := uint64(1)
	for r := 0; r < n; r++ {
		s.startNum[r] = start
		start += uint64(base.NumCols(s.ConvertRowIndex(r)))
	}
	return s
}

// NumRows returns the number of rows.
func (s *SeadasGrid) NumRows() int { return s.base.NumRows() }

// ConvertRowIndex converts a base grid row into a SeaDAS row and back.
func (s *SeadasGrid) ConvertRowIndex(row int) int {
	return s.base.NumRows() - 1 - row
}

// NumCols returns the number of columns of the given SeaDAS row.
func (s *SeadasGrid) NumCols(seadasRow int) int {
	return s.base.NumCols(s.ConvertRowIndex(seadasRow))
}

// FirstBinIndex returns the 1-based number of the first bin of the given
// SeaDAS row.
func (s *SeadasGrid) FirstBinIndex(seadasRow int) uint64 {
	return s.startNum[seadasRow]
}

// ConvertBinIndex converts a base grid bin index into a SeaDAS bin number.
func (s *SeadasGrid) ConvertBinIndex(binIndex uint64) uint64 {
	row := s.base.RowIndex(binIndex)
	col := binIndex - s.base.FirstBinIndex(row)
	return s.startNum[s.ConvertRowIndex(row)] + col
}

// RevertBinIndex converts a SeaDAS bin number into a base grid bin index.
// It returns false if the number is not part of the grid.
func (s *SeadasGrid) RevertBinIndex(binNum uint64) (uint64, bool) {
	n := len(s.startNum)
	if n == 0 || binNum < 1 {
		return 0, false
	}
	// startNum increases with the SeaDAS row.
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.startNum[mid] <= binNum {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	col := binNum - s.startNum[lo]
	if col >= uint64(s.NumCols(lo)) {
		return 0, false
	}
	return s.base.FirstBinIndex(s.ConvertRowIndex(lo)) + col, true
}
