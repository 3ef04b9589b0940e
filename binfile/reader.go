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

package binfile

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/binning"
)

// IndexRecord describes one grid row of a bin file, in SeaDAS numbering.
type IndexRecord struct {
	RowNum   int
	VSize    float64
	HSize    float64
	StartNum int
	Max      int
}

// Reader reads a bin file written by Writer.
type Reader struct {
	cdf.File
	grid     *binning.SEAGrid
	seadas   *binning.SeadasGrid
	features []string
	count    int
}

// Open reads the header of a bin file.
func Open(rw cdf.ReaderWriterAt) (*Reader, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("binfile: %w", err)
	}
	if title, _ := f.Header.GetAttribute("", "title").(string); title != Title {
		return nil, fmt.Errorf("binfile: not a bin file: title is %q", title)
	}
	numRows := f.Header.Lengths(varRowNum)[0]
	grid, err := binning.NewSEAGrid(numRows)
	if err != nil {
		return nil, fmt.Errorf("binfile: %w", err)
	}
	r := &Reader{
		File:   *f,
		grid:   grid,
		seadas: binning.NewSeadasGrid(grid),
		count:  f.Header.Lengths(varBinNum)[0],
	}
	if c, ok := f.Header.GetAttribute("", "bin_list_count").([]int32); ok {
		r.count = int(c[0])
	}
	for _, v := range f.Header.Variables() {
		switch v {
		case varBinNum, varNumObs, varNumScns:
			continue
		}
		if strings.HasPrefix(v, featurePrefix) {
			r.features = append(r.features, strings.TrimPrefix(v, featurePrefix))
		}
	}
	return r, nil
}

// Grid returns the planetary grid of the file.
func (r *Reader) Grid() *binning.SEAGrid { return r.grid }

// NumRows returns the number of grid rows.
func (r *Reader) NumRows() int { return r.grid.NumRows() }

// NumBins returns the number of bins in the file.
func (r *Reader) NumBins() int { return r.count }

// FeatureNames returns the names of the temporal features stored per bin.
func (r *Reader) FeatureNames() []string { return r.features }

// FillValue returns the fill value of a feature, or NaN if none is set.
func (r *Reader) FillValue(feature string) float32 {
	if v, ok := r.Header.GetAttribute(featurePrefix+feature, "_FillValue").([]float32); ok && len(v) > 0 {
		return v[0]
	}
	return float32(math.NaN())
}

// Attribute returns a global attribute: a string, or the first element of
// a numeric attribute. It returns nil if the attribute does not exist.
func (r *Reader) Attribute(name string) interface{} {
	switch v := r.Header.GetAttribute("", name).(type) {
	case string:
		return v
	case []int32:
		return v[0]
	case []float64:
		return v[0]
	case []float32:
		return v[0]
	default:
		return v
	}
}

// IndexRecords returns the row index of the file.
func (r *Reader) IndexRecords() ([]IndexRecord, error) {
	n := r.grid.NumRows()
	rowNum, err := r.readInt32(varRowNum, 0, n)
	if err != nil {
		return nil, err
	}
	vsize, err := r.readFloat64(varVSize, n)
	if err != nil {
		return nil, err
	}
	hsize, err := r.readFloat64(varHSize, n)
	if err != nil {
		return nil, err
	}
	startNum, err := r.readInt32(varStartNum, 0, n)
	if err != nil {
		return nil, err
	}
	max, err := r.readInt32(varMax, 0, n)
	if err != nil {
		return nil, err
	}
	out := make([]IndexRecord, n)
	for i := range out {
		out[i] = IndexRecord{
			RowNum:   int(rowNum[i]),
			VSize:    vsize[i],
			HSize:    hsize[i],
			StartNum: int(startNum[i]),
			Max:      int(max[i]),
		}
	}
	return out, nil
}

// Bins reads all bins. Bin indices are converted back from SeaDAS
// numbering to the planetary grid.
func (r *Reader) Bins() ([]*binning.TemporalBin, error) {
	n := r.count
	binNum, err := r.readInt32(varBinNum, 0, n)
	if err != nil {
		return nil, err
	}
	numObs, err := r.readInt32(varNumObs, 0, n)
	if err != nil {
		return nil, err
	}
	numScenes, err := r.readInt32(varNumScns, 0, n)
	if err != nil {
		return nil, err
	}
	bins := make([]*binning.TemporalBin, n)
	for i := range bins {
		idx, ok := r.seadas.RevertBinIndex(uint64(binNum[i]))
		if !ok {
			return nil, fmt.Errorf("binfile: invalid bin number %d in record %d", binNum[i], i)
		}
		bins[i] = binning.NewTemporalBin(idx, len(r.features))
		bins[i].NumObs = int(numObs[i])
		bins[i].NumPasses = int(numScenes[i])
	}
	for j, name := range r.features {
		values, err := r.readFloat32(featurePrefix+name, n)
		if err != nil {
			return nil, err
		}
		for i, b := range bins {
			b.Properties[j] = values[i]
		}
	}
	return bins, nil
}

func (r *Reader) readInt32(v string, start, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	rr := r.File.Reader(v, []int{start}, []int{start + n})
	buf := rr.Zero(n)
	if _, err := rr.Read(buf); err != nil {
		return nil, fmt.Errorf("binfile: reading %s: %w", v, err)
	}
	return buf.([]int32), nil
}

func (r *Reader) readFloat32(v string, n int) ([]float32, error) {
	if n == 0 {
		return nil, nil
	}
	rr := r.File.Reader(v, []int{0}, []int{n})
	buf := rr.Zero(n)
	if _, err := rr.Read(buf); err != nil {
		return nil, fmt.Errorf("binfile: reading %s: %w", v, err)
	}
	return buf.([]float32), nil
}

func (r *Reader) readFloat64(v string, n int) ([]float64, error) {
	rr := r.File.Reader(v, []int{0}, []int{n})
	buf := rr.Zero(n)
	if _, err := rr.Read(buf); err != nil {
		return nil, fmt.Errorf("binfile: reading %s: %w", v, err)
	}
	return buf.([]float64), nil
}
