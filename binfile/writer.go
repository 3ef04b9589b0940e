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

// Package binfile reads and writes Level-3 bin files: NetCDF files holding
// a row index of the planetary grid and a sparse list of temporal bins,
// numbered as in SeaDAS bin files.
package binfile

import (
	"fmt"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/binning"
)

// Title is the title attribute of every bin file.
const Title = "Level-3 Binned Data"

// DefaultBufferSize is the number of bin list records written at once.
const DefaultBufferSize = 4096

// earthRadius is the SEAGrid radius in km.
const earthRadius = 6378.145

const dateLayout = "2006-01-02"

// Names of dimensions and fixed variables.
const (
	dimIndex = "bin_index"
	dimList  = "bin_list"

	varRowNum   = "bi_row_num"
	varVSize    = "bi_vsize"
	varHSize    = "bi_hsize"
	varStartNum = "bi_start_num"
	varMax      = "bi_max"

	varBinNum  = "bl_bin_num"
	varNumObs  = "bl_nobs"
	varNumScns = "bl_nscenes"

	featurePrefix = "bl_"
)

// Metadata holds the global attributes of a bin file that do not follow
// from the binning context.
type Metadata struct {
	StartTime, StopTime time.Time
	Region              *binning.Region
	ProductCount        int
	ConfigHash          string
}

// Writer writes bin files.
type Writer struct {
	// BufferSize is the number of bin list records written at once.
	BufferSize int

	Log logrus.FieldLogger
}

// NewWriter returns a Writer with the default buffer size that logs to
// log, or to the standard logger if log is nil.
func NewWriter(log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{BufferSize: DefaultBufferSize, Log: log}
}

// Write creates the file at path and writes the grid index and bins to it.
// bins must be sorted by index. A partially written file is left in place
// if an error occurs.
func (w *Writer) Write(path string, ctx *binning.BinningContext, bins []*binning.TemporalBin, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("binfile: creating bin file: %w", err)
	}
	if err := w.WriteTo(f, ctx, bins, meta); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("binfile: closing bin file: %w", err)
	}
	w.Log.WithFields(logrus.Fields{
		"file": path,
		"bins": len(bins),
	}).Info("binning wrote bin file")
	return nil
}

// WriteTo writes the grid index and bins to rw.
func (w *Writer) WriteTo(rw cdf.ReaderWriterAt, ctx *binning.BinningContext, bins []*binning.TemporalBin, meta Metadata) error {
	for i := 1; i < len(bins); i++ {
		if bins[i].Index <= bins[i-1].Index {
			return fmt.Errorf("binfile: bins are not sorted by index: %d follows %d", bins[i].Index, bins[i-1].Index)
		}
	}
	grid := ctx.Grid
	mgr := ctx.BinManager
	numRows := grid.NumRows()
	features := mgr.TemporalFeatureNames()
	fills := mgr.TemporalFillValues()

	// A dimension of length 0 would be the record dimension.
	listLen := len(bins)
	if listLen == 0 {
		listLen = 1
	}
	h := cdf.NewHeader([]string{dimIndex, dimList}, []int{numRows, listLen})

	h.AddAttribute("", "title", Title)
	h.AddAttribute("", "super_sampling", []int32{int32(ctx.SuperSampling)})
	if meta.Region != nil {
		h.AddAttribute("", "region", meta.Region.String())
	}
	if !meta.StartTime.IsZero() {
		h.AddAttribute("", "start_time", meta.StartTime.UTC().Format(dateLayout))
	}
	if !meta.StopTime.IsZero() {
		h.AddAttribute("", "stop_time", meta.StopTime.UTC().Format(dateLayout))
	}
	h.AddAttribute("", "product_count", []int32{int32(meta.ProductCount)})
	if meta.ConfigHash != "" {
		h.AddAttribute("", "config_hash", meta.ConfigHash)
	}
	h.AddAttribute("", "bin_list_count", []int32{int32(len(bins))})
	h.AddAttribute("", "SEAGrid_bins", []int32{int32(2 * numRows)})
	h.AddAttribute("", "SEAGrid_radius", []float64{earthRadius})
	h.AddAttribute("", "SEAGrid_max_north", []float64{90})
	h.AddAttribute("", "SEAGrid_max_south", []float64{-90})
	h.AddAttribute("", "SEAGrid_seam_lon", []float64{-180})

	h.AddVariable(varRowNum, []string{dimIndex}, []int32{0})
	h.AddVariable(varVSize, []string{dimIndex}, []float64{0})
	h.AddVariable(varHSize, []string{dimIndex}, []float64{0})
	h.AddVariable(varStartNum, []string{dimIndex}, []int32{0})
	h.AddVariable(varMax, []string{dimIndex}, []int32{0})

	h.AddVariable(varBinNum, []string{dimList}, []int32{0})
	h.AddVariable(varNumObs, []string{dimList}, []int32{0})
	h.AddVariable(varNumScns, []string{dimList}, []int32{0})
	for i, name := range features {
		v := featurePrefix + name
		h.AddVariable(v, []string{dimList}, []float32{0})
		h.AddAttribute(v, "_FillValue", []float32{fills[i]})
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("binfile: invalid bin file header: %v", err)
	}

	cf, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("binfile: writing bin file header: %w", err)
	}
	if err := writeIndex(cf, binning.NewSeadasGrid(grid)); err != nil {
		return err
	}
	if err := w.writeList(cf, ctx, bins, features); err != nil {
		return err
	}
	if f, ok := rw.(*os.File); ok {
		if err := cdf.UpdateNumRecs(f); err != nil {
			return fmt.Errorf("binfile: %w", err)
		}
	}
	return nil
}

// writeIndex writes one record per grid row, in SeaDAS row order.
func writeIndex(f *cdf.File, seadas *binning.SeadasGrid) error {
	n := seadas.NumRows()
	rowNum := make([]int32, n)
	vsize := make([]float64, n)
	hsize := make([]float64, n)
	startNum := make([]int32, n)
	max := make([]int32, n)
	for r := 0; r < n; r++ {
		cols := seadas.NumCols(r)
		rowNum[r] = int32(r)
		vsize[r] = 180 / float64(n)
		hsize[r] = 360 / float64(cols)
		startNum[r] = int32(seadas.FirstBinIndex(r))
		max[r] = int32(cols)
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{varRowNum, rowNum},
		{varVSize, vsize},
		{varHSize, hsize},
		{varStartNum, startNum},
		{varMax, max},
	} {
		if _, err := f.Writer(v.name, []int{0}, []int{n}).Write(v.data); err != nil {
			return fmt.Errorf("binfile: writing %s: %w", v.name, err)
		}
	}
	return nil
}

// writeList writes the bins in batches of w.BufferSize records.
func (w *Writer) writeList(f *cdf.File, ctx *binning.BinningContext, bins []*binning.TemporalBin, features []string) error {
	seadas := binning.NewSeadasGrid(ctx.Grid)
	size := w.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	binNum := make([]int32, 0, size)
	numObs := make([]int32, 0, size)
	numScenes := make([]int32, 0, size)
	values := make([][]float32, len(features))
	for i := range values {
		values[i] = make([]float32, 0, size)
	}

	start := 0
	flush := func() error {
		n := len(binNum)
		if n == 0 {
			return nil
		}
		begin, end := []int{start}, []int{start + n}
		for _, v := range []struct {
			name string
			data []int32
		}{
			{varBinNum, binNum},
			{varNumObs, numObs},
			{varNumScns, numScenes},
		} {
			if _, err := f.Writer(v.name, begin, end).Write(v.data); err != nil {
				return fmt.Errorf("binfile: writing %s: %w", v.name, err)
			}
		}
		for i, name := range features {
			if _, err := f.Writer(featurePrefix+name, begin, end).Write(values[i]); err != nil {
				return fmt.Errorf("binfile: writing %s%s: %w", featurePrefix, name, err)
			}
			values[i] = values[i][:0]
		}
		start += n
		binNum, numObs, numScenes = binNum[:0], numObs[:0], numScenes[:0]
		return nil
	}

	for _, b := range bins {
		binNum = append(binNum, int32(seadas.ConvertBinIndex(b.Index)))
		numObs = append(numObs, int32(b.NumObs))
		numScenes = append(numScenes, int32(b.NumPasses))
		for i := range features {
			values[i] = append(values[i], b.Properties[i])
		}
		if len(binNum) == size {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
