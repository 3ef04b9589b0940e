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

package product

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Source provides the two-dimensional bands of a product, one block of
// rows at a time.
type Source interface {
	// Shape returns the number of pixel rows and columns.
	Shape() (rows, cols int)

	// ReadRows returns the physical values of a band for rows
	// [begin, end), in row-major order. Fill values are NaN.
	ReadRows(band string, begin, end int) ([]float64, error)

	Close() error
}

// NetCDFSource reads bands from a NetCDF-4/HDF5 or classic NetCDF file.
type NetCDFSource struct {
	nc         api.Group
	rows, cols int
	latName    string
	lonName    string
	getters    map[string]api.VarGetter
}

// OpenNetCDF opens the product at path. Its pixel grid is the shape of
// the latitude variable, which must be 2-D, or 1-D together with a 1-D
// longitude variable.
func OpenNetCDF(path, latName, lonName string) (*NetCDFSource, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("product: opening %s: %w", path, err)
	}
	s := &NetCDFSource{
		nc:      nc,
		latName: latName,
		lonName: lonName,
		getters: make(map[string]api.VarGetter),
	}
	lat, err := s.getter(latName)
	if err != nil {
		nc.Close()
		return nil, err
	}
	lon, err := s.getter(lonName)
	if err != nil {
		nc.Close()
		return nil, err
	}
	switch latShape, lonShape := lat.Shape(), lon.Shape(); {
	case len(latShape) == 2:
		s.rows, s.cols = int(latShape[0]), int(latShape[1])
	case len(latShape) == 1 && len(lonShape) == 1:
		s.rows, s.cols = int(latShape[0]), int(lonShape[0])
	default:
		nc.Close()
		return nil, fmt.Errorf("product: %s: unsupported shape %v of %s", path, latShape, latName)
	}
	return s, nil
}

func (s *NetCDFSource) getter(name string) (api.VarGetter, error) {
	if g, ok := s.getters[name]; ok {
		return g, nil
	}
	g, err := s.nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("product: variable %s: %w", name, err)
	}
	s.getters[name] = g
	return g, nil
}

// Shape implements Source.
func (s *NetCDFSource) Shape() (rows, cols int) { return s.rows, s.cols }

// ReadRows implements Source. A 1-D latitude variable is repeated along
// each row and a 1-D longitude variable along each column.
func (s *NetCDFSource) ReadRows(band string, begin, end int) ([]float64, error) {
	g, err := s.getter(band)
	if err != nil {
		return nil, err
	}
	p := packingOf(g.Attributes())
	shape := g.Shape()
	switch {
	case len(shape) == 1 && band == s.lonName:
		raw, err := g.Values()
		if err != nil {
			return nil, fmt.Errorf("product: reading %s: %w", band, err)
		}
		col, err := p.unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("product: %s: %w", band, err)
		}
		out := make([]float64, 0, (end-begin)*len(col))
		for r := begin; r < end; r++ {
			out = append(out, col...)
		}
		return out, nil
	case len(shape) == 1:
		raw, err := g.GetSlice(int64(begin), int64(end))
		if err != nil {
			return nil, fmt.Errorf("product: reading %s: %w", band, err)
		}
		row, err := p.unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("product: %s: %w", band, err)
		}
		out := make([]float64, 0, len(row)*s.cols)
		for _, v := range row {
			for c := 0; c < s.cols; c++ {
				out = append(out, v)
			}
		}
		return out, nil
	case len(shape) == 2 && int(shape[0]) == s.rows && int(shape[1]) == s.cols:
		raw, err := g.GetSlice(int64(begin), int64(end))
		if err != nil {
			return nil, fmt.Errorf("product: reading %s: %w", band, err)
		}
		out, err := p.unpack(raw)
		if err != nil {
			return nil, fmt.Errorf("product: %s: %w", band, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("product: band %s has shape %v, want [%d %d]", band, shape, s.rows, s.cols)
	}
}

// Close closes the file.
func (s *NetCDFSource) Close() error {
	s.nc.Close()
	return nil
}

// packing describes how raw band values map to physical values.
type packing struct {
	scale, offset float64
	fill          float64
	hasFill       bool
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := firstFloat(v); ok {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := firstFloat(v); ok {
			p.offset = f
		}
	}
	if v, ok := attrs.Get("_FillValue"); ok {
		p.fill, p.hasFill = firstFloat(v)
	}
	return p
}

// unpack flattens a 1-D or 2-D numeric array, replacing fill values with
// NaN and applying the scale factor and offset.
func (p packing) unpack(raw interface{}) ([]float64, error) {
	var out []float64
	switch v := raw.(type) {
	case [][]float64:
		out = flatten(v)
	case [][]float32:
		out = flatten(v)
	case [][]int64:
		out = flatten(v)
	case [][]uint64:
		out = flatten(v)
	case [][]int32:
		out = flatten(v)
	case [][]uint32:
		out = flatten(v)
	case [][]int16:
		out = flatten(v)
	case [][]uint16:
		out = flatten(v)
	case [][]int8:
		out = flatten(v)
	case [][]uint8:
		out = flatten(v)
	default:
		var ok bool
		if out, ok = floats(raw); !ok {
			return nil, fmt.Errorf("unsupported data type %T", raw)
		}
	}
	for i, v := range out {
		if p.hasFill && (v == p.fill || math.IsNaN(p.fill) && math.IsNaN(v)) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v*p.scale + p.offset
	}
	return out, nil
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func flatten[T number](v [][]T) []float64 {
	var n int
	for _, row := range v {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range v {
		for _, x := range row {
			out = append(out, float64(x))
		}
	}
	return out
}

func convert[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// floats converts a 1-D numeric slice.
func floats(raw interface{}) ([]float64, bool) {
	switch v := raw.(type) {
	case []float64:
		return convert(v), true
	case []float32:
		return convert(v), true
	case []int64:
		return convert(v), true
	case []uint64:
		return convert(v), true
	case []int32:
		return convert(v), true
	case []uint32:
		return convert(v), true
	case []int16:
		return convert(v), true
	case []uint16:
		return convert(v), true
	case []int8:
		return convert(v), true
	case []uint8:
		return convert(v), true
	}
	return nil, false
}

// firstFloat returns a numeric attribute value, or the first element of
// a numeric attribute array.
func firstFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint16:
		return float64(x), true
	case int8:
		return float64(x), true
	case uint8:
		return float64(x), true
	}
	if f, ok := floats(v); ok && len(f) > 0 {
		return f[0], true
	}
	return 0, false
}
