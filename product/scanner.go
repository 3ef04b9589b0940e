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

// Package product reads observations from satellite products and feeds
// them to a spatial binner.
package product

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/binning"
)

// DefaultSliceHeight is the number of pixel rows per observation slice.
const DefaultSliceHeight = 64

// Default names of the geolocation bands.
const (
	DefaultLatName = "lat"
	DefaultLonName = "lon"
)

// Options configure a Scanner.
type Options struct {
	// SliceHeight is the number of pixel rows per slice.
	SliceHeight int

	// SuperSampling is the number of sub-pixel steps per pixel side.
	SuperSampling int

	// VariableContext lists the variables that make up each
	// observation. A variable without an expression reads the band of
	// the same name.
	VariableContext *binning.VariableContext

	// Region, if set, drops observations outside of it.
	Region *binning.Region

	LatName, LonName string

	Log logrus.FieldLogger
}

func (o *Options) setDefaults() {
	if o.SliceHeight <= 0 {
		o.SliceHeight = DefaultSliceHeight
	}
	if o.SuperSampling < 1 {
		o.SuperSampling = 1
	}
	if o.LatName == "" {
		o.LatName = DefaultLatName
	}
	if o.LonName == "" {
		o.LonName = DefaultLonName
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Scanner iterates over the observations of a product in slices of
// whole pixel rows, top to bottom.
type Scanner struct {
	src        Source
	opts       Options
	rows, cols int

	vars  []*expression
	mask  *expression
	bands []string

	row   int
	slice int
	obs   []binning.Observation
	err   error
}

// Open opens a NetCDF product.
func Open(path string, opts Options) (*Scanner, error) {
	opts.setDefaults()
	src, err := OpenNetCDF(path, opts.LatName, opts.LonName)
	if err != nil {
		return nil, err
	}
	s, err := NewScanner(src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return s, nil
}

// NewScanner returns a Scanner over src. It fails if an expression is
// invalid.
func NewScanner(src Source, opts Options) (*Scanner, error) {
	opts.setDefaults()
	if opts.VariableContext == nil {
		return nil, fmt.Errorf("product: no variables configured")
	}
	s := &Scanner{src: src, opts: opts}
	s.rows, s.cols = src.Shape()
	used := make(map[string]bool)
	for _, v := range opts.VariableContext.Variables() {
		e := bandExpression(v.Name)
		if v.Expr != "" {
			var err error
			if e, err = compile(v.Expr); err != nil {
				return nil, err
			}
		}
		s.vars = append(s.vars, e)
		for _, b := range e.bands {
			used[b] = true
		}
	}
	if m := opts.VariableContext.MaskExpr; m != "" {
		var err error
		if s.mask, err = compile(m); err != nil {
			return nil, err
		}
		for _, b := range s.mask.bands {
			used[b] = true
		}
	}
	for _, b := range []string{opts.LatName, opts.LonName} {
		delete(used, b)
	}
	for b := range used {
		s.bands = append(s.bands, b)
	}
	return s, nil
}

// Scan reads the next slice. It returns false when all rows have been
// read or an error occurred.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.row >= s.rows {
		return false
	}
	end := s.row + s.opts.SliceHeight
	if end > s.rows {
		end = s.rows
	}
	obs, err := s.readSlice(s.row, end)
	if err != nil {
		s.err = err
		return false
	}
	s.opts.Log.WithFields(logrus.Fields{
		"slice":        s.slice,
		"rows":         fmt.Sprintf("[%d, %d)", s.row, end),
		"observations": len(obs),
	}).Debug("binning read slice")
	s.obs = obs
	s.row = end
	s.slice++
	return true
}

// Observations returns the observations read by the last call to Scan.
func (s *Scanner) Observations() []binning.Observation { return s.obs }

// Err returns the first error encountered by Scan.
func (s *Scanner) Err() error { return s.err }

// Close closes the underlying source.
func (s *Scanner) Close() error { return s.src.Close() }

// NumRows returns the number of pixel rows of the product.
func (s *Scanner) NumRows() int { return s.rows }

func (s *Scanner) readSlice(begin, end int) ([]binning.Observation, error) {
	bands := make(map[string][]float64, len(s.bands))
	for _, b := range s.bands {
		data, err := s.src.ReadRows(b, begin, end)
		if err != nil {
			return nil, err
		}
		bands[b] = data
	}
	geo, err := s.readGeo(begin, end)
	if err != nil {
		return nil, err
	}

	ss := s.opts.SuperSampling
	params := make(govaluate.MapParameters, len(s.bands))
	var out []binning.Observation
	for y := begin; y < end; y++ {
		for x := 0; x < s.cols; x++ {
			i := (y-begin)*s.cols + x
			for _, b := range s.bands {
				params[b] = bands[b][i]
			}
			if s.mask != nil {
				ok, err := s.mask.valid(params)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			samples := make([]float32, len(s.vars))
			for j, e := range s.vars {
				v, err := e.eval(params)
				if err != nil {
					return nil, err
				}
				samples[j] = float32(v)
			}
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					fy := float64(y) + float64(2*sy+1)/float64(2*ss) - 0.5
					fx := float64(x) + float64(2*sx+1)/float64(2*ss) - 0.5
					lat, lon := geo.at(fy, fx)
					if math.IsNaN(lat) || math.IsNaN(lon) {
						continue
					}
					if s.opts.Region != nil && !s.opts.Region.Contains(lat, lon) {
						continue
					}
					out = append(out, binning.Observation{Lat: lat, Lon: lon, Samples: samples})
				}
			}
		}
	}
	return out, nil
}

// geolocation holds latitudes and longitudes of pixel centres for a block
// of rows, with one extra row on either side where available.
type geolocation struct {
	lat, lon   []float64
	first      int
	rows, cols int
}

func (s *Scanner) readGeo(begin, end int) (*geolocation, error) {
	first, last := begin, end
	if s.opts.SuperSampling > 1 {
		if first > 0 {
			first--
		}
		if last < s.rows {
			last++
		}
	}
	lat, err := s.src.ReadRows(s.opts.LatName, first, last)
	if err != nil {
		return nil, err
	}
	lon, err := s.src.ReadRows(s.opts.LonName, first, last)
	if err != nil {
		return nil, err
	}
	return &geolocation{lat: lat, lon: lon, first: first, rows: last - first, cols: s.cols}, nil
}

// at returns the location at fractional pixel coordinates, with pixel
// centres at whole numbers, by bilinear interpolation between the four
// surrounding pixel centres.
func (g *geolocation) at(fy, fx float64) (lat, lon float64) {
	y := fy - float64(g.first)
	if y == math.Trunc(y) && fx == math.Trunc(fx) {
		i := int(y)*g.cols + int(fx)
		return g.lat[i], g.lon[i]
	}
	y0, ty := cell(y, g.rows)
	x0, tx := cell(fx, g.cols)
	y1, x1 := min(y0+1, g.rows-1), min(x0+1, g.cols-1)
	i00, i01 := y0*g.cols+x0, y0*g.cols+x1
	i10, i11 := y1*g.cols+x0, y1*g.cols+x1
	lat = bilinear(g.lat[i00], g.lat[i01], g.lat[i10], g.lat[i11], ty, tx)

	// Longitudes are unwrapped around the first corner so that cells
	// crossing the antimeridian interpolate the short way.
	ref := g.lon[i00]
	lon = bilinear(ref, unwrap(g.lon[i01], ref), unwrap(g.lon[i10], ref), unwrap(g.lon[i11], ref), ty, tx)
	if lon >= 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return lat, lon
}

// cell returns the lower pixel index of the interpolation cell holding
// v and the fraction along it. Positions outside the outer pixel centres
// extrapolate from the outermost cell.
func cell(v float64, n int) (int, float64) {
	if n < 2 {
		return 0, 0
	}
	i := int(math.Floor(v))
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}
	return i, v - float64(i)
}

func bilinear(v00, v01, v10, v11, ty, tx float64) float64 {
	top := v00 + (v01-v00)*tx
	bottom := v10 + (v11-v10)*tx
	return top + (bottom-top)*ty
}

func unwrap(lon, ref float64) float64 {
	switch {
	case lon-ref > 180:
		return lon - 360
	case ref-lon > 180:
		return lon + 360
	}
	return lon
}

// ProcessProduct feeds every slice of s to binner and completes the
// binner. It returns the number of observations read and the error that
// stopped the scan, if any. Faults of the binner do not stop processing
// and are reported by binner.Errors.
func ProcessProduct(s *Scanner, binner *binning.SpatialBinner) (int64, error) {
	var n int64
	for s.Scan() {
		obs := s.Observations()
		n += int64(len(obs))
		binner.ProcessObservationSlice(obs...)
	}
	binner.Complete()
	return n, s.Err()
}
