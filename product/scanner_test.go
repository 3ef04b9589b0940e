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
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/binning"
	"gonum.org/v1/gonum/floats"
)

// gridSource is a product whose bands are computed from pixel positions.
type gridSource struct {
	rows, cols int
	bands      map[string]func(y, x int) float64
	closed     bool
}

func (g *gridSource) Shape() (int, int) { return g.rows, g.cols }

func (g *gridSource) ReadRows(band string, begin, end int) ([]float64, error) {
	f, ok := g.bands[band]
	if !ok {
		return nil, os.ErrNotExist
	}
	out := make([]float64, 0, (end-begin)*g.cols)
	for y := begin; y < end; y++ {
		for x := 0; x < g.cols; x++ {
			out = append(out, f(y, x))
		}
	}
	return out, nil
}

func (g *gridSource) Close() error {
	g.closed = true
	return nil
}

func newGridSource(rows, cols int) *gridSource {
	return &gridSource{
		rows: rows,
		cols: cols,
		bands: map[string]func(y, x int) float64{
			"lat": func(y, x int) float64 { return 10 - float64(y) },
			"lon": func(y, x int) float64 { return 20 + float64(x) },
			"a":   func(y, x int) float64 { return float64(y*cols + x) },
		},
	}
}

func variables(maskExpr string, vars ...binning.Variable) *binning.VariableContext {
	vc := binning.NewVariableContext(maskExpr)
	for _, v := range vars {
		vc.DefineVariable(v.Name, v.Expr)
	}
	return vc
}

func scanAll(t *testing.T, s *Scanner) [][]binning.Observation {
	var slices [][]binning.Observation
	for s.Scan() {
		slices = append(slices, s.Observations())
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	return slices
}

func TestScanner_slices(t *testing.T) {
	s, err := NewScanner(newGridSource(5, 3), Options{
		SliceHeight:     2,
		VariableContext: variables("", binning.Variable{Name: "a"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	slices := scanAll(t, s)
	if len(slices) != 3 {
		t.Fatalf("have %d slices, want 3", len(slices))
	}
	var a float32
	for i, want := range []int{6, 6, 3} {
		if len(slices[i]) != want {
			t.Errorf("slice %d: have %d observations, want %d", i, len(slices[i]), want)
		}
		for _, o := range slices[i] {
			if o.Samples[0] != a {
				t.Errorf("slice %d: observation %g out of scan order, want %g", i, o.Samples[0], a)
			}
			a++
		}
	}
	if o := slices[1][0]; o.Lat != 8 || o.Lon != 20 {
		t.Errorf("first observation of slice 1 at %g, %g", o.Lat, o.Lon)
	}
	if s.Scan() {
		t.Error("Scan returned true after the last slice")
	}
}

func TestScanner_expressions(t *testing.T) {
	s, err := NewScanner(newGridSource(5, 3), Options{
		VariableContext: variables("a > 3 && !isnan(a)",
			binning.Variable{Name: "a"},
			binning.Variable{Name: "b", Expr: "a * 2 + 1"},
			binning.Variable{Name: "c", Expr: "sqrt(a)"},
		),
	})
	if err != nil {
		t.Fatal(err)
	}
	slices := scanAll(t, s)
	if len(slices) != 1 {
		t.Fatalf("have %d slices, want 1", len(slices))
	}
	obs := slices[0]
	if len(obs) != 11 {
		t.Fatalf("have %d observations, want 11", len(obs))
	}
	for _, o := range obs {
		a := o.Samples[0]
		if a <= 3 {
			t.Errorf("masked pixel %g returned", a)
		}
		if o.Samples[1] != 2*a+1 {
			t.Errorf("b = %g for a = %g", o.Samples[1], a)
		}
		if math.Abs(float64(o.Samples[2])-math.Sqrt(float64(a))) > 1e-6 {
			t.Errorf("c = %g for a = %g", o.Samples[2], a)
		}
	}
}

func TestScanner_invalidExpression(t *testing.T) {
	_, err := NewScanner(newGridSource(2, 2), Options{
		VariableContext: variables("", binning.Variable{Name: "b", Expr: "a * (2"}),
	})
	if err == nil {
		t.Error("expected an error")
	}
}

func TestScanner_missingBand(t *testing.T) {
	s, err := NewScanner(newGridSource(2, 2), Options{
		VariableContext: variables("", binning.Variable{Name: "nope"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Scan() {
		t.Error("Scan succeeded without the band")
	}
	if s.Err() == nil {
		t.Error("expected an error")
	}
}

func TestScanner_superSampling(t *testing.T) {
	s, err := NewScanner(newGridSource(3, 3), Options{
		SuperSampling:   2,
		SliceHeight:     1,
		VariableContext: variables("", binning.Variable{Name: "a"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	slices := scanAll(t, s)
	if len(slices) != 3 {
		t.Fatalf("have %d slices, want 3", len(slices))
	}
	for i, sl := range slices {
		if len(sl) != 12 {
			t.Errorf("slice %d: have %d observations, want 12", i, len(sl))
		}
	}
	// Pixel (1, 1) is the second pixel of the middle slice.
	var lat, lon []float64
	for _, o := range slices[1][4:8] {
		if o.Samples[0] != 4 {
			t.Errorf("sub-pixel of pixel %g", o.Samples[0])
		}
		lat = append(lat, o.Lat)
		lon = append(lon, o.Lon)
	}
	if want := []float64{9.25, 9.25, 8.75, 8.75}; !floats.EqualApprox(lat, want, 1e-12) {
		t.Errorf("latitudes: have %v, want %v", lat, want)
	}
	if want := []float64{20.75, 21.25, 20.75, 21.25}; !floats.EqualApprox(lon, want, 1e-12) {
		t.Errorf("longitudes: have %v, want %v", lon, want)
	}
	// Corner pixels extrapolate outwards.
	if o := slices[0][0]; math.Abs(o.Lat-10.25) > 1e-12 || math.Abs(o.Lon-19.75) > 1e-12 {
		t.Errorf("corner sub-pixel at %g, %g", o.Lat, o.Lon)
	}
}

func TestScanner_antimeridian(t *testing.T) {
	src := newGridSource(1, 2)
	src.bands["lat"] = func(y, x int) float64 { return 0 }
	src.bands["lon"] = func(y, x int) float64 { return []float64{179, -179}[x] }
	s, err := NewScanner(src, Options{
		SuperSampling:   2,
		VariableContext: variables("", binning.Variable{Name: "a"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	obs := scanAll(t, s)[0]
	var lon []float64
	for _, o := range obs {
		if o.Samples[0] == 0 {
			lon = append(lon, o.Lon)
		}
	}
	// Two rows of two sub-pixels each.
	if want := []float64{178.5, 179.5, 178.5, 179.5}; !floats.EqualApprox(lon, want, 1e-12) {
		t.Errorf("longitudes: have %v, want %v", lon, want)
	}
	lon = lon[:0]
	for _, o := range obs {
		if o.Samples[0] == 1 {
			lon = append(lon, o.Lon)
		}
	}
	if want := []float64{-179.5, -178.5, -179.5, -178.5}; !floats.EqualApprox(lon, want, 1e-12) {
		t.Errorf("longitudes: have %v, want %v", lon, want)
	}
}

func TestScanner_region(t *testing.T) {
	region, err := binning.ParseBBox("19.5,6.5,21.5,7.5")
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewScanner(newGridSource(5, 3), Options{
		Region:          region,
		VariableContext: variables("", binning.Variable{Name: "a"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	obs := scanAll(t, s)[0]
	if len(obs) != 2 {
		t.Fatalf("have %d observations, want 2", len(obs))
	}
	if obs[0].Samples[0] != 9 || obs[1].Samples[0] != 10 {
		t.Errorf("have %v", obs)
	}
}

func TestScanner_invalidGeolocation(t *testing.T) {
	src := newGridSource(2, 2)
	src.bands["lat"] = func(y, x int) float64 {
		if x == 1 {
			return math.NaN()
		}
		return 10
	}
	s, err := NewScanner(src, Options{VariableContext: variables("", binning.Variable{Name: "a"})})
	if err != nil {
		t.Fatal(err)
	}
	if obs := scanAll(t, s)[0]; len(obs) != 2 {
		t.Errorf("have %d observations, want 2", len(obs))
	}
}

func TestProcessProduct(t *testing.T) {
	ctx, err := binning.NewBinningContext(180, 1, "", nil, []binning.AggregatorConfig{
		{Type: binning.TypeAverage, VarName: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	src := newGridSource(5, 3)
	s, err := NewScanner(src, Options{SliceHeight: 2, VariableContext: ctx.VariableContext})
	if err != nil {
		t.Fatal(err)
	}
	var bins []*binning.SpatialBin
	binner := binning.NewSpatialBinner(ctx, binning.SpatialBinConsumerFunc(func(_ *binning.BinningContext, b []*binning.SpatialBin) error {
		bins = append(bins, b...)
		return nil
	}))
	n, err := ProcessProduct(s, binner)
	if err != nil {
		t.Fatal(err)
	}
	if n != 15 {
		t.Errorf("have %d observations, want 15", n)
	}
	var numObs int
	var sum float32
	for _, b := range bins {
		numObs += b.NumObs
		sum += b.Properties[0]
	}
	if numObs != 15 || sum != 105 {
		t.Errorf("bins hold %d observations with sum %g", numObs, sum)
	}
	if err := s.Close(); err != nil || !src.closed {
		t.Error("source not closed")
	}
}

func TestProcessProduct_errors(t *testing.T) {
	ctx, err := binning.NewBinningContext(180, 1, "", nil, []binning.AggregatorConfig{
		{Type: binning.TypeAverage, VarName: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	failing := binning.SpatialBinConsumerFunc(func(*binning.BinningContext, []*binning.SpatialBin) error {
		return errors.New("store unavailable")
	})

	// Consumer faults are collected by the binner, not returned.
	s, err := NewScanner(newGridSource(4, 2), Options{SliceHeight: 1, VariableContext: ctx.VariableContext})
	if err != nil {
		t.Fatal(err)
	}
	binner := binning.NewSpatialBinner(ctx, failing)
	n, err := ProcessProduct(s, binner)
	if err != nil {
		t.Errorf("consumer fault returned as error: %v", err)
	}
	if n != 8 || len(binner.Errors()) == 0 {
		t.Errorf("have %d observations and faults %v", n, binner.Errors())
	}

	// Scan errors are returned.
	src := newGridSource(4, 2)
	s, err = NewScanner(src, Options{SliceHeight: 1, VariableContext: ctx.VariableContext})
	if err != nil {
		t.Fatal(err)
	}
	delete(src.bands, "a")
	binner = binning.NewSpatialBinner(ctx, failing)
	if _, err := ProcessProduct(s, binner); err == nil {
		t.Error("expected a scan error")
	}
}

func TestPacking(t *testing.T) {
	p := packing{scale: 0.5, offset: 1, fill: -999, hasFill: true}
	have, err := p.unpack([][]int16{{1, -999}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1.5, math.NaN(), 2.5, 3}
	if !floats.Same(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	if _, err := p.unpack([]string{"x"}); err == nil {
		t.Error("expected an error for strings")
	}
	if v, ok := firstFloat([]float32{2.5, 3}); !ok || v != 2.5 {
		t.Errorf("first float %g, %v", v, ok)
	}
}

// writeProduct writes a classic NetCDF product with 2-D geolocation and
// a packed chlorophyll band.
func writeProduct(t *testing.T) string {
	const rows, cols = 4, 3
	h := cdf.NewHeader([]string{"y", "x"}, []int{rows, cols})
	h.AddVariable("lat", []string{"y", "x"}, []float32{0})
	h.AddVariable("lon", []string{"y", "x"}, []float32{0})
	h.AddVariable("chl", []string{"y", "x"}, []int16{0})
	h.AddAttribute("chl", "scale_factor", []float32{0.5})
	h.AddAttribute("chl", "add_offset", []float32{1})
	h.AddAttribute("chl", "_FillValue", []int16{-1})
	h.Define()
	path := filepath.Join(t.TempDir(), "product.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	lat := make([]float32, rows*cols)
	lon := make([]float32, rows*cols)
	chl := make([]int16, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			lat[i] = float32(45 - y)
			lon[i] = float32(-5 + x)
			chl[i] = int16(i)
		}
	}
	chl[4] = -1
	for name, data := range map[string]interface{}{"lat": lat, "lon": lon, "chl": chl} {
		end := cf.Header.Lengths(name)
		if _, err := cf.Writer(name, make([]int, len(end)), end).Write(data); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestOpen_netCDF(t *testing.T) {
	path := writeProduct(t)
	s, err := Open(path, Options{
		SliceHeight:     3,
		VariableContext: variables("!isnan(chl)", binning.Variable{Name: "chl"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.NumRows() != 4 {
		t.Errorf("rows: %d", s.NumRows())
	}
	slices := scanAll(t, s)
	if len(slices) != 2 {
		t.Fatalf("have %d slices, want 2", len(slices))
	}
	if len(slices[0]) != 8 || len(slices[1]) != 3 {
		t.Fatalf("slice sizes %d and %d", len(slices[0]), len(slices[1]))
	}
	o := slices[1][2]
	if o.Lat != 42 || o.Lon != -3 || o.Samples[0] != 6.5 {
		t.Errorf("last observation %+v", o)
	}
	for _, o := range slices[0] {
		if math.IsNaN(float64(o.Samples[0])) {
			t.Error("fill value not masked")
		}
	}
}
