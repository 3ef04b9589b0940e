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
	"strconv"
	"strings"

	"github.com/ctessum/geom"
)

// Region restricts binning to observations within a polygon given in
// longitude/latitude coordinates.
type Region struct {
	Polygon geom.Polygon
	bounds  *geom.Bounds
}

// NewRegion returns a region covering poly.
func NewRegion(poly geom.Polygonal) *Region {
	var p geom.Polygon
	for _, pp := range poly.Polygons() {
		p = append(p, pp...)
	}
	return &Region{Polygon: p, bounds: p.Bounds()}
}

// ParseBBox returns the region given by "lonMin,latMin,lonMax,latMax".
func ParseBBox(bbox string) (*Region, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("binning: bounding box %q must have 4 comma separated values", bbox)
	}
	var v [4]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("binning: parsing bounding box %q: %w", bbox, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return nil, fmt.Errorf("binning: bounding box %q is empty", bbox)
	}
	return NewRegion(geom.Polygon{{
		{X: v[0], Y: v[1]}, {X: v[2], Y: v[1]}, {X: v[2], Y: v[3]}, {X: v[0], Y: v[3]}, {X: v[0], Y: v[1]},
	}}), nil
}

// Contains reports whether the position is inside the region or on its edge.
func (r *Region) Contains(lat, lon float64) bool {
	if r == nil {
		return true
	}
	if lon < r.bounds.Min.X || lon > r.bounds.Max.X || lat < r.bounds.Min.Y || lat > r.bounds.Max.Y {
		return false
	}
	return geom.Point{X: lon, Y: lat}.Within(r.Polygon) != geom.Outside
}

// Bounds returns the bounding box of the region.
func (r *Region) Bounds() *geom.Bounds { return r.bounds }

// String returns the region as a WKT polygon.
func (r *Region) String() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("POLYGON(")
	for i, ring := range r.Polygon {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j, p := range ring {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%g %g", p.X, p.Y)
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}
