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

package binningutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/spatialmodel/binning"
)

// loadRegion returns the region given by a bounding box or by the path
// of a GeoJSON file or shapefile. It returns nil if s is empty.
func loadRegion(s string) (*binning.Region, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(filepath.Ext(s)) {
	case "":
		if s == "" {
			return nil, nil
		}
		return binning.ParseBBox(s)
	case ".json", ".geojson":
		poly, err := parseGeoJSON(s)
		if err != nil {
			return nil, err
		}
		return binning.NewRegion(poly), nil
	case ".shp":
		poly, err := parseShapefile(s)
		if err != nil {
			return nil, err
		}
		return binning.NewRegion(poly), nil
	default:
		return binning.ParseBBox(s)
	}
}

// parseGeoJSON returns the polygons in the given GeoJSON file.
func parseGeoJSON(path string) (geom.Polygonal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("binning: reading region file: %w", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("binning: decoding region file %s: %w", path, err)
	}
	switch g := j.(type) {
	case geom.Polygon:
		return g, nil
	case geom.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("binning: invalid region geometry type %T in %s", j, path)
	}
}

// parseShapefile returns the union of the polygons in the given shapefile.
func parseShapefile(path string) (geom.Polygonal, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("binning: opening region shapefile: %w", err)
	}
	defer d.Close()
	var mp geom.MultiPolygon
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("binning: reading region shapefile: %w", err)
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("binning: invalid region geometry type %T in %s", g, path)
		}
		mp = append(mp, p.Polygons()...)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("binning: reading region shapefile: %w", err)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("binning: region shapefile %s has no polygons", path)
	}
	return mp, nil
}
