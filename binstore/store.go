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

// Package binstore holds spatial bins between spatial binning and temporal
// reduction, grouping them by bin index.
package binstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/spatialmodel/binning"
)

// Store collects the spatial bins of many products and hands them back
// grouped by bin index.
type Store interface {
	binning.SpatialBinSource
	binning.SpatialBinConsumer

	// ForProduct returns a consumer that records bins as belonging to
	// the named product.
	ForProduct(name string) binning.SpatialBinConsumer

	// Products returns the names of the products that contributed bins.
	Products(ctx context.Context) ([]string, error)

	// Count returns the number of stored spatial bins.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Drivers supported by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Open returns the store for the given driver. dsn is ignored by the
// memory store.
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres:
		return OpenSQL(strings.ToLower(driver), dsn)
	default:
		return nil, fmt.Errorf("binstore: unsupported driver %q", driver)
	}
}

type productConsumer struct {
	name    string
	consume func(product string, bins []*binning.SpatialBin) error
}

func (c productConsumer) ConsumeSpatialBins(_ *binning.BinningContext, bins []*binning.SpatialBin) error {
	return c.consume(c.name, bins)
}
