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

package binstore

import (
	"bytes"
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	"github.com/jmoiron/sqlx"
	"github.com/spatialmodel/binning"
	_ "modernc.org/sqlite" // SQLite driver "sqlite"
)

// SQLStore keeps spatial bins in a SQL database table, so that spatial
// and temporal binning can run in separate processes.
type SQLStore struct {
	db *sqlx.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS spatial_bins (
	bin_index BIGINT NOT NULL,
	product TEXT NOT NULL,
	num_obs INTEGER NOT NULL,
	data %s NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS spatial_bins_bin_index ON spatial_bins (bin_index)`,
}

// OpenSQL connects to the database and creates the bin table if it does
// not exist yet. driver is "sqlite" or "pgx".
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("binstore: opening %s database: %w", driver, err)
	}
	blob := "BLOB"
	if driver == DriverSQLite {
		// SQLite serializes writers; a single connection avoids lock errors.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		blob = "BYTEA"
	}
	for i, stmt := range schema {
		if i == 0 {
			stmt = fmt.Sprintf(stmt, blob)
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("binstore: creating bin table: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// ConsumeSpatialBins stores bins without a product name.
func (s *SQLStore) ConsumeSpatialBins(_ *binning.BinningContext, bins []*binning.SpatialBin) error {
	return s.insert("", bins)
}

// ForProduct implements Store.
func (s *SQLStore) ForProduct(name string) binning.SpatialBinConsumer {
	return productConsumer{name: name, consume: s.insert}
}

// insert writes bins in a single transaction.
func (s *SQLStore) insert(product string, bins []*binning.SpatialBin) error {
	if len(bins) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("binstore: %w", err)
	}
	stmt, err := tx.Preparex(tx.Rebind(`INSERT INTO spatial_bins (bin_index, product, num_obs, data) VALUES (?, ?, ?, ?)`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("binstore: preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, b := range bins {
		data, err := b.MarshalBinary()
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(int64(b.Index), product, b.NumObs, data); err != nil {
			tx.Rollback()
			return fmt.Errorf("binstore: inserting bin %d: %w", b.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("binstore: committing bins: %w", err)
	}
	return nil
}

type binRow struct {
	Index int64  `db:"bin_index"`
	Data  []byte `db:"data"`
}

// Groups implements binning.SpatialBinSource.
func (s *SQLStore) Groups(ctx context.Context, r binning.IndexRange, fn func(uint64, []*binning.SpatialBin) error) error {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(
		`SELECT bin_index, data FROM spatial_bins WHERE bin_index >= ? AND bin_index < ? ORDER BY bin_index`),
		int64(r.Start), int64(r.End))
	if err != nil {
		return fmt.Errorf("binstore: querying bins in %v: %w", r, err)
	}
	defer rows.Close()

	var (
		group   []*binning.SpatialBin
		current uint64
	)
	for rows.Next() {
		var row binRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("binstore: %w", err)
		}
		idx := uint64(row.Index)
		if len(group) > 0 && idx != current {
			if err := fn(current, group); err != nil {
				return err
			}
			group = nil
		}
		b, err := binning.ReadSpatialBin(bytes.NewReader(row.Data), idx)
		if err != nil {
			return err
		}
		current = idx
		group = append(group, b)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("binstore: %w", err)
	}
	if len(group) > 0 {
		return fn(current, group)
	}
	return nil
}

// Products implements Store.
func (s *SQLStore) Products(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out,
		`SELECT DISTINCT product FROM spatial_bins WHERE product <> '' ORDER BY product`)
	if err != nil {
		return nil, fmt.Errorf("binstore: listing products: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM spatial_bins`); err != nil {
		return 0, fmt.Errorf("binstore: counting bins: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error { return s.db.Close() }
