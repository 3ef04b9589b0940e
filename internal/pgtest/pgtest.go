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

// Package pgtest starts PostgreSQL databases for tests.
package pgtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Image is the PostgreSQL image started by SetupTestDB.
const Image = "postgres:16-alpine"

// SetupTestDB starts a PostgreSQL container and returns a DSN to
// connect to it with the pgx driver. The container is terminated when
// the test finishes. The test is skipped in short mode or if no container
// runtime is available.
func SetupTestDB(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}
	const (
		dbname = "binning"
		dbuser = "postgres"
		dbport = "5432"
	)

	req := testcontainers.ContainerRequest{
		Image:        Image,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", dbport)},
		Env: map[string]string{
			"POSTGRES_DB":               dbname,
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		// The server restarts once after initialization.
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() { postgresC.Terminate(context.Background()) })

	host, err := postgresC.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Get the port that is mapped to 5432.
	p, err := postgresC.MappedPort(ctx, dbport)
	if err != nil {
		t.Fatal(err)
	}
	dsn := fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable", dbuser, host, p.Port(), dbname)

	err = backoff.Retry(func() error {
		db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return err
		}
		return db.Close()
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10), ctx))
	if err != nil {
		t.Fatal(err)
	}
	return dsn
}
