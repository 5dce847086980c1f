// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

// DB is a Registry backed by the fleet-management MySQL database.
type DB struct {
	db *sql.DB
}

// OpenDB opens a connection to the fleet database described by dsn,
// e.g. "user:pwd@tcp(host)/fleet".
func OpenDB(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: could not open fleet db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: could not ping fleet db: %w", err)
	}
	return &DB{db: db}, nil
}

func (r *DB) Close() error {
	return r.db.Close()
}

func (r *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, query, args...)
}

// WMOID implements Registry.
func (r *DB) WMOID(ctx context.Context, floatID int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(
		ctx,
		"SELECT wmoid FROM floats WHERE floatid = ? ORDER BY deployed DESC LIMIT 1",
		floatID,
	)
	if err != nil {
		return 0, fmt.Errorf("registry: could not query wmo id of %d: %w", floatID, err)
	}
	defer rows.Close()

	wmoid := 0
	found := false
	for rows.Next() {
		if err := rows.Scan(&wmoid); err != nil {
			return 0, fmt.Errorf("registry: could not scan wmo id of %d: %w", floatID, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("registry: could not scan fleet db for %d: %w", floatID, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("registry: context error while resolving %d: %w", floatID, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFloat, floatID)
	}
	return wmoid, nil
}

var _ Registry = (*DB)(nil)
