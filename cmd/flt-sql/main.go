// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// flt-sql inspects the fleet-management database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-argo/flt/registry"
)

func main() {
	log.SetPrefix("flt-sql: ")
	log.SetFlags(0)

	var (
		dsn   = flag.String("dsn", "argo@tcp(localhost)/fleet", "fleet database DSN")
		float = flag.Int("float", 0, "float id to look up (default: list the fleet)")
	)

	flag.Parse()

	db, err := registry.OpenDB(*dsn)
	if err != nil {
		log.Fatalf("could not open fleet db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *float)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *registry.DB, float int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if float != 0 {
		wmoid, err := db.WMOID(ctx, float)
		if err != nil {
			return fmt.Errorf("could not get wmo id of float %d: %w", float, err)
		}
		log.Printf("float %d: wmo %d", float, wmoid)
		return nil
	}

	rows, err := db.QueryContext(ctx, "SELECT floatid, wmoid, deployed FROM floats ORDER BY floatid")
	if err != nil {
		return fmt.Errorf("could not list fleet: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			floatid  int
			wmoid    int
			deployed string
		)
		err = rows.Scan(&floatid, &wmoid, &deployed)
		if err != nil {
			return fmt.Errorf("could not scan fleet row: %w", err)
		}
		log.Printf(">>> float=%04d, wmo=%d, deployed=%s", floatid, wmoid, deployed)
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("could not scan fleet: %w", err)
	}
	log.Printf("floats: %d", n)

	return nil
}
