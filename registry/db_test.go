// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/go-argo/flt/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpenDB(t *testing.T) {
	db, err := OpenDB("fakedb")
	if err != nil {
		t.Fatalf("could not open fleet db: %+v", err)
	}
	defer db.Close()
}

func TestDBWMOID(t *testing.T) {
	db, err := OpenDB("fakedb")
	if err != nil {
		t.Fatalf("could not open fleet db: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"wmoid"},
		Values: [][]driver.Value{
			{int64(5905123)},
		},
	}, func(ctx context.Context) error {
		wmoid, err := db.WMOID(ctx, 4005)
		if err != nil {
			t.Fatalf("could not resolve float: %+v", err)
		}
		if got, want := wmoid, 5905123; got != want {
			t.Fatalf("invalid wmo id: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestDBWMOIDUnknown(t *testing.T) {
	db, err := OpenDB("fakedb")
	if err != nil {
		t.Fatalf("could not open fleet db: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names:  []string{"wmoid"},
		Values: nil,
	}, func(ctx context.Context) error {
		_, err := db.WMOID(ctx, 4005)
		if !errors.Is(err, ErrUnknownFloat) {
			t.Fatalf("invalid error for unknown float: got=%v, want=%v", err, ErrUnknownFloat)
		}
		return nil
	})
}
