// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry resolves internal float identifiers to their
// external WMO identifiers, from the fleet CSV file or from the
// fleet-management database.
package registry // import "github.com/go-argo/flt/registry"

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownFloat reports a float with no registered WMO identifier.
var ErrUnknownFloat = errors.New("registry: unknown float")

// Registry maps internal float identifiers to WMO identifiers.
type Registry interface {
	WMOID(ctx context.Context, floatID int) (int, error)
}

// Static is a fixed in-memory registry, mostly useful in tests and
// one-off ingestions.
type Static map[int]int

// WMOID implements Registry.
func (r Static) WMOID(ctx context.Context, floatID int) (int, error) {
	wmoid, ok := r[floatID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFloat, floatID)
	}
	return wmoid, nil
}

var _ Registry = (Static)(nil)
