// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// column names of the fleet CSV file.
const (
	colFloatID = "Float ID"
	colWMOID   = "Float WMO"
)

// File is a Registry backed by the fleet CSV file.
type File struct {
	ids map[int]int
}

// OpenFile loads the fleet CSV file at path.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: could not open %q: %w", path, err)
	}
	defer f.Close()

	reg, err := readFile(f)
	if err != nil {
		return nil, fmt.Errorf("registry: could not load %q: %w", path, err)
	}
	return reg, nil
}

func readFile(r io.Reader) (*File, error) {
	cr := csv.NewReader(r)

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	idCol, wmoCol := -1, -1
	for i, name := range hdr {
		switch name {
		case colFloatID:
			idCol = i
		case colWMOID:
			wmoCol = i
		}
	}
	if idCol < 0 || wmoCol < 0 {
		return nil, fmt.Errorf("columns %q and %q not found (header %q)",
			colFloatID, colWMOID, hdr)
	}

	reg := &File{ids: make(map[int]int)}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		floatID, err := strconv.Atoi(row[idCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid float id %q: %w", line, row[idCol], err)
		}
		wmoid, err := strconv.Atoi(row[wmoCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid wmo id %q: %w", line, row[wmoCol], err)
		}
		reg.ids[floatID] = wmoid
	}
	return reg, nil
}

// Len returns the number of registered floats.
func (r *File) Len() int { return len(r.ids) }

// WMOID implements Registry.
func (r *File) WMOID(ctx context.Context, floatID int) (int, error) {
	wmoid, ok := r.ids[floatID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFloat, floatID)
	}
	return wmoid, nil
}

var _ Registry = (*File)(nil)
