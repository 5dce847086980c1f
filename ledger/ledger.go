// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ledger tracks which raw transmission files have been
// processed, so unchanged files are skipped on re-runs.
//
// The ledger is an append-only CSV file. A file is looked up first by
// its exact path, then by its (float, cycle, type) identity; in both
// cases the most recently appended row wins, and the file counts as
// unchanged when its content hash matches that row.
package ledger // import "github.com/go-argo/flt/ledger"

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/go-argo/flt/msg"
)

var columns = []string{
	"Filename", "FloatID", "WMOID", "Type", "Profile",
	"Size", "Checksum", "Processing_date",
}

// dateFormat is the layout of the Processing_date column.
const dateFormat = "2006/01/02 15:04:05"

// Entry is one processed-file row.
type Entry struct {
	Filename string
	FloatID  int
	WMOID    int
	Type     string
	Profile  int
	Size     int64
	Checksum string
	Date     string
}

// Ledger is the processed-files registry of one ingestion directory.
type Ledger struct {
	path string
	rows []Entry

	now func() time.Time
}

// Open loads the ledger at path, creating an empty one (header only)
// when none exists.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, now: time.Now}

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		if err := l.create(); err != nil {
			return nil, err
		}
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("ledger: could not open %q: %w", path, err)
	}
	defer f.Close()

	if err := l.load(f); err != nil {
		return nil, fmt.Errorf("ledger: could not load %q: %w", path, err)
	}
	return l, nil
}

func (l *Ledger) create() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("ledger: could not create %q: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("ledger: could not write header of %q: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: could not write header of %q: %w", l.path, err)
	}
	return f.Close()
}

func (l *Ledger) load(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)

	rows, err := cr.ReadAll()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("missing header row")
	}
	for i, row := range rows[1:] {
		e, err := parseRow(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		l.rows = append(l.rows, e)
	}
	return nil
}

func parseRow(row []string) (Entry, error) {
	floatID, err := strconv.Atoi(row[1])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid float id %q: %w", row[1], err)
	}
	wmoid, err := strconv.Atoi(row[2])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid wmo id %q: %w", row[2], err)
	}
	profile, err := strconv.Atoi(row[4])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid profile %q: %w", row[4], err)
	}
	size, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid size %q: %w", row[5], err)
	}
	return Entry{
		Filename: row[0],
		FloatID:  floatID,
		WMOID:    wmoid,
		Type:     row[3],
		Profile:  profile,
		Size:     size,
		Checksum: row[6],
		Date:     row[7],
	}, nil
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.rows) }

// Sum returns the content hash used in the Checksum column.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// SumFile hashes the content of fname.
func SumFile(fname string) (sum string, size int64, err error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: could not read %q: %w", fname, err)
	}
	return Sum(data), int64(len(data)), nil
}

// last returns the most recently appended row matching the predicate.
func (l *Ledger) last(match func(Entry) bool) (Entry, bool) {
	for i := len(l.rows) - 1; i >= 0; i-- {
		if match(l.rows[i]) {
			return l.rows[i], true
		}
	}
	return Entry{}, false
}

// Unchanged reports whether the file at fname was already processed
// with identical content.
func (l *Ledger) Unchanged(fname string) (bool, error) {
	sum, _, err := SumFile(fname)
	if err != nil {
		return false, err
	}

	if e, ok := l.last(func(e Entry) bool { return e.Filename == fname }); ok {
		return e.Checksum == sum, nil
	}

	// no exact path match: the file may have been processed from
	// another location under its (float, cycle, type) identity.
	floatID, cycle, ftype, err := msg.SplitName(fname)
	if err != nil {
		return false, err
	}
	e, ok := l.last(func(e Entry) bool {
		return e.FloatID == floatID && e.Profile == cycle && e.Type == ftype
	})
	if !ok {
		return false, nil
	}
	return e.Checksum == sum, nil
}

// Mark appends a processed-file row for fname and persists it.
func (l *Ledger) Mark(fname string, wmoid int) error {
	floatID, cycle, ftype, err := msg.SplitName(fname)
	if err != nil {
		return err
	}
	sum, size, err := SumFile(fname)
	if err != nil {
		return err
	}

	e := Entry{
		Filename: fname,
		FloatID:  floatID,
		WMOID:    wmoid,
		Type:     ftype,
		Profile:  cycle,
		Size:     size,
		Checksum: sum,
		Date:     l.now().Format(dateFormat),
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ledger: could not append to %q: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	err = w.Write([]string{
		e.Filename,
		strconv.Itoa(e.FloatID),
		strconv.Itoa(e.WMOID),
		e.Type,
		strconv.Itoa(e.Profile),
		strconv.FormatInt(e.Size, 10),
		e.Checksum,
		e.Date,
	})
	if err != nil {
		return fmt.Errorf("ledger: could not append to %q: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: could not append to %q: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: could not append to %q: %w", l.path, err)
	}

	l.rows = append(l.rows, e)
	return nil
}
