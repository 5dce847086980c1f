// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package series maintains the ordered per-float collection of cycle
// records and the merge rules that keep it consistent under
// out-of-order and repeated delivery.
package series // import "github.com/go-argo/flt/series"

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-argo/flt/msg"
)

// ErrNoCycle reports a record whose cycle index is not derivable.
// The merge of such a record is aborted, the series is unchanged.
var ErrNoCycle = errors.New("series: cycle index not resolvable")

// ErrFloatID reports a record that belongs to a different float.
var ErrFloatID = errors.New("series: record belongs to a different float")

// Series is the ordered collection of cycle records for one float,
// sorted strictly ascending by cycle index. Records are superseded,
// never deleted.
type Series struct {
	FloatID int
	Records []*msg.Record

	// Notes collects invariant violations that are logged, not
	// rejected (e.g. clock anomalies).
	Notes []string
}

// New creates an empty series for the given float.
func New(floatID int) *Series {
	return &Series{FloatID: floatID}
}

// Len returns the number of records.
func (s *Series) Len() int { return len(s.Records) }

// At returns the record at position i.
func (s *Series) At(i int) *msg.Record { return s.Records[i] }

// Cycle returns the record with the given cycle index.
func (s *Series) Cycle(c int) (*msg.Record, bool) {
	i := s.search(c)
	if i < len(s.Records) && s.Records[i].Cycle == c {
		return s.Records[i], true
	}
	return nil, false
}

func (s *Series) search(c int) int {
	return sort.Search(len(s.Records), func(i int) bool {
		return s.Records[i].Cycle >= c
	})
}

// Merge folds one record into the series:
//   - append, when its cycle exceeds the current maximum (the common
//     case, also for an empty series);
//   - update in place, when a record with that cycle already exists:
//     only the fields present in the new record overwrite, absent
//     fields are left untouched;
//   - insert with shift, when the cycle falls between existing ones:
//     records at or after the insertion point move one position later.
func (s *Series) Merge(rec *msg.Record) error {
	if rec == nil || rec.Cycle < 0 {
		return ErrNoCycle
	}
	if rec.FloatID != s.FloatID {
		return fmt.Errorf("%w: got=%d, want=%d", ErrFloatID, rec.FloatID, s.FloatID)
	}

	defer s.checkTimes()

	n := len(s.Records)
	if n == 0 || rec.Cycle > s.Records[n-1].Cycle {
		s.Records = append(s.Records, rec)
		return nil
	}

	i := s.search(rec.Cycle)
	if i < n && s.Records[i].Cycle == rec.Cycle {
		update(s.Records[i], rec)
		return nil
	}

	s.Records = append(s.Records, nil)
	copy(s.Records[i+1:], s.Records[i:])
	s.Records[i] = rec
	return nil
}

// update overwrites dst with the parts present in src.
// Absent values (missing fields, NaN time/position, nil payloads) never
// clear existing data.
func update(dst, src *msg.Record) {
	if src.File != "" {
		dst.File = src.File
		dst.Type = src.Type
	}
	for name, f := range src.Fields {
		dst.Fields[name] = f
	}
	if !math.IsNaN(src.Time) {
		dst.Time = src.Time
	}
	if !math.IsNaN(src.Lon) {
		dst.Lon = src.Lon
	}
	if !math.IsNaN(src.Lat) {
		dst.Lat = src.Lat
	}
	if src.HighRes != nil {
		dst.HighRes = src.HighRes
	}
	if src.Park != nil {
		dst.Park = src.Park
	}
	if src.Discrete != nil {
		dst.Discrete = src.Discrete
	}
	if src.Optode != nil {
		dst.Optode = src.Optode
	}
	if src.Class.Type != msg.TypeUnknown {
		dst.Class = src.Class
	}
	dst.Incomplete = src.Incomplete
	dst.Report = append(dst.Report, src.Report...)
}

// checkTimes records timestamp ordering violations. Floats can have
// clock anomalies, so a non-monotonic timestamp is noted, not rejected.
func (s *Series) checkTimes() {
	prev := math.NaN()
	prevCycle := 0
	for _, rec := range s.Records {
		if math.IsNaN(rec.Time) {
			continue
		}
		if !math.IsNaN(prev) && rec.Time < prev {
			s.Notes = append(s.Notes, fmt.Sprintf(
				"float %d: time of cycle %d (%.0f) before time of cycle %d (%.0f)",
				s.FloatID, rec.Cycle, rec.Time, prevCycle, prev,
			))
		}
		prev = rec.Time
		prevCycle = rec.Cycle
	}
}
