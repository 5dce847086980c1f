// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"math"
	"strconv"
)

// finish combines the parsed sections into the final record: the cycle
// timestamp (by precedence), the park-sample summary fields and the
// classification fields.
func (p *parser) finish() {
	rec := p.rec

	rec.Fields.setText("Program", rec.Class.Program.String(), "")
	rec.Fields.setText("Float_type", rec.Class.Type.String(), "")
	switch {
	case rec.Class.Firmware != "":
		rec.Fields.setText("Firmware", rec.Class.Firmware, "")
		rec.Fields.setText(rec.Class.Firmware, rec.Class.Revision, "")
	default:
		rec.Fields.setText("Firmware", "Unknown", "")
	}

	p.assignTime()
	p.copyParkSample()

	if rec.HighRes != nil {
		n := strconv.Itoa(rec.HighRes.N)
		rec.Fields.Set("NHighResPTS", n, "")
		rec.Fields.Set("ProfileLength", n, "")
		if rec.HighRes.Incomplete {
			rec.Incomplete = true
		}
	}
	if _, ok := rec.Fields["ProfileLength"]; !ok {
		rec.Fields.Set("ProfileLength", "0", "")
	}
}

// assignTime resolves the record timestamp: profile-termination time,
// then GPS fix time, then the raw transmission timestamp. Highly
// incomplete transmissions (cut off before the "profile terminated"
// line) may end up with no time at all; that is reported, not fatal.
func (p *parser) assignTime() {
	rec := p.rec
	switch {
	case !math.IsNaN(rec.profileTime):
		rec.Time = rec.profileTime
	case !math.IsNaN(rec.fixTime):
		rec.Time = rec.fixTime
	default:
		if f, ok := rec.Fields["MessageTime"]; ok && f.Value != "" {
			if t, err := parseEpoch(f.Value); err == nil {
				rec.Time = t
				return
			}
		}
		rec.report(CondWarning, 0, "", "no time available")
	}
}

// copyParkSample copies the primary channel values of the unique
// park-flagged discrete sample into dedicated summary fields. With zero
// or more than one park sample the summary fields stay unavailable,
// never guessed.
func (p *parser) copyParkSample() {
	rec := p.rec
	d := rec.Discrete
	if d == nil || d.Col("s") < 0 {
		return
	}

	rec.Fields.Set("NDiscreteSamples", strconv.Itoa(len(d.Rows)), "")

	idx := -1
	n := 0
	for i, park := range d.Park {
		if park {
			idx = i
			n++
		}
	}

	switch n {
	case 1:
		rec.Fields.setNum("ParkPressure_actual", d.value(idx, "p"), "dbar")
		rec.Fields.setNum("ParkTemperature", d.value(idx, "t"), "degC")
		rec.Fields.setNum("ParkSalinity", d.value(idx, "s"), "PSU")
	case 0:
		rec.Fields.setNum("ParkPressure_actual", math.NaN(), "dbar")
		rec.Fields.setNum("ParkTemperature", math.NaN(), "degC")
		rec.Fields.setNum("ParkSalinity", math.NaN(), "PSU")
	default:
		rec.report(CondConsistency, 0, "", "%d park samples found, want at most 1", n)
		rec.Fields.setNum("ParkPressure_actual", math.NaN(), "dbar")
		rec.Fields.setNum("ParkTemperature", math.NaN(), "degC")
		rec.Fields.setNum("ParkSalinity", math.NaN(), "PSU")
	}
}

func (d *DiscreteTable) value(row int, col string) float64 {
	c := d.Col(col)
	if c < 0 || row < 0 || row >= len(d.Rows) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(d.Rows[row][c], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
