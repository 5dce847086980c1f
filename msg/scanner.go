// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-argo/flt/msg/internal/lines"
)

// headerEnd is the sentinel line that terminates the header section.
const headerEnd = "$"

// eot marks the end of a transmission.
const eot = "<EOT>"

var (
	rxProfileEnd = regexp.MustCompile(`Profile.*terminated:\s*(.+)`)
	rxDiscrete   = regexp.MustCompile(`^\$\s+Discrete\s+samples:\s*(\d+)`)
	rxSbe        = regexp.MustCompile(`Sbe41cpSerNo\[(\d+)\]\s+NSample\[(\d+)\]\s+NBin\[(\d+)\]`)
	rxFix        = regexp.MustCompile(`^Fix:\s+([\d.\-]+)\s+([\d.\-]+)\s+(\d+/\d+/\d+\s+\d+)`)
	rxOptode     = regexp.MustCompile(`OptodeAirCal: (.{20})\s+(.*)$`)
)

type parser struct {
	cur *lines.Cursor
	rec *Record
}

// Parse parses one raw transmission. name must follow the
// <floatid>.<cycle>.<type> convention; the float id and cycle index are
// always resolved from it, so the returned record is well-formed even
// when the content is degenerate or truncated.
func Parse(name string, data []byte) (*Record, error) {
	floatID, cycle, ftype, err := SplitName(name)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		File:    name,
		FloatID: floatID,
		Cycle:   cycle,
		Type:    ftype,
		Time:    math.NaN(),
		Lon:     math.NaN(),
		Lat:     math.NaN(),
		Fields:  make(FieldSet),

		fixTime:     math.NaN(),
		profileTime: math.NaN(),
	}
	rec.Fields.setText("msgEOT", "0", "")

	p := &parser{cur: lines.New(data), rec: rec}

	// deployment transmissions (cycle 000) from core and Navis BGC
	// programs carry the GPS fix first and no middle sections.
	if cycle == 0 && !p.missionConfigFirst() {
		p.parseFix()
		p.parseFooter()
		p.finish()
		return rec, nil
	}

	p.parseHeader()
	if cycle != 0 {
		p.parseMiddle()
	}
	p.parseFix()
	p.parseFooter()
	p.finish()
	return rec, nil
}

// missionConfigFirst peeks past leading empty lines and reports whether
// the transmission opens with a mission-configuration header.
func (p *parser) missionConfigFirst() bool {
	n := 0
	defer func() {
		for ; n > 0; n-- {
			p.cur.Back()
		}
	}()
	for {
		line, ok := p.cur.Next()
		if !ok {
			return false
		}
		n++
		if strings.TrimSpace(line) != "" {
			return strings.Contains(line, "Mission configuration")
		}
	}
}

// parseHeader consumes the "$ ..." engineering lines up to the lone "$"
// sentinel. Some transmissions start directly with park points; those
// leave the cursor untouched.
func (p *parser) parseHeader() {
	for {
		line, ok := p.cur.Peek()
		if !ok {
			return
		}
		if strings.TrimSpace(line) != "" {
			break
		}
		p.cur.Next()
	}
	if line, _ := p.cur.Peek(); strings.HasPrefix(line, "ParkPt") {
		return
	}

	for {
		line, ok := p.cur.Next()
		if !ok {
			p.rec.Incomplete = true
			return
		}
		if strings.TrimSpace(line) == headerEnd {
			return
		}
		if strings.Contains(line, eot) {
			return
		}
		if strings.Contains(line, "IsusInit") || strings.Contains(line, "DuraInit") {
			p.rec.Class.Program = ProgBGC
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.headerLine(line)
	}
}

// parseMiddle consumes the sections between header and GPS fix:
// park points, the profile-termination line, discrete samples, the
// high-resolution declaration and payload, and optode air-cal rows.
func (p *parser) parseMiddle() {
	p.rec.Park = p.parsePark()
	if p.rec.Park != nil && p.rec.Park.Incomplete && p.cur.EOF() {
		p.rec.Incomplete = true
		return
	}

	p.parseProfileTerminated()

	discrete, stop := p.parseDiscrete()
	p.rec.Discrete = discrete
	if stop {
		p.rec.Incomplete = true
		return
	}

	if serno, _, nbin, ok := p.parseSbeLine(); ok {
		p.rec.Fields.setText("Sbe41cpSerNo", serno, "")
		layout, err := p.layout()
		switch {
		case err != nil:
			p.rec.report(CondStructural, p.cur.Line(), "", "%v", err)
			p.rec.Incomplete = true
		default:
			p.rec.HighRes = p.parseHighRes(nbin, layout)
		}
	} else {
		p.rec.Fields.setText("Sbe41cpSerNo", "Unknown", "")
	}

	if p.rec.Class.Program == ProgBGC && p.rec.Class.Type == TypeAPEX {
		p.rec.Optode = p.parseOptode()
	}
}

// parsePark reads the run of park-point lines. The run is keyed by a
// model-dependent prefix; Navis files declare the column names in a
// leading "$ Date ..." line, the other models use fixed column sets.
func (p *parser) parsePark() *ParkTable {
	prefix := p.rec.Class.parkPrefix()

	line, ok := p.cur.Next()
	if !ok {
		return nil
	}

	park := &ParkTable{}
	if strings.HasPrefix(line, "$") && strings.Contains(line, "Date") {
		park.Cols = strings.Fields(strings.TrimPrefix(line, "$"))
		line, ok = p.cur.Next()
	} else {
		switch p.rec.Class.Program {
		case ProgBGC:
			park.Cols = []string{"Date", "days_since_1950", "count", "p", "t", "FSig", "BbSig", "TSig"}
		default:
			park.Cols = []string{"Date", "days_since_1950", "count", "p", "t", "s"}
		}
	}

	for ok && strings.Contains(line, prefix) {
		fields := strings.Fields(line)
		first := 0
		if strings.Contains(fields[0], prefix) {
			first = 1
		} else {
			p.rec.report(CondStructural, p.cur.Line(), line, "unexpected format in park line")
		}
		if len(fields) <= first+3 {
			park.Incomplete = true
			break
		}

		row := make([]float64, len(park.Cols))
		for i := range row {
			row[i] = math.NaN()
		}
		date, err := parseEpoch(strings.Join(fields[first:first+4], " "))
		if err != nil {
			p.rec.report(CondStructural, p.cur.Line(), line, "invalid park date: %v", err)
			park.Incomplete = true
			break
		}
		row[0] = date

		short := false
		for i := first + 4; i < len(fields); i++ {
			col := i - first - 3
			if col >= len(row) {
				break
			}
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				v = math.NaN()
			}
			row[col] = v
		}
		if len(fields) < len(park.Cols)+first+3 {
			short = true
		}
		park.Rows = append(park.Rows, row)
		if short {
			park.Incomplete = true
			break
		}
		line, ok = p.cur.Next()
	}
	if ok && !park.Incomplete {
		// first line after the park run belongs to the next section
		p.cur.Back()
	}
	return park
}

// parseProfileTerminated reads the "Profile ... terminated: <time>" line.
func (p *parser) parseProfileTerminated() bool {
	var (
		line string
		ok   bool
	)
	for {
		line, ok = p.cur.Next()
		if !ok {
			return false
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	m := rxProfileEnd.FindStringSubmatch(line)
	if m == nil {
		p.rec.report(CondStructural, p.cur.Line(), line, "profile termination time not found")
		p.cur.Back()
		return false
	}
	t, err := parseEpoch(m[1])
	if err != nil {
		p.rec.report(CondStructural, p.cur.Line(), line, "invalid profile termination time: %v", err)
		return false
	}
	p.rec.profileTime = t
	return true
}

// parseDiscrete reads the discrete-sample block: a declaration line with
// the expected sample count, a column-name line, then exactly that many
// sample rows. stop reports that the middle section ends here (end of
// input or truncated block).
func (p *parser) parseDiscrete() (tbl *DiscreteTable, stop bool) {
	line, ok := p.cur.Next()
	if !ok {
		return nil, true
	}
	m := rxDiscrete.FindStringSubmatch(line)
	if m == nil {
		p.rec.report(CondStructural, p.cur.Line(), line, "discrete sample count not found")
		p.cur.Back()
		return nil, true
	}
	n, _ := strconv.Atoi(m[1])
	if n == 0 {
		return nil, p.cur.EOF()
	}

	line, ok = p.cur.Next()
	if !ok {
		return nil, true
	}
	tbl = &DiscreteTable{Cols: strings.Fields(strings.ReplaceAll(line, "$", ""))}

	for i := 0; i < n; i++ {
		line, ok := p.cur.Next()
		if !ok {
			tbl.Incomplete = true
			return tbl, true
		}
		values := strings.Fields(line)
		if len(values) < len(tbl.Cols) {
			p.rec.report(CondStructural, p.cur.Line(), line, "incomplete discrete sample line")
			tbl.Incomplete = true
			return tbl, true
		}
		tbl.Park = append(tbl.Park, strings.Contains(line, "(Park Sample)"))
		tbl.Rows = append(tbl.Rows, values[:len(tbl.Cols)])
	}
	return tbl, false
}

// parseSbeLine reads the declaration line preceding the high-resolution
// block: CTD serial number and expected sample/bin counts.
func (p *parser) parseSbeLine() (serno string, nsample, nbin int, ok bool) {
	var line string
	for {
		var more bool
		line, more = p.cur.Next()
		if !more {
			return "", 0, 0, false
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	m := rxSbe.FindStringSubmatch(line)
	if m == nil {
		p.rec.report(CondStructural, p.cur.Line(), line, "no match in sbe declaration line")
		p.cur.Back()
		return "", 0, 0, false
	}
	nsample, _ = strconv.Atoi(m[2])
	nbin, _ = strconv.Atoi(m[3])
	p.rec.Fields.Set("NSample", m[2], "")
	p.rec.Fields.Set("NBin", m[3], "")
	return m[1], nsample, nbin, true
}

// parseFix reads a GPS fix block. Failed fix attempts leave position
// and fix time unavailable, never interpolated.
func (p *parser) parseFix() bool {
	var (
		line string
		ok   bool
	)
	for {
		line, ok = p.cur.Next()
		if !ok {
			return false
		}
		if strings.TrimSpace(line) == "" ||
			strings.Contains(line, "# Attempt to get GPS fix failed") {
			continue
		}
		break
	}

	found := false
	switch {
	case strings.Contains(line, "GPS fix obtained"):
		p.cur.Next() // column header line
		line, ok = p.cur.Next()
		if ok {
			if m := rxFix.FindStringSubmatch(line); m != nil {
				lon, errLon := strconv.ParseFloat(m[1], 64)
				lat, errLat := strconv.ParseFloat(m[2], 64)
				t, errT := parseEpoch(m[3])
				if errLon == nil && errLat == nil && errT == nil {
					p.rec.Lon = lon
					p.rec.Lat = lat
					p.rec.fixTime = t
					if f, dup := p.rec.Fields["MessageTime"]; !dup || f.Value == "" {
						p.rec.Fields.setText("MessageTime", m[3], "GMT")
					}
					found = true
				} else {
					p.rec.report(CondStructural, p.cur.Line(), line, "invalid fix line")
				}
			}
		}
	default:
		if f, dup := p.rec.Fields["MessageTime"]; !dup || f.Value == "" {
			p.rec.Fields.setText("MessageTime", "", "")
		}
		p.cur.Back()
	}

	// BGC transmissions carry extra Iridium lines after the fix;
	// their content is not used.
	for {
		line, ok := p.cur.Peek()
		if !ok || !strings.HasPrefix(line, "Iridium") {
			break
		}
		p.cur.Next()
	}
	return found
}

// parseOptode reads the OptodeAirCal trailer rows of APEX BGC
// transmissions.
func (p *parser) parseOptode() [][]string {
	var opt [][]string
	for {
		line, ok := p.cur.Peek()
		if !ok || !strings.HasPrefix(line, "OptodeAirCal:") {
			break
		}
		p.cur.Next()
		m := rxOptode.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		values := strings.Fields(m[2])
		if t, err := parseEpoch(m[1]); err == nil && len(values) > 0 {
			if sec, err := strconv.ParseFloat(values[0], 64); err == nil && sec != t {
				p.rec.report(CondConsistency, p.cur.Line(), line, "mismatching optode time")
			}
		}
		opt = append(opt, values)
	}
	return opt
}

// parseFooter consumes the engineering lines after the fix block up to
// the end-of-transmission sentinel (or end of input).
func (p *parser) parseFooter() {
	arrays := newArrayFields()
	defer arrays.flush(p.rec.Fields)

	for {
		line, ok := p.cur.Next()
		if !ok {
			return
		}
		if strings.Contains(line, "FwRev") {
			p.classify(line)
		}

		switch {
		case strings.Contains(line, "GPS fix"):
			if !math.IsNaN(p.rec.fixTime) {
				// a second fix block repeats the first; skip to <EOT>
				for {
					line, ok = p.cur.Next()
					if !ok {
						return
					}
					if strings.Contains(line, eot) {
						p.cur.Back()
						break
					}
				}
				continue
			}
			p.cur.Back()
			p.parseFix()

		case strings.Contains(line, eot):
			p.rec.Fields.setText("msgEOT", "1", "")
			if !math.IsNaN(p.rec.fixTime) {
				return
			}
			// the fix failed earlier in the transmission; some
			// firmware retries and appends a fix block after <EOT>.
			for {
				line, ok = p.cur.Next()
				if !ok {
					return
				}
				if strings.Contains(line, "GPS fix obtained") {
					p.cur.Back()
					if p.parseFix() {
						return
					}
				}
			}

		default:
			p.footerLine(line, arrays)
		}
	}
}
