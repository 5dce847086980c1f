// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"regexp"
	"strconv"
	"strings"
)

// header line shapes, in priority order.
var (
	rxHdrUnit  = regexp.MustCompile(`^\$\s+(\w+)\((.+)\)\s+\[([\w\-/]+)\]`)
	rxHdrPlain = regexp.MustCompile(`^\$\s+(\w+)\((.+)\)`)
)

// footer line shapes, in priority order.
var (
	rxFootHex = regexp.MustCompile(`(\w+)=0x([\da-f]+)`)
	rxFootNum = regexp.MustCompile(`(\w+)=([\d.\-]+)(.*)`)
	rxFootArr = regexp.MustCompile(`(\w+)\[(\d+)\]=(.+)`)
	rxFootAny = regexp.MustCompile(`(\w+)=(.+)`)
)

// firmware-revision line shapes. The first matches APEX and Navis core
// firmware, the other two the Navis BGC variants
// (e.g. "NpfFwRev=BGCi_SUNA_PH_ICE 170607").
var (
	rxFwCore   = regexp.MustCompile(`([AN]pf\d*i?).*FwRev[ =]((?:ARGO )?\d+)`)
	rxFwNavis  = regexp.MustCompile(`(Npf.*)\(.*FwRev\s*\w+\s*(\d+)`)
	rxFwNavis2 = regexp.MustCompile(`NpfFwRev=(.*)\s+(\d+)`)
)

// firmware extracts the firmware field name and revision from a
// FwRev line.
func firmware(line string) (fw, rev string, ok bool) {
	if m := rxFwCore.FindStringSubmatch(line); m != nil {
		fw, rev = m[1], m[2]
		if !strings.Contains(fw, "FwRev") {
			fw += "FwRev"
		}
		return fw, rev, true
	}
	if m := rxFwNavis.FindStringSubmatch(line); m != nil {
		fw, rev = m[1], m[2]
		if !strings.Contains(fw, "FwRev") {
			fw += "FwRev"
		}
		return fw, rev, true
	}
	if m := rxFwNavis2.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

// classify updates the transmission classification from a FwRev line.
// Conflicting hardware families are reported, first resolution wins.
func (p *parser) classify(line string) {
	var typ FloatType
	switch {
	case strings.Contains(line, "Apf"):
		typ = TypeAPEX
	case strings.Contains(line, "Npf"):
		typ = TypeNavis
	}
	cls := &p.rec.Class
	switch {
	case typ == TypeUnknown:
		p.rec.report(CondConsistency, p.cur.Line(), line, "unexpected FwRev line")
	case cls.Type == TypeUnknown:
		cls.Type = typ
	case cls.Type != typ:
		p.rec.report(CondConsistency, p.cur.Line(), line,
			"float type conflict: have %v, line says %v", cls.Type, typ)
	}

	fw, rev, ok := firmware(line)
	if !ok {
		p.rec.report(CondStructural, p.cur.Line(), line, "FwRev not found in line")
		return
	}
	cls.Firmware = fw
	cls.Revision = rev
	low := strings.ToLower(fw + " " + rev)
	if strings.Contains(low, "bgc") || strings.Contains(low, "suna") {
		cls.Program = ProgBGC
	}
}

// headerLine extracts one field from a header line.
func (p *parser) headerLine(line string) {
	if m := rxHdrUnit.FindStringSubmatch(line); m != nil {
		p.setHeaderField(m[1], m[2], m[3])
		return
	}
	if m := rxHdrPlain.FindStringSubmatch(line); m != nil {
		p.setHeaderField(m[1], m[2], "")
		return
	}
	if strings.Contains(line, "FwRev") {
		p.classify(line)
		return
	}
	p.rec.report(CondStructural, p.cur.Line(), line, "no match (header)")
}

func (p *parser) setHeaderField(name, value, unit string) {
	switch {
	case name == "ParkPressure":
		// the park target pressure. the actual value comes from the
		// park-flagged discrete sample and must not overwrite it.
		p.rec.Fields.Set("ParkPressure_target", value, unit)
	case skipFields[name]:
		// dropped, never persisted
	default:
		p.rec.Fields.Set(name, value, unit)
	}
}

// footerLine extracts one field from a footer line. It returns false
// for lines the extractor does not own (GPS fix blocks, <EOT>).
func (p *parser) footerLine(line string, arrays *arrayFields) {
	if m := rxFootHex.FindStringSubmatch(line); m != nil {
		v, err := strconv.ParseUint(m[2], 16, 64)
		if err != nil {
			p.rec.report(CondStructural, p.cur.Line(), line, "invalid hex value %q", m[2])
			return
		}
		p.setFooterField(m[1], strconv.FormatUint(v, 10), "")
		return
	}
	if m := rxFootNum.FindStringSubmatch(line); m != nil {
		if strings.HasPrefix(m[1], "TimeSt") {
			// timestamps keep their whole right-hand side,
			// with runs of spaces collapsed.
			v := strings.Join(strings.Fields(m[2]+" "+m[3]), " ")
			p.rec.Fields.setText(m[1], v, "")
			return
		}
		p.setFooterField(m[1], m[2], m[3])
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	if m := rxFootArr.FindStringSubmatch(line); m != nil {
		// array element, e.g. ParkDescentP[0]=6: elements accumulate
		// into one ordered list field, assumed delivered in ascending
		// index order.
		arrays.add(m[1], m[3])
		return
	}
	if m := rxFootAny.FindStringSubmatch(line); m != nil {
		p.setFooterField(m[1], m[2], "")
		return
	}
	if !strings.Contains(line, "=") {
		p.rec.report(CondStructural, p.cur.Line(), line, "incomplete footer line")
		return
	}
	p.rec.report(CondStructural, p.cur.Line(), line, "no match (footer)")
}

func (p *parser) setFooterField(name, value, unit string) {
	if skipFields[name] {
		return
	}
	p.rec.Fields.Set(name, value, unit)
}

// arrayFields accumulates name[i]=value footer lines, keeping first-seen
// name order.
type arrayFields struct {
	names  []string
	values map[string][]string
}

func newArrayFields() *arrayFields {
	return &arrayFields{values: make(map[string][]string)}
}

func (a *arrayFields) add(name, value string) {
	if _, dup := a.values[name]; !dup {
		a.names = append(a.names, name)
	}
	a.values[name] = append(a.values[name], value)
}

func (a *arrayFields) flush(fs FieldSet) {
	for _, name := range a.names {
		out := name
		if name == "ParkDescentP" {
			out = "ParkDescentPistonP"
		}
		fs[out] = Field{
			Value: strings.Join(a.values[name], ", "),
			Unit:  "count",
			Kind:  KindArray,
		}
	}
}
