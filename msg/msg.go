// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package msg parses raw telemetry transmissions from Argo profiling
// floats (msg and log files) into per-cycle engineering records.
//
// A transmission is a semi-structured text blob: a header of
// "$ name(value) [unit]" lines, optional park-point and discrete-sample
// tables, a block of fixed-width hexadecimal sensor readings, a GPS fix
// and a footer of "name=value" lines. Formatting varies across firmware
// revisions and float models; parsing is best-effort and records every
// recoverable condition instead of aborting.
package msg // import "github.com/go-argo/flt/msg"

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Program is the float program class, resolved from firmware lines.
type Program uint8

const (
	ProgCore Program = iota // core CTD-only program
	ProgBGC                 // biogeochemical program
)

func (p Program) String() string {
	switch p {
	case ProgBGC:
		return "BGC"
	default:
		return "Core"
	}
}

// FloatType is the hardware family of a float.
type FloatType uint8

const (
	TypeUnknown FloatType = iota
	TypeAPEX
	TypeNavis
)

func (t FloatType) String() string {
	switch t {
	case TypeAPEX:
		return "APEX"
	case TypeNavis:
		return "Navis"
	default:
		return "Unknown"
	}
}

// Class is the program/hardware classification of a transmission.
// It is resolved once (from firmware-revision lines and header content)
// and selects the park-line prefix and the hex channel layout.
type Class struct {
	Program  Program
	Type     FloatType
	Firmware string // firmware field name, e.g. "Apf9iFwRev"
	Revision string // firmware revision, e.g. "032512"
}

// parkPrefix returns the line prefix of park-point runs for the class.
func (c Class) parkPrefix() string {
	if c.Program != ProgBGC {
		return "ParkPts"
	}
	switch c.Type {
	case TypeNavis:
		return "ParkObs"
	default:
		return "ParkPtFlbb"
	}
}

// Kind tags the type of a decoded field value.
type Kind uint8

const (
	KindText Kind = iota
	KindNumeric
	KindInteger
	KindArray
)

// Field is one decoded (value, unit) pair.
type Field struct {
	Value string
	Unit  string
	Kind  Kind
}

// Float returns the field value as a float64, NaN when the value does
// not parse as a number.
func (f Field) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimPrefix(f.Value, "0x"), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FieldSet maps field names to decoded fields.
// Within one transmission the last write wins.
type FieldSet map[string]Field

// Set stores a field, inferring its kind from the value.
func (fs FieldSet) Set(name, value, unit string) {
	fs[name] = Field{Value: value, Unit: unit, Kind: kindOf(value)}
}

func (fs FieldSet) setNum(name string, v float64, unit string) {
	fs[name] = Field{Value: formatNum(v), Unit: unit, Kind: KindNumeric}
}

func (fs FieldSet) setText(name, value, unit string) {
	fs[name] = Field{Value: value, Unit: unit, Kind: KindText}
}

func formatNum(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func kindOf(v string) Kind {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return KindInteger
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return KindNumeric
	}
	return KindText
}

// HighRes is the decoded high-resolution payload of one transmission:
// an (samples x channels) array of calibrated values.
type HighRes struct {
	Cols       []string
	Data       [][]float64
	N          int  // number of valid decoded samples
	Incomplete bool // payload truncated by a malformed or short line
}

// ParkTable holds the park-point rows of one transmission.
// Column 0 ("Date") is epoch seconds.
type ParkTable struct {
	Cols       []string
	Rows       [][]float64
	Incomplete bool
}

// DiscreteTable holds the low-resolution discrete samples.
// Values are kept as the raw text tokens; Park flags samples carrying
// the "(Park Sample)" marker.
type DiscreteTable struct {
	Cols       []string
	Rows       [][]string
	Park       []bool
	Incomplete bool
}

// Col returns the index of the named column, -1 when absent.
func (d *DiscreteTable) Col(name string) int {
	for i, c := range d.Cols {
		if c == name {
			return i
		}
	}
	return -1
}

// CondKind classifies a recoverable parse condition.
type CondKind uint8

const (
	CondStructural  CondKind = iota // section or line could not be matched
	CondDecode                      // hex payload malformed or short
	CondConsistency                 // ambiguous or conflicting content
	CondWarning                     // noteworthy but expected condition
)

func (k CondKind) String() string {
	switch k {
	case CondStructural:
		return "structural"
	case CondDecode:
		return "decode"
	case CondConsistency:
		return "consistency"
	default:
		return "warning"
	}
}

// Condition is one recoverable condition met while parsing, with enough
// context (file, line, text) to be triaged.
type Condition struct {
	Kind CondKind
	Line int    // 1-based line number, 0 when not line-bound
	Text string // offending line, possibly empty
	Msg  string
}

func (c Condition) String() string {
	if c.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s (%q)", c.Kind, c.Line, c.Msg, c.Text)
	}
	return fmt.Sprintf("%s: %s", c.Kind, c.Msg)
}

// Record is the unit of persistence: everything decoded from the
// transmissions of one float cycle.
type Record struct {
	File    string // base name of the source transmission
	FloatID int
	Cycle   int
	Type    string // file type tag: "msg", "log", ...

	Class Class

	Time float64 // epoch seconds; NaN when unavailable
	Lon  float64 // degrees east; NaN when unavailable
	Lat  float64 // degrees north; NaN when unavailable

	Fields   FieldSet
	HighRes  *HighRes
	Park     *ParkTable
	Discrete *DiscreteTable
	Optode   [][]string // OptodeAirCal rows (APEX BGC only)

	Incomplete bool
	Report     []Condition

	fixTime     float64
	profileTime float64
}

func (rec *Record) report(kind CondKind, line int, text, format string, args ...interface{}) {
	rec.Report = append(rec.Report, Condition{
		Kind: kind,
		Line: line,
		Text: text,
		Msg:  fmt.Sprintf(format, args...),
	})
}

// fields whose content is security- or noise-bearing.
// they are dropped before the field set is returned, never persisted.
var skipFields = map[string]bool{
	"AltDialCmd": true,
	"AtDialCmd":  true,
	"DebugBits":  true,
	"Pwd":        true,
	"User":       true,
}

var rxName = regexp.MustCompile(`(\d+)\.(\d+)\.(\w+)$`)

// SplitName splits a transmission file name of the form
// <floatid>.<cycle>.<type> into its parts.
func SplitName(name string) (floatID, cycle int, ftype string, err error) {
	m := rxName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, "", xerrors.Errorf("msg: unexpected file name %q", name)
	}
	floatID, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, "", xerrors.Errorf("msg: invalid float id in %q: %w", name, err)
	}
	cycle, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, "", xerrors.Errorf("msg: invalid cycle in %q: %w", name, err)
	}
	return floatID, cycle, m[3], nil
}

// ParseFile reads and parses the transmission file fname.
func ParseFile(fname string) (*Record, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, xerrors.Errorf("msg: could not read %q: %w", fname, err)
	}
	return Parse(filepath.Base(fname), data)
}
