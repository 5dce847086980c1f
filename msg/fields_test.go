// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"math"
	"testing"

	"github.com/go-argo/flt/msg/internal/lines"
)

func newTestParser(data string) *parser {
	return &parser{
		cur: lines.New([]byte(data)),
		rec: &Record{
			Time:        math.NaN(),
			Lon:         math.NaN(),
			Lat:         math.NaN(),
			Fields:      make(FieldSet),
			fixTime:     math.NaN(),
			profileTime: math.NaN(),
		},
	}
}

func TestFirmware(t *testing.T) {
	for _, tc := range []struct {
		line string
		fw   string
		rev  string
		ok   bool
	}{
		{
			line: "Apf9iFwRev=032512",
			fw:   "Apf9iFwRev",
			rev:  "032512",
			ok:   true,
		},
		{
			line: "$ Npf FwRev 110414",
			fw:   "NpfFwRev",
			rev:  "110414",
			ok:   true,
		},
		{
			line: "Apf11iFwRev=ARGO 2.12.3", // rev keeps the ARGO prefix
			fw:   "Apf11iFwRev",
			rev:  "ARGO 2",
			ok:   true,
		},
		{
			line: "NpfFwRev=BGCi_SUNA_PH_ICE 170607",
			fw:   "BGCi_SUNA_PH_ICE",
			rev:  "170607",
			ok:   true,
		},
		{
			line: "no firmware here",
			ok:   false,
		},
	} {
		t.Run(tc.line, func(t *testing.T) {
			fw, rev, ok := firmware(tc.line)
			if ok != tc.ok {
				t.Fatalf("invalid match: got=%v, want=%v", ok, tc.ok)
			}
			if fw != tc.fw {
				t.Fatalf("invalid firmware: got=%q, want=%q", fw, tc.fw)
			}
			if rev != tc.rev {
				t.Fatalf("invalid revision: got=%q, want=%q", rev, tc.rev)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		line string
		want Class
	}{
		{
			name: "apex-core",
			line: "Apf9iFwRev=032512",
			want: Class{Program: ProgCore, Type: TypeAPEX, Firmware: "Apf9iFwRev", Revision: "032512"},
		},
		{
			name: "navis-bgc",
			line: "NpfFwRev=BGCi_SUNA_PH_ICE 170607",
			want: Class{Program: ProgBGC, Type: TypeNavis, Firmware: "BGCi_SUNA_PH_ICE", Revision: "170607"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestParser("")
			p.classify(tc.line)
			if got := p.rec.Class; got != tc.want {
				t.Fatalf("invalid class: got=%#v, want=%#v", got, tc.want)
			}
		})
	}
}

func TestClassifyConflict(t *testing.T) {
	p := newTestParser("")
	p.classify("Apf9iFwRev=032512")
	p.classify("$ Npf FwRev 110414")
	if got, want := p.rec.Class.Type, TypeAPEX; got != want {
		t.Fatalf("invalid type: got=%v, want=%v", got, want)
	}
	found := false
	for _, c := range p.rec.Report {
		if c.Kind == CondConsistency {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a consistency condition for the type conflict")
	}
}

func TestHeaderLine(t *testing.T) {
	for _, tc := range []struct {
		name  string
		line  string
		field string
		want  Field
	}{
		{
			name:  "with-unit",
			line:  "$ MissionTime(600) [sec]",
			field: "MissionTime",
			want:  Field{Value: "600", Unit: "sec", Kind: KindInteger},
		},
		{
			name:  "no-unit",
			line:  "$ Verbosity(2)",
			field: "Verbosity",
			want:  Field{Value: "2", Kind: KindInteger},
		},
		{
			name:  "park-pressure-is-the-target",
			line:  "$ ParkPressure(1000) [dbar]",
			field: "ParkPressure_target",
			want:  Field{Value: "1000", Unit: "dbar", Kind: KindInteger},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestParser("")
			p.headerLine(tc.line)
			got, ok := p.rec.Fields[tc.field]
			if !ok {
				t.Fatalf("field %q not set (fields=%v)", tc.field, p.rec.Fields)
			}
			if got != tc.want {
				t.Fatalf("invalid field: got=%#v, want=%#v", got, tc.want)
			}
		})
	}
}

func TestHeaderLineDropped(t *testing.T) {
	// credentials and dial strings are never persisted.
	for _, line := range []string{
		"$ Pwd(0xc2ef4c1) [hex]",
		"$ User(f9876)",
		"$ AtDialCmd(ATDT0012345)",
		"$ AltDialCmd(ATDT0054321)",
		"$ DebugBits(0x0001) [hex]",
	} {
		p := newTestParser("")
		p.headerLine(line)
		if n := len(p.rec.Fields); n != 0 {
			t.Fatalf("line %q: field persisted: %v", line, p.rec.Fields)
		}
	}
}

func TestFooterLine(t *testing.T) {
	for _, tc := range []struct {
		name  string
		line  string
		field string
		want  Field
	}{
		{
			name:  "numeric",
			line:  "AirBladderPressure=120",
			field: "AirBladderPressure",
			want:  Field{Value: "120", Kind: KindInteger},
		},
		{
			name:  "hex-decoded",
			line:  "status=0x71",
			field: "status",
			want:  Field{Value: "113", Kind: KindInteger},
		},
		{
			name:  "timestamp-keeps-text",
			line:  "TimeStartTelemetry=1605139682   Thu Nov 12  00:08:02 2020",
			field: "TimeStartTelemetry",
			want:  Field{Value: "1605139682 Thu Nov 12 00:08:02 2020", Kind: KindText},
		},
		{
			name:  "catch-all",
			line:  "FlashErrorsErase=0 failures",
			field: "FlashErrorsErase",
			want:  Field{Value: "0", Unit: " failures", Kind: KindInteger},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestParser("")
			arrays := newArrayFields()
			p.footerLine(tc.line, arrays)
			arrays.flush(p.rec.Fields)
			got, ok := p.rec.Fields[tc.field]
			if !ok {
				t.Fatalf("field %q not set (fields=%v)", tc.field, p.rec.Fields)
			}
			if got != tc.want {
				t.Fatalf("invalid field: got=%#v, want=%#v", got, tc.want)
			}
		})
	}
}

func TestFooterLineDropped(t *testing.T) {
	// credentials, dial strings and debug masks are never persisted,
	// whatever shape the footer delivers them in.
	for _, line := range []string{
		"DebugBits=0x4000",
		"AtDialCmd=0xbeef",
		"Pwd=secret",
		"User=f9876",
		"AltDialCmd=ATDT0054321 modem",
	} {
		p := newTestParser("")
		arrays := newArrayFields()
		p.footerLine(line, arrays)
		arrays.flush(p.rec.Fields)
		if n := len(p.rec.Fields); n != 0 {
			t.Fatalf("line %q: field persisted: %v", line, p.rec.Fields)
		}
	}
}

func TestFooterArrays(t *testing.T) {
	p := newTestParser("")
	arrays := newArrayFields()
	for _, line := range []string{
		"ParkDescentP[0]=6",
		"ParkDescentP[1]=12",
		"ParkDescentP[2]=18",
	} {
		p.footerLine(line, arrays)
	}
	arrays.flush(p.rec.Fields)

	// elements collapse into one ordered list field, under the
	// unabbreviated name.
	got, ok := p.rec.Fields["ParkDescentPistonP"]
	if !ok {
		t.Fatalf("array field not set (fields=%v)", p.rec.Fields)
	}
	want := Field{Value: "6, 12, 18", Unit: "count", Kind: KindArray}
	if got != want {
		t.Fatalf("invalid array field: got=%#v, want=%#v", got, want)
	}
	if _, dup := p.rec.Fields["ParkDescentP"]; dup {
		t.Fatalf("raw array name persisted alongside the renamed one")
	}
}
