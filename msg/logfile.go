// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-argo/flt/msg/internal/lines"
	"golang.org/x/xerrors"
)

var (
	rxLogCfg = regexp.MustCompile(`LogConfiguration\(\)\s*(\w+)\((.+)\)(?:\s+\[([\w\-/]+)\])?`)
	rxLogFix = regexp.MustCompile(`Profile\s+(\d+)\s+GPS fix`)
	rxPrfOn  = regexp.MustCompile(`Pressure:([\d.]+)dbar`)

	rxAirSys = regexp.MustCompile(`AirSystem\(\)\s+Battery\s*(\[.+,\s*[\d.]+V\])\s*` +
		`Current\s*(\[.+,\s*[\d.]+mA\])\s*` +
		`Barometer\s*(\[.+,\s*[\d.]+"Hg\])`)
	rxAirVal = regexp.MustCompile(`,\s*([\d.]+)([a-zA-Z"]+)\]`)

	rxAirBatAlt = regexp.MustCompile(`Battery Min/Avg/Max\s*(\[.+,\s*[\d./]+V\])`)
	rxAirCurAlt = regexp.MustCompile(`Current Min/Avg/Max\s*(\[.+,\s*[\d./]+\s*mA\])`)
	rxAirBarAlt = regexp.MustCompile(`Barometer\s*(\[.+,\s*[\-\d./]+"Hg\])`)
	rxAirValMid = regexp.MustCompile(`,\s*[\d.]+/([\d.]+)/[\d.]+\s*([a-zA-Z]+)\]`)
	rxAirValBar = regexp.MustCompile(`.*,\s*([\-\d.]+)"Hg`)
)

// ParseLogFile reads the companion log file fname and merges its
// engineering content into rec, as ParseLog does.
func ParseLogFile(fname string, rec *Record) error {
	data, err := os.ReadFile(fname)
	if err != nil {
		return xerrors.Errorf("msg: could not read %q: %w", fname, err)
	}
	ParseLog(filepath.Base(fname), data, rec)
	return nil
}

// ParseLog merges the content of a companion log transmission into the
// record of the same cycle: mission configuration (000 logs only), air
// system readings, the actual deep-profile pressure, and the
// end-of-transmission flag. Fixes found in log files describe the
// previous cycle and are never used for position.
func ParseLog(name string, data []byte, rec *Record) {
	rec.Fields.setText("logEOT", "0", "")

	zeroLog := strings.Contains(name, ".000.log")
	cur := lines.New(data)

	airFound := false
	for {
		line, ok := cur.Next()
		if !ok {
			break
		}
		switch {
		case !airFound && strings.Contains(line, "AirSystem"):
			airFound = parseAirSystem(line, rec)
			if !airFound {
				airFound = parseAirSystemAlt(line, cur, rec)
			}

		case strings.Contains(line, "GpsServices") && strings.Contains(line, "fix obtained"):
			logFixLine(line, cur.Line(), rec)

		case strings.Contains(line, "ProfileInit"):
			if m := rxPrfOn.FindStringSubmatch(line); m != nil {
				rec.Fields.Set("DeepProfilePressure_actual", m[1], "dbar")
			}

		case zeroLog && strings.Contains(line, "LogConfiguration"):
			logCfgLine(line, rec)

		case strings.Contains(line, eot):
			rec.Fields.setText("logEOT", "1", "")
		}
	}
}

// logFixLine handles a "GpsServices ... fix obtained" log line. In all
// known cases the fix describes the previous cycle, so it is only
// reported; the position of the record always comes from the msg fix.
func logFixLine(line string, lineno int, rec *Record) {
	m := rxLogFix.FindStringSubmatch(line)
	if m == nil {
		return
	}
	prof, _ := strconv.Atoi(m[1])
	current := rec.Cycle
	if f, ok := rec.Fields["ProfileId"]; ok {
		if v, err := strconv.Atoi(f.Value); err == nil {
			current = v
		}
	}
	if prof != current {
		rec.report(CondWarning, lineno, line,
			"log fix describes profile %d, current profile is %d", prof, current)
	}
}

// logCfgLine extracts one "LogConfiguration() Name(value) [unit]" line.
// Values already present in the record win, except "null" placeholders.
func logCfgLine(line string, rec *Record) {
	m := rxLogCfg.FindStringSubmatch(line)
	if m == nil {
		return
	}
	name, value, unit := m[1], m[2], m[3]
	if f, ok := rec.Fields[name]; ok && f.Value != "null" {
		return
	}
	switch {
	case skipFields[name]:
		// dropped, never persisted
	case name == "ParkPressure":
		rec.Fields.Set("ParkPressure_target", value, unit)
	default:
		rec.Fields.Set(name, value, unit)
	}
}

// parseAirSystem extracts the single-line air system report:
// battery, current and barometer counts with their values.
func parseAirSystem(line string, rec *Record) bool {
	m := rxAirSys.FindStringSubmatch(line)
	if m == nil {
		// some lines contain "AirSystem" without the readings;
		// the actual information may be in the next lines.
		return false
	}
	rec.Fields.setText("AirSystemBattery", m[1], "")
	rec.Fields.setText("AirSystemCurrent", m[2], "")
	rec.Fields.setText("AirSystemBarometer", m[3], "")

	if v := rxAirVal.FindStringSubmatch(m[1]); v != nil {
		rec.Fields.Set("AirSystemBatteryVal", v[1], v[2])
	}
	if v := rxAirVal.FindStringSubmatch(m[2]); v != nil {
		rec.Fields.Set("AirSystemCurrentVal", v[1], v[2])
	}
	if v := rxAirVal.FindStringSubmatch(m[3]); v != nil {
		rec.Fields.Set("AirSystemBarometerVal", v[1], "inHg")
	}
	return true
}

// parseAirSystemAlt extracts the three-line Min/Avg/Max air system
// report; the middle (average) value is kept. Parsing is stepwise so a
// truncated report still contributes the lines that were good.
func parseAirSystemAlt(line string, cur *lines.Cursor, rec *Record) bool {
	if !strings.Contains(line, "Battery") {
		return false
	}
	m := rxAirBatAlt.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	rec.Fields.setText("AirSystemBattery", m[1], "")
	if v := rxAirValMid.FindStringSubmatch(m[1]); v != nil {
		rec.Fields.Set("AirSystemBatteryVal", v[1], v[2])
	}

	line, ok := cur.Next()
	if !ok {
		return true
	}
	m = rxAirCurAlt.FindStringSubmatch(line)
	if m == nil {
		cur.Back()
		return true
	}
	raw := strings.ReplaceAll(m[1], " mA]", "]")
	rec.Fields.setText("AirSystemCurrent", raw, "")
	if v := rxAirValMid.FindStringSubmatch(m[1]); v != nil {
		rec.Fields.Set("AirSystemCurrentVal", v[1], v[2])
	}

	line, ok = cur.Next()
	if !ok {
		return true
	}
	m = rxAirBarAlt.FindStringSubmatch(line)
	if m == nil {
		cur.Back()
		return true
	}
	rec.Fields.setText("AirSystemBarometer", m[1], "")
	if v := rxAirValBar.FindStringSubmatch(m[1]); v != nil {
		rec.Fields.Set("AirSystemBarometerVal", v[1], "inHg")
	}
	return true
}
