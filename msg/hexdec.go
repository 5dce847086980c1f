// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// High-resolution payload lines are concatenated fixed-width hex fields
// with no delimiter. Field widths and conversion rules depend on the
// program/hardware classification.
//
// The primary channels (pressure, temperature, salinity) use a signed,
// two's-complement-like interpretation layered on the unsigned hex read:
// raw values are compared against a channel-specific zero-reference
// constant; above it they decode as (raw-65536)/scale, below as
// raw/scale, exactly at it as "not available". This reproduces the
// documented conversion of the float firmware (after Dan Quittman's
// hextop/hextot/hextos routines).

// notAvail24 is the maximum representable 24-bit unsigned value;
// it always decodes as "not available", on every channel.
const notAvail24 = 1<<24 - 1

type convKind uint8

const (
	convCount    convKind = iota // raw count, no conversion
	convPressure                 // ref 32768, scale 10
	convTempSal                  // ref 61440, scale 1000
	convO2Phase                  // raw*1e-5 - 10
	convO2TempV                  // raw*1e-6 - 1
	convMCOMS                    // raw - 500
	convPHVolts                  // raw*1e-6 - 2.5
)

func convert(raw float64, kind convKind) float64 {
	if raw == notAvail24 {
		return math.NaN()
	}
	switch kind {
	case convPressure:
		return convertPrimary(raw, 32768, 10)
	case convTempSal:
		return convertPrimary(raw, 61440, 1000)
	case convO2Phase:
		return raw*1e-5 - 10
	case convO2TempV:
		return raw*1e-6 - 1
	case convMCOMS:
		return raw - 500
	case convPHVolts:
		return raw*1e-6 - 2.5
	default:
		return raw
	}
}

func convertPrimary(raw, ref, scale float64) float64 {
	switch {
	case raw == ref:
		return math.NaN()
	case raw > ref:
		return (raw - 65536) / scale
	default:
		return raw / scale
	}
}

type channel struct {
	name  string
	width int
	conv  convKind
}

// layout is the channel set of one classification, in line order.
type layout struct {
	name     string
	navisBGC bool
	chans    []channel
}

func (l *layout) cols() []string {
	cols := make([]string, len(l.chans))
	for i, ch := range l.chans {
		cols[i] = ch.name
	}
	return cols
}

func (l *layout) width() int {
	n := 0
	for _, ch := range l.chans {
		n += ch.width
	}
	return n
}

var (
	layoutCore = &layout{
		name: "core",
		chans: []channel{
			{"p", 4, convPressure},
			{"t", 4, convTempSal},
			{"s", 4, convTempSal},
			{"nbin", 2, convCount},
		},
	}

	// Navis BGC with pH voltage and pH temperature channels
	// (0949.*.msg format).
	layoutNavisBGCPhT = &layout{
		name:     "navis-bgc-pht",
		navisBGC: true,
		chans: []channel{
			{"p", 4, convPressure},
			{"t", 4, convTempSal},
			{"s", 4, convTempSal},
			{"nbin_ctd", 2, convCount},
			{"O2ph", 6, convO2Phase},
			{"O2tV", 6, convO2TempV},
			{"nbin_oxygen", 2, convCount},
			{"Mch1", 6, convMCOMS},
			{"Mch2", 6, convMCOMS},
			{"Mch3", 6, convMCOMS},
			{"nbin_MCOMS", 2, convCount},
			{"phV", 6, convPHVolts},
			{"phT", 4, convTempSal},
			{"nbin_pH", 2, convCount},
		},
	}

	// Navis BGC with a single pH voltage channel (146x.*.msg format).
	layoutNavisBGCPhV = &layout{
		name:     "navis-bgc-phv",
		navisBGC: true,
		chans: []channel{
			{"p", 4, convPressure},
			{"t", 4, convTempSal},
			{"s", 4, convTempSal},
			{"nbin_ctd", 2, convCount},
			{"O2ph", 6, convO2Phase},
			{"O2tV", 6, convO2TempV},
			{"nbin_oxygen", 2, convCount},
			{"Mch1", 6, convMCOMS},
			{"Mch2", 6, convMCOMS},
			{"Mch3", 6, convMCOMS},
			{"nbin_MCOMS", 2, convCount},
			{"phV", 6, convPHVolts},
			{"nbin_pH", 2, convCount},
		},
	}
)

// layout selects the channel layout for the transmission's
// classification. Navis BGC payloads exist in two variants told apart
// by the pH column names of the discrete-sample block.
func (p *parser) layout() (*layout, error) {
	cls := p.rec.Class
	if cls.Program != ProgBGC || cls.Type != TypeNavis {
		return layoutCore, nil
	}
	if p.rec.Discrete == nil {
		return nil, xerrors.Errorf("msg: no discrete columns to select the Navis BGC payload layout")
	}
	switch {
	case p.rec.Discrete.Col("phV") >= 0 && p.rec.Discrete.Col("phT") >= 0:
		return layoutNavisBGCPhT, nil
	case p.rec.Discrete.Col("phVrs") >= 0 && p.rec.Discrete.Col("phVk") >= 0:
		return layoutNavisBGCPhV, nil
	default:
		return nil, xerrors.Errorf("msg: unsupported Navis BGC payload layout (columns %v)",
			p.rec.Discrete.Cols)
	}
}

var (
	// all-zero padding line, with an optional bracketed repeat count.
	rxZeros = regexp.MustCompile(`^00000000[0-9A-F]*(?:\[(\d+)\])?$`)
	// regular payload line: hex digits only.
	rxHexLine = regexp.MustCompile(`^[0-9A-F]+$`)
)

// parseHighRes decodes the high-resolution payload: up to nbin lines of
// concatenated fixed-width hex fields. An all-zero line with repeat
// count N marks N implicitly empty payload slots; when the count
// reaches the declared bin count, decoding ends. Malformed or short
// lines truncate the payload (samples decoded so far are retained) and
// mark it incomplete.
func (p *parser) parseHighRes(nbin int, l *layout) *HighRes {
	if l.navisBGC {
		// an empty line, then the sensor serial-number line
		// ("ser1: SBE63, ...  ser2: MCOMS, ..."); not used.
		p.cur.Next()
		p.cur.Next()
	}

	hr := &HighRes{Cols: l.cols()}
	width := l.width()

	slot := 0
	for slot < nbin {
		line, ok := p.cur.Next()
		if !ok {
			hr.Incomplete = true
			break
		}
		line = strings.TrimSpace(line)

		if strings.Contains(line, "#") {
			// an incomplete payload line commingled with the next
			// section ("# GPS fix ...")
			p.rec.report(CondDecode, p.cur.Line(), line, "unexpected line in high-res section")
			p.cur.Back()
			hr.Incomplete = true
			break
		}

		if m := rxZeros.FindStringSubmatch(line); m != nil {
			nrep := 1
			if m[1] != "" {
				nrep, _ = strconv.Atoi(m[1])
			}
			if slot+nrep >= nbin {
				// end of valid payload
				break
			}
			slot += nrep
			continue
		}

		if !rxHexLine.MatchString(line) {
			p.rec.report(CondDecode, p.cur.Line(), line, "premature end of high-res data")
			if !strings.Contains(line, "Resm") {
				p.cur.Back()
			}
			hr.Incomplete = true
			break
		}
		if len(line) < width {
			p.rec.report(CondDecode, p.cur.Line(), line,
				"high-res line shorter than expected: got=%d, want=%d", len(line), width)
			hr.Incomplete = true
			break
		}

		row := make([]float64, len(l.chans))
		off := 0
		for i, ch := range l.chans {
			raw, err := strconv.ParseUint(line[off:off+ch.width], 16, 64)
			if err != nil {
				row[i] = math.NaN()
			} else {
				row[i] = convert(float64(raw), ch.conv)
			}
			off += ch.width
		}
		hr.Data = append(hr.Data, row)
		hr.N++
		slot++
	}

	if l.navisBGC && !hr.Incomplete {
		// usually "Resm 0, Rstr 0, Rbt 0"; not used
		if line, ok := p.cur.Peek(); ok && strings.HasPrefix(line, "Resm") {
			p.cur.Next()
		}
	}
	return hr
}
