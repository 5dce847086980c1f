// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive persists per-float cycle series as self-describing
// binary containers.
//
// A container is a small framed file: a fixed header with the float
// identity and block lengths, a JSON metadata block describing the
// engineering fields (unit and kind per field), a mebo numeric blob
// (one metric per numeric field, one data point per cycle, the cycle
// index as the timestamp) and a mebo text blob for the string-valued
// fields. Numeric gaps are NaN, text gaps are absent points.
package archive // import "github.com/go-argo/flt/archive"

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/arloliu/mebo/blob"
	"github.com/arloliu/mebo/format"

	"github.com/go-argo/flt/msg"
	"github.com/go-argo/flt/series"
)

// Magic identifies a float archive container.
const Magic = "fltA"

// Version is the container format version.
const Version = 1

// reserved metric names; field names never contain a dot.
const (
	metCycle = "flt.cycle"
	metTime  = "flt.time"
	metLon   = "flt.lon"
	metLat   = "flt.lat"
	metFlags = "flt.incomplete"
	metFile  = "flt.file"
	metType  = "flt.type"
)

// maxTextValue is the longest text value a blob data point can carry.
const maxTextValue = 255

// FieldMeta describes one engineering field of the archive.
type FieldMeta struct {
	Unit string `json:"unit,omitempty"`
	Kind uint8  `json:"kind"`
}

// Meta is the JSON metadata block of a container.
type Meta struct {
	Version int                  `json:"version"`
	FloatID int                  `json:"floatid"`
	WMOID   int                  `json:"wmoid"`
	Fields  map[string]FieldMeta `json:"fields"`
}

type header struct {
	Magic   [4]byte
	Version uint16
	_       uint16
	FloatID uint32
	MetaLen uint32
	NumLen  uint32
	TextLen uint32
}

// blobEpoch is the fixed start time of every encoded blob, so that
// re-encoding an unchanged series yields identical bytes.
var blobEpoch = time.Unix(0, 0).UTC()

// Marshal encodes the series into a container blob.
func Marshal(wmoid int, s *series.Series) ([]byte, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("archive: empty series for float %d", floatIDOf(s))
	}

	meta := Meta{
		Version: Version,
		FloatID: s.FloatID,
		WMOID:   wmoid,
		Fields:  make(map[string]FieldMeta),
	}

	var numNames, textNames []string
	seenNum := make(map[string]bool)
	seenText := make(map[string]bool)
	for _, rec := range s.Records {
		for name, f := range rec.Fields {
			if _, dup := meta.Fields[name]; !dup {
				meta.Fields[name] = FieldMeta{Unit: f.Unit, Kind: uint8(f.Kind)}
			}
			switch f.Kind {
			case msg.KindNumeric, msg.KindInteger:
				if !seenNum[name] {
					seenNum[name] = true
					numNames = append(numNames, name)
				}
			default:
				if !seenText[name] {
					seenText[name] = true
					textNames = append(textNames, name)
				}
			}
		}
	}
	sort.Strings(numNames)
	sort.Strings(textNames)

	numData, err := marshalNumeric(s, numNames)
	if err != nil {
		return nil, err
	}
	textData, err := marshalText(s, textNames)
	if err != nil {
		return nil, err
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("archive: could not encode metadata: %w", err)
	}

	hdr := header{
		Version: Version,
		FloatID: uint32(s.FloatID),
		MetaLen: uint32(len(metaData)),
		NumLen:  uint32(len(numData)),
		TextLen: uint32(len(textData)),
	}
	copy(hdr.Magic[:], Magic)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("archive: could not encode header: %w", err)
	}
	buf.Write(metaData)
	buf.Write(numData)
	buf.Write(textData)
	return buf.Bytes(), nil
}

func floatIDOf(s *series.Series) int {
	if s == nil {
		return 0
	}
	return s.FloatID
}

func marshalNumeric(s *series.Series, names []string) ([]byte, error) {
	enc, err := blob.NewNumericEncoder(blobEpoch,
		blob.WithLittleEndian(),
		blob.WithTimestampEncoding(format.TypeDelta),
		blob.WithValueEncoding(format.TypeGorilla),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: could not create numeric encoder: %w", err)
	}

	n := s.Len()
	add := func(name string, value func(rec *msg.Record) float64) error {
		if err := enc.StartMetricName(name, n); err != nil {
			return fmt.Errorf("archive: could not start metric %q: %w", name, err)
		}
		for _, rec := range s.Records {
			if err := enc.AddDataPoint(int64(rec.Cycle), value(rec), ""); err != nil {
				return fmt.Errorf("archive: could not add %q for cycle %d: %w",
					name, rec.Cycle, err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return fmt.Errorf("archive: could not end metric %q: %w", name, err)
		}
		return nil
	}

	err = add(metCycle, func(rec *msg.Record) float64 { return float64(rec.Cycle) })
	if err != nil {
		return nil, err
	}
	err = add(metTime, func(rec *msg.Record) float64 { return rec.Time })
	if err != nil {
		return nil, err
	}
	err = add(metLon, func(rec *msg.Record) float64 { return rec.Lon })
	if err != nil {
		return nil, err
	}
	err = add(metLat, func(rec *msg.Record) float64 { return rec.Lat })
	if err != nil {
		return nil, err
	}
	err = add(metFlags, func(rec *msg.Record) float64 {
		if rec.Incomplete {
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		err := add(name, func(rec *msg.Record) float64 {
			f, ok := rec.Fields[name]
			if !ok {
				return math.NaN()
			}
			return f.Float()
		})
		if err != nil {
			return nil, err
		}
	}
	data, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("archive: could not finish numeric blob: %w", err)
	}
	return data, nil
}

func marshalText(s *series.Series, names []string) ([]byte, error) {
	enc, err := blob.NewTextEncoder(blobEpoch,
		blob.WithTextLittleEndian(),
		blob.WithTextTimestampEncoding(format.TypeDelta),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: could not create text encoder: %w", err)
	}

	added := 0
	add := func(name string, value func(rec *msg.Record) (string, bool)) error {
		type point struct {
			cycle int
			val   string
		}
		var pts []point
		for _, rec := range s.Records {
			v, ok := value(rec)
			if !ok {
				continue
			}
			if len(v) > maxTextValue {
				v = v[:maxTextValue]
			}
			pts = append(pts, point{rec.Cycle, v})
		}
		if len(pts) == 0 {
			return nil
		}
		if err := enc.StartMetricName(name, len(pts)); err != nil {
			return fmt.Errorf("archive: could not start metric %q: %w", name, err)
		}
		for _, pt := range pts {
			if err := enc.AddDataPoint(int64(pt.cycle), pt.val, ""); err != nil {
				return fmt.Errorf("archive: could not add %q for cycle %d: %w",
					name, pt.cycle, err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return fmt.Errorf("archive: could not end metric %q: %w", name, err)
		}
		added++
		return nil
	}

	err = add(metFile, func(rec *msg.Record) (string, bool) { return rec.File, rec.File != "" })
	if err != nil {
		return nil, err
	}
	err = add(metType, func(rec *msg.Record) (string, bool) { return rec.Type, rec.Type != "" })
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		err := add(name, func(rec *msg.Record) (string, bool) {
			f, ok := rec.Fields[name]
			return f.Value, ok
		})
		if err != nil {
			return nil, err
		}
	}
	if added == 0 {
		return nil, nil
	}
	data, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("archive: could not finish text blob: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a container blob into the cycle series it holds.
func Unmarshal(data []byte) (*series.Series, *Meta, error) {
	var hdr header
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("archive: could not decode header: %w", err)
	}
	if string(hdr.Magic[:]) != Magic {
		return nil, nil, fmt.Errorf("archive: invalid magic %q", hdr.Magic)
	}
	if hdr.Version != Version {
		return nil, nil, fmt.Errorf("archive: unknown version %d", hdr.Version)
	}

	hdrLen := binary.Size(hdr)
	want := hdrLen + int(hdr.MetaLen) + int(hdr.NumLen) + int(hdr.TextLen)
	if len(data) != want {
		return nil, nil, fmt.Errorf("archive: invalid container size: got=%d, want=%d",
			len(data), want)
	}
	metaData := data[hdrLen : hdrLen+int(hdr.MetaLen)]
	numData := data[hdrLen+int(hdr.MetaLen) : hdrLen+int(hdr.MetaLen)+int(hdr.NumLen)]
	textData := data[want-int(hdr.TextLen):]

	var meta Meta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, fmt.Errorf("archive: could not decode metadata: %w", err)
	}

	dec, err := blob.NewNumericDecoder(numData)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: could not decode numeric blob: %w", err)
	}
	num, err := dec.Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("archive: could not decode numeric blob: %w", err)
	}

	s := series.New(meta.FloatID)
	recs := make(map[int]*msg.Record)
	for _, pt := range collect(num.AllByName(metCycle)) {
		cycle := int(pt.Val)
		rec := &msg.Record{
			FloatID: meta.FloatID,
			Cycle:   cycle,
			Time:    math.NaN(),
			Lon:     math.NaN(),
			Lat:     math.NaN(),
			Fields:  make(msg.FieldSet),
		}
		recs[cycle] = rec
		if err := s.Merge(rec); err != nil {
			return nil, nil, fmt.Errorf("archive: could not rebuild cycle %d: %w", cycle, err)
		}
	}

	for _, name := range num.MetricNames() {
		for _, pt := range collect(num.AllByName(name)) {
			rec, ok := recs[int(pt.Ts)]
			if !ok {
				continue
			}
			switch name {
			case metCycle:
				// already handled
			case metTime:
				rec.Time = pt.Val
			case metLon:
				rec.Lon = pt.Val
			case metLat:
				rec.Lat = pt.Val
			case metFlags:
				rec.Incomplete = pt.Val != 0
			default:
				// numeric fields are restored from the text block
				// when present there; otherwise from the number.
				if _, dup := rec.Fields[name]; !dup && !math.IsNaN(pt.Val) {
					fm := meta.Fields[name]
					rec.Fields[name] = msg.Field{
						Value: formatFloat(pt.Val),
						Unit:  fm.Unit,
						Kind:  msg.Kind(fm.Kind),
					}
				}
			}
		}
	}

	if hdr.TextLen > 0 {
		tdec, err := blob.NewTextDecoder(textData)
		if err != nil {
			return nil, nil, fmt.Errorf("archive: could not decode text blob: %w", err)
		}
		txt, err := tdec.Decode()
		if err != nil {
			return nil, nil, fmt.Errorf("archive: could not decode text blob: %w", err)
		}
		for _, name := range txt.MetricNames() {
			for _, pt := range collectText(txt.AllByName(name)) {
				rec, ok := recs[int(pt.Ts)]
				if !ok {
					continue
				}
				switch name {
				case metFile:
					rec.File = pt.Val
				case metType:
					rec.Type = pt.Val
				default:
					fm := meta.Fields[name]
					rec.Fields[name] = msg.Field{
						Value: pt.Val,
						Unit:  fm.Unit,
						Kind:  msg.Kind(fm.Kind),
					}
				}
			}
		}
	}
	return s, &meta, nil
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func collect(seq func(func(int, blob.NumericDataPoint) bool)) []blob.NumericDataPoint {
	var pts []blob.NumericDataPoint
	for _, pt := range seq {
		pts = append(pts, pt)
	}
	return pts
}

func collectText(seq func(func(int, blob.TextDataPoint) bool)) []blob.TextDataPoint {
	var pts []blob.TextDataPoint
	for _, pt := range seq {
		pts = append(pts, pt)
	}
	return pts
}
