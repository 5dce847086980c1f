// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// flt-dump decodes and displays float archive containers.
//
// Usage: flt-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> flt-dump ./testdata/7890.flt
//	=== float 7890 (wmo 5905123) ===
//	version:      1
//	cycles:       3
//	fields:      42
//	cycle 001: time=2020-11-12T00:08:02Z lon=-152.348 lat=22.448 file=7890.001.msg
//	cycle 002: time=2020-12-01T06:41:55Z lon=-152.355 lat=22.451 file=7890.002.msg
//	cycle 003: time=2021-01-10T06:38:55Z lon=-152.361 lat=22.456 file=7890.003.msg
//	[...]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/go-argo/flt/archive"
)

func main() {
	log.SetPrefix("flt-dump: ")
	log.SetFlags(0)

	fields := flag.Bool("fields", false, "display the engineering fields of each cycle")

	flag.Usage = func() {
		fmt.Printf(`flt-dump decodes and displays float archive containers.

Usage: flt-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> flt-dump ./testdata/7890.flt
 === float 7890 (wmo 5905123) ===
 version:      1
 cycles:       3
 fields:      42
 cycle 001: time=2020-11-12T00:08:02Z lon=-152.348 lat=22.448 file=7890.001.msg
 cycle 002: time=2020-12-01T06:41:55Z lon=-152.355 lat=22.451 file=7890.002.msg
 cycle 003: time=2021-01-10T06:38:55Z lon=-152.361 lat=22.456 file=7890.003.msg
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input archive file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *fields)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, fields bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	s, meta, err := archive.Load(fname)
	if err != nil {
		return fmt.Errorf("could not load archive: %w", err)
	}

	fmt.Fprintf(wbuf, "=== float %d (wmo %d) ===\n", meta.FloatID, meta.WMOID)
	fmt.Fprintf(wbuf, "version: % 6d\n", meta.Version)
	fmt.Fprintf(wbuf, "cycles:  % 6d\n", s.Len())
	fmt.Fprintf(wbuf, "fields:  % 6d\n", len(meta.Fields))

	for i := 0; i < s.Len(); i++ {
		rec := s.At(i)
		fmt.Fprintf(wbuf, "cycle %03d: time=%s lon=%s lat=%s file=%s",
			rec.Cycle,
			timeOf(rec.Time),
			degrees(rec.Lon), degrees(rec.Lat),
			rec.File,
		)
		if rec.Incomplete {
			fmt.Fprintf(wbuf, " (incomplete)")
		}
		fmt.Fprintf(wbuf, "\n")

		if !fields {
			continue
		}
		names := make([]string, 0, len(rec.Fields))
		for name := range rec.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f := rec.Fields[name]
			fmt.Fprintf(wbuf, "  %s = %q", name, f.Value)
			if f.Unit != "" {
				fmt.Fprintf(wbuf, " [%s]", f.Unit)
			}
			fmt.Fprintf(wbuf, "\n")
		}
	}

	return nil
}

func timeOf(epoch float64) string {
	if math.IsNaN(epoch) {
		return "n/a"
	}
	return time.Unix(int64(epoch), 0).UTC().Format(time.RFC3339)
}

func degrees(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}
