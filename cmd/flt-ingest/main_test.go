// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-argo/flt/archive"
	"github.com/go-argo/flt/ledger"
)

const coreMsg = `$ MissionTime(600) [sec]
$ ParkPressure(1000) [dbar]
$ DeepProfilePressure(2000) [dbar]
$ Verbosity(2)
$
ParkPts: Jan 10 2021 00:15:30 25942.01 123 996.2 4.567 34.123
ParkPts: Jan 10 2021 01:15:30 25942.05 124 997.1 4.571 34.120
Profile 3 terminated: Sun Jan 10 06:32:11 2021
$ Discrete samples: 2
$       p        t        s
  998.50   4.5670  34.1230 (Park Sample)
   10.10  12.3456  33.4567
Sbe41cpSerNo[1234] NSample[567] NBin[8]
03E81388856605
03E81388856605
03E81388856605
00000000000000[5]
# GPS fix obtained in 53 seconds.
#          lon      lat mm/dd/yyyy hhmmss nsat
Fix:  -152.361   22.456 01/10/2021 063855
Apf9iFwRev=032512
AirBladderPressure=120
<EOT>
`

const coreLog = `(Jan 10 2021 06:40:00,  123 sec) AirSystem()          Battery [121Cnt, 10.9V] Current [49Cnt, 123.4mA] Barometer [811Cnt, 14.2"Hg]
<EOT>
`

const fleetCSV = `Float ID,Float WMO
7890,5905123
4005,5905456
`

func TestGroupByFloat(t *testing.T) {
	tmp, err := os.MkdirTemp("", "flt-ingest-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	write := func(name, data string) string {
		fname := filepath.Join(tmp, name)
		err := os.WriteFile(fname, []byte(data), 0644)
		if err != nil {
			t.Fatalf("could not write %q: %+v", name, err)
		}
		return fname
	}

	var (
		msg1  = write("7890.001.msg", coreMsg)
		msg3  = write("7890.003.msg", coreMsg)
		log3  = write("7890.003.log", coreLog)
		msg2  = write("4005.002.msg", coreMsg)
		empty = write("7890.004.msg", "")
		lone  = write("9999.001.log", coreLog)
		bad   = write("notes.txt", "hello")
	)

	got := groupByFloat([]string{msg3, log3, msg1, msg2, empty, lone, bad,
		filepath.Join(tmp, "does-not-exist.001.msg"),
	})
	want := map[int][]job{
		7890: {
			{cycle: 1, msg: msg1},
			{cycle: 3, msg: msg3, log: log3},
		},
		4005: {
			{cycle: 2, msg: msg2},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid grouping:\ngot= %#v\nwant=%#v\n", got, want)
	}
}

func TestRunIngest(t *testing.T) {
	tmp, err := os.MkdirTemp("", "flt-ingest-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	write := func(name, data string) string {
		fname := filepath.Join(tmp, name)
		err := os.WriteFile(fname, []byte(data), 0644)
		if err != nil {
			t.Fatalf("could not write %q: %+v", name, err)
		}
		return fname
	}

	write("floats.csv", fleetCSV)
	msg3 := write("7890.003.msg", coreMsg)
	log3 := write("7890.003.log", coreLog)

	args := []string{msg3, log3}
	err = run(tmp, "", tmp, "", true, args)
	if err != nil {
		t.Fatalf("could not run ingestion: %+v", err)
	}

	aname := archive.FileName(tmp, 7890)
	s, meta, err := archive.Load(aname)
	if err != nil {
		t.Fatalf("could not load archive %q: %+v", aname, err)
	}
	if got, want := meta.WMOID, 5905123; got != want {
		t.Fatalf("invalid wmo id: got=%d, want=%d", got, want)
	}
	if got, want := s.Len(), 1; got != want {
		t.Fatalf("invalid number of cycles: got=%d, want=%d", got, want)
	}
	rec := s.At(0)
	if got, want := rec.Cycle, 3; got != want {
		t.Fatalf("invalid cycle: got=%d, want=%d", got, want)
	}
	if got, want := rec.Fields["AirSystemBatteryVal"].Value, "10.9"; got != want {
		t.Fatalf("log transmission not merged: got=%q, want=%q", got, want)
	}
	if got, want := rec.Fields["AirBladderPressure"].Value, "120"; got != want {
		t.Fatalf("invalid field value: got=%q, want=%q", got, want)
	}

	led, err := ledger.Open(filepath.Join(tmp, "ledger.csv"))
	if err != nil {
		t.Fatalf("could not reload ledger: %+v", err)
	}
	if got, want := led.Len(), 2; got != want {
		t.Fatalf("invalid number of ledger rows: got=%d, want=%d", got, want)
	}

	// unchanged inputs: the float is skipped, the archive not rebuilt.
	err = os.Remove(aname)
	if err != nil {
		t.Fatalf("could not remove archive: %+v", err)
	}
	err = run(tmp, "", tmp, "", false, args)
	if err != nil {
		t.Fatalf("could not re-run ingestion: %+v", err)
	}
	_, err = os.Stat(aname)
	if !os.IsNotExist(err) {
		t.Fatalf("archive rebuilt from unchanged transmissions: %+v", err)
	}

	// a modified msg file passes the ledger gate again.
	write("7890.003.msg", strings.Replace(coreMsg,
		"AirBladderPressure=120", "AirBladderPressure=121", 1,
	))
	err = run(tmp, "", tmp, "", false, args)
	if err != nil {
		t.Fatalf("could not re-run ingestion: %+v", err)
	}
	s, _, err = archive.Load(aname)
	if err != nil {
		t.Fatalf("could not reload archive %q: %+v", aname, err)
	}
	if got, want := s.At(0).Fields["AirBladderPressure"].Value, "121"; got != want {
		t.Fatalf("invalid field value after rebuild: got=%q, want=%q", got, want)
	}
}

func TestMailConfigFromEnv(t *testing.T) {
	// credentials must be picked up when set after process start,
	// e.g. injected by godotenv.Load from a .env file.
	t.Setenv("MAIL_USERNAME", "argo@example.org")
	t.Setenv("MAIL_PASSWORD", "s3cr3t")
	t.Setenv("MAIL_SERVER", "smtp.example.org")
	t.Setenv("MAIL_PORT", "587")
	t.Setenv("MAIL_TGTS", "ops@example.org,pi@example.org")

	got := mailConfigFromEnv()
	want := mailConfig{
		usr:  "argo@example.org",
		pwd:  "s3cr3t",
		srv:  "smtp.example.org",
		port: 587,
		tgts: []string{"ops@example.org", "pi@example.org"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid mail config:\ngot= %#v\nwant=%#v\n", got, want)
	}
	if !got.valid() {
		t.Fatalf("mail config %#v must be valid", got)
	}

	t.Setenv("MAIL_TGTS", "")
	if cfg := mailConfigFromEnv(); cfg.valid() {
		t.Fatalf("mail config without targets must not be valid: %#v", cfg)
	}
}

func TestRunIngestUnknownFloat(t *testing.T) {
	tmp, err := os.MkdirTemp("", "flt-ingest-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	err = os.WriteFile(filepath.Join(tmp, "floats.csv"), []byte(fleetCSV), 0644)
	if err != nil {
		t.Fatalf("could not write fleet file: %+v", err)
	}
	fname := filepath.Join(tmp, "1234.001.msg")
	err = os.WriteFile(fname, []byte(coreMsg), 0644)
	if err != nil {
		t.Fatalf("could not write msg file: %+v", err)
	}

	err = run(tmp, "", tmp, "", false, []string{fname})
	if err != nil {
		t.Fatalf("unknown float must not fail the batch: %+v", err)
	}
	_, err = os.Stat(archive.FileName(tmp, 1234))
	if !os.IsNotExist(err) {
		t.Fatalf("archive written for unknown float: %+v", err)
	}
}
