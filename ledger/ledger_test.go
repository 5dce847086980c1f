// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, fname, data string) {
	t.Helper()
	if err := os.WriteFile(fname, []byte(data), 0644); err != nil {
		t.Fatalf("could not write %q: %+v", fname, err)
	}
}

func TestOpenCreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.csv")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("could not open ledger: %+v", err)
	}
	if got, want := l.Len(), 0; got != want {
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read ledger file: %+v", err)
	}
	want := "Filename,FloatID,WMOID,Type,Profile,Size,Checksum,Processing_date\n"
	if string(data) != want {
		t.Fatalf("invalid header:\ngot = %q\nwant= %q", string(data), want)
	}
}

func TestMarkAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.csv")
	raw := filepath.Join(dir, "4005.012.msg")
	write(t, raw, "payload v1\n")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("could not open ledger: %+v", err)
	}
	l.now = func() time.Time {
		return time.Date(2021, time.January, 20, 16, 30, 0, 0, time.UTC)
	}
	if err := l.Mark(raw, 5905123); err != nil {
		t.Fatalf("could not mark %q: %+v", raw, err)
	}

	// a fresh open must see the appended row.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("could not re-open ledger: %+v", err)
	}
	if got, want := l2.Len(), 1; got != want {
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}
	e := l2.rows[0]
	if e.Filename != raw || e.FloatID != 4005 || e.WMOID != 5905123 ||
		e.Type != "msg" || e.Profile != 12 || e.Size != 11 {
		t.Fatalf("invalid row: %#v", e)
	}
	if got, want := e.Date, "2021/01/20 16:30:00"; got != want {
		t.Fatalf("invalid date: got=%q, want=%q", got, want)
	}
	if got, want := e.Checksum, Sum([]byte("payload v1\n")); got != want {
		t.Fatalf("invalid checksum: got=%q, want=%q", got, want)
	}
}

func TestUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.csv")
	raw := filepath.Join(dir, "4005.012.msg")
	write(t, raw, "payload v1\n")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("could not open ledger: %+v", err)
	}

	// never seen: needs processing.
	ok, err := l.Unchanged(raw)
	if err != nil {
		t.Fatalf("could not check %q: %+v", raw, err)
	}
	if ok {
		t.Fatalf("unseen file reported unchanged")
	}

	if err := l.Mark(raw, 5905123); err != nil {
		t.Fatalf("could not mark %q: %+v", raw, err)
	}

	// identical content: re-processing is a no-op.
	ok, err = l.Unchanged(raw)
	if err != nil {
		t.Fatalf("could not check %q: %+v", raw, err)
	}
	if !ok {
		t.Fatalf("identical file not reported unchanged")
	}

	// changed content needs processing again; the most recent row
	// wins once it is re-marked.
	write(t, raw, "payload v2, longer\n")
	ok, err = l.Unchanged(raw)
	if err != nil {
		t.Fatalf("could not check %q: %+v", raw, err)
	}
	if ok {
		t.Fatalf("changed file reported unchanged")
	}
	if err := l.Mark(raw, 5905123); err != nil {
		t.Fatalf("could not re-mark %q: %+v", raw, err)
	}
	ok, err = l.Unchanged(raw)
	if err != nil {
		t.Fatalf("could not check %q: %+v", raw, err)
	}
	if !ok {
		t.Fatalf("re-marked file not reported unchanged")
	}
	if got, want := l.Len(), 2; got != want {
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}
}

func TestUnchangedByIdentity(t *testing.T) {
	// the same transmission delivered under another path is matched
	// by its (float, cycle, type) identity.
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.csv")

	one := filepath.Join(dir, "4005.012.msg")
	write(t, one, "payload v1\n")

	other := filepath.Join(dir, "mirror")
	if err := os.MkdirAll(other, 0755); err != nil {
		t.Fatalf("could not create dir: %+v", err)
	}
	two := filepath.Join(other, "4005.012.msg")
	write(t, two, "payload v1\n")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("could not open ledger: %+v", err)
	}
	if err := l.Mark(one, 5905123); err != nil {
		t.Fatalf("could not mark %q: %+v", one, err)
	}

	ok, err := l.Unchanged(two)
	if err != nil {
		t.Fatalf("could not check %q: %+v", two, err)
	}
	if !ok {
		t.Fatalf("identical mirrored file not reported unchanged")
	}

	// same identity, different content: needs processing.
	write(t, two, "payload v2\n")
	ok, err = l.Unchanged(two)
	if err != nil {
		t.Fatalf("could not check %q: %+v", two, err)
	}
	if ok {
		t.Fatalf("changed mirrored file reported unchanged")
	}
}

func TestSum(t *testing.T) {
	got := Sum([]byte("payload v1\n"))
	if len(got) != 16 {
		t.Fatalf("invalid checksum length: got=%d, want=%d (%q)", len(got), 16, got)
	}
	if got == Sum([]byte("payload v2\n")) {
		t.Fatalf("different payloads hash alike")
	}
	if !strings.EqualFold(got, Sum([]byte("payload v1\n"))) {
		t.Fatalf("checksum not deterministic")
	}
}
