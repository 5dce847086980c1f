// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-argo/flt/series"
)

// FileName returns the canonical archive file name of a float.
func FileName(dir string, floatID int) string {
	return filepath.Join(dir, fmt.Sprintf("%04d.flt", floatID))
}

// Save atomically writes the series to fname: the container is staged
// in a temporary file next to it and moved into place, so a crashed
// run never leaves a half-written archive behind.
func Save(fname string, wmoid int, s *series.Series) error {
	data, err := Marshal(wmoid, s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fname)
	tmp, err := os.CreateTemp(dir, filepath.Base(fname)+".tmp-*")
	if err != nil {
		return fmt.Errorf("archive: could not stage %q: %w", fname, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: could not write %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: could not close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fname); err != nil {
		return fmt.Errorf("archive: could not commit %q: %w", fname, err)
	}
	return nil
}

// Load reads the archive file fname and rebuilds its cycle series.
func Load(fname string) (*series.Series, *Meta, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: could not read %q: %w", fname, err)
	}
	return Unmarshal(data)
}

// LoadOrNew reads the archive of the given float under dir, or starts
// an empty series when no archive exists yet.
func LoadOrNew(dir string, floatID int) (*series.Series, error) {
	fname := FileName(dir, floatID)
	switch _, err := os.Stat(fname); {
	case os.IsNotExist(err):
		return series.New(floatID), nil
	case err != nil:
		return nil, fmt.Errorf("archive: could not stat %q: %w", fname, err)
	}
	s, _, err := Load(fname)
	if err != nil {
		return nil, err
	}
	return s, nil
}
