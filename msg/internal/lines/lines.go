// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lines provides a line-indexed cursor over a telemetry
// transmission, with peek-without-consume as a first-class operation.
package lines // import "github.com/go-argo/flt/msg/internal/lines"

import "strings"

// Cursor walks the lines of one transmission.
// Transmissions may carry malformed (non UTF-8) bytes; those are
// replaced with U+FFFD instead of failing the whole read.
type Cursor struct {
	lines []string
	pos   int
}

// New creates a cursor over the lines of data.
// Line terminators (LF or CRLF) are stripped.
func New(data []byte) *Cursor {
	txt := strings.ToValidUTF8(string(data), "�")
	txt = strings.TrimSuffix(txt, "\n")
	var ls []string
	if txt != "" {
		ls = strings.Split(txt, "\n")
		for i, l := range ls {
			ls[i] = strings.TrimSuffix(l, "\r")
		}
	}
	return &Cursor{lines: ls}
}

// Next returns the next line and advances the cursor.
// ok is false at end of input.
func (c *Cursor) Next() (line string, ok bool) {
	if c.pos >= len(c.lines) {
		return "", false
	}
	line = c.lines[c.pos]
	c.pos++
	return line, true
}

// Peek returns the next line without consuming it.
func (c *Cursor) Peek() (line string, ok bool) {
	if c.pos >= len(c.lines) {
		return "", false
	}
	return c.lines[c.pos], true
}

// Back rewinds the cursor by one line.
// Calling Back at the beginning of input is a no-op.
func (c *Cursor) Back() {
	if c.pos > 0 {
		c.pos--
	}
}

// Line returns the 1-based number of the line last returned by Next.
func (c *Cursor) Line() int {
	return c.pos
}

// EOF reports whether the cursor reached the end of input.
func (c *Cursor) EOF() bool {
	return c.pos >= len(c.lines)
}
