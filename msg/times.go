// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// time formats observed in float transmissions, in order of likelihood:
// "Thu Nov 12 00:08:02 2020", "Nov 12 2020 00:08:02", "07/20/2021 104130".
var timeLayouts = []string{
	"Mon Jan _2 15:04:05 2006",
	"Jan _2 2006 15:04:05",
	"01/02/2006 150405",
}

// parseEpoch converts a transmission time string to epoch seconds (UTC).
func parseEpoch(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return float64(t.Unix()), nil
		}
	}
	return 0, xerrors.Errorf("msg: unsupported time string %q", s)
}
