// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"testing"
	"time"
)

func TestParseEpoch(t *testing.T) {
	for _, tc := range []struct {
		str  string
		want time.Time
	}{
		{
			str:  "Thu Nov 12 00:08:02 2020",
			want: time.Date(2020, time.November, 12, 0, 8, 2, 0, time.UTC),
		},
		{
			str:  "Nov 12 2020 00:08:02",
			want: time.Date(2020, time.November, 12, 0, 8, 2, 0, time.UTC),
		},
		{
			str:  "07/20/2021 104130",
			want: time.Date(2021, time.July, 20, 10, 41, 30, 0, time.UTC),
		},
		{
			str:  "Jan  2 2021 03:04:05", // day-of-month padding
			want: time.Date(2021, time.January, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			str:  "  Nov 12 2020 00:08:02 ", // surrounding spaces
			want: time.Date(2020, time.November, 12, 0, 8, 2, 0, time.UTC),
		},
	} {
		t.Run(tc.str, func(t *testing.T) {
			got, err := parseEpoch(tc.str)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.str, err)
			}
			if want := float64(tc.want.Unix()); got != want {
				t.Fatalf("invalid epoch: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestParseEpochInvalid(t *testing.T) {
	for _, str := range []string{
		"",
		"yesterday",
		"2020-11-12T00:08:02Z",
		"Nov 12 00:08:02", // no year
	} {
		if _, err := parseEpoch(str); err == nil {
			t.Fatalf("expected an error for %q", str)
		}
	}
}
