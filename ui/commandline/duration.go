// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRegexp = regexp.MustCompile(`^(\d+\.?\d*)([µa-z]+)$`)

// FormatDuration pretty prints duration with at most 2 decimal places, e.g. "1.23s" or "450.00ms".
// Durations with more than one unit (like "1m30.5s") are returned as is.
func FormatDuration(d time.Duration) string {
	s := d.String()
	matches := durationRegexp.FindStringSubmatch(s)
	if len(matches) != 3 {
		return s
	}
	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%.2f%s", num, matches[2])
}
