/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"errors"
	"fmt"

	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// ErrTooManyClusters is returned when more classes are requested than there
// are reservations to fill them.
var ErrTooManyClusters = errors.New("kernel: cluster count out of range")

// ClusterAndOrder splits the priority range of rs into n equal-width bands
// and writes each reservation's band into Order, 1 being the highest
// priority band. Order is reset on every call. On error every reservation is
// left at order 1.
func ClusterAndOrder(rs []*reservation.Reservation, n int) (int, error) {
	for _, r := range rs {
		r.Order = 1
	}
	if n <= 0 || n > len(rs) {
		return 1, fmt.Errorf("%w: %d classes for %d reservations", ErrTooManyClusters, n, len(rs))
	}

	lo, hi := rs[0].Priority, rs[0].Priority
	for _, r := range rs[1:] {
		lo = min(lo, r.Priority)
		hi = max(hi, r.Priority)
	}
	if hi == lo {
		return n, nil
	}

	width := (hi - lo) / float64(n)
	for _, r := range rs {
		band := int((hi - r.Priority) / width)
		if band >= n {
			band = n - 1
		}
		r.Order = band + 1
	}
	return n, nil
}
