/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package quantum discretizes free windows into aligned start slots and
// encodes those slots as matching-graph vertices.
package quantum

import "github.com/friendsincode/adaptive_scheduler/internal/reservation"

// Key identifies a quantum-aligned slot on a resource.
type Key struct {
	Resource string
	Start    float64
	Quantum  float64
}

// Hash encodes a slot as a comparable key.
func Hash(resource string, start, quantum float64) Key {
	return Key{Resource: resource, Start: start, Quantum: quantum}
}

// Unhash decodes a key back into its parts.
func Unhash(k Key) (string, float64, float64) {
	return k.Resource, k.Start, k.Quantum
}

// End returns the exclusive end of the slot.
func (k Key) End() float64 {
	return k.Start + k.Quantum
}

// QuantizeWindows lists the quantum-aligned starts of the reservation's
// windows on resource as keys.
func QuantizeWindows(r *reservation.Reservation, quantum float64, resource string) []Key {
	windows, ok := r.Windows[resource]
	if !ok {
		return nil
	}
	starts := windows.QuantumStarts(quantum)
	keys := make([]Key, 0, len(starts))
	for _, s := range starts {
		keys = append(keys, Hash(resource, s, quantum))
	}
	return keys
}

// MaxDuration returns the longest duration among the reservations.
func MaxDuration(reservations []*reservation.Reservation) float64 {
	longest := 0.0
	for _, r := range reservations {
		if r.Duration > longest {
			longest = r.Duration
		}
	}
	return longest
}
