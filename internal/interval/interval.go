/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval implements sorted, non-overlapping time window sets and
// the set algebra the scheduling kernel runs on.
package interval

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// NotFound is returned by FindIntervalOfLength alongside ok=false.
const NotFound = -1.0

// ErrInsufficientTime indicates a trim was requested beyond the available free time.
var ErrInsufficientTime = errors.New("insufficient free time")

// PointType marks a timepoint as opening or closing an interval.
type PointType int

const (
	Start PointType = iota
	End
)

func (p PointType) String() string {
	if p == Start {
		return "start"
	}
	return "end"
}

// Tag records the semantic intent of an interval set. It is not enforced.
type Tag string

const (
	TagNone Tag = ""
	TagFree Tag = "free"
	TagBusy Tag = "busy"
)

// Timepoint is a single instant opening or closing an interval.
type Timepoint struct {
	Time float64
	Type PointType
}

// Less orders by time; at equal times End precedes Start so adjacent
// intervals do not register as overlapping.
func (t Timepoint) Less(o Timepoint) bool {
	if t.Time != o.Time {
		return t.Time < o.Time
	}
	return t.Type == End && o.Type == Start
}

// Intervals is a canonical sorted sequence of start/end timepoints.
type Intervals struct {
	Timepoints []Timepoint
	Tag        Tag
}

// New builds an interval set from raw timepoints, sorting and cleaning them.
func New(timepoints []Timepoint, tag Tag) *Intervals {
	iv := &Intervals{
		Timepoints: append([]Timepoint(nil), timepoints...),
		Tag:        tag,
	}
	iv.CleanUp()
	return iv
}

// FromPairs builds an interval set from [start, end) pairs.
func FromPairs(tag Tag, pairs ...[2]float64) *Intervals {
	tps := make([]Timepoint, 0, 2*len(pairs))
	for _, p := range pairs {
		tps = append(tps, Timepoint{Time: p[0], Type: Start}, Timepoint{Time: p[1], Type: End})
	}
	return New(tps, tag)
}

// Empty returns an empty, non-nil interval set.
func Empty(tag Tag) *Intervals {
	return &Intervals{Tag: tag}
}

// IsEmpty reports whether the set holds no time.
func (iv *Intervals) IsEmpty() bool {
	return iv == nil || len(iv.Timepoints) == 0
}

// Clone returns a deep copy.
func (iv *Intervals) Clone() *Intervals {
	if iv == nil {
		return Empty(TagNone)
	}
	return &Intervals{
		Timepoints: append([]Timepoint(nil), iv.Timepoints...),
		Tag:        iv.Tag,
	}
}

// Add appends raw timepoints and re-cleans. Overlapping or redundant input is fine.
func (iv *Intervals) Add(timepoints ...Timepoint) {
	iv.Timepoints = append(iv.Timepoints, timepoints...)
	iv.CleanUp()
}

// Pairs returns the [start, end) pairs of the set.
func (iv *Intervals) Pairs() [][2]float64 {
	if iv.IsEmpty() {
		return nil
	}
	out := make([][2]float64, 0, len(iv.Timepoints)/2)
	for i := 0; i+1 < len(iv.Timepoints); i += 2 {
		out = append(out, [2]float64{iv.Timepoints[i].Time, iv.Timepoints[i+1].Time})
	}
	return out
}

// TotalTime sums end-start over the set.
func (iv *Intervals) TotalTime() float64 {
	total := 0.0
	for _, p := range iv.Pairs() {
		total += p[1] - p[0]
	}
	return total
}

// FindIntervalOfLength returns the start of the first interval spanning at least length.
func (iv *Intervals) FindIntervalOfLength(length float64) (float64, bool) {
	for _, p := range iv.Pairs() {
		if p[1]-p[0] >= length {
			return p[0], true
		}
	}
	return NotFound, false
}

// Covers reports whether [start, end) lies inside a single interval of the set.
func (iv *Intervals) Covers(start, end float64) bool {
	for _, p := range iv.Pairs() {
		if p[0] <= start && end <= p[1] {
			return true
		}
	}
	return false
}

// TrimToTime keeps the earliest total units of time and drops the rest.
// The set is left untouched when it holds less than total.
func (iv *Intervals) TrimToTime(total float64) error {
	available := iv.TotalTime()
	if available < total {
		return fmt.Errorf("trim to %g with %g available: %w", total, available, ErrInsufficientTime)
	}

	remaining := total
	kept := make([]Timepoint, 0, len(iv.Timepoints))
	for _, p := range iv.Pairs() {
		if remaining <= 0 {
			break
		}
		length := p[1] - p[0]
		end := p[1]
		if length > remaining {
			end = p[0] + remaining
		}
		kept = append(kept, Timepoint{Time: p[0], Type: Start}, Timepoint{Time: end, Type: End})
		remaining -= end - p[0]
	}
	iv.Timepoints = kept
	iv.CleanUp()
	return nil
}

// CleanUp restores the canonical form in two phases. Touching End/Start pairs
// at equal times are merged first, then nested intervals collapse by counting
// open flags: a Start is kept on the 0→1 transition, an End on 1→0.
func (iv *Intervals) CleanUp() {
	if len(iv.Timepoints) == 0 {
		iv.Timepoints = nil
		return
	}
	sorted := append([]Timepoint(nil), iv.Timepoints...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	merged := make([]Timepoint, 0, len(sorted))
	for _, tp := range sorted {
		if tp.Type == Start && len(merged) > 0 {
			last := merged[len(merged)-1]
			if last.Type == End && last.Time == tp.Time {
				merged = merged[:len(merged)-1]
				continue
			}
		}
		merged = append(merged, tp)
	}

	out := make([]Timepoint, 0, len(merged))
	open := 0
	for _, tp := range merged {
		switch tp.Type {
		case Start:
			if open == 0 {
				out = append(out, tp)
			}
			open++
		case End:
			if open == 0 {
				continue
			}
			open--
			if open == 0 {
				out = append(out, tp)
			}
		}
	}
	if open > 0 {
		// unmatched starts: drop the dangling opener
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		out = nil
	}
	iv.Timepoints = out
}

// Complement inverts the set within [absStart, absEnd] and flips a free/busy tag.
func (iv *Intervals) Complement(absStart, absEnd float64) {
	var tps []Timepoint
	cursor := absStart
	for _, p := range iv.Pairs() {
		s, e := math.Max(p[0], absStart), math.Min(p[1], absEnd)
		if e <= s {
			continue
		}
		if s > cursor {
			tps = append(tps, Timepoint{Time: cursor, Type: Start}, Timepoint{Time: s, Type: End})
		}
		if e > cursor {
			cursor = e
		}
	}
	if cursor < absEnd {
		tps = append(tps, Timepoint{Time: cursor, Type: Start}, Timepoint{Time: absEnd, Type: End})
	}
	iv.Timepoints = tps
	iv.CleanUp()

	switch iv.Tag {
	case TagFree:
		iv.Tag = TagBusy
	case TagBusy:
		iv.Tag = TagFree
	}
}

// Intersect returns the time present in the receiver and every other set.
// The result is never nil; an empty operand yields an empty set.
func (iv *Intervals) Intersect(others ...*Intervals) *Intervals {
	threshold := len(others) + 1
	all := append([]Timepoint(nil), iv.points()...)
	for _, o := range others {
		if o.IsEmpty() {
			return Empty(iv.tag())
		}
		all = append(all, o.Timepoints...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Less(all[j]) })

	var out []Timepoint
	open := 0
	for _, tp := range all {
		if tp.Type == Start {
			open++
			if open == threshold {
				out = append(out, tp)
			}
			continue
		}
		if open == threshold {
			out = append(out, tp)
		}
		open--
	}
	return New(out, iv.tag())
}

// Subtract returns the time in the receiver that is not in other.
// When either side is empty the receiver itself is returned, not a copy.
func (iv *Intervals) Subtract(other *Intervals) *Intervals {
	if iv.IsEmpty() || other.IsEmpty() {
		return iv
	}

	type weighted struct {
		tp     Timepoint
		weight int
	}
	all := make([]weighted, 0, len(iv.Timepoints)+len(other.Timepoints))
	for _, tp := range iv.Timepoints {
		all = append(all, weighted{tp: tp, weight: 2})
	}
	for _, tp := range other.Timepoints {
		all = append(all, weighted{tp: tp, weight: 1})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].tp.Less(all[j].tp) })

	var out []Timepoint
	flag := 0
	inside := false
	for _, w := range all {
		if w.tp.Type == Start {
			flag += w.weight
		} else {
			flag -= w.weight
		}
		now := flag == 2
		if now == inside {
			continue
		}
		if now {
			out = append(out, Timepoint{Time: w.tp.Time, Type: Start})
		} else {
			out = append(out, Timepoint{Time: w.tp.Time, Type: End})
		}
		inside = now
	}
	return New(out, iv.Tag)
}

// QuantumStarts aligns each interval start up to the next multiple of
// quantum and lists every aligned offset before the interval end.
// Intervals with an unbounded or NaN edge yield nothing.
func (iv *Intervals) QuantumStarts(quantum float64) []float64 {
	if quantum <= 0 || math.IsInf(quantum, 0) || math.IsNaN(quantum) {
		return nil
	}
	var starts []float64
	for _, p := range iv.Pairs() {
		if math.IsInf(p[0], 0) || math.IsInf(p[1], 0) || math.IsNaN(p[0]) || math.IsNaN(p[1]) {
			continue
		}
		aligned := math.Ceil(p[0]/quantum) * quantum
		for t := aligned; t < p[1]; t += quantum {
			starts = append(starts, t)
		}
	}
	return starts
}

// Union merges several sets into a new one.
func Union(tag Tag, sets ...*Intervals) *Intervals {
	var all []Timepoint
	for _, s := range sets {
		if s.IsEmpty() {
			continue
		}
		all = append(all, s.Timepoints...)
	}
	return New(all, tag)
}

func (iv *Intervals) String() string {
	if iv.IsEmpty() {
		return "[]"
	}
	parts := make([]string, 0, len(iv.Timepoints)/2)
	for _, p := range iv.Pairs() {
		parts = append(parts, fmt.Sprintf("[%g,%g)", p[0], p[1]))
	}
	return strings.Join(parts, " ")
}

func (iv *Intervals) points() []Timepoint {
	if iv == nil {
		return nil
	}
	return iv.Timepoints
}

func (iv *Intervals) tag() Tag {
	if iv == nil {
		return TagNone
	}
	return iv.Tag
}
