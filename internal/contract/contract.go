/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package contract allocates guaranteed telescope time to sponsor
// obligations on top of an existing schedule.
package contract

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/matching"
	"github.com/friendsincode/adaptive_scheduler/internal/quantum"
)

// Obligation is a sponsor's claim on total_time of telescope time, taken in
// Quantum-sized pieces from its acceptable windows.
type Obligation struct {
	Name      string
	Priority  float64
	TotalTime float64
	Quantum   float64
	Windows   map[string]*interval.Intervals

	// TimeToSchedule is the outstanding need; it starts at TotalTime.
	TimeToSchedule float64
	Allocated      map[string]*interval.Intervals
}

// NewObligation constructs an obligation with nothing allocated yet.
func NewObligation(name string, priority, totalTime, quantum float64, windows map[string]*interval.Intervals) *Obligation {
	if windows == nil {
		windows = make(map[string]*interval.Intervals)
	}
	return &Obligation{
		Name:           name,
		Priority:       priority,
		TotalTime:      totalTime,
		Quantum:        quantum,
		Windows:        windows,
		TimeToSchedule: totalTime,
		Allocated:      make(map[string]*interval.Intervals),
	}
}

// Satisfied reports whether the obligation received its full time.
func (o *Obligation) Satisfied() bool {
	return o.TimeToSchedule <= 0
}

// AllocatedTime sums the time granted across resources.
func (o *Obligation) AllocatedTime() float64 {
	total := 0.0
	for _, iv := range o.Allocated {
		total += iv.TotalTime()
	}
	return total
}

func (o *Obligation) resources() []string {
	out := make([]string, 0, len(o.Windows))
	for res, w := range o.Windows {
		if !w.IsEmpty() {
			out = append(out, res)
		}
	}
	sort.Strings(out)
	return out
}

func (o *Obligation) grant(resource string, granted *interval.Intervals) {
	if granted.IsEmpty() {
		return
	}
	o.Allocated[resource] = interval.Union(interval.TagBusy, o.Allocated[resource], granted)
	o.TimeToSchedule -= granted.TotalTime()
	if o.TimeToSchedule < 0 {
		o.TimeToSchedule = 0
	}
}

// Result summarizes an obligation run.
type Result struct {
	Obligations []*Obligation
	Unsatisfied []*Obligation
	// Busy is the input busy time plus every allocation made.
	Busy map[string]*interval.Intervals
}

// Scheduler satisfies obligations uncontended-first and resolves the rest
// with quantum matching.
type Scheduler struct {
	logger zerolog.Logger
}

// New creates an obligation scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With().Str("component", "contract_scheduler").Logger()}
}

// Schedule allocates time to the obligations, highest priority first. busy
// holds the existing committed schedule per resource and global the
// available time per resource (nil means unconstrained). Neither input map
// is mutated.
func (s *Scheduler) Schedule(busy, global map[string]*interval.Intervals, obligations []*Obligation) *Result {
	state := make(map[string]*interval.Intervals, len(busy))
	for res, iv := range busy {
		state[res] = iv.Clone()
	}

	ordered := append([]*Obligation(nil), obligations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	available := make(map[*Obligation]map[string]*interval.Intervals, len(ordered))
	for _, o := range ordered {
		available[o] = make(map[string]*interval.Intervals)
		for _, res := range o.resources() {
			w := o.Windows[res]
			if global != nil {
				g, ok := global[res]
				if !ok {
					continue
				}
				w = w.Intersect(g)
			}
			available[o][res] = w
		}
	}

	// Uncontended time: own windows minus every other obligation's windows
	// minus existing busy time, computed before any allocation.
	uncontended := make(map[*Obligation]map[string]*interval.Intervals, len(ordered))
	for _, o := range ordered {
		uncontended[o] = make(map[string]*interval.Intervals)
		for res, w := range available[o] {
			free := w.Clone()
			for _, other := range ordered {
				if other == o {
					continue
				}
				if ow, ok := other.Windows[res]; ok {
					free = free.Subtract(ow)
				}
			}
			free = free.Subtract(state[res])
			uncontended[o][res] = free
		}
	}

	for _, o := range ordered {
		for _, res := range sortedKeys(uncontended[o]) {
			if o.Satisfied() {
				break
			}
			granted := uncontended[o][res].Clone()
			if granted.TotalTime() > o.TimeToSchedule {
				if err := granted.TrimToTime(o.TimeToSchedule); err != nil {
					s.logger.Error().Err(err).Str("obligation", o.Name).Msg("trim uncontended time failed")
					continue
				}
			}
			o.grant(res, granted)
			state[res] = interval.Union(interval.TagBusy, state[res], granted)
		}
	}

	var remaining []*Obligation
	for _, o := range ordered {
		if !o.Satisfied() {
			remaining = append(remaining, o)
		}
	}

	switch {
	case len(remaining) == 1:
		s.scheduleSingle(remaining[0], available[remaining[0]], state)
	case len(remaining) > 1:
		s.scheduleContended(remaining, available, state)
	}

	result := &Result{Obligations: ordered, Busy: state}
	for _, o := range ordered {
		if o.Satisfied() {
			continue
		}
		result.Unsatisfied = append(result.Unsatisfied, o)
		s.logger.Warn().
			Str("obligation", o.Name).
			Float64("total_time", o.TotalTime).
			Float64("shortfall", o.TimeToSchedule).
			Msg("contractual obligation not satisfied")
	}
	return result
}

func (s *Scheduler) scheduleSingle(o *Obligation, available, state map[string]*interval.Intervals) {
	contended := make(map[string]*interval.Intervals, len(available))
	total := 0.0
	for res, w := range available {
		free := w.Subtract(state[res]).Clone()
		contended[res] = free
		total += free.TotalTime()
	}
	if total < o.TimeToSchedule {
		s.logger.Debug().
			Str("obligation", o.Name).
			Float64("contended_time", total).
			Float64("needed", o.TimeToSchedule).
			Msg("insufficient contended time")
		return
	}
	for _, res := range sortedKeys(contended) {
		if o.Satisfied() {
			break
		}
		granted := contended[res]
		if granted.TotalTime() > o.TimeToSchedule {
			if err := granted.TrimToTime(o.TimeToSchedule); err != nil {
				s.logger.Error().Err(err).Str("obligation", o.Name).Msg("trim contended time failed")
				return
			}
		}
		o.grant(res, granted)
		state[res] = interval.Union(interval.TagBusy, state[res], granted)
	}
}

func (s *Scheduler) scheduleContended(remaining []*Obligation, available map[*Obligation]map[string]*interval.Intervals, state map[string]*interval.Intervals) {
	q := 0.0
	for _, o := range remaining {
		if o.Quantum > q {
			q = o.Quantum
		}
	}
	if q <= 0 {
		s.logger.Error().Err(errors.New("non-positive quantum")).Msg("cannot match contended obligations")
		return
	}

	// U vertices encode (obligation index, required-quantum index). An
	// obligation gets no more vertices than it has candidate slots.
	stride := 1
	needs := make([]int, len(remaining))
	candidates := make([][]quantum.Key, len(remaining))
	for i, o := range remaining {
		for _, res := range sortedKeys(available[o]) {
			free := available[o][res].Subtract(state[res])
			for _, start := range free.QuantumStarts(q) {
				k := quantum.Hash(res, start, q)
				if free.Covers(k.Start, k.End()) {
					candidates[i] = append(candidates[i], k)
				}
			}
		}
		need := math.Min(math.Ceil(o.TimeToSchedule/q), float64(len(candidates[i])))
		needs[i] = int(need)
		if needs[i] > stride {
			stride = needs[i]
		}
	}

	graph := make(map[int][]quantum.Key)
	for i := range remaining {
		for j := 0; j < needs[i]; j++ {
			graph[i*stride+j] = candidates[i]
		}
	}

	matches := matching.Bipartite(graph)
	s.logger.Debug().Int("obligations", len(remaining)).Int("matched_quanta", len(matches)).Msg("contended obligation matching complete")

	keys := make([]quantum.Key, 0, len(matches))
	for k := range matches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Resource != keys[j].Resource {
			return keys[i].Resource < keys[j].Resource
		}
		return keys[i].Start < keys[j].Start
	})
	for _, k := range keys {
		o := remaining[matches[k]/stride]
		granted := interval.FromPairs(interval.TagBusy, [2]float64{k.Start, k.End()})
		o.grant(k.Resource, granted)
		state[k.Resource] = interval.Union(interval.TagBusy, state[k.Resource], granted)
	}
}

func sortedKeys(m map[string]*interval.Intervals) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String summarizes the obligation.
func (o *Obligation) String() string {
	return fmt.Sprintf("obligation %s: %g of %g allocated", o.Name, o.AllocatedTime(), o.TotalTime)
}
