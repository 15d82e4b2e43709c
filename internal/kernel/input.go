/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"time"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// Input is everything a run consumes. GlobalWindows holds the available time
// per resource; a nil map leaves every resource unconstrained, while a
// resource missing from a non-nil map is unavailable. SliceSizes only
// matters to the ILP variant.
type Input struct {
	Compounds     []*reservation.CompoundReservation
	GlobalWindows map[string]*interval.Intervals
	Obligations   []*contract.Obligation
	SliceSizes    map[string]float64
}

// Options tune a run.
type Options struct {
	// ClusterThreshold is the unscheduled count above which priority
	// clustering kicks in.
	ClusterThreshold int
	ClusterCount     int

	MaxSolverAttempts int
	SolverBackoff     time.Duration
	ILP               ilp.Options

	Observer RunObserver
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		ClusterThreshold:  10,
		ClusterCount:      3,
		MaxSolverAttempts: 3,
		SolverBackoff:     5 * time.Second,
		ILP:               ilp.DefaultOptions(),
		Observer:          NopObserver{},
	}
}

// Option mutates Options.
type Option func(*Options)

// WithObserver attaches a run observer.
func WithObserver(o RunObserver) Option {
	return func(opts *Options) {
		if o != nil {
			opts.Observer = o
		}
	}
}

// WithClustering overrides the clustering threshold and class count.
func WithClustering(threshold, count int) Option {
	return func(opts *Options) {
		opts.ClusterThreshold = threshold
		opts.ClusterCount = count
	}
}

// WithSolverRetry bounds the retries on an unavailable solver.
func WithSolverRetry(attempts int, backoff time.Duration) Option {
	return func(opts *Options) {
		opts.MaxSolverAttempts = attempts
		opts.SolverBackoff = backoff
	}
}

// WithILPOptions sets the options handed to the solver.
func WithILPOptions(o ilp.Options) Option {
	return func(opts *Options) {
		opts.ILP = o
	}
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.MaxSolverAttempts < 1 {
		o.MaxSolverAttempts = 1
	}
	return o
}

// prepare assigns reservation IDs and clips every candidate window to the
// global availability.
func prepare(in Input) (*reservation.Set, error) {
	set, err := reservation.NewSet(in.Compounds)
	if err != nil {
		return nil, err
	}
	for _, r := range set.All() {
		windows := make(map[string]*interval.Intervals, len(r.Windows))
		for res, w := range r.Windows {
			if in.GlobalWindows != nil {
				g, ok := in.GlobalWindows[res]
				if !ok {
					continue
				}
				w = w.Intersect(g)
			}
			if !w.IsEmpty() {
				windows[res] = w
			}
		}
		r.Windows = windows
	}
	return set, nil
}
