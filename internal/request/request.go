/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package request decodes scheduling requests. Documents are YAML; JSON
// bodies decode through the same path.
package request

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid request")

// Windows maps a resource to [start, end) pairs.
type Windows map[string][][2]float64

// Reservation is one observation request.
type Reservation struct {
	Name     string  `yaml:"name" json:"name"`
	Priority float64 `yaml:"priority" json:"priority"`
	Duration float64 `yaml:"duration" json:"duration"`
	Windows  Windows `yaml:"windows" json:"windows"`
}

// Compound groups reservations under an operator.
type Compound struct {
	Type         string        `yaml:"type" json:"type"`
	Reservations []Reservation `yaml:"reservations" json:"reservations"`
}

// Obligation is a contracted amount of time.
type Obligation struct {
	Name      string  `yaml:"name" json:"name"`
	Priority  float64 `yaml:"priority" json:"priority"`
	TotalTime float64 `yaml:"total_time" json:"total_time"`
	Quantum   float64 `yaml:"quantum" json:"quantum"`
	Windows   Windows `yaml:"windows" json:"windows"`
}

// Document is a complete scheduling request.
type Document struct {
	Variant       string             `yaml:"variant,omitempty" json:"variant,omitempty"`
	TimeLimit     string             `yaml:"time_limit,omitempty" json:"time_limit,omitempty"`
	GlobalWindows Windows            `yaml:"global_windows,omitempty" json:"global_windows,omitempty"`
	SliceSizes    map[string]float64 `yaml:"slice_sizes,omitempty" json:"slice_sizes,omitempty"`
	Compounds     []Compound         `yaml:"compounds" json:"compounds"`
	Obligations   []Obligation       `yaml:"obligations,omitempty" json:"obligations,omitempty"`
}

// Parse decodes a YAML or JSON document and validates it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses a document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks structure without building kernel types.
func (d *Document) Validate() error {
	if d.TimeLimit != "" {
		if _, err := d.Limit(); err != nil {
			return err
		}
	}
	if err := d.GlobalWindows.validate("global_windows"); err != nil {
		return err
	}
	for res, size := range d.SliceSizes {
		if !finite(size) || size <= 0 {
			return invalid("slice_sizes.%s: must be positive", res)
		}
	}
	for i, c := range d.Compounds {
		if !reservation.Operator(c.Type).Valid() {
			return invalid("compounds[%d]: unknown type %q", i, c.Type)
		}
		if len(c.Reservations) == 0 {
			return invalid("compounds[%d]: no reservations", i)
		}
		if c.Type == string(reservation.OperatorSingle) && len(c.Reservations) != 1 {
			return invalid("compounds[%d]: single takes exactly one reservation, got %d", i, len(c.Reservations))
		}
		for j, r := range c.Reservations {
			path := fmt.Sprintf("compounds[%d].reservations[%d]", i, j)
			if !finite(r.Duration) || r.Duration <= 0 {
				return invalid("%s: duration must be positive", path)
			}
			if !finite(r.Priority) {
				return invalid("%s: priority must be finite", path)
			}
			if err := r.Windows.validate(path + ".windows"); err != nil {
				return err
			}
		}
	}
	for i, o := range d.Obligations {
		path := fmt.Sprintf("obligations[%d]", i)
		if !finite(o.TotalTime) || !finite(o.Quantum) || o.TotalTime <= 0 || o.Quantum <= 0 {
			return invalid("%s: total_time and quantum must be positive", path)
		}
		if !finite(o.Priority) {
			return invalid("%s: priority must be finite", path)
		}
		if err := o.Windows.validate(path + ".windows"); err != nil {
			return err
		}
	}
	return nil
}

func (w Windows) validate(path string) error {
	for res, pairs := range w {
		if res == "" {
			return invalid("%s: empty resource name", path)
		}
		for k, p := range pairs {
			if !finite(p[0]) || !finite(p[1]) {
				return invalid("%s.%s[%d]: bounds must be finite", path, res, k)
			}
			if p[1] <= p[0] {
				return invalid("%s.%s[%d]: end %g is not after start %g", path, res, k, p[1], p[0])
			}
		}
	}
	return nil
}

func (w Windows) intervals() map[string]*interval.Intervals {
	out := make(map[string]*interval.Intervals, len(w))
	for res, pairs := range w {
		out[res] = interval.FromPairs(interval.TagFree, pairs...)
	}
	return out
}

// Limit parses TimeLimit. Bare numbers are seconds.
func (d *Document) Limit() (time.Duration, error) {
	if d.TimeLimit == "" {
		return 0, nil
	}
	if dur, err := time.ParseDuration(d.TimeLimit); err == nil {
		return dur, nil
	}
	if secs, err := strconv.ParseFloat(d.TimeLimit, 64); err == nil {
		if !finite(secs) || secs < 0 {
			return 0, invalid("time_limit: %q is not a usable number of seconds", d.TimeLimit)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, invalid("time_limit: cannot parse %q", d.TimeLimit)
}

// Input builds fresh kernel inputs. Each call returns new reservations so a
// document can be scheduled more than once. Reservation names travel in
// Payload.
func (d *Document) Input() (kernel.Input, error) {
	in := kernel.Input{SliceSizes: d.SliceSizes}
	if d.GlobalWindows != nil {
		in.GlobalWindows = d.GlobalWindows.intervals()
	}

	for i, c := range d.Compounds {
		rs := make([]*reservation.Reservation, 0, len(c.Reservations))
		for _, spec := range c.Reservations {
			r := reservation.New(spec.Priority, spec.Duration, spec.Windows.intervals())
			if spec.Name != "" {
				r.Payload = spec.Name
			}
			rs = append(rs, r)
		}
		cr, err := reservation.NewCompound(reservation.Operator(c.Type), rs...)
		if err != nil {
			return kernel.Input{}, fmt.Errorf("%w: compounds[%d]: %v", ErrInvalid, i, err)
		}
		in.Compounds = append(in.Compounds, cr)
	}

	for _, o := range d.Obligations {
		in.Obligations = append(in.Obligations,
			contract.NewObligation(o.Name, o.Priority, o.TotalTime, o.Quantum, o.Windows.intervals()))
	}
	return in, nil
}
