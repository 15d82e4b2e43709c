/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ilp time-slices the scheduling horizon into a single global 0/1
// program and solves it.
package ilp

import (
	"fmt"
	"math"
	"sort"

	"github.com/friendsincode/adaptive_scheduler/internal/quantum"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// windowBonus scales the tie-break favoring earlier candidate windows.
const windowBonus = 1e-4

// Sense is the comparison of a constraint row.
type Sense int

const (
	LessEqual Sense = iota
	Equal
)

// Var is one binary decision. Indicator variables for and-groups carry
// ReservationID -1.
type Var struct {
	Name          string
	ReservationID int
	Resource      string
	Start         float64
	WindowIndex   int
	Objective     float64
}

// Term is a coefficient on a variable.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear row over binary variables.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a maximization over binary variables.
type Model struct {
	Vars        []Var
	Constraints []Constraint
}

// IsScheduledVars returns the decision variables of one reservation.
func (m *Model) IsScheduledVars(reservationID int) []int {
	var out []int
	for i, v := range m.Vars {
		if v.ReservationID == reservationID {
			out = append(out, i)
		}
	}
	return out
}

// Feasible reports whether values satisfy every row.
func (m *Model) Feasible(values []bool) bool {
	for _, c := range m.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			if values[t.Var] {
				lhs += t.Coef
			}
		}
		switch c.Sense {
		case Equal:
			if math.Abs(lhs-c.RHS) > eps {
				return false
			}
		default:
			if lhs > c.RHS+eps {
				return false
			}
		}
	}
	return true
}

// Objective sums the objective of the variables set to one.
func (m *Model) Objective(values []bool) float64 {
	total := 0.0
	for i, v := range values {
		if v {
			total += m.Vars[i].Objective
		}
	}
	return total
}

// Build discretizes every reservation's windows onto the per-resource slice
// grid and encodes the scheduling constraints. Resources without a slice
// size use the shortest duration contending for them.
func Build(set *reservation.Set, sliceSizes map[string]float64) *Model {
	m := &Model{}
	slices := resolveSliceSizes(set, sliceSizes)

	type occupancy struct {
		resource string
		slice    int
	}
	occupied := make(map[occupancy][]int)
	varsByReservation := make(map[int][]int)

	for _, r := range set.All() {
		for _, res := range r.Resources() {
			size := slices[res]
			if size <= 0 {
				continue
			}
			windows := r.Windows[res]
			var starts []float64
			for _, k := range quantum.QuantizeWindows(r, size, res) {
				if windows.Covers(k.Start, k.Start+r.Duration) {
					starts = append(starts, k.Start)
				}
			}
			for w, start := range starts {
				idx := len(m.Vars)
				bonus := windowBonus * r.Priority * (1 - float64(w)/float64(len(starts)))
				m.Vars = append(m.Vars, Var{
					Name:          fmt.Sprintf("x_%d_%d_%s", r.ID, w, res),
					ReservationID: r.ID,
					Resource:      res,
					Start:         start,
					WindowIndex:   w,
					Objective:     r.Priority + bonus,
				})
				varsByReservation[r.ID] = append(varsByReservation[r.ID], idx)

				first := int(math.Floor(start/size + 1e-9))
				last := int(math.Ceil((start+r.Duration)/size-1e-9)) - 1
				if last < first {
					last = first
				}
				for s := first; s <= last; s++ {
					key := occupancy{resource: res, slice: s}
					occupied[key] = append(occupied[key], idx)
				}
			}
		}
	}

	for _, r := range set.All() {
		vars := varsByReservation[r.ID]
		if len(vars) < 2 {
			continue
		}
		m.Constraints = append(m.Constraints, Constraint{
			Name:  fmt.Sprintf("once_%d", r.ID),
			Terms: unitTerms(vars, 1),
			Sense: LessEqual,
			RHS:   1,
		})
	}

	keys := make([]occupancy, 0, len(occupied))
	for k, vars := range occupied {
		if len(vars) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].resource != keys[j].resource {
			return keys[i].resource < keys[j].resource
		}
		return keys[i].slice < keys[j].slice
	})
	for _, k := range keys {
		m.Constraints = append(m.Constraints, Constraint{
			Name:  fmt.Sprintf("slice_%s_%d", k.resource, k.slice),
			Terms: unitTerms(occupied[k], 1),
			Sense: LessEqual,
			RHS:   1,
		})
	}

	for gi, cr := range set.Compounds() {
		switch cr.Operator {
		case reservation.OperatorOneOf:
			var vars []int
			for _, r := range cr.Reservations {
				vars = append(vars, varsByReservation[r.ID]...)
			}
			if len(vars) < 2 {
				continue
			}
			m.Constraints = append(m.Constraints, Constraint{
				Name:  fmt.Sprintf("oneof_%d", gi),
				Terms: unitTerms(vars, 1),
				Sense: LessEqual,
				RHS:   1,
			})
		case reservation.OperatorAnd:
			indicator := len(m.Vars)
			m.Vars = append(m.Vars, Var{
				Name:          fmt.Sprintf("y_and_%d", gi),
				ReservationID: -1,
			})
			for _, r := range cr.Reservations {
				terms := unitTerms(varsByReservation[r.ID], 1)
				terms = append(terms, Term{Var: indicator, Coef: -1})
				m.Constraints = append(m.Constraints, Constraint{
					Name:  fmt.Sprintf("and_%d_%d", gi, r.ID),
					Terms: terms,
					Sense: Equal,
					RHS:   0,
				})
			}
		}
	}
	return m
}

func resolveSliceSizes(set *reservation.Set, sliceSizes map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for res, size := range sliceSizes {
		out[res] = size
	}
	for _, r := range set.All() {
		for _, res := range r.Resources() {
			if _, ok := sliceSizes[res]; ok {
				continue
			}
			if cur, ok := out[res]; !ok || r.Duration < cur {
				out[res] = r.Duration
			}
		}
	}
	return out
}

func unitTerms(vars []int, coef float64) []Term {
	out := make([]Term, 0, len(vars))
	for _, v := range vars {
		out = append(out, Term{Var: v, Coef: coef})
	}
	return out
}
