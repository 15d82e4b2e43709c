/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ilp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ErrSolverUnavailable marks a transient solver failure (licensing, remote
// backend down). Callers retry on it.
var ErrSolverUnavailable = errors.New("ilp: solver unavailable")

// ErrUnknownAlgorithm is returned for an algorithm the solver cannot run.
var ErrUnknownAlgorithm = errors.New("ilp: unknown algorithm")

// Algorithm selects a solver strategy.
type Algorithm string

const (
	AlgorithmDefault Algorithm = "default"
	AlgorithmAlt1    Algorithm = "alt1"
	AlgorithmAlt2    Algorithm = "alt2"
)

// ParseAlgorithm maps a configuration string onto an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgorithmDefault:
		return AlgorithmDefault, nil
	case AlgorithmAlt1, AlgorithmAlt2:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Options are passed through to the solver unchanged.
type Options struct {
	Algorithm Algorithm
	MIPGap    float64
	// TimeLimit bounds the solve; zero or negative means unbounded.
	TimeLimit time.Duration
	Params    map[string]string
}

// DefaultOptions returns the default algorithm with a 1% gap and no limit.
func DefaultOptions() Options {
	return Options{Algorithm: AlgorithmDefault, MIPGap: 0.01}
}

// Status describes how a solve ended.
type Status string

const (
	StatusOptimal   Status = "optimal"
	StatusFeasible  Status = "feasible"
	StatusTimeLimit Status = "time_limit"
)

// Solution holds a 0/1 value per model variable.
type Solution struct {
	Values    []bool
	Objective float64
	Status    Status
	Nodes     int
}

// Selected returns the indices of variables set to one.
func (s *Solution) Selected() []int {
	var out []int
	for i, v := range s.Values {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// Solver solves a Model.
type Solver interface {
	Solve(ctx context.Context, m *Model, opts Options) (*Solution, error)
}

// BranchAndBound is an LP-based 0/1 solver. Every node is tightened by
// constraint propagation and bounded by its linear relaxation, solved with
// gonum's simplex. The default algorithm branches on the most fractional
// variable, alt1 on the first fractional variable in model order, and alt2
// explores the exclude branch before the include branch.
type BranchAndBound struct{}

// NewBranchAndBound returns the built-in solver.
func NewBranchAndBound() *BranchAndBound {
	return &BranchAndBound{}
}

const (
	eps        = 1e-9
	intTol     = 1e-6
	simplexTol = 1e-10
)

type search struct {
	m    *Model
	alg  Algorithm
	gap  float64
	rows [][]int

	best     []bool
	bestObj  float64
	haveBest bool
	nodes    int
}

// Solve explores the tree depth first until it is exhausted, the context is
// done, or the time limit passes. On early stop the best incumbent found so
// far is returned.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	alg, err := ParseAlgorithm(string(opts.Algorithm))
	if err != nil {
		return nil, err
	}
	s := &search{
		m:    m,
		alg:  alg,
		gap:  math.Max(opts.MIPGap, 0),
		rows: make([][]int, len(m.Vars)),
	}
	for ci, c := range m.Constraints {
		for _, t := range c.Terms {
			s.rows[t.Var] = append(s.rows[t.Var], ci)
		}
	}
	var deadline time.Time
	if opts.TimeLimit > 0 {
		deadline = time.Now().Add(opts.TimeLimit)
	}

	s.greedy()

	root := make([]int8, len(m.Vars))
	for i := range root {
		root[i] = -1
	}
	stack := [][]int8{root}
	stopped := false
	for len(stack) > 0 {
		if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
			stopped = true
			break
		}
		fixed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.nodes++

		if !s.propagate(fixed) {
			continue
		}
		bound, x, ok := s.relax(fixed)
		if !ok || s.pruned(bound) {
			continue
		}
		if x != nil {
			s.round(x)
		}

		v := s.branchVar(fixed, x)
		if v < 0 {
			if x == nil {
				s.offerFixed(fixed)
			}
			continue
		}
		include := append([]int8(nil), fixed...)
		include[v] = 1
		exclude := fixed
		exclude[v] = 0
		if alg == AlgorithmAlt2 {
			stack = append(stack, include, exclude)
		} else {
			stack = append(stack, exclude, include)
		}
	}

	if !s.haveBest {
		if stopped {
			return nil, errors.New("ilp: no feasible solution before the limit")
		}
		return nil, errors.New("ilp: model is infeasible")
	}
	status := StatusOptimal
	switch {
	case stopped:
		status = StatusTimeLimit
	case s.gap > 0:
		status = StatusFeasible
	}
	return &Solution{Values: s.best, Objective: s.bestObj, Status: status, Nodes: s.nodes}, nil
}

func (s *search) pruned(bound float64) bool {
	return s.haveBest && bound <= s.bestObj+s.gap*math.Abs(s.bestObj)+eps
}

// propagate fixes variables forced by a single row until nothing changes.
// It reports false when some row can no longer be met.
func (s *search) propagate(fixed []int8) bool {
	for changed := true; changed; {
		changed = false
		for _, c := range s.m.Constraints {
			lhs, low, high := 0.0, 0.0, 0.0
			free, last := 0, Term{}
			for _, t := range c.Terms {
				switch {
				case fixed[t.Var] == 1:
					lhs += t.Coef
				case fixed[t.Var] == -1 && t.Coef != 0:
					free++
					last = t
					if t.Coef < 0 {
						low += t.Coef
					} else {
						high += t.Coef
					}
				}
			}
			minLHS := lhs + low
			if minLHS > c.RHS+eps {
				return false
			}
			if c.Sense == Equal {
				if lhs+high < c.RHS-eps {
					return false
				}
				if free == 1 {
					switch val := (c.RHS - lhs) / last.Coef; {
					case math.Abs(val) <= eps:
						fixed[last.Var] = 0
					case math.Abs(val-1) <= eps:
						fixed[last.Var] = 1
					default:
						return false
					}
					changed = true
				}
				continue
			}
			for _, t := range c.Terms {
				if fixed[t.Var] != -1 || t.Coef == 0 {
					continue
				}
				switch {
				case t.Coef > 0 && minLHS+t.Coef > c.RHS+eps:
					fixed[t.Var] = 0
					changed = true
				case t.Coef < 0 && minLHS-t.Coef > c.RHS+eps:
					fixed[t.Var] = 1
					changed = true
				}
			}
		}
	}
	return true
}

// relax solves the linear relaxation of the node. It returns the objective
// bound, the relaxed value of every variable, and false when the node is
// infeasible. A nil x means the simplex could not be used and the bound is
// the sum of every reachable positive objective.
func (s *search) relax(fixed []int8) (float64, []float64, bool) {
	bound := 0.0
	x := make([]float64, len(s.m.Vars))
	for i, f := range fixed {
		if f == 1 {
			bound += s.m.Vars[i].Objective
			x[i] = 1
		}
	}

	type row struct {
		terms []Term
		rhs   float64
		slack bool
	}
	var active []row
	col := make(map[int]int)
	bounded := make(map[int]bool)
	for _, c := range s.m.Constraints {
		r := row{rhs: c.RHS, slack: c.Sense == LessEqual}
		high := 0.0
		nonNegative := true
		for _, t := range c.Terms {
			switch {
			case fixed[t.Var] == 1:
				r.rhs -= t.Coef
			case fixed[t.Var] == -1 && t.Coef != 0:
				r.terms = append(r.terms, t)
				if t.Coef > 0 {
					high += t.Coef
				} else {
					nonNegative = false
				}
			}
		}
		if len(r.terms) == 0 || (r.slack && high <= r.rhs+eps) {
			continue
		}
		for _, t := range r.terms {
			if _, ok := col[t.Var]; !ok {
				col[t.Var] = len(col)
			}
			if r.slack && nonNegative && r.rhs/t.Coef <= 1+eps {
				bounded[t.Var] = true
			}
		}
		active = append(active, r)
	}

	// Free variables outside every binding row take their best value.
	for i, f := range fixed {
		if f != -1 {
			continue
		}
		if _, ok := col[i]; !ok && s.m.Vars[i].Objective > 0 {
			bound += s.m.Vars[i].Objective
			x[i] = 1
		}
	}
	if len(active) == 0 {
		return bound, x, true
	}

	vars := make([]int, len(col))
	for v, j := range col {
		vars[j] = v
	}
	for _, v := range vars {
		if !bounded[v] {
			active = append(active, row{terms: []Term{{Var: v, Coef: 1}}, rhs: 1, slack: true})
		}
	}

	nRows := len(active)
	nCols := len(vars)
	for _, r := range active {
		if r.slack {
			nCols++
		}
	}
	if nCols < nRows {
		return s.looseBound(fixed), nil, true
	}

	a := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	c := make([]float64, nCols)
	for j, v := range vars {
		c[j] = -s.m.Vars[v].Objective
	}
	basis := make([]int, 0, nRows)
	slackCol := len(vars)
	for i, r := range active {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for _, t := range r.terms {
			a.Set(i, col[t.Var], sign*t.Coef)
		}
		b[i] = sign * r.rhs
		if r.slack {
			a.Set(i, slackCol, sign)
			if sign > 0 {
				basis = append(basis, slackCol)
			}
			slackCol++
		}
	}
	if len(basis) != nRows {
		basis = nil
	}

	opt, sol, err := lp.Simplex(c, a, b, simplexTol, basis)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return 0, nil, false
	case err != nil:
		return s.looseBound(fixed), nil, true
	}
	for j, v := range vars {
		x[v] = math.Min(math.Max(sol[j], 0), 1)
	}
	return bound - opt, x, true
}

// looseBound is the node bound without a relaxation.
func (s *search) looseBound(fixed []int8) float64 {
	bound := 0.0
	for i, f := range fixed {
		if f == 1 || (f == -1 && s.m.Vars[i].Objective > 0) {
			bound += math.Max(s.m.Vars[i].Objective, 0)
		}
	}
	return bound
}

// branchVar picks the next variable to split on, or -1 when the node has
// nothing left to branch on.
func (s *search) branchVar(fixed []int8, x []float64) int {
	if x == nil {
		pick := -1
		for i, f := range fixed {
			if f == -1 && (pick < 0 || s.m.Vars[i].Objective > s.m.Vars[pick].Objective) {
				pick = i
			}
		}
		return pick
	}
	pick, dist := -1, 0.0
	for i, f := range fixed {
		if f != -1 || x[i] <= intTol || x[i] >= 1-intTol {
			continue
		}
		if s.alg == AlgorithmAlt1 {
			return i
		}
		d := math.Abs(x[i] - 0.5)
		if pick < 0 || d < dist-eps || (math.Abs(d-dist) <= eps && s.m.Vars[i].Objective > s.m.Vars[pick].Objective) {
			pick, dist = i, d
		}
	}
	return pick
}

// round offers the relaxed solution rounded down as an incumbent.
func (s *search) round(x []float64) {
	values := make([]bool, len(x))
	for i, v := range x {
		values[i] = v >= 1-intTol
	}
	s.offer(values)
}

func (s *search) offerFixed(fixed []int8) {
	values := make([]bool, len(fixed))
	for i, f := range fixed {
		values[i] = f == 1
	}
	s.offer(values)
}

// greedy seeds the incumbent by taking variables in objective order while
// every inequality row still holds. Variables in equality rows stay zero.
func (s *search) greedy() {
	inEquality := make([]bool, len(s.m.Vars))
	for _, c := range s.m.Constraints {
		if c.Sense != Equal {
			continue
		}
		for _, t := range c.Terms {
			inEquality[t.Var] = true
		}
	}
	order := make([]int, 0, len(s.m.Vars))
	for i, v := range s.m.Vars {
		if !inEquality[i] && v.Objective > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return s.m.Vars[order[i]].Objective > s.m.Vars[order[j]].Objective
	})

	lhs := make([]float64, len(s.m.Constraints))
	values := make([]bool, len(s.m.Vars))
	for _, v := range order {
		fits := true
		for _, ci := range s.rows[v] {
			if lhs[ci]+coef(s.m.Constraints[ci], v) > s.m.Constraints[ci].RHS+eps {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		values[v] = true
		for _, ci := range s.rows[v] {
			lhs[ci] += coef(s.m.Constraints[ci], v)
		}
	}
	s.offer(values)
}

// offer records values as the incumbent when they are feasible and better.
func (s *search) offer(values []bool) {
	if !s.m.Feasible(values) {
		return
	}
	obj := s.m.Objective(values)
	if s.haveBest && obj <= s.bestObj+eps {
		return
	}
	s.best = values
	s.bestObj = obj
	s.haveBest = true
}

func coef(c Constraint, v int) float64 {
	total := 0.0
	for _, t := range c.Terms {
		if t.Var == v {
			total += t.Coef
		}
	}
	return total
}
