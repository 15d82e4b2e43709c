/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package matching

import "sort"

// Job is one candidate placement for the interval scheduler. The job may
// start anywhere in [EarliestStart, LatestStart].
type Job struct {
	ID            int
	Priority      float64
	EarliestStart float64
	LatestStart   float64
	Duration      float64
}

// Placement is a selected job with its committed times.
type Placement struct {
	Job   Job
	Start float64
	End   float64
}

// ScheduleIntervals selects a maximum-priority set of mutually
// non-overlapping jobs.
//
// Jobs are processed by earliest start (ties by ID). The forward pass fixes
// each job's start as it goes: p(i) is the highest earlier index whose
// prefix of committed jobs all end by job i's latest start, and job i starts
// at the later of its earliest start and that prefix's end. M(i) =
// max(priority(i) + M(p(i)), M(i-1)) and the selection is recovered by
// backtracking from M(n). Because starts are committed greedily during the
// forward pass the result is optimal only for that start assignment.
func ScheduleIntervals(jobs []Job) []Placement {
	sorted := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.LatestStart >= j.EarliestStart {
			sorted = append(sorted, j)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EarliestStart != sorted[j].EarliestStart {
			return sorted[i].EarliestStart < sorted[j].EarliestStart
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	// 1-indexed; index 0 is the empty prefix.
	start := make([]float64, n+1)
	end := make([]float64, n+1)
	prefixEnd := make([]float64, n+1)
	p := make([]int, n+1)
	m := make([]float64, n+1)

	for i := 1; i <= n; i++ {
		job := sorted[i-1]

		p[i] = 0
		for j := i - 1; j >= 1; j-- {
			if prefixEnd[j] <= job.LatestStart {
				p[i] = j
				break
			}
		}

		start[i] = job.EarliestStart
		if p[i] > 0 && prefixEnd[p[i]] > start[i] {
			start[i] = prefixEnd[p[i]]
		}
		end[i] = start[i] + job.Duration

		prefixEnd[i] = end[i]
		if i > 1 && prefixEnd[i-1] > prefixEnd[i] {
			prefixEnd[i] = prefixEnd[i-1]
		}

		take := job.Priority + m[p[i]]
		if take > m[i-1] {
			m[i] = take
		} else {
			m[i] = m[i-1]
		}
	}

	var chosen []Placement
	for i := n; i >= 1; {
		job := sorted[i-1]
		if job.Priority+m[p[i]] > m[i-1] {
			chosen = append(chosen, Placement{Job: job, Start: start[i], End: end[i]})
			i = p[i]
			continue
		}
		i--
	}

	for l, r := 0, len(chosen)-1; l < r; l, r = l+1, r-1 {
		chosen[l], chosen[r] = chosen[r], chosen[l]
	}
	return chosen
}
