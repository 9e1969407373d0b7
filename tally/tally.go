// Package tally resolves one round of votes into an elimination or a conflict.
package tally

import (
	"slices"
	"sort"
)

// Result is derived from a round's ballots and never stored.
type Result struct {
	Counts map[string]int `json:"counts"`
	Max    int            `json:"max"`
	Second int            `json:"second"`
	// Tied lists every target holding Max votes when more than one does.
	Tied []string `json:"tied,omitempty"`
	// Target is the sole most-voted player; empty on conflict.
	Target string `json:"target,omitempty"`
}

// Conflict reports whether the maximum count appears more than once.
func (r Result) Conflict() bool {
	return len(r.Tied) > 1
}

// Count tallies votes (voter -> target). order fixes the listing order of
// tied targets, normally the roster order; targets absent from order follow
// in lexical order.
//
// Counting an empty ballot is a caller bug and panics.
func Count(votes map[string]string, order []string) Result {
	if len(votes) == 0 {
		panic("tally: no votes to count")
	}

	counts := make(map[string]int)
	for _, target := range votes {
		counts[target]++
	}

	targets := make([]string, 0, len(counts))
	for _, id := range order {
		if _, ok := counts[id]; ok && !slices.Contains(targets, id) {
			targets = append(targets, id)
		}
	}
	var rest []string
	for id := range counts {
		if !slices.Contains(targets, id) {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	targets = append(targets, rest...)

	values := make([]int, 0, len(counts))
	for _, n := range counts {
		values = append(values, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))

	res := Result{Counts: counts, Max: values[0]}
	if len(values) > 1 {
		res.Second = values[1]
	}

	var top []string
	for _, id := range targets {
		if counts[id] == res.Max {
			top = append(top, id)
		}
	}
	if len(top) > 1 {
		res.Tied = top
	} else {
		res.Target = top[0]
	}
	return res
}
