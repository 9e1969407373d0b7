package tally

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name     string
		votes    map[string]string
		order    []string
		conflict bool
		target   string
		tied     []string
		max      int
		second   int
	}{
		{
			name:     "even split is a tie",
			votes:    map[string]string{"a": "b", "b": "a"},
			order:    []string{"a", "b"},
			conflict: true,
			tied:     []string{"a", "b"},
			max:      1,
			second:   1,
		},
		{
			name:   "clear plurality",
			votes:  map[string]string{"a": "b", "b": "a", "c": "a"},
			order:  []string{"a", "b", "c"},
			target: "a",
			max:    2,
			second: 1,
		},
		{
			name:   "unanimous",
			votes:  map[string]string{"a": "c", "b": "c", "c": "a", "d": "c"},
			order:  []string{"a", "b", "c", "d"},
			target: "c",
			max:    3,
			second: 1,
		},
		{
			name:     "three way tie follows roster order",
			votes:    map[string]string{"a": "c", "b": "a", "c": "b"},
			order:    []string{"c", "b", "a"},
			conflict: true,
			tied:     []string{"c", "b", "a"},
			max:      1,
			second:   1,
		},
		{
			name:     "tie at top with a trailing target",
			votes:    map[string]string{"a": "b", "b": "a", "c": "b", "d": "a", "e": "c"},
			order:    []string{"a", "b", "c", "d", "e"},
			conflict: true,
			tied:     []string{"a", "b"},
			max:      2,
			second:   2,
		},
		{
			name:   "single ballot",
			votes:  map[string]string{"a": "b"},
			target: "b",
			max:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Count(tt.votes, tt.order)
			assert.Equal(t, tt.conflict, res.Conflict())
			assert.Equal(t, tt.target, res.Target)
			assert.Equal(t, tt.tied, res.Tied)
			assert.Equal(t, tt.max, res.Max)
			assert.Equal(t, tt.second, res.Second)
		})
	}
}

func TestCount_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { Count(nil, nil) })
}
