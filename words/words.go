// Package words holds the table of related word pairs dealt at game start.
package words

import (
	"errors"
	"math/rand/v2"
	"strings"
)

var ErrInvalidPair = errors.New("word pair must hold two different non-empty words")

// Pair 一组词：平民词与卧底词
type Pair struct {
	Civilian   string `json:"civilian"`
	Undercover string `json:"undercover"`
}

var defaultPairs = []Pair{
	{Civilian: "Beach", Undercover: "Desert"},
	{Civilian: "Pizza", Undercover: "Burger"},
	{Civilian: "Cat", Undercover: "Dog"},
	{Civilian: "Coffee", Undercover: "Tea"},
	{Civilian: "Summer", Undercover: "Winter"},
	{Civilian: "Piano", Undercover: "Guitar"},
	{Civilian: "Train", Undercover: "Subway"},
	{Civilian: "Library", Undercover: "Bookstore"},
	{Civilian: "Dumpling", Undercover: "Wonton"},
	{Civilian: "Butterfly", Undercover: "Moth"},
	{Civilian: "Lipstick", Undercover: "Lip balm"},
	{Civilian: "Soccer", Undercover: "Rugby"},
}

// Catalog is immutable after construction and safe to share between rooms.
type Catalog struct {
	pairs []Pair
}

// NewCatalog validates pairs and copies them. An empty list falls back to
// the built-in table.
func NewCatalog(pairs []Pair) (*Catalog, error) {
	if len(pairs) == 0 {
		return Default(), nil
	}
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		valid, err := Custom(p.Civilian, p.Undercover)
		if err != nil {
			return nil, err
		}
		out = append(out, valid)
	}
	return &Catalog{pairs: out}, nil
}

func Default() *Catalog {
	return &Catalog{pairs: append([]Pair(nil), defaultPairs...)}
}

func (c *Catalog) Len() int {
	return len(c.pairs)
}

// Pick draws one pair uniformly. rng belongs to the calling room, so no
// locking is needed here.
func (c *Catalog) Pick(rng *rand.Rand) Pair {
	return c.pairs[rng.IntN(len(c.pairs))]
}

// Custom validates a pair supplied by a word-setter.
func Custom(civilian, undercover string) (Pair, error) {
	civilian = strings.TrimSpace(civilian)
	undercover = strings.TrimSpace(undercover)
	if civilian == "" || undercover == "" || strings.EqualFold(civilian, undercover) {
		return Pair{}, ErrInvalidPair
	}
	return Pair{Civilian: civilian, Undercover: undercover}, nil
}
