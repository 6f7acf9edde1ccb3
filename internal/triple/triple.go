// Package triple holds the specimen: a producer that builds a three-element
// integer sequence inside its own frame and hands a reference to it back to the
// caller, and a consumer that prints the sequence through that reference.
//
// In C the same shape returns a pointer into a dead stack frame. Go's escape
// analysis sees the address leave the frame and allocates the array on the heap
// instead, so the reference stays valid for as long as anyone holds it.
package triple

import (
	"fmt"
	"io"
	"strings"
)

// Len is the number of elements in a Triple.
const Len = 3

// Triple is an ordered sequence of exactly three integers.
type Triple [Len]int

// Produce builds {1, 2, 3} in a local array and returns a slice over it.
// The array escapes to the heap; ownership moves to the caller.
func Produce() []int {
	array := Triple{1, 2, 3}
	return array[:]
}

// ProduceValue returns {1, 2, 3} by copy.
func ProduceValue() Triple {
	return Triple{1, 2, 3}
}

// ProduceInto fills the caller-owned buffer dst with {1, 2, 3}.
// The producer never owns storage.
func ProduceInto(dst []int) error {
	if len(dst) < Len {
		return &BoundsError{Want: Len, Got: len(dst)}
	}
	dst[0], dst[1], dst[2] = 1, 2, 3
	return nil
}

// Strategy selects how the producer hands its sequence to the caller.
type Strategy string

const (
	StrategyHeap   Strategy = "heap"   // ownership transfer of escaped storage
	StrategyValue  Strategy = "value"  // return by value
	StrategyBuffer Strategy = "buffer" // caller provides the buffer
)

// Strategies lists every known strategy, default first.
var Strategies = []Strategy{StrategyHeap, StrategyValue, StrategyBuffer}

// ParseStrategy maps a flag value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownStrategy, s, strategyNames())
}

// Handoff is what a producer gives the consumer: the Triple itself for
// StrategyValue, a reference to storage for the other strategies.
type Handoff struct {
	value Triple
	ref   []int
	byRef bool
}

// Len reports how many elements the consumer can read.
func (h Handoff) Len() int {
	if h.byRef {
		return len(h.ref)
	}
	return Len
}

// Write hands the sequence to the consumer, which writes it to w.
func (h Handoff) Write(w io.Writer) error {
	if h.byRef {
		return Write(w, h.ref)
	}
	return WriteValue(w, h.value)
}

// Handoff runs the producer selected by s.
func (s Strategy) Handoff() (Handoff, error) {
	switch s {
	case StrategyHeap, "":
		return Handoff{ref: Produce(), byRef: true}, nil
	case StrategyValue:
		return Handoff{value: ProduceValue()}, nil
	case StrategyBuffer:
		buf := make([]int, Len)
		if err := ProduceInto(buf); err != nil {
			return Handoff{}, err
		}
		return Handoff{ref: buf, byRef: true}, nil
	default:
		return Handoff{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
	}
}

func strategyNames() string {
	names := make([]string, len(Strategies))
	for i, st := range Strategies {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}
