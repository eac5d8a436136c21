package event

import "fmt"

// StageChain is an ordered, deduplicated sequence of stage names. Position in
// the chain defines upstream/downstream: earlier stages are upstream of later
// ones. A chain is configured per analysis and passed explicitly — there is
// no process-wide default.
type StageChain struct {
	stages []string
	index  map[string]int
}

// NewStageChain builds a chain from the given stage names, dropping repeats
// while preserving first-seen order. At least two stages are required for any
// pairwise analysis.
func NewStageChain(stages ...string) (StageChain, error) {
	c := StageChain{index: make(map[string]int, len(stages))}
	for _, s := range stages {
		if s == "" {
			return StageChain{}, fmt.Errorf("stage chain: empty stage name")
		}
		if _, dup := c.index[s]; dup {
			continue
		}
		c.index[s] = len(c.stages)
		c.stages = append(c.stages, s)
	}
	if len(c.stages) < 2 {
		return StageChain{}, fmt.Errorf("stage chain: need at least 2 distinct stages, got %d", len(c.stages))
	}
	return c, nil
}

// Stages returns the chain's stage names in order. Callers must not modify
// the returned slice.
func (c StageChain) Stages() []string { return c.stages }

// Len returns the number of stages in the chain.
func (c StageChain) Len() int { return len(c.stages) }

// Contains reports whether the stage is part of the chain.
func (c StageChain) Contains(stage string) bool {
	_, ok := c.index[stage]
	return ok
}

// Index returns the chain position of the stage and whether it is present.
func (c StageChain) Index(stage string) (int, bool) {
	i, ok := c.index[stage]
	return i, ok
}

// Terminal returns the last stage of the chain.
func (c StageChain) Terminal() string { return c.stages[len(c.stages)-1] }

// Pair is one adjacent (upstream, downstream) stage pair.
type Pair struct {
	From string
	To   string
}

// Pairs returns the adjacent stage pairs in chain order.
func (c StageChain) Pairs() []Pair {
	out := make([]Pair, 0, len(c.stages)-1)
	for i := 0; i < len(c.stages)-1; i++ {
		out = append(out, Pair{From: c.stages[i], To: c.stages[i+1]})
	}
	return out
}

// PairKey is the stable map key for a stage pair, e.g. "FINAL_VI_to_PACKING".
func PairKey(from, to string) string { return from + "_to_" + to }

// Key returns the pair's stable map key.
func (p Pair) Key() string { return PairKey(p.From, p.To) }
