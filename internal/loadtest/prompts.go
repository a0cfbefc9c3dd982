package loadtest

import (
	"errors"
	"fmt"
)

// DefaultPrompts is used when no prompt source is configured.
var DefaultPrompts = []string{
	"Explain the concept of zero-downtime deployment in three sentences.",
	"Write a short Python function that reverses a string.",
	"What is the difference between blue-green and canary deployments?",
	"Summarize the benefits of container orchestration.",
	"Describe how a load balancer distributes traffic.",
}

// PromptSet is an ordered, read-only list of prompts shared by all lanes.
type PromptSet struct {
	prompts []string
}

// NewPromptSet copies prompts into a set. Empty sets and empty prompts are rejected.
func NewPromptSet(prompts []string) (*PromptSet, error) {
	if len(prompts) == 0 {
		return nil, errors.New("loadtest: prompt set is empty")
	}
	for i, p := range prompts {
		if p == "" {
			return nil, fmt.Errorf("loadtest: prompt %d is empty", i)
		}
	}

	cp := make([]string, len(prompts))
	copy(cp, prompts)
	return &PromptSet{prompts: cp}, nil
}

// Len returns the number of prompts.
func (s *PromptSet) Len() int { return len(s.prompts) }

// At returns the prompt at index i modulo the set size.
func (s *PromptSet) At(i int64) string {
	n := int64(len(s.prompts))
	return s.prompts[((i%n)+n)%n]
}

// PromptIndex returns the cursor position for a lane's nth request.
// Lanes interleave so that, with L lanes, lane l issues global positions
// l, l+L, l+2L, ... The result depends only on its arguments.
//
// Across all lanes each round covers the set evenly, but a single lane only
// visits size/gcd(lanes, size) distinct prompts. When lanes is a multiple of
// size, lane l always sends prompt l mod size.
func PromptIndex(lane int, iteration int64, lanes int, size int) int {
	if size <= 0 {
		return 0
	}
	pos := int64(lane) + iteration*int64(lanes)
	return int(pos % int64(size))
}
