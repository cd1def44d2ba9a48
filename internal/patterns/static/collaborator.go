// Package static serves a fixed set of patterns. It backs offline runs
// and tests where no model is reachable.
package static

import (
	"context"
	"fmt"
	"os"
	"sync"

	"cadenza/internal/patterns"
)

type Collaborator struct {
	mu       sync.Mutex
	patterns []patterns.Pattern
	err      error
	calls    int
	batches  [][]patterns.TransactionInput
}

var _ patterns.Collaborator = (*Collaborator)(nil)

func New(found ...patterns.Pattern) *Collaborator {
	return &Collaborator{patterns: found}
}

// Failing returns a collaborator whose every call fails with err.
func Failing(err error) *Collaborator {
	return &Collaborator{err: err}
}

// FromFile loads patterns from a JSON file in the model response format.
func FromFile(path string) (*Collaborator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	found, err := patterns.DecodeResponse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse patterns file %s: %w", path, err)
	}
	return New(found...), nil
}

func (c *Collaborator) DetectPatterns(ctx context.Context, batch []patterns.TransactionInput) ([]patterns.Pattern, error) {
	c.mu.Lock()
	c.calls++
	c.batches = append(c.batches, batch)
	found, err := c.patterns, c.err
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]patterns.Pattern, len(found))
	for i, p := range found {
		p.TransactionIDs = append([]string(nil), p.TransactionIDs...)
		out[i] = p
	}
	return out, nil
}

// Calls reports how many times DetectPatterns ran.
func (c *Collaborator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastBatch returns the most recent batch submitted, or nil.
func (c *Collaborator) LastBatch() []patterns.TransactionInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}
