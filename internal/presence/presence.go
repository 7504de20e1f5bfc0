// Package presence tracks which actors have loaded into the match.
package presence

import (
	"slices"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
)

// Directory is a grow-only set of ready actors. Redelivered signals are absorbed.
type Directory struct {
	ready    map[engine.PlayerID]struct{}
	expected int
}

func NewDirectory(expected int) *Directory {
	return &Directory{
		ready:    make(map[engine.PlayerID]struct{}, expected),
		expected: expected,
	}
}

// MarkReady records id and reports whether it was new.
func (d *Directory) MarkReady(id engine.PlayerID) bool {
	if id <= engine.NoPlayer {
		return false
	}
	if _, ok := d.ready[id]; ok {
		return false
	}
	d.ready[id] = struct{}{}
	return true
}

func (d *Directory) IsReady(id engine.PlayerID) bool {
	_, ok := d.ready[id]
	return ok
}

func (d *Directory) Count() int { return len(d.ready) }

func (d *Directory) Expected() int { return d.expected }

// Complete reports whether every expected actor has signaled.
func (d *Directory) Complete() bool {
	return d.expected > 0 && len(d.ready) >= d.expected
}

// Ready returns the ready ids in ascending order.
func (d *Directory) Ready() []engine.PlayerID {
	out := make([]engine.PlayerID, 0, len(d.ready))
	for id := range d.ready {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
