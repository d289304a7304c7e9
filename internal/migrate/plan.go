package migrate

import (
	"fmt"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/library"
)

// candidate is an enumerated asset with its recorded path
type candidate struct {
	asset   library.Asset
	current files.InternalPath
	dropped bool
	reason  string
}

func (c *candidate) moving() bool {
	return !c.dropped && c.current != c.asset.Canonical
}

func (c *candidate) drop(format string, args ...interface{}) {
	c.dropped = true
	c.reason = fmt.Sprintf(format, args...)
}

// resolveMoves picks the candidates that can move and orders them so that
// no move targets a path another planned move has not vacated yet. Dropped
// are assets claiming a path already claimed by an earlier asset, assets
// targeting the path of an asset that stays put, and moves that form a cycle.
func resolveMoves(candidates []*candidate) (moves, dropped []*candidate) {
	byCurrent := make(map[files.InternalPath]*candidate, len(candidates))
	for _, c := range candidates {
		byCurrent[c.current] = c
	}

	claimed := make(map[files.InternalPath]*candidate)
	for _, c := range candidates {
		if !c.moving() {
			continue
		}
		if first, ok := claimed[c.asset.Canonical]; ok {
			c.drop("path also claimed by file %d", first.asset.FileID)
			continue
		}
		claimed[c.asset.Canonical] = c
	}

	for {
		dropBlocked(candidates, byCurrent)
		order, cycle := orderMoves(candidates, byCurrent)
		if cycle == nil {
			moves = order
			break
		}
		cycle.drop("moves form a cycle")
	}

	for _, c := range candidates {
		if c.dropped {
			dropped = append(dropped, c)
		}
	}
	return moves, dropped
}

// dropBlocked drops moves whose target belongs to an asset that does not
// move, until no more are dropped
func dropBlocked(candidates []*candidate, byCurrent map[files.InternalPath]*candidate) {
	for changed := true; changed; {
		changed = false
		for _, c := range candidates {
			if !c.moving() {
				continue
			}
			occupant, ok := byCurrent[c.asset.Canonical]
			if ok && occupant != c && !occupant.moving() {
				c.drop("path taken by file %d", occupant.asset.FileID)
				changed = true
			}
		}
	}
}

// orderMoves returns the moving candidates with every move placed after the
// move that vacates its target. A cycle returns one of its members.
func orderMoves(candidates []*candidate, byCurrent map[files.InternalPath]*candidate) ([]*candidate, *candidate) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[*candidate]int)
	var order []*candidate

	var visit func(c *candidate) *candidate
	visit = func(c *candidate) *candidate {
		switch state[c] {
		case visited:
			return nil
		case visiting:
			return c
		}
		state[c] = visiting
		if occupant, ok := byCurrent[c.asset.Canonical]; ok && occupant != c && occupant.moving() {
			if cycle := visit(occupant); cycle != nil {
				return cycle
			}
		}
		state[c] = visited
		order = append(order, c)
		return nil
	}

	for _, c := range candidates {
		if !c.moving() {
			continue
		}
		if cycle := visit(c); cycle != nil {
			return nil, cycle
		}
	}
	return order, nil
}
