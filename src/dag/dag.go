package dag

import (
	"sync"

	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
)

// Dag owns the window of retained rounds. It is the only holder of strong
// references to rounds, so rounds that leave the window are reclaimed once
// no validation uses them anymore.
type Dag struct {
	mu       sync.RWMutex
	rounds   map[models.Round]*DagRound
	top      *DagRound
	depth    models.Round
	schedule *peers.Schedule
	fx       *Effects
}

// NewDag starts the chain at the given bottom round and retains depth rounds
// below the top one.
func NewDag(bottom models.Round, depth int, schedule *peers.Schedule, fx *Effects) *Dag {
	if depth < 2 {
		panic("Coding error: dag must retain at least two rounds below the top one")
	}
	r := NewBottom(bottom, schedule, fx)
	return &Dag{
		rounds:   map[models.Round]*DagRound{bottom: r},
		top:      r,
		depth:    models.Round(depth),
		schedule: schedule,
		fx:       fx,
	}
}

// Top returns the most recent round.
func (d *Dag) Top() *DagRound {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.top
}

// Get returns a retained round.
func (d *Dag) Get(round models.Round) *DagRound {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.rounds[round]
}

// Bottom returns the oldest retained round.
func (d *Dag) Bottom() *DagRound {
	d.mu.RLock()
	defer d.mu.RUnlock()

	bottom := d.top
	for r := range d.rounds {
		if r < bottom.round {
			bottom = d.rounds[r]
		}
	}
	return bottom
}

// Extend creates the rounds up to the given one and drops the rounds that
// fall out of the window. If the gap exceeds the window, the chain restarts
// from a new bottom.
func (d *Dag) Extend(to models.Round) *DagRound {
	d.mu.Lock()
	defer d.mu.Unlock()

	if to <= d.top.round {
		return d.top
	}

	if to-d.top.round > d.depth {
		bottom := NewBottom(to-d.depth, d.schedule, d.fx)
		d.rounds = map[models.Round]*DagRound{bottom.round: bottom}
		d.top = bottom
		d.fx.logger.WithField("round", bottom.round).Warn("DAG restarted from a new bottom")
	}

	for d.top.round < to {
		next := d.top.NewNext(d.schedule)
		d.rounds[next.round] = next
		d.top = next
	}

	for r := range d.rounds {
		if r+d.depth < to {
			delete(d.rounds, r)
		}
	}

	return d.top
}
