package peers

import (
	"fmt"

	"github.com/mosaicnetworks/mempool/src/models"
)

// MinCommittee is the smallest committee the protocol can run with, genesis
// aside.
const MinCommittee = 3

// NodeCount holds the thresholds of a committee of n = 3f+1..3f+3 members,
// where f is the number of faulty members tolerated.
type NodeCount struct {
	n int
	f int
}

// NodeCountGenesis is the size class of the genesis round, whose committee is
// the single genesis author.
var NodeCountGenesis = NodeCount{n: 1, f: 0}

// NewNodeCount fails for committees that are too small to run consensus.
func NewNodeCount(n int) (NodeCount, error) {
	if n < MinCommittee {
		return NodeCount{}, fmt.Errorf("not enough nodes to run consensus: %d", n)
	}
	return NodeCount{n: n, f: (n - 1) / 3}, nil
}

// Full is the committee size.
func (c NodeCount) Full() int {
	return c.n
}

// Majority is 2f+1.
func (c NodeCount) Majority() int {
	return 2*c.f + 1
}

// MajorityOfOthers is 2f: a majority once the author itself is excluded.
func (c NodeCount) MajorityOfOthers() int {
	return 2 * c.f
}

// ReliableMinority is f+1: at least one honest member is among them.
func (c NodeCount) ReliableMinority() int {
	return c.f + 1
}

func (c NodeCount) String() string {
	return fmt.Sprintf("%d(f=%d)", c.n, c.f)
}

// NodeCountOf returns the thresholds of the committee of a round. The genesis
// round is always of the genesis size class.
func NodeCountOf(round models.Round, committee *PeerSet) (NodeCount, error) {
	if committee == nil {
		return NodeCount{}, fmt.Errorf("unknown committee for round %d", round)
	}
	if round == models.GenesisRound {
		return NodeCountGenesis, nil
	}
	return NewNodeCount(committee.Len())
}
