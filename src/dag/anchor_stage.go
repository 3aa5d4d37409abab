package dag

import (
	"fmt"

	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
)

// AnchorStageKind is the role of a round in its anchor wave.
type AnchorStageKind uint8

const (
	// StageNone rounds have no leader
	StageNone AnchorStageKind = iota
	// StageProof rounds make the leader's point an anchor candidate
	StageProof
	// StageTrigger rounds make the leader's point commit the candidate
	StageTrigger
)

// Offsets of the roles within a wave of peers.WaveLength rounds.
const (
	proofOffset   = 2
	triggerOffset = 3
)

// AnchorStage is the role of a round and its leader, if any.
type AnchorStage struct {
	Kind   AnchorStageKind
	Leader models.PeerID
}

// AnchorStageOf computes the stage of a round. The genesis round has none.
func AnchorStageOf(round models.Round, schedule *peers.Schedule) AnchorStage {
	if round == models.GenesisRound {
		return AnchorStage{}
	}

	var kind AnchorStageKind
	switch _, offset := peers.Wave(round); offset {
	case proofOffset:
		kind = StageProof
	case triggerOffset:
		kind = StageTrigger
	default:
		return AnchorStage{}
	}

	leader, ok := schedule.Leader(round)
	if !ok {
		return AnchorStage{}
	}
	return AnchorStage{Kind: kind, Leader: leader}
}

// IsLeader tells whether the peer leads the given role in this round.
func (s AnchorStage) IsLeader(id models.PeerID, f models.LinkField) bool {
	switch f {
	case models.LinkProof:
		return s.Kind == StageProof && s.Leader == id
	case models.LinkTrigger:
		return s.Kind == StageTrigger && s.Leader == id
	}
	return false
}

// IsAnyLeader tells whether the peer leads this round in either role.
func (s AnchorStage) IsAnyLeader(id models.PeerID) bool {
	return s.Kind != StageNone && s.Leader == id
}

func (s AnchorStage) String() string {
	switch s.Kind {
	case StageProof:
		return fmt.Sprintf("Proof(%s)", s.Leader)
	case StageTrigger:
		return fmt.Sprintf("Trigger(%s)", s.Leader)
	}
	return "None"
}
