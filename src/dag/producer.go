package dag

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
)

// NewPoint builds and signs the local node's point for the current round.
// It returns nil when there is no previous round to depend on, or when the
// local node leads the round but has no previous point: a leader that broke
// its own chain yields the round instead of forking a new anchor base.
func NewPoint(ctx context.Context, current *DagRound, prev *models.PrevPoint, payload [][]byte, key *btcec.PrivateKey) *models.Point {
	finished := current.Prev().Get()
	if finished == nil {
		return nil
	}
	localID, err := models.PeerIDFromBytes(keys.PublicKeyBytes(key))
	if err != nil {
		panic(err)
	}
	if current.AnchorStage().IsAnyLeader(localID) && prev == nil {
		return nil
	}

	includes := selectIncludes(finished, localID, prev != nil)
	witness := selectWitness(finished)

	anchorTrigger := linkFromIncludes(localID, current, includes, models.LinkTrigger)
	anchorProof := linkFromIncludes(localID, current, includes, models.LinkProof)
	anchorTrigger = updateLinkFromWitness(anchorTrigger, current.Round(), witness, models.LinkTrigger)
	anchorProof = updateLinkFromWitness(anchorProof, current.Round(), witness, models.LinkProof)

	time := pointTime(ctx, finished, localID, anchorProof, prev, includes, witness)

	includesMap := make(map[models.PeerID]models.Digest, len(includes))
	for _, p := range includes {
		includesMap[p.Author()] = p.Digest
	}
	if prev != nil {
		if digest, ok := includesMap[localID]; !ok || digest != prev.Digest {
			panic("Coding error: must include own point if it exists")
		}
		if len(prev.Evidence) < current.NodeCount().MajorityOfOthers() {
			panic("Coding error: collected not enough evidence, check Broadcaster logic")
		}
	}
	witnessMap := make(map[models.PeerID]models.Digest, len(witness))
	for _, p := range witness {
		witnessMap[p.Author()] = p.Digest
	}

	return models.NewPoint(key, models.PointBody{
		Location:      models.Location{Round: current.Round(), Author: localID},
		Time:          time,
		Payload:       payload,
		Proof:         prev,
		Includes:      includesMap,
		Witness:       witnessMap,
		AnchorTrigger: anchorTrigger,
		AnchorProof:   anchorProof,
	})
}

// Includable counts the points of the finished round that a new local point
// would include. A point may be produced once it reaches the majority.
func Includable(finished *DagRound, localID models.PeerID, hasProof bool) int {
	return len(includable(finished, localID, hasProof))
}

// includable takes every trusted point of the finished round that the local
// node did not refuse to sign. The local location is skipped when the node
// has no proof for it.
func includable(finished *DagRound, localID models.PeerID, hasProof bool) []*models.Point {
	return finished.Select(func(author models.PeerID, loc *DagLocation) *models.Point {
		if author == localID && !hasProof {
			return nil
		}
		dp, ok := loc.State().Point()
		if !ok {
			return nil
		}
		if signed, _ := loc.State().Signed(); signed == common.False {
			return nil
		}
		return dp.Trusted()
	})
}

func selectIncludes(finished *DagRound, localID models.PeerID, hasProof bool) []*models.Point {
	includes := includable(finished, localID, hasProof)
	if len(includes) < finished.NodeCount().Majority() {
		panic(fmt.Sprintf(
			"Coding error: producing point with not enough includes %d at round %d, check Collector logic",
			len(includes), finished.Round(),
		))
	}
	return includes
}

// selectWitness takes every point of the round before the finished one that
// the local node signed during the finished round.
func selectWitness(finished *DagRound) []*models.Point {
	witnessRound := finished.Prev().Get()
	if witnessRound == nil {
		return nil
	}
	return witnessRound.Select(func(_ models.PeerID, loc *DagLocation) *models.Point {
		return loc.State().SignedPoint(finished.Round())
	})
}

func linkFromIncludes(localID models.PeerID, current *DagRound, includes []*models.Point, f models.LinkField) models.Link {
	if current.AnchorStage().IsLeader(localID, f) {
		return models.LinkToSelf()
	}

	point := maxByAnchorRound(includes, f, 0, true)
	if point == nil {
		panic("Coding error: non-empty list of includes for own point")
	}

	if point.Round() == current.Round().Prev() && point.AnchorLink(f).Kind == models.ToSelf {
		return models.LinkDirect(models.Includes(point.Author()))
	}
	return models.LinkIndirect(point.AnchorID(f), models.Includes(point.Author()))
}

// updateLinkFromWitness prefers the witness when it knows a strictly more
// recent anchor than the includes.
func updateLinkFromWitness(link models.Link, current models.Round, witness []*models.Point, f models.LinkField) models.Link {
	if link.Kind != models.Indirect {
		return link
	}

	point := maxByAnchorRound(witness, f, link.To.Location.Round, false)
	if point == nil {
		return link
	}

	if point.Round() == current.Prev().Prev() && point.AnchorLink(f).Kind == models.ToSelf {
		return models.LinkDirect(models.Witness(point.Author()))
	}
	return models.LinkIndirect(point.AnchorID(f), models.Witness(point.Author()))
}

// maxByAnchorRound returns the point with the greatest anchor round above
// the bound (or equal to it, if inclusive), the first one on ties.
func maxByAnchorRound(points []*models.Point, f models.LinkField, bound models.Round, inclusive bool) *models.Point {
	var res *models.Point
	for _, p := range points {
		r := p.AnchorRound(f)
		if r < bound || (r == bound && !inclusive) {
			continue
		}
		if res == nil || r > res.AnchorRound(f) {
			res = p
		}
	}
	return res
}

// pointTime is not less than the time of the own previous point and than
// the time of the point on the anchor proof path.
func pointTime(
	ctx context.Context,
	finished *DagRound,
	localID models.PeerID,
	anchorProof models.Link,
	prev *models.PrevPoint,
	includes, witness []*models.Point,
) models.UnixTime {
	time := models.Now()

	if prev != nil {
		if own := finished.ValidPointExact(ctx, localID, prev.Digest); own != nil {
			time = time.Max(own.Body.Time)
		}
	}

	switch anchorProof.Kind {
	case models.Direct:
		through := includes
		if anchorProof.Through.Field == models.ThroughWitness {
			through = witness
		}
		for _, p := range through {
			if p.Author() == anchorProof.Through.Peer {
				time = time.Max(p.Body.Time)
				break
			}
		}
	case models.Indirect:
		// the previous point cannot have a newer anchor proof
		if prev == nil {
			if anchor := finished.ValidPoint(ctx, anchorProof.To); anchor != nil {
				time = time.Max(anchor.Body.Time)
			}
		}
	}
	return time
}
