package dag

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
)

// Detected equivocation does not invalidate a point. It only prevents the
// local node from signing the equivocated location, so that no more than one
// of the versions may ever collect a proof.

// Verify is the first and mandatory check of any point, no matter where it
// comes from. It needs no DAG and depends only on the point and the schedule.
// ok is false when the point failed, and the verdict says why: NotExists if
// the body cannot even be attributed to its author, Invalid otherwise.
func Verify(point *models.Point, schedule *peers.Schedule) (verdict models.DagPoint, ok bool) {
	if !point.IsIntegrityOK() {
		return models.NewNotExists(point.ID()), false
	}
	if !point.IsWellFormed() ||
		!schedule.IsMember(point.Round(), point.Author()) ||
		!isSelfLinksOK(point, AnchorStageOf(point.Round(), schedule)) ||
		!isListOfSignersOK(point, schedule) {
		return models.NewInvalid(point), false
	}
	return models.DagPoint{}, true
}

// Validate must be called only for points that passed Verify. It resolves
// every dependency of the point and returns the verdict.
func Validate(ctx context.Context, point *models.Point, weak WeakDagRound, downloader Downloader) models.DagPoint {
	r0 := weak.Get()
	if r0 == nil {
		return models.NewNotExists(point.ID())
	}
	if point.Round() != r0.Round() {
		panic("Coding error: dag round mismatches point round")
	}
	r0.fx.validations.Inc()
	logger := r0.fx.logger

	if !isSelfLinksOK(point, r0.AnchorStage()) {
		return models.NewInvalid(point)
	}

	var dependencies []*PointFuture
	for _, f := range []models.LinkField{models.LinkProof, models.LinkTrigger} {
		dep, ok := addAnchorLinkIfOK(point, r0, downloader, f)
		if !ok {
			return models.NewInvalid(point)
		}
		if dep != nil {
			dependencies = append(dependencies, dep)
		}
	}

	r1 := r0.Prev().Get()
	if r1 == nil {
		// The round below is out of the window: the point will be committed
		// only if its proof in the next round is part of a valid anchor chain,
		// that is, validated by consensus.
		return models.NewTrusted(point)
	}
	dependencies = append(dependencies, gatherDeps(point, r1, downloader)...)

	// no strong link to r0 or r1 is used past this line
	verdict := checkDeps(ctx, point, dependencies)
	if !verdict.IsValid() {
		logger.WithField("point", point.ID()).WithField("verdict", verdict.Kind).Debug("Validate")
	}
	return verdict
}

// isSelfLinksOK: outside genesis, the leader of a role must link to itself
// for that role, and nobody else may.
func isSelfLinksOK(point *models.Point, stage AnchorStage) bool {
	author := point.Author()
	proofToSelf := point.Body.AnchorProof.Kind == models.ToSelf
	triggerToSelf := point.Body.AnchorTrigger.Kind == models.ToSelf

	switch stage.Kind {
	case StageProof:
		return (stage.Leader == author) == proofToSelf && !triggerToSelf
	case StageTrigger:
		return (stage.Leader == author) == triggerToSelf && !proofToSelf
	default:
		return (!proofToSelf && !triggerToSelf) || point.Round() == models.GenesisRound
	}
}

// addAnchorLinkIfOK checks that the anchor the link resolves to is the
// point of the leader of the matching role, and returns its future when it
// must be awaited.
func addAnchorLinkIfOK(point *models.Point, r0 *DagRound, downloader Downloader, f models.LinkField) (*PointFuture, bool) {
	anchorID := point.AnchorID(f)

	round := r0.Scan(anchorID.Location.Round)
	if round == nil {
		// anchor is out of the window and was validated by consensus already
		return nil, true
	}
	if round.Round() == models.GenesisRound {
		return nil, true
	}

	if !round.AnchorStage().IsLeader(anchorID.Location.Author, f) {
		return nil, false
	}

	if round.Round() < point.Round() {
		return round.AddDependencyExact(anchorID.Location.Author, anchorID.Digest, point.Author(), downloader), true
	}
	return nil, true
}

// gatherDeps collects the author's own versions at r-1 (to detect
// equivocation), the includes at r-1 and the witness at r-2.
func gatherDeps(point *models.Point, r1 *DagRound, downloader Downloader) []*PointFuture {
	author := point.Author()

	var res []*PointFuture
	if loc, ok := r1.Location(author); ok {
		res = append(res, loc.Versions()...)
	}
	for _, peer := range sortedDeps(point.Body.Includes) {
		// well-formed, so includes contain the author's proven point
		res = append(res, r1.AddDependencyExact(peer, point.Body.Includes[peer], author, downloader))
	}

	if r2 := r1.Prev().Get(); r2 != nil {
		for _, peer := range sortedDeps(point.Body.Witness) {
			res = append(res, r2.AddDependencyExact(peer, point.Body.Witness[peer], author, downloader))
		}
	}
	return res
}

func sortedDeps(deps map[models.PeerID]models.Digest) []models.PeerID {
	ids := make([]models.PeerID, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	return models.SortPeerIDs(ids)
}

// checkDeps awaits the dependencies in the order they resolve and stops at
// the first one that invalidates the point.
func checkDeps(ctx context.Context, point *models.Point, dependencies []*PointFuture) models.DagPoint {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan models.DagPoint, len(dependencies))
	for _, dep := range dependencies {
		go func(dep *PointFuture) {
			dp, err := dep.Wait(ctx)
			if err != nil {
				return
			}
			results <- dp
		}(dep)
	}

	// well-formed, so the proof matches the includes
	var provenDigest *models.Digest
	if point.Body.Proof != nil {
		provenDigest = &point.Body.Proof.Digest
	}
	prevLoc := models.Location{Round: point.Round().Prev(), Author: point.Author()}

	anchorTriggerID := point.AnchorID(models.LinkTrigger)
	anchorProofID := point.AnchorID(models.LinkProof)
	anchorTriggerLinkID := point.AnchorLinkID(models.LinkTrigger)
	anchorProofLinkID := point.AnchorLinkID(models.LinkProof)

	isSuspicious := false

	for range dependencies {
		var dp models.DagPoint
		select {
		case <-ctx.Done():
			return models.NewNotExists(point.ID())
		case dp = <-results:
		}

		switch dp.Kind {
		case models.Trusted, models.Suspicious:
			valid := dp.Point
			if valid.Body.Location == prevLoc {
				switch {
				case provenDigest != nil && valid.Digest == *provenDigest:
					if !isProofOK(point, valid) {
						return models.NewInvalid(point)
					}
				case provenDigest != nil:
					// equivocation
					isSuspicious = true
				default:
					// the author must have provided the proof
					return models.NewInvalid(point)
				}
			}
			if valid.AnchorRound(models.LinkTrigger) > anchorTriggerID.Location.Round ||
				valid.AnchorRound(models.LinkProof) > anchorProofID.Location.Round {
				// did not actualize the chain
				return models.NewInvalid(point)
			}
			validID := valid.ID()
			if (validID == anchorTriggerLinkID && valid.AnchorID(models.LinkTrigger) != anchorTriggerID) ||
				(validID == anchorProofLinkID && valid.AnchorID(models.LinkProof) != anchorProofID) {
				// path does not lead to destination
				return models.NewInvalid(point)
			}
		case models.Invalid:
			if dp.Location() != prevLoc {
				return models.NewInvalid(point)
			}
			switch {
			case provenDigest != nil && dp.ID().Digest == *provenDigest:
				return models.NewInvalid(point)
			case provenDigest != nil:
				isSuspicious = true
			default:
				// the author must have skipped the previous round
				return models.NewInvalid(point)
			}
		case models.NotExists:
			if dp.Location() != prevLoc {
				return models.NewInvalid(point)
			}
			if provenDigest != nil && dp.ID().Digest == *provenDigest {
				return models.NewInvalid(point)
			}
			// some other point depends on it, its sender is to blame
		}
	}

	if isSuspicious {
		return models.NewSuspicious(point)
	}
	return models.NewTrusted(point)
}

// isListOfSignersOK checks that every signer and dependency belongs to the
// committee of its round, and that the thresholds are met.
func isListOfSignersOK(point *models.Point, schedule *peers.Schedule) bool {
	round := point.Round()
	if round == models.GenesisRound {
		// all maps are empty for a well-formed genesis
		return true
	}

	sets := schedule.PeersForArray([3]models.Round{round.Prev().Prev(), round.Prev(), round})
	witnessPeers, includesPeers, proofPeers := sets[0], sets[1], sets[2]

	for peer := range point.Body.Witness {
		if !witnessPeers.Contains(peer) {
			return false
		}
	}

	includesCount, err := peers.NodeCountOf(round.Prev(), includesPeers)
	if err != nil || len(point.Body.Includes) < includesCount.Majority() {
		return false
	}
	for peer := range point.Body.Includes {
		if !includesPeers.Contains(peer) {
			return false
		}
	}

	proven := point.Body.Proof
	if proven == nil {
		return true
	}
	// Every producer at r-1 must prove the delivery of its point to a
	// majority of the committee at r+0.
	proofCount, err := peers.NodeCountOf(round, proofPeers)
	if err != nil || len(proven.Evidence) < proofCount.MajorityOfOthers() {
		return false
	}
	for peer := range proven.Evidence {
		if !proofPeers.Contains(peer) {
			return false
		}
	}
	return true
}

// isProofOK checks the evidence of a point over its proven point at r-1.
func isProofOK(point, proven *models.Point) bool {
	if point.Author() != proven.Author() {
		panic("Coding error: mismatched authors of proof and its vertex")
	}
	if point.Round().Prev() != proven.Round() {
		panic("Coding error: mismatched rounds of proof and its vertex")
	}
	proof := point.Body.Proof
	if proof == nil {
		panic("Coding error: passed point doesn't contain proof for a given vertex")
	}
	if proof.Digest != proven.Digest {
		panic(fmt.Sprintf("Coding error: mismatched previous point of the same author %s", point.ID()))
	}
	if point.Body.Time < proven.Body.Time {
		// time must be non-decreasing by the same author
		return false
	}
	for peer, sig := range proof.Evidence {
		if !keys.Verify(peer.Bytes(), proof.Digest[:], sig) {
			return false
		}
	}
	return true
}
