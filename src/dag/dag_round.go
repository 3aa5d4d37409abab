package dag

import (
	"context"
	"fmt"
	"weak"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
)

// WeakDagRound refers to a round without keeping it alive. Long-lived
// bookkeeping and background tasks hold rounds only through this type.
type WeakDagRound struct {
	p weak.Pointer[DagRound]
}

// Get returns the round, or nil if it was already reclaimed.
func (w WeakDagRound) Get() *DagRound {
	return w.p.Value()
}

// DagRound is the slot of the whole committee at one round. Strong references
// must not outlive a synchronous operation, use WeakDagRound for anything
// else.
type DagRound struct {
	round       models.Round
	nodeCount   peers.NodeCount
	anchorStage AnchorStage
	// fixed at construction, one per committee member
	locations map[models.PeerID]*DagLocation
	prev      WeakDagRound
	fx        *Effects
}

// NewBottom creates the oldest retained round. It has no predecessor.
func NewBottom(round models.Round, schedule *peers.Schedule, fx *Effects) *DagRound {
	return newDagRound(round, schedule, fx, WeakDagRound{})
}

// NewNext creates the successor of the round.
func (r *DagRound) NewNext(schedule *peers.Schedule) *DagRound {
	return newDagRound(r.round.Next(), schedule, r.fx, r.Downgrade())
}

func newDagRound(round models.Round, schedule *peers.Schedule, fx *Effects, prev WeakDagRound) *DagRound {
	committee := schedule.PeersFor(round)

	nodeCount, err := peers.NodeCountOf(round, committee)
	if err != nil {
		panic(fmt.Sprintf("Coding error: %v for round %d", err, round))
	}

	r := &DagRound{
		round:       round,
		nodeCount:   nodeCount,
		anchorStage: AnchorStageOf(round, schedule),
		locations:   make(map[models.PeerID]*DagLocation, committee.Len()),
		prev:        prev,
		fx:          fx,
	}
	for _, id := range committee.IDs() {
		r.locations[id] = newDagLocation(round)
	}
	return r
}

// Round ...
func (r *DagRound) Round() models.Round {
	return r.round
}

// NodeCount holds the thresholds of the round's committee.
func (r *DagRound) NodeCount() peers.NodeCount {
	return r.nodeCount
}

// AnchorStage ...
func (r *DagRound) AnchorStage() AnchorStage {
	return r.anchorStage
}

// Prev is the weak link to the previous round.
func (r *DagRound) Prev() WeakDagRound {
	return r.prev
}

// Downgrade returns a weak reference to this round.
func (r *DagRound) Downgrade() WeakDagRound {
	return WeakDagRound{p: weak.Make(r)}
}

// Effects ...
func (r *DagRound) Effects() *Effects {
	return r.fx
}

// Location returns the location of a committee member.
func (r *DagRound) Location(author models.PeerID) (*DagLocation, bool) {
	loc, ok := r.locations[author]
	return loc, ok
}

// View calls fn with the location of author. It returns false if author does
// not belong to the committee of the round.
func (r *DagRound) View(author models.PeerID, fn func(loc *DagLocation)) bool {
	loc, ok := r.locations[author]
	if !ok {
		return false
	}
	fn(loc)
	return true
}

// Select collects the non-nil results of fn over every location, in the
// order of the committee ids.
func (r *DagRound) Select(fn func(author models.PeerID, loc *DagLocation) *models.Point) []*models.Point {
	ids := make([]models.PeerID, 0, len(r.locations))
	for id := range r.locations {
		ids = append(ids, id)
	}

	var res []*models.Point
	for _, id := range models.SortPeerIDs(ids) {
		if p := fn(id, r.locations[id]); p != nil {
			res = append(res, p)
		}
	}
	return res
}

func (r *DagRound) edit(author models.PeerID) *DagLocation {
	loc, ok := r.locations[author]
	if !ok {
		panic(fmt.Sprintf("Coding error: DAG must not contain location %s @ %d", author, r.round))
	}
	return loc
}

func (r *DagRound) assertRound(point *models.Point) {
	if point.Round() != r.round {
		panic(fmt.Sprintf("Coding error: point round %d does not match dag round %d", point.Round(), r.round))
	}
}

// InsertExactSign inserts a point produced by the local node (or the
// genesis) without validating it. The key, if any, signs it at once.
func (r *DagRound) InsertExactSign(point *models.Point, key *btcec.PrivateKey) {
	r.assertRound(point)
	loc := r.edit(point.Author())

	loc.mu.Lock()
	defer loc.mu.Unlock()

	if _, ok := loc.versions[point.Digest]; ok {
		panic(fmt.Sprintf("Coding error: local point must be created only once %s", point.ID()))
	}
	loc.versions[point.Digest] = newLocalTrusted(point, loc.state, key, r.fx)
}

// AddBroadcastExact inserts a verified point received by broadcast. If the
// same digest is already being downloaded, the broadcast resolves it.
func (r *DagRound) AddBroadcastExact(point *models.Point, downloader Downloader) *PointFuture {
	r.assertRound(point)
	loc := r.edit(point.Author())

	loc.mu.Lock()
	defer loc.mu.Unlock()

	if f, ok := loc.versions[point.Digest]; ok {
		f.ResolveDownload(point, true)
		return f
	}
	f := newBroadcast(r, point, loc.state, downloader)
	loc.versions[point.Digest] = f
	return f
}

// AddIllFormedBroadcastExact records a broadcast point that failed the
// structural checks.
func (r *DagRound) AddIllFormedBroadcastExact(point *models.Point) *PointFuture {
	r.assertRound(point)
	loc := r.edit(point.Author())

	loc.mu.Lock()
	defer loc.mu.Unlock()

	if f, ok := loc.versions[point.Digest]; ok {
		f.ResolveDownload(point, false)
		return f
	}
	f := newIllFormed(point, loc.state, r.fx)
	loc.versions[point.Digest] = f
	return f
}

// SetBadSigInBroadcastExact marks that the author broadcast a point whose
// signature did not verify.
func (r *DagRound) SetBadSigInBroadcastExact(author models.PeerID) {
	loc := r.edit(author)

	loc.mu.Lock()
	loc.badSigInBroadcast = true
	loc.mu.Unlock()
}

// AddDependencyExact returns the shared future of a point referenced by the
// depender, starting its download if it is not known yet.
func (r *DagRound) AddDependencyExact(author models.PeerID, digest models.Digest, depender models.PeerID, downloader Downloader) *PointFuture {
	loc := r.edit(author)

	loc.mu.Lock()
	defer loc.mu.Unlock()

	if f, ok := loc.versions[digest]; ok {
		f.AddDepender(depender)
		return f
	}
	id := models.PointID{
		Location: models.Location{Round: r.round, Author: author},
		Digest:   digest,
	}
	f := newLoad(r, id, &depender, loc.state, downloader)
	loc.versions[digest] = f
	return f
}

// Scan walks the chain backwards to the requested round. It returns nil once
// the walk falls off the retained window.
func (r *DagRound) Scan(round models.Round) *DagRound {
	if round > r.round {
		panic(fmt.Sprintf("Coding error: cannot scan DAG rounds chain for a future round %d from %d", round, r.round))
	}
	visited := r
	for visited.round != round {
		prev := visited.prev.Get()
		if prev == nil {
			return nil
		}
		if prev.round < round || prev.round != visited.round-1 {
			panic(fmt.Sprintf(
				"Coding error: linked list of dag rounds cannot contain gaps, found %d to be prev for %d, scanned for %d from %d",
				prev.round, visited.round, round, r.round,
			))
		}
		visited = prev
	}
	return visited
}

// ValidPointExact waits for the verdict of the point and returns it if it is
// valid.
func (r *DagRound) ValidPointExact(ctx context.Context, author models.PeerID, digest models.Digest) *models.Point {
	loc, ok := r.locations[author]
	if !ok {
		return nil
	}
	f, ok := loc.Version(digest)
	if !ok {
		return nil
	}
	dp, err := f.Wait(ctx)
	if err != nil {
		return nil
	}
	return dp.Valid()
}

// ValidPoint looks the point up in this round or an earlier one.
func (r *DagRound) ValidPoint(ctx context.Context, id models.PointID) *models.Point {
	round := r.Scan(id.Location.Round)
	if round == nil {
		return nil
	}
	return round.ValidPointExact(ctx, id.Location.Author, id.Digest)
}

func (r *DagRound) String() string {
	return fmt.Sprintf("%d[%d %s]", r.round, r.nodeCount.Full(), r.anchorStage)
}
