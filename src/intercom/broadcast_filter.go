package intercom

import (
	"context"
	"sort"
	"sync"

	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// BroadcastFilter admits points broadcast by other committee members.
//
// A DAG at round r accepts broadcasts of rounds [r-1, r+1]. Older points are
// rejected but still sent downstream, because some point may include them.
// Newer points are buffered until a reliable minority of authors is seen at
// the same round: then consensus is known to have moved forward without the
// local node, and the filter advances and releases what it buffered.
type BroadcastFilter struct {
	schedule *peers.Schedule
	round    *atomic.Uint32

	// guards lastByPeer and byRound
	mu sync.Mutex
	// highest future round broadcast by each peer, against spam from the
	// future and out of order broadcasts
	lastByPeer map[models.PeerID]models.Round
	// like the DAG, but without dependency checks
	byRound map[models.Round]*roundBucket

	events *eventQueue

	responses *prometheus.CounterVec
	logger    *logrus.Entry
}

type roundBucket struct {
	nodeCount peers.NodeCount
	authors   map[models.PeerID]map[models.Digest]ConsensusEvent
	// first ill-formed point of each member, never counted towards the round
	invalid map[models.PeerID]ConsensusEvent
}

func newRoundBucket(nodeCount peers.NodeCount) *roundBucket {
	return &roundBucket{
		nodeCount: nodeCount,
		authors:   make(map[models.PeerID]map[models.Digest]ConsensusEvent),
		invalid:   make(map[models.PeerID]ConsensusEvent),
	}
}

// NewBroadcastFilter creates a filter at the genesis round. Its response
// counters are registered with reg unless reg is nil.
func NewBroadcastFilter(schedule *peers.Schedule, reg prometheus.Registerer, logger *logrus.Entry) *BroadcastFilter {
	return &BroadcastFilter{
		schedule:   schedule,
		round:      atomic.NewUint32(uint32(models.GenesisRound)),
		lastByPeer: make(map[models.PeerID]models.Round),
		byRound:    make(map[models.Round]*roundBucket),
		events:     newEventQueue(),
		responses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "mempool",
			Subsystem: "broadcast_filter",
			Name:      "responses_total",
			Help:      "Broadcasts received from other peers, by response.",
		}, []string{"response"}),
		logger: logger,
	}
}

// Round is the round the filter considers current.
func (f *BroadcastFilter) Round() models.Round {
	return models.Round(f.round.Load())
}

// Next blocks until the filter emits an event or ctx is done.
func (f *BroadcastFilter) Next(ctx context.Context) (ConsensusEvent, error) {
	return f.events.pop(ctx)
}

// Pending is the number of emitted events nobody consumed yet.
func (f *BroadcastFilter) Pending() int {
	return f.events.len()
}

// Add verifies the point and decides whether the local node may sign it.
func (f *BroadcastFilter) Add(point *models.Point) BroadcastResponse {
	res := f.add(point)
	f.responses.WithLabelValues(res.String()).Inc()
	return res
}

func (f *BroadcastFilter) add(point *models.Point) BroadcastResponse {
	id := point.ID()
	local := f.Round()
	logger := f.logger.WithFields(logrus.Fields{
		"local":  local,
		"round":  id.Location.Round,
		"author": id.Location.Author,
		"digest": id.Digest,
	})

	var event ConsensusEvent
	verdict, ok := dag.Verify(point, f.schedule)
	if ok {
		event = NewVerified(point)
	} else {
		logger.WithField("verdict", verdict.Kind).Error("Broadcast invalid point")
		event = NewInvalid(verdict)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// the round may have advanced while the point was verified
	local = f.Round()

	if id.Location.Round <= local {
		f.events.push(event)
		switch {
		case !ok:
			return Rejected
		case id.Location.Round >= local.Prev():
			return Accepted
		default:
			logger.Debug("Broadcast of a too old round")
			return Rejected
		}
	}

	// Either consensus moved forward without the local node, or the point is
	// early, or it is spam. Only points attributed to their author may count.
	if !ok {
		if verdict.Kind == models.Invalid {
			f.keepInvalidLocked(id, event, logger)
		}
		return Rejected
	}

	if last, seen := f.lastByPeer[id.Location.Author]; seen {
		if last > id.Location.Round {
			logger.WithField("last", last).Error("Broadcast out of order")
			return Rejected
		}
		if last < id.Location.Round {
			// advanceLocked drops entries up to the local round, so last is ahead of it
			if bucket, ok := f.byRound[last]; ok {
				delete(bucket.authors, id.Location.Author)
			}
		}
	}
	f.lastByPeer[id.Location.Author] = id.Location.Round

	bucket, err := f.bucketLocked(id.Location.Round)
	if err != nil {
		logger.WithError(err).Debug("Broadcast for unknown committee")
		return TryLater
	}
	versions, ok := bucket.authors[id.Location.Author]
	if !ok {
		versions = make(map[models.Digest]ConsensusEvent)
		bucket.authors[id.Location.Author] = versions
	}
	versions[id.Digest] = event

	if len(bucket.authors) < bucket.nodeCount.ReliableMinority() {
		logger.Debug("Broadcast round is not determined yet")
		return TryLater
	}

	f.advanceLocked(id.Location.Round)
	return Accepted
}

// keepInvalidLocked buffers the verdict on an attributed point of a future
// round, so that the DAG learns of it once the round is reached.
func (f *BroadcastFilter) keepInvalidLocked(id models.PointID, event ConsensusEvent, logger *logrus.Entry) {
	if !f.schedule.IsMember(id.Location.Round, id.Location.Author) {
		return
	}
	bucket, err := f.bucketLocked(id.Location.Round)
	if err != nil {
		logger.WithError(err).Debug("Invalid broadcast for unknown committee")
		return
	}
	if _, ok := bucket.invalid[id.Location.Author]; !ok {
		bucket.invalid[id.Location.Author] = event
	}
}

func (f *BroadcastFilter) bucketLocked(round models.Round) (*roundBucket, error) {
	if bucket, ok := f.byRound[round]; ok {
		return bucket, nil
	}
	nodeCount, err := peers.NodeCountOf(round, f.schedule.PeersFor(round))
	if err != nil {
		return nil, err
	}
	bucket := newRoundBucket(nodeCount)
	f.byRound[round] = bucket
	return bucket, nil
}

// AdvanceRound moves the filter forward to the round, when the local DAG got
// there on its own.
func (f *BroadcastFilter) AdvanceRound(round models.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advanceLocked(round)
}

// advanceLocked releases the two most recent buffered rounds up to the new
// round and drops everything older.
func (f *BroadcastFilter) advanceLocked(round models.Round) {
	old := f.Round()
	if round <= old {
		return
	}
	f.round.Store(uint32(round))

	f.logger.WithFields(logrus.Fields{
		"from": old,
		"to":   round,
	}).Debug("Broadcast filter advanced")

	flush := []models.Round{round}
	if round.Prev() > old {
		flush = []models.Round{round.Prev(), round}
	}
	for _, r := range flush {
		bucket, ok := f.byRound[r]
		if !ok {
			continue
		}
		f.events.push(NewForward(r))
		f.events.push(bucket.sorted()...)
	}

	for r := range f.byRound {
		if r <= round {
			delete(f.byRound, r)
		}
	}
	for author, last := range f.lastByPeer {
		if last <= round {
			delete(f.lastByPeer, author)
		}
	}
}

// sorted returns buffered events by author, then by digest. Invalid verdicts
// follow the verified points.
func (b *roundBucket) sorted() []ConsensusEvent {
	authors := make([]models.PeerID, 0, len(b.authors))
	for author := range b.authors {
		authors = append(authors, author)
	}
	models.SortPeerIDs(authors)

	var res []ConsensusEvent
	for _, author := range authors {
		versions := b.authors[author]
		digests := make([]models.Digest, 0, len(versions))
		for d := range versions {
			digests = append(digests, d)
		}
		sort.Slice(digests, func(i, j int) bool {
			return string(digests[i][:]) < string(digests[j][:])
		})
		for _, d := range digests {
			res = append(res, versions[d])
		}
	}

	invalid := make([]models.PeerID, 0, len(b.invalid))
	for author := range b.invalid {
		invalid = append(invalid, author)
	}
	for _, author := range models.SortPeerIDs(invalid) {
		res = append(res, b.invalid[author])
	}
	return res
}
