package intercom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/sirupsen/logrus"
)

// ErrNotEnoughSigners is returned when too many peers refused to sign a point
// for it to ever get a proof.
var ErrNotEnoughSigners = errors.New("not enough signers")

// ErrBroadcasterClosed is returned by Run once Close was called.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

// Broadcaster delivers the local node's points to the committee and collects
// the signatures that prove the delivery.
type Broadcaster struct {
	localID  models.PeerID
	schedule *peers.Schedule
	trans    net.Transport
	interval time.Duration
	logger   *logrus.Entry

	// guards pool against submits after it was stopped
	mu     sync.RWMutex
	pool   *workerpool.WorkerPool
	closed bool
}

// NewBroadcaster ...
func NewBroadcaster(schedule *peers.Schedule, trans net.Transport, conf Config, logger *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		localID:  schedule.Local(),
		schedule: schedule,
		trans:    trans,
		interval: conf.BroadcastInterval,
		pool:     workerpool.New(conf.BroadcastPoolSize),
		logger:   logger,
	}
}

// Close waits for the requests in flight. Later calls to Run fail.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.pool.StopWait()
}

func (b *Broadcaster) submit(task func()) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}
	b.pool.Submit(task)
	return nil
}

type broadcastResult struct {
	peer   models.PeerID
	status BroadcastResponse
	err    error
}

type signatureResult struct {
	peer      models.PeerID
	status    net.SignatureStatus
	signature models.Signature
	err       error
}

// Run broadcasts the point to the other members of its round and asks the
// other members of the next round for their signatures, until enough of them
// signed to prove the point in the next round. Peers that did not answer
// yet are asked again every interval.
func (b *Broadcaster) Run(ctx context.Context, point *models.Point) (map[models.PeerID]models.Signature, error) {
	round := point.Round()
	if point.Author() != b.localID {
		panic("Coding error: broadcast of a point by another author")
	}
	logger := b.logger.WithFields(logrus.Fields{
		"round":  round,
		"digest": point.Digest,
	})

	signers := b.schedule.PeersFor(round.Next())
	nodeCount, err := peers.NodeCountOf(round.Next(), signers)
	if err != nil {
		return nil, err
	}
	req, err := net.NewBroadcastRequest(b.localID, point)
	if err != nil {
		return nil, err
	}

	pendingBcast := make(map[models.PeerID]*peers.Peer)
	for _, p := range b.schedule.PeersFor(round).Others(b.localID) {
		pendingBcast[p.ID()] = p
	}
	pendingSig := make(map[models.PeerID]*peers.Peer)
	for _, p := range signers.Others(b.localID) {
		pendingSig[p.ID()] = p
	}
	if len(pendingSig) < nodeCount.MajorityOfOthers() {
		return nil, fmt.Errorf("%w: %d peers at round %d", ErrNotEnoughSigners, len(pendingSig), round.Next())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bcastResults := make(chan broadcastResult, len(pendingBcast))
	sigResults := make(chan signatureResult, len(pendingSig))
	inflight := make(map[models.PeerID]struct{})
	sigInflight := make(map[models.PeerID]struct{})

	submit := func() error {
		for id, peer := range pendingBcast {
			if _, ok := inflight[id]; ok {
				continue
			}
			inflight[id] = struct{}{}
			peer := peer
			err := b.submit(func() {
				res := b.broadcast(peer, req)
				select {
				case bcastResults <- res:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
		}
		for id, peer := range pendingSig {
			if _, ok := sigInflight[id]; ok {
				continue
			}
			sigInflight[id] = struct{}{}
			peer := peer
			err := b.submit(func() {
				res := b.signature(peer, point)
				select {
				case sigResults <- res:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	evidence := make(map[models.PeerID]models.Signature)
	rejected := 0
	if err := submit(); err != nil {
		return nil, err
	}
	for {
		select {
		case res := <-bcastResults:
			delete(inflight, res.peer)
			if res.err == nil && res.status != TryLater {
				delete(pendingBcast, res.peer)
			}
		case res := <-sigResults:
			delete(sigInflight, res.peer)
			if res.err != nil {
				logger.WithField("peer", res.peer).WithError(res.err).Debug("Signature request")
				continue
			}
			switch res.status {
			case net.SignatureOK:
				delete(pendingSig, res.peer)
				evidence[res.peer] = res.signature
			case net.SignatureRejected:
				delete(pendingSig, res.peer)
				rejected++
			}
			if len(evidence) >= nodeCount.MajorityOfOthers() {
				logger.WithField("signers", len(evidence)).Debug("Broadcast collected evidence")
				return evidence, nil
			}
			if len(evidence)+len(pendingSig) < nodeCount.MajorityOfOthers() {
				return nil, fmt.Errorf("%w: %d rejected at round %d", ErrNotEnoughSigners, rejected, round)
			}
		case <-ticker.C:
			if err := submit(); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *Broadcaster) broadcast(peer *peers.Peer, req *net.BroadcastRequest) broadcastResult {
	var resp net.BroadcastResponse
	if err := b.trans.Broadcast(peer.NetAddr, req, &resp); err != nil {
		return broadcastResult{peer: peer.ID(), err: err}
	}
	return broadcastResult{peer: peer.ID(), status: BroadcastResponse(resp.Status)}
}

func (b *Broadcaster) signature(peer *peers.Peer, point *models.Point) signatureResult {
	var resp net.SignatureResponse
	req := &net.SignatureRequest{FromID: b.localID.Bytes(), Round: uint32(point.Round())}
	if err := b.trans.Signature(peer.NetAddr, req, &resp); err != nil {
		return signatureResult{peer: peer.ID(), err: err}
	}
	res := signatureResult{peer: peer.ID(), status: resp.Status}
	if resp.Status == net.SignatureOK {
		if !keys.Verify(peer.ID().Bytes(), point.Digest[:], resp.Signature) {
			res.err = errors.New("invalid signature")
			return res
		}
		res.signature = models.Signature(resp.Signature)
	}
	return res
}
