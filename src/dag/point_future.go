package dag

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/models"
)

const dependersBuffer = 16

// PointFuture is the memoized outcome of validating one point. All the
// dependents of a point share the same future.
type PointFuture struct {
	id     models.PointID
	done   chan struct{}
	result models.DagPoint

	// set only for downloads
	dependers  chan models.PeerID
	broadcasts chan Broadcast
}

func newPointFuture(id models.PointID) *PointFuture {
	return &PointFuture{
		id:   id,
		done: make(chan struct{}),
	}
}

// newLocalTrusted is resolved at once: own points are trusted by
// construction, and are signed by the local node.
func newLocalTrusted(point *models.Point, state *InclusionState, key *btcec.PrivateKey, fx *Effects) *PointFuture {
	f := newPointFuture(point.ID())
	f.resolve(fx, state, models.NewTrusted(point))
	if key != nil {
		state.Sign(point.Round(), key)
	}
	return f
}

// newIllFormed is resolved at once as Invalid.
func newIllFormed(point *models.Point, state *InclusionState, fx *Effects) *PointFuture {
	f := newPointFuture(point.ID())
	f.resolve(fx, state, models.NewInvalid(point))
	return f
}

// newBroadcast validates a verified point in the background.
func newBroadcast(round *DagRound, point *models.Point, state *InclusionState, downloader Downloader) *PointFuture {
	f := newPointFuture(point.ID())
	weak := round.Downgrade()
	f.spawn(round.fx, state, func(ctx context.Context) models.DagPoint {
		return Validate(ctx, point, weak, downloader)
	})
	return f
}

// newLoad downloads and validates a point in the background.
func newLoad(round *DagRound, id models.PointID, depender *models.PeerID, state *InclusionState, downloader Downloader) *PointFuture {
	f := newPointFuture(id)
	f.dependers = make(chan models.PeerID, dependersBuffer)
	f.broadcasts = make(chan Broadcast, 1)
	task := DownloadTask{
		ID:         id,
		Round:      round.Downgrade(),
		Depender:   depender,
		Dependers:  f.dependers,
		Broadcasts: f.broadcasts,
	}
	f.spawn(round.fx, state, func(ctx context.Context) models.DagPoint {
		return downloader.Run(ctx, task)
	})
	return f
}

func (f *PointFuture) spawn(fx *Effects, state *InclusionState, task func(ctx context.Context) models.DagPoint) {
	go func() {
		dp := task(fx.ctx)
		f.resolve(fx, state, dp)
	}()
}

func (f *PointFuture) resolve(fx *Effects, state *InclusionState, dp models.DagPoint) {
	if fx.ctx.Err() == nil {
		if err := fx.store.SetDagPoint(dp); err != nil {
			fx.logger.WithError(err).WithField("point", dp.ID()).Error("Persisting point")
		}
	}
	state.init(dp)
	f.result = dp
	close(f.done)
}

// ID ...
func (f *PointFuture) ID() models.PointID {
	return f.id
}

// Done is closed once the verdict is known.
func (f *PointFuture) Done() <-chan struct{} {
	return f.done
}

// Get returns the verdict if it is already known.
func (f *PointFuture) Get() (models.DagPoint, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return models.DagPoint{}, false
	}
}

// Wait blocks until the verdict is known or ctx is done.
func (f *PointFuture) Wait(ctx context.Context) (models.DagPoint, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return models.DagPoint{}, ctx.Err()
	}
}

// AddDepender hints the download about another peer that should have the
// point. Hints are dropped when the download is busy.
func (f *PointFuture) AddDepender(peer models.PeerID) {
	if f.dependers == nil {
		return
	}
	select {
	case f.dependers <- peer:
	default:
	}
}

// ResolveDownload hands a broadcast point to a pending download. It does
// nothing for futures that are not downloads.
func (f *PointFuture) ResolveDownload(point *models.Point, wellFormed bool) {
	if f.broadcasts == nil {
		return
	}
	select {
	case f.broadcasts <- Broadcast{Point: point, WellFormed: wellFormed}:
	default:
	}
}
