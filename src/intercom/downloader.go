package intercom

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	errDownloaded = errors.New("downloaded")
	errNotYet     = errors.New("point not downloaded yet")
)

// Downloader fetches points that are referenced by other points but not known
// locally, and validates them against the DAG.
//
// The peer that referenced the point is asked first, then its author, then
// the rest of the committee. The point does not exist once a majority of the
// committee of its round answered they do not have it. Otherwise the download
// never gives up: the point may become available later, for example when its
// author recovers.
type Downloader struct {
	localID  models.PeerID
	schedule *peers.Schedule
	trans    net.Transport
	conf     Config
	logger   *logrus.Entry
}

var _ dag.Downloader = (*Downloader)(nil)

// NewDownloader ...
func NewDownloader(schedule *peers.Schedule, trans net.Transport, conf Config, logger *logrus.Entry) *Downloader {
	return &Downloader{
		localID:  schedule.Local(),
		schedule: schedule,
		trans:    trans,
		conf:     conf,
		logger:   logger,
	}
}

// Run implements dag.Downloader.
func (d *Downloader) Run(ctx context.Context, task dag.DownloadTask) models.DagPoint {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	downloaded := make(chan *models.Point, 1)
	go func() {
		downloaded <- d.download(ctx, task)
	}()

	var point *models.Point
	select {
	case point = <-downloaded:
		if point == nil {
			return models.NewNotExists(task.ID)
		}
	case b := <-task.Broadcasts:
		if !b.WellFormed {
			return models.NewInvalid(b.Point)
		}
		point = b.Point
	case <-ctx.Done():
		return models.NewNotExists(task.ID)
	}

	if verdict, ok := dag.Verify(point, d.schedule); !ok {
		return verdict
	}
	return dag.Validate(ctx, point, task.Round, d)
}

// download returns nil if the point does not exist or ctx is done.
func (d *Downloader) download(ctx context.Context, task dag.DownloadTask) *models.Point {
	logger := d.logger.WithField("point", task.ID)

	committee := d.schedule.PeersFor(task.ID.Location.Round)
	nodeCount, err := peers.NodeCountOf(task.ID.Location.Round, committee)
	if err != nil {
		logger.WithError(err).Error("Download without committee")
		return nil
	}

	notFound := make(map[models.PeerID]struct{})
	if committee.Contains(d.localID) {
		notFound[d.localID] = struct{}{}
	}

	var dependers []models.PeerID
	if task.Depender != nil {
		dependers = append(dependers, *task.Depender)
	}

	backoff, err := d.backoff()
	if err != nil {
		logger.WithError(err).Error("Download backoff")
		return nil
	}

	var found *models.Point
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		dependers = drainDependers(dependers, task.Dependers)

		point, missing := d.attempt(ctx, task.ID, d.candidates(task.ID, dependers))
		if point != nil {
			found = point
			return nil
		}
		for _, id := range missing {
			if committee.Contains(id) {
				notFound[id] = struct{}{}
			}
		}
		if len(notFound) >= nodeCount.Majority() {
			return nil
		}
		logger.WithFields(logrus.Fields{
			"attempt":   attempt,
			"not_found": len(notFound),
		}).Debug("Download retry")
		return retry.RetryableError(errNotYet)
	})
	if err != nil {
		return nil
	}
	if found == nil {
		logger.WithField("not_found", len(notFound)).Debug("Download point does not exist")
	}
	return found
}

// backoff retries fast a limited number of times, then slow forever.
func (d *Downloader) backoff() (retry.Backoff, error) {
	fast, err := retry.NewExponential(d.conf.DownloadMinBackoff)
	if err != nil {
		return nil, err
	}
	fast = retry.WithCappedDuration(d.conf.DownloadMaxBackoff, fast)
	fast = retry.WithMaxRetries(d.conf.DownloadAttempts, fast)

	slow := d.conf.DownloadSlowInterval
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if next, stop := fast.Next(); !stop {
			return next, false
		}
		return slow, false
	}), nil
}

// drainDependers moves the latest dependers to the front.
func drainDependers(dependers []models.PeerID, updates <-chan models.PeerID) []models.PeerID {
	for {
		select {
		case id, ok := <-updates:
			if !ok {
				return dependers
			}
			dependers = append([]models.PeerID{id}, dependers...)
		default:
			return dependers
		}
	}
}

// candidates lists the peers to ask, most likely first, without duplicates
// and without the local node.
func (d *Downloader) candidates(id models.PointID, dependers []models.PeerID) []*peers.Peer {
	round := id.Location.Round
	sets := d.schedule.PeersForArray([3]models.Round{round, round.Next(), round.Next().Next()})

	seen := map[models.PeerID]struct{}{d.localID: {}}
	var res []*peers.Peer
	add := func(peer models.PeerID) {
		if _, ok := seen[peer]; ok {
			return
		}
		for _, set := range sets {
			if p, ok := set.ByID[peer]; ok {
				seen[peer] = struct{}{}
				res = append(res, p)
				return
			}
		}
	}

	for _, peer := range dependers {
		add(peer)
	}
	add(id.Location.Author)
	for _, peer := range sets[0].SortedIDs() {
		add(peer)
	}
	return res
}

// attempt asks the candidates concurrently and stops at the first one that
// returns the point. It also returns the peers that do not have the point.
func (d *Downloader) attempt(ctx context.Context, id models.PointID, candidates []*peers.Peer) (*models.Point, []models.PeerID) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.conf.DownloadParallel)

	var (
		mu       sync.Mutex
		found    *models.Point
		notFound []models.PeerID
	)
	for _, peer := range candidates {
		if gctx.Err() != nil {
			break
		}
		peer := peer
		g.Go(func() error {
			point, err := d.query(peer, id)
			switch {
			case err == nil:
				mu.Lock()
				if found == nil {
					found = point
				}
				mu.Unlock()
				return errDownloaded
			case errors.Is(err, net.ErrPointNotFound):
				mu.Lock()
				notFound = append(notFound, peer.ID())
				mu.Unlock()
			default:
				d.logger.WithFields(logrus.Fields{
					"point": id,
					"peer":  peer.ID(),
				}).WithError(err).Debug("Download query")
			}
			return nil
		})
	}
	_ = g.Wait()

	return found, notFound
}

// query asks a single peer for the point.
func (d *Downloader) query(peer *peers.Peer, id models.PointID) (*models.Point, error) {
	var resp net.PointResponse
	if err := d.trans.QueryPoint(peer.NetAddr, net.NewPointRequest(d.localID, id), &resp); err != nil {
		return nil, err
	}
	point, err := resp.Decode()
	if err != nil {
		return nil, err
	}
	if point.ID() != id {
		return nil, errors.New("peer answered with another point")
	}
	if !point.IsIntegrityOK() {
		return nil, errors.New("peer answered with a corrupted point")
	}
	return point, nil
}
