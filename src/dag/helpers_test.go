package dag

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const testTimeout = 10 * time.Second

// testDownloader serves the points it was given and answers NotExists for
// any other one.
type testDownloader struct {
	schedule *peers.Schedule

	mu     sync.Mutex
	points map[models.PointID]*models.Point
	runs   *atomic.Int64
}

func newTestDownloader(schedule *peers.Schedule) *testDownloader {
	return &testDownloader{
		schedule: schedule,
		points:   make(map[models.PointID]*models.Point),
		runs:     atomic.NewInt64(0),
	}
}

func (d *testDownloader) serve(points ...*models.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range points {
		d.points[p.ID()] = p
	}
}

func (d *testDownloader) Run(ctx context.Context, task DownloadTask) models.DagPoint {
	d.runs.Inc()

	d.mu.Lock()
	point, ok := d.points[task.ID]
	d.mu.Unlock()

	if !ok {
		return models.NewNotExists(task.ID)
	}
	if verdict, ok := Verify(point, d.schedule); !ok {
		return verdict
	}
	return Validate(ctx, point, task.Round, d)
}

// testNet is a committee and a local DAG that observes all its points.
type testNet struct {
	t *testing.T

	genesisKey *btcec.PrivateKey
	genesis    *models.Point

	ids  []models.PeerID
	keys map[models.PeerID]*btcec.PrivateKey

	schedule   *peers.Schedule
	fx         *Effects
	dag        *Dag
	downloader *testDownloader

	cancel context.CancelFunc
}

func newTestNet(t *testing.T, n int, depth int) *testNet {
	genesisKey, err := keys.GenerateKey()
	require.NoError(t, err)

	net := &testNet{
		t:          t,
		genesisKey: genesisKey,
		genesis:    Genesis(genesisKey),
		keys:       make(map[models.PeerID]*btcec.PrivateKey),
	}

	committee := make([]*peers.Peer, 0, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		require.NoError(t, err)
		peer := peers.NewPeer(keys.PublicKeyHex(key), "", fmt.Sprintf("peer%d", i))
		committee = append(committee, peer)
		net.keys[peer.ID()] = key
	}
	peerSet := peers.NewPeerSet(committee)
	net.ids = peerSet.SortedIDs()

	genesisPeer := peers.NewPeer(keys.PublicKeyHex(genesisKey), "", "genesis")
	net.schedule = peers.NewSchedule(net.ids[0], genesisPeer, peerSet)

	net.fx, net.cancel = net.newEffects()
	net.downloader = newTestDownloader(net.schedule)
	net.dag = NewDag(models.GenesisRound, depth, net.schedule, net.fx)
	net.dag.Top().InsertExactSign(net.genesis, nil)

	t.Cleanup(net.cancel)
	return net
}

func (n *testNet) newEffects() (*Effects, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := common.NewTestLogger(n.t).WithField("test", n.t.Name())
	return NewEffects(ctx, NewInmemStore(1000), logger), cancel
}

func (n *testNet) leader(round models.Round) models.PeerID {
	leader, ok := n.schedule.Leader(round)
	require.True(n.t, ok)
	return leader
}

// evidence signs the digest with the first majority-of-others members that
// are not the author.
func (n *testNet) evidence(author models.PeerID, digest models.Digest, round models.Round) map[models.PeerID]models.Signature {
	nodeCount, err := n.schedule.PeersFor(round).NodeCount()
	require.NoError(n.t, err)

	res := make(map[models.PeerID]models.Signature)
	for _, id := range n.ids {
		if len(res) == nodeCount.MajorityOfOthers() {
			break
		}
		if id == author {
			continue
		}
		res[id] = models.Signature(keys.Sign(n.keys[id], digest[:]))
	}
	return res
}

func (n *testNet) prevPoint(p *models.Point, round models.Round) *models.PrevPoint {
	if p == nil {
		return nil
	}
	return &models.PrevPoint{Digest: p.Digest, Evidence: n.evidence(p.Author(), p.Digest, round)}
}

// produce makes every member produce its point for the round, chaining its
// previous point if any. Leaders without a previous point skip the round.
func (n *testNet) produce(round *DagRound, prev map[models.PeerID]*models.Point) map[models.PeerID]*models.Point {
	return n.produceFor(round, prev, n.ids)
}

func (n *testNet) produceFor(round *DagRound, prev map[models.PeerID]*models.Point, authors []models.PeerID) map[models.PeerID]*models.Point {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	res := make(map[models.PeerID]*models.Point)
	for _, id := range authors {
		payload := [][]byte{[]byte(fmt.Sprintf("%s@%d", id, round.Round()))}
		p := NewPoint(ctx, round, n.prevPoint(prev[id], round.Round()), payload, n.keys[id])
		if p != nil {
			res[id] = p
		}
	}
	return res
}

// broadcast verifies and inserts points as if they were received from the
// network, and waits for their verdicts.
func (n *testNet) broadcast(round *DagRound, points ...*models.Point) []models.DagPoint {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	futures := make([]*PointFuture, 0, len(points))
	for _, p := range points {
		_, ok := Verify(p, n.schedule)
		require.True(n.t, ok, "point %s must pass verification", p.ID())
		futures = append(futures, round.AddBroadcastExact(p, n.downloader))
	}

	res := make([]models.DagPoint, 0, len(futures))
	for _, f := range futures {
		dp, err := f.Wait(ctx)
		require.NoError(n.t, err)
		res = append(res, dp)
	}
	return res
}

func (n *testNet) requireTrusted(verdicts []models.DagPoint) {
	for _, dp := range verdicts {
		require.Equal(n.t, models.Trusted, dp.Kind, "%s", dp)
	}
}

func sortedValues(points map[models.PeerID]*models.Point) []*models.Point {
	ids := make([]models.PeerID, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	res := make([]*models.Point, 0, len(points))
	for _, id := range models.SortPeerIDs(ids) {
		res = append(res, points[id])
	}
	return res
}

// buildRounds produces and broadcasts every round from 1 to last, and returns
// the points by round.
func (n *testNet) buildRounds(last models.Round) map[models.Round]map[models.PeerID]*models.Point {
	res := make(map[models.Round]map[models.PeerID]*models.Point)
	var prev map[models.PeerID]*models.Point
	for r := models.GenesisRound.Next(); r <= last; r++ {
		round := n.dag.Extend(r)
		points := n.produce(round, prev)
		n.requireTrusted(n.broadcast(round, sortedValues(points)...))
		res[r] = points
		prev = points
	}
	return res
}

// resign copies the body of a point, lets edit change it and signs the
// result with the key of the new author.
func (n *testNet) resign(p *models.Point, edit func(body *models.PointBody)) *models.Point {
	body := p.Body
	body.Includes = make(map[models.PeerID]models.Digest, len(p.Body.Includes))
	for k, v := range p.Body.Includes {
		body.Includes[k] = v
	}
	body.Witness = make(map[models.PeerID]models.Digest, len(p.Body.Witness))
	for k, v := range p.Body.Witness {
		body.Witness[k] = v
	}
	body.Payload = append([][]byte(nil), p.Body.Payload...)
	edit(&body)
	return models.NewPoint(n.keys[body.Location.Author], body)
}

// nonLeaders returns the members that lead neither role of the round's wave,
// in id order.
func (n *testNet) nonLeaders(round models.Round) []models.PeerID {
	leader := n.leader(round)
	res := make([]models.PeerID, 0, len(n.ids))
	for _, id := range n.ids {
		if id != leader {
			res = append(res, id)
		}
	}
	return res
}
