package intercom

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testTimeout = 10 * time.Second

func testConfig() Config {
	conf := DefaultConfig()
	conf.DownloadMinBackoff = time.Millisecond
	conf.DownloadMaxBackoff = 5 * time.Millisecond
	conf.DownloadSlowInterval = 10 * time.Millisecond
	conf.BroadcastInterval = 10 * time.Millisecond
	return conf
}

func testLogger(t *testing.T) *logrus.Entry {
	return common.NewTestLogger(t).WithField("test", t.Name())
}

// nopDownloader never finds anything.
type nopDownloader struct{}

func (nopDownloader) Run(_ context.Context, task dag.DownloadTask) models.DagPoint {
	return models.NewNotExists(task.ID)
}

// testCommittee is a committee whose points are produced and validated by an
// observing DAG, the way the members would produce them.
type testCommittee struct {
	t *testing.T

	genesisKey  *btcec.PrivateKey
	genesisPeer *peers.Peer
	genesis     *models.Point

	ids   []models.PeerID
	keys  map[models.PeerID]*btcec.PrivateKey
	peers *peers.PeerSet

	schedule *peers.Schedule
	dag      *dag.Dag
	points   map[models.Round]map[models.PeerID]*models.Point
}

func newTestCommittee(t *testing.T, n int) *testCommittee {
	genesisKey, err := keys.GenerateKey()
	require.NoError(t, err)

	c := &testCommittee{
		t:           t,
		genesisKey:  genesisKey,
		genesisPeer: peers.NewPeer(keys.PublicKeyHex(genesisKey), "", "genesis"),
		genesis:     dag.Genesis(genesisKey),
		keys:        make(map[models.PeerID]*btcec.PrivateKey),
		points:      make(map[models.Round]map[models.PeerID]*models.Point),
	}

	members := make([]*peers.Peer, 0, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		require.NoError(t, err)
		addr, _ := net.NewInmemTransport("", time.Second)
		peer := peers.NewPeer(keys.PublicKeyHex(key), addr, fmt.Sprintf("peer%d", i))
		members = append(members, peer)
		c.keys[peer.ID()] = key
	}
	c.peers = peers.NewPeerSet(members)
	c.ids = c.peers.SortedIDs()
	c.schedule = c.scheduleFor(c.ids[0])

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fx := dag.NewEffects(ctx, dag.NewInmemStore(1000), testLogger(t))
	c.dag = dag.NewDag(models.GenesisRound, 8, c.schedule, fx)
	c.dag.Top().InsertExactSign(c.genesis, nil)
	return c
}

// scheduleFor returns the schedule as seen by one of the members.
func (c *testCommittee) scheduleFor(local models.PeerID) *peers.Schedule {
	return peers.NewSchedule(local, c.genesisPeer, c.peers)
}

func (c *testCommittee) peer(id models.PeerID) *peers.Peer {
	return c.peers.ByID[id]
}

func (c *testCommittee) evidence(author models.PeerID, digest models.Digest, round models.Round) map[models.PeerID]models.Signature {
	nodeCount, err := c.schedule.PeersFor(round).NodeCount()
	require.NoError(c.t, err)

	res := make(map[models.PeerID]models.Signature)
	for _, id := range c.ids {
		if len(res) == nodeCount.MajorityOfOthers() {
			break
		}
		if id == author {
			continue
		}
		res[id] = models.Signature(keys.Sign(c.keys[id], digest[:]))
	}
	return res
}

// build makes every member produce and broadcast its points up to the last
// round.
func (c *testCommittee) build(last models.Round) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	for r := c.dag.Top().Round().Next(); r <= last; r++ {
		round := c.dag.Extend(r)
		prev := c.points[r.Prev()]
		points := make(map[models.PeerID]*models.Point)
		for _, id := range c.ids {
			var proof *models.PrevPoint
			if p, ok := prev[id]; ok {
				proof = &models.PrevPoint{Digest: p.Digest, Evidence: c.evidence(id, p.Digest, r)}
			}
			payload := [][]byte{[]byte(fmt.Sprintf("%s@%d", id, r))}
			if p := dag.NewPoint(ctx, round, proof, payload, c.keys[id]); p != nil {
				points[id] = p
			}
		}
		for _, id := range c.ids {
			p, ok := points[id]
			if !ok {
				continue
			}
			_, ok = dag.Verify(p, c.schedule)
			require.True(c.t, ok)
			dp, err := round.AddBroadcastExact(p, nopDownloader{}).Wait(ctx)
			require.NoError(c.t, err)
			require.Equal(c.t, models.Trusted, dp.Kind, "%s", dp)
		}
		c.points[r] = points
	}
}

// testResponder answers the RPCs of one member from what it was told.
type testResponder struct {
	id    models.PeerID
	key   *btcec.PrivateKey
	trans *net.InmemTransport

	mu         sync.Mutex
	points     map[models.PointID]*models.Point
	substitute *models.Point
	tryLater   bool
	sigStatus  net.SignatureStatus
	signRound  map[models.Round]*models.Point
	received   []*models.Point
}

func (r *testResponder) serve(points ...*models.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range points {
		r.points[p.ID()] = p
	}
}

func (r *testResponder) set(fn func(r *testResponder)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(r)
}

func (r *testResponder) receivedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.received)
}

func (r *testResponder) run(ctx context.Context) {
	for {
		select {
		case rpc := <-r.trans.Consumer():
			rpc.Respond(r.handle(rpc.Command), nil)
		case <-ctx.Done():
			return
		}
	}
}

func (r *testResponder) handle(cmd interface{}) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd := cmd.(type) {
	case *net.PointRequest:
		if r.tryLater {
			return &net.PointResponse{FromID: r.id.Bytes(), TryLater: true}
		}
		if r.substitute != nil {
			resp, _ := net.NewPointResponse(r.id, r.substitute)
			return resp
		}
		id, err := cmd.PointID()
		if err != nil {
			return &net.PointResponse{FromID: r.id.Bytes()}
		}
		resp, _ := net.NewPointResponse(r.id, r.points[id])
		return resp
	case *net.BroadcastRequest:
		point, err := models.UnmarshalPoint(cmd.Point)
		if err != nil {
			return &net.BroadcastResponse{FromID: r.id.Bytes(), Status: uint8(Rejected)}
		}
		r.received = append(r.received, point)
		r.signRound[point.Round()] = point
		return &net.BroadcastResponse{FromID: r.id.Bytes(), Status: uint8(Accepted)}
	case *net.SignatureRequest:
		resp := &net.SignatureResponse{FromID: r.id.Bytes(), Status: r.sigStatus}
		point, ok := r.signRound[models.Round(cmd.Round)]
		if !ok && r.sigStatus == net.SignatureOK {
			resp.Status = net.SignatureNoPoint
		}
		if resp.Status == net.SignatureOK {
			resp.Signature = keys.Sign(r.key, point.Digest[:])
		}
		return resp
	}
	return nil
}

// testNetwork connects a local transport to a responder for every other
// member.
type testNetwork struct {
	local      *net.InmemTransport
	responders map[models.PeerID]*testResponder
}

func (c *testCommittee) network(local models.PeerID) *testNetwork {
	ctx, cancel := context.WithCancel(context.Background())

	_, localTrans := net.NewInmemTransport(c.peer(local).NetAddr, time.Second)
	n := &testNetwork{
		local:      localTrans,
		responders: make(map[models.PeerID]*testResponder),
	}

	var wg sync.WaitGroup
	for _, id := range c.ids {
		if id == local {
			continue
		}
		_, trans := net.NewInmemTransport(c.peer(id).NetAddr, time.Second)
		r := &testResponder{
			id:        id,
			key:       c.keys[id],
			trans:     trans,
			points:    make(map[models.PointID]*models.Point),
			signRound: make(map[models.Round]*models.Point),
		}
		n.responders[id] = r
		localTrans.Connect(trans.LocalAddr(), trans)

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.run(ctx)
		}()
	}

	c.t.Cleanup(func() {
		cancel()
		wg.Wait()
		localTrans.Close()
		for _, r := range n.responders {
			r.trans.Close()
		}
	})
	return n
}
