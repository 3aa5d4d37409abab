package engine

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/intercom"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	key    *btcec.PrivateKey
	peer   *peers.Peer
	trans  *net.InmemTransport
	store  *dag.InmemStore
	engine *Engine
}

type testCluster struct {
	t        *testing.T
	genesis  *models.Point
	gPeer    *peers.Peer
	peerSet  *peers.PeerSet
	nodes    []*testNode
	registry *prometheus.Registry
}

func newTestCluster(t *testing.T, n int) *testCluster {
	gKey, err := keys.GenerateKey()
	require.NoError(t, err)
	genesis, gPeer, err := Genesis(keys.PrivateKeyHex(gKey))
	require.NoError(t, err)

	c := &testCluster{t: t, genesis: genesis, gPeer: gPeer}

	var members []*peers.Peer
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		require.NoError(t, err)
		addr, trans := net.NewInmemTransport("", time.Second)
		peer := peers.NewPeer(keys.PublicKeyHex(key), addr, fmt.Sprintf("node%d", i))
		members = append(members, peer)
		c.nodes = append(c.nodes, &testNode{
			key:   key,
			peer:  peer,
			trans: trans,
			store: dag.NewInmemStore(10000),
		})
	}
	for _, a := range c.nodes {
		for _, b := range c.nodes {
			if a != b {
				a.trans.Connect(b.trans.LocalAddr(), b.trans)
			}
		}
	}
	c.peerSet = peers.NewPeerSet(members)

	for i, node := range c.nodes {
		schedule := peers.NewSchedule(node.peer.ID(), gPeer, c.peerSet)
		node.engine = NewEngine(
			TestConfig(t),
			NewValidator(node.key, fmt.Sprintf("node%d", i)),
			schedule,
			genesis,
			node.store,
			node.trans,
			prometheus.NewRegistry(),
		)
		require.NoError(t, node.engine.Init())
	}
	t.Cleanup(func() {
		for _, node := range c.nodes {
			assert.NoError(t, node.engine.Shutdown())
		}
	})
	return c
}

// run starts the first count nodes and stops them at the end of the test.
func (c *testCluster) run(count int) {
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, count)
	for _, node := range c.nodes[:count] {
		e := node.engine
		go func() {
			errs <- e.Run(ctx)
		}()
	}
	c.t.Cleanup(func() {
		cancel()
		for i := 0; i < count; i++ {
			assert.NoError(c.t, <-errs)
		}
	})
}

func (c *testCluster) waitRound(round models.Round, count int) {
	require.Eventually(c.t, func() bool {
		for _, node := range c.nodes[:count] {
			if node.engine.Round() < round {
				return false
			}
		}
		return true
	}, 60*time.Second, 20*time.Millisecond)
}

func TestEngineCommittee(t *testing.T) {
	c := newTestCluster(t, 4)

	payload := []byte("payload of node0")
	require.True(t, c.nodes[0].engine.Submit(payload))

	c.run(4)
	c.waitRound(10, 4)

	for _, node := range c.nodes {
		assert.Positive(t, node.engine.produced.Load())
		assert.Equal(t, Producing, node.engine.GetState())
	}

	// a majority of a finished round is trusted by every node
	for _, node := range c.nodes {
		round := node.engine.DAG().Get(node.engine.Round() - 2)
		require.NotNil(t, round)
		require.Eventually(t, func() bool {
			return len(trusted(round)) >= round.NodeCount().Majority()
		}, 10*time.Second, 20*time.Millisecond)
	}

	// the payload made it into a point of node0
	found := false
	for r := models.Round(1); r <= 6 && !found; r++ {
		dps, err := c.nodes[0].store.LoadRound(r)
		require.NoError(t, err)
		for _, dp := range dps {
			p := dp.Valid()
			if p == nil || p.Author() != c.nodes[0].engine.ID() {
				continue
			}
			for _, b := range p.Body.Payload {
				if bytes.Equal(b, payload) {
					found = true
				}
			}
		}
	}
	assert.True(t, found)

	stats := c.nodes[1].engine.GetStats()
	assert.Equal(t, "Producing", stats["state"])
	assert.Equal(t, "node1", stats["moniker"])
}

func TestEngineToleratesFault(t *testing.T) {
	c := newTestCluster(t, 4)

	// the last node never starts
	c.run(3)
	c.waitRound(8, 3)

	for _, node := range c.nodes[:3] {
		assert.Positive(t, node.engine.produced.Load())
	}
}

func trusted(round *dag.DagRound) []*models.Point {
	return round.Select(func(_ models.PeerID, loc *dag.DagLocation) *models.Point {
		dp, ok := loc.State().Point()
		if !ok {
			return nil
		}
		return dp.Trusted()
	})
}

func call(e *Engine, cmd interface{}) net.RPCResponse {
	ch := make(chan net.RPCResponse, 1)
	e.processRPC(net.RPC{Command: cmd, RespChan: ch})
	return <-ch
}

func TestEnginePointRequest(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.nodes[0].engine
	from := c.nodes[1].peer.ID()

	resp := call(e, net.NewPointRequest(from, c.genesis.ID()))
	require.NoError(t, resp.Error)
	point, err := resp.Response.(*net.PointResponse).Decode()
	require.NoError(t, err)
	assert.Equal(t, c.genesis.ID(), point.ID())

	unknown := models.PointID{
		Location: models.Location{Round: 0, Author: from},
		Digest:   models.Digest{1},
	}
	resp = call(e, net.NewPointRequest(from, unknown))
	require.NoError(t, resp.Error)
	_, err = resp.Response.(*net.PointResponse).Decode()
	assert.ErrorIs(t, err, net.ErrPointNotFound)

	future := unknown
	future.Location.Round = 5
	resp = call(e, net.NewPointRequest(from, future))
	require.NoError(t, resp.Error)
	_, err = resp.Response.(*net.PointResponse).Decode()
	assert.ErrorIs(t, err, net.ErrTryLater)
}

func TestEngineSignatureRequest(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.nodes[0].engine
	from := c.nodes[1].peer.ID()

	status := func(round models.Round) net.SignatureStatus {
		resp := call(e, &net.SignatureRequest{FromID: from.Bytes(), Round: uint32(round)})
		require.NoError(t, resp.Error)
		return resp.Response.(*net.SignatureResponse).Status
	}

	assert.Equal(t, net.SignatureTryLater, status(3))
	// the genesis round has no location for committee members
	assert.Equal(t, net.SignatureRejected, status(0))

	resp := call(e, &net.SignatureRequest{FromID: []byte{1, 2}, Round: 0})
	assert.Error(t, resp.Error)
}

func TestEngineBroadcastRequest(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.nodes[0].engine

	resp := call(e, &net.BroadcastRequest{FromID: c.nodes[1].peer.ID().Bytes(), Point: []byte("garbage")})
	require.NoError(t, resp.Error)
	assert.Equal(t, uint8(intercom.Rejected), resp.Response.(*net.BroadcastResponse).Status)
	assert.Zero(t, e.filter.Pending())
}

func TestEngineBootstrap(t *testing.T) {
	c := newTestCluster(t, 4)
	key := c.nodes[0].key
	local := c.nodes[0].peer.ID()
	store := dag.NewInmemStore(100)
	_, trans := net.NewInmemTransport("", time.Second)

	// produce a first point the way a previous run would have
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	schedule := peers.NewSchedule(local, c.gPeer, c.peerSet)
	fx := dag.NewEffects(ctx, store, common.NewTestLogger(t).WithField("test", t.Name()))
	d := dag.NewDag(models.GenesisRound, 8, schedule, fx)
	d.Top().InsertExactSign(c.genesis, nil)
	point := dag.NewPoint(ctx, d.Extend(1), nil, [][]byte{[]byte("before restart")}, key)
	require.NotNil(t, point)
	d.Top().InsertExactSign(point, key)

	last, ok := store.LastRound()
	require.True(t, ok)
	require.Equal(t, models.Round(1), last)

	e := NewEngine(TestConfig(t), NewValidator(key, "restarted"), schedule, c.genesis, store, trans, nil)
	require.NoError(t, e.Init())
	defer e.Shutdown()

	assert.Equal(t, models.Round(2), e.Round())
	loc, ok := e.DAG().Get(1).Location(local)
	require.True(t, ok)
	dp, ok := loc.State().Point()
	require.True(t, ok)
	assert.Equal(t, models.Trusted, dp.Kind)
	assert.Equal(t, point.ID(), dp.ID())

	signed, _ := loc.State().Signed()
	assert.Equal(t, common.True, signed)

	genesis := e.DAG().Get(0)
	require.NotNil(t, genesis)
	_, ok = genesis.Location(c.genesis.Author())
	assert.True(t, ok)
}

func TestEngineShutdown(t *testing.T) {
	c := newTestCluster(t, 4)

	// an engine that never ran does not wait for its loops
	idle := c.nodes[3].engine
	start := time.Now()
	require.NoError(t, idle.Shutdown())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Shutdown, idle.GetState())

	running := c.nodes[0].engine
	errCh := make(chan error, 1)
	go func() {
		errCh <- running.Run(context.Background())
	}()
	require.Eventually(t, func() bool {
		return running.started.Load() && running.GetState() == Producing
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, running.Shutdown())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	// repeated calls are no-ops
	assert.NoError(t, running.Shutdown())
	assert.Error(t, running.Run(context.Background()))
}
