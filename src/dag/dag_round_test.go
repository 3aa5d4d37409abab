package dag

import (
	"runtime"
	"testing"

	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDagRoundScan(t *testing.T) {
	net := newTestNet(t, 4, 10)

	r5 := NewBottom(5, net.schedule, net.fx)
	r6 := r5.NewNext(net.schedule)
	r7 := r6.NewNext(net.schedule)

	assert.Same(t, r7, r7.Scan(7))
	assert.Same(t, r5, r7.Scan(5))
	assert.Nil(t, r7.Scan(4), "rounds below the bottom are out of the window")

	assert.Panics(t, func() { r6.Scan(7) }, "future rounds cannot be scanned")

	runtime.KeepAlive(r5)
}

func TestDagRoundScanPanicsOnGap(t *testing.T) {
	net := newTestNet(t, 4, 10)

	r1 := NewBottom(1, net.schedule, net.fx)
	r3 := newDagRound(3, net.schedule, net.fx, r1.Downgrade())

	assert.Panics(t, func() { r3.Scan(1) })

	runtime.KeepAlive(r1)
}

func TestDagRoundLocationsAreFixed(t *testing.T) {
	net := newTestNet(t, 4, 10)

	round := net.dag.Extend(1)
	assert.Equal(t, 4, round.NodeCount().Full())
	for _, id := range net.ids {
		_, ok := round.Location(id)
		assert.True(t, ok)
	}

	genesisRound := net.dag.Get(models.GenesisRound)
	assert.Equal(t, 1, genesisRound.NodeCount().Full())
	_, ok := genesisRound.Location(net.genesis.Author())
	assert.True(t, ok)

	stranger, err := keys.GenerateKey()
	require.NoError(t, err)
	strangerID, err := models.PeerIDFromBytes(keys.PublicKeyBytes(stranger))
	require.NoError(t, err)

	assert.Panics(t, func() {
		round.AddDependencyExact(strangerID, models.Digest{}, net.ids[0], net.downloader)
	})

	viewed := 0
	assert.True(t, round.View(net.ids[1], func(loc *DagLocation) {
		assert.Empty(t, loc.Versions())
		viewed++
	}))
	assert.False(t, round.View(strangerID, func(*DagLocation) { viewed++ }))
	assert.Equal(t, 1, viewed)
}

func TestInsertExactSign(t *testing.T) {
	net := newTestNet(t, 4, 10)

	genesisRound := net.dag.Get(models.GenesisRound)
	assert.Panics(t, func() { genesisRound.InsertExactSign(net.genesis, nil) }, "duplicate")

	round := net.dag.Extend(1)
	assert.Panics(t, func() { round.InsertExactSign(net.genesis, nil) }, "round mismatch")

	// own point is trusted and signed at once
	author := net.ids[0]
	p := net.produceFor(round, nil, []models.PeerID{author})[author]
	require.NotNil(t, p)
	round.InsertExactSign(p, net.keys[author])

	loc, _ := round.Location(author)
	f, ok := loc.Version(p.Digest)
	require.True(t, ok)
	dp, ok := f.Get()
	require.True(t, ok)
	assert.Equal(t, models.Trusted, dp.Kind)

	signed, sig := loc.State().Signed()
	assert.Equal(t, common.True, signed)
	assert.Equal(t, round.Round(), sig.At)
	assert.True(t, keys.Verify(author.Bytes(), p.Digest[:], sig.Signature))
	assert.Same(t, p, loc.State().SignedPoint(round.Round()))

	stored, err := net.fx.Store().GetDagPoint(p.ID())
	require.NoError(t, err)
	assert.Equal(t, models.Trusted, stored.Kind)
}

func TestInclusionStateSign(t *testing.T) {
	net := newTestNet(t, 4, 10)
	pts := net.buildRounds(1)

	round := net.dag.Get(1)
	signer := net.keys[net.ids[1]]

	loc, _ := round.Location(net.ids[0])
	signed, sig := loc.State().Sign(1, signer)
	assert.Equal(t, common.True, signed)
	assert.Equal(t, models.Round(1), sig.At)
	assert.Same(t, pts[1][net.ids[0]], loc.State().SignedPoint(1))
	assert.Nil(t, loc.State().SignedPoint(2))

	// the decision is taken once
	again, _ := loc.State().Sign(2, signer)
	assert.Equal(t, common.True, again)

	// too late to sign
	late, _ := round.Location(net.ids[2])
	signed, _ = late.State().Sign(3, signer)
	assert.Equal(t, common.False, signed)
	assert.Nil(t, late.State().SignedPoint(3))

	// unknown points are not decided
	round2 := net.dag.Extend(2)
	empty, _ := round2.Location(net.ids[0])
	signed, _ = empty.State().Sign(2, signer)
	assert.Equal(t, common.Undefined, signed)
}

func TestDagDropsRoundsOutOfWindow(t *testing.T) {
	net := newTestNet(t, 4, 2)
	net.buildRounds(4)

	weaks := make(map[models.Round]WeakDagRound)
	for r := models.Round(2); r <= 4; r++ {
		weaks[r] = net.dag.Get(r).Downgrade()
	}

	for r := models.Round(5); r <= 8; r++ {
		net.dag.Extend(r)
	}
	assert.Equal(t, models.Round(6), net.dag.Bottom().Round())
	assert.Nil(t, net.dag.Get(5))

	runtime.GC()
	runtime.GC()

	for r, w := range weaks {
		assert.Nil(t, w.Get(), "round %d must be reclaimed", r)
	}

	// a gap wider than the window restarts the chain
	top := net.dag.Extend(20)
	assert.Equal(t, models.Round(20), top.Round())
	assert.Equal(t, models.Round(18), net.dag.Bottom().Round())
	assert.Nil(t, top.Scan(17))
}

func TestNewDagRequiresDepth(t *testing.T) {
	net := newTestNet(t, 4, 10)
	assert.Panics(t, func() { NewDag(0, 1, net.schedule, net.fx) })
}
