package mempool

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/config"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCommittee writes a peers.json of n members to dir and returns their
// keys.
func writeCommittee(t *testing.T, dir string, n int) []*btcec.PrivateKey {
	var (
		ks      []*btcec.PrivateKey
		members []*peers.Peer
	)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		require.NoError(t, err)
		ks = append(ks, key)
		members = append(members, peers.NewPeer(keys.PublicKeyHex(key), fmt.Sprintf("127.0.0.1:%d", 12000+i), fmt.Sprintf("node%d", i)))
	}
	require.NoError(t, peers.NewJSONPeerSet(dir).Write(members))
	return ks
}

func testConfig(t *testing.T, dir string) *config.Config {
	genesisKey, err := keys.GenerateKey()
	require.NoError(t, err)

	conf := config.NewTestConfig(t)
	conf.SetDataDir(dir)
	conf.BindAddr = "127.0.0.1:0"
	conf.NoService = true
	conf.GenesisKey = keys.PrivateKeyHex(genesisKey)
	return conf
}

func TestMempoolInit(t *testing.T) {
	dir := t.TempDir()
	ks := writeCommittee(t, dir, 4)

	conf := testConfig(t, dir)
	conf.Key = ks[2]
	conf.Store = true

	m := NewMempool(conf)
	require.NoError(t, m.Init())
	defer func() {
		assert.NoError(t, m.Shutdown())
	}()

	assert.Equal(t, models.GenesisRound, m.Engine.Round())
	assert.Equal(t, 4, m.Peers.Len())
	assert.Equal(t, filepath.Join(dir, config.DefaultBadgerFile), m.Store.StorePath())
	assert.True(t, m.Schedule.IsMember(1, m.Engine.ID()))
	assert.Nil(t, m.Service)
}

func TestMempoolInitNotMember(t *testing.T) {
	dir := t.TempDir()
	writeCommittee(t, dir, 4)

	// no key in the data dir, a new one is created
	conf := testConfig(t, dir)

	m := NewMempool(conf)
	err := m.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peers.json")
	assert.FileExists(t, conf.Keyfile())
	assert.NoError(t, m.Shutdown())
}

func TestMempoolInitNoGenesis(t *testing.T) {
	conf := testConfig(t, t.TempDir())
	conf.GenesisKey = ""

	assert.ErrorIs(t, NewMempool(conf).Init(), config.ErrNoGenesisKey)
}

func TestKeygen(t *testing.T) {
	keyfile := filepath.Join(t.TempDir(), "priv_key")

	key, err := Keygen(keyfile)
	require.NoError(t, err)

	read, err := keys.NewSimpleKeyfile(keyfile).ReadKey()
	require.NoError(t, err)
	assert.Equal(t, keys.PrivateKeyHex(key), keys.PrivateKeyHex(read))

	_, err = Keygen(keyfile)
	assert.Error(t, err)
}
