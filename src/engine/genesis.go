package engine

import (
	"encoding/hex"
	"fmt"

	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
)

// Genesis derives the genesis point and its author from the genesis key that
// every committee member is configured with. Every member obtains the same
// point.
func Genesis(keyHex string) (*models.Point, *peers.Peer, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis key: %v", err)
	}
	key, err := keys.ParsePrivateKey(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis key: %v", err)
	}
	return dag.Genesis(key), peers.NewPeer(keys.PublicKeyHex(key), "", "genesis"), nil
}
