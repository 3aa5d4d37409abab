package dag

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
)

// GenesisTime is the fixed timestamp of the genesis point.
const GenesisTime models.UnixTime = 0

// Genesis builds the genesis point. Every node derives the same point from
// the same genesis key.
func Genesis(key *btcec.PrivateKey) *models.Point {
	author, err := models.PeerIDFromBytes(keys.PublicKeyBytes(key))
	if err != nil {
		panic(err)
	}
	return models.NewPoint(key, models.PointBody{
		Location:      models.Location{Round: models.GenesisRound, Author: author},
		Time:          GenesisTime,
		Includes:      map[models.PeerID]models.Digest{},
		Witness:       map[models.PeerID]models.Digest{},
		AnchorTrigger: models.LinkToSelf(),
		AnchorProof:   models.LinkToSelf(),
	})
}
