package engine

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
)

// Validator holds the identity of the local committee member.
type Validator struct {
	Key     *btcec.PrivateKey
	Moniker string

	id     *models.PeerID
	pubHex string
}

// NewValidator ...
func NewValidator(key *btcec.PrivateKey, moniker string) *Validator {
	v := &Validator{
		Key:     key,
		Moniker: moniker,
	}
	// the engine goroutines only read them afterwards
	v.ID()
	v.PublicKeyHex()
	return v
}

// ID is the peer id derived from the public key.
func (v *Validator) ID() models.PeerID {
	if v.id == nil {
		id, err := models.PeerIDFromBytes(keys.PublicKeyBytes(v.Key))
		if err != nil {
			panic(err)
		}
		v.id = &id
	}
	return *v.id
}

// PublicKeyHex ...
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(v.Key)
	}
	return v.pubHex
}
