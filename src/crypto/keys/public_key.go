package keys

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
)

// PublicKeyBytes returns the compressed form of the key-pair's public key. It
// is the identity of a committee member.
func PublicKeyBytes(priv *btcec.PrivateKey) []byte {
	return priv.PubKey().SerializeCompressed()
}

// ParsePublicKey decodes a compressed or uncompressed public key.
func ParsePublicKey(pub []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pub)
}

// PublicKeyHex returns the hexadecimal representation of the compressed
// public key.
func PublicKeyHex(priv *btcec.PrivateKey) string {
	return common.EncodeToString(PublicKeyBytes(priv))
}
