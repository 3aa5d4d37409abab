package keys

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sign signs a 32-byte hash and returns the DER encoded signature.
func Sign(priv *btcec.PrivateKey, hash []byte) []byte {
	return ecdsa.Sign(priv, hash).Serialize()
}

// Verify checks that sig is a valid DER signature of hash by the owner of the
// public key pub. Malformed keys or signatures never verify.
func Verify(pub []byte, hash []byte, sig []byte) bool {
	pubKey, err := btcec.ParsePubKey(pub)
	if err != nil {
		return false
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return signature.Verify(hash, pubKey)
}
