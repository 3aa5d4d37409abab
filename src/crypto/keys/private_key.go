package keys

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKeyLen is the size of a raw secp256k1 scalar.
const PrivateKeyLen = 32

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// DumpPrivateKey exports a private key into a binary dump.
func DumpPrivateKey(priv *btcec.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return priv.Serialize()
}

// ParsePrivateKey creates a private key from a raw 32-byte scalar as produced
// by DumpPrivateKey.
func ParsePrivateKey(d []byte) (*btcec.PrivateKey, error) {
	if len(d) != PrivateKeyLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", PrivateKeyLen)
	}

	zero := true
	for _, b := range d {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return nil, errors.New("invalid private key, zero")
	}

	priv, _ := btcec.PrivKeyFromBytes(d)
	return priv, nil
}

// PrivateKeyHex returns the hexadecimal representation of a raw private key
// as returned by DumpPrivateKey.
func PrivateKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}
