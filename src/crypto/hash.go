package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Array is SHA256 with a fixed-size result, convenient for map keys.
func SHA256Array(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}
