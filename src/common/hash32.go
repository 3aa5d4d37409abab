package common

import "hash/fnv"

// Hash32 is a cheap, non-cryptographic hash used for deterministic choices
// that every honest node must agree upon.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()

	h.Write(data)

	return h.Sum32()
}
