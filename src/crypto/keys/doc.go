// Package keys implements the public key cryptography used by the mempool.
//
// Every committee member owns a secp256k1 key-pair. The compressed form of the
// public key is the member's identity, and the private key signs the digests
// of the points the member authors, as well as the digests of other members'
// points it attests to have received (evidence).
//
// We chose the secp256k1 curve because it is also used by Bitcoin and
// Ethereum. The implementation is the one maintained by btcsuite.
package keys
