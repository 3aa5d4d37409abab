package models

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/mempool/src/common"
)

// PeerIDLen is the size of a compressed secp256k1 public key.
const PeerIDLen = 33

// PeerID identifies a committee member by its compressed public key.
type PeerID [PeerIDLen]byte

// PeerIDFromBytes copies a compressed public key into a PeerID.
func PeerIDFromBytes(b []byte) (PeerID, error) {
	var id PeerID
	if len(b) != PeerIDLen {
		return id, fmt.Errorf("peer id must be %d bytes, got %d", PeerIDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// PeerIDFromHex parses the output of PeerID.Hex.
func PeerIDFromHex(s string) (PeerID, error) {
	b, err := common.DecodeFromString(s)
	if err != nil {
		return PeerID{}, err
	}
	return PeerIDFromBytes(b)
}

// Bytes returns the compressed public key.
func (p PeerID) Bytes() []byte {
	return p[:]
}

// Hex returns the full 0X-prefixed representation.
func (p PeerID) Hex() string {
	return common.EncodeToString(p[:])
}

// String is a short form for logs.
func (p PeerID) String() string {
	return hex.EncodeToString(p[1:5])
}

// Less orders peers by their key bytes.
func (p PeerID) Less(other PeerID) bool {
	return bytes.Compare(p[:], other[:]) < 0
}

// SortPeerIDs sorts in place and returns the slice.
func SortPeerIDs(ids []PeerID) []PeerID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// DigestLen is the size of a SHA256 hash.
const DigestLen = 32

// Digest is the content hash of a point body.
type Digest [DigestLen]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:4])
}

// Signature is a DER encoded secp256k1 signature over a digest.
type Signature []byte

// Location is the slot of one author in one round.
type Location struct {
	Round  Round
	Author PeerID
}

func (l Location) String() string {
	return fmt.Sprintf("%s @ %d", l.Author, l.Round)
}

// PointID identifies a point uniquely.
type PointID struct {
	Location Location
	Digest   Digest
}

func (id PointID) String() string {
	return fmt.Sprintf("%s # %s", id.Location, id.Digest)
}
