package peers

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto"
	"github.com/mosaicnetworks/mempool/src/models"
)

//PeerSet is a set of Peers forming a committee
type PeerSet struct {
	Peers    []*Peer                 `json:"peers"`
	ByPubKey map[string]*Peer        `json:"-"`
	ByID     map[models.PeerID]*Peer `json:"-"`

	//computed once at construction
	hash      []byte
	hex       string
	sortedIDs []models.PeerID
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. Duplicates are
//ignored.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[models.PeerID]*Peer),
	}

	for _, peer := range peers {
		peer.computeID()
		if _, ok := peerSet.ByID[peer.ID()]; ok {
			continue
		}
		peerSet.ByPubKey[peer.PubKeyHex] = peer
		peerSet.ByID[peer.ID()] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	peerSet.sortedIDs = models.SortPeerIDs(peerSet.IDs())

	var buf bytes.Buffer
	for _, id := range peerSet.sortedIDs {
		buf.Write(id.Bytes())
	}
	peerSet.hash = crypto.SHA256(buf.Bytes())
	peerSet.hex = common.EncodeToString(peerSet.hash)

	return peerSet
}

//NewPeerSetFromPeerSliceBytes creates a new PeerSet from a peerSlice in Bytes format
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	dec := json.NewDecoder(bytes.NewBuffer(peerSliceBytes))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	for _, p := range peers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return NewPeerSet(peers), nil
}

/* ToSlice Methods */

//IDs returns the PeerSet's slice of IDs in insertion order
func (peerSet *PeerSet) IDs() []models.PeerID {
	res := make([]models.PeerID, 0, len(peerSet.Peers))
	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID())
	}
	return res
}

//SortedIDs returns the IDs ordered by key bytes. Every node computes the
//same order, so it is suitable for deterministic choices.
func (peerSet *PeerSet) SortedIDs() []models.PeerID {
	return peerSet.sortedIDs
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}

//Contains ...
func (peerSet *PeerSet) Contains(id models.PeerID) bool {
	if peerSet == nil {
		return false
	}
	_, ok := peerSet.ByID[id]
	return ok
}

//NodeCount returns the thresholds for this committee
func (peerSet *PeerSet) NodeCount() (NodeCount, error) {
	return NewNodeCount(peerSet.Len())
}

// Hash uniquely identifies a PeerSet. It is computed by hashing (SHA256) their
// public keys in sorted order.
func (peerSet *PeerSet) Hash() []byte {
	return peerSet.hash
}

//Hex is the hexadecimal representation of Hash
func (peerSet *PeerSet) Hex() string {
	return peerSet.hex
}

//Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

//Others returns the peers other than id, sorted by id
func (peerSet *PeerSet) Others(id models.PeerID) []*Peer {
	res := make([]*Peer, 0, len(peerSet.Peers))
	for _, p := range peerSet.Peers {
		if p.ID() != id {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID().Less(res[j].ID()) })
	return res
}
