package peers

import (
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/models"
)

// Peer is a committee member.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	id *models.PeerID
}

// NewPeer ...
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
	peer.computeID()
	return peer
}

// PubKeyBytes decodes the hex representation of the public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// ID returns the identity of the peer, or the zero id if the public key is
// malformed. Use Validate to detect the latter.
func (p *Peer) ID() models.PeerID {
	if p.id != nil {
		return *p.id
	}
	id, _ := p.parseID()
	return id
}

func (p *Peer) computeID() {
	id, _ := p.parseID()
	p.id = &id
}

// Validate checks that the public key has the expected format.
func (p *Peer) Validate() error {
	_, err := p.parseID()
	return err
}

func (p *Peer) parseID() (models.PeerID, error) {
	b, err := p.PubKeyBytes()
	if err != nil {
		return models.PeerID{}, err
	}
	return models.PeerIDFromBytes(b)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id models.PeerID) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
