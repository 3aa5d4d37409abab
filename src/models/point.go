package models

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
)

// PrevPoint references the author's own point at round-1 together with the
// signatures of the committee members that attested its delivery.
type PrevPoint struct {
	Digest   Digest
	Evidence map[PeerID]Signature
}

// PointBody is the signed content of a Point.
type PointBody struct {
	Location Location
	Time     UnixTime
	Payload  [][]byte
	// Proof is present iff the author produced a point at round-1
	Proof *PrevPoint
	// Includes are the mandatory dependencies at round-1
	Includes map[PeerID]Digest
	// Witness are the optional dependencies at round-2
	Witness       map[PeerID]Digest
	AnchorTrigger Link
	AnchorProof   Link
}

// Digest hashes the canonical encoding of the body.
func (b *PointBody) Digest() Digest {
	bytes, err := b.Marshal()
	if err != nil {
		panic("Coding error: cannot encode point body: " + err.Error())
	}
	return Digest(sha256.Sum256(bytes))
}

// Point is one author's signed contribution to one round. It is immutable
// once created.
type Point struct {
	Body      PointBody
	Digest    Digest
	Signature Signature
}

// NewPoint hashes and signs the body with the author's key.
func NewPoint(key *btcec.PrivateKey, body PointBody) *Point {
	digest := body.Digest()
	return &Point{
		Body:      body,
		Digest:    digest,
		Signature: keys.Sign(key, digest[:]),
	}
}

// ID ...
func (p *Point) ID() PointID {
	return PointID{Location: p.Body.Location, Digest: p.Digest}
}

// Round ...
func (p *Point) Round() Round {
	return p.Body.Location.Round
}

// Author ...
func (p *Point) Author() PeerID {
	return p.Body.Location.Author
}

// PrevID returns the id of the author's point at round-1, if the point
// carries a proof for it.
func (p *Point) PrevID() (PointID, bool) {
	if p.Body.Proof == nil {
		return PointID{}, false
	}
	return PointID{
		Location: Location{Round: p.Round().Prev(), Author: p.Author()},
		Digest:   p.Body.Proof.Digest,
	}, true
}

// AnchorLink returns the requested link.
func (p *Point) AnchorLink(f LinkField) Link {
	if f == LinkTrigger {
		return p.Body.AnchorTrigger
	}
	return p.Body.AnchorProof
}

// AnchorRound is the round of the anchor the link resolves to.
func (p *Point) AnchorRound(f LinkField) Round {
	link := p.AnchorLink(f)
	switch link.Kind {
	case Direct:
		return p.throughRound(link.Through)
	case Indirect:
		return link.To.Location.Round
	}
	return p.Round()
}

// AnchorID is the id of the anchor the link resolves to.
func (p *Point) AnchorID(f LinkField) PointID {
	link := p.AnchorLink(f)
	if link.Kind == Indirect {
		return link.To
	}
	return p.AnchorLinkID(f)
}

// AnchorLinkID is the id of the dependency the link passes through, or the
// point itself for a ToSelf link.
func (p *Point) AnchorLinkID(f LinkField) PointID {
	link := p.AnchorLink(f)
	if link.Kind == ToSelf {
		return p.ID()
	}
	return p.throughID(link.Through)
}

func (p *Point) throughRound(t Through) Round {
	if t.Field == ThroughWitness {
		return p.Round().Prev().Prev()
	}
	return p.Round().Prev()
}

func (p *Point) throughID(t Through) PointID {
	deps := p.Body.Includes
	if t.Field == ThroughWitness {
		deps = p.Body.Witness
	}
	return PointID{
		Location: Location{Round: p.throughRound(t), Author: t.Peer},
		Digest:   deps[t.Peer],
	}
}

// IsIntegrityOK checks that the digest matches the body and that the author
// signed it. A point failing this check cannot even be attributed.
func (p *Point) IsIntegrityOK() bool {
	if p.Body.Digest() != p.Digest {
		return false
	}
	return keys.Verify(p.Author().Bytes(), p.Digest[:], p.Signature)
}

// IsWellFormed checks the structural rules that do not depend on the
// committee or on the DAG.
func (p *Point) IsWellFormed() bool {
	b := &p.Body
	author := b.Location.Author

	switch {
	case b.Location.Round == GenesisRound:
		if len(b.Includes) != 0 || len(b.Witness) != 0 || len(b.Payload) != 0 || b.Proof != nil {
			return false
		}
		if b.AnchorProof.Kind != ToSelf || b.AnchorTrigger.Kind != ToSelf {
			return false
		}
	default:
		// no witness is possible right after genesis
		if b.Location.Round == GenesisRound.Next() && len(b.Witness) != 0 {
			return false
		}
		// leaders must maintain their chain of proofs
		if b.Proof == nil && (b.AnchorProof.Kind == ToSelf || b.AnchorTrigger.Kind == ToSelf) {
			return false
		}
	}

	// proof is listed in includes
	included, ok := b.Includes[author]
	if b.Proof == nil {
		if ok {
			return false
		}
	} else {
		if !ok || included != b.Proof.Digest {
			return false
		}
		// evidence holds only signatures of others
		if _, ok := b.Proof.Evidence[author]; ok {
			return false
		}
	}

	if !p.isLinkWellFormed(LinkProof) || !p.isLinkWellFormed(LinkTrigger) {
		return false
	}

	proofRound, triggerRound := p.AnchorRound(LinkProof), p.AnchorRound(LinkTrigger)
	if proofRound == GenesisRound || triggerRound == GenesisRound {
		return true
	}
	// commit waves do not start every round
	return proofRound != triggerRound
}

func (p *Point) isLinkWellFormed(f LinkField) bool {
	link := p.AnchorLink(f)
	if link.Kind == ToSelf {
		return true
	}

	deps := p.Body.Includes
	hops := Round(1)
	if link.Through.Field == ThroughWitness {
		deps = p.Body.Witness
		hops = 2
	}
	if _, ok := deps[link.Through.Peer]; !ok {
		return false
	}
	if link.Kind == Indirect {
		return link.To.Location.Round+hops < p.Round()
	}
	return true
}
