package models

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

var msgpackHandle = func() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	mh.RawToString = false
	mh.WriteExt = true
	return mh
}()

func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	return dec.Decode(v)
}

// Maps are flattened into slices sorted by peer so that a body always
// encodes to the same bytes.

type peerDigestWrapper struct {
	Peer   []byte
	Digest []byte
}

type peerSignatureWrapper struct {
	Peer      []byte
	Signature []byte
}

type linkWrapper struct {
	Kind     uint8
	Through  uint8
	Peer     []byte
	ToRound  uint32
	ToAuthor []byte
	ToDigest []byte
}

type bodyWrapper struct {
	Round         uint32
	Author        []byte
	Time          uint64
	Payload       [][]byte
	HasProof      bool
	ProofDigest   []byte
	Evidence      []peerSignatureWrapper
	Includes      []peerDigestWrapper
	Witness       []peerDigestWrapper
	AnchorTrigger linkWrapper
	AnchorProof   linkWrapper
}

type pointWrapper struct {
	Body      bodyWrapper
	Digest    []byte
	Signature []byte
}

func sortedPeers[V any](m map[PeerID]V) []PeerID {
	ids := make([]PeerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return SortPeerIDs(ids)
}

func wrapDigests(m map[PeerID]Digest) []peerDigestWrapper {
	res := make([]peerDigestWrapper, 0, len(m))
	for _, peer := range sortedPeers(m) {
		d := m[peer]
		res = append(res, peerDigestWrapper{Peer: peer.Bytes(), Digest: d[:]})
	}
	return res
}

func unwrapDigests(ws []peerDigestWrapper) (map[PeerID]Digest, error) {
	res := make(map[PeerID]Digest, len(ws))
	for _, w := range ws {
		peer, err := PeerIDFromBytes(w.Peer)
		if err != nil {
			return nil, err
		}
		d, err := digestFromBytes(w.Digest)
		if err != nil {
			return nil, err
		}
		if _, ok := res[peer]; ok {
			return nil, fmt.Errorf("duplicate peer %s", peer)
		}
		res[peer] = d
	}
	return res, nil
}

func wrapLink(l Link) linkWrapper {
	w := linkWrapper{Kind: uint8(l.Kind)}
	if l.Kind == Direct || l.Kind == Indirect {
		w.Through = uint8(l.Through.Field)
		w.Peer = l.Through.Peer.Bytes()
	}
	if l.Kind == Indirect {
		w.ToRound = uint32(l.To.Location.Round)
		w.ToAuthor = l.To.Location.Author.Bytes()
		w.ToDigest = l.To.Digest[:]
	}
	return w
}

func unwrapLink(w linkWrapper) (Link, error) {
	kind := LinkKind(w.Kind)
	switch kind {
	case ToSelf:
		return LinkToSelf(), nil
	case Direct, Indirect:
	default:
		return Link{}, fmt.Errorf("unknown link kind %d", w.Kind)
	}

	if ThroughField(w.Through) > ThroughWitness {
		return Link{}, fmt.Errorf("unknown link path %d", w.Through)
	}
	peer, err := PeerIDFromBytes(w.Peer)
	if err != nil {
		return Link{}, err
	}
	through := Through{Field: ThroughField(w.Through), Peer: peer}
	if kind == Direct {
		return LinkDirect(through), nil
	}

	author, err := PeerIDFromBytes(w.ToAuthor)
	if err != nil {
		return Link{}, err
	}
	digest, err := digestFromBytes(w.ToDigest)
	if err != nil {
		return Link{}, err
	}
	to := PointID{
		Location: Location{Round: Round(w.ToRound), Author: author},
		Digest:   digest,
	}
	return LinkIndirect(to, through), nil
}

func digestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestLen {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestLen, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (b *PointBody) wrap() bodyWrapper {
	w := bodyWrapper{
		Round:         uint32(b.Location.Round),
		Author:        b.Location.Author.Bytes(),
		Time:          uint64(b.Time),
		Payload:       b.Payload,
		Includes:      wrapDigests(b.Includes),
		Witness:       wrapDigests(b.Witness),
		AnchorTrigger: wrapLink(b.AnchorTrigger),
		AnchorProof:   wrapLink(b.AnchorProof),
	}
	if w.Payload == nil {
		w.Payload = [][]byte{}
	}
	if b.Proof != nil {
		w.HasProof = true
		w.ProofDigest = b.Proof.Digest[:]
		for _, peer := range sortedPeers(b.Proof.Evidence) {
			w.Evidence = append(w.Evidence, peerSignatureWrapper{
				Peer:      peer.Bytes(),
				Signature: b.Proof.Evidence[peer],
			})
		}
	}
	return w
}

func (b *PointBody) unwrap(w bodyWrapper) error {
	author, err := PeerIDFromBytes(w.Author)
	if err != nil {
		return err
	}
	includes, err := unwrapDigests(w.Includes)
	if err != nil {
		return err
	}
	witness, err := unwrapDigests(w.Witness)
	if err != nil {
		return err
	}
	trigger, err := unwrapLink(w.AnchorTrigger)
	if err != nil {
		return err
	}
	proof, err := unwrapLink(w.AnchorProof)
	if err != nil {
		return err
	}

	*b = PointBody{
		Location:      Location{Round: Round(w.Round), Author: author},
		Time:          UnixTime(w.Time),
		Includes:      includes,
		Witness:       witness,
		AnchorTrigger: trigger,
		AnchorProof:   proof,
	}
	for _, p := range w.Payload {
		b.Payload = append(b.Payload, p)
	}

	if !w.HasProof {
		return nil
	}
	digest, err := digestFromBytes(w.ProofDigest)
	if err != nil {
		return err
	}
	b.Proof = &PrevPoint{
		Digest:   digest,
		Evidence: make(map[PeerID]Signature, len(w.Evidence)),
	}
	for _, e := range w.Evidence {
		peer, err := PeerIDFromBytes(e.Peer)
		if err != nil {
			return err
		}
		b.Proof.Evidence[peer] = Signature(e.Signature)
	}
	return nil
}

// Marshal returns the canonical msgpack encoding of the body. The digest of
// a point is the hash of these bytes.
func (b *PointBody) Marshal() ([]byte, error) {
	return encode(b.wrap())
}

// Marshal encodes the whole point, for the network and the store.
func (p *Point) Marshal() ([]byte, error) {
	return encode(pointWrapper{
		Body:      p.Body.wrap(),
		Digest:    p.Digest[:],
		Signature: p.Signature,
	})
}

// Unmarshal decodes a point produced by Marshal. It does not verify it.
func (p *Point) Unmarshal(data []byte) error {
	var w pointWrapper
	if err := decode(data, &w); err != nil {
		return err
	}
	if err := p.Body.unwrap(w.Body); err != nil {
		return err
	}
	digest, err := digestFromBytes(w.Digest)
	if err != nil {
		return err
	}
	p.Digest = digest
	p.Signature = Signature(w.Signature)
	return nil
}

// UnmarshalPoint is a helper around Point.Unmarshal.
func UnmarshalPoint(data []byte) (*Point, error) {
	p := new(Point)
	if err := p.Unmarshal(data); err != nil {
		return nil, err
	}
	return p, nil
}
