package models

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAuthor struct {
	key *btcec.PrivateKey
	id  PeerID
}

func newTestAuthor(t *testing.T) testAuthor {
	key, err := keys.GenerateKey()
	require.NoError(t, err)
	id, err := PeerIDFromBytes(keys.PublicKeyBytes(key))
	require.NoError(t, err)
	return testAuthor{key: key, id: id}
}

func digestOf(b byte) Digest {
	var d Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func genesisBody(a testAuthor) PointBody {
	return PointBody{
		Location:      Location{Round: GenesisRound, Author: a.id},
		Time:          1,
		AnchorTrigger: LinkToSelf(),
		AnchorProof:   LinkToSelf(),
	}
}

func TestPointIntegrity(t *testing.T) {
	a := newTestAuthor(t)
	other := newTestAuthor(t)

	p := NewPoint(a.key, PointBody{
		Location:      Location{Round: 1, Author: a.id},
		Time:          5,
		Payload:       [][]byte{[]byte("tx")},
		Includes:      map[PeerID]Digest{other.id: digestOf(1)},
		AnchorTrigger: LinkDirect(Includes(other.id)),
		AnchorProof:   LinkDirect(Includes(other.id)),
	})
	assert.True(t, p.IsIntegrityOK())

	tampered := *p
	tampered.Body.Payload = [][]byte{[]byte("forged")}
	assert.False(t, tampered.IsIntegrityOK(), "body changed after signing")

	wrongAuthor := *p
	wrongAuthor.Body.Location.Author = other.id
	wrongAuthor.Digest = wrongAuthor.Body.Digest()
	assert.False(t, wrongAuthor.IsIntegrityOK(), "signature of somebody else")
}

func TestPointMarshal(t *testing.T) {
	a := newTestAuthor(t)
	b := newTestAuthor(t)
	c := newTestAuthor(t)

	p := NewPoint(a.key, PointBody{
		Location: Location{Round: 4, Author: a.id},
		Time:     42,
		Payload:  [][]byte{[]byte("one"), []byte("two")},
		Proof: &PrevPoint{
			Digest:   digestOf(7),
			Evidence: map[PeerID]Signature{b.id: Signature("sig-b"), c.id: Signature("sig-c")},
		},
		Includes:      map[PeerID]Digest{a.id: digestOf(7), b.id: digestOf(8), c.id: digestOf(9)},
		Witness:       map[PeerID]Digest{c.id: digestOf(3)},
		AnchorTrigger: LinkDirect(Includes(b.id)),
		AnchorProof: LinkIndirect(
			PointID{Location: Location{Round: 1, Author: c.id}, Digest: digestOf(2)},
			Witness(c.id),
		),
	})

	bytes, err := p.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalPoint(bytes)
	require.NoError(t, err)

	assert.Equal(t, p.ID(), back.ID())
	assert.Equal(t, p.Digest, back.Body.Digest(), "digest must survive a round trip")
	assert.True(t, back.IsIntegrityOK())
	assert.True(t, back.Body.AnchorProof.Equal(p.Body.AnchorProof))
	assert.Equal(t, p.Body.Proof.Evidence, back.Body.Proof.Evidence)
}

func TestAnchorHelpers(t *testing.T) {
	a := newTestAuthor(t)
	leader := newTestAuthor(t)

	to := PointID{Location: Location{Round: 2, Author: leader.id}, Digest: digestOf(2)}
	p := NewPoint(a.key, PointBody{
		Location:      Location{Round: 4, Author: a.id},
		Includes:      map[PeerID]Digest{leader.id: digestOf(3)},
		AnchorTrigger: LinkDirect(Includes(leader.id)),
		AnchorProof:   LinkIndirect(to, Includes(leader.id)),
	})

	assert.Equal(t, Round(3), p.AnchorRound(LinkTrigger))
	assert.Equal(t, Round(2), p.AnchorRound(LinkProof))

	path := PointID{Location: Location{Round: 3, Author: leader.id}, Digest: digestOf(3)}
	assert.Equal(t, path, p.AnchorID(LinkTrigger))
	assert.Equal(t, path, p.AnchorLinkID(LinkTrigger))
	assert.Equal(t, to, p.AnchorID(LinkProof))
	assert.Equal(t, path, p.AnchorLinkID(LinkProof))

	g := NewPoint(a.key, genesisBody(a))
	assert.Equal(t, g.ID(), g.AnchorID(LinkProof))
	assert.Equal(t, GenesisRound, g.AnchorRound(LinkTrigger))
}

func TestIsWellFormed(t *testing.T) {
	a := newTestAuthor(t)
	b := newTestAuthor(t)

	prevDigest := digestOf(9)
	withProof := func(body PointBody) PointBody {
		body.Proof = &PrevPoint{Digest: prevDigest, Evidence: map[PeerID]Signature{b.id: Signature("s")}}
		body.Includes[a.id] = prevDigest
		return body
	}
	round := func(r Round) PointBody {
		return PointBody{
			Location:      Location{Round: r, Author: a.id},
			Includes:      map[PeerID]Digest{b.id: digestOf(1)},
			Witness:       map[PeerID]Digest{},
			AnchorTrigger: LinkDirect(Includes(b.id)),
			AnchorProof: LinkIndirect(
				PointID{Location: Location{Round: GenesisRound, Author: b.id}},
				Includes(b.id),
			),
		}
	}

	cases := []struct {
		name string
		body func() PointBody
		ok   bool
	}{
		{"genesis", func() PointBody { return genesisBody(a) }, true},
		{"genesis with payload", func() PointBody {
			body := genesisBody(a)
			body.Payload = [][]byte{[]byte("x")}
			return body
		}, false},
		{"genesis with direct link", func() PointBody {
			body := genesisBody(a)
			body.AnchorProof = LinkDirect(Includes(b.id))
			return body
		}, false},
		{"plain round", func() PointBody { return round(3) }, true},
		{"witness right after genesis", func() PointBody {
			body := round(1)
			body.AnchorProof = LinkDirect(Includes(b.id))
			body.Witness[b.id] = digestOf(4)
			return body
		}, false},
		{"to self without proof", func() PointBody {
			body := round(3)
			body.AnchorTrigger = LinkToSelf()
			return body
		}, false},
		{"to self with proof", func() PointBody {
			body := withProof(round(3))
			body.AnchorTrigger = LinkToSelf()
			return body
		}, true},
		{"proof not in includes", func() PointBody {
			body := withProof(round(3))
			body.Includes[a.id] = digestOf(5)
			return body
		}, false},
		{"includes self without proof", func() PointBody {
			body := round(3)
			body.Includes[a.id] = digestOf(5)
			return body
		}, false},
		{"evidence signed by author", func() PointBody {
			body := withProof(round(3))
			body.Proof.Evidence[a.id] = Signature("s")
			return body
		}, false},
		{"link through missing peer", func() PointBody {
			body := round(3)
			body.AnchorTrigger = LinkDirect(Witness(b.id))
			return body
		}, false},
		{"indirect too close", func() PointBody {
			body := round(3)
			body.AnchorProof = LinkIndirect(
				PointID{Location: Location{Round: 2, Author: b.id}},
				Includes(b.id),
			)
			return body
		}, false},
		{"same anchor rounds", func() PointBody {
			body := round(4)
			body.AnchorProof = LinkDirect(Includes(b.id))
			body.AnchorTrigger = LinkDirect(Includes(b.id))
			return body
		}, false},
	}

	for _, c := range cases {
		p := NewPoint(a.key, c.body())
		assert.Equal(t, c.ok, p.IsWellFormed(), c.name)
	}
}

func TestDagPointMarshal(t *testing.T) {
	a := newTestAuthor(t)
	p := NewPoint(a.key, genesisBody(a))

	for _, dp := range []DagPoint{NewTrusted(p), NewSuspicious(p), NewInvalid(p), NewNotExists(p.ID())} {
		bytes, err := dp.Marshal()
		require.NoError(t, err)

		back, err := UnmarshalDagPoint(bytes)
		require.NoError(t, err)

		assert.Equal(t, dp.Kind, back.Kind)
		assert.Equal(t, dp.ID(), back.ID())
		assert.Equal(t, dp.IsValid(), back.IsValid())
	}

	assert.Nil(t, NewInvalid(p).Valid())
	assert.Nil(t, NewSuspicious(p).Trusted())
	assert.NotNil(t, NewSuspicious(p).Valid())
}
