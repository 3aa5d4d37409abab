package dag

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/models"
)

// DagLocation holds every version an author published at one round.
type DagLocation struct {
	mu                sync.Mutex
	versions          map[models.Digest]*PointFuture
	state             *InclusionState
	badSigInBroadcast bool
}

func newDagLocation(round models.Round) *DagLocation {
	return &DagLocation{
		versions: make(map[models.Digest]*PointFuture),
		state:    &InclusionState{round: round},
	}
}

// Versions returns a snapshot of the known versions.
func (l *DagLocation) Versions() []*PointFuture {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]*PointFuture, 0, len(l.versions))
	for _, f := range l.versions {
		res = append(res, f)
	}
	return res
}

// Version returns the future of the given digest.
func (l *DagLocation) Version(digest models.Digest) (*PointFuture, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.versions[digest]
	return f, ok
}

// State ...
func (l *DagLocation) State() *InclusionState {
	return l.state
}

// BadSigInBroadcast tells whether the author broadcast a point with a bad
// signature at this location.
func (l *DagLocation) BadSigInBroadcast() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.badSigInBroadcast
}

// Signed is the local node's signature over a point of another author, given
// at some round.
type Signed struct {
	At        models.Round
	Signature models.Signature
}

// InclusionState tracks whether the local node may include or sign the point
// of a location. Only the first resolved version is ever considered, and a
// second version makes the location unsignable.
type InclusionState struct {
	mu     sync.Mutex
	round  models.Round
	first  *models.DagPoint
	signed common.Trilean
	sig    Signed
}

func (s *InclusionState) init(dp models.DagPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first == nil {
		s.first = &dp
	} else if s.first.ID().Digest != dp.ID().Digest {
		// equivocation
		s.rejectLocked()
	}
	if s.first.Trusted() == nil {
		s.rejectLocked()
	}
}

func (s *InclusionState) rejectLocked() {
	if s.signed == common.Undefined {
		s.signed = common.False
		s.sig = Signed{At: s.round}
	}
}

// Point returns the first resolved version.
func (s *InclusionState) Point() (models.DagPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first == nil {
		return models.DagPoint{}, false
	}
	return *s.first, true
}

// Sign decides once whether the local node signs the location's point when
// asked at round at. Only Trusted points are signed, and only at the point's
// round or the next one.
func (s *InclusionState) Sign(at models.Round, key *btcec.PrivateKey) (common.Trilean, Signed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed != common.Undefined || s.first == nil {
		return s.signed, s.sig
	}

	trusted := s.first.Trusted()
	if trusted == nil || at < s.round || at > s.round.Next() {
		s.rejectLocked()
		return s.signed, s.sig
	}

	s.signed = common.True
	s.sig = Signed{
		At:        at,
		Signature: models.Signature(keys.Sign(key, trusted.Digest[:])),
	}
	return s.signed, s.sig
}

// Signed returns the decision taken by Sign, if any.
func (s *InclusionState) Signed() (common.Trilean, Signed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.signed, s.sig
}

// SignedPoint returns the point if the local node signed it at round at.
func (s *InclusionState) SignedPoint(at models.Round) *models.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed != common.True || s.sig.At != at {
		return nil
	}
	return s.first.Valid()
}
