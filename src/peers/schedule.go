package peers

import (
	"encoding/binary"
	"sort"
	"strconv"
	"sync"

	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/models"
)

// WaveLength is the number of rounds between two consecutive anchors.
const WaveLength = 4

// Schedule maps rounds to committees. The genesis round belongs to the single
// genesis author, every other round to the last peer-set whose start round is
// not greater than it. New peer-sets can only start after the ones already
// registered.
type Schedule struct {
	mu sync.RWMutex

	local   models.PeerID
	genesis *PeerSet

	starts   []models.Round
	peerSets map[models.Round]*PeerSet
}

// NewSchedule creates a schedule whose committee starts right after genesis.
func NewSchedule(local models.PeerID, genesisAuthor *Peer, committee *PeerSet) *Schedule {
	s := &Schedule{
		local:    local,
		genesis:  NewPeerSet([]*Peer{genesisAuthor}),
		peerSets: make(map[models.Round]*PeerSet),
	}
	s.starts = append(s.starts, models.GenesisRound.Next())
	s.peerSets[models.GenesisRound.Next()] = committee
	return s
}

// Local is the id of this node.
func (s *Schedule) Local() models.PeerID {
	return s.local
}

// GenesisAuthor is the author of the genesis point.
func (s *Schedule) GenesisAuthor() models.PeerID {
	return s.genesis.Peers[0].ID()
}

// Set registers a new committee starting at the given round.
func (s *Schedule) Set(start models.Round, peerSet *PeerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peerSets[start]; ok {
		return common.NewStoreErr("Schedule", common.KeyAlreadyExists, start.String())
	}
	if last := s.starts[len(s.starts)-1]; start < last {
		return common.NewStoreErr("Schedule", common.TooLate, start.String())
	}
	s.peerSets[start] = peerSet
	s.starts = append(s.starts, start)
	return nil
}

// PeersFor returns the committee of the round.
func (s *Schedule) PeersFor(round models.Round) *PeerSet {
	if round == models.GenesisRound {
		return s.genesis
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > round })
	return s.peerSets[s.starts[i-1]]
}

// PeersForArray returns the committees of several rounds at once.
func (s *Schedule) PeersForArray(rounds [3]models.Round) [3]*PeerSet {
	var res [3]*PeerSet
	for i, r := range rounds {
		res[i] = s.PeersFor(r)
	}
	return res
}

// IsMember tells whether the peer belongs to the committee of the round.
func (s *Schedule) IsMember(round models.Round, id models.PeerID) bool {
	return s.PeersFor(round).Contains(id)
}

// Wave returns the anchor wave of the round and the round's offset within
// it.
func Wave(round models.Round) (wave uint32, offset uint32) {
	r := uint32(round - models.GenesisRound)
	return r / WaveLength, r % WaveLength
}

// Leader returns the anchor leader of the wave the round belongs to. Every
// node picks the same leader: the wave number is hashed over the committee of
// the wave's proof round sorted by id.
func (s *Schedule) Leader(round models.Round) (models.PeerID, bool) {
	if round == models.GenesisRound {
		return models.PeerID{}, false
	}
	wave, _ := Wave(round)
	proofRound := models.GenesisRound + models.Round(wave*WaveLength+2)

	committee := s.PeersFor(proofRound).SortedIDs()
	if len(committee) == 0 {
		return models.PeerID{}, false
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], wave)
	return committee[common.Hash32(buf[:])%uint32(len(committee))], true
}

func (s *Schedule) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := "genesis:" + s.GenesisAuthor().String()
	for _, start := range s.starts {
		res += " " + strconv.Itoa(int(start)) + ":" + s.peerSets[start].Hex()
	}
	return res
}
