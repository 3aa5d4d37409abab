package dag

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	cm "github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/models"
)

// InmemStore implements the Store interface with an in-memory cache. When the
// cache is full, older points are evicted, so InmemStore is not suitable for
// nodes that must serve the whole history.
type InmemStore struct {
	cacheSize int
	// PointID => DagPoint
	pointCache *lru.Cache

	mu        sync.Mutex
	byRound   map[models.Round]map[models.PointID]struct{}
	lastRound models.Round
	hasRound  bool
}

// NewInmemStore creates a new InmemStore that keeps at most cacheSize points.
func NewInmemStore(cacheSize int) *InmemStore {
	store := &InmemStore{
		cacheSize: cacheSize,
		byRound:   make(map[models.Round]map[models.PointID]struct{}),
	}
	cache, err := lru.NewWithEvict(cacheSize, store.onEvicted)
	if err != nil {
		panic(err)
	}
	store.pointCache = cache
	return store
}

func (s *InmemStore) onEvicted(key, _ interface{}) {
	id := key.(models.PointID)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byRound[id.Location.Round]
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.byRound, id.Location.Round)
	}
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// SetDagPoint implements the Store interface.
func (s *InmemStore) SetDagPoint(dp models.DagPoint) error {
	id := dp.ID()

	s.mu.Lock()
	ids, ok := s.byRound[id.Location.Round]
	if !ok {
		ids = make(map[models.PointID]struct{})
		s.byRound[id.Location.Round] = ids
	}
	ids[id] = struct{}{}
	if !s.hasRound || id.Location.Round > s.lastRound {
		s.lastRound = id.Location.Round
		s.hasRound = true
	}
	s.mu.Unlock()

	// the eviction callback takes the lock
	s.pointCache.Add(id, dp)
	return nil
}

// GetDagPoint implements the Store interface.
func (s *InmemStore) GetDagPoint(id models.PointID) (models.DagPoint, error) {
	res, ok := s.pointCache.Get(id)
	if !ok {
		return models.DagPoint{}, cm.NewStoreErr("PointCache", cm.KeyNotFound, id.String())
	}
	return res.(models.DagPoint), nil
}

// GetPoint implements the Store interface.
func (s *InmemStore) GetPoint(id models.PointID) (*models.Point, error) {
	dp, err := s.GetDagPoint(id)
	if err != nil {
		return nil, err
	}
	if dp.Point == nil {
		return nil, cm.NewStoreErr("PointCache", cm.Empty, id.String())
	}
	return dp.Point, nil
}

// LoadRound implements the Store interface.
func (s *InmemStore) LoadRound(round models.Round) ([]models.DagPoint, error) {
	s.mu.Lock()
	ids := make([]models.PointID, 0, len(s.byRound[round]))
	for id := range s.byRound[round] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	res := make([]models.DagPoint, 0, len(ids))
	for _, id := range ids {
		if dp, ok := s.pointCache.Peek(id); ok {
			res = append(res, dp.(models.DagPoint))
		}
	}
	return res, nil
}

// LastRound implements the Store interface.
func (s *InmemStore) LastRound() (models.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRound, s.hasRound
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
