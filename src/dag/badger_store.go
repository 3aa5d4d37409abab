package dag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/hashicorp/go-multierror"
	cm "github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/sirupsen/logrus"
)

const (
	pointPrefix  = "point"
	lastRoundKey = "last_round"
)

// BadgerStore is a write-through cache over a badger database.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string

	mu        sync.Mutex
	lastRound models.Round
	hasLast   bool
}

// NewBadgerStore opens or creates the database at path.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(logger.WithField("prefix", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}
	if last, err := store.dbLastRound(); err == nil {
		store.lastRound, store.hasLast = last, true
	} else if !cm.IsStore(err, cm.KeyNotFound) {
		handle.Close()
		return nil, err
	}
	return store, nil
}

//==============================================================================
//Keys

// Keys sort by round, so that a round is a contiguous range.
func roundPrefix(round models.Round) []byte {
	return []byte(fmt.Sprintf("%s_%010d_", pointPrefix, round))
}

func pointKey(id models.PointID) []byte {
	return []byte(fmt.Sprintf("%s%x_%x", roundPrefix(id.Location.Round), id.Location.Author[:], id.Digest[:]))
}

//==============================================================================
//Implement the Store interface

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// SetDagPoint implements the Store interface.
func (s *BadgerStore) SetDagPoint(dp models.DagPoint) error {
	if err := s.inmemStore.SetDagPoint(dp); err != nil {
		return err
	}
	return s.dbSetDagPoint(dp)
}

// GetDagPoint implements the Store interface.
func (s *BadgerStore) GetDagPoint(id models.PointID) (models.DagPoint, error) {
	dp, err := s.inmemStore.GetDagPoint(id)
	if err != nil {
		dp, err = s.dbGetDagPoint(id)
	}
	return dp, mapError(err, "Point", id.String())
}

// GetPoint implements the Store interface.
func (s *BadgerStore) GetPoint(id models.PointID) (*models.Point, error) {
	dp, err := s.GetDagPoint(id)
	if err != nil {
		return nil, err
	}
	if dp.Point == nil {
		return nil, cm.NewStoreErr("Point", cm.Empty, id.String())
	}
	return dp.Point, nil
}

// LoadRound implements the Store interface. It always reads the database,
// the cache may have evicted part of the round.
func (s *BadgerStore) LoadRound(round models.Round) ([]models.DagPoint, error) {
	return s.dbLoadRound(round)
}

// LastRound implements the Store interface.
func (s *BadgerStore) LastRound() (models.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRound, s.hasLast
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	var result error
	if err := s.inmemStore.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGetDagPoint(id models.PointID) (models.DagPoint, error) {
	var bytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pointKey(id))
		if err != nil {
			return err
		}
		bytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return models.DagPoint{}, err
	}
	return models.UnmarshalDagPoint(bytes)
}

func (s *BadgerStore) dbSetDagPoint(dp models.DagPoint) error {
	val, err := dp.Marshal()
	if err != nil {
		return err
	}

	round := dp.ID().Location.Round
	s.mu.Lock()
	advanced := !s.hasLast || round > s.lastRound
	if advanced {
		s.lastRound, s.hasLast = round, true
	}
	s.mu.Unlock()

	// blind writes only: badger detects conflicts on keys read by a txn
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pointKey(dp.ID()), val); err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(round))
		return txn.Set([]byte(lastRoundKey), buf[:])
	})
}

func (s *BadgerStore) dbLoadRound(round models.Round) ([]models.DagPoint, error) {
	res := []models.DagPoint{}
	prefix := roundPrefix(round)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			dp, err := models.UnmarshalDagPoint(val)
			if err != nil {
				return err
			}
			res = append(res, dp)
		}
		return nil
	})

	return res, err
}

func (s *BadgerStore) dbLastRound() (models.Round, error) {
	var round models.Round
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastRoundKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		round = models.Round(binary.BigEndian.Uint32(val))
		return nil
	})
	return round, mapError(err, "LastRound", lastRoundKey)
}

func isDBKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
