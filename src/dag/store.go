package dag

import "github.com/mosaicnetworks/mempool/src/models"

// Store persists points together with their verdicts. It is written through
// by the ledger and read only to bootstrap and to serve peers.
type Store interface {
	// CacheSize retrieves the number of points kept in memory.
	CacheSize() int
	// SetDagPoint inserts or overwrites the verdict of a point.
	SetDagPoint(dp models.DagPoint) error
	// GetDagPoint returns the verdict of a point.
	GetDagPoint(id models.PointID) (models.DagPoint, error)
	// GetPoint returns a point known to the store, whatever its verdict.
	GetPoint(id models.PointID) (*models.Point, error)
	// LoadRound returns every verdict stored for a round.
	LoadRound(round models.Round) ([]models.DagPoint, error)
	// LastRound returns the greatest round with a stored point.
	LastRound() (models.Round, bool)
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
