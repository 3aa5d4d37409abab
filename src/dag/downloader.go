package dag

import (
	"context"

	"github.com/mosaicnetworks/mempool/src/models"
)

// Broadcast is a point that arrived by broadcast while the same point was
// being downloaded.
type Broadcast struct {
	Point      *models.Point
	WellFormed bool
}

// DownloadTask describes a point referenced by some dependent that is not
// known locally yet.
type DownloadTask struct {
	ID    models.PointID
	Round WeakDagRound
	// Depender is the author of the first dependent point, it is the most
	// likely peer to have the point. Nil when nobody depends on it yet.
	Depender *models.PeerID
	// Dependers streams the authors of later dependents.
	Dependers <-chan models.PeerID
	// Broadcasts resolves the download with a point received by broadcast.
	Broadcasts <-chan Broadcast
}

// Downloader obtains and validates points that are referenced but missing.
// Run must not return before it has a verdict, unless ctx is done, in which
// case the verdict is NotExists.
type Downloader interface {
	Run(ctx context.Context, task DownloadTask) models.DagPoint
}
