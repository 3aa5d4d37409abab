package intercom

import (
	"fmt"

	"github.com/mosaicnetworks/mempool/src/models"
)

// BroadcastResponse is the admission decision for a broadcast point.
type BroadcastResponse uint8

const (
	// Accepted points are within the local round range and well-formed, the
	// local node may sign them
	Accepted BroadcastResponse = iota
	// Rejected points are invalid, too old, or out of order
	Rejected
	// TryLater points belong to a round that is not determined yet
	TryLater
)

func (r BroadcastResponse) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case TryLater:
		return "TryLater"
	}
	return "Unknown"
}

// ConsensusEventKind ...
type ConsensusEventKind uint8

const (
	// Forward tells that consensus reached the round
	Forward ConsensusEventKind = iota
	// Verified carries a point that passed Verify
	Verified
	// Invalid carries the verdict of a point that failed Verify
	Invalid
)

func (k ConsensusEventKind) String() string {
	switch k {
	case Forward:
		return "Forward"
	case Verified:
		return "Verified"
	case Invalid:
		return "Invalid"
	}
	return "Unknown"
}

// ConsensusEvent is emitted by the BroadcastFilter to the engine.
type ConsensusEvent struct {
	Kind     ConsensusEventKind
	Round    models.Round
	Point    *models.Point
	DagPoint models.DagPoint
}

// NewForward ...
func NewForward(round models.Round) ConsensusEvent {
	return ConsensusEvent{Kind: Forward, Round: round}
}

// NewVerified ...
func NewVerified(point *models.Point) ConsensusEvent {
	return ConsensusEvent{Kind: Verified, Round: point.Round(), Point: point}
}

// NewInvalid ...
func NewInvalid(dp models.DagPoint) ConsensusEvent {
	return ConsensusEvent{Kind: Invalid, Round: dp.Location().Round, Point: dp.Point, DagPoint: dp}
}

func (e ConsensusEvent) String() string {
	switch e.Kind {
	case Forward:
		return fmt.Sprintf("Forward(%d)", e.Round)
	case Verified:
		return fmt.Sprintf("Verified(%s)", e.Point.ID())
	case Invalid:
		return fmt.Sprintf("Invalid(%s)", e.DagPoint)
	}
	return "Unknown"
}
