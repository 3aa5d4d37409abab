package net

import (
	"errors"

	"github.com/mosaicnetworks/mempool/src/models"
)

var (
	// ErrPointNotFound is returned when the queried peer definitely does not
	// have the point.
	ErrPointNotFound = errors.New("point not found")
	// ErrTryLater is returned when the queried peer cannot answer yet.
	ErrTryLater = errors.New("try later")
)

// BroadcastRequest pushes a point to a committee member. The point is in its
// canonical encoding.
type BroadcastRequest struct {
	FromID []byte
	Point  []byte
}

// BroadcastResponse carries the admission status of a broadcast point.
type BroadcastResponse struct {
	FromID []byte
	Status uint8
}

// PointRequest asks a peer for a point it has validated.
type PointRequest struct {
	FromID []byte
	Round  uint32
	Author []byte
	Digest []byte
}

// PointResponse holds the requested point, if the responder has it.
type PointResponse struct {
	FromID   []byte
	Found    bool
	TryLater bool
	Point    []byte
}

// SignatureStatus is the answer of a peer asked to sign a point.
type SignatureStatus uint8

const (
	// SignatureOK comes with a signature of the point's digest
	SignatureOK SignatureStatus = iota
	// SignatureNoPoint means the peer has not validated the point yet
	SignatureNoPoint
	// SignatureTryLater means the peer is not at the point's round yet
	SignatureTryLater
	// SignatureRejected means the peer will never sign the point
	SignatureRejected
)

func (s SignatureStatus) String() string {
	switch s {
	case SignatureOK:
		return "OK"
	case SignatureNoPoint:
		return "NoPoint"
	case SignatureTryLater:
		return "TryLater"
	case SignatureRejected:
		return "Rejected"
	}
	return "Unknown"
}

// SignatureRequest asks a peer to sign the requester's own point of a round.
type SignatureRequest struct {
	FromID []byte
	Round  uint32
}

// SignatureResponse holds the decision of the peer.
type SignatureResponse struct {
	FromID    []byte
	Status    SignatureStatus
	Signature []byte
}

// NewPointRequest ...
func NewPointRequest(from models.PeerID, id models.PointID) *PointRequest {
	return &PointRequest{
		FromID: from.Bytes(),
		Round:  uint32(id.Location.Round),
		Author: id.Location.Author.Bytes(),
		Digest: id.Digest[:],
	}
}

// PointID decodes the requested id.
func (r *PointRequest) PointID() (models.PointID, error) {
	author, err := models.PeerIDFromBytes(r.Author)
	if err != nil {
		return models.PointID{}, err
	}
	var digest models.Digest
	if len(r.Digest) != len(digest) {
		return models.PointID{}, errors.New("malformed digest")
	}
	copy(digest[:], r.Digest)
	return models.PointID{
		Location: models.Location{Round: models.Round(r.Round), Author: author},
		Digest:   digest,
	}, nil
}

// NewPointResponse wraps a point, nil meaning not found.
func NewPointResponse(from models.PeerID, point *models.Point) (*PointResponse, error) {
	resp := &PointResponse{FromID: from.Bytes()}
	if point == nil {
		return resp, nil
	}
	bytes, err := point.Marshal()
	if err != nil {
		return nil, err
	}
	resp.Found = true
	resp.Point = bytes
	return resp, nil
}

// Decode returns the point, ErrPointNotFound, or ErrTryLater.
func (r *PointResponse) Decode() (*models.Point, error) {
	switch {
	case r.TryLater:
		return nil, ErrTryLater
	case !r.Found:
		return nil, ErrPointNotFound
	}
	return models.UnmarshalPoint(r.Point)
}

// NewBroadcastRequest ...
func NewBroadcastRequest(from models.PeerID, point *models.Point) (*BroadcastRequest, error) {
	bytes, err := point.Marshal()
	if err != nil {
		return nil, err
	}
	return &BroadcastRequest{FromID: from.Bytes(), Point: bytes}, nil
}
