package models

import "fmt"

// DagPointKind is the verdict of point validation.
type DagPointKind uint8

const (
	// Trusted points are valid and their author did not equivocate
	Trusted DagPointKind = iota
	// Suspicious points are valid, but their author provably equivocated
	Suspicious
	// Invalid points violate the protocol
	Invalid
	// NotExists points could not be obtained or attributed
	NotExists
)

func (k DagPointKind) String() string {
	switch k {
	case Trusted:
		return "Trusted"
	case Suspicious:
		return "Suspicious"
	case Invalid:
		return "Invalid"
	case NotExists:
		return "NotExists"
	}
	return "Unknown"
}

// DagPoint is the terminal outcome of validating one point. Point is nil only
// for NotExists.
type DagPoint struct {
	Kind  DagPointKind
	Point *Point
	id    PointID
}

// NewTrusted ...
func NewTrusted(p *Point) DagPoint {
	return DagPoint{Kind: Trusted, Point: p, id: p.ID()}
}

// NewSuspicious ...
func NewSuspicious(p *Point) DagPoint {
	return DagPoint{Kind: Suspicious, Point: p, id: p.ID()}
}

// NewInvalid ...
func NewInvalid(p *Point) DagPoint {
	return DagPoint{Kind: Invalid, Point: p, id: p.ID()}
}

// NewNotExists ...
func NewNotExists(id PointID) DagPoint {
	return DagPoint{Kind: NotExists, id: id}
}

// ID of the judged point.
func (d DagPoint) ID() PointID {
	return d.id
}

// Location of the judged point.
func (d DagPoint) Location() Location {
	return d.id.Location
}

// Valid returns the point if it is Trusted or Suspicious, nil otherwise.
func (d DagPoint) Valid() *Point {
	if d.Kind == Trusted || d.Kind == Suspicious {
		return d.Point
	}
	return nil
}

// Trusted returns the point only if it is Trusted.
func (d DagPoint) Trusted() *Point {
	if d.Kind == Trusted {
		return d.Point
	}
	return nil
}

// IsValid ...
func (d DagPoint) IsValid() bool {
	return d.Valid() != nil
}

func (d DagPoint) String() string {
	return fmt.Sprintf("%s(%s)", d.Kind, d.id)
}

type dagPointWrapper struct {
	Kind   uint8
	Point  []byte
	Round  uint32
	Author []byte
	Digest []byte
}

// Marshal encodes the verdict for the store.
func (d DagPoint) Marshal() ([]byte, error) {
	w := dagPointWrapper{
		Kind:   uint8(d.Kind),
		Round:  uint32(d.id.Location.Round),
		Author: d.id.Location.Author.Bytes(),
		Digest: d.id.Digest[:],
	}
	if d.Point != nil {
		bytes, err := d.Point.Marshal()
		if err != nil {
			return nil, err
		}
		w.Point = bytes
	}
	return encode(w)
}

// UnmarshalDagPoint decodes a verdict produced by DagPoint.Marshal.
func UnmarshalDagPoint(data []byte) (DagPoint, error) {
	var w dagPointWrapper
	if err := decode(data, &w); err != nil {
		return DagPoint{}, err
	}
	kind := DagPointKind(w.Kind)
	if kind > NotExists {
		return DagPoint{}, fmt.Errorf("unknown verdict %d", w.Kind)
	}
	if kind == NotExists {
		author, err := PeerIDFromBytes(w.Author)
		if err != nil {
			return DagPoint{}, err
		}
		digest, err := digestFromBytes(w.Digest)
		if err != nil {
			return DagPoint{}, err
		}
		return NewNotExists(PointID{
			Location: Location{Round: Round(w.Round), Author: author},
			Digest:   digest,
		}), nil
	}
	point, err := UnmarshalPoint(w.Point)
	if err != nil {
		return DagPoint{}, err
	}
	return DagPoint{Kind: kind, Point: point, id: point.ID()}, nil
}
