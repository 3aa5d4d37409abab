package models

import "fmt"

// LinkField selects one of the two anchor links a point carries.
type LinkField uint8

const (
	// LinkProof is the anchor_proof link
	LinkProof LinkField = iota
	// LinkTrigger is the anchor_trigger link
	LinkTrigger
)

func (f LinkField) String() string {
	if f == LinkTrigger {
		return "trigger"
	}
	return "proof"
}

// LinkKind tags a Link.
type LinkKind uint8

const (
	// ToSelf means the point is itself the anchor candidate
	ToSelf LinkKind = iota
	// Direct means the anchor is the named dependency
	Direct
	// Indirect means the anchor is further back, reached through the named
	// dependency
	Indirect
)

func (k LinkKind) String() string {
	switch k {
	case ToSelf:
		return "ToSelf"
	case Direct:
		return "Direct"
	case Indirect:
		return "Indirect"
	}
	return "Unknown"
}

// ThroughField selects the dependency map a Link passes through.
type ThroughField uint8

const (
	// ThroughIncludes refers to a point at round-1
	ThroughIncludes ThroughField = iota
	// ThroughWitness refers to a point at round-2
	ThroughWitness
)

// Through names one dependency of a point.
type Through struct {
	Field ThroughField
	Peer  PeerID
}

// Includes builds a Through pointing into the includes map.
func Includes(peer PeerID) Through {
	return Through{Field: ThroughIncludes, Peer: peer}
}

// Witness builds a Through pointing into the witness map.
func Witness(peer PeerID) Through {
	return Through{Field: ThroughWitness, Peer: peer}
}

func (t Through) String() string {
	if t.Field == ThroughWitness {
		return fmt.Sprintf("witness(%s)", t.Peer)
	}
	return fmt.Sprintf("includes(%s)", t.Peer)
}

// Link describes how a point relates to the latest anchor it knows about.
// Through is set for Direct and Indirect links, To only for Indirect ones.
type Link struct {
	Kind    LinkKind
	Through Through
	To      PointID
}

// LinkToSelf is the link of an anchor candidate to itself.
func LinkToSelf() Link {
	return Link{Kind: ToSelf}
}

// LinkDirect links to the point of a dependency.
func LinkDirect(through Through) Link {
	return Link{Kind: Direct, Through: through}
}

// LinkIndirect links to a point further back through a dependency.
func LinkIndirect(to PointID, path Through) Link {
	return Link{Kind: Indirect, Through: path, To: to}
}

// Equal compares links ignoring the fields unused by their kind.
func (l Link) Equal(other Link) bool {
	if l.Kind != other.Kind {
		return false
	}
	switch l.Kind {
	case Direct:
		return l.Through == other.Through
	case Indirect:
		return l.Through == other.Through && l.To == other.To
	}
	return true
}

func (l Link) String() string {
	switch l.Kind {
	case Direct:
		return fmt.Sprintf("Direct(%s)", l.Through)
	case Indirect:
		return fmt.Sprintf("Indirect(%s -> %s)", l.Through, l.To)
	}
	return "ToSelf"
}
