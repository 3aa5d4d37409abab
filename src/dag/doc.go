// Package dag implements the Round Ledger of the mempool: the graph of points
// that committee members produce round after round, together with the rules
// used to validate them and to produce the local node's own points.
//
// Rounds
//
// A DagRound holds one DagLocation per committee member of its round. Rounds
// are chained backwards through weak references only (WeakDagRound), while the
// Dag root keeps strong references to a window of the most recent rounds. When
// the window moves forward, older rounds become unreachable and are reclaimed
// by the garbage collector as soon as no running validation holds them.
//
// Validation
//
// Points pass two phases. Verify is synchronous and checks the signature and
// the structure of a point against the committee schedule. Validate is
// asynchronous: it resolves every dependency of the point through the ledger,
// downloading the ones that are not known yet, and classifies the point as
// Trusted, Suspicious, Invalid or NotExists. Every (round, author, digest)
// triple is validated at most once; all dependents share the same PointFuture.
//
// Errors
//
// Faults of remote peers are never returned as errors, they end up as verdicts.
// Violations of the ledger's own invariants are programming errors and panic.
package dag
