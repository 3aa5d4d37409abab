// Package peers defines the committee members of the mempool and the schedule
// that maps every round to its committee.
//
// A peer is identified by its compressed secp256k1 public key. A peer-set is
// the committee of some range of rounds, and the thresholds of the BFT
// protocol (majority, majority of others, reliable minority) are derived from
// its size through NodeCount.
//
// Upon starting up, the node expects to find a peers.json file in its data
// directory listing the committee. The genesis round is special: its committee
// is made of a single, well-known genesis author whose point every chain starts
// from.
package peers
