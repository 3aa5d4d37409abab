// Package net implements the transports used by committee members to
// exchange points.
//
// Three RPCs are carried: Broadcast pushes an own point to a peer,
// QueryPoint downloads a point referenced by some dependent, and Signature
// asks a peer to sign the requester's point of the previous round so that
// the next point can carry the proof.
//
// There are two implementations of the Transport interface:
//
// - Inmem: in-memory transport used for testing
//
// - TCP: communicating over plain TCP, each request framed by a byte that
// indicates the message type followed by the msgpack encoded request.
//
// To use a TCP transport, set the following configuration options:
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is useful to
// set AdvertiseAddr to the reachable public address.
package net
