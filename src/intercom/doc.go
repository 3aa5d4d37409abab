// Package intercom connects the local DAG to the other committee members.
//
// The BroadcastFilter admits points pushed by other members and tells when
// consensus moved forward without the local node. The Downloader fetches the
// points that the DAG references but does not have. The Broadcaster pushes
// the local node's points and collects the signatures that the next point
// carries as its proof.
package intercom
