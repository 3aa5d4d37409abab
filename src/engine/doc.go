// Package engine runs a committee member: it produces a point per round,
// broadcasts it, collects the proof of its delivery and follows the
// committee from round to round.
//
// Every round the engine takes a batch of payload from the InputBuffer,
// produces and inserts its point, and broadcasts it. It moves to the next
// round once a majority of the round's committee is in the DAG and its own
// point collected enough signatures, or once the BroadcastFilter reports that
// consensus moved forward without it. In the background it feeds the DAG with
// the points admitted by the filter and answers the queries of other members.
package engine
