package engine

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/intercom"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/sirupsen/logrus"
)

var errBusy = errors.New("too many requests in progress")

// serveRPC answers the requests of other peers until ctx is done.
func (e *Engine) serveRPC(ctx context.Context) error {
	for {
		select {
		case rpc := <-e.netCh:
			if !e.goFunc(func() { e.processRPC(rpc) }) {
				rpc.Respond(nil, errBusy)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.BroadcastRequest:
		e.metrics.rpcs.WithLabelValues("broadcast").Inc()
		e.processBroadcastRequest(rpc, cmd)
	case *net.PointRequest:
		e.metrics.rpcs.WithLabelValues("point").Inc()
		e.processPointRequest(rpc, cmd)
	case *net.SignatureRequest:
		e.metrics.rpcs.WithLabelValues("signature").Inc()
		e.processSignatureRequest(rpc, cmd)
	default:
		e.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, errors.New("unexpected command"))
	}
}

func (e *Engine) processBroadcastRequest(rpc net.RPC, cmd *net.BroadcastRequest) {
	resp := &net.BroadcastResponse{FromID: e.validator.ID().Bytes()}

	point, err := models.UnmarshalPoint(cmd.Point)
	if err != nil {
		e.logger.WithError(err).Debug("Broadcast of a malformed point")
		resp.Status = uint8(intercom.Rejected)
		rpc.Respond(resp, nil)
		return
	}

	resp.Status = uint8(e.filter.Add(point))
	rpc.Respond(resp, nil)
}

func (e *Engine) processPointRequest(rpc net.RPC, cmd *net.PointRequest) {
	local := e.validator.ID()

	id, err := cmd.PointID()
	if err != nil {
		rpc.Respond(nil, err)
		return
	}
	logger := e.logger.WithField("point", id)

	if id.Location.Round > e.dag.Top().Round() {
		rpc.Respond(&net.PointResponse{FromID: local.Bytes(), TryLater: true}, nil)
		return
	}

	if round := e.dag.Get(id.Location.Round); round != nil {
		if loc, ok := round.Location(id.Location.Author); ok {
			if f, ok := loc.Version(id.Digest); ok {
				dp, done := f.Get()
				if !done {
					rpc.Respond(&net.PointResponse{FromID: local.Bytes(), TryLater: true}, nil)
					return
				}
				resp, err := net.NewPointResponse(local, dp.Valid())
				rpc.Respond(resp, err)
				return
			}
		}
	}

	dp, err := e.store.GetDagPoint(id)
	switch {
	case err == nil:
		resp, err := net.NewPointResponse(local, dp.Valid())
		rpc.Respond(resp, err)
	case common.IsStore(err, common.KeyNotFound):
		resp, err := net.NewPointResponse(local, nil)
		rpc.Respond(resp, err)
	default:
		logger.WithError(err).Error("Loading point")
		rpc.Respond(nil, err)
	}
}

// processSignatureRequest signs the requester's point of the round, if the
// local node validated it and did not refuse to sign that location before.
func (e *Engine) processSignatureRequest(rpc net.RPC, cmd *net.SignatureRequest) {
	local := e.validator.ID()
	resp := &net.SignatureResponse{FromID: local.Bytes()}
	respond := func(status net.SignatureStatus) {
		resp.Status = status
		rpc.Respond(resp, nil)
	}

	author, err := models.PeerIDFromBytes(cmd.FromID)
	if err != nil {
		rpc.Respond(nil, err)
		return
	}
	round := models.Round(cmd.Round)
	top := e.dag.Top()
	logger := e.logger.WithFields(logrus.Fields{
		"author": author,
		"round":  round,
		"at":     top.Round(),
	})

	if round > top.Round() {
		respond(net.SignatureTryLater)
		return
	}
	dagRound := e.dag.Get(round)
	if dagRound == nil {
		respond(net.SignatureRejected)
		return
	}
	loc, ok := dagRound.Location(author)
	if !ok {
		respond(net.SignatureRejected)
		return
	}
	if _, ok := loc.State().Point(); !ok {
		respond(net.SignatureNoPoint)
		return
	}

	signed, sig := loc.State().Sign(top.Round(), e.validator.Key)
	switch signed {
	case common.True:
		resp.Signature = sig.Signature
		respond(net.SignatureOK)
	case common.False:
		logger.Debug("Refused to sign")
		respond(net.SignatureRejected)
	default:
		respond(net.SignatureNoPoint)
	}
}
