package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/intercom"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Engine defines a committee member
type Engine struct {
	state

	conf   *Config
	logger *logrus.Entry

	validator *Validator
	schedule  *peers.Schedule
	genesis   *models.Point

	store dag.Store
	fx    *dag.Effects
	dag   *dag.Dag

	filter      *intercom.BroadcastFilter
	downloader  *intercom.Downloader
	broadcaster *intercom.Broadcaster
	input       *InputBuffer
	submitCh    chan []byte

	trans net.Transport
	netCh <-chan net.RPC

	// highest round consensus moved forward to, as told by the filter
	forward       *atomic.Uint32
	forwardNotify chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	started  *atomic.Bool
	done     chan struct{}
	shutdown sync.Once

	metrics  *metrics
	produced *atomic.Int64
	start    time.Time
}

// NewEngine is a factory method that returns an Engine instance. Metrics are
// registered with reg unless it is nil.
func NewEngine(conf *Config,
	validator *Validator,
	schedule *peers.Schedule,
	genesis *models.Point,
	store dag.Store,
	trans net.Transport,
	reg prometheus.Registerer,
) *Engine {
	logger := conf.Logger.WithField("this_id", validator.ID())
	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		conf:          conf,
		logger:        logger,
		validator:     validator,
		schedule:      schedule,
		genesis:       genesis,
		store:         store,
		fx:            dag.NewEffects(ctx, store, logger.WithField("prefix", "dag")),
		filter:        intercom.NewBroadcastFilter(schedule, reg, logger.WithField("prefix", "filter")),
		downloader:    intercom.NewDownloader(schedule, trans, conf.Intercom, logger.WithField("prefix", "download")),
		broadcaster:   intercom.NewBroadcaster(schedule, trans, conf.Intercom, logger.WithField("prefix", "broadcast")),
		input:         NewInputBuffer(conf.BufferBytes, conf.BatchBytes),
		submitCh:      make(chan []byte, 64),
		trans:         trans,
		netCh:         trans.Consumer(),
		forward:       atomic.NewUint32(uint32(models.GenesisRound)),
		forwardNotify: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		started:       atomic.NewBool(false),
		done:          make(chan struct{}),
		metrics:       newMetrics(reg),
		produced:      atomic.NewInt64(0),
	}
	engine.setState(Following)
	return engine
}

// Init builds the DAG, from the store if it contains points.
func (e *Engine) Init() error {
	local := e.validator.ID()

	last, ok := e.store.LastRound()
	bottom := models.GenesisRound
	if ok && last > models.Round(e.conf.Depth) {
		bottom = last - models.Round(e.conf.Depth)
	}

	e.dag = dag.NewDag(bottom, e.conf.Depth, e.schedule, e.fx)
	if bottom == models.GenesisRound {
		e.dag.Top().InsertExactSign(e.genesis, nil)
	}
	if !ok {
		return nil
	}

	e.logger.WithFields(logrus.Fields{
		"bottom": bottom,
		"last":   last,
	}).Debug("Bootstrap")

	for r := bottom; r <= last; r++ {
		round := e.dag.Extend(r)
		dps, err := e.store.LoadRound(r)
		if err != nil {
			return err
		}
		for _, dp := range dps {
			point := dp.Valid()
			if point == nil || point.ID() == e.genesis.ID() {
				continue
			}
			if _, ok := round.Location(point.Author()); !ok {
				continue
			}
			if point.Author() == local {
				round.InsertExactSign(point, e.validator.Key)
			} else {
				round.AddBroadcastExact(point, e.downloader)
			}
		}
	}
	// the local node may have produced at the last round already
	e.dag.Extend(last.Next())
	return nil
}

// Run invokes the main loops of the engine until ctx is done or the engine
// is shut down.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	defer close(e.done)

	stop := context.AfterFunc(ctx, e.cancel)
	defer stop()

	e.start = time.Now()
	g, gctx := errgroup.WithContext(e.ctx)
	g.Go(func() error {
		return e.serveRPC(gctx)
	})
	g.Go(func() error {
		return e.consumeEvents(gctx)
	})
	g.Go(func() error {
		e.input.Consume(gctx, e.submitCh)
		return nil
	})
	g.Go(func() error {
		return e.produceLoop(gctx)
	})

	err := g.Wait()
	e.waitRoutines()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SubmitCh returns the channel that feeds the input buffer while the engine
// runs.
func (e *Engine) SubmitCh() chan<- []byte {
	return e.submitCh
}

// Submit adds payload to the input buffer.
func (e *Engine) Submit(payload []byte) bool {
	ok := e.input.Add(payload)
	_, size := e.input.Len()
	e.metrics.bufferBytes.Set(float64(size))
	return ok
}

// Shutdown stops the engine and closes the transport and the store.
func (e *Engine) Shutdown() error {
	var result error
	e.shutdown.Do(func() {
		e.logger.Debug("Shutdown")
		e.setState(Shutdown)
		e.cancel()
		stopped := true
		if e.started.Load() {
			select {
			case <-e.done:
			case <-time.After(10 * time.Second):
				stopped = false
				e.logger.Warn("Shutdown timed out waiting for the engine loops")
			}
		}
		// a broadcast still running keeps the pool until it sees the cancel
		if stopped {
			e.broadcaster.Close()
		}
		if err := e.trans.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := e.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// produceLoop produces a point per round and advances the DAG.
func (e *Engine) produceLoop(ctx context.Context) error {
	var proof *models.PrevPoint
	fresh := true
	for {
		round := e.dag.Top()
		e.metrics.round.Set(float64(round.Round()))
		e.filter.AdvanceRound(round.Round())

		point, err := e.produce(ctx, round, proof, fresh)
		if err != nil {
			return err
		}

		next, newProof, err := e.collect(ctx, round, point)
		if err != nil {
			return err
		}

		// replay the payload of a point that failed to collect its proof
		fresh = point != nil && newProof != nil
		proof = nil
		if next == round.Round().Next() {
			proof = newProof
		}
		e.dag.Extend(next)
	}
}

// produce creates and inserts the local point of the round, if the local node
// belongs to the committee and has enough points to include.
func (e *Engine) produce(ctx context.Context, round *dag.DagRound, proof *models.PrevPoint, fresh bool) (*models.Point, error) {
	local := e.validator.ID()
	logger := e.logger.WithField("round", round.Round())

	if !e.schedule.IsMember(round.Round(), local) {
		e.setState(Following)
		return nil, nil
	}
	finished := round.Prev().Get()
	if finished == nil {
		e.metrics.skipped.Inc()
		return nil, nil
	}

	ready := func() bool {
		return dag.Includable(finished, local, proof != nil) >= finished.NodeCount().Majority()
	}
	ok, err := e.await(ctx, round.Round(), ready)
	if err != nil || !ok {
		return nil, err
	}

	payload := e.input.Fetch(fresh)
	point := dag.NewPoint(ctx, round, proof, payload, e.validator.Key)
	if point == nil {
		logger.Debug("Skipping round")
		e.metrics.skipped.Inc()
		return nil, nil
	}
	round.InsertExactSign(point, e.validator.Key)

	e.setState(Producing)
	e.produced.Inc()
	e.metrics.produced.Inc()
	_, size := e.input.Len()
	e.metrics.bufferBytes.Set(float64(size))

	logger.WithFields(logrus.Fields{
		"digest":   point.Digest,
		"payload":  len(payload),
		"includes": len(point.Body.Includes),
		"witness":  len(point.Body.Witness),
		"proof":    proof != nil,
	}).Debug("Produced point")
	return point, nil
}

// collect broadcasts the local point and waits until the round is complete.
// It returns the round to move to, and the proof of the local point if it
// collected one.
func (e *Engine) collect(ctx context.Context, round *dag.DagRound, point *models.Point) (models.Round, *models.PrevPoint, error) {
	local := e.validator.ID()
	next := round.Round().Next()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	proofCh := make(chan *models.PrevPoint, 1)
	if point != nil && e.schedule.IsMember(next, local) {
		go func() {
			evidence, err := e.broadcaster.Run(ctx, point)
			if err != nil {
				e.logger.WithField("round", round.Round()).WithError(err).Debug("Broadcast")
				proofCh <- nil
				return
			}
			e.metrics.proved.Inc()
			proofCh <- &models.PrevPoint{Digest: point.Digest, Evidence: evidence}
		}()
	} else {
		proofCh <- nil
	}

	var (
		proof  *models.PrevPoint
		proved bool
	)
	complete := func() bool {
		if !proved {
			select {
			case proof = <-proofCh:
				proved = true
			default:
				return false
			}
		}
		return dag.Includable(round, local, proof != nil) >= round.NodeCount().Majority()
	}

	ok, err := e.await(ctx, round.Round(), complete)
	if err != nil {
		return 0, nil, err
	}
	if ok {
		return next, proof, nil
	}

	to := models.Round(e.forward.Load())
	e.metrics.forwarded.Inc()
	e.logger.WithFields(logrus.Fields{
		"round":   round.Round(),
		"forward": to,
	}).Debug("Consensus moved forward")
	if to == next && !proved {
		select {
		case proof = <-proofCh:
		default:
		}
	}
	return to, proof, nil
}

// await polls cond until it holds. It returns false if consensus moved past
// the current round first.
func (e *Engine) await(ctx context.Context, current models.Round, cond func() bool) (bool, error) {
	ticker := time.NewTicker(e.conf.PollInterval)
	defer ticker.Stop()

	for {
		if models.Round(e.forward.Load()) > current {
			return false, nil
		}
		if cond() {
			return true, nil
		}
		select {
		case <-ticker.C:
		case <-e.forwardNotify:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// consumeEvents feeds the DAG with what the filter admitted.
func (e *Engine) consumeEvents(ctx context.Context) error {
	for {
		event, err := e.filter.Next(ctx)
		if err != nil {
			return err
		}
		e.metrics.events.WithLabelValues(event.Kind.String()).Inc()

		switch event.Kind {
		case intercom.Forward:
			if event.Round > e.dag.Top().Round() {
				e.dag.Extend(event.Round)
			}
			if e.forward.Load() < uint32(event.Round) {
				e.forward.Store(uint32(event.Round))
				select {
				case e.forwardNotify <- struct{}{}:
				default:
				}
			}
		case intercom.Verified:
			if round := e.dag.Get(event.Round); round != nil {
				round.AddBroadcastExact(event.Point, e.downloader)
			}
		case intercom.Invalid:
			e.addInvalid(event.DagPoint)
		}
	}
}

func (e *Engine) addInvalid(dp models.DagPoint) {
	id := dp.ID()
	round := e.dag.Get(id.Location.Round)
	if round == nil {
		return
	}
	if _, ok := round.Location(id.Location.Author); !ok {
		return
	}
	if dp.Kind == models.NotExists {
		round.SetBadSigInBroadcastExact(id.Location.Author)
		return
	}
	round.AddIllFormedBroadcastExact(dp.Point)
}

// GetStats returns processing stats for the engine.
func (e *Engine) GetStats() map[string]string {
	top := e.dag.Top()
	timeElapsed := time.Since(e.start)
	items, size := e.input.Len()

	return map[string]string{
		"id":              e.validator.ID().String(),
		"moniker":         e.validator.Moniker,
		"state":           e.getState().String(),
		"round":           strconv.FormatUint(uint64(top.Round()), 10),
		"filter_round":    strconv.FormatUint(uint64(e.filter.Round()), 10),
		"forward_round":   strconv.FormatUint(uint64(e.forward.Load()), 10),
		"committee":       top.NodeCount().String(),
		"anchor_stage":    top.AnchorStage().String(),
		"produced":        strconv.FormatInt(e.produced.Load(), 10),
		"validations":     strconv.FormatInt(e.fx.Validations(), 10),
		"pending_events":  strconv.Itoa(e.filter.Pending()),
		"buffered_items":  strconv.Itoa(items),
		"buffered_bytes":  strconv.Itoa(size),
		"time_elapsed":    strconv.FormatFloat(timeElapsed.Seconds(), 'f', 2, 64),
		"num_peers":       strconv.Itoa(e.schedule.PeersFor(top.Round()).Len()),
		"id_peers_hash":   e.schedule.PeersFor(top.Round()).Hex(),
		"store_cache_len": strconv.Itoa(e.store.CacheSize()),
	}
}

// Round returns the top round of the DAG.
func (e *Engine) Round() models.Round {
	return e.dag.Top().Round()
}

// GetState returns the state of the engine.
func (e *Engine) GetState() State {
	return e.getState()
}

// ID ...
func (e *Engine) ID() models.PeerID {
	return e.validator.ID()
}

// DAG exposes the round ledger to downstream consumers.
func (e *Engine) DAG() *dag.Dag {
	return e.dag
}

func (e *Engine) String() string {
	return fmt.Sprintf("%s@%d", e.validator.Moniker, e.Round())
}

// GetPeers returns the committee of the top round.
func (e *Engine) GetPeers() []*peers.Peer {
	return e.schedule.PeersFor(e.Round()).Peers
}

// GetRound returns the verdict on the first point of every author of the
// round, if the round is still in the DAG.
func (e *Engine) GetRound(round models.Round) (map[string]string, error) {
	r := e.dag.Get(round)
	if r == nil {
		return nil, fmt.Errorf("round %d is not in the DAG", round)
	}
	res := make(map[string]string)
	r.Select(func(author models.PeerID, loc *dag.DagLocation) *models.Point {
		if dp, ok := loc.State().Point(); ok {
			res[author.String()] = dp.String()
		}
		return nil
	})
	return res, nil
}
