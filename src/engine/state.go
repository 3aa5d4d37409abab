package engine

import (
	"sync"

	"go.uber.org/atomic"
)

// State captures the state of an engine: Producing, Following or Shutdown.
type State uint32

const (
	// Producing is the state of a committee member keeping up with consensus
	Producing State = iota
	// Following is the state of a node that lags behind consensus or does not
	// belong to the committee, it validates without producing
	Following
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Producing:
		return "Producing"
	case Following:
		return "Following"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc
const WGLIMIT = 20

type state struct {
	state   atomic.Uint32
	wg      sync.WaitGroup
	wgCount atomic.Int32
}

func (s *state) getState() State {
	return State(s.state.Load())
}

func (s *state) setState(st State) {
	s.state.Store(uint32(st))
}

// goFunc starts a goroutine tracked by the waitgroup. It returns false when
// the limit is reached and f was not started.
func (s *state) goFunc(f func()) bool {
	if s.wgCount.Load() >= WGLIMIT {
		return false
	}
	s.wg.Add(1)
	s.wgCount.Inc()
	go func() {
		defer s.wg.Done()
		defer s.wgCount.Dec()
		f()
	}()
	return true
}

func (s *state) waitRoutines() {
	s.wg.Wait()
}
