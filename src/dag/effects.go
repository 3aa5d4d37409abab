package dag

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Effects are the collaborators shared by every round of a Dag.
type Effects struct {
	ctx    context.Context
	logger *logrus.Entry
	store  Store

	validations *atomic.Int64
}

// NewEffects binds the lifetime of background validations to ctx. Their
// results are written through to the store.
func NewEffects(ctx context.Context, store Store, logger *logrus.Entry) *Effects {
	return &Effects{
		ctx:         ctx,
		logger:      logger,
		store:       store,
		validations: atomic.NewInt64(0),
	}
}

// Validations counts how many times the validation logic ran.
func (fx *Effects) Validations() int64 {
	return fx.validations.Load()
}

// Logger ...
func (fx *Effects) Logger() *logrus.Entry {
	return fx.logger
}

// Store ...
func (fx *Effects) Store() Store {
	return fx.store
}
