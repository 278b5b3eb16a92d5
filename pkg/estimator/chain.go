package estimator

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

// Chain tries estimators in order until one succeeds. A successful call
// that finds no face counts as success and stops the chain.
type Chain struct {
	estimators []Estimator
	logger     *slog.Logger
}

// NewChain creates an estimator chain. At least one estimator is required.
func NewChain(estimators ...Estimator) (*Chain, error) {
	if len(estimators) == 0 {
		return nil, ErrNoEstimators
	}
	return &Chain{
		estimators: estimators,
		logger:     slog.Default().With("component", "estimator.chain"),
	}, nil
}

// NewChainWithLogger creates a chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, estimators ...Estimator) (*Chain, error) {
	c, err := NewChain(estimators...)
	if err != nil {
		return nil, err
	}
	c.logger = logger.With("component", "estimator.chain")
	return c, nil
}

// Ready reports whether any estimator in the chain is ready.
func (c *Chain) Ready() bool {
	for _, e := range c.estimators {
		if e.Ready() {
			return true
		}
	}
	return false
}

// Estimate tries each ready estimator until one returns without error.
func (c *Chain) Estimate(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
	var errs []error

	for i, e := range c.estimators {
		if !e.Ready() {
			errs = append(errs, ErrNotReady)
			continue
		}

		sets, err := e.Estimate(ctx, f)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback estimator succeeded", "estimator_index", i)
			}
			return sets, nil
		}

		errs = append(errs, err)
		c.logger.Warn("estimator failed, trying next",
			"estimator_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// WithOptions returns a chain whose members have opts applied where they
// support it.
func (c *Chain) WithOptions(opts Options) Estimator {
	configured := make([]Estimator, len(c.estimators))
	for i, e := range c.estimators {
		configured[i] = Configure(e, opts)
	}
	return &Chain{estimators: configured, logger: c.logger}
}

// Close closes every estimator and returns the last error.
func (c *Chain) Close() error {
	var lastErr error
	for _, e := range c.estimators {
		if err := e.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Estimators returns the estimators in the chain.
func (c *Chain) Estimators() []Estimator {
	return c.estimators
}

var (
	_ Estimator    = (*Chain)(nil)
	_ Configurable = (*Chain)(nil)
)
