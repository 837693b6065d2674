// Package engine wires the signal generators into fusion for one
// evidence snapshot.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/fusion"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/pkg/logger"
)

// Result is the outcome of one estimate. Prediction is nil when no signal
// could be computed; Outcome still says which generators were absent or
// failed.
type Result struct {
	Prediction *fusion.MultiSignalPrediction
	Outcome    signals.Outcome
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithGenerators replaces the default generator set.
func WithGenerators(gens ...signals.Generator) Option {
	return func(e *Engine) {
		if len(gens) > 0 {
			e.gens = gens
		}
	}
}

// WithGeneratorTimeout bounds each generator call.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine runs the estimation pipeline. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	log       logger.Logger
	gens      []signals.Generator
	timeout   time.Duration
	collector *signals.Collector
	fuser     *fusion.Fuser
}

// New builds an Engine from c.
func New(c coeffs.Coefficients, opts ...Option) *Engine {
	e := &Engine{
		log:  logger.Nop(),
		gens: signals.Defaults(c),
	}
	for _, opt := range opts {
		opt(e)
	}
	copts := []signals.Option{signals.WithLogger(e.log.Named("signals"))}
	if e.timeout > 0 {
		copts = append(copts, signals.WithTimeout(e.timeout))
	}
	e.collector = signals.NewCollector(e.gens, copts...)
	e.fuser = fusion.New(c.Fusion)
	return e
}

// Estimate fuses every signal computable from ev as of ev.AsOf. Evidence
// dated after ev.AsOf is dropped before any generator sees it. A blend
// outside the valid domain is returned as an error wrapping
// vdot.ErrIndexOutOfRange.
func (e *Engine) Estimate(ctx context.Context, ev model.Evidence) (Result, error) {
	if ev.AsOf.IsZero() {
		return Result{}, ErrMissingAsOf
	}
	ev = ev.Restrict(ev.AsOf)

	out := e.collector.Collect(ctx, ev)
	pred, err := e.fuser.Fuse(out, ev.AsOf)
	switch {
	case errors.Is(err, fusion.ErrNoSignals):
		e.log.Debug(ctx, "no signals computable",
			logger.Athlete(ev.AthleteID),
			logger.Time("as_of", ev.AsOf),
			logger.Int("failed", len(out.Failed)))
		return Result{Outcome: out}, nil
	case err != nil:
		return Result{Outcome: out}, err
	}

	e.log.Debug(ctx, "estimate fused",
		logger.Athlete(ev.AthleteID),
		logger.Float64("vdot", pred.BlendedFitnessIndex),
		logger.String("confidence", string(pred.Confidence)),
		logger.Int("signals", pred.DataQuality.SignalsUsed))
	return Result{Prediction: pred, Outcome: out}, nil
}
