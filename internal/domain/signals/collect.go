package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/vdot"
	"github.com/okian/pacer/pkg/logger"
)

const defaultGeneratorTimeout = 5 * time.Second

// Outcome is the tagged set of signals one collection produced.
type Outcome struct {
	Signals []Signal
	Failed  []Name
	Absent  []Name
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for generator failures.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout bounds each generator call.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Collector runs generators concurrently. A generator that errors, panics
// or times out is reported as failed; the others are unaffected.
type Collector struct {
	gens    []Generator
	log     logger.Logger
	timeout time.Duration
}

// NewCollector returns a Collector over gens.
func NewCollector(gens []Generator, opts ...Option) *Collector {
	c := &Collector{
		gens:    gens,
		log:     logger.Nop(),
		timeout: defaultGeneratorTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type result struct {
	sig *Signal
	err error
}

// Collect evaluates every generator against ev.
func (c *Collector) Collect(ctx context.Context, ev model.Evidence) Outcome {
	results := make([]result, len(c.gens))
	var wg sync.WaitGroup
	for i, g := range c.gens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, g, ev)
		}()
	}
	wg.Wait()

	var out Outcome
	for i, g := range c.gens {
		r := results[i]
		switch {
		case r.err != nil:
			c.log.Warn(ctx, "signal generator failed",
				logger.String("signal", string(g.Name())),
				logger.Athlete(ev.AthleteID),
				logger.Error(r.err))
			out.Failed = append(out.Failed, g.Name())
		case r.sig == nil:
			out.Absent = append(out.Absent, g.Name())
		default:
			out.Signals = append(out.Signals, *r.sig)
		}
	}
	return out
}

// run calls one generator with panic recovery and a deadline.
func (c *Collector) run(ctx context.Context, g Generator, ev model.Evidence) result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %s: %v", ErrGeneratorPanic, g.Name(), p)}
			}
		}()
		sig, err := g.Generate(ctx, ev)
		done <- result{sig: sig, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil || r.sig == nil {
			return r
		}
		return result{sig: sanitize(g.Name(), r.sig)}
	case <-ctx.Done():
		return result{err: fmt.Errorf("%w: %s: %w", ErrGeneratorTimeout, g.Name(), ctx.Err())}
	}
}

// sanitize drops out-of-range estimates and clamps the probabilities.
func sanitize(name Name, s *Signal) *Signal {
	if vdot.Validate(s.EstimatedFitnessIndex) != nil {
		return nil
	}
	out := *s
	out.Name = name
	out.Confidence = clamp(out.Confidence, 0, 1)
	out.Weight = clamp(out.Weight, 0, 1)
	if out.Confidence == 0 || out.Weight == 0 {
		return nil
	}
	return &out
}
