// Package provider fetches observations for a query plan from external data
// sources and turns them into engine results.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

// Provider answers field lookups for a target.
//
// Lookup returns an Absent observation when the source has no value for the
// field. An error means the source could not be asked at all.
type Provider interface {
	Name() string
	CanHandle(protocol fingerprint.Protocol, field string) bool
	Lookup(ctx context.Context, target string, ref engine.FieldRef) (engine.Observation, error)
}

// BatchProvider is a Provider that answers several fields of one target
// from a single request. The executor hands it every field it was chosen
// for in one call. Fields missing from the returned map read as Absent.
type BatchProvider interface {
	Provider
	LookupAll(ctx context.Context, target string, refs []engine.FieldRef) (map[engine.FieldRef]engine.Observation, error)
}

// Executor resolves a query plan against an ordered list of providers.
type Executor struct {
	providers []Provider
	logger    zerolog.Logger
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClock sets the clock used to timestamp absence markers the executor
// produces itself.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an executor that consults providers in order.
func NewExecutor(providers []Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		providers: providers,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs one lookup per distinct field of plan and fans the
// observation out to every probe reading that field. The first provider
// whose CanHandle accepts a field answers it; a BatchProvider answers all of
// its fields in one call. Missing providers and provider failures become
// Absent observations carrying a note; nothing is retried. Only context
// cancellation aborts the run.
func (e *Executor) Execute(ctx context.Context, target string, plan *engine.QueryPlan) (engine.Results, error) {
	if plan == nil {
		return nil, errors.New("query plan is nil")
	}

	fields := plan.Fields()
	owners := make(map[engine.FieldRef]Provider, len(fields))
	batches := make(map[BatchProvider][]engine.FieldRef)
	for _, ref := range fields {
		p := e.providerFor(ref)
		owners[ref] = p
		if bp, ok := p.(BatchProvider); ok {
			batches[bp] = append(batches[bp], ref)
		}
	}

	answered := make(map[engine.FieldRef]engine.Observation, len(fields))
	results := make(engine.Results, len(plan.Queries))
	for _, ref := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obs, done := answered[ref]
		if !done {
			var err error
			if bp, ok := owners[ref].(BatchProvider); ok {
				if err = e.lookupBatch(ctx, target, bp, batches[bp], answered); err == nil {
					obs = answered[ref]
				}
			} else {
				obs, err = e.lookup(ctx, target, owners[ref], ref)
			}
			if err != nil {
				return nil, err
			}
		}
		for _, q := range plan.QueriesFor(ref) {
			results[q.ProbeID] = engine.ProbeResult{ProbeID: q.ProbeID, Observation: obs}
		}
	}
	return results, nil
}

func (e *Executor) lookup(ctx context.Context, target string, p Provider, ref engine.FieldRef) (engine.Observation, error) {
	if p == nil {
		e.logger.Debug().
			Str("target", target).
			Str("protocol", string(ref.Protocol)).
			Str("field", ref.Field).
			Msg("No provider can handle field")
		return engine.Absent("", e.now()).WithNote(fmt.Sprintf("no provider can handle %s field %s", ref.Protocol, ref.Field)), nil
	}

	obs, err := p.Lookup(ctx, target, ref)
	if err != nil {
		return e.failed(ctx, target, p, err)
	}
	return e.sourced(p, obs), nil
}

// lookupBatch asks p for refs once and records an observation for every ref
// in answered.
func (e *Executor) lookupBatch(ctx context.Context, target string, p BatchProvider, refs []engine.FieldRef, answered map[engine.FieldRef]engine.Observation) error {
	got, err := p.LookupAll(ctx, target, refs)
	if err != nil {
		obs, err := e.failed(ctx, target, p, err)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			answered[ref] = obs
		}
		return nil
	}

	for _, ref := range refs {
		obs, ok := got[ref]
		if !ok {
			obs = engine.Absent(p.Name(), e.now())
		}
		answered[ref] = e.sourced(p, obs)
	}
	return nil
}

// failed turns a provider error into an absence, unless the context ended.
func (e *Executor) failed(ctx context.Context, target string, p Provider, err error) (engine.Observation, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return engine.Observation{}, ctxErr
	}
	e.logger.Warn().
		Err(err).
		Str("provider", p.Name()).
		Str("target", target).
		Msg("Provider lookup failed")
	return engine.Absent(p.Name(), e.now()).WithNote("provider error: " + err.Error()), nil
}

func (e *Executor) sourced(p Provider, obs engine.Observation) engine.Observation {
	if obs.Source == "" {
		obs.Source = p.Name()
	}
	return obs
}

func (e *Executor) providerFor(ref engine.FieldRef) Provider {
	for _, p := range e.providers {
		if p != nil && p.CanHandle(ref.Protocol, ref.Field) {
			return p
		}
	}
	return nil
}
