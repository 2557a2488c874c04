// Package scanexec runs a fingerprint specification against a list of
// targets: one plan, one provider pass and one evaluation per target.
package scanexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

// DefaultConcurrency bounds the number of targets in flight.
const DefaultConcurrency = 4

// Executor turns a query plan into probe results for one target.
// *provider.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, target string, plan *engine.QueryPlan) (engine.Results, error)
}

type ProgressSink interface {
	OnEvent(ProgressEvent)
}

type ProgressEvent struct {
	Phase     string
	Target    string
	Status    string
	Message   string
	Timestamp time.Time
}

// TargetDecision is the outcome for one target. Err is set when observations
// could not be collected; Decision is nil in that case.
type TargetDecision struct {
	Target   string           `json:"target"`
	Decision *engine.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
}

// Result is the outcome of a scan run. Decisions follow input target order.
type Result struct {
	RunID           string            `json:"run_id"`
	SpecificationID string            `json:"specification_id"`
	Status          string            `json:"status"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	Plan            *engine.QueryPlan `json:"plan"`
	Decisions       []TargetDecision  `json:"decisions"`
}

// Tally counts decisions per verdict. Failed targets are not counted.
func (r *Result) Tally() map[engine.Verdict]int {
	out := make(map[engine.Verdict]int, 3)
	for _, d := range r.Decisions {
		if d.Decision != nil {
			out[d.Decision.Verdict]++
		}
	}
	return out
}

// Failed returns the targets whose observations could not be collected.
func (r *Result) Failed() []TargetDecision {
	var out []TargetDecision
	for _, d := range r.Decisions {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Service orchestrates planning, observation and evaluation for a scan.
type Service struct {
	executor     Executor
	evaluator    *engine.Evaluator
	concurrency  int
	logger       zerolog.Logger
	progressSink ProgressSink
	newRunID     func() string
}

// NewService builds a Service reading observations through executor.
func NewService(executor Executor) *Service {
	return &Service{
		executor:    executor,
		evaluator:   engine.NewEvaluator(),
		concurrency: DefaultConcurrency,
		logger:      zerolog.Nop(),
		newRunID:    uuid.NewString,
	}
}

// WithEvaluator replaces the default evaluator.
func (s *Service) WithEvaluator(e *engine.Evaluator) *Service {
	if e != nil {
		s.evaluator = e
	}
	return s
}

// WithConcurrency sets the number of targets processed at once.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// Run evaluates spec against every target. A malformed specification aborts
// before any provider is consulted. Per-target provider failures are
// recorded on the target and do not stop the run; cancellation does.
func (s *Service) Run(ctx context.Context, spec *fingerprint.Specification, targets []string) (*Result, error) {
	if s.executor == nil {
		return nil, WithErrorCode(ErrNoProviders, errorCodeNoProvider)
	}
	if len(targets) == 0 {
		return nil, NewInvalidTargetError("", nil)
	}

	plan, err := engine.Plan(spec)
	if err != nil {
		return nil, err
	}
	if err := s.evaluator.Check(spec); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:           s.newRunID(),
		SpecificationID: spec.ID,
		StartTime:       time.Now(),
		Plan:            plan,
		Decisions:       make([]TargetDecision, len(targets)),
	}
	logger := s.logger.With().Str("run_id", res.RunID).Str("specification", spec.ID).Logger()
	s.emit("plan", "", "completed", fmt.Sprintf("queries=%d fields=%d", len(plan.Queries), len(plan.Fields())))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	logger.Info().Int("targets", len(targets)).Int("concurrency", s.concurrency).Msg("Starting scan")

	for i, target := range targets {
		res.Decisions[i] = TargetDecision{Target: target}

		select {
		case <-ctx.Done():
			logger.Info().Msg("Context cancelled. Aborting remaining targets.")
			res.Decisions[i].Err = ctx.Err()
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(i int, target string) {
			defer wg.Done()
			defer func() {
				<-sem
			}()

			s.emit("evaluate", target, "start", "")
			decision, err := s.evaluate(ctx, spec, plan, target)
			if err != nil {
				res.Decisions[i].Err = err
				logger.Warn().Err(err).Str("target", target).Msg("Target failed")
				s.emit("evaluate", target, "failed", err.Error())
				return
			}
			res.Decisions[i].Decision = decision
			logger.Info().
				Str("target", target).
				Str("verdict", decision.Verdict.String()).
				Strs("missing_required", decision.MissingRequired()).
				Msg("Target evaluated")
			s.emit("evaluate", target, "completed", decision.Verdict.String())
		}(i, target)
	}
	wg.Wait()

	for i := range res.Decisions {
		if err := res.Decisions[i].Err; err != nil {
			res.Decisions[i].Error = err.Error()
		}
	}
	res.EndTime = time.Now()

	runErr := ctx.Err()
	res.Status = statusFromError(runErr)
	logger.Info().Str("status", res.Status).Dur("duration", res.EndTime.Sub(res.StartTime)).Msg("Scan finished")
	return res, runErr
}

func (s *Service) evaluate(ctx context.Context, spec *fingerprint.Specification, plan *engine.QueryPlan, target string) (*engine.Decision, error) {
	results, err := s.executor.Execute(ctx, target, plan)
	if err != nil {
		return nil, fmt.Errorf("collect observations: %w", err)
	}
	return s.evaluator.Evaluate(spec, target, results)
}

func statusFromError(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

func (s *Service) emit(phase, target, status, msg string) {
	if s.progressSink == nil {
		return
	}
	s.progressSink.OnEvent(ProgressEvent{
		Phase:     phase,
		Target:    target,
		Status:    status,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
