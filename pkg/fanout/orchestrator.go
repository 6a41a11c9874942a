package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/models"
	"github.com/tb0hdan/polyprompt-mcp/pkg/prompt"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
	"golang.org/x/sync/errgroup"
)

// ErrPersistence marks a structural failure: the run's status or its result
// batch could not be recorded.
var ErrPersistence = errors.New("failed to record run")

// Store is the persistence the orchestrator needs.
type Store interface {
	runstate.Persister
	CreateEvals(ctx context.Context, evals []models.Eval) error
}

// Orchestrator fans a run's prompt out to every selected model.
type Orchestrator struct {
	logger     zerolog.Logger
	invoker    gateway.Invoker
	store      Store
	now        func() time.Time
	newBatchID func() string
}

// New creates an orchestrator.
func New(logger zerolog.Logger, invoker gateway.Invoker, store Store) *Orchestrator {
	return &Orchestrator{
		logger:     logger.With().Str("component", "fanout").Logger(),
		invoker:    invoker,
		store:      store,
		now:        time.Now,
		newBatchID: uuid.NewString,
	}
}

// Execute runs one execution pass over run and returns one result per
// requested model, in request order. Individual model failures are reported
// inside the results; a non-nil error means nothing usable was recorded.
//
// run.Status is updated in place to the last persisted status.
func (o *Orchestrator) Execute(ctx context.Context, run *models.Run) ([]gateway.Result, error) {
	// Once dispatched, calls outlive the caller.
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With().Str("run_id", run.ID).Logger()

	machine := runstate.NewMachine(o.store, run.ID, run.Status)
	defer func() { run.Status = machine.Current() }()

	if err := machine.Start(ctx); err != nil {
		if errors.Is(err, runstate.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	text := prompt.Render(run.Prompt, run.Variables)
	logger.Info().Msgf("Dispatching run to %d models", len(run.Models))

	results := o.dispatch(ctx, logger, text, run.Models)

	evals := models.NewEvalBatch(run.ID, o.newBatchID(), o.now(), results)
	if err := o.store.CreateEvals(ctx, evals); err != nil {
		logger.Error().Err(err).Msg("failed to record results")
		if failErr := machine.Fail(ctx); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to mark run as errored")
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := machine.Complete(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to mark run as completed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return results, nil
}

// dispatch invokes every model concurrently and waits for all of them. Each
// goroutine owns one slot of the result slice.
func (o *Orchestrator) dispatch(ctx context.Context, logger zerolog.Logger, text string, modelIDs []string) []gateway.Result {
	results := make([]gateway.Result, len(modelIDs))

	var group errgroup.Group
	for i, model := range modelIDs {
		group.Go(func() error {
			res := o.invoker.Invoke(ctx, text, model).Normalized()
			res.Model = model
			results[i] = res
			return nil
		})
	}
	_ = group.Wait()

	failCount := 0
	for _, res := range results {
		if res.Failed() {
			failCount++
			logger.Warn().Str("model", res.Model).Int64("latency_ms", res.LatencyMs).Msgf("%s call failed: %s", res.Model, *res.Error)
		} else {
			logger.Info().Str("model", res.Model).Int64("latency_ms", res.LatencyMs).Msgf("%s call completed", res.Model)
		}
	}
	logger.Info().Msgf("Run settled: %d models | Successful: %d | Failed: %d", len(results), len(results)-failCount, failCount)

	return results
}
