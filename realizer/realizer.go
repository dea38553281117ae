// Package realizer moves files between OSDs until the physical layout
// matches the assignments of a placement.Distribution.
//
// A realize run repeats three steps until nothing is left to move:
// discover the files that are out of place, pick a bounded batch of them
// and execute the batch. A batch runs in three phases. Files that need a
// second replica first switch to read-only replication, then replicas are
// created on the target OSDs and finally the replicas on wrong OSDs are
// deleted. Each phase finishes before the next one starts so the last
// complete replica of a file is never deleted. Deletes that fail because
// a new replica is still filling up are retried after a fixed delay.
package realizer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/utils/log"
	"github.com/jrife/osdplacement/utils/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

type option func(*Realizer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) option {
	return func(realizer *Realizer) {
		realizer.logger = logger
	}
}

// WithClock sets the clock used to wait between delete retries
func WithClock(clock clock.Clock) option {
	return func(realizer *Realizer) {
		realizer.clock = clock
	}
}

// WithRand sets the source of randomness used to shuffle batches
func WithRand(r *rand.Rand) option {
	return func(realizer *Realizer) {
		realizer.rand = r
	}
}

// WithRenderer sets the renderer that turns operations into commands
func WithRenderer(renderer Renderer) option {
	return func(realizer *Realizer) {
		realizer.renderer = renderer
	}
}

// WithMetrics sets the metrics updated by realize runs
func WithMetrics(metrics *Metrics) option {
	return func(realizer *Realizer) {
		realizer.metrics = metrics
	}
}

// Realizer applies assignments to the physical layout
type Realizer struct {
	layout      Layout
	assignments Assignments
	executor    command.Executor
	config      Config
	renderer    Renderer
	logger      *zap.Logger
	clock       clock.Clock
	rand        *rand.Rand
	metrics     *Metrics
}

// New creates a realizer
func New(layout Layout, assignments Assignments, executor command.Executor, config Config, opts ...option) (*Realizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	realizer := &Realizer{
		layout:      layout,
		assignments: assignments,
		executor:    executor,
		config:      config,
		renderer:    xtfsutil.NewRenderer(),
		logger:      zap.NewNop(),
		clock:       clock.WallClock,
		metrics:     NewMetrics(),
	}

	for _, opt := range opts {
		opt(realizer)
	}

	if realizer.rand == nil {
		realizer.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return realizer, nil
}

// Realize moves files until discovery finds nothing left to move.
// It returns a *BatchError if a batch aborts. Calling Realize again
// resumes from whatever state the layout is in.
func (realizer *Realizer) Realize(ctx context.Context, strategy Strategy) error {
	if !strategy.valid() {
		return fmt.Errorf("%v: %w", strategy, ErrUnknownStrategy)
	}

	ctx = log.WithFields(ctx, zap.String("realize_run", uuid.MustUUID()), zap.Stringer("strategy", strategy))
	logger := log.WithContext(ctx, realizer.logger)
	start := realizer.clock.Now()

	logger.Info("starting realize run")

	for batch := 1; ; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending, err := realizer.Discover(ctx)

		if err != nil {
			return fmt.Errorf("could not discover layout: %w", err)
		}

		realizer.metrics.PendingFiles().Set(float64(pending.Len()))

		if pending.Empty() {
			logger.Info("layout matches assignments", zap.Int("batches", batch-1), zap.Duration("duration", realizer.clock.Now().Sub(start)))

			return nil
		}

		moves := realizer.Schedule(pending, strategy)

		if err := realizer.execute(log.WithFields(ctx, zap.Int("batch", batch)), batch, moves); err != nil {
			return err
		}
	}
}

func (realizer *Realizer) execute(ctx context.Context, batch int, moves []Move) error {
	logger := log.WithContext(ctx, realizer.logger)
	phases := make([][]string, numKinds)

	for _, move := range moves {
		for _, operation := range move.Operations {
			phases[operation.Kind] = append(phases[operation.Kind], operation.Render(realizer.renderer))
		}
	}

	realizer.rand.Shuffle(len(phases[CreateReplica]), func(i, j int) {
		phases[CreateReplica][i], phases[CreateReplica][j] = phases[CreateReplica][j], phases[CreateReplica][i]
	})

	logger.Info("executing batch", zap.Int("files", len(moves)))
	realizer.metrics.Batches().Inc()
	realizer.runPhase(ctx, logger, SetReplicationMode, phases[SetReplicationMode], realizer.config.ModeConcurrency)
	realizer.runPhase(ctx, logger, CreateReplica, phases[CreateReplica], realizer.config.CreateConcurrency)

	return realizer.deleteReplicas(ctx, logger, batch, phases[DeleteReplica])
}

// runPhase runs every command of a phase and waits for all of them.
// Failures are logged but not retried. A failed create shows up again
// in the next discovery.
func (realizer *Realizer) runPhase(ctx context.Context, logger *zap.Logger, phase Kind, commands []string, concurrency int) []command.Result {
	if len(commands) == 0 {
		return []command.Result{}
	}

	start := realizer.clock.Now()
	failures := realizer.executor.RunAll(ctx, commands, concurrency)

	realizer.metrics.Commands(phase).Add(float64(len(commands)))
	realizer.metrics.CommandsFailed(phase).Add(float64(len(failures)))

	if phase != DeleteReplica {
		for _, failure := range failures {
			logger.Warn("command failed", append(failure.Fields(), zap.Stringer("phase", phase))...)
		}
	}

	logger.Info("phase done",
		zap.Stringer("phase", phase),
		zap.Int("commands", len(commands)),
		zap.Int("failed", len(failures)),
		zap.Duration("duration", realizer.clock.Now().Sub(start)),
	)

	return failures
}

// deleteReplicas runs the delete commands and then keeps running the
// failed ones again until they succeed or the retries run out.
func (realizer *Realizer) deleteReplicas(ctx context.Context, logger *zap.Logger, batch int, commands []string) error {
	if len(commands) == 0 {
		return nil
	}

	remaining := commands
	failures := []command.Result{}
	attempt := 0

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++

			if attempt > 1 {
				realizer.metrics.DeleteRetries().Inc()
				logger.Debug("retrying delete replica commands", zap.Int("attempt", attempt), zap.Int("commands", len(remaining)))
			}

			failures = realizer.runPhase(ctx, logger, DeleteReplica, remaining, realizer.config.DeleteConcurrency)

			if len(failures) == 0 {
				return nil
			}

			remaining = make([]string, 0, len(failures))

			for _, failure := range failures {
				remaining = append(remaining, failure.Command)
			}

			return fmt.Errorf("%d delete replica commands failed", len(failures))
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warn("could not delete all replicas", zap.Int("attempt", attempt), zap.Error(err))
		},
		Attempts: 1 + realizer.config.MaxDeleteRetries,
		Delay:    realizer.config.DeleteRetryInterval,
		Clock:    realizer.clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		for _, failure := range failures {
			logger.Error("could not delete replica", failure.Fields()...)
		}

		return &BatchError{Batch: batch, Failures: failures, Err: ErrDeleteRetriesExhausted}
	case retry.IsRetryStopped(err) && ctx.Err() != nil:
		return &BatchError{Batch: batch, Failures: failures, Err: ctx.Err()}
	}

	return &BatchError{Batch: batch, Failures: failures, Err: err}
}
