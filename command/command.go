// Package command runs shell-style command strings as local processes.
// Commands are split into argv with shell quoting rules and never pass
// through a shell. Every command gets a kill timeout so a hung client
// cannot stall a caller waiting on a whole group of commands.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is how long a command may run before it is killed
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is set on a result whose process was killed
	// after running longer than the runner's timeout
	ErrTimeout = errors.New("command timed out")
	// ErrEmptyCommand is set on a result whose command string
	// contained no words
	ErrEmptyCommand = errors.New("empty command")
)

// Result is the outcome of running a single command
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is set when the process could not be started,
	// was killed or exited abnormally.
	Err error
}

// Failed returns true if the command did not exit cleanly
func (result Result) Failed() bool {
	return result.Err != nil || result.ExitCode != 0
}

// Fields returns log fields describing the result
func (result Result) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("command", result.Command),
		zap.Int("exit_code", result.ExitCode),
		zap.String("stdout", result.Stdout),
		zap.String("stderr", result.Stderr),
	}

	if result.Err != nil {
		fields = append(fields, zap.Error(result.Err))
	}

	return fields
}

// Executor runs commands
type Executor interface {
	// Run runs a single command and waits for it to finish
	Run(ctx context.Context, command string) Result
	// RunAll runs commands with at most concurrency of them in
	// flight at once. It returns once every command has finished
	// or been killed. Only the results of failed commands are
	// returned, in the order the commands were given.
	RunAll(ctx context.Context, commands []string, concurrency int) []Result
}

var _ Executor = (*Runner)(nil)

type option func(*Runner)

// WithTimeout sets the per-command kill timeout
func WithTimeout(timeout time.Duration) option {
	return func(runner *Runner) {
		runner.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) option {
	return func(runner *Runner) {
		runner.logger = logger
	}
}

// Runner executes commands as local processes
type Runner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a runner
func NewRunner(opts ...option) *Runner {
	runner := &Runner{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run implements Executor.Run
func (runner *Runner) Run(ctx context.Context, command string) Result {
	result := Result{Command: command, ExitCode: -1}
	argv, err := shellquote.Split(command)

	if err != nil {
		result.Err = fmt.Errorf("could not parse command: %w", err)

		return result
	}

	if len(argv) == 0 {
		result.Err = ErrEmptyCommand

		return result
	}

	if runner.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runner.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the killed process may still hold the pipes open
	cmd.WaitDelay = time.Second
	err = cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Err = fmt.Errorf("%w after %s", ErrTimeout, runner.timeout)
	case ctx.Err() != nil:
		result.Err = ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError

		if !errors.As(err, &exitErr) {
			result.Err = err
		}
	}

	if result.Failed() {
		runner.logger.Debug("command failed", result.Fields()...)
	}

	return result
}

// RunAll implements Executor.RunAll
func (runner *Runner) RunAll(ctx context.Context, commands []string, concurrency int) []Result {
	results := make([]Result, len(commands))
	var group errgroup.Group

	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	for i, command := range commands {
		i, command := i, command

		group.Go(func() error {
			results[i] = runner.Run(ctx, command)

			return nil
		})
	}

	group.Wait()

	failures := []Result{}

	for _, result := range results {
		if result.Failed() {
			failures = append(failures, result)
		}
	}

	runner.logger.Debug("ran commands", zap.Int("total", len(commands)), zap.Int("failed", len(failures)))

	return failures
}
