package realizer

import (
	"errors"
	"fmt"

	"github.com/jrife/osdplacement/command"
)

var (
	// ErrDeleteRetriesExhausted indicates that some replicas on origin
	// OSDs could still not be deleted after the last retry
	ErrDeleteRetriesExhausted = errors.New("delete replica retries exhausted")
	// ErrUnknownStrategy indicates that a strategy name was not recognized
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrInvalidConfig indicates that a realizer config is unusable
	ErrInvalidConfig = errors.New("invalid realizer config")
)

// BatchError is returned when a batch aborts. Phases and batches
// that completed before it are not rolled back.
type BatchError struct {
	// Batch is the number of the aborted batch, starting at 1
	Batch int
	// Failures are the commands that still failed on the last attempt
	Failures []command.Result
	Err      error
}

func (err *BatchError) Error() string {
	return fmt.Sprintf("batch %d aborted with %d failed commands: %s", err.Batch, len(err.Failures), err.Err.Error())
}

func (err *BatchError) Unwrap() error {
	return err.Err
}
