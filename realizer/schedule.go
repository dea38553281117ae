package realizer

import (
	"fmt"
	"strings"
)

// Strategy decides which pending moves go into the next batch
type Strategy int

const (
	// OSDBalanced takes up to a fixed number of moves from every key
	// so that all OSDs are busy at roughly the same rate
	OSDBalanced Strategy = iota
	// Random takes a random sample of all pending moves
	Random
)

var strategyNames = map[Strategy]string{
	OSDBalanced: "osd_balanced",
	Random:      "random",
}

func (strategy Strategy) String() string {
	if name, ok := strategyNames[strategy]; ok {
		return name
	}

	return fmt.Sprintf("Strategy(%d)", int(strategy))
}

func (strategy Strategy) valid() bool {
	_, ok := strategyNames[strategy]

	return ok
}

// ParseStrategy parses a strategy name. An empty
// name selects OSDBalanced.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return OSDBalanced, nil
	}

	for strategy, strategyName := range strategyNames {
		if strings.EqualFold(name, strategyName) {
			return strategy, nil
		}
	}

	return 0, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
}

// Schedule selects the moves of the next batch. The batch is shuffled
// and never holds more than MaxFilesInProgress moves. With more keys
// than that, osd_balanced takes one move from each of the first keys and
// leaves the rest to later batches. Schedule panics on an unknown strategy.
func (realizer *Realizer) Schedule(pending *Pending, strategy Strategy) []Move {
	var batch []Move

	switch strategy {
	case Random:
		batch = pending.All()
		realizer.shuffle(batch)

		if len(batch) > realizer.config.MaxFilesInProgress {
			batch = batch[:realizer.config.MaxFilesInProgress]
		}
	case OSDBalanced:
		keys := pending.Keys()

		if len(keys) > realizer.config.MaxFilesInProgress {
			keys = keys[:realizer.config.MaxFilesInProgress]
		}

		perKey := realizer.perKeyLimit(len(keys))
		batch = []Move{}

		for _, key := range keys {
			moves := pending.Moves(key)

			if len(moves) > perKey {
				moves = moves[:perKey]
			}

			batch = append(batch, moves...)
		}

		realizer.shuffle(batch)
	default:
		panic(fmt.Sprintf("unknown strategy %v", strategy))
	}

	return batch
}

// perKeyLimit shrinks the per key limit so that numKeys times the
// limit stays within the total limit. numKeys must not exceed the
// total limit.
func (realizer *Realizer) perKeyLimit(numKeys int) int {
	perKey := realizer.config.MaxFilesInProgressPerKey

	if numKeys == 0 || numKeys*perKey <= realizer.config.MaxFilesInProgress {
		return perKey
	}

	return realizer.config.MaxFilesInProgress / numKeys
}

func (realizer *Realizer) shuffle(moves []Move) {
	realizer.rand.Shuffle(len(moves), func(i, j int) {
		moves[i], moves[j] = moves[j], moves[i]
	})
}
