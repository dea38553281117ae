package realizer

import (
	"context"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/juju/collections/set"
	"github.com/jrife/osdplacement/utils/log"
	"go.uber.org/zap"
)

// File is a file in the managed folder as it is laid out right now
type File struct {
	Path string
	// FolderID is the folder the file belongs to
	FolderID string
	// Replicas lists the OSDs currently holding a replica of the file
	Replicas []string
}

// Layout lists the files in the managed folder
type Layout interface {
	Files(ctx context.Context) ([]File, error)
}

// Assignments says which OSD each folder should live on
type Assignments interface {
	AssignedOSD(folderID string) (string, bool)
}

// Pending holds the moves found by discovery, grouped by key.
// Keys are kept in the order they were first seen.
type Pending struct {
	moves *linkedhashmap.Map
	size  int
}

func newPending() *Pending {
	return &Pending{moves: linkedhashmap.New()}
}

func (pending *Pending) add(move Move) {
	moves, ok := pending.moves.Get(move.Key)

	if !ok {
		moves = []Move{}
	}

	pending.moves.Put(move.Key, append(moves.([]Move), move))
	pending.size++
}

// Keys returns every key with at least one pending move
func (pending *Pending) Keys() []Key {
	keys := make([]Key, 0, pending.moves.Size())

	for _, key := range pending.moves.Keys() {
		keys = append(keys, key.(Key))
	}

	return keys
}

// Moves returns the pending moves for a key
func (pending *Pending) Moves(key Key) []Move {
	moves, ok := pending.moves.Get(key)

	if !ok {
		return []Move{}
	}

	return moves.([]Move)
}

// All returns every pending move
func (pending *Pending) All() []Move {
	all := make([]Move, 0, pending.size)

	for _, key := range pending.Keys() {
		all = append(all, pending.Moves(key)...)
	}

	return all
}

// Len returns the number of pending moves
func (pending *Pending) Len() int {
	return pending.size
}

// Empty returns true if nothing needs to be moved
func (pending *Pending) Empty() bool {
	return pending.size == 0
}

// Discover compares the live layout with the assignments and returns
// the moves needed to make them match. A file that is already only on
// its assigned OSD needs no move. Files of untracked folders and files
// without any replica are skipped.
func (realizer *Realizer) Discover(ctx context.Context) (*Pending, error) {
	logger := log.WithContext(ctx, realizer.logger)
	files, err := realizer.layout.Files(ctx)

	if err != nil {
		return nil, err
	}

	pending := newPending()

	for _, file := range files {
		move, ok := realizer.plan(logger, file)

		if ok {
			pending.add(move)
		}
	}

	logger.Debug("discovered pending moves", zap.Int("files", len(files)), zap.Int("moves", pending.Len()), zap.Int("keys", pending.moves.Size()))

	return pending, nil
}

func (realizer *Realizer) plan(logger *zap.Logger, file File) (Move, bool) {
	target, ok := realizer.assignments.AssignedOSD(file.FolderID)

	if !ok {
		logger.Warn("skipping file of untracked folder", zap.String("path", file.Path), zap.String("folder", file.FolderID))

		return Move{}, false
	}

	if len(file.Replicas) == 0 {
		logger.Warn("skipping file without replicas", zap.String("path", file.Path))

		return Move{}, false
	}

	replicas := set.NewStrings()
	deletes := []Operation{}
	origin := ""

	for _, replica := range file.Replicas {
		if replicas.Contains(replica) {
			continue
		}

		replicas.Add(replica)

		if replica == target {
			continue
		}

		origin = replica
		deletes = append(deletes, Operation{Kind: DeleteReplica, Path: file.Path, OSD: replica})
	}

	operations := []Operation{}

	if !replicas.Contains(target) {
		// A single replica may only be joined by another one in
		// read-only replication mode
		if replicas.Size() < 2 {
			operations = append(operations, Operation{Kind: SetReplicationMode, Path: file.Path})
		}

		operations = append(operations, Operation{Kind: CreateReplica, Path: file.Path, OSD: target})
	}

	operations = append(operations, deletes...)

	if len(operations) == 0 {
		return Move{}, false
	}

	return Move{
		Key:        Key{Origin: origin, Target: target},
		Path:       file.Path,
		FolderID:   file.FolderID,
		Operations: operations,
	}, true
}
