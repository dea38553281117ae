// Package snapshot persists the state of a placement distribution
// in a kv store so that it survives restarts of the process.
package snapshot

import (
	"errors"
	"fmt"
	"strings"

	proto "github.com/gogo/protobuf/proto"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/placement/osd"
	"github.com/jrife/osdplacement/placement/placementpb"
	"github.com/jrife/osdplacement/storage/kv"
	"github.com/jrife/osdplacement/storage/kv/marshaled"
	"go.uber.org/zap"
)

const keyPrefix = "distributions/"

var (
	// ErrNoSnapshot is returned when loading a snapshot that was never saved
	ErrNoSnapshot = errors.New("no snapshot with this name")
	// ErrNotEmpty is returned when loading into a distribution that already has OSDs
	ErrNotEmpty = errors.New("distribution is not empty")
)

type option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) option {
	return func(store *Store) {
		store.logger = logger
	}
}

// Store saves and loads named distribution snapshots
type Store struct {
	store  kv.Store
	logger *zap.Logger
}

// New creates the underlying kv store if needed and returns a Store using it
func New(store kv.Store, opts ...option) (*Store, error) {
	snapshots := &Store{store: store, logger: zap.NewNop()}

	for _, opt := range opts {
		opt(snapshots)
	}

	if err := store.Create(); err != nil {
		return nil, fmt.Errorf("could not create store %s: %w", store.Name(), err)
	}

	return snapshots, nil
}

type message struct {
	proto.Message
}

func (m message) Marshal() ([]byte, error) {
	return proto.Marshal(m.Message)
}

func unmarshalSnapshot(data []byte) (interface{}, error) {
	var snapshot placementpb.DistributionSnapshot

	if err := proto.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

func snapshots(m kv.Map) *marshaled.Map {
	return &marshaled.Map{
		MapUpdater: marshaled.MapUpdater{MapUpdater: m},
		MapReader:  marshaled.MapReader{MapReader: m, Unmarshal: unmarshalSnapshot},
	}
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Save stores the current state of the distribution under name
// and returns the revision of the saved snapshot. Revisions start
// at 1 and grow by one with every save of the same name.
func (store *Store) Save(name string, distribution *placement.Distribution) (uint64, error) {
	transaction, err := store.store.Begin(true)

	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}

	defer transaction.Rollback()

	m := snapshots(transaction)
	previous, err := m.Get(key(name))

	if err != nil {
		return 0, fmt.Errorf("could not read previous snapshot %s: %w", name, err)
	}

	snapshot := Encode(distribution)

	if previous != nil {
		snapshot.Revision = previous.(*placementpb.DistributionSnapshot).Revision + 1
	} else {
		snapshot.Revision = 1
	}

	if err := m.Put(key(name), message{snapshot}); err != nil {
		return 0, fmt.Errorf("could not write snapshot %s: %w", name, err)
	}

	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit snapshot %s: %w", name, err)
	}

	store.logger.Debug("saved snapshot", zap.String("name", name), zap.Uint64("revision", snapshot.Revision), zap.Int("osds", len(snapshot.OSDs)))

	return snapshot.Revision, nil
}

// Load restores the snapshot saved under name into an empty distribution
// and returns its revision.
func (store *Store) Load(name string, into *placement.Distribution) (uint64, error) {
	transaction, err := store.store.Begin(false)

	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}

	defer transaction.Rollback()

	value, err := snapshots(transaction).Get(key(name))

	if err != nil {
		return 0, fmt.Errorf("could not read snapshot %s: %w", name, err)
	}

	if value == nil {
		return 0, fmt.Errorf("%s: %w", name, ErrNoSnapshot)
	}

	snapshot := value.(*placementpb.DistributionSnapshot)

	if err := Decode(snapshot, into); err != nil {
		return 0, err
	}

	return snapshot.Revision, nil
}

// Delete removes the snapshot saved under name. It has no effect
// if there is no such snapshot.
func (store *Store) Delete(name string) error {
	transaction, err := store.store.Begin(true)

	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer transaction.Rollback()

	if err := transaction.Delete(key(name)); err != nil {
		return fmt.Errorf("could not delete snapshot %s: %w", name, err)
	}

	return transaction.Commit()
}

// Names lists the names of all saved snapshots in ascending order
func (store *Store) Names() ([]string, error) {
	transaction, err := store.store.Begin(false)

	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}

	defer transaction.Rollback()

	iter, err := transaction.Keys([]byte(keyPrefix), kv.SortOrderAsc)

	if err != nil {
		return nil, err
	}

	names := []string{}

	for iter.Next() {
		names = append(names, strings.TrimPrefix(string(iter.Key()), keyPrefix))
	}

	if iter.Error() != nil {
		return nil, iter.Error()
	}

	return names, nil
}

// Encode describes the distribution as a snapshot message
func Encode(distribution *placement.Distribution) *placementpb.DistributionSnapshot {
	snapshot := &placementpb.DistributionSnapshot{}

	for _, ledger := range distribution.OSDs() {
		osdSnapshot := &placementpb.OSDSnapshot{
			UUID:      ledger.UUID(),
			Capacity:  ledger.Capacity(),
			Bandwidth: ledger.Bandwidth(),
		}

		for _, entry := range ledger.Folders() {
			osdSnapshot.Folders = append(osdSnapshot.Folders, &placementpb.FolderEntry{ID: entry.ID, Size: entry.Size})
		}

		snapshot.OSDs = append(snapshot.OSDs, osdSnapshot)
	}

	return snapshot
}

// Decode adds the OSDs described by the snapshot to an empty distribution.
// Folders are restored as they were saved, even if they exceed the
// capacity of their OSD.
func Decode(snapshot *placementpb.DistributionSnapshot, into *placement.Distribution) error {
	if len(into.OSDList()) != 0 {
		return ErrNotEmpty
	}

	for _, osdSnapshot := range snapshot.OSDs {
		folders := osd.New(osdSnapshot.UUID)

		for _, entry := range osdSnapshot.Folders {
			folders.AddFolder(entry.ID, entry.Size)
		}

		ledger := osd.New(osdSnapshot.UUID, osd.WithCapacity(osdSnapshot.Capacity), osd.WithBandwidth(osdSnapshot.Bandwidth))
		ledger.ReplaceFolders(folders)

		if !into.PutOSD(ledger) {
			return fmt.Errorf("snapshot lists osd %s twice", osdSnapshot.UUID)
		}
	}

	return nil
}
