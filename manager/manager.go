// Package manager keeps a placement distribution for one managed folder.
// Every change to the distribution is saved as a snapshot before the
// call returns, and can optionally be pushed to the volume's prefix
// based OSD selection policy so that new files land on their assigned
// OSD right away.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/realizer"
	"github.com/jrife/osdplacement/storage/snapshot"
	"go.uber.org/zap"
)

// DefaultName is the snapshot name used when none is configured
const DefaultName = "default"

var (
	// ErrNoRealizer is returned by Realize when no realizer is configured
	ErrNoRealizer = errors.New("no realizer configured")
	// ErrApplyPolicy indicates that the selection policy of the
	// volume could not be updated
	ErrApplyPolicy = errors.New("could not apply selection policy")
)

// Realizer applies the distribution to the physical layout
type Realizer interface {
	Realize(ctx context.Context, strategy realizer.Strategy) error
}

type policy struct {
	executor   command.Executor
	renderer   *xtfsutil.Renderer
	mountPoint string
}

// Option configures a Manager
type Option func(*Manager)

// WithName sets the name the distribution is saved under
func WithName(name string) Option {
	return func(manager *Manager) {
		manager.name = name
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(manager *Manager) {
		manager.logger = logger
	}
}

// WithRealizer sets the realizer used by Realize
func WithRealizer(realizer Realizer) Option {
	return func(manager *Manager) {
		manager.realizer = realizer
	}
}

// WithSelectionPolicy pushes every assignment change to the prefix
// selection policy of the volume mounted at mountPoint
func WithSelectionPolicy(executor command.Executor, renderer *xtfsutil.Renderer, mountPoint string) Option {
	return func(manager *Manager) {
		manager.policy = &policy{executor: executor, renderer: renderer, mountPoint: mountPoint}
	}
}

// Manager owns a distribution and its snapshot
type Manager struct {
	distribution *placement.Distribution
	store        *snapshot.Store
	name         string
	realizer     Realizer
	policy       *policy
	logger       *zap.Logger
}

// New creates a manager for distribution without loading anything
func New(distribution *placement.Distribution, store *snapshot.Store, opts ...Option) *Manager {
	manager := &Manager{
		distribution: distribution,
		store:        store,
		name:         DefaultName,
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// Open creates a manager and loads the saved snapshot into distribution,
// which must be empty. Without a saved snapshot the distribution stays
// empty.
func Open(distribution *placement.Distribution, store *snapshot.Store, opts ...Option) (*Manager, error) {
	manager := New(distribution, store, opts...)
	revision, err := store.Load(manager.name, distribution)

	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		manager.logger.Info("starting with an empty distribution", zap.String("name", manager.name))
	case err != nil:
		return nil, fmt.Errorf("could not load distribution %s: %w", manager.name, err)
	default:
		manager.logger.Info("loaded distribution",
			zap.String("name", manager.name),
			zap.Uint64("revision", revision),
			zap.Int("osds", len(distribution.OSDList())),
			zap.Int("folders", distribution.NumFolders()),
		)
	}

	return manager, nil
}

// Distribution returns the managed distribution
func (manager *Manager) Distribution() *placement.Distribution {
	return manager.distribution
}

func (manager *Manager) save() error {
	revision, err := manager.store.Save(manager.name, manager.distribution)

	if err != nil {
		return fmt.Errorf("could not save distribution %s: %w", manager.name, err)
	}

	manager.logger.Debug("saved distribution", zap.String("name", manager.name), zap.Uint64("revision", revision))

	return nil
}

// SyncOSDs adds the OSDs that are not known yet and applies capacities
// and bandwidths. A nil map leaves the corresponding values unchanged.
// Nothing changes if the maps do not match the resulting OSD set.
func (manager *Manager) SyncOSDs(uuids []string, capacities map[string]float64, bandwidths map[string]float64) error {
	apply := func(distribution *placement.Distribution) ([]string, error) {
		added := []string{}

		for _, uuid := range uuids {
			if distribution.AddOSD(uuid) {
				added = append(added, uuid)
			}
		}

		if capacities != nil {
			if err := distribution.SetOSDCapacities(capacities); err != nil {
				return nil, err
			}
		}

		if bandwidths != nil {
			if err := distribution.SetOSDBandwidths(bandwidths); err != nil {
				return nil, err
			}
		}

		return added, nil
	}

	if _, err := apply(manager.distribution.Clone()); err != nil {
		return err
	}

	added, err := apply(manager.distribution)

	if err != nil {
		panic(fmt.Sprintf("syncing osds succeeded on a clone but failed on the original: %s", err))
	}

	for _, uuid := range added {
		manager.logger.Info("added osd", zap.String("osd", uuid))
	}

	return manager.save()
}

// AddFolders assigns folders with the given mode, saves the distribution
// and applies the new assignments to the selection policy
func (manager *Manager) AddFolders(ctx context.Context, folders []placement.Folder, mode placement.AssignmentMode) ([]placement.Assignment, error) {
	assignments, err := manager.distribution.AddFolders(folders, mode)

	if err != nil {
		return nil, err
	}

	total := 0.0

	for _, folder := range folders {
		total += folder.Size
	}

	manager.logger.Info("added folders",
		zap.Stringer("mode", mode),
		zap.Int("folders", len(folders)),
		zap.Int("new_assignments", len(assignments)),
		zap.String("total_size", humanize.Bytes(uint64(total))),
	)

	if err := manager.save(); err != nil {
		return nil, err
	}

	if err := manager.applyAssignments(ctx, assignments); err != nil {
		return nil, err
	}

	return assignments, nil
}

// CreateEmptyFolders assigns folders that have no data yet. They are
// sized with the current average folder size, and at least 1.
func (manager *Manager) CreateEmptyFolders(ctx context.Context, folderIDs []string, mode placement.AssignmentMode) ([]placement.Assignment, error) {
	size := float64(int64(manager.distribution.AverageFolderSize()))

	if size < 1 {
		size = 1
	}

	folders := make([]placement.Folder, 0, len(folderIDs))

	for _, folderID := range folderIDs {
		folders = append(folders, placement.Folder{ID: folderID, Size: size})
	}

	return manager.AddFolders(ctx, folders, mode)
}

// ImportFolders assigns the folders in sizes that are not tracked yet.
// A folder without data counts as size 1.
func (manager *Manager) ImportFolders(ctx context.Context, sizes map[string]float64, mode placement.AssignmentMode) ([]placement.Assignment, error) {
	folders := []placement.Folder{}

	for _, folderID := range sortedKeys(sizes) {
		if _, tracked := manager.distribution.AssignedOSD(folderID); tracked {
			continue
		}

		size := sizes[folderID]

		if size == 0 {
			size = 1
		}

		folders = append(folders, placement.Folder{ID: folderID, Size: size})
	}

	return manager.AddFolders(ctx, folders, mode)
}

// UpdateFolderSizes replaces the recorded sizes of tracked folders.
// Folders that are not tracked are skipped. Either every size is
// updated or, on error, none is.
func (manager *Manager) UpdateFolderSizes(sizes map[string]float64) error {
	apply := func(distribution *placement.Distribution) error {
		for _, folderID := range sortedKeys(sizes) {
			if _, tracked := distribution.AssignedOSD(folderID); !tracked {
				continue
			}

			if err := distribution.UpdateFolder(folderID, sizes[folderID]); err != nil {
				return err
			}
		}

		return nil
	}

	if err := apply(manager.distribution.Clone()); err != nil {
		return err
	}

	for _, folderID := range sortedKeys(sizes) {
		if _, tracked := manager.distribution.AssignedOSD(folderID); !tracked {
			manager.logger.Warn("skipping size of untracked folder", zap.String("folder", folderID))
		}
	}

	if err := apply(manager.distribution); err != nil {
		panic(fmt.Sprintf("updating folder sizes succeeded on a clone but failed on the original: %s", err))
	}

	manager.logger.Info("updated folder sizes", zap.String("total_size", humanize.Bytes(uint64(manager.distribution.TotalFolderSize()))))

	return manager.save()
}

// RemoveFolder stops tracking a folder. Its data stays where it is.
func (manager *Manager) RemoveFolder(ctx context.Context, folderID string) error {
	if _, tracked := manager.distribution.AssignedOSD(folderID); !tracked {
		return fmt.Errorf("folder %s: %w", folderID, placement.ErrUnknownFolder)
	}

	manager.distribution.RemoveFolder(folderID)

	if err := manager.save(); err != nil {
		return err
	}

	if manager.policy == nil {
		return nil
	}

	return manager.runPolicy(ctx, []string{manager.policy.renderer.RemovePrefixAssignment(manager.policy.mountPoint, folderID)})
}

// Rebalance runs a rebalancing algorithm, saves the result and applies
// the changed assignments to the selection policy
func (manager *Manager) Rebalance(ctx context.Context, algorithm placement.Algorithm) (placement.Movements, error) {
	movements, err := manager.distribution.Rebalance(algorithm)

	if err != nil {
		return nil, err
	}

	manager.logger.Info("rebalanced distribution",
		zap.Stringer("algorithm", algorithm),
		zap.Int("movements", len(movements)),
		zap.String("moved_size", humanize.Bytes(uint64(movements.TotalSize(manager.distribution)))),
		zap.Float64("makespan", maximumProcessingTime(manager.distribution)),
	)

	if err := manager.save(); err != nil {
		return nil, err
	}

	if err := manager.applyAssignments(ctx, movements.Assignments()); err != nil {
		return nil, err
	}

	return movements, nil
}

// Realize moves the data so the physical layout matches the distribution
func (manager *Manager) Realize(ctx context.Context, strategy realizer.Strategy) error {
	if manager.realizer == nil {
		return ErrNoRealizer
	}

	return manager.realizer.Realize(ctx, strategy)
}

func (manager *Manager) applyAssignments(ctx context.Context, assignments []placement.Assignment) error {
	if manager.policy == nil || len(assignments) == 0 {
		return nil
	}

	commands := []string{manager.policy.renderer.SetPrefixSelectionPolicy(manager.policy.mountPoint)}

	for _, assignment := range assignments {
		commands = append(commands, manager.policy.renderer.AddPrefixAssignment(manager.policy.mountPoint, assignment.FolderID, assignment.OSD))
	}

	return manager.runPolicy(ctx, commands)
}

// runPolicy runs the commands one at a time since they all
// rewrite the same volume attribute
func (manager *Manager) runPolicy(ctx context.Context, commands []string) error {
	failures := manager.policy.executor.RunAll(ctx, commands, 1)

	for _, failure := range failures {
		manager.logger.Error("could not update selection policy", failure.Fields()...)
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d commands failed: %w", len(failures), len(commands), ErrApplyPolicy)
	}

	return nil
}

func maximumProcessingTime(distribution *placement.Distribution) float64 {
	_, makespan := distribution.MaximumProcessingTime()

	return makespan
}

func sortedKeys(sizes map[string]float64) []string {
	keys := make([]string, 0, len(sizes))

	for key := range sizes {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
