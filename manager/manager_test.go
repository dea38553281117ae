package manager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/manager"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/realizer"
	"github.com/jrife/osdplacement/storage/kv/plugins"
	"github.com/jrife/osdplacement/storage/kv/plugins/memory"
	"github.com/jrife/osdplacement/storage/snapshot"
)

type recordingExecutor struct {
	commands []string
	fail     bool
}

func (executor *recordingExecutor) Run(ctx context.Context, cmd string) command.Result {
	executor.commands = append(executor.commands, cmd)

	if executor.fail {
		return command.Result{Command: cmd, ExitCode: 1}
	}

	return command.Result{Command: cmd}
}

func (executor *recordingExecutor) RunAll(ctx context.Context, commands []string, concurrency int) []command.Result {
	failures := []command.Result{}

	for _, cmd := range commands {
		if result := executor.Run(ctx, cmd); result.Failed() {
			failures = append(failures, result)
		}
	}

	return failures
}

type fakeRealizer struct {
	strategies []realizer.Strategy
}

func (r *fakeRealizer) Realize(ctx context.Context, strategy realizer.Strategy) error {
	r.strategies = append(r.strategies, strategy)

	return nil
}

func newStore(t *testing.T) *snapshot.Store {
	t.Helper()

	rootStore, err := plugins.Plugin(memory.DriverName).NewTempRootStore()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	t.Cleanup(func() { rootStore.Delete() })

	store, err := snapshot.New(rootStore.Store([]byte("placement")))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return store
}

func newManager(t *testing.T, store *snapshot.Store) *manager.Manager {
	t.Helper()

	m, err := manager.Open(placement.New(placement.WithSeed(1)), store)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return m
}

func folderSizes(distribution *placement.Distribution) map[string]float64 {
	sizes := map[string]float64{}

	for _, folderID := range distribution.FolderIDs() {
		sizes[folderID], _ = distribution.FolderSize(folderID)
	}

	return sizes
}

func assignedOSDs(distribution *placement.Distribution) map[string]string {
	osds := map[string]string{}

	for _, folderID := range distribution.FolderIDs() {
		osds[folderID], _ = distribution.AssignedOSD(folderID)
	}

	return osds
}

func reload(t *testing.T, store *snapshot.Store) *placement.Distribution {
	t.Helper()

	return newManager(t, store).Distribution()
}

func TestOpen(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store)

	if len(m.Distribution().OSDList()) != 0 {
		t.Fatalf("expected an empty distribution")
	}

	capacities := map[string]float64{"osd-a": 100, "osd-b": 50}

	if err := m.SyncOSDs([]string{"osd-a", "osd-b"}, capacities, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := m.AddFolders(context.Background(), []placement.Folder{{ID: "vol/a/1", Size: 30}, {ID: "vol/a/2", Size: 20}}, placement.LPT); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	restored := reload(t, store)

	diff := cmp.Diff([]string{"osd-a", "osd-b"}, restored.OSDList())

	if diff != "" {
		t.Fatalf(diff)
	}

	diff = cmp.Diff(assignedOSDs(m.Distribution()), assignedOSDs(restored))

	if diff != "" {
		t.Fatalf(diff)
	}

	if capacity := restored.TotalCapacity(); capacity != 150 {
		t.Fatalf("expected total capacity 150, got %v", capacity)
	}

}

func TestSyncOSDsMismatch(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store)

	if err := m.SyncOSDs([]string{"osd-a", "osd-b"}, map[string]float64{"osd-a": 100, "osd-b": 50}, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	testCases := map[string]struct {
		uuids      []string
		capacities map[string]float64
		bandwidths map[string]float64
	}{
		"capacities-miss-new-osd": {
			uuids:      []string{"osd-a", "osd-c"},
			capacities: map[string]float64{"osd-a": 1, "osd-b": 1},
		},
		"bandwidths-miss-new-osd": {
			uuids:      []string{"osd-c"},
			capacities: map[string]float64{"osd-a": 1, "osd-b": 1, "osd-c": 1},
			bandwidths: map[string]float64{"osd-a": 1, "osd-b": 1},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if err := m.SyncOSDs(testCase.uuids, testCase.capacities, testCase.bandwidths); !errors.Is(err, placement.ErrConfigurationMismatch) {
				t.Fatalf("expected ErrConfigurationMismatch, got %#v", err)
			}

			diff := cmp.Diff([]string{"osd-a", "osd-b"}, m.Distribution().OSDList())

			if diff != "" {
				t.Fatalf(diff)
			}

			if capacity := m.Distribution().TotalCapacity(); capacity != 150 {
				t.Fatalf("expected total capacity 150, got %v", capacity)
			}
		})
	}
}

func TestCreateEmptyFolders(t *testing.T) {
	testCases := map[string]struct {
		existing []placement.Folder
		expected float64
	}{
		"empty-distribution": {
			expected: 1,
		},
		"average-rounded-down": {
			existing: []placement.Folder{{ID: "x", Size: 2}, {ID: "y", Size: 5}},
			expected: 3,
		},
		"small-average": {
			existing: []placement.Folder{{ID: "x", Size: 0.5}},
			expected: 1,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			m := newManager(t, newStore(t))

			if err := m.SyncOSDs([]string{"osd-a", "osd-b"}, nil, nil); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if _, err := m.AddFolders(context.Background(), testCase.existing, placement.LPT); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			assignments, err := m.CreateEmptyFolders(context.Background(), []string{"new-1", "new-2"}, placement.LPT)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if len(assignments) != 2 {
				t.Fatalf("expected 2 assignments, got %d", len(assignments))
			}

			for _, folderID := range []string{"new-1", "new-2"} {
				if size, _ := m.Distribution().FolderSize(folderID); size != testCase.expected {
					t.Fatalf("expected %s to have size %v, got %v", folderID, testCase.expected, size)
				}
			}
		})
	}
}

func TestImportFolders(t *testing.T) {
	m := newManager(t, newStore(t))

	if err := m.SyncOSDs([]string{"osd-a", "osd-b"}, nil, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := m.AddFolders(context.Background(), []placement.Folder{{ID: "vol/a/1", Size: 4}}, placement.LPT); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	assignments, err := m.ImportFolders(context.Background(), map[string]float64{
		"vol/a/1": 100,
		"vol/a/2": 0,
		"vol/b/1": 9,
	}, placement.LPT)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}

	diff := cmp.Diff(map[string]float64{"vol/a/1": 4, "vol/a/2": 1, "vol/b/1": 9}, folderSizes(m.Distribution()))

	if diff != "" {
		t.Fatalf(diff)
	}
}

func TestUpdateFolderSizes(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store)

	if err := m.SyncOSDs([]string{"osd-a"}, map[string]float64{"osd-a": 10}, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := m.AddFolders(context.Background(), []placement.Folder{{ID: "x", Size: 2}, {ID: "y", Size: 3}}, placement.LPT); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := m.UpdateFolderSizes(map[string]float64{"x": 4, "y": 6, "untracked": 1}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	diff := cmp.Diff(map[string]float64{"x": 4, "y": 6}, folderSizes(reload(t, store)))

	if diff != "" {
		t.Fatalf(diff)
	}

	if err := m.UpdateFolderSizes(map[string]float64{"x": 1, "y": 20}); !errors.Is(err, placement.ErrInfeasiblePlacement) {
		t.Fatalf("expected ErrInfeasiblePlacement, got %#v", err)
	}

	diff = cmp.Diff(map[string]float64{"x": 4, "y": 6}, folderSizes(m.Distribution()))

	if diff != "" {
		t.Fatalf(diff)
	}
}

func TestRemoveFolder(t *testing.T) {
	store := newStore(t)
	executor := &recordingExecutor{}
	m, err := manager.Open(placement.New(placement.WithSeed(1)), store, manager.WithSelectionPolicy(executor, xtfsutil.NewRenderer(), "/mnt/vol"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := m.SyncOSDs([]string{"osd-a"}, nil, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := m.AddFolders(context.Background(), []placement.Folder{{ID: "vol/x", Size: 2}}, placement.LPT); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := m.RemoveFolder(context.Background(), "vol/y"); !errors.Is(err, placement.ErrUnknownFolder) {
		t.Fatalf("expected ErrUnknownFolder, got %#v", err)
	}

	if err := m.RemoveFolder(context.Background(), "vol/x"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if reload(t, store).NumFolders() != 0 {
		t.Fatalf("expected the removal to be saved")
	}

	diff := cmp.Diff([]string{
		"xtfsutil --set-osp prefix /mnt/vol",
		"xtfsutil --set-pattr 1004.filenamePrefix --value 'add vol/x osd-a' /mnt/vol",
		"xtfsutil --set-pattr 1004.filenamePrefix --value 'remove vol/x' /mnt/vol",
	}, executor.commands)

	if diff != "" {
		t.Fatalf(diff)
	}
}

func TestRebalance(t *testing.T) {
	store := newStore(t)
	executor := &recordingExecutor{}
	m, err := manager.Open(placement.New(placement.WithSeed(3)), store, manager.WithSelectionPolicy(executor, xtfsutil.NewRenderer(), "/mnt/vol"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := m.SyncOSDs([]string{"osd-a", "osd-b"}, nil, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	folders := []placement.Folder{{ID: "w", Size: 1}, {ID: "x", Size: 1}, {ID: "y", Size: 1}, {ID: "z", Size: 1}}

	if _, err := m.AddFolders(context.Background(), folders, placement.TotallyRandom); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	executor.commands = nil
	movements, err := m.Rebalance(context.Background(), placement.AlgorithmLPT)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	for _, ledger := range m.Distribution().OSDs() {
		if ledger.Load() != 2 {
			t.Fatalf("expected a balanced distribution, got %s", m.Distribution().String())
		}
	}

	diff := cmp.Diff(assignedOSDs(m.Distribution()), assignedOSDs(reload(t, store)))

	if diff != "" {
		t.Fatalf(diff)
	}

	if len(movements) == 0 {
		if len(executor.commands) != 0 {
			t.Fatalf("expected no commands without movements, got %v", executor.commands)
		}

		return
	}

	if len(executor.commands) != len(movements)+1 {
		t.Fatalf("expected %d commands, got %v", len(movements)+1, executor.commands)
	}
}

func TestSelectionPolicyFailure(t *testing.T) {
	executor := &recordingExecutor{fail: true}
	m, err := manager.Open(placement.New(placement.WithSeed(1)), newStore(t), manager.WithSelectionPolicy(executor, xtfsutil.NewRenderer(), "/mnt/vol"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := m.SyncOSDs([]string{"osd-a"}, nil, nil); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := m.AddFolders(context.Background(), []placement.Folder{{ID: "x", Size: 1}}, placement.LPT); !errors.Is(err, manager.ErrApplyPolicy) {
		t.Fatalf("expected ErrApplyPolicy, got %#v", err)
	}
}

func TestRealize(t *testing.T) {
	store := newStore(t)

	if err := newManager(t, store).Realize(context.Background(), realizer.Random); !errors.Is(err, manager.ErrNoRealizer) {
		t.Fatalf("expected ErrNoRealizer, got %#v", err)
	}

	r := &fakeRealizer{}
	m := manager.New(placement.New(), store, manager.WithRealizer(r), manager.WithName("other"))

	if err := m.Realize(context.Background(), realizer.Random); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	diff := cmp.Diff([]realizer.Strategy{realizer.Random}, r.strategies)

	if diff != "" {
		t.Fatalf(diff)
	}
}
