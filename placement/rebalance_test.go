package placement_test

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/placement/osd"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// checkMovements verifies that every movement starts where the folder was
// before and ends where it is now, and that no folder moved unreported.
func checkMovements(t *testing.T, before map[string]map[string]float64, after *placement.Distribution, movements placement.Movements) {
	t.Helper()

	origins := map[string]string{}

	for uuid, folders := range before {
		for id := range folders {
			origins[id] = uuid
		}
	}

	for id, origin := range origins {
		target, ok := after.AssignedOSD(id)

		if !ok {
			t.Fatalf("folder %s got lost", id)
		}

		movement, moved := movements[id]

		switch {
		case target == origin && moved:
			t.Fatalf("folder %s did not move but has movement %v", id, movement)
		case target != origin && !moved:
			t.Fatalf("folder %s moved from %s to %s without a movement", id, origin, target)
		case moved && (movement.Origin != origin || movement.Target != target):
			t.Fatalf("folder %s moved from %s to %s but has movement %v", id, origin, target, movement)
		}
	}

	if after.NumFolders() != len(origins) {
		t.Fatalf("expected %d folders, got %d", len(origins), after.NumFolders())
	}
}

func TestRebalanceLPT(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			distribution := newDistribution(4, 1, seed)

			if err := distribution.SetOSDCapacities(osdValues(4, []float64{10})); err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(seed)), 8, []float64{1}), placement.RandomCapacityAware); err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			before := snapshot(distribution)
			movements, err := distribution.RebalanceLPT(1)

			if err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			minimum, maximum := minMax(loads(distribution))

			if minimum != maximum {
				t.Fatalf("expected a balanced distribution, got %v", loads(distribution))
			}

			checkMovements(t, before, distribution, movements)
		})
	}
}

func TestRebalanceLPTFactorZeroRecomputes(t *testing.T) {
	distribution := newDistribution(3, 1, 0)

	if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(0)), 6, []float64{1, 2, 5}), placement.TotallyRandom); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	fresh := newDistribution(3, 1, 0)
	folders := []placement.Folder{}

	for _, ledger := range distribution.OSDs() {
		for _, entry := range ledger.Folders() {
			folders = append(folders, placement.Folder{ID: entry.ID, Size: entry.Size})
		}
	}

	if _, err := fresh.AddFolders(folders, placement.LPT); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	if _, err := distribution.RebalanceLPT(0); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	diff := cmp.Diff(loads(fresh), loads(distribution))

	if diff != "" {
		t.Fatalf(diff)
	}
}

func TestRebalanceLPTInfeasibleLeavesDistributionUnchanged(t *testing.T) {
	distribution := newDistribution(2, 1, 0)

	if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(0)), 10, []float64{1}), placement.TotallyRandom); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	if err := distribution.SetOSDCapacities(osdValues(2, []float64{3})); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	before := snapshot(distribution)

	if _, err := distribution.RebalanceLPT(1); !errors.Is(err, placement.ErrInfeasiblePlacement) {
		t.Fatalf("expected ErrInfeasiblePlacement, got %#v", err)
	}

	diff := cmp.Diff(before, snapshot(distribution))

	if diff != "" {
		t.Fatalf(diff)
	}
}

func TestRebalanceOneFolder(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			distribution := newDistribution(4, 1, seed)

			if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(seed)), 8, []float64{1}), placement.TotallyRandom); err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			before := snapshot(distribution)
			movements := distribution.RebalanceOneFolder()

			minimum, maximum := minMax(loads(distribution))

			if minimum != 2 || maximum != 2 {
				t.Fatalf("expected a balanced distribution, got %v", loads(distribution))
			}

			checkMovements(t, before, distribution, movements)
		})
	}
}

func TestRebalanceOneFolderMovesEmptyFolders(t *testing.T) {
	loaded := osd.New("osd-a")
	loaded.AddFolder("empty", 0)
	loaded.AddFolder("small", 4)
	loaded.AddFolder("large", 6)

	distribution := placement.New(placement.WithSeed(0))
	distribution.PutOSD(loaded)
	distribution.AddOSD("osd-b")

	before := snapshot(distribution)
	movements := distribution.RebalanceOneFolder()

	diff := cmp.Diff(placement.Movements{
		"empty": {Origin: "osd-a", Target: "osd-b"},
		"small": {Origin: "osd-a", Target: "osd-b"},
	}, movements)

	if diff != "" {
		t.Fatalf(diff)
	}

	if _, makespan := distribution.MaximumProcessingTime(); makespan != 6 {
		t.Fatalf("expected makespan 6, got %v", makespan)
	}

	checkMovements(t, before, distribution, movements)
}

func TestRebalanceOneFolderNeverIncreasesMakespan(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("the makespan does not increase", prop.ForAll(
		func(c capacityCase) bool {
			distribution := newDistribution(len(c.capacities), 1, c.seed)
			bandwidths := map[string]float64{}

			for i, capacity := range c.capacities {
				bandwidths[osdID(i)] = capacity + 1
			}

			if err := distribution.SetOSDBandwidths(bandwidths); err != nil {
				return false
			}

			folders := []placement.Folder{}

			for i, size := range c.sizes {
				folders = append(folders, placement.Folder{ID: fmt.Sprintf("folder_%d", i), Size: size})
			}

			if _, err := distribution.AddFolders(folders, placement.TotallyRandom); err != nil {
				return false
			}

			_, before := distribution.MaximumProcessingTime()
			distribution.RebalanceOneFolder()
			_, after := distribution.MaximumProcessingTime()

			return after <= before && distribution.NumFolders() == len(folders)
		},
		genCapacityCase(),
	))

	properties.TestingRun(t)
}

func TestRebalanceTwoStepsOptimalMatching(t *testing.T) {
	testCases := map[string]struct {
		folderSizes []float64
		load        float64
	}{
		"unit folders": {
			folderSizes: []float64{1},
			load:        3,
		},
		"two folder sizes": {
			folderSizes: []float64{1, 2},
			load:        9,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			for seed := int64(0); seed < 10; seed++ {
				distribution := newDistribution(4, 1, seed)

				if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(seed)), 12, testCase.folderSizes), placement.TotallyRandom); err != nil {
					t.Fatalf("expected no error, got %#v", err)
				}

				before := snapshot(distribution)
				movements, err := distribution.RebalanceTwoStepsOptimalMatching()

				if err != nil {
					t.Fatalf("expected no error, got %#v", err)
				}

				minimum, maximum := minMax(loads(distribution))

				if minimum != testCase.load || maximum != testCase.load {
					t.Fatalf("expected every osd to hold %v, got %v", testCase.load, loads(distribution))
				}

				if sum(loads(distribution)) != 4*testCase.load {
					t.Fatalf("expected total %v, got %v", 4*testCase.load, sum(loads(distribution)))
				}

				checkMovements(t, before, distribution, movements)
			}
		})
	}
}

// permutations returns every ordering of 0..n-1
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}

	result := [][]int{}

	for _, permutation := range permutations(n - 1) {
		for position := 0; position <= len(permutation); position++ {
			next := append(append(append([]int{}, permutation[:position]...), n-1), permutation[position:]...)
			result = append(result, next)
		}
	}

	return result
}

func TestRebalanceTwoStepsOptimalMatchingMinimizesMovedData(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no pairing of osds moves less data", prop.ForAll(
		func(seed int64, numFolders int) bool {
			distribution := newDistribution(4, 1, seed)

			if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(seed)), numFolders, []float64{1, 3, 4}), placement.TotallyRandom); err != nil {
				return false
			}

			before := snapshot(distribution)
			optimal := distribution.Clone()
			movements, err := optimal.RebalanceTwoStepsOptimalMatching()

			if err != nil {
				return false
			}

			moved := movements.TotalSize(optimal)

			// the identity pairing applies the recomputed assignment as is
			identity := distribution.Clone()

			if _, err := identity.RebalanceTwoStepsRandomMatching(); err != nil {
				return false
			}

			uuids := osdIDs(4, 1)
			best := math.Inf(1)

			for _, permutation := range permutations(len(uuids)) {
				total := 0.0

				for j, uuid := range uuids {
					logical, _ := identity.OSD(uuid)
					physical := uuids[permutation[j]]

					for _, entry := range logical.Folders() {
						if _, ok := before[physical][entry.ID]; !ok {
							total += entry.Size
						}
					}
				}

				best = math.Min(best, total)
			}

			return moved == best
		},
		gen.Int64(),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestRebalanceTwoStepsRandomMatching(t *testing.T) {
	distribution := newDistribution(4, 1, 3)

	if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(3)), 12, []float64{1}), placement.TotallyRandom); err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	before := snapshot(distribution)
	movements, err := distribution.RebalanceTwoStepsRandomMatching()

	if err != nil {
		t.Fatalf("expected no error, got %#v", err)
	}

	minimum, maximum := minMax(loads(distribution))

	if minimum != 3 || maximum != 3 {
		t.Fatalf("expected every osd to hold 3, got %v", loads(distribution))
	}

	checkMovements(t, before, distribution, movements)
}

func TestRebalance(t *testing.T) {
	testCases := map[string]struct {
		algorithm string
		err       error
	}{
		"default":           {algorithm: ""},
		"lpt":               {algorithm: "lpt"},
		"rebalance one":     {algorithm: "rebalance_one"},
		"optimal matching":  {algorithm: "two_step_opt"},
		"random matching":   {algorithm: "two_step_rnd"},
		"unknown algorithm": {algorithm: "simulated_annealing", err: placement.ErrUnknownAlgorithm},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			algorithm, err := placement.ParseAlgorithm(testCase.algorithm)

			if !errors.Is(err, testCase.err) {
				t.Fatalf("expected error %v, got %v", testCase.err, err)
			}

			if err != nil {
				return
			}

			if algorithm.String() != testCase.algorithm && testCase.algorithm != "" {
				t.Fatalf("expected algorithm %s, got %s", testCase.algorithm, algorithm)
			}

			distribution := newDistribution(4, 1, 1)

			if _, err := distribution.AddFolders(testFolders(rand.New(rand.NewSource(1)), 8, []float64{1}), placement.TotallyRandom); err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			before := snapshot(distribution)
			movements, err := distribution.Rebalance(algorithm)

			if err != nil {
				t.Fatalf("expected no error, got %#v", err)
			}

			minimum, maximum := minMax(loads(distribution))

			if minimum != 2 || maximum != 2 {
				t.Fatalf("expected a balanced distribution, got %v", loads(distribution))
			}

			checkMovements(t, before, distribution, movements)
		})
	}
}
