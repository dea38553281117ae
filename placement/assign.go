package placement

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/jrife/osdplacement/placement/osd"
	"go.uber.org/zap"
)

// AssignmentMode selects how new folders are assigned to OSDs
type AssignmentMode int

const (
	// LPT assigns the largest folders first, each to the feasible OSD
	// with the smallest resulting processing time.
	LPT AssignmentMode = iota
	// TotallyRandom picks a uniformly random OSD for each folder.
	TotallyRandom
	// RandomCapacityAware picks a uniformly random OSD among those with
	// enough free capacity for the folder.
	RandomCapacityAware
	// RandomSizeOblivious treats every new folder as having the average
	// folder size and assigns the shuffled folders with LPT, which gives
	// every OSD nearly the same number of folders.
	RandomSizeOblivious
)

var assignmentModeNames = map[AssignmentMode]string{
	LPT:                 "lpt",
	TotallyRandom:       "totally_random",
	RandomCapacityAware: "random_capacity_aware",
	RandomSizeOblivious: "random_size_oblivious",
}

func (mode AssignmentMode) String() string {
	if name, ok := assignmentModeNames[mode]; ok {
		return name
	}

	return fmt.Sprintf("AssignmentMode(%d)", int(mode))
}

// ParseAssignmentMode returns the mode with the given name.
// An empty name selects LPT.
func ParseAssignmentMode(name string) (AssignmentMode, error) {
	if name == "" {
		return LPT, nil
	}

	for mode, modeName := range assignmentModeNames {
		if strings.EqualFold(name, modeName) {
			return mode, nil
		}
	}

	return 0, fmt.Errorf("%s: %w", name, ErrUnknownMode)
}

// AddFolders adds folders to the distribution. A folder that is already
// assigned to an OSD stays there and its size is added to the size already
// recorded. New folders are assigned according to mode, and an assignment
// is returned for each of them in the order they were placed. Several
// entries for the same new folder id are merged by adding their sizes.
//
// If any folder cannot be placed the distribution is left unchanged and
// an error wrapping ErrInfeasiblePlacement is returned.
func (distribution *Distribution) AddFolders(folders []Folder, mode AssignmentMode) ([]Assignment, error) {
	var assignments []Assignment

	err := distribution.update(func(work *Distribution) error {
		var err error

		assignments, err = work.addFolders(folders, mode)

		return err
	})

	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (distribution *Distribution) addFolders(folders []Folder, mode AssignmentMode) ([]Assignment, error) {
	newFolders := linkedhashmap.New()

	for _, folder := range folders {
		if math.IsNaN(folder.Size) || math.IsInf(folder.Size, 0) || folder.Size < 0 {
			return nil, fmt.Errorf("folder %s with size %v: %w", folder.ID, folder.Size, ErrInvalidFolder)
		}

		if ledger, ok := distribution.ContainingOSD(folder.ID); ok {
			if ledger.FreeCapacity() < folder.Size {
				return nil, fmt.Errorf("folder %s grows by %v beyond the free capacity of osd %s: %w", folder.ID, folder.Size, ledger.UUID(), ErrInfeasiblePlacement)
			}

			ledger.AddFolder(folder.ID, folder.Size)

			continue
		}

		if previous, ok := newFolders.Get(folder.ID); ok {
			merged := previous.(Folder)
			merged.Size += folder.Size
			newFolders.Put(folder.ID, merged)
		} else {
			newFolders.Put(folder.ID, folder)
		}
	}

	pending := make([]Folder, 0, newFolders.Size())

	for _, value := range newFolders.Values() {
		pending = append(pending, value.(Folder))
	}

	distribution.logger.Debug("adding folders", zap.Int("new", len(pending)), zap.Int("total", len(folders)), zap.Stringer("mode", mode))

	switch mode {
	case LPT:
		return distribution.lpt(pending)
	case TotallyRandom:
		return distribution.totallyRandom(pending)
	case RandomCapacityAware:
		return distribution.randomCapacityAware(pending)
	case RandomSizeOblivious:
		return distribution.randomSizeOblivious(pending)
	default:
		return nil, fmt.Errorf("%v: %w", mode, ErrUnknownMode)
	}
}

func (distribution *Distribution) totallyRandom(folders []Folder) ([]Assignment, error) {
	assignments := make([]Assignment, 0, len(folders))
	ledgers := distribution.OSDs()

	for _, folder := range folders {
		if len(ledgers) == 0 {
			return nil, fmt.Errorf("no osd for folder %s: %w", folder.ID, ErrInfeasiblePlacement)
		}

		ledger := ledgers[distribution.rand.Intn(len(ledgers))]

		if ledger.FreeCapacity() < folder.Size {
			return nil, fmt.Errorf("folder %s of size %v does not fit on randomly chosen osd %s: %w", folder.ID, folder.Size, ledger.UUID(), ErrInfeasiblePlacement)
		}

		ledger.AddFolder(folder.ID, folder.Size)
		assignments = append(assignments, Assignment{FolderID: folder.ID, OSD: ledger.UUID()})
	}

	return assignments, nil
}

func (distribution *Distribution) randomCapacityAware(folders []Folder) ([]Assignment, error) {
	assignments := make([]Assignment, 0, len(folders))

	for _, folder := range folders {
		suitable, err := distribution.SuitableOSDs(folder.Size)

		if err != nil {
			return nil, fmt.Errorf("folder %s: %w", folder.ID, err)
		}

		ledger := suitable[distribution.rand.Intn(len(suitable))]
		ledger.AddFolder(folder.ID, folder.Size)
		assignments = append(assignments, Assignment{FolderID: folder.ID, OSD: ledger.UUID()})
	}

	return assignments, nil
}

func (distribution *Distribution) randomSizeOblivious(folders []Folder) ([]Assignment, error) {
	averageFolderSize := math.Max(distribution.AverageFolderSize(), 1)
	uniform := make([]Folder, len(folders))

	for i, folder := range folders {
		uniform[i] = Folder{ID: folder.ID, Size: averageFolderSize, Origin: folder.Origin}
	}

	distribution.rand.Shuffle(len(uniform), func(i, j int) {
		uniform[i], uniform[j] = uniform[j], uniform[i]
	})

	return distribution.lpt(uniform)
}

// lpt assigns folders in order of descending size. Folders of equal
// size keep their relative order.
func (distribution *Distribution) lpt(folders []Folder) ([]Assignment, error) {
	sorted := make([]Folder, len(folders))
	copy(sorted, folders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size > sorted[j].Size
	})

	assignments := make([]Assignment, 0, len(sorted))

	for _, folder := range sorted {
		ledger, _, err := distribution.lptOSD(folder.Size)

		if err != nil {
			return nil, fmt.Errorf("folder %s: %w", folder.ID, err)
		}

		ledger.AddFolder(folder.ID, folder.Size)
		assignments = append(assignments, Assignment{FolderID: folder.ID, OSD: ledger.UUID()})
	}

	return assignments, nil
}

// SuitableOSDs lists the OSDs with at least size free capacity in
// insertion order. It returns an error wrapping ErrInfeasiblePlacement
// if there is none.
func (distribution *Distribution) SuitableOSDs(size float64) ([]*osd.OSD, error) {
	suitable := []*osd.OSD{}

	for _, ledger := range distribution.OSDs() {
		if ledger.Capacity()-ledger.Load()-size >= 0 {
			suitable = append(suitable, ledger)
		}
	}

	if len(suitable) == 0 {
		distribution.logger.Warn(
			"no suitable osd found",
			zap.Float64("size", size),
			zap.Float64("total_capacity", distribution.TotalCapacity()),
			zap.Float64("total_folder_size", distribution.TotalFolderSize()),
		)

		return nil, fmt.Errorf("no osd has %v free capacity: %w", size, ErrInfeasiblePlacement)
	}

	return suitable, nil
}

// lptOSD returns the suitable OSD with the smallest processing time after
// adding size to it, together with that processing time. The first
// minimal OSD wins a tie.
func (distribution *Distribution) lptOSD(size float64) (*osd.OSD, float64, error) {
	suitable, err := distribution.SuitableOSDs(size)

	if err != nil {
		return nil, 0, err
	}

	var best *osd.OSD
	bestTime := 0.0

	for _, ledger := range suitable {
		processingTime := (ledger.Load() + size) / ledger.Bandwidth()

		if best == nil || processingTime < bestTime {
			best, bestTime = ledger, processingTime
		}
	}

	return best, bestTime, nil
}
