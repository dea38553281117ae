package placement

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jrife/osdplacement/placement/matching"
	"github.com/jrife/osdplacement/placement/osd"
	"go.uber.org/zap"
)

// Algorithm selects how Rebalance reassigns folders
type Algorithm int

const (
	// AlgorithmLPT evicts folders from overloaded OSDs and reassigns
	// them with LPT.
	AlgorithmLPT Algorithm = iota
	// AlgorithmOneFolder moves one folder at a time away from the
	// bottleneck OSD.
	AlgorithmOneFolder
	// AlgorithmTwoStepOptimal computes a new assignment from scratch and
	// maps it onto the OSDs so that as little data as possible moves.
	AlgorithmTwoStepOptimal
	// AlgorithmTwoStepRandom computes a new assignment from scratch and
	// keeps the OSD identities it was computed with.
	AlgorithmTwoStepRandom
)

var algorithmNames = map[Algorithm]string{
	AlgorithmLPT:            "lpt",
	AlgorithmOneFolder:      "rebalance_one",
	AlgorithmTwoStepOptimal: "two_step_opt",
	AlgorithmTwoStepRandom:  "two_step_rnd",
}

func (algorithm Algorithm) String() string {
	if name, ok := algorithmNames[algorithm]; ok {
		return name
	}

	return fmt.Sprintf("Algorithm(%d)", int(algorithm))
}

// ParseAlgorithm returns the algorithm with the given name.
// An empty name selects AlgorithmLPT.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return AlgorithmLPT, nil
	}

	for algorithm, algorithmName := range algorithmNames {
		if strings.EqualFold(name, algorithmName) {
			return algorithm, nil
		}
	}

	return 0, fmt.Errorf("%s: %w", name, ErrUnknownAlgorithm)
}

// Rebalance runs the given algorithm and returns the resulting movements
func (distribution *Distribution) Rebalance(algorithm Algorithm) (Movements, error) {
	switch algorithm {
	case AlgorithmLPT:
		return distribution.RebalanceLPT(1)
	case AlgorithmOneFolder:
		return distribution.RebalanceOneFolder(), nil
	case AlgorithmTwoStepOptimal:
		return distribution.RebalanceTwoStepsOptimalMatching()
	case AlgorithmTwoStepRandom:
		return distribution.RebalanceTwoStepsRandomMatching()
	default:
		return nil, fmt.Errorf("%v: %w", algorithm, ErrUnknownAlgorithm)
	}
}

// RebalanceLPT evicts the smallest folders of every OSD while its processing
// time exceeds factor times its processing time in the relaxed assignment,
// then assigns all evicted folders with LPT. A factor of 0 evicts every
// folder of non-zero size and so recomputes the whole assignment.
//
// On error the distribution is left unchanged.
func (distribution *Distribution) RebalanceLPT(factor float64) (Movements, error) {
	var movements Movements

	err := distribution.update(func(work *Distribution) error {
		var err error

		movements, err = work.rebalanceLPT(factor)

		return err
	})

	if err != nil {
		return nil, err
	}

	return movements, nil
}

func (distribution *Distribution) rebalanceLPT(factor float64) (Movements, error) {
	relaxed, err := distribution.RelaxedAssignment()

	if err != nil {
		return nil, err
	}

	evicted := []Folder{}
	origins := map[string]string{}

	for _, ledger := range distribution.OSDs() {
		limit := relaxed.ProcessingTime(ledger.UUID()) * factor

		for ledger.ProcessingTime() > limit {
			id, size, ok := ledger.SmallestFolder()

			if !ok {
				break
			}

			evicted = append(evicted, Folder{ID: id, Size: size})
			origins[id] = ledger.UUID()
			ledger.RemoveFolder(id)
		}
	}

	assignments, err := distribution.lpt(evicted)

	if err != nil {
		return nil, err
	}

	movements := Movements{}

	for _, assignment := range assignments {
		movements.record(assignment.FolderID, origins[assignment.FolderID], assignment.OSD)
	}

	distribution.logger.Debug("rebalanced with lpt", zap.Float64("factor", factor), zap.Int("evicted", len(evicted)), zap.Int("moved", len(movements)))

	return movements, nil
}

// RebalanceOneFolder improves the distribution by local search. As long as
// the smallest folder of the OSD with the largest processing time can be
// moved to an OSD where it finishes strictly earlier than that processing
// time, it is moved there. The makespan never increases but the result is
// not necessarily optimal since only the smallest folder of the bottleneck
// is considered. A folder of size 0 is moved too, which exposes the next
// smallest folder of the bottleneck.
func (distribution *Distribution) RebalanceOneFolder() Movements {
	movements := Movements{}

	for {
		origin, maximumProcessingTime := distribution.MaximumProcessingTime()

		if origin == nil {
			break
		}

		id, size, ok := origin.SmallestFolder()

		if !ok {
			break
		}

		target, processingTime, err := distribution.lptOSD(size)

		if err != nil || processingTime >= maximumProcessingTime {
			break
		}

		origin.RemoveFolder(id)
		target.AddFolder(id, size)
		movements.record(id, origin.UUID(), target.UUID())
	}

	return movements
}

// virtual returns an independent copy of the distribution
// with every folder reassigned from scratch.
func (distribution *Distribution) virtual() (*Distribution, error) {
	virtual := distribution.clone()

	if _, err := virtual.rebalanceLPT(0); err != nil {
		return nil, err
	}

	return virtual, nil
}

// RebalanceTwoStepsOptimalMatching computes a new assignment from scratch
// with LPT and then decides which physical OSD takes over the folders of
// which OSD of the new assignment. The pairing minimizes the total size of
// folders an OSD has to receive and never gives an OSD more folders than
// its capacity allows.
//
// On error the distribution is left unchanged.
func (distribution *Distribution) RebalanceTwoStepsOptimalMatching() (Movements, error) {
	virtual, err := distribution.virtual()

	if err != nil {
		return nil, err
	}

	current := sortByUUID(distribution.OSDs())
	target := sortByUUID(virtual.OSDs())
	cost := make([][]float64, len(current))

	for i, physical := range current {
		cost[i] = make([]float64, len(target))

		for j, logical := range target {
			if logical.Load() > physical.Capacity() {
				cost[i][j] = matching.Forbidden()

				continue
			}

			for _, entry := range logical.Folders() {
				if !physical.ContainsFolder(entry.ID) {
					cost[i][j] += entry.Size
				}
			}
		}
	}

	result, err := matching.MinCostPerfectMatching(cost)

	if err != nil {
		if errors.Is(err, matching.ErrNoPerfectMatching) {
			return nil, fmt.Errorf("no osd pairing respects all capacities: %w", ErrInfeasiblePlacement)
		}

		return nil, err
	}

	pairs := make([][2]*osd.OSD, len(current))

	for i, j := range result.Pairs {
		pairs[i] = [2]*osd.OSD{current[i], target[j]}
	}

	movements := distribution.adopt(pairs)

	distribution.logger.Debug("rebalanced with optimal matching", zap.Float64("moved_size", result.Cost), zap.Int("moved", len(movements)))

	return movements, nil
}

// RebalanceTwoStepsRandomMatching computes a new assignment from scratch
// with LPT and applies it as is. It serves as a baseline for
// RebalanceTwoStepsOptimalMatching.
//
// On error the distribution is left unchanged.
func (distribution *Distribution) RebalanceTwoStepsRandomMatching() (Movements, error) {
	virtual, err := distribution.virtual()

	if err != nil {
		return nil, err
	}

	pairs := [][2]*osd.OSD{}

	for _, logical := range virtual.OSDs() {
		physical, _ := distribution.OSD(logical.UUID())
		pairs = append(pairs, [2]*osd.OSD{physical, logical})
	}

	return distribution.adopt(pairs), nil
}

// adopt lets each physical OSD take over the folders of its logical
// partner. All movements are recorded before any OSD changes.
func (distribution *Distribution) adopt(pairs [][2]*osd.OSD) Movements {
	movements := Movements{}

	for _, pair := range pairs {
		physical, logical := pair[0], pair[1]

		for _, entry := range logical.Folders() {
			if physical.ContainsFolder(entry.ID) {
				continue
			}

			origin, _ := distribution.AssignedOSD(entry.ID)
			movements.record(entry.ID, origin, physical.UUID())
		}
	}

	for _, pair := range pairs {
		pair[0].ReplaceFolders(pair[1])
	}

	return movements
}

func sortByUUID(ledgers []*osd.OSD) []*osd.OSD {
	sort.Slice(ledgers, func(i, j int) bool {
		return ledgers[i].UUID() < ledgers[j].UUID()
	})

	return ledgers
}
