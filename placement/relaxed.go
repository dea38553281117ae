package placement

import (
	"fmt"
	"math"
)

// relaxedTolerance is the relative volume below which the
// water filling considers everything placed.
const relaxedTolerance = 1e-9

// RelaxedShare is the volume one OSD receives in a relaxed assignment
type RelaxedShare struct {
	OSD       string
	Load      float64
	Bandwidth float64
}

// ProcessingTime returns the time the OSD needs for its share
func (share RelaxedShare) ProcessingTime() float64 {
	return share.Load / share.Bandwidth
}

// RelaxedAssignment is an idealized assignment in which folders can be
// split arbitrarily between OSDs. Its makespan is a lower bound for the
// makespan of every real assignment of the same volume to the same OSDs.
type RelaxedAssignment struct {
	shares []RelaxedShare
	index  map[string]int
}

// Shares lists the share of every OSD in insertion order
func (relaxed *RelaxedAssignment) Shares() []RelaxedShare {
	shares := make([]RelaxedShare, len(relaxed.shares))
	copy(shares, relaxed.shares)

	return shares
}

// ProcessingTime returns the processing time of an OSD's share,
// or 0 for an OSD that is not part of the assignment.
func (relaxed *RelaxedAssignment) ProcessingTime(uuid string) float64 {
	i, ok := relaxed.index[uuid]

	if !ok {
		return 0
	}

	return relaxed.shares[i].ProcessingTime()
}

// MaximumProcessingTime returns the makespan of the relaxed assignment
func (relaxed *RelaxedAssignment) MaximumProcessingTime() float64 {
	maximum := 0.0

	for _, share := range relaxed.shares {
		maximum = math.Max(maximum, share.ProcessingTime())
	}

	return maximum
}

// RelaxedAssignment distributes the total folder volume by water filling:
// in each round the remaining volume is split between the OSDs that still
// have free capacity in proportion to their bandwidth, each OSD taking at
// most its free capacity. Rounds repeat until all volume is placed. It
// returns an error wrapping ErrInfeasiblePlacement if the OSDs run out of
// capacity first.
func (distribution *Distribution) RelaxedAssignment() (*RelaxedAssignment, error) {
	ledgers := distribution.OSDs()
	relaxed := &RelaxedAssignment{
		shares: make([]RelaxedShare, len(ledgers)),
		index:  make(map[string]int, len(ledgers)),
	}

	for i, ledger := range ledgers {
		relaxed.shares[i] = RelaxedShare{OSD: ledger.UUID(), Bandwidth: ledger.Bandwidth()}
		relaxed.index[ledger.UUID()] = i
	}

	total := distribution.TotalFolderSize()
	tolerance := relaxedTolerance * math.Max(total, 1)
	remaining := total

	for remaining > tolerance {
		free := []int{}
		totalBandwidth := 0.0

		for i, ledger := range ledgers {
			if ledger.Capacity()-relaxed.shares[i].Load > tolerance {
				free = append(free, i)
				totalBandwidth += ledger.Bandwidth()
			}
		}

		if len(free) == 0 {
			return nil, fmt.Errorf("%v of %v cannot be placed: %w", remaining, total, ErrInfeasiblePlacement)
		}

		assigned := 0.0

		for _, i := range free {
			optimalShare := ledgers[i].Bandwidth() / totalBandwidth * remaining
			assignableShare := math.Min(optimalShare, ledgers[i].Capacity()-relaxed.shares[i].Load)
			relaxed.shares[i].Load += assignableShare
			assigned += assignableShare
		}

		remaining -= assigned
	}

	return relaxed, nil
}

// LowerBoundOnMakespan returns the makespan of the relaxed assignment.
// No assignment of the current folders to the current OSDs has a smaller
// maximum processing time.
func (distribution *Distribution) LowerBoundOnMakespan() (float64, error) {
	relaxed, err := distribution.RelaxedAssignment()

	if err != nil {
		return 0, err
	}

	return relaxed.MaximumProcessingTime(), nil
}
