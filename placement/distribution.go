// Package placement decides which OSD each folder lives on. A Distribution
// holds one ledger per OSD and offers several assignment policies for new
// folders and several rebalancing algorithms for existing ones. Nothing in
// this package touches physical data; the results are assignments and
// movement records that a realizer applies later.
package placement

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/jrife/osdplacement/placement/osd"
	"go.uber.org/zap"
)

type option func(*Distribution)

// WithRand sets the source of randomness used by the random
// assignment modes.
func WithRand(r *rand.Rand) option {
	return func(distribution *Distribution) {
		distribution.rand = r
	}
}

// WithSeed seeds the source of randomness used by the random
// assignment modes.
func WithSeed(seed int64) option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) option {
	return func(distribution *Distribution) {
		distribution.logger = logger
	}
}

// Distribution keeps track of the OSDs and the folders assigned to them.
// A folder id is assigned to at most one OSD at any time. OSDs are kept in
// the order they were added, and every "first wins" tie break in this
// package follows that order.
//
// Distribution is not safe for concurrent use.
type Distribution struct {
	osds   *linkedhashmap.Map
	rand   *rand.Rand
	logger *zap.Logger
}

// New creates an empty distribution
func New(opts ...option) *Distribution {
	distribution := &Distribution{
		osds:   linkedhashmap.New(),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(distribution)
	}

	if distribution.rand == nil {
		distribution.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return distribution
}

// AddOSD adds a new empty OSD. It returns false if an OSD
// with this uuid already exists.
func (distribution *Distribution) AddOSD(uuid string) bool {
	return distribution.PutOSD(osd.New(uuid))
}

// PutOSD adds an existing ledger. It returns false if an OSD
// with the same uuid already exists.
func (distribution *Distribution) PutOSD(ledger *osd.OSD) bool {
	if _, ok := distribution.osds.Get(ledger.UUID()); ok {
		distribution.logger.Debug("osd is already present", zap.String("osd", ledger.UUID()))

		return false
	}

	distribution.osds.Put(ledger.UUID(), ledger)

	return true
}

// AddOSDList adds an empty OSD for every uuid not yet known
func (distribution *Distribution) AddOSDList(uuids []string) {
	for _, uuid := range uuids {
		if _, ok := distribution.osds.Get(uuid); !ok {
			distribution.osds.Put(uuid, osd.New(uuid))
		}
	}
}

// OSD returns the ledger of the OSD with this uuid
func (distribution *Distribution) OSD(uuid string) (*osd.OSD, bool) {
	ledger, ok := distribution.osds.Get(uuid)

	if !ok {
		return nil, false
	}

	return ledger.(*osd.OSD), true
}

// OSDs lists all ledgers in insertion order
func (distribution *Distribution) OSDs() []*osd.OSD {
	ledgers := make([]*osd.OSD, 0, distribution.osds.Size())
	iter := distribution.osds.Iterator()

	for iter.Next() {
		ledgers = append(ledgers, iter.Value().(*osd.OSD))
	}

	return ledgers
}

// OSDList lists all OSD uuids in insertion order
func (distribution *Distribution) OSDList() []string {
	uuids := make([]string, 0, distribution.osds.Size())

	for _, ledger := range distribution.OSDs() {
		uuids = append(uuids, ledger.UUID())
	}

	return uuids
}

func (distribution *Distribution) checkKeys(values map[string]float64) error {
	if len(values) != distribution.osds.Size() {
		return fmt.Errorf("%d values for %d osds: %w", len(values), distribution.osds.Size(), ErrConfigurationMismatch)
	}

	for uuid := range values {
		if _, ok := distribution.osds.Get(uuid); !ok {
			return fmt.Errorf("osd %s: %w", uuid, ErrConfigurationMismatch)
		}
	}

	return nil
}

// SetOSDCapacities sets the capacity of every OSD. The map must hold
// exactly one whole, non-negative value per known OSD. Nothing is
// changed if validation fails.
func (distribution *Distribution) SetOSDCapacities(capacities map[string]float64) error {
	if err := distribution.checkKeys(capacities); err != nil {
		return err
	}

	for uuid, capacity := range capacities {
		if math.IsNaN(capacity) || capacity < 0 || (!math.IsInf(capacity, 1) && math.Trunc(capacity) != capacity) {
			return fmt.Errorf("capacity %v of osd %s is not a whole non-negative number: %w", capacity, uuid, ErrConfigurationMismatch)
		}
	}

	for _, ledger := range distribution.OSDs() {
		ledger.SetCapacity(capacities[ledger.UUID()])
	}

	return nil
}

// SetOSDBandwidths sets the bandwidth of every OSD. The map must hold
// exactly one positive value per known OSD. Nothing is changed if
// validation fails.
func (distribution *Distribution) SetOSDBandwidths(bandwidths map[string]float64) error {
	if err := distribution.checkKeys(bandwidths); err != nil {
		return err
	}

	for uuid, bandwidth := range bandwidths {
		if math.IsNaN(bandwidth) || math.IsInf(bandwidth, 0) || bandwidth <= 0 {
			return fmt.Errorf("bandwidth %v of osd %s is not positive: %w", bandwidth, uuid, ErrConfigurationMismatch)
		}
	}

	for _, ledger := range distribution.OSDs() {
		ledger.SetBandwidth(bandwidths[ledger.UUID()])
	}

	return nil
}

// ContainingOSD returns the ledger of the OSD the folder is assigned to
func (distribution *Distribution) ContainingOSD(folderID string) (*osd.OSD, bool) {
	iter := distribution.osds.Iterator()

	for iter.Next() {
		ledger := iter.Value().(*osd.OSD)

		if ledger.ContainsFolder(folderID) {
			return ledger, true
		}
	}

	return nil, false
}

// AssignedOSD returns the uuid of the OSD the folder is assigned to
func (distribution *Distribution) AssignedOSD(folderID string) (string, bool) {
	ledger, ok := distribution.ContainingOSD(folderID)

	if !ok {
		return "", false
	}

	return ledger.UUID(), true
}

// FolderSize returns the size recorded for a folder
func (distribution *Distribution) FolderSize(folderID string) (float64, error) {
	ledger, ok := distribution.ContainingOSD(folderID)

	if !ok {
		return 0, fmt.Errorf("folder %s: %w", folderID, ErrUnknownFolder)
	}

	return ledger.FolderSize(folderID), nil
}

// FolderIDs lists every assigned folder, OSD by OSD
func (distribution *Distribution) FolderIDs() []string {
	ids := []string{}

	for _, ledger := range distribution.OSDs() {
		for _, entry := range ledger.Folders() {
			ids = append(ids, entry.ID)
		}
	}

	return ids
}

// AssignNewOSD moves a folder to the OSD with the given uuid. A folder
// that is not assigned yet is added with the average folder size. It
// returns ErrInfeasiblePlacement if the target lacks the free capacity.
func (distribution *Distribution) AssignNewOSD(folderID string, uuid string) error {
	target, ok := distribution.OSD(uuid)

	if !ok {
		return fmt.Errorf("osd %s: %w", uuid, ErrUnknownOSD)
	}

	origin, tracked := distribution.ContainingOSD(folderID)

	if tracked && origin == target {
		return nil
	}

	size := distribution.AverageFolderSize()

	if tracked {
		size = origin.FolderSize(folderID)
	}

	if target.FreeCapacity() < size {
		return fmt.Errorf("folder %s of size %v does not fit on osd %s: %w", folderID, size, uuid, ErrInfeasiblePlacement)
	}

	if tracked {
		origin.RemoveFolder(folderID)
	}

	target.AddFolder(folderID, size)

	return nil
}

// UpdateFolder replaces the size of an assigned folder. It returns
// ErrInfeasiblePlacement if the new size exceeds what its OSD can hold.
func (distribution *Distribution) UpdateFolder(folderID string, size float64) error {
	if math.IsNaN(size) || size < 0 {
		return fmt.Errorf("folder %s with size %v: %w", folderID, size, ErrInvalidFolder)
	}

	ledger, ok := distribution.ContainingOSD(folderID)

	if !ok {
		distribution.logger.Warn("could not find a containing osd", zap.String("folder", folderID))

		return fmt.Errorf("folder %s: %w", folderID, ErrUnknownFolder)
	}

	if ledger.FreeCapacity()+ledger.FolderSize(folderID) < size {
		return fmt.Errorf("folder %s of size %v does not fit on osd %s: %w", folderID, size, ledger.UUID(), ErrInfeasiblePlacement)
	}

	ledger.UpdateFolder(folderID, size)

	return nil
}

// RemoveFolder removes a folder from whichever OSD holds it
func (distribution *Distribution) RemoveFolder(folderID string) {
	if ledger, ok := distribution.ContainingOSD(folderID); ok {
		ledger.RemoveFolder(folderID)
	}
}

// TotalFolderSize sums the load of all OSDs
func (distribution *Distribution) TotalFolderSize() float64 {
	total := 0.0

	for _, ledger := range distribution.OSDs() {
		total += ledger.Load()
	}

	return total
}

// TotalBandwidth sums the bandwidth of all OSDs
func (distribution *Distribution) TotalBandwidth() float64 {
	total := 0.0

	for _, ledger := range distribution.OSDs() {
		total += ledger.Bandwidth()
	}

	return total
}

// TotalCapacity sums the capacity of all OSDs
func (distribution *Distribution) TotalCapacity() float64 {
	total := 0.0

	for _, ledger := range distribution.OSDs() {
		total += ledger.Capacity()
	}

	return total
}

// NumFolders counts the folders of all OSDs
func (distribution *Distribution) NumFolders() int {
	count := 0

	for _, ledger := range distribution.OSDs() {
		count += ledger.NumFolders()
	}

	return count
}

// AverageFolderSize returns the average size of all assigned
// folders, or 0 if there are none.
func (distribution *Distribution) AverageFolderSize() float64 {
	count := distribution.NumFolders()

	if count == 0 {
		return 0
	}

	return distribution.TotalFolderSize() / float64(count)
}

// AverageLoad returns the average total folder size per OSD
func (distribution *Distribution) AverageLoad() float64 {
	if distribution.osds.Size() == 0 {
		return 0
	}

	return distribution.TotalFolderSize() / float64(distribution.osds.Size())
}

// MaximumLoad returns the OSD with the largest total folder size.
// The first OSD wins a tie. It returns nil if there are no OSDs.
func (distribution *Distribution) MaximumLoad() (*osd.OSD, float64) {
	var maximum *osd.OSD
	maximumLoad := 0.0

	for _, ledger := range distribution.OSDs() {
		if maximum == nil || ledger.Load() > maximumLoad {
			maximum, maximumLoad = ledger, ledger.Load()
		}
	}

	return maximum, maximumLoad
}

// AverageProcessingTime returns the average of the OSD processing times
func (distribution *Distribution) AverageProcessingTime() float64 {
	if distribution.osds.Size() == 0 {
		return 0
	}

	total := 0.0

	for _, ledger := range distribution.OSDs() {
		total += ledger.ProcessingTime()
	}

	return total / float64(distribution.osds.Size())
}

// MaximumProcessingTime returns the OSD with the largest processing time,
// the makespan of the distribution. The first OSD wins a tie. It returns
// nil if there are no OSDs.
func (distribution *Distribution) MaximumProcessingTime() (*osd.OSD, float64) {
	var maximum *osd.OSD
	maximumTime := 0.0

	for _, ledger := range distribution.OSDs() {
		if maximum == nil || ledger.ProcessingTime() > maximumTime {
			maximum, maximumTime = ledger, ledger.ProcessingTime()
		}
	}

	return maximum, maximumTime
}

// Clone returns an independent deep copy of the distribution. The clone
// draws from its own source of randomness seeded by this distribution.
func (distribution *Distribution) Clone() *Distribution {
	clone := distribution.clone()
	clone.rand = rand.New(rand.NewSource(distribution.rand.Int63()))

	return clone
}

// clone copies the ledgers but shares the source of randomness
func (distribution *Distribution) clone() *Distribution {
	clone := &Distribution{
		osds:   linkedhashmap.New(),
		rand:   distribution.rand,
		logger: distribution.logger,
	}

	for _, ledger := range distribution.OSDs() {
		clone.osds.Put(ledger.UUID(), ledger.Clone())
	}

	return clone
}

// update applies fn to a copy of the distribution and keeps the copy only
// if fn succeeds, so a failed operation leaves the distribution untouched.
func (distribution *Distribution) update(fn func(work *Distribution) error) error {
	work := distribution.clone()

	if err := fn(work); err != nil {
		return err
	}

	distribution.osds = work.osds

	return nil
}

// Description lists every OSD together with its folders
func (distribution *Distribution) Description() string {
	var builder strings.Builder

	for _, ledger := range distribution.OSDs() {
		builder.WriteString(ledger.String())
		builder.WriteString("\nfolders: ")

		for i, entry := range ledger.Folders() {
			if i > 0 {
				builder.WriteString(", ")
			}

			fmt.Fprintf(&builder, "%s: %v", entry.ID, entry.Size)
		}

		builder.WriteString("\n")
	}

	fmt.Fprintf(&builder, "average folder size: %v", distribution.AverageFolderSize())

	return builder.String()
}

func (distribution *Distribution) String() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "DataDistribution has %d osds:\n", distribution.osds.Size())

	for _, ledger := range distribution.OSDs() {
		builder.WriteString(ledger.String())
		builder.WriteString("\n")
	}

	return builder.String()
}
