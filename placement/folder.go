package placement

import (
	"fmt"
	"sort"
)

// Folder is a unit of data that is placed onto exactly one OSD.
// Origin describes where the folder came from and plays no part
// in scheduling.
type Folder struct {
	ID     string
	Size   float64
	Origin string
}

func (folder Folder) String() string {
	return fmt.Sprintf("folder: '%s' size: %v origin: %s", folder.ID, folder.Size, folder.Origin)
}

// Assignment records the OSD a newly added folder was assigned to
type Assignment struct {
	FolderID string
	OSD      string
}

// Movement is the origin and target OSD of a folder that
// changes its OSD during a rebalance.
type Movement struct {
	Origin string
	Target string
}

// Movements maps folder ids to their movement. A folder
// whose origin and target are equal is never included.
type Movements map[string]Movement

// FolderIDs returns the ids of all moved folders in ascending order
func (movements Movements) FolderIDs() []string {
	ids := make([]string, 0, len(movements))

	for id := range movements {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// TotalSize sums the sizes, as recorded in the distribution,
// of all moved folders.
func (movements Movements) TotalSize(distribution *Distribution) float64 {
	total := 0.0

	for id := range movements {
		if size, err := distribution.FolderSize(id); err == nil {
			total += size
		}
	}

	return total
}

// Assignments turns movements into assignments of folders to their targets
func (movements Movements) Assignments() []Assignment {
	assignments := make([]Assignment, 0, len(movements))

	for _, id := range movements.FolderIDs() {
		assignments = append(assignments, Assignment{FolderID: id, OSD: movements[id].Target})
	}

	return assignments
}

func (movements Movements) record(folderID string, origin string, target string) {
	if previous, ok := movements[folderID]; ok {
		origin = previous.Origin
	}

	if origin == target {
		delete(movements, folderID)

		return
	}

	movements[folderID] = Movement{Origin: origin, Target: target}
}
