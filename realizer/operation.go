package realizer

import (
	"fmt"
)

// Kind is the kind of a replica operation. Kinds are ordered by
// the phase of a batch in which they run.
type Kind int

const (
	// SetReplicationMode lets a file hold more than one replica
	SetReplicationMode Kind = iota
	// CreateReplica creates a full replica on the target OSD
	CreateReplica
	// DeleteReplica deletes the replica on a wrong OSD
	DeleteReplica
	numKinds
)

func (kind Kind) String() string {
	switch kind {
	case SetReplicationMode:
		return "set_replication_mode"
	case CreateReplica:
		return "create_replica"
	case DeleteReplica:
		return "delete_replica"
	}

	return fmt.Sprintf("Kind(%d)", int(kind))
}

// Renderer turns operations into command strings
type Renderer interface {
	SetReadOnlyReplication(path string) string
	CreateReplica(path string, osd string) string
	DeleteReplica(path string, osd string) string
}

// Operation is one step of moving a file
type Operation struct {
	Kind Kind
	Path string
	// OSD is the OSD a replica is created on or deleted from.
	// It is empty for SetReplicationMode.
	OSD string
}

// Render returns the command that performs the operation
func (operation Operation) Render(renderer Renderer) string {
	switch operation.Kind {
	case SetReplicationMode:
		return renderer.SetReadOnlyReplication(operation.Path)
	case CreateReplica:
		return renderer.CreateReplica(operation.Path, operation.OSD)
	case DeleteReplica:
		return renderer.DeleteReplica(operation.Path, operation.OSD)
	}

	panic(fmt.Sprintf("cannot render operation of kind %s", operation.Kind))
}

// Key groups moves by the OSD they leave and the OSD they go to
type Key struct {
	Origin string
	Target string
}

func (key Key) String() string {
	return key.Origin + "->" + key.Target
}

// Move is the work needed to bring one file onto its assigned OSD.
// Operations are ordered by phase.
type Move struct {
	Key
	Path       string
	FolderID   string
	Operations []Operation
}
