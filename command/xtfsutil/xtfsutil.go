// Package xtfsutil renders replica operations as xtfsutil command lines
// and parses the replica listing that xtfsutil prints for a file.
package xtfsutil

import (
	"bufio"
	"strings"

	"github.com/kballard/go-shellquote"
)

// DefaultBinary is the name of the xtreemfs client utility
const DefaultBinary = "xtfsutil"

const prefixAttribute = "1004.filenamePrefix"

type option func(*Renderer)

// WithBinary sets the path of the xtfsutil executable
func WithBinary(binary string) option {
	return func(renderer *Renderer) {
		renderer.binary = binary
	}
}

// Renderer builds xtfsutil command lines. Paths and OSD uuids are
// quoted so that a command survives being split back into argv.
type Renderer struct {
	binary string
}

// NewRenderer creates a renderer
func NewRenderer(opts ...option) *Renderer {
	renderer := &Renderer{binary: DefaultBinary}

	for _, opt := range opts {
		opt(renderer)
	}

	return renderer
}

// SetReadOnlyReplication switches the file to the read-only
// replication policy so that it can hold more than one replica
func (renderer *Renderer) SetReadOnlyReplication(path string) string {
	return shellquote.Join(renderer.binary, "-r", "RONLY", path)
}

// CreateReplica adds a full replica of the file on the OSD
func (renderer *Renderer) CreateReplica(path string, osd string) string {
	return shellquote.Join(renderer.binary, "-a", osd, "--full", path)
}

// DeleteReplica removes the replica of the file stored on the OSD
func (renderer *Renderer) DeleteReplica(path string, osd string) string {
	return shellquote.Join(renderer.binary, "-d", osd, path)
}

// SetPrefixSelectionPolicy makes the volume mounted at mountPoint
// place new files by the longest matching path prefix
func (renderer *Renderer) SetPrefixSelectionPolicy(mountPoint string) string {
	return shellquote.Join(renderer.binary, "--set-osp", "prefix", mountPoint)
}

// AddPrefixAssignment places new files below the folder on the OSD
func (renderer *Renderer) AddPrefixAssignment(mountPoint string, folderID string, osd string) string {
	return shellquote.Join(renderer.binary, "--set-pattr", prefixAttribute, "--value", "add "+folderID+" "+osd, mountPoint)
}

// RemovePrefixAssignment forgets where new files below the folder go
func (renderer *Renderer) RemovePrefixAssignment(mountPoint string, folderID string) string {
	return shellquote.Join(renderer.binary, "--set-pattr", prefixAttribute, "--value", "remove "+folderID, mountPoint)
}

// ListReplicas prints the replicas of a file
func (renderer *Renderer) ListReplicas(path string) string {
	return shellquote.Join(renderer.binary, path)
}

// ParseReplicaOSDs extracts the uuids of the OSDs holding a replica
// from the output of ListReplicas. Replica lines look like
//
//	OSD 1     osd-uuid-1 (10.0.0.1:32640)
//
// and the uuid is the second to last word.
func ParseReplicaOSDs(output string) []string {
	osds := []string{}
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if !strings.HasPrefix(line, "OSD ") {
			continue
		}

		words := strings.Fields(line)

		if len(words) < 3 {
			continue
		}

		osds = append(osds, words[len(words)-2])
	}

	return osds
}
