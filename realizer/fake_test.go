package realizer_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/realizer"
	"github.com/kballard/go-shellquote"
)

type fakeFile struct {
	folderID string
	replicas []string
	readOnly bool
	// filling is how many more delete attempts fail
	// before the newest replica is complete
	filling int
}

// fakeCluster is an in-memory layout that applies xtfsutil
// commands to itself. It records every call made to it.
type fakeCluster struct {
	mu    sync.Mutex
	paths []string
	files map[string]*fakeFile
	// fillAttempts is how many delete attempts fail after
	// a replica is created
	fillAttempts int
	calls        []call
}

type call struct {
	discover    bool
	kinds       map[realizer.Kind]bool
	commands    []string
	concurrency int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{files: map[string]*fakeFile{}}
}

func (cluster *fakeCluster) addFile(path string, folderID string, replicas ...string) {
	cluster.paths = append(cluster.paths, path)
	cluster.files[path] = &fakeFile{folderID: folderID, replicas: replicas, readOnly: len(replicas) > 1}
}

func (cluster *fakeCluster) replicas(path string) []string {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	return append([]string{}, cluster.files[path].replicas...)
}

func (cluster *fakeCluster) Files(ctx context.Context) ([]realizer.File, error) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	cluster.calls = append(cluster.calls, call{discover: true})
	files := []realizer.File{}

	for _, path := range cluster.paths {
		file := cluster.files[path]
		files = append(files, realizer.File{
			Path:     path,
			FolderID: file.folderID,
			Replicas: append([]string{}, file.replicas...),
		})
	}

	return files, nil
}

func (cluster *fakeCluster) Run(ctx context.Context, cmd string) command.Result {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	_, result := cluster.run(cmd)

	return result
}

func (cluster *fakeCluster) RunAll(ctx context.Context, commands []string, concurrency int) []command.Result {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	current := call{kinds: map[realizer.Kind]bool{}, commands: commands, concurrency: concurrency}
	failures := []command.Result{}

	for _, cmd := range commands {
		kind, result := cluster.run(cmd)
		current.kinds[kind] = true

		if result.Failed() {
			failures = append(failures, result)
		}
	}

	cluster.calls = append(cluster.calls, current)

	return failures
}

func (cluster *fakeCluster) run(cmd string) (realizer.Kind, command.Result) {
	argv, err := shellquote.Split(cmd)

	if err != nil || len(argv) < 3 || argv[0] != "xtfsutil" {
		panic(fmt.Sprintf("unexpected command %q", cmd))
	}

	fail := func(kind realizer.Kind, message string) (realizer.Kind, command.Result) {
		return kind, command.Result{Command: cmd, Stderr: message, ExitCode: 1}
	}

	switch argv[1] {
	case "-r":
		file := cluster.files[argv[3]]
		file.readOnly = true

		return realizer.SetReplicationMode, command.Result{Command: cmd}
	case "-a":
		file := cluster.files[argv[4]]

		if !file.readOnly {
			return fail(realizer.CreateReplica, "file is not replicated")
		}

		for _, replica := range file.replicas {
			if replica == argv[2] {
				return fail(realizer.CreateReplica, "replica exists")
			}
		}

		file.replicas = append(file.replicas, argv[2])
		file.filling = cluster.fillAttempts

		return realizer.CreateReplica, command.Result{Command: cmd}
	case "-d":
		file := cluster.files[argv[3]]

		if file.filling > 0 {
			file.filling--

			return fail(realizer.DeleteReplica, "new replica is not complete")
		}

		if len(file.replicas) < 2 {
			return fail(realizer.DeleteReplica, "cannot delete the last replica")
		}

		for i, replica := range file.replicas {
			if replica == argv[2] {
				file.replicas = append(file.replicas[:i], file.replicas[i+1:]...)

				return realizer.DeleteReplica, command.Result{Command: cmd}
			}
		}

		return fail(realizer.DeleteReplica, "no such replica")
	}

	panic(fmt.Sprintf("unexpected command %q", cmd))
}

type fakeAssignments map[string]string

func (assignments fakeAssignments) AssignedOSD(folderID string) (string, bool) {
	osd, ok := assignments[folderID]

	return osd, ok
}
