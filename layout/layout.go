// Package layout reads the physical layout of a managed folder on a
// mounted volume. Folders are the directories two levels below the
// managed folder. A folder is identified by its path on the volume,
// which starts with the volume name.
package layout

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/realizer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is how many replica listings run at once
const DefaultConcurrency = 32

var (
	// ErrPathNotManaged indicates that a path lies outside the managed folder
	ErrPathNotManaged = errors.New("path is not managed")
	// ErrListReplicas indicates that the replicas of a file could not be listed
	ErrListReplicas = errors.New("could not list replicas")
)

type option func(*Walker)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) option {
	return func(walker *Walker) {
		walker.logger = logger
	}
}

// WithRenderer sets the renderer of replica listing commands
func WithRenderer(renderer *xtfsutil.Renderer) option {
	return func(walker *Walker) {
		walker.renderer = renderer
	}
}

// WithConcurrency sets how many replica listings run at once
func WithConcurrency(concurrency int) option {
	return func(walker *Walker) {
		walker.concurrency = concurrency
	}
}

// Walker lists the folders and files of a managed folder
type Walker struct {
	managedFolder string
	mountPoint    string
	volume        string
	executor      command.Executor
	renderer      *xtfsutil.Renderer
	concurrency   int
	logger        *zap.Logger
}

var _ realizer.Layout = (*Walker)(nil)

// New creates a walker for managedFolder, which must lie below the
// mount point of the volume
func New(managedFolder string, mountPoint string, volume string, executor command.Executor, opts ...option) (*Walker, error) {
	walker := &Walker{
		managedFolder: filepath.Clean(managedFolder),
		mountPoint:    filepath.Clean(mountPoint),
		volume:        volume,
		executor:      executor,
		renderer:      xtfsutil.NewRenderer(),
		concurrency:   DefaultConcurrency,
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(walker)
	}

	if !within(walker.mountPoint, walker.managedFolder) {
		return nil, fmt.Errorf("managed folder %s is not on the volume mounted at %s: %w", managedFolder, mountPoint, ErrPathNotManaged)
	}

	return walker, nil
}

func within(parent string, child string) bool {
	rel, err := filepath.Rel(parent, child)

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FolderID returns the id of the folder at an absolute path
func (walker *Walker) FolderID(absolutePath string) (string, error) {
	absolutePath = filepath.Clean(absolutePath)

	if !within(walker.managedFolder, absolutePath) {
		return "", fmt.Errorf("%s: %w", absolutePath, ErrPathNotManaged)
	}

	rel, err := filepath.Rel(walker.mountPoint, absolutePath)

	if err != nil {
		return "", err
	}

	return path.Join(walker.volume, filepath.ToSlash(rel)), nil
}

// AbsolutePath returns the absolute path of a folder id
func (walker *Walker) AbsolutePath(folderID string) string {
	return filepath.Join(walker.mountPoint, filepath.FromSlash(strings.TrimPrefix(folderID, walker.volume+"/")))
}

// Folders returns the absolute paths of all folders in lexical order
func (walker *Walker) Folders() ([]string, error) {
	folders := []string{}
	outer, err := os.ReadDir(walker.managedFolder)

	if err != nil {
		return nil, err
	}

	for _, depth1 := range outer {
		if !depth1.IsDir() {
			continue
		}

		inner, err := os.ReadDir(filepath.Join(walker.managedFolder, depth1.Name()))

		if err != nil {
			return nil, err
		}

		for _, depth2 := range inner {
			if depth2.IsDir() {
				folders = append(folders, filepath.Join(walker.managedFolder, depth1.Name(), depth2.Name()))
			}
		}
	}

	return folders, nil
}

// Sizes returns the total size in bytes of the regular files
// in each folder, keyed by folder id
func (walker *Walker) Sizes() (map[string]float64, error) {
	folders, err := walker.Folders()

	if err != nil {
		return nil, err
	}

	sizes := map[string]float64{}

	for _, folder := range folders {
		folderID, err := walker.FolderID(folder)

		if err != nil {
			return nil, err
		}

		var size int64

		err = filepath.WalkDir(folder, func(_ string, entry fs.DirEntry, err error) error {
			if err != nil || !entry.Type().IsRegular() {
				return err
			}

			info, err := entry.Info()

			if err != nil {
				return err
			}

			size += info.Size()

			return nil
		})

		if err != nil {
			return nil, err
		}

		sizes[folderID] = float64(size)
	}

	return sizes, nil
}

// Files implements realizer.Layout. It lists every regular file in
// every folder together with the OSDs holding its replicas.
func (walker *Walker) Files(ctx context.Context) ([]realizer.File, error) {
	folders, err := walker.Folders()

	if err != nil {
		return nil, err
	}

	files := []realizer.File{}

	for _, folder := range folders {
		folderID, err := walker.FolderID(folder)

		if err != nil {
			return nil, err
		}

		err = filepath.WalkDir(folder, func(filePath string, entry fs.DirEntry, err error) error {
			if err != nil || !entry.Type().IsRegular() {
				return err
			}

			files = append(files, realizer.File{Path: filePath, FolderID: folderID})

			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	if err := walker.listReplicas(ctx, files); err != nil {
		return nil, err
	}

	walker.logger.Debug("walked layout", zap.Int("folders", len(folders)), zap.Int("files", len(files)))

	return files, nil
}

func (walker *Walker) listReplicas(ctx context.Context, files []realizer.File) error {
	group, ctx := errgroup.WithContext(ctx)

	if walker.concurrency > 0 {
		group.SetLimit(walker.concurrency)
	}

	for i := range files {
		i := i

		group.Go(func() error {
			result := walker.executor.Run(ctx, walker.renderer.ListReplicas(files[i].Path))

			if result.Failed() {
				walker.logger.Warn("could not list replicas", result.Fields()...)

				return fmt.Errorf("%s: exit code %d: %s: %w", files[i].Path, result.ExitCode, strings.TrimSpace(result.Stderr), ErrListReplicas)
			}

			files[i].Replicas = xtfsutil.ParseReplicaOSDs(result.Stdout)

			return nil
		})
	}

	return group.Wait()
}
