package main

import (
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	addCmd = &cobra.Command{
		Use:   "add [new-folder...]",
		Short: "Track the folders of the managed folder",
		Long: `Track the folders of the managed folder.

Without arguments every existing folder that is not tracked yet is added
with its current size, and the recorded sizes of tracked folders are
refreshed. Arguments name folders, relative to the managed folder, that
are about to be created. They are added with the average folder size.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := openApp(cmd.Context())

			if err != nil {
				return err
			}

			defer application.Close()

			mode, err := application.config.Mode()

			if err != nil {
				return err
			}

			if len(args) > 0 {
				folderIDs := make([]string, 0, len(args))

				for _, arg := range args {
					folderID, err := application.walker.FolderID(filepath.Join(application.config.ManagedFolder, arg))

					if err != nil {
						return err
					}

					folderIDs = append(folderIDs, folderID)
				}

				_, err := application.manager.CreateEmptyFolders(ctx, folderIDs, mode)

				return err
			}

			sizes, err := application.walker.Sizes()

			if err != nil {
				return err
			}

			assignments, err := application.manager.ImportFolders(ctx, sizes, mode)

			if err != nil {
				return err
			}

			if updateSizes {
				if err := application.manager.UpdateFolderSizes(sizes); err != nil {
					return err
				}
			}

			application.logger.Info("tracking folders",
				zap.Int("new", len(assignments)),
				zap.Int("total", application.manager.Distribution().NumFolders()),
				zap.String("total_size", humanize.Bytes(uint64(application.manager.Distribution().TotalFolderSize()))),
			)

			return nil
		},
	}

	updateSizes bool

	removeCmd = &cobra.Command{
		Use:   "remove <folder>",
		Short: "Stop tracking a folder, relative to the managed folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := openApp(cmd.Context())

			if err != nil {
				return err
			}

			defer application.Close()

			folderID, err := application.walker.FolderID(filepath.Join(application.config.ManagedFolder, args[0]))

			if err != nil {
				return err
			}

			return application.manager.RemoveFolder(ctx, folderID)
		},
	}
)

func init() {
	addCmd.Flags().BoolVar(&updateSizes, "update-sizes", true, "refresh the recorded sizes of tracked folders")
}
