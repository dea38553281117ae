package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current distribution of folders on OSDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, _, err := openApp(cmd.Context())

		if err != nil {
			return err
		}

		defer application.Close()

		distribution := application.manager.Distribution()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, distribution.Description())
		fmt.Fprintf(out, "folders: %d, total size: %s\n", distribution.NumFolders(), humanize.Bytes(uint64(distribution.TotalFolderSize())))

		_, makespan := distribution.MaximumProcessingTime()
		fmt.Fprintf(out, "maximum processing time: %v\n", makespan)

		if lowerBound, err := distribution.LowerBoundOnMakespan(); err == nil {
			fmt.Fprintf(out, "lower bound on processing time: %v\n", lowerBound)
		}

		return nil
	},
}
