package main

import (
	"fmt"

	"github.com/jrife/osdplacement/placement"
	"github.com/spf13/cobra"
)

var (
	algorithmName string

	rebalanceCmd = &cobra.Command{
		Use:   "rebalance",
		Short: "Reassign folders so that the OSDs finish at about the same time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, ctx, err := openApp(cmd.Context())

			if err != nil {
				return err
			}

			defer application.Close()

			if algorithmName == "" {
				algorithmName = application.config.RebalanceAlgorithm
			}

			algorithm, err := placement.ParseAlgorithm(algorithmName)

			if err != nil {
				return err
			}

			movements, err := application.manager.Rebalance(ctx, algorithm)

			if err != nil {
				return err
			}

			for _, folderID := range movements.FolderIDs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", folderID, movements[folderID].Origin, movements[folderID].Target)
			}

			return nil
		},
	}
)

func init() {
	rebalanceCmd.Flags().StringVarP(&algorithmName, "algorithm", "a", "", "rebalance algorithm: lpt, rebalance_one, two_step_opt or two_step_rnd (default from config)")
}
