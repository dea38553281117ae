// Command osdplacement places the folders of an xtreemfs volume on OSDs
// and moves files until the volume matches the placement.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "osdplacement",
		Short: "Place the folders of a volume on OSDs and realize the placement",
		Long: `Place the folders of a volume on OSDs and realize the placement.

Every depth-2 directory of the managed folder is a unit of placement. The
assignment of folders to OSDs is kept in a snapshot store so that it
survives between runs. 'add' tracks new folders, 'rebalance' evens out the
processing time of the OSDs and 'realize' moves replicas until every file
is stored on the OSD its folder is assigned to.
`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "osdplacement.yaml", "path of the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(showCmd, addCmd, removeCmd, rebalanceCmd, realizeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}
