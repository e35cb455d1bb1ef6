// Command rim builds and flashes raw disk images containing FAT32, exFAT,
// and ext4 filesystems behind a GPT/MBR partition table, from a declarative
// layout manifest, per spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rim:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rim",
		Short:         "rim builds, flashes, and verifies raw disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.AddCommand(newBuildCmd(), newFlashCmd())
	return root
}

func setVerbosity(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
