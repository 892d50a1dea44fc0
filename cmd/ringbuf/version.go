package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kahiteam/ringbuf/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if versionShort {
			_, err := fmt.Fprintln(w, version.Version)
			return err
		}

		info := version.Info()
		_, err := fmt.Fprintf(w, "ringbuf %s\n  commit:  %s\n  built:   %s\n  go:      %s\n  os/arch: %s\n",
			info["version"], info["commit"], info["date"], info["go_version"], info["platform"])
		return err
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}
