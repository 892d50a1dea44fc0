package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kahiteam/ringbuf/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "ringbuf",
	Short:         "ringbuf -- ring buffer staging for serial byte streams",
	Long:          "ringbuf stages a byte stream through a fixed-capacity ring buffer, cuts it into frames and serves the buffer for live inspection.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("ringbuf {{.Version}}\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ringbuf: %v\n", err)
		os.Exit(1)
	}
}
