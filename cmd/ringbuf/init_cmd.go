package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kahiteam/ringbuf/internal/config"
)

var (
	initOutput string
	initStdout bool
	initForce  bool

	initSource   string
	initCapacity string
	initMode     string
	initSocket   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a sample ringbuf.toml config file",
	Long: `Generate a commented ringbuf.toml. Settings given as flags are filled in;
everything else stays commented out at its default.`,
	Example: `  ringbuf init --source /dev/ttyUSB0 --capacity 16KiB --mode overwrite
  ringbuf init --stdout > /etc/ringbuf/ringbuf.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set := make(map[string]any)
		for key, v := range map[string]string{
			"source.path":      initSource,
			"buffer.capacity":  initCapacity,
			"buffer.mode":      initMode,
			"server.unix.file": initSocket,
		} {
			if v != "" {
				set[key] = v
			}
		}
		content, err := config.Sample(set)
		if err != nil {
			return err
		}

		if initStdout {
			_, err := fmt.Fprint(cmd.OutOrStdout(), content)
			return err
		}

		outPath := initOutput
		if outPath == "" {
			outPath = config.FileName
		}
		if err := writeConfig(outPath, content, initForce); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
		return err
	},
}

// writeConfig creates path exclusively unless force is set.
func writeConfig(path, content string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("file %s already exists; use --force to overwrite", path)
	}
	if err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("cannot write config: %w", err)
	}
	return f.Close()
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "", "write config to file (default: ringbuf.toml)")
	initCmd.Flags().BoolVar(&initStdout, "stdout", false, "print config to stdout instead of writing a file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing file")
	initCmd.Flags().StringVar(&initSource, "source", "", "set source.path")
	initCmd.Flags().StringVar(&initCapacity, "capacity", "", "set buffer.capacity (e.g. 16KiB)")
	initCmd.Flags().StringVar(&initMode, "mode", "", "set buffer.mode: write, overwrite, dma, dma-circular")
	initCmd.Flags().StringVar(&initSocket, "socket", "", "set server.unix.file")
	rootCmd.AddCommand(initCmd)
}
