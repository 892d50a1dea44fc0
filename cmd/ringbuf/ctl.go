package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kahiteam/ringbuf/internal/api"
	"github.com/kahiteam/ringbuf/internal/ctl"
)

const defaultSocket = "/var/run/ringbuf.sock"

var (
	ctlSocket string
	ctlAddr   string
	ctlUser   string
	ctlPass   string
	ctlJSON   bool
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Inspect a running ringbuf pipeline",
	Long:  "Query a running ringbuf pipeline via its API.",
}

func newCtlClient() *ctl.Client {
	if ctlAddr != "" {
		return ctl.NewTCPClient(ctlAddr, ctlUser, ctlPass)
	}
	sock := ctlSocket
	if sock == "" {
		sock = defaultSocket
	}
	return ctl.NewUnixClient(sock)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show buffer state and pipeline counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCtlClient().Status(ctlJSON, cmd.OutOrStdout())
	},
}

var ctlPeekRaw bool

var ctlPeekCmd = &cobra.Command{
	Use:   "peek <index> [length]",
	Short: "Hex dump held bytes at a logical index without consuming them",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		length := api.DefaultPeekLength
		if len(args) > 1 {
			if length, err = strconv.Atoi(args[1]); err != nil || length <= 0 {
				return fmt.Errorf("invalid length %q", args[1])
			}
		}
		data, err := newCtlClient().Peek(index, length)
		if err != nil {
			return err
		}
		if ctlPeekRaw {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
		return err
	},
}

var (
	ctlFindFrom    int
	ctlFindPattern bool
)

var ctlFindCmd = &cobra.Command{
	Use:   "find <byte|pattern>",
	Short: "Find a byte value or, with --pattern, a byte sequence in held data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newCtlClient()
		var (
			i   int
			err error
		)
		if ctlFindPattern {
			i, err = c.FindPattern(ctlFindFrom, []byte(args[0]))
		} else {
			v, perr := strconv.ParseUint(args[0], 0, 8)
			if perr != nil {
				return fmt.Errorf("invalid byte %q: use a value such as 10 or 0x0a, or --pattern", args[0])
			}
			i, err = c.FindByte(ctlFindFrom, byte(v))
		}
		if err != nil {
			return err
		}
		if i < 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "not found")
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), i)
		return nil
	},
}

var ctlRunLengthCmd = &cobra.Command{
	Use:   "runlength [index]",
	Short: "Count held bytes from an index up to the next NUL",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index := 0
		if len(args) > 0 {
			var err error
			if index, err = parseIndex(args[0]); err != nil {
				return err
			}
		}
		n, err := newCtlClient().RunLength(index)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var tailBytes int

var ctlTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent frame output",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCtlClient().Tail(tailBytes, cmd.OutOrStdout())
	},
}

var ctlEventTypes []string

var ctlEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream pipeline events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		return newCtlClient().Events(ctx, ctlEventTypes, cmd.OutOrStdout())
	},
}

var ctlReopenCmd = &cobra.Command{
	Use:   "reopen",
	Short: "Reopen the output file after external rotation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newCtlClient().Reopen(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "output reopened")
		return nil
	},
}

var ctlShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the pipeline and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newCtlClient().Shutdown(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "shutdown initiated")
		return nil
	},
}

var ctlVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show remote daemon version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newCtlClient().Version()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(result))
		for k := range result {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, result[k])
		}
		return nil
	},
}

var ctlHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon liveness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newCtlClient().Health()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.ToUpper(status))
		if status != "ok" {
			os.Exit(1)
		}
		return nil
	},
}

var ctlReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Check that the pipeline is consuming its source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newCtlClient().Ready()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.ToUpper(status))
		if status != "ready" {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	ctlCmd.PersistentFlags().StringVarP(&ctlSocket, "socket", "s", "", "Unix socket path (default "+defaultSocket+")")
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "", "TCP address (host:port)")
	ctlCmd.PersistentFlags().StringVarP(&ctlUser, "username", "u", "", "HTTP Basic Auth username")
	ctlCmd.PersistentFlags().StringVarP(&ctlPass, "password", "p", "", "HTTP Basic Auth password")

	ctlStatusCmd.Flags().BoolVar(&ctlJSON, "json", false, "Output JSON")
	ctlPeekCmd.Flags().BoolVar(&ctlPeekRaw, "raw", false, "Write the bytes as-is instead of a hex dump")
	ctlFindCmd.Flags().IntVar(&ctlFindFrom, "from", 0, "Logical index to start searching at")
	ctlFindCmd.Flags().BoolVar(&ctlFindPattern, "pattern", false, "Treat the argument as a byte sequence")
	ctlTailCmd.Flags().IntVar(&tailBytes, "bytes", api.DefaultTailBytes, "Number of bytes to tail")
	ctlEventsCmd.Flags().StringSliceVar(&ctlEventTypes, "type", nil, "Event types to stream (default: all)")

	ctlCmd.AddCommand(
		ctlStatusCmd, ctlPeekCmd, ctlFindCmd, ctlRunLengthCmd,
		ctlTailCmd, ctlEventsCmd, ctlReopenCmd, ctlShutdownCmd,
		ctlVersionCmd, ctlHealthCmd, ctlReadyCmd,
	)
	rootCmd.AddCommand(ctlCmd)
}
