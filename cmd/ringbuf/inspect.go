package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kahiteam/ringbuf"
	"github.com/kahiteam/ringbuf/internal/config"
	"github.com/kahiteam/ringbuf/internal/source"
)

type inspectOptions struct {
	capacity  string
	overwrite bool
	peek      string
	find      string
	pattern   string
	from      int
	runLength int
	dump      bool
}

var inspectOpts inspectOptions

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Load a file into a ring buffer and inspect it offline",
	Long: "Writes FILE (\"-\" for stdin) into a fresh ring buffer with the chosen capacity and write mode, " +
		"prints the resulting state and answers peek, find and run-length queries against it.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := inspectOpts
		if !cmd.Flags().Changed("runlength") {
			opts.runLength = -1
		}
		r, err := source.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		return inspect(cmd.OutOrStdout(), args[0], r, opts)
	},
}

func inspect(w io.Writer, name string, r io.Reader, opts inspectOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", name, err)
	}

	capacity := len(data)
	if opts.capacity != "" {
		n, err := config.ParseSize(opts.capacity)
		if err != nil {
			return fmt.Errorf("invalid --capacity: %w", err)
		}
		if n <= 0 || n > config.MaxCapacity {
			return fmt.Errorf("invalid --capacity: must be between 1 and %d bytes, got %d", config.MaxCapacity, n)
		}
		capacity = int(n)
	}
	if capacity <= 0 {
		return errors.New("empty input needs an explicit --capacity")
	}
	if capacity > config.MaxCapacity {
		return fmt.Errorf("input of %d bytes exceeds the %d byte limit; pass a smaller --capacity", capacity, config.MaxCapacity)
	}

	b, err := ringbuf.New(capacity)
	if err != nil {
		return err
	}
	defer b.Close()
	b.Put(data, opts.overwrite)

	st := b.State()
	lostLabel := "DROPPED"
	if opts.overwrite {
		lostLabel = "OVERWRITTEN"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FILE\t%s\n", name)
	fmt.Fprintf(tw, "READ\t%s\n", humanize.IBytes(uint64(len(data))))
	fmt.Fprintf(tw, "CAPACITY\t%s\n", humanize.IBytes(uint64(st.Capacity)))
	fmt.Fprintf(tw, "USED\t%s (%.1f%%)\n", humanize.IBytes(uint64(st.Used)), 100*float64(st.Used)/float64(st.Capacity))
	fmt.Fprintf(tw, "CURSORS\tfront=%d rear=%d\n", st.Front, st.Rear)
	fmt.Fprintf(tw, "%s\t%s\n", lostLabel, humanize.Comma(int64(len(data)-st.Used)))

	if opts.find != "" {
		c, err := strconv.ParseUint(opts.find, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid --find %q: must be a byte value such as 10 or 0x0a", opts.find)
		}
		fmt.Fprintf(tw, "FIND 0x%02x\t%s\n", c, formatMatch(b.IndexByte(opts.from, byte(c))))
	}
	if opts.pattern != "" {
		fmt.Fprintf(tw, "PATTERN %q\t%s\n", opts.pattern, formatMatch(b.Index(opts.from, []byte(opts.pattern))))
	}
	if opts.runLength >= 0 {
		fmt.Fprintf(tw, "RUNLENGTH @%d\t%d\n", opts.runLength, b.RunLength(opts.runLength))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.peek != "" {
		index, length, err := parsePeek(opts.peek)
		if err != nil {
			return err
		}
		out := make([]byte, length)
		if !b.Peek(index, out) {
			return fmt.Errorf("peek %d:%d is outside the %d valid bytes", index, length, st.Used)
		}
		fmt.Fprintf(w, "\nPEEK %d:%d\n%s", index, length, hex.Dump(out))
	}
	if opts.dump && st.Used > 0 {
		fmt.Fprintf(w, "\nDATA\n%s", hex.Dump(b.Bytes()))
	}
	return nil
}

func formatMatch(i int) string {
	if i == ringbuf.NotFound {
		return "not found"
	}
	return "index " + strconv.Itoa(i)
}

// parsePeek parses "index:length".
func parsePeek(s string) (int, int, error) {
	is, ls, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --peek %q: want index:length", s)
	}
	index, err := strconv.Atoi(is)
	if err != nil || index < 0 {
		return 0, 0, fmt.Errorf("invalid --peek index %q", is)
	}
	length, err := strconv.Atoi(ls)
	if err != nil || length <= 0 {
		return 0, 0, fmt.Errorf("invalid --peek length %q", ls)
	}
	return index, length, nil
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectOpts.capacity, "capacity", "", "buffer capacity, e.g. 4KiB (default: file size)")
	f.BoolVar(&inspectOpts.overwrite, "overwrite", false, "evict the oldest bytes instead of dropping the newest")
	f.StringVar(&inspectOpts.peek, "peek", "", "hex dump length bytes at a logical index, as index:length")
	f.StringVar(&inspectOpts.find, "find", "", "search for a byte value (decimal, 0x hex or 0 octal)")
	f.StringVar(&inspectOpts.pattern, "pattern", "", "search for a byte sequence")
	f.IntVar(&inspectOpts.from, "from", 0, "logical index where --find and --pattern start")
	f.IntVar(&inspectOpts.runLength, "runlength", 0, "count bytes from a logical index up to the next NUL")
	f.BoolVar(&inspectOpts.dump, "dump", false, "hex dump the buffered data")
	rootCmd.AddCommand(inspectCmd)
}
