// cmd/mdsync/main.go
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mdsync/internal/diff"
	"mdsync/internal/history"
	"mdsync/internal/logging"
	"mdsync/internal/merge"
	syncengine "mdsync/internal/sync"
	shared "mdsync/shared/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mdsync",
	Short: "mdsync keeps a markdown document in sync with external editors",
	Long: `mdsync watches a markdown file that is edited both locally and by
external processes. It autosaves local edits, reloads clean external
changes, and three-way merges when both sides changed, preferring the
external version on conflicting lines.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	var watchCmd = &cobra.Command{
		Use:   "watch <file>",
		Short: "Watch a file and keep it synchronized",
		Long: `Opens the file in a foreground sync session. Lines typed on stdin
replace the buffer content (an edit); external writes to the file are
reloaded or merged. Ctrl+C flushes pending edits and exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewCLILogger(verbose)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()

			hist, db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			buffer := syncengine.NewBuffer()
			session := syncengine.NewSession(syncengine.NewDiskStore(), buffer, printSink{}, hist, syncengine.Options{}, logger.Logger)
			defer session.Close()

			if err := session.Open(args[0]); err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			fmt.Printf("Watching %s. Type to append a line, Ctrl+C to exit.\n", args[0])
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						return session.Flush()
					}
					content, _ := buffer.Current()
					if content != "" && !strings.HasSuffix(content, "\n") {
						content += "\n"
					}
					content += line
					buffer.Replace(content)
					session.Edit(content)
				case <-sigs:
					fmt.Println()
					return session.Flush()
				}
			}
		},
	}

	var mergeCmd = &cobra.Command{
		Use:   "merge <base> <ours> <theirs>",
		Short: "Three-way merge two revisions of a document",
		Long: `Merges two divergent revisions against their common base and prints
the result to stdout. On conflicting lines the theirs side wins.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := make([]string, 3)
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				texts[i] = string(data)
			}

			result := merge.Merge(texts[0], texts[1], texts[2])
			fmt.Print(result.Content)

			if result.HadConflicts {
				yellow := color.New(color.FgYellow).SprintFunc()
				fmt.Fprintln(os.Stderr, yellow("some lines conflicted; kept the external side"))
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Show a line diff between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			newData, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			engine := diff.NewEngine(3)
			result, err := engine.Diff(string(oldData), string(newData))
			if err != nil {
				return fmt.Errorf("computing diff: %w", err)
			}

			printColoredDiff(result.Format())
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history <file>",
		Short: "List recorded versions of a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file")
			}

			hist, db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			path, err := absPath(args[0])
			if err != nil {
				return err
			}

			versions, err := hist.Versions(path)
			if err != nil {
				return fmt.Errorf("listing versions: %w", err)
			}
			if len(versions) == 0 {
				fmt.Println("No recorded versions.")
				return nil
			}

			blue := color.New(color.FgBlue).SprintFunc()
			for _, v := range versions {
				fmt.Printf("%s  %-9s  %6d bytes  %s\n",
					blue(fmt.Sprintf("v%d", v.Seq)),
					v.Origin,
					v.Size,
					v.CreatedAt.Local().Format(time.RFC822),
				)
			}
			return nil
		},
	}

	var restoreCmd = &cobra.Command{
		Use:   "restore <file> <version>",
		Short: "Restore a file to a recorded version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(strings.TrimPrefix(args[1], "v"), 10, 64)
			if err != nil || seq == 0 {
				return fmt.Errorf("invalid version %q", args[1])
			}

			logger, err := logging.NewCLILogger(verbose)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()

			hist, db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			buffer := syncengine.NewBuffer()
			session := syncengine.NewSession(syncengine.NewDiskStore(), buffer, nil, hist, syncengine.Options{}, logger.Logger)
			defer session.Close()

			if err := session.Open(args[0]); err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			if err := session.Restore(seq); err != nil {
				return fmt.Errorf("restoring v%d: %w", seq, err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %s to v%d\n", green("Restored"), args[0], seq)
			return nil
		},
	}

	rootCmd.AddCommand(watchCmd, mergeCmd, diffCmd, historyCmd, restoreCmd)
}

// openHistory opens the snapshot database under .mdsync in the working
// directory, creating it on first use.
func openHistory() (*history.Store, *badger.DB, error) {
	opts := badger.DefaultOptions(".mdsync")
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}

	hist, err := history.New(db, history.Options{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initializing history store: %w", err)
	}
	return hist, db, nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// printSink writes status transitions to the terminal as they happen.
type printSink struct{}

func (printSink) Update(path string, status shared.Status) {
	switch status {
	case shared.StatusSaved, shared.StatusReloaded, shared.StatusMerged:
		color.New(color.FgGreen).Printf("[%s] %s\n", time.Now().Format("15:04:05"), status)
	case shared.StatusSaveFailed, shared.StatusReloadFailed:
		color.New(color.FgRed).Printf("[%s] %s\n", time.Now().Format("15:04:05"), status)
	case shared.StatusMergedOverrode:
		color.New(color.FgYellow).Printf("[%s] %s\n", time.Now().Format("15:04:05"), status)
	default:
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), status)
	}
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			fmt.Println()
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
