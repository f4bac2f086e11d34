package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/streamyara/streamyara/pkg/compiler"
	"github.com/streamyara/streamyara/pkg/module"
	"github.com/streamyara/streamyara/pkg/offsetcache"
	"github.com/streamyara/streamyara/pkg/scanner"
	"github.com/streamyara/streamyara/pkg/types"
)

const scanChunkSize = 64 * 1024

var (
	scanRulesPath    string
	scanMode         string
	scanTimeout      time.Duration
	scanDedup        bool
	scanOffsetCache  string
	scanCacheEntries int
	scanModules      string
	scanColor        string
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan a file or stdin as a single stream",
	Long:  "Scan a file, or stdin if no file is given, feeding it into one stream line by line or chunk by chunk and reporting rule matches as they occur.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRulesPath, "rules", "", "Path to a rule-source YAML file (required)")
	scanCmd.Flags().StringVar(&scanMode, "mode", "line", "Feed mode: line or chunk")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Per-scan-call timeout (0 disables)")
	scanCmd.Flags().BoolVar(&scanDedup, "dedup", false, "Deduplicate matches by trace id")
	scanCmd.Flags().StringVar(&scanOffsetCache, "offset-cache", "", "Path to a SQLite offset-cache database (enables the hybrid read path)")
	scanCmd.Flags().IntVar(&scanCacheEntries, "offset-cache-entries", 4096, "In-memory LRU capacity for the offset cache")
	scanCmd.Flags().StringVar(&scanModules, "modules", "", "Comma-separated module set to initialise per stream: hash,pdf")
	scanCmd.Flags().StringVar(&scanColor, "color", "auto", "Color output: auto, always, never")
	scanCmd.MarkFlagRequired("rules")
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanColor {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto":
		// Mirrors the teacher's cmd/titus/report.go terminal check.
		if !term.IsTerminal(int(os.Stdout.Fd())) || os.Getenv("NO_COLOR") != "" {
			color.NoColor = true
		}
	}
	s := newStyles(!color.NoColor)

	rules, err := compiler.CompileFile(scanRulesPath)
	if err != nil {
		return fmt.Errorf("compiling rules: %w", err)
	}

	mods, err := resolveModules(scanModules)
	if err != nil {
		return err
	}

	opts := []scanner.Option{
		WithRuleMatchPrinter(cmd, s),
	}
	if scanTimeout > 0 {
		opts = append(opts, scanner.WithTimeout(scanTimeout))
	}
	if scanDedup {
		opts = append(opts, scanner.WithDeduplication(true))
	}
	if len(mods) > 0 {
		opts = append(opts, scanner.WithModules(mods...))
	}
	if scanOffsetCache != "" {
		store, err := offsetcache.NewSQLiteStore(scanOffsetCache)
		if err != nil {
			return fmt.Errorf("opening offset cache: %w", err)
		}
		cache, err := offsetcache.New(scanCacheEntries, store, nil)
		if err != nil {
			return fmt.Errorf("building offset cache: %w", err)
		}
		defer cache.Close()
		opts = append(opts, scanner.WithOffsetCache(cache))
	}

	sc, err := scanner.NewScanner(rules, opts...)
	if err != nil {
		return fmt.Errorf("building scanner: %w", err)
	}

	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	id := uuid.New()
	ctx := context.Background()

	var feedErr error
	switch scanMode {
	case "line":
		feedErr = feedLines(ctx, sc, id, in)
	case "chunk":
		feedErr = feedChunks(ctx, sc, id, in)
	default:
		return fmt.Errorf("unknown --mode %q (want line or chunk)", scanMode)
	}
	if feedErr != nil {
		return feedErr
	}

	final, ok := sc.CloseStream(id)
	if !ok {
		return nil
	}
	printSummary(cmd, s, final)
	return nil
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", args[0], err)
	}
	return f, nil
}

func feedLines(ctx context.Context, sc *scanner.Scanner, id uuid.UUID, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if scanErr := scanOne(ctx, sc, id, line, true); scanErr != nil {
				return scanErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
	}
}

func feedChunks(ctx context.Context, sc *scanner.Scanner, id uuid.UUID, in io.Reader) error {
	buf := make([]byte, scanChunkSize)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if scanErr := scanOne(ctx, sc, id, buf[:n], false); scanErr != nil {
				return scanErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
	}
}

func scanOne(ctx context.Context, sc *scanner.Scanner, id uuid.UUID, data []byte, isLine bool) error {
	var err error
	if isLine {
		err = sc.ScanLine(ctx, id, data)
	} else {
		err = sc.ScanChunk(ctx, id, data)
	}
	if errors.Is(err, types.ErrTimeout) {
		if verbose {
			fmt.Fprintln(os.Stderr, "streamyara: scan call timed out, continuing")
		}
		return nil
	}
	return err
}

func resolveModules(spec string) ([]module.Module, error) {
	if spec == "" {
		return nil, nil
	}
	var mods []module.Module
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "hash":
			mods = append(mods, module.HashModule{})
		case "pdf":
			mods = append(mods, module.PDFModule{})
		case "":
		default:
			return nil, fmt.Errorf("unknown module %q", name)
		}
	}
	return mods, nil
}

// WithRuleMatchPrinter installs a callback that prints each currently
// matching rule as it's reported, styled the way report.go colors findings.
func WithRuleMatchPrinter(cmd *cobra.Command, s *styles) scanner.Option {
	out := cmd.OutOrStdout()
	return scanner.WithRuleMatchCallback(func(namespace string, id uuid.UUID, rule string, traceIDs []string) {
		ruleName := s.ruleName.Sprintf("%s.%s", namespace, rule)
		if quiet {
			return
		}
		if len(traceIDs) == 0 {
			fmt.Fprintf(out, "%s %s matched\n", s.id.Sprint(id), ruleName)
			return
		}
		fmt.Fprintf(out, "%s %s matched (%s)\n", s.id.Sprint(id), ruleName, s.metadata.Sprint(strings.Join(traceIDs, ", ")))
	})
}

func printSummary(cmd *cobra.Command, s *styles, final *scanner.FinalStreamResults) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", s.heading.Sprint("Summary"))
	fmt.Fprintf(out, "  bytes processed: %d\n", final.BytesProcessed)
	fmt.Fprintf(out, "  lines processed: %d\n", final.LineCount)
	if len(final.MatchingRules) == 0 {
		fmt.Fprintf(out, "  no rules matched\n")
		return
	}
	fmt.Fprintf(out, "  matching rules:\n")
	for _, r := range final.MatchingRules {
		fmt.Fprintf(out, "    %s\n", s.ruleName.Sprint(r.Name))
	}
	if len(final.TraceIDs) > 0 {
		fmt.Fprintf(out, "  trace ids: %s\n", s.metadata.Sprint(strings.Join(final.TraceIDs, ", ")))
	}
}
