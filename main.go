// tmxdedup: finds and removes duplicate translation units in TMX files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/tmxdedup/analysis"
	"github.com/minios-linux/tmxdedup/charset"
	"github.com/minios-linux/tmxdedup/config"
	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/i18n"
	"github.com/minios-linux/tmxdedup/langmeta"
	"github.com/minios-linux/tmxdedup/lockfile"
	"github.com/minios-linux/tmxdedup/merge"
	"github.com/minios-linux/tmxdedup/priority"
	"github.com/minios-linux/tmxdedup/process"
	"github.com/minios-linux/tmxdedup/review"
	"github.com/minios-linux/tmxdedup/tmx"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	tagInfo    = color.New(color.FgBlue).SprintFunc()
	tagSuccess = color.New(color.FgGreen).SprintFunc()
	tagWarning = color.New(color.FgYellow, color.Bold).SprintFunc()
	tagError   = color.New(color.FgRed).SprintFunc()
	heading    = color.New(color.FgBlue, color.Bold).SprintFunc()
)

// logMu keeps log lines from parallel workers and the progress bar apart.
var logMu sync.Mutex

func logLine(tag, format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintf(color.Error, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func logInfo(format string, args ...any) {
	logLine(tagInfo("[INFO]"), format, args...)
}

func logSuccess(format string, args ...any) {
	logLine(tagSuccess("[OK]"), format, args...)
}

func logWarning(format string, args ...any) {
	logLine(tagWarning("[WARN]"), format, args...)
}

func logError(format string, args ...any) {
	logLine(tagError("[ERROR]"), format, args...)
}

// logDiagnostics routes diagnostics to the log helpers. Notes are only shown
// with --verbose.
func logDiagnostics(file string, diags diag.List) {
	for _, d := range diags {
		switch d.Severity {
		case diag.SeverityWarning:
			logWarning("%s: %s", file, d.Message)
		default:
			if verbose {
				logInfo("%s: %s", file, d.Message)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	uiLang  string
	verbose bool
	noColor bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tmxdedup",
		Short: i18n.T("Find and remove duplicate translation units in TMX files"),
		Long: `tmxdedup finds duplicate translation units in TMX translation memories
and writes a cleaned copy next to each input.

Duplicates are matched on normalised source and/or target text. Inside each
group of duplicates one unit is kept according to the priority policy
(preferred creation/change IDs, newer dates) and the rest are removed. The
output keeps the input's encoding and byte order mark.

Commands:
  dedup      Remove duplicates and write <name>_processed.tmx
  analyze    Show duplicate groups without writing anything
  inspect    Show encoding, languages and ID sets of a file
  history    Show the processing journal
  init       Write a default .tmxdedup.yaml

Settings are read from .tmxdedup.yaml in --root, then TMXDEDUP_* environment
variables (a .env file is honoured), then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if uiLang != "" {
				i18n.Init(uiLang)
			}
		},
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (config, .env and lock file)")
	root.PersistentFlags().StringVar(&uiLang, "lang", "", "Interface language (default: from the locale environment)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show informational diagnostics")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newDedupCmd(),
		newAnalyzeCmd(),
		newInspectCmd(),
		newHistoryCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tmxdedup version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Settings flags (shared by dedup and analyze)
// ---------------------------------------------------------------------------

// enumValue is a pflag.Value that accepts only what parse accepts and
// stores the canonical spelling.
type enumValue struct {
	target  *string
	allowed []string
	parse   func(string) (string, error)
}

func newEnumValue[T ~string](target *string, allowed []T, parse func(string) (T, error)) *enumValue {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return &enumValue{
		target:  target,
		allowed: names,
		parse: func(s string) (string, error) {
			v, err := parse(s)
			return string(v), err
		},
	}
}

func (e *enumValue) String() string { return *e.target }

func (e *enumValue) Set(s string) error {
	v, err := e.parse(s)
	if err != nil {
		return err
	}
	*e.target = v
	return nil
}

func (e *enumValue) Type() string { return strings.Join(e.allowed, "|") }

var _ pflag.Value = (*enumValue)(nil)

// settingsFlags mirrors the config file. Only flags set on the command line
// are applied on top of the loaded configuration.
type settingsFlags struct {
	sourceLang, targetLang string

	matchMode         string
	caseSensitive     bool
	ignorePunctuation bool
	ignoreWhitespace  bool
	tagStrictness     string
	normalizeUnicode  bool

	creationIDs   []string
	changeIDs     []string
	newerChange   bool
	newerCreation bool
	ruleOrder     string

	xmlEncoding       string
	batchSize         int
	physicalByteOrder bool
}

func (s *settingsFlags) register(fs *pflag.FlagSet) {
	def := config.Default()

	fs.StringVarP(&s.sourceLang, "source-lang", "s", "", "Source language prefix (default: from the file header)")
	fs.StringVarP(&s.targetLang, "target-lang", "t", "", "Target language prefix (default: from the file header)")

	s.matchMode = def.Match.Mode
	fs.VarP(newEnumValue(&s.matchMode, dedup.MatchModes, dedup.ParseMatchMode), "match", "m", "Which text must be equal")
	fs.BoolVar(&s.caseSensitive, "case-sensitive", def.Match.CaseSensitive, "Compare text case-sensitively")
	fs.BoolVar(&s.ignorePunctuation, "ignore-punctuation", def.Match.IgnorePunctuation, "Ignore punctuation when comparing")
	fs.BoolVar(&s.ignoreWhitespace, "ignore-whitespace", def.Match.IgnoreWhitespace, "Ignore whitespace differences when comparing")
	s.tagStrictness = def.Match.TagStrictness
	fs.Var(newEnumValue(&s.tagStrictness, dedup.TagStrictnesses, dedup.ParseTagStrictness), "tags", "How strictly inline tags must agree")
	fs.BoolVar(&s.normalizeUnicode, "normalize-unicode", def.Match.NormalizeUnicode, "Apply NFC normalization before comparing")

	fs.StringSliceVar(&s.creationIDs, "creation-id", nil, "Preferred creation IDs, highest priority first (repeatable)")
	fs.StringSliceVar(&s.changeIDs, "change-id", nil, "Preferred change IDs, highest priority first (repeatable)")
	fs.BoolVar(&s.newerChange, "prefer-newer-change", def.Priority.PreferNewerChangeDate, "Prefer the more recently changed unit")
	fs.BoolVar(&s.newerCreation, "prefer-newer-creation", def.Priority.PreferNewerCreationDate, "Prefer the more recently created unit")
	s.ruleOrder = def.Priority.RuleOrder
	fs.Var(newEnumValue(&s.ruleOrder, priority.RuleOrders, priority.ParseRuleOrder), "rule-order", "Whether ID or date rules are tried first")

	fs.StringVar(&s.xmlEncoding, "xml-encoding", def.Output.XMLEncoding, `Encoding label for the XML declaration ("auto" = actual encoding)`)
	fs.IntVar(&s.batchSize, "batch-size", def.Output.BatchSize, "Units analysed between progress updates")
	registerByteOrderFlag(fs, &s.physicalByteOrder)
}

func registerByteOrderFlag(fs *pflag.FlagSet, target *bool) {
	fs.BoolVar(target, "physical-byte-order", false, "Detect BOM-less UTF-16 by where the zero high bytes fall (odd offsets = little-endian)")
}

// apply copies explicitly set flags into f and validates the result.
func (s *settingsFlags) apply(fs *pflag.FlagSet, f *config.File) error {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("source-lang", func() { f.SourceLang = s.sourceLang })
	set("target-lang", func() { f.TargetLang = s.targetLang })
	set("match", func() { f.Match.Mode = s.matchMode })
	set("case-sensitive", func() { f.Match.CaseSensitive = s.caseSensitive })
	set("ignore-punctuation", func() { f.Match.IgnorePunctuation = s.ignorePunctuation })
	set("ignore-whitespace", func() { f.Match.IgnoreWhitespace = s.ignoreWhitespace })
	set("tags", func() { f.Match.TagStrictness = s.tagStrictness })
	set("normalize-unicode", func() { f.Match.NormalizeUnicode = s.normalizeUnicode })
	set("creation-id", func() { f.Priority.CreationIDs = s.creationIDs })
	set("change-id", func() { f.Priority.ChangeIDs = s.changeIDs })
	set("prefer-newer-change", func() { f.Priority.PreferNewerChangeDate = s.newerChange })
	set("prefer-newer-creation", func() { f.Priority.PreferNewerCreationDate = s.newerCreation })
	set("rule-order", func() { f.Priority.RuleOrder = s.ruleOrder })
	set("xml-encoding", func() { f.Output.XMLEncoding = s.xmlEncoding })
	set("batch-size", func() { f.Output.BatchSize = s.batchSize })
	set("physical-byte-order", func() { f.Input.PhysicalByteOrder = s.physicalByteOrder })

	f.Normalize()
	return f.Validate()
}

// loadSettings loads the project configuration and applies the flags.
func loadSettings(fs *pflag.FlagSet, s *settingsFlags) (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if err := s.apply(fs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// dedup
// ---------------------------------------------------------------------------

type dedupArgs struct {
	settings  settingsFlags
	output    string
	suffix    string
	report    string
	decisions string
	dryRun    bool
	force     bool
	workers   int
}

func newDedupCmd() *cobra.Command {
	var a dedupArgs

	cmd := &cobra.Command{
		Use:   "dedup FILE...",
		Short: i18n.T("Remove duplicate translation units"),
		Long: `Remove duplicate translation units from one or more TMX files.

Each input is written to <name>_processed.tmx next to it (or to --output when
a single file is given), in the same encoding as the input. Inputs that did
not change since the last run with the same settings are skipped unless
--force is given.

With --report the keep/delete decisions are written as JSON. Edit the
"status" fields and feed the file back with --decisions to override them.
When several files are given, --report names a directory.`,
		Example: `  tmxdedup dedup memory.tmx
  tmxdedup dedup --creation-id TRANSLATOR1 --prefer-newer-change *.tmx
  tmxdedup dedup --dry-run --report review.json memory.tmx
  tmxdedup dedup --decisions review.json memory.tmx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(cmd.Context(), cmd.Flags(), a, args)
		},
	}

	a.settings.register(cmd.Flags())
	cmd.Flags().StringVarP(&a.output, "output", "o", "", "Output file (single input only)")
	cmd.Flags().StringVar(&a.suffix, "suffix", "", "Output name suffix (default from config: _processed)")
	cmd.Flags().StringVar(&a.report, "report", "", "Write the decision report to this file (directory for several inputs)")
	cmd.Flags().StringVar(&a.decisions, "decisions", "", "Apply keep/delete overrides from a decision report (single input only)")
	cmd.Flags().BoolVarP(&a.dryRun, "dry-run", "n", false, "Analyse and print statistics without writing output")
	cmd.Flags().BoolVarP(&a.force, "force", "f", false, "Process inputs even if unchanged since the last run")
	cmd.Flags().IntVarP(&a.workers, "workers", "j", 0, "Files processed in parallel (default from config: 1)")

	return cmd
}

// fileOutcome is what a dedup worker reports for one input.
type fileOutcome struct {
	skipped bool
	failed  bool
	stats   merge.Stats
}

func runDedup(ctx context.Context, fs *pflag.FlagSet, a dedupArgs, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadSettings(fs, &a.settings)
	if err != nil {
		return err
	}
	if a.suffix != "" {
		cfg.Output.Suffix = a.suffix
	}
	if a.workers > 0 {
		cfg.Output.Workers = a.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(files) > 1 && a.output != "" {
		return errors.New(i18n.T("--output can only be used with a single input file"))
	}
	if len(files) > 1 && a.decisions != "" {
		return errors.New(i18n.T("--decisions can only be used with a single input file"))
	}

	var overrides []merge.Decision
	if a.decisions != "" {
		r, err := review.ReadFile(a.decisions)
		if err != nil {
			return err
		}
		overrides = r.Decisions
		logInfo("%s", i18n.Nf("Loaded %d override from %s", "Loaded %d overrides from %s", len(overrides), a.decisions))
	}

	lf, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}
	fingerprint := cfg.Fingerprint()

	// A single bar is only readable when files are processed one at a time.
	showProgress := cfg.Output.Workers == 1 && isatty.IsTerminal(os.Stderr.Fd())

	outcomes := make([]fileOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(cfg.Output.Workers)
	for i, file := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i].failed = true
				return nil
			}
			outcomes[i] = dedupFile(ctx, file, cfg, a, overrides, lf, fingerprint, len(files) > 1, showProgress)
			return nil
		})
	}
	_ = g.Wait()

	var total merge.Stats
	failed, skipped := 0, 0
	for _, o := range outcomes {
		switch {
		case o.failed:
			failed++
		case o.skipped:
			skipped++
		default:
			total.OriginalCount += o.stats.OriginalCount
			total.UniqueCount += o.stats.UniqueCount
			total.DuplicatesRemoved += o.stats.DuplicatesRemoved
		}
	}

	if !a.dryRun {
		if err := lf.Save(); err != nil {
			logWarning("%s", i18n.Tf("Could not save lock file: %v", err))
		}
	}

	if len(files) > 1 {
		logInfo("%s", i18n.Tf("Total: %d units, %d unique, %d duplicates removed (%d skipped, %d failed)",
			total.OriginalCount, total.UniqueCount, total.DuplicatesRemoved, skipped, failed))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return errors.New(i18n.Nf("%d file failed", "%d files failed", failed))
	}
	return nil
}

func dedupFile(ctx context.Context, file string, cfg *config.File, a dedupArgs, overrides []merge.Decision,
	lf *lockfile.LockFile, fingerprint string, multi, showProgress bool) fileOutcome {

	data, err := os.ReadFile(file)
	if err != nil {
		logError("%v", err)
		return fileOutcome{failed: true}
	}

	key := lockfile.InputKey(rootDir, file)
	if !a.force && !a.dryRun && len(overrides) == 0 && !lf.IsChanged(key, data, fingerprint) {
		logInfo("%s", i18n.Tf("%s: unchanged since last run, skipping (use --force)", file))
		return fileOutcome{skipped: true}
	}

	opts := cfg.ProcessOptions()
	opts.Overrides = overrides
	opts.DryRun = a.dryRun
	if showProgress {
		opts.OnProgress = func(p analysis.Progress) { drawProgress(filepath.Base(file), p) }
	}

	res, err := process.Run(ctx, data, opts)
	if showProgress {
		endProgress()
	}
	if res != nil {
		logDiagnostics(file, res.Diagnostics)
	}
	if err != nil {
		logError("%s: %v", file, err)
		return fileOutcome{failed: true}
	}
	if res.Overridden > 0 {
		logInfo("%s", i18n.Nf("%d decision overridden in %s", "%d decisions overridden in %s", res.Overridden, file))
	}

	output := a.output
	if output == "" {
		output = process.OutputName(file, cfg.Output.Suffix)
	}

	if a.report != "" {
		path := a.report
		if multi {
			path = filepath.Join(a.report, reportName(file))
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logError("%v", err)
			return fileOutcome{failed: true}
		}
		if err := review.WriteFile(path, review.New(file, res.Options, res.Stats, res.Decisions)); err != nil {
			logError("%v", err)
			return fileOutcome{failed: true}
		}
		logInfo("%s", i18n.Tf("Decision report written to %s", path))
	}

	if a.dryRun {
		logSuccess("%s: %s", file, statsLine(res.Stats))
		return fileOutcome{stats: res.Stats}
	}

	if err := process.Write(output, res); err != nil {
		logError("%v", err)
		return fileOutcome{failed: true}
	}

	e := lockfile.Entry{
		Input:    key,
		Output:   lockfile.InputKey(rootDir, output),
		Encoding: res.Encoding.Name,
	}
	e.SetStats(res.Stats)
	lf.Record(e, data, fingerprint)

	logSuccess("%s -> %s: %s", file, output, statsLine(res.Stats))
	return fileOutcome{stats: res.Stats}
}

// reportName is the report file name used for one of several inputs.
func reportName(input string) string {
	base := filepath.Base(input)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".tmx") {
		base = base[:len(base)-len(ext)]
	}
	return base + ".decisions.json"
}

func statsLine(s merge.Stats) string {
	return i18n.Tf("%d units, %d unique, %d duplicates removed", s.OriginalCount, s.UniqueCount, s.DuplicatesRemoved)
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

type analyzeArgs struct {
	settings settingsFlags
	report   string
	jsonOut  bool
	limit    int
}

func newAnalyzeCmd() *cobra.Command {
	var a analyzeArgs

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: i18n.T("Show duplicate groups without writing output"),
		Long: `Analyse a TMX file and list its duplicate groups with the unit each
group keeps and the units it would delete.

The file is processed in batches; a progress bar is shown on terminals.
Use --report to save the decisions for review, or --json to print them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.Flags(), a, args[0])
		},
	}

	a.settings.register(cmd.Flags())
	cmd.Flags().StringVar(&a.report, "report", "", "Write the decision report to this file")
	cmd.Flags().BoolVar(&a.jsonOut, "json", false, "Print the decision report as JSON on stdout")
	cmd.Flags().IntVar(&a.limit, "limit", 20, "Maximum number of groups to print (0 = all)")

	return cmd
}

func runAnalyze(ctx context.Context, fs *pflag.FlagSet, a analyzeArgs, file string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadSettings(fs, &a.settings)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	doc, _, diags, err := process.Load(data, cfg.ProcessOptions().Detect)
	logDiagnostics(file, diags)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	mopts, err := cfg.MergeOptions().ResolveLanguages(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	showProgress := !a.jsonOut && isatty.IsTerminal(os.Stderr.Fd())
	name := filepath.Base(file)

	var an *merge.Analysis
	for ev := range analysis.Start(ctx, doc, mopts, analysis.Options{BatchSize: cfg.Output.BatchSize}) {
		switch ev.Kind {
		case analysis.EventProgress:
			if showProgress {
				drawProgress(name, ev.Progress)
			}
		case analysis.EventComplete:
			an = ev.Analysis
		case analysis.EventError:
			err = ev.Err
		}
	}
	if showProgress {
		endProgress()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if an == nil {
		return ctx.Err()
	}
	logDiagnostics(file, an.Diagnostics)

	_, stats := merge.Finalize(doc, an.Decisions, mopts.SourceLang, mopts.TargetLang)
	report := review.New(file, mopts, stats, an.Decisions)

	if a.report != "" {
		if err := review.WriteFile(a.report, report); err != nil {
			return err
		}
		logInfo("%s", i18n.Tf("Decision report written to %s", a.report))
	}
	if a.jsonOut {
		return review.Write(os.Stdout, report)
	}

	printGroups(an.Decisions, a.limit)
	fmt.Println()
	fmt.Printf("  %s\n", i18n.Nf("%d duplicate group", "%d duplicate groups", len(an.Groups)))
	fmt.Printf("  %s\n", statsLine(stats))
	if an.Skipped > 0 {
		fmt.Printf("  %s\n", i18n.Nf("%d unit skipped", "%d units skipped", an.Skipped))
	}
	return nil
}

// printGroups lists decisions grouped by key, at most limit groups.
func printGroups(decisions []merge.Decision, limit int) {
	keep := color.New(color.FgGreen).SprintFunc()
	del := color.New(color.FgRed).SprintFunc()

	groups, lastKey := 0, ""
	for _, d := range decisions {
		if groups == 0 || d.Key != lastKey {
			if limit > 0 && groups == limit {
				fmt.Printf("\n  %s\n", i18n.T("(more groups not shown, use --limit 0)"))
				return
			}
			groups++
			lastKey = d.Key
			fmt.Printf("\n%s %s\n", heading(fmt.Sprintf("#%d", groups)), truncate(d.SourceText, 60))
		}
		status := keep("KEEP  ")
		if d.Status == dedup.Delete {
			status = del("DELETE")
		}
		line := fmt.Sprintf("  %s %5d  %-12s %-16s %s", status, d.Position, orDash(d.CreationID), orDash(d.ChangeDate), truncate(d.TargetText, 40))
		if d.Rule != "" {
			line += "  (" + d.Rule + ")"
		}
		fmt.Println(line)
	}
}

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

// inspection is the JSON shape printed by inspect --json.
type inspection struct {
	File        string       `json:"file"`
	Encoding    charset.Info `json:"encoding"`
	Metadata    tmx.Metadata `json:"metadata"`
	Diagnostics diag.List    `json:"diagnostics"`
}

func newInspectCmd() *cobra.Command {
	var (
		jsonOut           bool
		physicalByteOrder bool
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: i18n.T("Show encoding, languages and ID sets of a TMX file"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("physical-byte-order") {
				cfg.Input.PhysicalByteOrder = physicalByteOrder
			}
			return runInspect(args[0], cfg.ProcessOptions().Detect, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	registerByteOrderFlag(cmd.Flags(), &physicalByteOrder)
	return cmd
}

func runInspect(file string, detect charset.Options, jsonOut bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	doc, info, diags, err := process.Load(data, detect)
	if err != nil {
		logDiagnostics(file, diags)
		return fmt.Errorf("%s: %w", file, err)
	}
	md := tmx.ExtractMetadata(doc)

	if jsonOut {
		if diags == nil {
			diags = diag.List{}
		}
		out, err := json.MarshalIndent(inspection{File: file, Encoding: info, Metadata: md, Diagnostics: diags}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	src, tgt := tmx.Languages(doc)

	fmt.Printf("\n%s\n", heading(file))
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("  %-14s %s\n", i18n.T("Encoding:"), info)
	fmt.Printf("  %-14s %s\n", i18n.T("Source:"), languageLabel(src))
	fmt.Printf("  %-14s %s\n", i18n.T("Target:"), languageLabel(tgt))
	if md.CreationTool != "" {
		fmt.Printf("  %-14s %s %s\n", i18n.T("Tool:"), md.CreationTool, md.CreationToolVersion)
	}
	if md.SegmentType != "" {
		fmt.Printf("  %-14s %s\n", i18n.T("Segmentation:"), md.SegmentType)
	}
	fmt.Printf("  %-14s %d (%d valid)\n", i18n.T("Units:"), md.TotalUnits, md.ValidUnits)
	fmt.Printf("  %-14s %s\n", i18n.T("Creation IDs:"), joinOrDash(md.CreationIDs))
	fmt.Printf("  %-14s %s\n", i18n.T("Change IDs:"), joinOrDash(md.ChangeIDs))
	fmt.Println()

	logDiagnostics(file, diags)
	return nil
}

func languageLabel(tag string) string {
	if tag == "" {
		return "-"
	}
	m := langmeta.Resolve(tag)
	label := m.Label()
	if m.English != "" && m.English != m.Name && m.English != tag {
		label += ", " + m.English
	}
	return label
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		clean bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: i18n.T("Show recently processed files"),
		Long: `Show the processing journal (tmxdedup.lock in --root), newest first.

With --clean, entries for inputs that no longer exist are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(limit, clean)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show (0 = all)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Forget inputs that no longer exist")
	return cmd
}

func runHistory(limit int, clean bool) error {
	lf, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}

	if clean {
		n := lf.Clean(rootDir)
		if err := lf.Save(); err != nil {
			return err
		}
		logSuccess("%s", i18n.Nf("Removed %d stale entry", "Removed %d stale entries", n))
	}

	recent := lf.Recent(limit)
	if len(recent) == 0 {
		logInfo("%s", i18n.T("No files processed yet"))
		return nil
	}

	fmt.Printf("\n%s\n", heading(i18n.T("Recent runs")))
	fmt.Println(strings.Repeat("─", 72))
	for _, e := range recent {
		fmt.Printf("  %s  %-30s %6d -> %-6d %s\n",
			e.ProcessedAt.Local().Format("2006-01-02 15:04"),
			truncate(e.Input, 30),
			e.OriginalCount, e.UniqueCount,
			i18n.Nf("(%d removed)", "(%d removed)", e.DuplicatesRemoved))
	}
	fmt.Println()
	fmt.Printf("  %s\n\n", lf.Summary())
	return nil
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: i18n.T("Write a default .tmxdedup.yaml"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration")
	return cmd
}

func runInit(force bool) error {
	path := filepath.Join(rootDir, config.FileName)
	if fileExists(path) && !force {
		return errors.New(i18n.Tf("%s already exists (use --force to overwrite)", path))
	}
	if err := config.Default().Save(rootDir); err != nil {
		return err
	}
	logSuccess("%s", i18n.Tf("Created %s", path))
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := color.New(color.FgRed)
	switch {
	case percent >= 100:
		c = color.New(color.FgGreen)
	case percent >= 50:
		c = color.New(color.FgYellow)
	}
	return c.Sprint(bar) + fmt.Sprintf(" %3d%%", percent)
}

func drawProgress(name string, p analysis.Progress) {
	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintf(color.Error, "\r  %s  %s (%d/%d)", progressBar(int(p.Percent()), 30), name, p.Processed, p.Total)
}

func endProgress() {
	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintln(color.Error)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
