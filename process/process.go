// Package process runs the whole deduplication pipeline on a TMX file:
// detect and decode the bytes, parse, analyse, apply review overrides,
// filter, serialise and encode back to the input's encoding.
package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/tmxdedup/analysis"
	"github.com/minios-linux/tmxdedup/charset"
	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/merge"
	"github.com/minios-linux/tmxdedup/tmx"
)

// DefaultSuffix is appended to the input base name to form the output name.
const DefaultSuffix = "_processed"

// AutoEncoding as Options.DeclaredEncoding writes the real output encoding
// into the XML declaration.
const AutoEncoding = "auto"

// Options configures a pipeline run.
type Options struct {
	Merge merge.Options

	// Detect tunes encoding detection of BOM-less input.
	Detect charset.Options

	// Overrides replace automatic decisions before filtering.
	Overrides []merge.Decision

	// DeclaredEncoding is the label written into the output's XML
	// declaration. Empty means tmx.DefaultDeclaredEncoding; AutoEncoding
	// means the encoding the bytes are actually written in.
	DeclaredEncoding string

	// BatchSize and OnProgress are passed to the analysis driver.
	BatchSize  int
	OnProgress func(analysis.Progress)

	// DryRun stops after analysis: Output and Document stay nil.
	DryRun bool
}

// Result is the outcome of a pipeline run.
type Result struct {
	// Options are the merge options with the language prefixes resolved.
	Options  merge.Options
	Encoding charset.Info
	Metadata tmx.Metadata
	Analysis *merge.Analysis
	// Decisions are the analysis decisions after overrides.
	Decisions []merge.Decision
	Document  *tmx.Document
	Output    []byte
	Stats     merge.Stats
	// Overridden counts decisions whose status an override changed.
	Overridden  int
	Diagnostics diag.List
}

// Load detects the encoding of data, decodes it and parses the document.
func Load(data []byte, detect charset.Options) (*tmx.Document, charset.Info, diag.List, error) {
	info, diags := charset.DetectWith(data, detect)
	text, err := charset.Decode(data, info)
	if err != nil {
		return nil, info, diags, err
	}
	doc, parseDiags, err := tmx.Parse(text)
	diags.Extend(parseDiags)
	if err != nil {
		return nil, info, diags, err
	}
	return doc, info, diags, nil
}

// Run processes one document held in memory.
func Run(ctx context.Context, data []byte, opts Options) (*Result, error) {
	doc, info, diags, err := Load(data, opts.Detect)
	res := &Result{Encoding: info, Diagnostics: diags}
	if err != nil {
		return res, err
	}
	res.Metadata = tmx.ExtractMetadata(doc)

	mopts, err := opts.Merge.ResolveLanguages(doc)
	if err != nil {
		return res, err
	}
	res.Options = mopts
	an, err := analysis.Run(ctx, doc, mopts, analysis.Options{
		BatchSize:  opts.BatchSize,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		return res, err
	}
	res.Analysis = an
	res.Diagnostics.Extend(an.Diagnostics)

	res.Decisions = append([]merge.Decision(nil), an.Decisions...)
	if len(opts.Overrides) > 0 {
		changed, unmatched := merge.ApplyOverrides(res.Decisions, opts.Overrides)
		res.Overridden = changed
		for _, o := range unmatched {
			res.Diagnostics.Warnf(diag.CodeUnmatchedOverride, "override for %q / %q matched no decision", o.SourceText, o.TargetText)
		}
		// Overrides may name units outside any duplicate group.
		res.Decisions = append(res.Decisions, unmatched...)
	}
	if opts.DryRun {
		_, res.Stats = merge.Finalize(doc, res.Decisions, mopts.SourceLang, mopts.TargetLang)
		return res, nil
	}

	out, stats := merge.Finalize(doc, res.Decisions, mopts.SourceLang, mopts.TargetLang)
	res.Document = out
	res.Stats = stats

	declared := opts.DeclaredEncoding
	if strings.EqualFold(declared, AutoEncoding) {
		declared = info.Name
	}
	text := tmx.Serialize(out, tmx.WriteOptions{DeclaredEncoding: declared})
	res.Output, err = charset.Encode(text, info)
	if err != nil {
		return res, err
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// OutputName returns the default output path for input: the same directory,
// the base name without a .tmx extension (any case), suffix, then ".tmx".
func OutputName(input, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	dir, base := filepath.Split(input)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".tmx") {
		base = base[:len(base)-len(ext)]
	}
	return filepath.Join(dir, base+suffix+".tmx")
}

// File reads input, runs the pipeline and writes the result to output. The
// output directory is created if needed. Nothing is written on a dry run.
func File(ctx context.Context, input, output string, opts Options) (*Result, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", input, err)
	}
	res, err := Run(ctx, data, opts)
	if err != nil {
		return res, fmt.Errorf("%s: %w", input, err)
	}
	if opts.DryRun {
		return res, nil
	}
	return res, Write(output, res)
}

// Write stores res.Output at output, creating the directory if needed.
func Write(output string, res *Result) error {
	if res.Output == nil {
		return fmt.Errorf("writing %s: no output (dry run?)", output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(output, res.Output, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	return nil
}
