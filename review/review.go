// Package review exports the decisions of an analysis as a JSON report and
// reads edited reports back as overrides.
package review

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/merge"
)

//go:embed schema.json
var schema string

// Summary records the settings a report was produced with.
type Summary struct {
	SourceLang        string              `json:"sourceLang"`
	TargetLang        string              `json:"targetLang"`
	MatchMode         dedup.MatchMode     `json:"matchMode"`
	CaseSensitive     bool                `json:"caseSensitive"`
	IgnorePunctuation bool                `json:"ignorePunctuation"`
	IgnoreWhitespace  bool                `json:"ignoreWhitespace"`
	TagStrictness     dedup.TagStrictness `json:"tagStrictness"`
	NormalizeUnicode  bool                `json:"normalizeUnicode,omitempty"`

	CreationIDs             []string `json:"creationIds,omitempty"`
	ChangeIDs               []string `json:"changeIds,omitempty"`
	PreferNewerChangeDate   bool     `json:"preferNewerChangeDate"`
	PreferNewerCreationDate bool     `json:"preferNewerCreationDate"`
	RuleOrder               string   `json:"ruleOrder"`
}

// Summarize flattens merge options into a Summary.
func Summarize(opts merge.Options) Summary {
	return Summary{
		SourceLang:              opts.SourceLang,
		TargetLang:              opts.TargetLang,
		MatchMode:               opts.Match.MatchMode,
		CaseSensitive:           opts.Match.CaseSensitive,
		IgnorePunctuation:       opts.Match.IgnorePunctuation,
		IgnoreWhitespace:        opts.Match.IgnoreWhitespace,
		TagStrictness:           opts.Match.TagStrictness,
		NormalizeUnicode:        opts.Match.NormalizeUnicode,
		CreationIDs:             opts.Priority.CreationIDs,
		ChangeIDs:               opts.Priority.ChangeIDs,
		PreferNewerChangeDate:   opts.Priority.PreferNewerChangeDate,
		PreferNewerCreationDate: opts.Priority.PreferNewerCreationDate,
		RuleOrder:               string(opts.Priority.RuleOrder),
	}
}

// Report is the reviewable output of one analysis run.
type Report struct {
	RunID       string           `json:"runId"`
	Input       string           `json:"input"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Options     Summary          `json:"options"`
	Stats       merge.Stats      `json:"stats"`
	Decisions   []merge.Decision `json:"decisions"`
}

// New stamps a report with a fresh run ID and the current time.
func New(input string, opts merge.Options, stats merge.Stats, decisions []merge.Decision) *Report {
	if decisions == nil {
		decisions = []merge.Decision{}
	}
	return &Report{
		RunID:       uuid.NewString(),
		Input:       input,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Options:     Summarize(opts),
		Stats:       stats,
		Decisions:   decisions,
	}
}

// Deletions returns the decisions marked delete.
func (r *Report) Deletions() []merge.Decision {
	var out []merge.Decision
	for _, d := range r.Decisions {
		if d.Status == dedup.Delete {
			out = append(out, d)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Write
// ---------------------------------------------------------------------------

// Write encodes r as indented JSON.
func Write(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// WriteFile writes r to path.
func WriteFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation of a report.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid decision report:")
	for _, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  %s: %s", fe.Field, fe.Message)
	}
	return sb.String()
}

// Validate checks raw JSON against the report schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("parsing decision report: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

// Read validates and decodes a report. Hand-written override files only
// need a "decisions" array whose entries carry sourceText, targetText and
// status.
func Read(r io.Reader) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decision report: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decoding decision report: %w", err)
	}
	return &rep, nil
}

// ReadFile reads the report at path.
func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rep, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}
