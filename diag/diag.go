// Package diag carries non-fatal findings (warnings, notes) produced while
// detecting, parsing and analysing a TMX document. Core packages return a
// List next to their primary result instead of printing; the caller decides
// where the messages go.
package diag

import (
	"fmt"
	"strings"
)

// Severity classifies a diagnostic.
type Severity string

const (
	// SeverityInfo is an informational note.
	SeverityInfo Severity = "info"
	// SeverityWarning is a recoverable problem; processing continued.
	SeverityWarning Severity = "warning"
)

// Diagnostic codes emitted by the core packages.
const (
	CodeEncodingMismatch   = "encoding-mismatch"
	CodeInvalidUnit        = "invalid-unit"
	CodeMissingVariant     = "missing-variant"
	CodeUnsupportedElement = "unsupported-element"
	CodeUnmatchedOverride  = "unmatched-override"
	CodeTagMismatch        = "tag-mismatch"
)

// Diagnostic is a single finding.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Warnf appends a warning.
func (l *List) Warnf(code, format string, args ...any) {
	*l = append(*l, Diagnostic{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Infof appends an informational note.
func (l *List) Infof(code, format string, args ...any) {
	*l = append(*l, Diagnostic{Severity: SeverityInfo, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Extend appends all diagnostics from other.
func (l *List) Extend(other List) {
	*l = append(*l, other...)
}

// Warnings returns only the warnings.
func (l List) Warnings() List {
	var out List
	for _, d := range l {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many diagnostics carry the given code.
func (l List) Count(code string) int {
	n := 0
	for _, d := range l {
		if d.Code == code {
			n++
		}
	}
	return n
}

// HasCode reports whether any diagnostic carries the given code.
func (l List) HasCode(code string) bool {
	return l.Count(code) > 0
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\n")
}
