// Package config loads the .tmxdedup.yaml project configuration.
//
// Settings are layered: built-in defaults, then .tmxdedup.yaml in the project
// root, then TMXDEDUP_* environment variables (optionally from a .env file
// next to it). Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/tmxdedup/charset"
	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/merge"
	"github.com/minios-linux/tmxdedup/priority"
	"github.com/minios-linux/tmxdedup/process"
	"github.com/minios-linux/tmxdedup/tmx"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .tmxdedup.yaml structure.
type File struct {
	// SourceLang and TargetLang are language prefixes ("en", "fr-CA").
	// Empty means: take them from each document.
	SourceLang string `yaml:"source_lang,omitempty" validate:"omitempty,min=2"`
	TargetLang string `yaml:"target_lang,omitempty" validate:"omitempty,min=2"`

	Input    Input    `yaml:"input,omitempty"`
	Match    Match    `yaml:"match"`
	Priority Priority `yaml:"priority"`
	Output   Output   `yaml:"output"`
}

// Input holds encoding detection settings.
type Input struct {
	// PhysicalByteOrder classifies BOM-less UTF-16 by where the zero high
	// bytes actually fall (odd offsets = little-endian).
	PhysicalByteOrder bool `yaml:"physical_byte_order,omitempty"`
}

// Match holds the duplicate matching options.
type Match struct {
	Mode              string `yaml:"mode" validate:"required,oneof=sourceEqual targetEqual bothEqual"`
	CaseSensitive     bool   `yaml:"case_sensitive"`
	IgnorePunctuation bool   `yaml:"ignore_punctuation"`
	IgnoreWhitespace  bool   `yaml:"ignore_whitespace"`
	TagStrictness     string `yaml:"tag_strictness" validate:"required,oneof=permissive medium strict"`
	NormalizeUnicode  bool   `yaml:"normalize_unicode,omitempty"`
}

// Priority holds the winner selection policy.
type Priority struct {
	CreationIDs             []string `yaml:"creation_ids,omitempty" validate:"dive,required"`
	ChangeIDs               []string `yaml:"change_ids,omitempty" validate:"dive,required"`
	PreferNewerChangeDate   bool     `yaml:"prefer_newer_change_date"`
	PreferNewerCreationDate bool     `yaml:"prefer_newer_creation_date"`
	RuleOrder               string   `yaml:"rule_order" validate:"required,oneof=idsFirst datesFirst"`
}

// Output holds file naming and processing settings.
type Output struct {
	// Suffix is appended to the input base name (default "_processed").
	Suffix string `yaml:"suffix" validate:"required,excludesall=/\\"`
	// XMLEncoding is the label written into the XML declaration; "auto"
	// writes the real output encoding.
	XMLEncoding string `yaml:"xml_encoding" validate:"required"`
	BatchSize   int    `yaml:"batch_size" validate:"min=1,max=100000"`
	Workers     int    `yaml:"workers" validate:"min=1,max=64"`
}

// FileName is the default config file name.
const FileName = ".tmxdedup.yaml"

// Default returns the built-in settings.
func Default() *File {
	m := dedup.DefaultOptions()
	p := priority.DefaultConfig()
	return &File{
		Match: Match{
			Mode:              string(m.MatchMode),
			CaseSensitive:     m.CaseSensitive,
			IgnorePunctuation: m.IgnorePunctuation,
			IgnoreWhitespace:  m.IgnoreWhitespace,
			TagStrictness:     string(m.TagStrictness),
		},
		Priority: Priority{RuleOrder: string(p.RuleOrder)},
		Output: Output{
			Suffix:      process.DefaultSuffix,
			XMLEncoding: tmx.DefaultDeclaredEncoding,
			BatchSize:   100,
			Workers:     1,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads .tmxdedup.yaml from rootDir on top of the defaults, applies the
// environment and validates the result. A missing file is not an error.
func Load(rootDir string) (*File, error) {
	f := Default()

	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := LoadEnvFile(rootDir); err != nil {
		return nil, err
	}
	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save writes f to rootDir/.tmxdedup.yaml.
func (f *File) Save(rootDir string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	path := filepath.Join(rootDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Normalize rewrites accepted aliases ("source", "ids", ...) to their
// canonical spelling. Unknown values are left for Validate to report.
func (f *File) Normalize() {
	if m, err := dedup.ParseMatchMode(f.Match.Mode); err == nil {
		f.Match.Mode = string(m)
	}
	if s, err := dedup.ParseTagStrictness(f.Match.TagStrictness); err == nil {
		f.Match.TagStrictness = string(s)
	}
	if r, err := priority.ParseRuleOrder(f.Priority.RuleOrder); err == nil {
		f.Priority.RuleOrder = string(r)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and joins the failures into one error.
func (f *File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New("invalid configuration: " + strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "File.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of %s", field, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "max":
		return fmt.Sprintf("%s: %v is out of range (%s %s)", field, fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s check", field, fe.Tag())
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// MergeOptions converts the file into engine options. It assumes Validate
// has passed.
func (f *File) MergeOptions() merge.Options {
	return merge.Options{
		Match: dedup.Options{
			MatchMode:         dedup.MatchMode(f.Match.Mode),
			CaseSensitive:     f.Match.CaseSensitive,
			IgnorePunctuation: f.Match.IgnorePunctuation,
			IgnoreWhitespace:  f.Match.IgnoreWhitespace,
			TagStrictness:     dedup.TagStrictness(f.Match.TagStrictness),
			NormalizeUnicode:  f.Match.NormalizeUnicode,
		},
		Priority: priority.Config{
			CreationIDs:             f.Priority.CreationIDs,
			ChangeIDs:               f.Priority.ChangeIDs,
			PreferNewerChangeDate:   f.Priority.PreferNewerChangeDate,
			PreferNewerCreationDate: f.Priority.PreferNewerCreationDate,
			RuleOrder:               priority.RuleOrder(f.Priority.RuleOrder),
		},
		SourceLang: f.SourceLang,
		TargetLang: f.TargetLang,
	}
}

// ProcessOptions converts the file into pipeline options.
func (f *File) ProcessOptions() process.Options {
	return process.Options{
		Merge:            f.MergeOptions(),
		Detect:           charset.Options{PhysicalByteOrder: f.Input.PhysicalByteOrder},
		DeclaredEncoding: f.Output.XMLEncoding,
		BatchSize:        f.Output.BatchSize,
	}
}

// Fingerprint is a stable one-line rendering of every setting that affects
// the output bytes. Journal entries compare it to detect changed settings.
func (f *File) Fingerprint() string {
	return fmt.Sprintf("src=%s tgt=%s mode=%s case=%t punct=%t ws=%t tags=%s nfc=%t cids=%s chids=%s newchg=%t newcre=%t order=%s enc=%s phys=%t",
		f.SourceLang, f.TargetLang,
		f.Match.Mode, f.Match.CaseSensitive, f.Match.IgnorePunctuation, f.Match.IgnoreWhitespace,
		f.Match.TagStrictness, f.Match.NormalizeUnicode,
		strings.Join(f.Priority.CreationIDs, ","), strings.Join(f.Priority.ChangeIDs, ","),
		f.Priority.PreferNewerChangeDate, f.Priority.PreferNewerCreationDate, f.Priority.RuleOrder,
		f.Output.XMLEncoding, f.Input.PhysicalByteOrder)
}
