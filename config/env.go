package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "TMXDEDUP_"

// EnvFileName is read from the project root when present. Variables already
// set in the process environment take precedence over it.
const EnvFileName = ".env"

// LoadEnvFile loads rootDir/.env into the process environment.
func LoadEnvFile(rootDir string) error {
	path := filepath.Join(rootDir, EnvFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from TMXDEDUP_* variables:
//
//	TMXDEDUP_SOURCE_LANG, TMXDEDUP_TARGET_LANG
//	TMXDEDUP_MATCH_MODE, TMXDEDUP_TAG_STRICTNESS
//	TMXDEDUP_CASE_SENSITIVE, TMXDEDUP_IGNORE_PUNCTUATION,
//	TMXDEDUP_IGNORE_WHITESPACE, TMXDEDUP_NORMALIZE_UNICODE
//	TMXDEDUP_CREATION_IDS, TMXDEDUP_CHANGE_IDS (comma separated)
//	TMXDEDUP_PREFER_NEWER_CHANGE_DATE, TMXDEDUP_PREFER_NEWER_CREATION_DATE
//	TMXDEDUP_RULE_ORDER
//	TMXDEDUP_SUFFIX, TMXDEDUP_XML_ENCODING, TMXDEDUP_BATCH_SIZE, TMXDEDUP_WORKERS
//	TMXDEDUP_PHYSICAL_BYTE_ORDER
//
// An empty variable counts as unset.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("SOURCE_LANG", &f.SourceLang)
	env.str("TARGET_LANG", &f.TargetLang)
	env.str("MATCH_MODE", &f.Match.Mode)
	env.str("TAG_STRICTNESS", &f.Match.TagStrictness)
	env.boolean("CASE_SENSITIVE", &f.Match.CaseSensitive)
	env.boolean("IGNORE_PUNCTUATION", &f.Match.IgnorePunctuation)
	env.boolean("IGNORE_WHITESPACE", &f.Match.IgnoreWhitespace)
	env.boolean("NORMALIZE_UNICODE", &f.Match.NormalizeUnicode)
	env.list("CREATION_IDS", &f.Priority.CreationIDs)
	env.list("CHANGE_IDS", &f.Priority.ChangeIDs)
	env.boolean("PREFER_NEWER_CHANGE_DATE", &f.Priority.PreferNewerChangeDate)
	env.boolean("PREFER_NEWER_CREATION_DATE", &f.Priority.PreferNewerCreationDate)
	env.str("RULE_ORDER", &f.Priority.RuleOrder)
	env.str("SUFFIX", &f.Output.Suffix)
	env.str("XML_ENCODING", &f.Output.XMLEncoding)
	env.integer("BATCH_SIZE", &f.Output.BatchSize)
	env.integer("WORKERS", &f.Output.Workers)
	env.boolean("PHYSICAL_BYTE_ORDER", &f.Input.PhysicalByteOrder)

	return env.err
}

// envReader keeps the first parse error so ApplyEnv reads straight through.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) fail(name, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid value %q for %s%s: %w", value, EnvPrefix, name, err)
	}
}

func (r *envReader) str(name string, dest *string) {
	if v, ok := r.get(name); ok {
		*dest = v
	}
}

func (r *envReader) boolean(name string, dest *bool) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dest = parsed
}

func (r *envReader) integer(name string, dest *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dest = parsed
}

func (r *envReader) list(name string, dest *[]string) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	*dest = SplitList(v)
}

// SplitList splits a comma separated list, trimming items and dropping
// empty ones.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
