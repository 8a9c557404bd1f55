package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/priority"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(f, Default()) {
		t.Fatalf("Load(empty dir) = %#v, want defaults", f)
	}

	opts := f.MergeOptions()
	if opts.Match != dedup.DefaultOptions() {
		t.Fatalf("Match = %#v, want %#v", opts.Match, dedup.DefaultOptions())
	}
	if opts.Priority.RuleOrder != priority.IDsFirst {
		t.Fatalf("RuleOrder = %q, want idsFirst", opts.Priority.RuleOrder)
	}
	if f.Output.BatchSize != 100 || f.Output.Suffix != "_processed" || f.Output.XMLEncoding != "utf-16" {
		t.Fatalf("Output = %#v", f.Output)
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("overrides and keeps unset defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "source_lang: en-CA\n"+
			"target_lang: fr-CA\n"+
			"match:\n"+
			"  mode: both\n"+
			"  case_sensitive: true\n"+
			"priority:\n"+
			"  creation_ids: [bob, alice]\n"+
			"  rule_order: dates\n"+
			"output:\n"+
			"  workers: 4\n")

		f, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if f.Match.Mode != "bothEqual" {
			t.Fatalf("Match.Mode = %q, want alias normalised to bothEqual", f.Match.Mode)
		}
		if !f.Match.IgnoreWhitespace {
			t.Fatal("IgnoreWhitespace default lost")
		}
		if f.Match.TagStrictness != "permissive" {
			t.Fatalf("TagStrictness = %q", f.Match.TagStrictness)
		}
		if f.Priority.RuleOrder != "datesFirst" {
			t.Fatalf("RuleOrder = %q", f.Priority.RuleOrder)
		}

		opts := f.MergeOptions()
		if opts.SourceLang != "en-CA" || opts.TargetLang != "fr-CA" {
			t.Fatalf("languages = %q/%q", opts.SourceLang, opts.TargetLang)
		}
		if !reflect.DeepEqual(opts.Priority.CreationIDs, []string{"bob", "alice"}) {
			t.Fatalf("CreationIDs = %v", opts.Priority.CreationIDs)
		}
		if f.Output.Workers != 4 || f.Output.BatchSize != 100 {
			t.Fatalf("Output = %#v", f.Output)
		}
	})

	t.Run("rejects unknown enumeration", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "match:\n  mode: fuzzy\n  tag_strictness: loose\n")
		_, err := Load(dir)
		if err == nil {
			t.Fatal("expected validation error")
		}
		for _, want := range []string{"match.mode", `"fuzzy"`, "match.tag_strictness"} {
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("error %q does not mention %s", err, want)
			}
		}
	})

	t.Run("rejects out of range sizes", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "output:\n  batch_size: 0\n")
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), "output.batch_size") {
			t.Fatalf("expected batch_size error, got %v", err)
		}
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "match: [unclosed\n")
		if _, err := Load(dir); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TMXDEDUP_TARGET_LANG":              "de",
		"TMXDEDUP_IGNORE_WHITESPACE":        "false",
		"TMXDEDUP_CREATION_IDS":             " bob , ,carol",
		"TMXDEDUP_BATCH_SIZE":               "25",
		"TMXDEDUP_MATCH_MODE":               "",
		"TMXDEDUP_PREFER_NEWER_CHANGE_DATE": "1",
		"TMXDEDUP_PHYSICAL_BYTE_ORDER":      "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	f := Default()
	if err := f.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}
	if f.TargetLang != "de" || f.Match.IgnoreWhitespace || f.Output.BatchSize != 25 || !f.Priority.PreferNewerChangeDate {
		t.Fatalf("unexpected result %#v", f)
	}
	if !f.Input.PhysicalByteOrder || !f.ProcessOptions().Detect.PhysicalByteOrder {
		t.Fatal("TMXDEDUP_PHYSICAL_BYTE_ORDER not applied")
	}
	if f.Match.Mode != "sourceEqual" {
		t.Fatalf("empty variable must not override: Mode = %q", f.Match.Mode)
	}
	if !reflect.DeepEqual(f.Priority.CreationIDs, []string{"bob", "carol"}) {
		t.Fatalf("CreationIDs = %v", f.Priority.CreationIDs)
	}

	env["TMXDEDUP_WORKERS"] = "many"
	if err := Default().ApplyEnv(lookup); err == nil || !strings.Contains(err.Error(), "TMXDEDUP_WORKERS") {
		t.Fatalf("expected WORKERS error, got %v", err)
	}
	if err := Default().ApplyEnv(noEnv); err != nil {
		t.Fatalf("ApplyEnv(no env) error: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "TMXDEDUP_RULE_ORDER"
	t.Cleanup(func() { os.Unsetenv(key) })
	os.Unsetenv(key)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, EnvFileName), []byte(key+"=datesFirst\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if f.Priority.RuleOrder != "datesFirst" {
		t.Fatalf("RuleOrder = %q, want value from .env", f.Priority.RuleOrder)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := Default()
	f.Priority.ChangeIDs = []string{"reviewer"}
	f.Match.TagStrictness = "strict"
	if err := f.Save(dir); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Fatalf("round trip = %#v, want %#v", got, f)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Default(), Default()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("equal settings must share a fingerprint")
	}
	b.Priority.CreationIDs = []string{"x"}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("changed settings must change the fingerprint")
	}
	b = Default()
	b.Input.PhysicalByteOrder = true
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("byte order detection changes the output")
	}
	b = Default()
	b.Output.Workers = 8
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("workers do not affect output")
	}
}

func TestSplitList(t *testing.T) {
	if got := SplitList(""); got != nil {
		t.Fatalf("SplitList(\"\") = %v, want nil", got)
	}
	if got := SplitList("a,b ,, c"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("SplitList = %v", got)
	}
}
