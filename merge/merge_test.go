package merge

import (
	"testing"

	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/priority"
	"github.com/minios-linux/tmxdedup/tmx"
)

func newUnit(src, tgt, creationID, changeDate string) *tmx.Unit {
	return &tmx.Unit{
		CreationID: creationID,
		ChangeDate: changeDate,
		Variants: []tmx.Variant{
			{Lang: "en-CA", Seg: src},
			{Lang: "fr-CA", Seg: tgt},
		},
	}
}

func newDoc(units ...*tmx.Unit) *tmx.Document {
	return &tmx.Document{
		Version: "1.4",
		Header:  tmx.Header{SrcLang: "en-CA", Props: []tmx.Property{{Type: "targetlang", Text: "fr-CA"}}},
		Units:   units,
	}
}

func statusByCreationID(t *testing.T, decisions []Decision) map[string]dedup.Status {
	t.Helper()
	out := map[string]dedup.Status{}
	for _, d := range decisions {
		out[d.CreationID] = d.Status
	}
	return out
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

func TestAnalyzeCreationIDPreference(t *testing.T) {
	doc := newDoc(
		newUnit("Hello world.", "Bonjour le monde.", "alice", ""),
		newUnit("Hello world.", "Bonjour le monde.", "bob", ""),
	)
	opts := DefaultOptions()
	opts.Priority = priority.Config{CreationIDs: []string{"bob"}, RuleOrder: priority.IDsFirst}

	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(a.Groups))
	}
	got := statusByCreationID(t, a.Decisions)
	if got["bob"] != dedup.Keep || got["alice"] != dedup.Delete {
		t.Fatalf("statuses = %v, want bob keep / alice delete", got)
	}
	if a.Decisions[0].CreationID != "bob" {
		t.Errorf("winner should be listed first, got %q", a.Decisions[0].CreationID)
	}
	if a.Decisions[1].Rule != priority.RuleCreationID {
		t.Errorf("loser rule = %q, want %q", a.Decisions[1].Rule, priority.RuleCreationID)
	}
}

func TestAnalyzeNewerChangeDate(t *testing.T) {
	doc := newDoc(
		newUnit("Hello world.", "Bonjour le monde.", "alice", "20230101T000000Z"),
		newUnit("Hello world.", "Bonjour le monde.", "bob", "20240101T000000Z"),
	)
	opts := DefaultOptions()
	opts.Priority.PreferNewerChangeDate = true

	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, d := range a.Decisions {
		want := dedup.Delete
		if d.ChangeDate == "20240101T000000Z" {
			want = dedup.Keep
		}
		if d.Status != want {
			t.Errorf("%s: status = %s, want %s", d.ChangeDate, d.Status, want)
		}
	}
}

func TestAnalyzeExactlyOneKeepPerGroup(t *testing.T) {
	doc := newDoc(
		newUnit("Open", "Ouvrir", "a", ""),
		newUnit("open", "Ouvrir", "b", ""),
		newUnit("Open.", "Ouvrir", "c", ""),
		newUnit("Close", "Fermer", "d", ""),
		newUnit("Open", "Ouvrir", "e", ""),
	)
	opts := DefaultOptions()
	opts.Match.IgnorePunctuation = true

	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Groups) == 0 {
		t.Fatal("expected duplicate groups")
	}
	for _, g := range a.Groups {
		if n := len(g.Kept()); n != 1 {
			t.Errorf("group %q has %d kept members, want 1", g.ID(), n)
		}
	}
}

func TestAnalyzeSkipsMissingTarget(t *testing.T) {
	doc := newDoc(
		newUnit("Hello", "Bonjour", "a", ""),
		&tmx.Unit{CreationID: "b", Variants: []tmx.Variant{{Lang: "en-CA", Seg: "Hello"}, {Lang: "de-DE", Seg: "Hallo"}}},
	)
	a, err := Analyze(doc, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Groups) != 0 {
		t.Fatalf("groups = %d, want 0", len(a.Groups))
	}
	if a.Skipped != 1 || !a.Diagnostics.HasCode(diag.CodeMissingVariant) {
		t.Fatalf("skipped = %d, diags = %v", a.Skipped, a.Diagnostics)
	}
}

func TestAnalyzeLanguagesFromHeader(t *testing.T) {
	doc := newDoc(newUnit("x", "y", "a", ""))
	opts := DefaultOptions()
	resolved, err := opts.ResolveLanguages(doc)
	if err != nil {
		t.Fatalf("ResolveLanguages: %v", err)
	}
	if resolved.SourceLang != "en-CA" || resolved.TargetLang != "fr-CA" {
		t.Fatalf("languages = %q/%q", resolved.SourceLang, resolved.TargetLang)
	}

	_, err = DefaultOptions().ResolveLanguages(&tmx.Document{Units: []*tmx.Unit{{}}})
	if err == nil {
		t.Fatal("expected an error when no language can be found")
	}
}

func TestAnalyzeRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Match.MatchMode = "nearly"
	if _, err := Analyze(newDoc(newUnit("a", "b", "", "")), opts); err == nil {
		t.Fatal("expected validation error")
	}
}

// ---------------------------------------------------------------------------
// Overrides
// ---------------------------------------------------------------------------

func TestApplyOverrides(t *testing.T) {
	decisions := []Decision{
		{Position: 1, Key: "k", SourceText: "a", TargetText: "b", CreationID: "x", Status: dedup.Keep},
		{Position: 2, Key: "k", SourceText: "a", TargetText: "b", CreationID: "y", Status: dedup.Delete},
		{Position: 3, Key: "k", SourceText: "a", TargetText: "b", CreationID: "y", Status: dedup.Delete},
	}
	overrides := []Decision{
		{SourceText: "a", TargetText: "b", CreationID: "x", Status: dedup.Delete},
		{Position: 3, SourceText: "a", TargetText: "b", CreationID: "y", Status: dedup.Keep},
		{SourceText: "zzz", Status: dedup.Keep},
	}

	changed, unmatched := ApplyOverrides(decisions, overrides)
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}
	if len(unmatched) != 1 || unmatched[0].SourceText != "zzz" {
		t.Fatalf("unmatched = %v", unmatched)
	}
	want := []dedup.Status{dedup.Delete, dedup.Delete, dedup.Keep}
	for i, d := range decisions {
		if d.Status != want[i] {
			t.Errorf("decision %d status = %s, want %s", i+1, d.Status, want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

func TestFinalizeRemovesDeleted(t *testing.T) {
	doc := newDoc(
		newUnit("Hello world.", "Bonjour le monde.", "alice", ""),
		newUnit("Hello world.", "Bonjour le monde.", "bob", ""),
		newUnit("Bye", "Au revoir", "carol", ""),
		&tmx.Unit{CreationID: "broken"},
	)
	opts := DefaultOptions()
	opts.Priority.CreationIDs = []string{"bob"}
	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	out, stats := Finalize(doc, a.Decisions, "en", "fr")
	if stats != (Stats{OriginalCount: 4, UniqueCount: 3, DuplicatesRemoved: 1}) {
		t.Fatalf("stats = %+v", stats)
	}
	var ids []string
	for _, u := range out.Units {
		ids = append(ids, u.CreationID)
	}
	if len(ids) != 3 || ids[0] != "bob" || ids[1] != "carol" || ids[2] != "broken" {
		t.Fatalf("kept = %v, want [bob carol broken]", ids)
	}
	if out.Units[0] == doc.Units[1] {
		t.Error("finalized document must not alias input units")
	}
}

func TestFinalizeWithoutDecisionsKeepsEverything(t *testing.T) {
	doc := newDoc(newUnit("a", "b", "x", ""), newUnit("a", "b", "x", ""))
	out, stats := Finalize(doc, nil, "en", "fr")
	if len(out.Units) != 2 || stats.DuplicatesRemoved != 0 {
		t.Fatalf("units = %d, stats = %+v", len(out.Units), stats)
	}
}

func TestFinalizeTupleOnlyDecision(t *testing.T) {
	doc := newDoc(newUnit("a", "b", "x", ""), newUnit("a", "b", "x", ""), newUnit("a", "b", "y", ""))
	decisions := []Decision{{SourceText: "a", TargetText: "b", CreationID: "x", Status: dedup.Delete}}
	out, _ := Finalize(doc, decisions, "en", "fr")
	if len(out.Units) != 1 || out.Units[0].CreationID != "y" {
		t.Fatalf("expected only y to survive, got %d units", len(out.Units))
	}
}

func TestFinalizeIgnoresStalePosition(t *testing.T) {
	doc := newDoc(newUnit("a", "b", "x", ""), newUnit("c", "d", "y", ""))
	decisions := []Decision{{Position: 2, SourceText: "a", TargetText: "b", CreationID: "x", Status: dedup.Delete}}
	out, _ := Finalize(doc, decisions, "en", "fr")
	if len(out.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(out.Units))
	}
}

func TestDeleteWinsAcrossGroups(t *testing.T) {
	// "save" holds all three units and keeps a; "save." holds b and c and
	// keeps b. b is deleted because one of its groups deletes it.
	doc := newDoc(
		newUnit("Save", "s1", "a", ""),
		newUnit("Save.", "s2", "b", ""),
		newUnit("Save.", "s3", "c", ""),
	)
	opts := DefaultOptions()
	opts.Match.IgnorePunctuation = true
	opts.Priority.CreationIDs = []string{"a", "b", "c"}

	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(a.Groups))
	}
	out, stats := Finalize(doc, a.Decisions, "en", "fr")
	if len(out.Units) != 1 || out.Units[0].CreationID != "a" {
		var ids []string
		for _, u := range out.Units {
			ids = append(ids, u.CreationID)
		}
		t.Fatalf("kept = %v, want [a]", ids)
	}
	if stats.DuplicatesRemoved != 2 {
		t.Fatalf("removed = %d, want 2", stats.DuplicatesRemoved)
	}
}

func TestStrictTagMismatchRemovesNothing(t *testing.T) {
	// Every unit shares the key "save" but each pair differs in its tags, so
	// the two units that disagree with the first are left out of the group.
	doc := newDoc(
		newUnit("Save", "<b>Enregistrer</b>", "a", ""),
		newUnit("Save", "<i>Enregistrer</i>", "b", ""),
		newUnit("Save", "<i>Sauver</i>", "c", ""),
	)
	opts := DefaultOptions()
	opts.Match.TagStrictness = dedup.Strict

	a, err := Analyze(doc, opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Groups) != 0 {
		t.Fatalf("groups = %d, want 0", len(a.Groups))
	}
	if n := a.Diagnostics.Count(diag.CodeTagMismatch); n != 2 {
		t.Fatalf("tag-mismatch notes = %d, want 2", n)
	}
	out, stats := Finalize(doc, a.Decisions, "en", "fr")
	if len(out.Units) != 3 || stats.DuplicatesRemoved != 0 {
		t.Fatalf("units = %d, stats = %+v", len(out.Units), stats)
	}
}

func TestIdempotent(t *testing.T) {
	doc := newDoc(
		newUnit("Open file", "Ouvrir", "a", "20230101T000000Z"),
		newUnit("open  file.", "Ouvrir", "b", "20240101T000000Z"),
		newUnit("Open file!", "Ouvrir le fichier", "c", ""),
		newUnit("<b>Open</b> file", "<b>Ouvrir</b>", "d", ""),
		newUnit("<i>Open</i> file", "<i>Ouvrir</i>", "e", ""),
		newUnit("Close", "Fermer", "f", ""),
		newUnit("Close", "Fermer", "g", ""),
	)
	for _, mode := range dedup.MatchModes {
		for _, strictness := range dedup.TagStrictnesses {
			opts := DefaultOptions()
			opts.Match.MatchMode = mode
			opts.Match.TagStrictness = strictness
			opts.Match.IgnorePunctuation = true
			opts.Priority.PreferNewerChangeDate = true

			a, err := Analyze(doc, opts)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			first, _ := Finalize(doc, a.Decisions, "en", "fr")

			again, err := Analyze(first, opts)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			_, stats := Finalize(first, again.Decisions, "en", "fr")
			if stats.DuplicatesRemoved != 0 {
				t.Errorf("%s/%s: second pass removed %d units", mode, strictness, stats.DuplicatesRemoved)
			}
		}
	}
}
