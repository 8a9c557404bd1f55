package tmx

import "github.com/minios-linux/tmxdedup/langmeta"

// Metadata summarises a document for display and for defaulting the
// source/target language prefixes.
type Metadata struct {
	SourceLanguage      string   `json:"source_language"`
	TargetLanguage      string   `json:"target_language"`
	CreationTool        string   `json:"creation_tool,omitempty"`
	CreationToolVersion string   `json:"creation_tool_version,omitempty"`
	SegmentType         string   `json:"segment_type,omitempty"`
	CreationIDs         []string `json:"creation_ids"`
	ChangeIDs           []string `json:"change_ids"`
	TotalUnits          int      `json:"total_units"`
	ValidUnits          int      `json:"valid_units"`
}

// TargetLangProp is the header property type that declares the target language.
const TargetLangProp = "targetlang"

// ExtractMetadata collects header languages, tool information and the
// distinct creation/change IDs of all units in first-seen order.
func ExtractMetadata(doc *Document) Metadata {
	md := Metadata{
		SourceLanguage:      doc.Header.SrcLang,
		CreationTool:        doc.Header.CreationTool,
		CreationToolVersion: doc.Header.CreationToolVersion,
		SegmentType:         doc.Header.SegType,
		CreationIDs:         []string{},
		ChangeIDs:           []string{},
		TotalUnits:          len(doc.Units),
	}
	md.TargetLanguage, _ = doc.Header.Prop(TargetLangProp)

	seenCreation := map[string]bool{}
	seenChange := map[string]bool{}
	for _, u := range doc.Units {
		if u.Valid() {
			md.ValidUnits++
		}
		if u.CreationID != "" && !seenCreation[u.CreationID] {
			seenCreation[u.CreationID] = true
			md.CreationIDs = append(md.CreationIDs, u.CreationID)
		}
		if u.ChangeID != "" && !seenChange[u.ChangeID] {
			seenChange[u.ChangeID] = true
			md.ChangeIDs = append(md.ChangeIDs, u.ChangeID)
		}
	}
	return md
}

// Languages returns the source and target language tags of the document:
// the header's srclang and targetlang property first, then the variant tags
// of the first valid unit for whichever is still unknown. The variant that
// matches the known side (by prefix) is skipped when picking the other.
func Languages(doc *Document) (source, target string) {
	source = doc.Header.SrcLang
	target, _ = doc.Header.Prop(TargetLangProp)
	if source != "" && target != "" {
		return source, target
	}

	for _, u := range doc.Units {
		if !u.Valid() {
			continue
		}
		a, b := u.Variants[0].Lang, u.Variants[1].Lang
		switch {
		case source == "" && target == "":
			return a, b
		case source == "":
			if langmeta.Matches(a, target) {
				return b, target
			}
			return a, target
		default:
			if langmeta.Matches(a, source) {
				return source, b
			}
			return source, a
		}
	}
	return source, target
}
