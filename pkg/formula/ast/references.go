package ast

import (
	"sort"
	"strings"
)

// ReferenceKind tells which part of a reference a site names.
type ReferenceKind int

const (
	// RefField is the name inside field('...').
	RefField ReferenceKind = iota
	// RefLookupThrough is the link field name of lookup('...', x).
	RefLookupThrough
	// RefLookupTarget is the target field name of lookup(x, '...').
	RefLookupTarget
)

// Reference is one place in the source that names a field.
type Reference struct {
	Kind ReferenceKind
	Name string
	// Through is the link field name for RefLookupTarget.
	Through string
	ID      int64
	ByID    bool
	Pos     Span
}

// References lists every field reference in source order.
func References(n Node) []Reference {
	var refs []Reference
	Walk(n, func(node Node) bool {
		switch v := node.(type) {
		case *FieldReference:
			refs = append(refs, Reference{Kind: RefField, Name: v.Name, ID: v.ID, ByID: v.ByID, Pos: v.NamePos})
		case *LookupReference:
			refs = append(refs,
				Reference{Kind: RefLookupThrough, Name: v.ThroughName, Pos: v.ThroughPos},
				Reference{Kind: RefLookupTarget, Name: v.TargetName, Through: v.ThroughName, Pos: v.TargetPos},
			)
		}
		return true
	})
	return refs
}

// Splice replaces the given spans of src. Spans must not overlap.
func Splice(src string, edits map[Span]string) string {
	if len(edits) == 0 {
		return src
	}
	spans := make([]Span, 0, len(edits))
	for s := range edits {
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var sb strings.Builder
	last := 0
	for _, s := range spans {
		if s.Start < last || s.End > len(src) {
			continue
		}
		sb.WriteString(src[last:s.Start])
		sb.WriteString(edits[s])
		last = s.End
	}
	sb.WriteString(src[last:])
	return sb.String()
}

// RenameReferences rewrites the names selected by rename, keeping the rest of
// the source byte for byte. rename returns the new name and true for the sites
// to change.
func RenameReferences(src string, root Node, rename func(Reference) (string, bool)) (string, bool) {
	edits := make(map[Span]string)
	for _, ref := range References(root) {
		if ref.ByID || !ref.Pos.Valid() {
			continue
		}
		if newName, ok := rename(ref); ok {
			edits[ref.Pos] = Quote(newName)
		}
	}
	if len(edits) == 0 {
		return src, false
	}
	return Splice(src, edits), true
}
