// Package cypher compiles pattern queries for the mapper: node and relation
// patterns, namespaced filters, count stages and the final projection.
package cypher

import (
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"
)

// Grammar turns label sets into placeholders and back.
type Grammar struct{}

// ModelAsNode returns the placeholder of a label set: every label underscored,
// joined with "_". User:Admin becomes user_admin.
func (Grammar) ModelAsNode(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, inflect.Underscore(l))
	}
	return strings.Join(parts, "_")
}

// CropLabelIdentifier strips quoting and label decoration from a placeholder,
// so "`post`:`Post`" and "(post:Post)" both crop to "post".
func (Grammar) CropLabelIdentifier(identifier string) string {
	id := strings.Trim(strings.TrimSpace(identifier), "()")
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	return strings.Trim(strings.TrimSpace(id), "`")
}

// WrapLabels renders a label set as :`A`:`B`.
func (Grammar) WrapLabels(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(":`")
		b.WriteString(strings.ReplaceAll(l, "`", "``"))
		b.WriteString("`")
	}
	return b.String()
}

// NodePattern renders (node:`A`:`B`).
func (g Grammar) NodePattern(node string, labels []string) string {
	return "(" + node + g.WrapLabels(labels) + ")"
}

// EdgePlaceholder names the edge bound between a parent and the related placeholder.
// Untyped edges are named after the related placeholder alone.
func (Grammar) EdgePlaceholder(edgeType, related string) string {
	if edgeType == "" {
		return "rel_morph_" + related
	}
	return "rel_" + strings.ToLower(sanitize(edgeType)) + "_" + related
}

var (
	nonWord    = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	qualified  = regexp.MustCompile(`(^|[^.A-Za-z0-9_{])([A-Za-z_][A-Za-z0-9_]*)\.[A-Za-z_]`)
)

func sanitize(s string) string {
	return strings.Trim(nonWord.ReplaceAllString(s, "_"), "_")
}
