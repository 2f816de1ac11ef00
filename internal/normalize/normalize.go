// Package normalize turns raw design-tree payloads into canonical specs.
// Normalization strips volatile, non-visual fields so that two fetches of a
// visually identical node serialize to byte-identical text.
package normalize

import (
	shared "sentinel/shared/types"
)

// Options carries the per-run property overrides. A zero Options applies
// only the default exclusion set.
type Options struct {
	IncludeProperties []string
	ExcludeProperties []string
}

// defaultExcluded lists fields that change between fetches without any
// visual meaning: geometry caches, prototype wiring, plugin-private data.
var defaultExcluded = map[string]bool{
	"absoluteBoundingBox":  true,
	"absoluteRenderBounds": true,
	"relativeTransform":    true,
	"size":                 true,
	"rotation":             true,
	"strokeGeometry":       true,
	"fillGeometry":         true,
	"prototypeStartNodeID": true,
	"prototypeDevice":      true,
	"transitionNodeID":     true,
	"transitionDuration":   true,
	"transitionEasing":     true,
	"flowStartingPoints":   true,
	"interactions":         true,
	"overflowDirection":    true,
	"exportSettings":       true,
	"pluginData":           true,
	"sharedPluginData":     true,
	"lastModified":         true,
	"version":              true,
	"thumbnailUrl":         true,
	"scrollBehavior":       true,
}

// defaultPreserved lists visually significant fields that survive even when
// an include allow-list is configured.
var defaultPreserved = map[string]bool{
	"id":                    true,
	"name":                  true,
	"type":                  true,
	"fills":                 true,
	"strokes":               true,
	"strokeWeight":          true,
	"effects":               true,
	"style":                 true,
	"layoutMode":            true,
	"layoutAlign":           true,
	"layoutGrow":            true,
	"itemSpacing":           true,
	"paddingLeft":           true,
	"paddingRight":          true,
	"paddingTop":            true,
	"paddingBottom":         true,
	"primaryAxisAlignItems": true,
	"counterAxisAlignItems": true,
	"constraints":           true,
	"children":              true,
	"cornerRadius":          true,
	"opacity":               true,
	"blendMode":             true,
	"visible":               true,
	"componentProperties":   true,
	"variantProperties":     true,
	"characters":            true,
}

// Normalize strips volatile fields from a raw node tree. Pure function of
// (raw, opts): the same input always yields the same output, independent of
// upstream field ordering. The include allow-list restricts the root object's
// keys to (allow-list ∪ preserved visual set); exclusions apply recursively
// at every level, including inside children.
func Normalize(raw shared.RawNode, opts Options) shared.RawNode {
	excluded := make(map[string]bool, len(defaultExcluded)+len(opts.ExcludeProperties))
	for k := range defaultExcluded {
		excluded[k] = true
	}
	for _, k := range opts.ExcludeProperties {
		excluded[k] = true
	}

	var included map[string]bool
	if len(opts.IncludeProperties) > 0 {
		included = make(map[string]bool, len(opts.IncludeProperties))
		for _, k := range opts.IncludeProperties {
			included[k] = true
		}
	}

	out := make(shared.RawNode, len(raw))
	for key, value := range raw {
		if excluded[key] {
			continue
		}
		if included != nil && !included[key] && !defaultPreserved[key] {
			continue
		}
		if v, ok := normalizeValue(value, excluded); ok {
			out[key] = v
		}
	}
	return out
}

// normalizeValue recurses into objects and arrays. Array element order is
// preserved: children order is rendering order. The second return is false
// when the value must be omitted entirely.
func normalizeValue(value any, excluded map[string]bool) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case shared.RawNode:
		return normalizeMap(map[string]any(v), excluded), true
	case map[string]any:
		return normalizeMap(v, excluded), true
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			if n, ok := normalizeValue(item, excluded); ok {
				items = append(items, n)
			}
		}
		return items, true
	default:
		// Non-object, non-array leaves pass through unchanged.
		return value, true
	}
}

func normalizeMap(m map[string]any, excluded map[string]bool) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if excluded[key] {
			continue
		}
		if v, ok := normalizeValue(value, excluded); ok {
			out[key] = v
		}
	}
	return out
}
