package differ

import (
	"strconv"
	"testing"

	shared "sentinel/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSpecs(t *testing.T) {
	t.Run("ModifiedPrimitive", func(t *testing.T) {
		changes := DiffSpecs(
			shared.RawNode{"opacity": 1.0},
			shared.RawNode{"opacity": 0.5},
		)

		require.Len(t, changes, 1)
		assert.Equal(t, []string{"opacity"}, changes[0].Path)
		assert.Equal(t, shared.ChangeModified, changes[0].Kind)
		assert.Equal(t, 1.0, changes[0].Previous)
		assert.Equal(t, 0.5, changes[0].Current)
	})

	t.Run("AddedAndRemovedKeys", func(t *testing.T) {
		changes := DiffSpecs(
			shared.RawNode{"cornerRadius": 4.0},
			shared.RawNode{"blendMode": "NORMAL"},
		)

		require.Len(t, changes, 2)
		assert.Equal(t, shared.ChangeAdded, changes[0].Kind)
		assert.Equal(t, []string{"blendMode"}, changes[0].Path)
		assert.Equal(t, shared.ChangeRemoved, changes[1].Kind)
		assert.Equal(t, []string{"cornerRadius"}, changes[1].Path)
	})

	t.Run("NestedChangesCarryFullPath", func(t *testing.T) {
		changes := DiffSpecs(
			shared.RawNode{"fills": []any{map[string]any{"color": "#fff"}}},
			shared.RawNode{"fills": []any{map[string]any{"color": "#000"}}},
		)

		require.Len(t, changes, 1)
		assert.Equal(t, []string{"fills", "0", "color"}, changes[0].Path)
		assert.Equal(t, "#fff", changes[0].Previous)
		assert.Equal(t, "#000", changes[0].Current)
	})

	t.Run("ArraysComparedByIndex", func(t *testing.T) {
		changes := DiffSpecs(
			shared.RawNode{"children": []any{
				map[string]any{"id": "a"},
				map[string]any{"id": "b"},
			}},
			shared.RawNode{"children": []any{
				map[string]any{"id": "b"},
				map[string]any{"id": "a"},
			}},
		)

		// A reorder shows up as two per-index modifications, not a move.
		require.Len(t, changes, 2)
		assert.Equal(t, []string{"children", "0", "id"}, changes[0].Path)
		assert.Equal(t, []string{"children", "1", "id"}, changes[1].Path)
	})

	t.Run("ArrayGrowthAndShrink", func(t *testing.T) {
		grown := DiffSpecs(
			shared.RawNode{"effects": []any{"a"}},
			shared.RawNode{"effects": []any{"a", "b"}},
		)
		require.Len(t, grown, 1)
		assert.Equal(t, shared.ChangeAdded, grown[0].Kind)
		assert.Equal(t, []string{"effects", "1"}, grown[0].Path)

		shrunk := DiffSpecs(
			shared.RawNode{"effects": []any{"a", "b"}},
			shared.RawNode{"effects": []any{"a"}},
		)
		require.Len(t, shrunk, 1)
		assert.Equal(t, shared.ChangeRemoved, shrunk[0].Kind)
	})

	t.Run("TypeChangeIsSingleModification", func(t *testing.T) {
		changes := DiffSpecs(
			shared.RawNode{"style": map[string]any{"fontSize": 14.0}},
			shared.RawNode{"style": "compact"},
		)

		require.Len(t, changes, 1)
		assert.Equal(t, shared.ChangeModified, changes[0].Kind)
	})

	t.Run("IdenticalSpecsYieldNothing", func(t *testing.T) {
		spec := shared.RawNode{"name": "Btn", "fills": []any{map[string]any{"color": "#fff"}}}
		assert.Empty(t, DiffSpecs(spec, spec))
	})
}

// Re-applying every change at its path onto the previous spec must
// reconstruct the current one.
func TestDiffCompleteness(t *testing.T) {
	previous := shared.RawNode{
		"name":    "Card",
		"opacity": 1.0,
		"fills":   []any{map[string]any{"color": "#fff", "type": "SOLID"}},
		"style":   map[string]any{"fontSize": 14.0, "fontFamily": "Inter"},
	}
	current := shared.RawNode{
		"name":         "Card",
		"opacity":      0.8,
		"fills":        []any{map[string]any{"color": "#000", "type": "SOLID"}},
		"style":        map[string]any{"fontSize": 16.0, "fontFamily": "Inter"},
		"cornerRadius": 8.0,
	}

	rebuilt := deepCopy(map[string]any(previous))
	for _, change := range DiffSpecs(previous, current) {
		applyChange(t, rebuilt, change)
	}

	assert.Equal(t, map[string]any(current), rebuilt)
}

func applyChange(t *testing.T, root map[string]any, change shared.PropertyChange) {
	t.Helper()
	container := any(root)
	for _, seg := range change.Path[:len(change.Path)-1] {
		switch c := container.(type) {
		case map[string]any:
			container = c[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			require.NoError(t, err)
			container = c[i]
		default:
			t.Fatalf("cannot descend into %T", container)
		}
	}

	last := change.Path[len(change.Path)-1]
	m, ok := container.(map[string]any)
	require.True(t, ok, "test paths end in object keys")
	if change.Kind == shared.ChangeRemoved {
		delete(m, last)
		return
	}
	m[last] = change.Current
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCopy(val)
		case []any:
			items := make([]any, len(val))
			for i, item := range val {
				if im, ok := item.(map[string]any); ok {
					items[i] = deepCopy(im)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

func TestDiffVariants(t *testing.T) {
	t.Run("ChangedVariantProperty", func(t *testing.T) {
		changes := DiffVariants(
			shared.RawNode{"variantProperties": map[string]any{"State": "Default", "Size": "M"}},
			shared.RawNode{"variantProperties": map[string]any{"State": "Hover", "Size": "M"}},
		)

		require.Len(t, changes, 1)
		assert.Equal(t, "State", changes[0].Property)
		assert.Equal(t, "Default", changes[0].Previous)
		assert.Equal(t, "Hover", changes[0].Current)
	})

	t.Run("MissingSideRendersEmpty", func(t *testing.T) {
		changes := DiffVariants(
			shared.RawNode{},
			shared.RawNode{"variantProperties": map[string]any{"State": "Hover"}},
		)

		require.Len(t, changes, 1)
		assert.Equal(t, "", changes[0].Previous)
		assert.Equal(t, "Hover", changes[0].Current)
	})
}

func TestGenerateChangelogEntries(t *testing.T) {
	record := func(nodeID string, spec shared.RawNode, hash string) *shared.SpecRecord {
		return &shared.SpecRecord{FileKey: "abc", NodeID: nodeID, Spec: spec, ContentHash: hash}
	}

	results := []shared.ChangeDetectionResult{
		{
			HasChanged: true,
			Previous:   record("1:2", shared.RawNode{"name": "Btn", "opacity": 1.0}, "h1"),
			Current:    record("1:2", shared.RawNode{"name": "Btn", "opacity": 0.5}, "h2"),
		},
		{
			// Unchanged node: must not produce an entry.
			HasChanged: false,
			Previous:   record("1:3", shared.RawNode{"name": "Card"}, "h3"),
			Current:    record("1:3", shared.RawNode{"name": "Card"}, "h3"),
		},
		{
			// First observation: nothing to diff against.
			HasChanged: false,
			Current:    record("1:4", shared.RawNode{"name": "New"}, "h4"),
		},
		{
			HasChanged: true,
			Previous: record("1:5", shared.RawNode{
				"name":              "Chip",
				"variantProperties": map[string]any{"State": "Default"},
			}, "h5"),
			Current: record("1:5", shared.RawNode{
				"name":              "Chip",
				"variantProperties": map[string]any{"State": "Selected"},
			}, "h6"),
		},
	}

	entries := GenerateChangelogEntries(results)
	require.Len(t, entries, 2)

	assert.Equal(t, "Btn", entries[0].NodeName)
	require.Len(t, entries[0].PropertyChanges, 1)
	assert.Empty(t, entries[0].VariantChanges)

	// Variant edits come through the variant list only, no duplicate
	// generic property change.
	assert.Equal(t, "Chip", entries[1].NodeName)
	assert.Empty(t, entries[1].PropertyChanges)
	require.Len(t, entries[1].VariantChanges, 1)
	assert.Equal(t, "Selected", entries[1].VariantChanges[0].Current)
}
