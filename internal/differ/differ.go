// Package differ compares two normalized specs and produces the structured
// change set the changelog renderer consumes. It runs only after the store
// has reported a content-hash mismatch.
package differ

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	shared "sentinel/shared/types"
)

// DiffSpecs walks both trees in lockstep, by key at object levels and by
// index at array levels. Array elements are never matched by content: visual
// arrays like children are order-significant, so a reorder is reported as
// independent per-index changes.
func DiffSpecs(previous, current shared.RawNode) []shared.PropertyChange {
	var changes []shared.PropertyChange
	diffMaps(nil, map[string]any(previous), map[string]any(current), &changes)
	return changes
}

func diffMaps(path []string, prev, curr map[string]any, out *[]shared.PropertyChange) {
	keys := unionKeys(prev, curr)
	for _, key := range keys {
		pv, inPrev := prev[key]
		cv, inCurr := curr[key]
		childPath := extend(path, key)

		switch {
		case !inPrev:
			*out = append(*out, shared.PropertyChange{Path: childPath, Current: cv, Kind: shared.ChangeAdded})
		case !inCurr:
			*out = append(*out, shared.PropertyChange{Path: childPath, Previous: pv, Kind: shared.ChangeRemoved})
		default:
			diffValues(childPath, pv, cv, out)
		}
	}
}

// diffValues recurses when both sides are containers of the same shape and
// otherwise emits a single modified change with both operands captured.
func diffValues(path []string, prev, curr any, out *[]shared.PropertyChange) {
	pm, prevIsMap := asMap(prev)
	cm, currIsMap := asMap(curr)
	if prevIsMap && currIsMap {
		diffMaps(path, pm, cm, out)
		return
	}

	pa, prevIsArr := prev.([]any)
	ca, currIsArr := curr.([]any)
	if prevIsArr && currIsArr {
		diffArrays(path, pa, ca, out)
		return
	}

	if !reflect.DeepEqual(prev, curr) {
		*out = append(*out, shared.PropertyChange{Path: path, Previous: prev, Current: curr, Kind: shared.ChangeModified})
	}
}

func diffArrays(path []string, prev, curr []any, out *[]shared.PropertyChange) {
	n := len(prev)
	if len(curr) > n {
		n = len(curr)
	}
	for i := 0; i < n; i++ {
		childPath := extend(path, strconv.Itoa(i))
		switch {
		case i >= len(prev):
			*out = append(*out, shared.PropertyChange{Path: childPath, Current: curr[i], Kind: shared.ChangeAdded})
		case i >= len(curr):
			*out = append(*out, shared.PropertyChange{Path: childPath, Previous: prev[i], Kind: shared.ChangeRemoved})
		default:
			diffValues(childPath, prev[i], curr[i], out)
		}
	}
}

// DiffVariants compares only the variantProperties field. Variant changes
// carry design-system meaning and are rendered as their own list.
func DiffVariants(previous, current shared.RawNode) []shared.VariantChange {
	prev, _ := asMap(previous["variantProperties"])
	curr, _ := asMap(current["variantProperties"])

	var changes []shared.VariantChange
	for _, key := range unionKeys(prev, curr) {
		pv := formatVariant(prev[key])
		cv := formatVariant(curr[key])
		if pv != cv {
			changes = append(changes, shared.VariantChange{Property: key, Previous: pv, Current: cv})
		}
	}
	return changes
}

// GenerateChangelogEntries builds one entry per changed node. Nodes with
// hasChanged=false, including first observations, never produce an entry.
func GenerateChangelogEntries(results []shared.ChangeDetectionResult) []shared.ChangelogEntry {
	var entries []shared.ChangelogEntry
	for _, result := range results {
		if !result.HasChanged || result.Previous == nil {
			continue
		}

		variants := DiffVariants(result.Previous.Spec, result.Current.Spec)
		props := filterVariantPaths(DiffSpecs(result.Previous.Spec, result.Current.Spec))
		if len(props) == 0 && len(variants) == 0 {
			continue
		}

		entries = append(entries, shared.ChangelogEntry{
			FileKey:         result.Current.FileKey,
			NodeID:          result.Current.NodeID,
			NodeName:        nodeName(result.Current),
			PropertyChanges: props,
			VariantChanges:  variants,
		})
	}
	return entries
}

// filterVariantPaths drops generic changes under variantProperties; those
// are already reported through DiffVariants.
func filterVariantPaths(changes []shared.PropertyChange) []shared.PropertyChange {
	out := changes[:0]
	for _, c := range changes {
		if len(c.Path) > 0 && c.Path[0] == "variantProperties" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func nodeName(rec *shared.SpecRecord) string {
	if name, ok := rec.Spec["name"].(string); ok && name != "" {
		return name
	}
	return rec.NodeID
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		seen[k] = true
		keys = append(keys, k)
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func extend(path []string, segment string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, segment)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case shared.RawNode:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func formatVariant(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
