// Package changelog renders structured change sets as markdown changelog
// documents and pull-request body text.
package changelog

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	shared "sentinel/shared/types"
)

// Metadata describes the run a PR body reports on.
type Metadata struct {
	FileKey     string
	RunID       string
	GeneratedAt time.Time
}

// FormatValue renders a change operand for display. Colors come out as
// hex/rgba text, containers as short summaries, and absent values as
// "(none)" so added/removed changes read naturally.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "(none)"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		if isColor(val) {
			return FormatColor(val)
		}
		return fmt.Sprintf("{%d properties}", len(val))
	case shared.RawNode:
		return FormatValue(map[string]any(val))
	case []any:
		return fmt.Sprintf("[%d items]", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatColor renders a {r,g,b[,a]} color object (channels in 0..1) as a
// hex string, or rgba() text when it carries transparency.
func FormatColor(c map[string]any) string {
	r := channel(c["r"])
	g := channel(c["g"])
	b := channel(c["b"])

	a := 1.0
	if raw, ok := c["a"].(float64); ok {
		a = raw
	}
	if a >= 1.0 {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(a, 'f', -1, 64))
}

func channel(v any) int {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(math.Round(f * 255))
}

func isColor(m map[string]any) bool {
	for _, key := range []string{"r", "g", "b"} {
		if _, ok := m[key].(float64); !ok {
			return false
		}
	}
	return len(m) <= 4
}

// FormatPropertyPath renders a change path as an accessor string, e.g.
// fills[0].color.
func FormatPropertyPath(path []string) string {
	var buf bytes.Buffer
	for i, seg := range path {
		if _, err := strconv.Atoi(seg); err == nil {
			fmt.Fprintf(&buf, "[%s]", seg)
			continue
		}
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(seg)
	}
	return buf.String()
}

// GenerateChangelogMarkdown renders one section per entry, property changes
// before variant changes.
func GenerateChangelogMarkdown(entries []shared.ChangelogEntry) string {
	var buf bytes.Buffer
	buf.WriteString("# Design Changelog\n")

	for _, entry := range entries {
		fmt.Fprintf(&buf, "\n## %s (`%s`)\n\n", entry.NodeName, entry.NodeID)

		for _, change := range entry.PropertyChanges {
			fmt.Fprintf(&buf, "- `%s`: %s → %s\n",
				FormatPropertyPath(change.Path),
				FormatValue(change.Previous),
				FormatValue(change.Current))
		}

		if len(entry.VariantChanges) > 0 {
			buf.WriteString("\n**Variants**\n\n")
			for _, change := range entry.VariantChanges {
				fmt.Fprintf(&buf, "- `%s`: %s → %s\n", change.Property, change.Previous, change.Current)
			}
		}

		if entry.PreviousImagePath != "" || entry.CurrentImagePath != "" {
			buf.WriteString("\n| Before | After |\n|---|---|\n")
			fmt.Fprintf(&buf, "| %s | %s |\n",
				imageCell(entry.PreviousImagePath, "before"),
				imageCell(entry.CurrentImagePath, "after"))
		}
	}

	return buf.String()
}

func imageCell(path, alt string) string {
	if path == "" {
		return "_none_"
	}
	return fmt.Sprintf("![%s](%s)", alt, path)
}

// GeneratePRBody produces pull-request body text: a summary count followed
// by the full changelog.
func GeneratePRBody(entries []shared.ChangelogEntry, meta Metadata) string {
	var buf bytes.Buffer

	noun := "nodes"
	if len(entries) == 1 {
		noun = "node"
	}
	fmt.Fprintf(&buf, "## Design changes detected\n\n%d %s changed in file `%s`.\n\n", len(entries), noun, meta.FileKey)
	buf.WriteString(GenerateChangelogMarkdown(entries))

	if meta.RunID != "" {
		fmt.Fprintf(&buf, "\n---\n_Run `%s`", meta.RunID)
		if !meta.GeneratedAt.IsZero() {
			fmt.Fprintf(&buf, " at %s", meta.GeneratedAt.UTC().Format(time.RFC3339))
		}
		buf.WriteString("_\n")
	}

	return buf.String()
}

// AttachImagePaths joins entries to exported before/after images by
// (fileKey, nodeId). Entries without a matching export stay imageless.
func AttachImagePaths(entries []shared.ChangelogEntry, export shared.ExportResult) []shared.ChangelogEntry {
	byKey := make(map[string]shared.ExportedImage, len(export.Images))
	for _, img := range export.Images {
		byKey[img.FileKey+"\x00"+img.NodeID] = img
	}

	out := make([]shared.ChangelogEntry, len(entries))
	for i, entry := range entries {
		if img, ok := byKey[entry.FileKey+"\x00"+entry.NodeID]; ok {
			entry.PreviousImagePath = img.BeforePath
			entry.CurrentImagePath = img.AfterPath
		}
		out[i] = entry
	}
	return out
}

// WriteChangelog writes the rendered text to path atomically: the content
// goes to a temp file first and is renamed into place, so a failure never
// leaves a partial changelog behind.
func WriteChangelog(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating changelog directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing changelog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing changelog: %w", err)
	}
	return nil
}
