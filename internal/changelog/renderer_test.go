package changelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	shared "sentinel/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"Nil", nil, "(none)"},
		{"String", "#fff", "#fff"},
		{"Bool", true, "true"},
		{"WholeNumber", 1.0, "1"},
		{"Fraction", 0.5, "0.5"},
		{"Color", map[string]any{"r": 1.0, "g": 1.0, "b": 1.0}, "#ffffff"},
		{"ColorWithAlpha", map[string]any{"r": 0.0, "g": 0.0, "b": 0.0, "a": 0.5}, "rgba(0, 0, 0, 0.5)"},
		{"PlainObject", map[string]any{"fontSize": 14.0, "fontFamily": "Inter"}, "{2 properties}"},
		{"Array", []any{1.0, 2.0, 3.0}, "[3 items]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatValue(tc.in))
		})
	}
}

func TestFormatColor(t *testing.T) {
	assert.Equal(t, "#ff0000", FormatColor(map[string]any{"r": 1.0, "g": 0.0, "b": 0.0, "a": 1.0}))
	assert.Equal(t, "#808080", FormatColor(map[string]any{"r": 0.502, "g": 0.502, "b": 0.502}))
}

func TestFormatPropertyPath(t *testing.T) {
	assert.Equal(t, "opacity", FormatPropertyPath([]string{"opacity"}))
	assert.Equal(t, "fills[0].color", FormatPropertyPath([]string{"fills", "0", "color"}))
	assert.Equal(t, "children[2].style.fontSize", FormatPropertyPath([]string{"children", "2", "style", "fontSize"}))
}

func sampleEntry() shared.ChangelogEntry {
	return shared.ChangelogEntry{
		FileKey:  "abc",
		NodeID:   "1:2",
		NodeName: "Btn",
		PropertyChanges: []shared.PropertyChange{
			{Path: []string{"fills", "0", "color"}, Previous: "#fff", Current: "#000", Kind: shared.ChangeModified},
			{Path: []string{"cornerRadius"}, Current: 8.0, Kind: shared.ChangeAdded},
		},
		VariantChanges: []shared.VariantChange{
			{Property: "State", Previous: "Default", Current: "Hover"},
		},
	}
}

func TestGenerateChangelogMarkdown(t *testing.T) {
	md := GenerateChangelogMarkdown([]shared.ChangelogEntry{sampleEntry()})

	assert.Contains(t, md, "# Design Changelog")
	assert.Contains(t, md, "## Btn (`1:2`)")
	assert.Contains(t, md, "- `fills[0].color`: #fff → #000")
	assert.Contains(t, md, "- `cornerRadius`: (none) → 8")
	assert.Contains(t, md, "**Variants**")
	assert.Contains(t, md, "- `State`: Default → Hover")

	// Property changes render before variant changes.
	assert.Less(t, strings.Index(md, "fills[0].color"), strings.Index(md, "**Variants**"))
}

func TestGeneratePRBody(t *testing.T) {
	body := GeneratePRBody([]shared.ChangelogEntry{sampleEntry()}, Metadata{
		FileKey:     "abc",
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, body, "1 node changed in file `abc`.")
	assert.Contains(t, body, "# Design Changelog")
	assert.Contains(t, body, "run-1")
	assert.Contains(t, body, "2026-03-01T12:00:00Z")
}

func TestAttachImagePaths(t *testing.T) {
	entries := []shared.ChangelogEntry{
		sampleEntry(),
		{FileKey: "abc", NodeID: "9:9", NodeName: "NoImages"},
	}

	got := AttachImagePaths(entries, shared.ExportResult{Images: []shared.ExportedImage{
		{FileKey: "abc", NodeID: "1:2", BeforePath: "img/abc_1%3A2-before.png", AfterPath: "img/abc_1%3A2-after.png"},
		{FileKey: "other", NodeID: "1:2", BeforePath: "wrong.png"},
	}})

	assert.Equal(t, "img/abc_1%3A2-before.png", got[0].PreviousImagePath)
	assert.Equal(t, "img/abc_1%3A2-after.png", got[0].CurrentImagePath)

	// No matching export: rendered without images, never an error.
	assert.Empty(t, got[1].PreviousImagePath)
	assert.Empty(t, got[1].CurrentImagePath)

	md := GenerateChangelogMarkdown(got)
	assert.Contains(t, md, "![before](img/abc_1%3A2-before.png)")
}

func TestWriteChangelog(t *testing.T) {
	dir := t.TempDir()

	t.Run("WritesFile", func(t *testing.T) {
		path := filepath.Join(dir, "out", "CHANGELOG.md")
		require.NoError(t, WriteChangelog(path, "# Design Changelog\n"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "# Design Changelog\n", string(data))
	})

	t.Run("NoTempFileLeftBehind", func(t *testing.T) {
		path := filepath.Join(dir, "CHANGELOG.md")
		require.NoError(t, WriteChangelog(path, "v1"))
		require.NoError(t, WriteChangelog(path, "v2"))

		_, err := os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})
}
