// Core data model for the change-detection pipeline
package shared

import (
	"time"
)

// RawNode is an untyped design-tree payload as returned by the remote API.
// It is consumed immediately by the normalizer and never stored as-is.
type RawNode map[string]any

// SpecRecord is the persisted unit: one normalized spec per tracked
// (fileKey, nodeId) pair plus the content hash computed over its stable
// serialization.
type SpecRecord struct {
	NodeID      string    `json:"node_id"`
	FileKey     string    `json:"file_key"`
	ContentHash string    `json:"content_hash"`
	Spec        RawNode   `json:"spec"`
	StoredAt    time.Time `json:"stored_at"`
}

// ChangeDetectionResult reports whether a node changed between two runs.
// Previous is nil exactly when no prior record exists for the key.
type ChangeDetectionResult struct {
	HasChanged bool        `json:"has_changed"`
	Previous   *SpecRecord `json:"previous,omitempty"`
	Current    *SpecRecord `json:"current"`
}

// FirstObservation reports whether this is the first time the node was seen.
func (r ChangeDetectionResult) FirstObservation() bool {
	return r.Previous == nil
}

// ChangeKind classifies a single property change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// PropertyChange is one detected difference between two normalized specs.
// Path is the full key/index chain from the spec root; array indices are
// encoded as decimal strings.
type PropertyChange struct {
	Path     []string   `json:"path"`
	Previous any        `json:"previous_value,omitempty"`
	Current  any        `json:"current_value,omitempty"`
	Kind     ChangeKind `json:"kind"`
}

// VariantChange is a component variant property change, rendered distinctly
// from generic property edits.
type VariantChange struct {
	Property string `json:"variant_property"`
	Previous string `json:"previous_value"`
	Current  string `json:"current_value"`
}

// ChangelogEntry is the full set of changes detected for one node.
type ChangelogEntry struct {
	FileKey           string           `json:"file_key"`
	NodeID            string           `json:"node_id"`
	NodeName          string           `json:"node_name"`
	PropertyChanges   []PropertyChange `json:"property_changes"`
	VariantChanges    []VariantChange  `json:"variant_changes"`
	PreviousImagePath string           `json:"previous_image_path,omitempty"`
	CurrentImagePath  string           `json:"current_image_path,omitempty"`
}

// ExportedImage maps one tracked node to its rendered before/after files.
type ExportedImage struct {
	FileKey    string `json:"file_key"`
	NodeID     string `json:"node_id"`
	BeforePath string `json:"before_path,omitempty"`
	AfterPath  string `json:"after_path,omitempty"`
}

// ExportResult is what the image export step hands to the renderer.
type ExportResult struct {
	Images []ExportedImage `json:"images"`
}
