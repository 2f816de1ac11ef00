// Package pipeline drives one change-detection run: fetch raw nodes,
// normalize, persist and compare snapshots, then render changelog output for
// whatever actually changed.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sentinel/internal/changelog"
	"sentinel/internal/config"
	"sentinel/internal/differ"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/events"
	"sentinel/internal/normalize"
	"sentinel/internal/store"
	shared "sentinel/shared/types"
	"sentinel/shared/utils"

	"go.uber.org/zap"
)

// Fetcher is the remote API boundary the pipeline consumes.
type Fetcher interface {
	GetNodes(ctx context.Context, fileKey string, nodeIDs []string) (map[string]shared.RawNode, error)
}

// ImageExporter renders and downloads node images. Optional; runs without
// one simply produce imageless changelogs.
type ImageExporter interface {
	ExportNodeImages(ctx context.Context, fileKey string, nodeIDs []string, dir, suffix string) (map[string]string, error)
}

// Result is the outcome of one run.
type Result struct {
	RunID        string
	Results      []shared.ChangeDetectionResult
	Entries      []shared.ChangelogEntry
	Markdown     string
	PRBody       string
	ChangedNodes int
}

type Pipeline struct {
	fetcher  Fetcher
	exporter ImageExporter
	store    *store.Store
	logger   *zap.Logger
	emitter  events.Emitter
}

// Options configures optional collaborators.
type Options struct {
	Exporter ImageExporter
	Logger   *zap.Logger
	Emitter  events.Emitter
}

func New(fetcher Fetcher, st *store.Store, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Nop{}
	}
	return &Pipeline{
		fetcher:  fetcher,
		exporter: opts.Exporter,
		store:    st,
		logger:   opts.Logger,
		emitter:  opts.Emitter,
	}
}

// Run executes one fetch-normalize-compare-render cycle. A storage failure
// aborts the affected node only; previously written records stay intact and
// the remaining nodes are still processed.
func (p *Pipeline) Run(ctx context.Context, cfg config.Config) (*Result, error) {
	runID := events.NewRunID()

	nodes, err := p.fetcher.GetNodes(ctx, cfg.FileKey, cfg.NodeIDs)
	if err != nil {
		p.emitter.Emit(events.Stamp(events.Event{
			Type: events.TypeError, RunID: runID, FileKey: cfg.FileKey, Err: err,
		}))
		return nil, fmt.Errorf("fetching nodes: %w", err)
	}

	opts := normalize.Options{
		IncludeProperties: cfg.IncludeProperties,
		ExcludeProperties: cfg.ExcludeProperties,
	}

	var results []shared.ChangeDetectionResult
	for _, nodeID := range cfg.NodeIDs {
		raw, ok := nodes[nodeID]
		if !ok {
			err := apperrors.NotFound("node not in API response").WithNode(cfg.FileKey, nodeID)
			p.logger.Warn("node missing from response", zap.String("node_id", nodeID))
			p.emitter.Emit(events.Stamp(events.Event{
				Type: events.TypeError, RunID: runID, FileKey: cfg.FileKey, NodeID: nodeID, Err: err,
			}))
			continue
		}

		spec := normalize.Normalize(raw, opts)
		rec, err := store.NewRecord(cfg.FileKey, nodeID, spec)
		if err == nil {
			var result shared.ChangeDetectionResult
			result, err = p.store.SaveAndDetectChanges(rec)
			if err == nil {
				results = append(results, result)
				continue
			}
		}

		p.logger.Error("processing node failed",
			zap.String("node_id", nodeID), zap.Error(err))
		p.emitter.Emit(events.Stamp(events.Event{
			Type: events.TypeError, RunID: runID, FileKey: cfg.FileKey, NodeID: nodeID, Err: err,
		}))
	}

	entries := differ.GenerateChangelogEntries(results)

	if len(entries) > 0 && p.exporter != nil {
		entries = p.attachImages(ctx, cfg, entries, runID)
	}

	result := &Result{
		RunID:        runID,
		Results:      results,
		Entries:      entries,
		ChangedNodes: len(entries),
	}

	if len(entries) > 0 {
		result.Markdown = changelog.GenerateChangelogMarkdown(entries)
		result.PRBody = changelog.GeneratePRBody(entries, changelog.Metadata{
			FileKey:     cfg.FileKey,
			RunID:       runID,
			GeneratedAt: time.Now().UTC(),
		})

		if cfg.Output.ChangelogPath != "" {
			if err := changelog.WriteChangelog(cfg.Output.ChangelogPath, result.Markdown); err != nil {
				return nil, fmt.Errorf("writing changelog: %w", err)
			}
		}
	}

	p.emitter.Emit(events.Stamp(events.Event{
		Type: events.TypeCompleted, RunID: runID, FileKey: cfg.FileKey, ChangedNodes: len(entries),
	}))
	p.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.Int("nodes", len(results)),
		zap.Int("changed", len(entries)))

	return result, nil
}

// attachImages exports fresh renders for the changed nodes and joins them to
// the entries. The previous run's "after" image becomes this run's "before".
// Export failures are logged, never fatal: entries stay imageless.
func (p *Pipeline) attachImages(ctx context.Context, cfg config.Config, entries []shared.ChangelogEntry, runID string) []shared.ChangelogEntry {
	changedIDs := make([]string, 0, len(entries))
	before := make(map[string]string, len(entries))
	for _, entry := range entries {
		changedIDs = append(changedIDs, entry.NodeID)

		key, err := utils.SanitizeKey(entry.FileKey, entry.NodeID)
		if err != nil {
			continue
		}
		afterPath := filepath.Join(cfg.Output.ImagesDir, key+"-after.png")
		beforePath := filepath.Join(cfg.Output.ImagesDir, key+"-before.png")
		if _, err := os.Stat(afterPath); err == nil {
			if err := os.Rename(afterPath, beforePath); err == nil {
				before[entry.NodeID] = beforePath
			}
		}
	}

	after, err := p.exporter.ExportNodeImages(ctx, cfg.FileKey, changedIDs, cfg.Output.ImagesDir, "after")
	if err != nil {
		p.logger.Warn("image export failed", zap.Error(err))
		p.emitter.Emit(events.Stamp(events.Event{
			Type: events.TypeError, RunID: runID, FileKey: cfg.FileKey, Err: err,
		}))
		after = nil
	}

	export := shared.ExportResult{}
	for _, nodeID := range changedIDs {
		img := shared.ExportedImage{
			FileKey:    cfg.FileKey,
			NodeID:     nodeID,
			BeforePath: before[nodeID],
			AfterPath:  after[nodeID],
		}
		if img.BeforePath == "" && img.AfterPath == "" {
			continue
		}
		export.Images = append(export.Images, img)
	}

	return changelog.AttachImagePaths(entries, export)
}
