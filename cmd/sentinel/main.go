// cmd/sentinel/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/events"
	"sentinel/internal/figma"
	"sentinel/internal/github"
	"sentinel/internal/logging"
	"sentinel/internal/pipeline"
	"sentinel/internal/store"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel tracks visual changes to design files",
	Long: `Sentinel watches nodes of a remote design file, keeps a normalized
snapshot per node, and produces a changelog and PR body whenever a node
really changed. Volatile fields like bounding boxes and plugin data are
stripped before comparison, so layout noise never triggers a report.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sentinel.json", "path to config file")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config already exists: %s", configPath)
			}

			starter := `{
  "file_key": "",
  "node_ids": [],
  "exclude_properties": [],
  "output": {
    "changelog_path": "design-changelog.md",
    "images_dir": "design-images"
  },
  "store": {
    "path": ".sentinel/store"
  },
  "log_level": "info"
}
`
			if err := os.WriteFile(configPath, []byte(starter), 0644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			fmt.Println("Wrote starter config to", configPath)
			return nil
		},
	}

	var openPR bool
	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Fetch tracked nodes once and report changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.pipeline.Run(cmd.Context(), *cfg)
			if err != nil {
				return err
			}

			printResult(result)

			if openPR && result.ChangedNodes > 0 {
				if err := publishPR(cmd.Context(), cfg, result); err != nil {
					return err
				}
			}
			return nil
		},
	}
	checkCmd.Flags().BoolVar(&openPR, "pr", false, "open or update a pull request when changes are found")

	var interval time.Duration
	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run checks on an interval, reloading config on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			reload := make(chan *config.Config, 1)
			watcher, err := config.Watch(configPath, rt.logger.Logger, func(next *config.Config) {
				select {
				case reload <- next:
				default:
				}
			})
			if err != nil {
				return err
			}
			defer watcher.Close()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Printf("Watching %s every %s\n", cfg.FileKey, interval)
			for {
				result, err := rt.pipeline.Run(cmd.Context(), *cfg)
				if err != nil {
					color.Red("run failed: %v", err)
				} else {
					printResult(result)
				}

				select {
				case next := <-reload:
					cfg = next
					color.Cyan("config reloaded")
				case <-ticker.C:
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
	watchCmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "time between checks")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List tracked nodes and their content hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rt, err := setupStore()
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.store.LoadAllSpecs(cfg.FileKey)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No tracked nodes for file", cfg.FileKey)
				return nil
			}

			for _, rec := range records {
				name, _ := rec.Spec["name"].(string)
				fmt.Printf("%s  %s  %s  %s\n",
					color.CyanString(rec.NodeID),
					rec.ContentHash[:12],
					rec.StoredAt.Format(time.RFC3339),
					name)
			}
			return nil
		},
	}

	var removeCmd = &cobra.Command{
		Use:   "remove [nodeIds...]",
		Short: "Stop tracking nodes and delete their snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rt, err := setupStore()
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, nodeID := range args {
				if err := rt.store.RemoveSpec(cfg.FileKey, nodeID); err != nil {
					return err
				}
				fmt.Println("Removed", nodeID)
			}
			return nil
		},
	}

	rootCmd.AddCommand(initCmd, checkCmd, watchCmd, listCmd, removeCmd)
}

// runtime bundles everything a command needs after setup. The pipeline is
// only wired for commands that talk to the remote API.
type runtime struct {
	db       *badger.DB
	store    *store.Store
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
}

func (rt *runtime) Close() {
	rt.db.Close()
	rt.logger.Sync()
}

func setupStore() (*config.Config, *runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Store.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	st, err := store.New(db, store.Options{Logger: logger.Logger})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return cfg, &runtime{db: db, store: st, logger: logger}, nil
}

func setup() (*config.Config, *runtime, error) {
	cfg, rt, err := setupStore()
	if err != nil {
		return nil, nil, err
	}

	emitter := events.EmitterFunc(func(e events.Event) {
		rt.logger.Debug("pipeline event",
			zap.String("type", string(e.Type)),
			zap.String("node_id", e.NodeID),
			zap.Error(e.Err))
	})

	client, err := figma.NewClient(os.Getenv("FIGMA_TOKEN"), figma.Options{
		Logger:  rt.logger.Logger,
		Emitter: emitter,
	})
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	rt.pipeline = pipeline.New(client, rt.store, pipeline.Options{
		Exporter: client,
		Logger:   rt.logger.Logger,
		Emitter:  emitter,
	})

	return cfg, rt, nil
}

func printResult(result *pipeline.Result) {
	if result.ChangedNodes == 0 {
		color.Green("No changes detected (%d nodes checked)", len(result.Results))
		return
	}

	color.Yellow("%d node(s) changed", result.ChangedNodes)
	for _, entry := range result.Entries {
		fmt.Printf("  %s (%s): %d property change(s), %d variant change(s)\n",
			color.CyanString(entry.NodeName), entry.NodeID,
			len(entry.PropertyChanges), len(entry.VariantChanges))
	}
}

func publishPR(ctx context.Context, cfg *config.Config, result *pipeline.Result) error {
	publisher, err := github.NewPublisher(os.Getenv("GITHUB_TOKEN"), cfg.GitHub.Owner, cfg.GitHub.Repo)
	if err != nil {
		return err
	}

	head := cfg.GitHub.HeadBranch
	if head == "" {
		head = "design-changelog"
	}

	existing, err := publisher.FindOpenChangelogPR(ctx, head)
	if err != nil {
		return err
	}
	if existing != 0 {
		if err := publisher.UpdatePullRequestBody(ctx, existing, result.PRBody); err != nil {
			return err
		}
		color.Green("Updated PR #%d", existing)
		return nil
	}

	title := fmt.Sprintf("Design changes: %d node(s) updated", result.ChangedNodes)
	number, url, err := publisher.CreatePullRequest(ctx, title, result.PRBody, head, cfg.GitHub.BaseBranch)
	if err != nil {
		return err
	}
	color.Green("Opened PR #%d: %s", number, url)
	return nil
}

func main() {
	// Tokens may live in a local .env during development.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}
