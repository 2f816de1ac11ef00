// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"

	apperrors "sentinel/internal/errors"
)

// Config is the process-wide configuration, loaded once per run and passed
// by value into the core calls. The core keeps no global config state.
type Config struct {
	FileKey string   `json:"file_key"`
	NodeIDs []string `json:"node_ids"`

	IncludeProperties []string `json:"include_properties"`
	ExcludeProperties []string `json:"exclude_properties"`

	Output struct {
		ChangelogPath string `json:"changelog_path"`
		ImagesDir     string `json:"images_dir"`
	} `json:"output"`

	Store struct {
		Path string `json:"path"`
	} `json:"store"`

	GitHub struct {
		Owner      string `json:"owner"`
		Repo       string `json:"repo"`
		BaseBranch string `json:"base_branch"`
		HeadBranch string `json:"head_branch"`
	} `json:"github"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("parsing config %s: %v", path, err))
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Output.ChangelogPath == "" {
		c.Output.ChangelogPath = "design-changelog.md"
	}
	if c.Output.ImagesDir == "" {
		c.Output.ImagesDir = "design-images"
	}
	if c.Store.Path == "" {
		c.Store.Path = ".sentinel/store"
	}
	if c.GitHub.BaseBranch == "" {
		c.GitHub.BaseBranch = "main"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects structurally conflicting configuration. A property both
// included and excluded cannot be resolved and is a config error, never
// retried.
func (c *Config) Validate() error {
	if c.FileKey == "" {
		return apperrors.Validation("file_key is required")
	}
	if len(c.NodeIDs) == 0 {
		return apperrors.Validation("at least one node id is required")
	}

	excluded := make(map[string]bool, len(c.ExcludeProperties))
	for _, p := range c.ExcludeProperties {
		excluded[p] = true
	}
	for _, p := range c.IncludeProperties {
		if excluded[p] {
			return apperrors.Validation(fmt.Sprintf("property %q is both included and excluded", p))
		}
	}
	return nil
}
