// Package config provides unified configuration loading for inkpipe.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkpipe/inkpipe/internal/output"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Provider      string              `yaml:"provider"` // google_drive or local
	Pipeline      string              `yaml:"pipeline"` // markdown, mindmap, or agentic
	PollInterval  time.Duration       `yaml:"poll_interval"`
	Markdown      MarkdownConfig      `yaml:"markdown"`
	Mindmap       MindmapConfig       `yaml:"mindmap"`
	Agentic       AgenticConfig       `yaml:"agentic"`
	State         StateConfig         `yaml:"state"`
	LLM           LLMConfig           `yaml:"llm"`
	GoogleDrive   GoogleDriveConfig   `yaml:"google_drive"`
	Local         LocalConfig         `yaml:"local"`
	Watch         WatchConfig         `yaml:"watch"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// MarkdownConfig describes where converted Markdown is published.
type MarkdownConfig struct {
	Provider       string               `yaml:"provider"` // filesystem, git, obsidian, or google_drive
	Directory      string               `yaml:"directory"`
	AssetDirectory string               `yaml:"asset_directory"`
	PromptPath     string               `yaml:"prompt_path"`
	Git            GitOutputConfig      `yaml:"git"`
	Obsidian       ObsidianOutputConfig `yaml:"obsidian"`
	GoogleDrive    DriveOutputConfig    `yaml:"google_drive"`
}

// GitOutputConfig holds settings for publishing to a local Git repository.
type GitOutputConfig struct {
	RepositoryPath        string `yaml:"repository_path"`
	Branch                string `yaml:"branch"`
	Remote                string `yaml:"remote"`
	CommitMessageTemplate string `yaml:"commit_message_template"`
	Push                  bool   `yaml:"push"`
}

// ObsidianOutputConfig holds settings for synchronising an Obsidian vault
// over SSH.
type ObsidianOutputConfig struct {
	RepositoryPath        string `yaml:"repository_path"`
	RepositoryURL         string `yaml:"repository_url"`
	Branch                string `yaml:"branch"`
	Remote                string `yaml:"remote"`
	CommitMessageTemplate string `yaml:"commit_message_template"`
	Push                  *bool  `yaml:"push"`
	PrivateKeyPath        string `yaml:"private_key_path"`
	KnownHostsPath        string `yaml:"known_hosts_path"`
	MediaMode             string `yaml:"media_mode"` // pdf, png, or jpg
	MediaInvert           bool   `yaml:"media_invert"`
}

// DriveOutputConfig holds settings for uploading artifacts to Google Drive.
type DriveOutputConfig struct {
	FolderID      string `yaml:"folder_id"`
	KeepLocalCopy bool   `yaml:"keep_local_copy"`
}

// MindmapConfig describes the mindmap publishing destination.
type MindmapConfig struct {
	GoogleDrive   DriveOutputConfig `yaml:"google_drive"`
	KeepLocalCopy bool              `yaml:"keep_local_copy"`
	PromptPath    string            `yaml:"prompt_path"`
}

// AgenticConfig holds routing settings for the agentic pipeline.
type AgenticConfig struct {
	Hashtags   []string `yaml:"hashtags"`
	PromptPath string   `yaml:"prompt_path"`
}

// StateConfig holds settings for the processed-document ledger.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig describes the conversion backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // simple or openrouter
	Model       string  `yaml:"model"`
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	PromptPath  string  `yaml:"prompt_path"`
	Temperature float64 `yaml:"temperature"`
}

// GoogleDriveConfig holds settings for polling a source Drive folder.
type GoogleDriveConfig struct {
	FolderID               string   `yaml:"folder_id"`
	OAuthClientSecretsFile string   `yaml:"oauth_client_secrets_file"`
	OAuthTokenFile         string   `yaml:"oauth_token_file"`
	PageSize               int      `yaml:"page_size"`
	Scopes                 []string `yaml:"scopes"`
}

// LocalConfig holds settings for the local filesystem source.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig enables filesystem-event wakeups for the local source.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	push := true
	return &Config{
		Provider:     "google_drive",
		Pipeline:     "markdown",
		PollInterval: 5 * time.Minute,
		Markdown: MarkdownConfig{
			Provider: "filesystem",
			Git: GitOutputConfig{
				Branch:                "main",
				Remote:                "origin",
				CommitMessageTemplate: "Add {document_name}",
			},
			Obsidian: ObsidianOutputConfig{
				Branch:                "main",
				Remote:                "origin",
				CommitMessageTemplate: "A new file from you has been added: {markdown_path}",
				Push:                  &push,
				MediaMode:             "pdf",
			},
		},
		Agentic: AgenticConfig{
			Hashtags: []string{"mm", "mindmap"},
		},
		LLM: LLMConfig{
			Provider: "simple",
		},
		GoogleDrive: GoogleDriveConfig{
			PageSize: 100,
			Scopes:   []string{"https://www.googleapis.com/auth/drive.readonly"},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors. Validation is eager so that
// misconfiguration surfaces before any document is touched.
func (c *Config) Validate() error {
	if c.Provider != "google_drive" && c.Provider != "local" {
		return fmt.Errorf("invalid provider: %s", c.Provider)
	}

	if c.Pipeline != "markdown" && c.Pipeline != "mindmap" && c.Pipeline != "agentic" {
		return fmt.Errorf("invalid pipeline: %s", c.Pipeline)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if c.State.Path == "" {
		return fmt.Errorf("state.path must be provided")
	}

	if err := c.validateSource(); err != nil {
		return err
	}

	if err := c.validateMarkdownOutput(); err != nil {
		return err
	}

	if c.Pipeline == "mindmap" || c.Pipeline == "agentic" {
		if c.Mindmap.GoogleDrive.FolderID == "" {
			return fmt.Errorf("mindmap.google_drive.folder_id is required for the %s pipeline", c.Pipeline)
		}
	}

	switch c.LLM.Provider {
	case "simple":
	case "openrouter":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the openrouter provider")
		}
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	return nil
}

func (c *Config) validateSource() error {
	switch c.Provider {
	case "google_drive":
		if c.GoogleDrive.FolderID == "" {
			return fmt.Errorf("google_drive.folder_id must be provided")
		}
		if c.GoogleDrive.OAuthClientSecretsFile == "" {
			return fmt.Errorf("google_drive.oauth_client_secrets_file is required for OAuth-based access")
		}
		if c.GoogleDrive.PageSize < 1 {
			return fmt.Errorf("google_drive.page_size must be positive")
		}
	case "local":
		if c.Local.Path == "" {
			return fmt.Errorf("local.path must be provided")
		}
	}
	return nil
}

func (c *Config) validateMarkdownOutput() error {
	switch c.Markdown.Provider {
	case "filesystem", "git", "obsidian", "google_drive":
	default:
		return fmt.Errorf("invalid markdown provider: %s", c.Markdown.Provider)
	}

	if c.Markdown.Directory == "" {
		return fmt.Errorf("markdown.directory must be provided")
	}

	switch c.Markdown.Provider {
	case "git":
		if c.Markdown.Git.RepositoryPath == "" {
			return fmt.Errorf("markdown.git.repository_path is required when configuring git output")
		}
	case "obsidian":
		if c.Markdown.Obsidian.RepositoryPath == "" {
			return fmt.Errorf("markdown.obsidian.repository_path is required when configuring obsidian output")
		}
		if c.Markdown.Obsidian.RepositoryURL == "" {
			return fmt.Errorf("markdown.obsidian.repository_url is required when configuring obsidian output")
		}
		mode, err := output.ParseMediaMode(c.Markdown.Obsidian.MediaMode)
		if err != nil {
			return fmt.Errorf("markdown.obsidian.media_mode: %w", err)
		}
		if c.Markdown.Obsidian.MediaInvert && mode == output.MediaModePDF {
			return fmt.Errorf("markdown.obsidian.media_invert is only supported when media_mode is 'png' or 'jpg'")
		}
	case "google_drive":
		if c.Markdown.GoogleDrive.FolderID == "" {
			return fmt.Errorf("markdown.google_drive.folder_id is required when configuring google drive output")
		}
	}
	return nil
}

// ObsidianPush reports whether the Obsidian sink should push after commit.
// Defaults to true when unset.
func (c *Config) ObsidianPush() bool {
	if c.Markdown.Obsidian.Push == nil {
		return true
	}
	return *c.Markdown.Obsidian.Push
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("INKPIPE_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}

	if v := os.Getenv("INKPIPE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
