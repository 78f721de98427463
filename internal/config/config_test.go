package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalLocalConfig = `
provider: local
local:
  path: /tmp/inbox
markdown:
  directory: /tmp/out
state:
  path: /tmp/state.json
`

func TestLoad_MinimalLocalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalLocalConfig))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Provider)
	assert.Equal(t, "markdown", cfg.Pipeline)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, "filesystem", cfg.Markdown.Provider)
	assert.Equal(t, "simple", cfg.LLM.Provider)
	assert.Equal(t, []string{"mm", "mindmap"}, cfg.Agentic.Hashtags)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "provider: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
provider: google_drive
pipeline: agentic
poll_interval: 90s
google_drive:
  folder_id: src-folder
  oauth_client_secrets_file: /secrets/client.json
  page_size: 50
markdown:
  provider: git
  directory: notes
  asset_directory: assets
  git:
    repository_path: /repos/notes
    branch: publish
    push: true
mindmap:
  google_drive:
    folder_id: mm-folder
  keep_local_copy: true
agentic:
  hashtags: [brain, map]
state:
  path: /var/lib/inkpipe/state.json
llm:
  provider: openrouter
  api_key: sk-test
  model: test/model
  temperature: 0.2
observability:
  log_level: debug
  log_format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "agentic", cfg.Pipeline)
	assert.Equal(t, 90*time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.GoogleDrive.PageSize)
	assert.Equal(t, "publish", cfg.Markdown.Git.Branch)
	assert.True(t, cfg.Markdown.Git.Push)
	assert.Equal(t, "mm-folder", cfg.Mindmap.GoogleDrive.FolderID)
	assert.True(t, cfg.Mindmap.KeepLocalCopy)
	assert.Equal(t, []string{"brain", "map"}, cfg.Agentic.Hashtags)
	assert.Equal(t, "test/model", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 0.001)
}

func TestLoad_ExpandsAPIKeyEnvReference(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, minimalLocalConfig+`
llm:
  provider: openrouter
  api_key: ${TEST_OPENROUTER_KEY}
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("INKPIPE_POLL_INTERVAL", "30s")

	cfg, err := Load(writeConfig(t, minimalLocalConfig))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "dropbox" },
			wantMsg: "invalid provider",
		},
		{
			name:    "unknown pipeline",
			mutate:  func(c *Config) { c.Pipeline = "etl" },
			wantMsg: "invalid pipeline",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.PollInterval = 0 },
			wantMsg: "poll_interval",
		},
		{
			name:    "missing state path",
			mutate:  func(c *Config) { c.State.Path = "" },
			wantMsg: "state.path",
		},
		{
			name:    "missing local path",
			mutate:  func(c *Config) { c.Local.Path = "" },
			wantMsg: "local.path",
		},
		{
			name:    "missing markdown directory",
			mutate:  func(c *Config) { c.Markdown.Directory = "" },
			wantMsg: "markdown.directory",
		},
		{
			name:    "unknown markdown provider",
			mutate:  func(c *Config) { c.Markdown.Provider = "ftp" },
			wantMsg: "invalid markdown provider",
		},
		{
			name: "git output without repository",
			mutate: func(c *Config) {
				c.Markdown.Provider = "git"
			},
			wantMsg: "repository_path",
		},
		{
			name: "mindmap pipeline without folder",
			mutate: func(c *Config) {
				c.Pipeline = "mindmap"
			},
			wantMsg: "mindmap.google_drive.folder_id",
		},
		{
			name: "openrouter without key",
			mutate: func(c *Config) {
				c.LLM.Provider = "openrouter"
			},
			wantMsg: "llm.api_key",
		},
		{
			name: "unknown llm provider",
			mutate: func(c *Config) {
				c.LLM.Provider = "bard"
			},
			wantMsg: "invalid llm provider",
		},
		{
			name: "obsidian invert with pdf media",
			mutate: func(c *Config) {
				c.Markdown.Provider = "obsidian"
				c.Markdown.Obsidian.RepositoryPath = "/vault"
				c.Markdown.Obsidian.RepositoryURL = "git@example.com:vault.git"
				c.Markdown.Obsidian.MediaInvert = true
			},
			wantMsg: "media_invert",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider = "local"
			cfg.Local.Path = "/tmp/inbox"
			cfg.Markdown.Directory = "/tmp/out"
			cfg.State.Path = "/tmp/state.json"

			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_AcceptsJPEGAlias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "local"
	cfg.Local.Path = "/tmp/inbox"
	cfg.Markdown.Directory = "notes"
	cfg.State.Path = "/tmp/state.json"
	cfg.Markdown.Provider = "obsidian"
	cfg.Markdown.Obsidian.RepositoryPath = "/vault"
	cfg.Markdown.Obsidian.RepositoryURL = "git@example.com:vault.git"
	cfg.Markdown.Obsidian.MediaMode = "jpeg"
	cfg.Markdown.Obsidian.MediaInvert = true

	assert.NoError(t, cfg.Validate())
}

func TestObsidianPush_DefaultsTrue(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.ObsidianPush())

	off := false
	cfg.Markdown.Obsidian.Push = &off
	assert.False(t, cfg.ObsidianPush())
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/abs/prompt.txt", ResolveRelativePath("/etc/inkpipe/config.yaml", "/abs/prompt.txt"))
	assert.Equal(t, filepath.Join("/etc/inkpipe", "prompt.txt"), ResolveRelativePath("/etc/inkpipe/config.yaml", "prompt.txt"))
}
