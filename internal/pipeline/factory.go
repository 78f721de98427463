package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/inkpipe/inkpipe/internal/config"
	"github.com/inkpipe/inkpipe/internal/connector"
	"github.com/inkpipe/inkpipe/internal/convert"
	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/gdrive"
	"github.com/inkpipe/inkpipe/internal/observability"
	"github.com/inkpipe/inkpipe/internal/output"
	"github.com/inkpipe/inkpipe/internal/state"
)

const watchDebounce = 500 * time.Millisecond

// Build wires a processor from configuration: connector, conversion
// backend, output handlers, and the processed-document ledger. All
// capability checks happen here so a misconfigured pipeline fails before
// the first document is polled. The returned cleanup function releases any
// background resources such as the filesystem watcher.
func Build(ctx context.Context, cfg *config.Config, configPath string, logger *observability.Logger) (*Processor, func(), error) {
	if logger == nil {
		logger = observability.Nop()
	}

	store, err := state.NewStore(cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}

	var driveClient *gdrive.Client
	if needsDriveClient(cfg) {
		tokenSource, err := buildTokenSource(ctx, cfg, configPath, logger)
		if err != nil {
			return nil, nil, err
		}
		driveClient = gdrive.NewClient(ctx, tokenSource)
	}

	conn, err := buildConnector(cfg, driveClient)
	if err != nil {
		return nil, nil, err
	}

	backend, err := buildBackend(cfg, configPath)
	if err != nil {
		return nil, nil, err
	}

	prompts, err := resolvePrompts(cfg, configPath)
	if err != nil {
		return nil, nil, err
	}

	var markdownSink domain.OutputHandler
	if cfg.Pipeline == "markdown" || cfg.Pipeline == "agentic" {
		markdownSink, err = buildMarkdownSink(cfg, driveClient, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	var mindmapSink domain.MindmapHandler
	if cfg.Pipeline == "mindmap" || cfg.Pipeline == "agentic" {
		mindmapSink, err = buildMindmapSink(cfg, driveClient, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	var proc *Processor
	switch cfg.Pipeline {
	case "markdown":
		proc, err = NewMarkdownProcessor(conn, store, backend, markdownSink, prompts, logger)
	case "mindmap":
		proc, err = NewMindmapProcessor(conn, store, backend, mindmapSink, prompts, logger)
	case "agentic":
		proc, err = NewAgenticProcessor(conn, store, backend, markdownSink, mindmapSink, cfg.Agentic.Hashtags, prompts, logger)
	default:
		err = domain.ConfigError(fmt.Sprintf("unsupported pipeline: %s", cfg.Pipeline), nil)
	}
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	if cfg.Provider == "local" && cfg.Watch.Enabled {
		watcher, err := connector.NewWatcher(cfg.Local.Path, watchDebounce, logger)
		if err != nil {
			return nil, nil, err
		}
		proc.SetWake(watcher.Wake())
		cleanup = func() { _ = watcher.Close() }
	}

	return proc, cleanup, nil
}

func needsDriveClient(cfg *config.Config) bool {
	if cfg.Provider == "google_drive" {
		return true
	}
	if cfg.Markdown.Provider == "google_drive" && cfg.Pipeline != "mindmap" {
		return true
	}
	return cfg.Pipeline == "mindmap" || cfg.Pipeline == "agentic"
}

func buildTokenSource(ctx context.Context, cfg *config.Config, configPath string, logger *observability.Logger) (oauth2.TokenSource, error) {
	scopes := append([]string(nil), cfg.GoogleDrive.Scopes...)
	if needsUploadScope(cfg) && !containsScope(scopes, gdrive.FileScope) {
		scopes = append(scopes, gdrive.FileScope)
	}
	return gdrive.NewTokenSource(ctx, gdrive.OAuthOptions{
		ClientSecretsFile: config.ResolveRelativePath(configPath, cfg.GoogleDrive.OAuthClientSecretsFile),
		TokenFile:         resolveOptionalPath(configPath, cfg.GoogleDrive.OAuthTokenFile),
		Scopes:            scopes,
	}, logger)
}

func resolveOptionalPath(configPath, target string) string {
	if target == "" {
		return ""
	}
	return config.ResolveRelativePath(configPath, target)
}

func needsUploadScope(cfg *config.Config) bool {
	if cfg.Pipeline == "mindmap" || cfg.Pipeline == "agentic" {
		return true
	}
	return cfg.Markdown.Provider == "google_drive"
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func buildConnector(cfg *config.Config, driveClient *gdrive.Client) (domain.Connector, error) {
	switch cfg.Provider {
	case "local":
		local, err := connector.NewLocalFolder(cfg.Local.Path)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "google_drive":
		return connector.NewGoogleDrive(driveClient, cfg.GoogleDrive.FolderID, cfg.GoogleDrive.PageSize), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported provider: %s", cfg.Provider), nil)
	}
}

func buildBackend(cfg *config.Config, configPath string) (domain.Backend, error) {
	switch cfg.LLM.Provider {
	case "simple":
		prompt, err := loadPrompt(configPath, cfg.LLM.PromptPath)
		if err != nil {
			return nil, err
		}
		return convert.NewSimpleBackend(prompt), nil
	case "openrouter":
		backend, err := convert.NewOpenRouterBackend(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		return backend.WithEndpoint(cfg.LLM.Endpoint), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported llm provider: %s", cfg.LLM.Provider), nil)
	}
}

// resolvePrompts applies the per-pipeline prompt override chain: each
// concern's own prompt path first, the backend-level prompt path as the
// shared fallback.
func resolvePrompts(cfg *config.Config, configPath string) (Prompts, error) {
	base, err := loadPrompt(configPath, cfg.LLM.PromptPath)
	if err != nil {
		return Prompts{}, err
	}

	markdown, err := loadPrompt(configPath, cfg.Markdown.PromptPath)
	if err != nil {
		return Prompts{}, err
	}
	mindmap, err := loadPrompt(configPath, cfg.Mindmap.PromptPath)
	if err != nil {
		return Prompts{}, err
	}
	routing, err := loadPrompt(configPath, cfg.Agentic.PromptPath)
	if err != nil {
		return Prompts{}, err
	}

	return Prompts{
		Markdown: firstNonEmptyPrompt(markdown, base),
		Mindmap:  firstNonEmptyPrompt(mindmap, base),
		Routing:  firstNonEmptyPrompt(routing, base),
	}, nil
}

func firstNonEmptyPrompt(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadPrompt(configPath, promptPath string) (string, error) {
	if promptPath == "" {
		return "", nil
	}
	resolved := config.ResolveRelativePath(configPath, promptPath)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", domain.ConfigError(fmt.Sprintf("failed to read prompt file %s", resolved), err)
	}
	return string(data), nil
}

func buildMarkdownSink(cfg *config.Config, driveClient *gdrive.Client, logger *observability.Logger) (domain.OutputHandler, error) {
	md := cfg.Markdown
	switch md.Provider {
	case "filesystem":
		handler, err := output.NewFilesystemHandler(md.Directory, md.AssetDirectory)
		if err != nil {
			return nil, err
		}
		return handler, nil
	case "git":
		handler, err := output.NewGitHandler(output.GitConfig{
			RepositoryPath:        md.Git.RepositoryPath,
			Directory:             md.Directory,
			AssetDirectory:        md.AssetDirectory,
			Branch:                md.Git.Branch,
			Remote:                md.Git.Remote,
			CommitMessageTemplate: md.Git.CommitMessageTemplate,
			Push:                  md.Git.Push,
		}, logger)
		if err != nil {
			return nil, err
		}
		return handler, nil
	case "obsidian":
		mode, err := output.ParseMediaMode(md.Obsidian.MediaMode)
		if err != nil {
			return nil, domain.ConfigError("invalid obsidian media mode", err)
		}
		handler, err := output.NewObsidianHandler(output.ObsidianConfig{
			RepositoryPath:        md.Obsidian.RepositoryPath,
			RepositoryURL:         md.Obsidian.RepositoryURL,
			Directory:             md.Directory,
			MediaDirectory:        md.AssetDirectory,
			Branch:                md.Obsidian.Branch,
			Remote:                md.Obsidian.Remote,
			CommitMessageTemplate: md.Obsidian.CommitMessageTemplate,
			MediaMode:             mode,
			MediaInvert:           md.Obsidian.MediaInvert,
			PrivateKeyPath:        md.Obsidian.PrivateKeyPath,
			KnownHostsPath:        md.Obsidian.KnownHostsPath,
			Push:                  cfg.ObsidianPush(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return handler, nil
	case "google_drive":
		handler, err := output.NewDriveMarkdownHandler(driveClient, output.DriveConfig{
			FolderID:       md.GoogleDrive.FolderID,
			KeepLocalCopy:  md.GoogleDrive.KeepLocalCopy,
			LocalDirectory: md.Directory,
		}, logger)
		if err != nil {
			return nil, err
		}
		return handler, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported markdown provider: %s", md.Provider), nil)
	}
}

func buildMindmapSink(cfg *config.Config, driveClient *gdrive.Client, logger *observability.Logger) (domain.MindmapHandler, error) {
	handler, err := output.NewDriveMindmapHandler(driveClient, output.DriveConfig{
		FolderID:       cfg.Mindmap.GoogleDrive.FolderID,
		KeepLocalCopy:  cfg.Mindmap.KeepLocalCopy || cfg.Mindmap.GoogleDrive.KeepLocalCopy,
		LocalDirectory: cfg.Markdown.Directory,
	}, logger)
	if err != nil {
		return nil, err
	}
	return handler, nil
}
