package output

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/observability"
	"github.com/inkpipe/inkpipe/internal/pdf"
)

// MediaMode selects how the source PDF is attached to the vault.
type MediaMode string

const (
	MediaModePDF MediaMode = "pdf"
	MediaModePNG MediaMode = "png"
	MediaModeJPG MediaMode = "jpg"
)

// ParseMediaMode normalizes a configured media mode, accepting "jpeg" as an
// alias of "jpg".
func ParseMediaMode(value string) (MediaMode, error) {
	switch strings.ToLower(value) {
	case "", "pdf":
		return MediaModePDF, nil
	case "png":
		return MediaModePNG, nil
	case "jpg", "jpeg":
		return MediaModeJPG, nil
	}
	return "", domain.ConfigError(fmt.Sprintf("media_mode must be one of 'pdf', 'png', or 'jpg', got %q", value), nil)
}

// ObsidianConfig configures the Obsidian vault destination.
type ObsidianConfig struct {
	RepositoryPath        string
	RepositoryURL         string
	Directory             string
	MediaDirectory        string
	Branch                string
	Remote                string
	CommitMessageTemplate string
	MediaMode             MediaMode
	MediaInvert           bool
	PrivateKeyPath        string
	KnownHostsPath        string
	Push                  bool
}

// ObsidianHandler synchronizes Markdown and media files with an Obsidian git
// vault reached over SSH. It wraps the git handler by composition: the vault
// is cloned on first use, attachments are rendered or copied into the media
// directory, embed links are appended to the Markdown, and the commit is
// preceded by a fast-forward-only pull that warns and continues on failure.
type ObsidianHandler struct {
	inner  *GitHandler
	git    *gitRunner
	cfg    ObsidianConfig
	logger *observability.Logger
	now    func() time.Time

	mediaDirectory string
	pngOptimizer   []string
}

// NewObsidianHandler prepares the vault checkout. When no local clone exists
// the remote is cloned over SSH using the configured private key and known
// hosts file; an unknown host key is bootstrapped via ssh-keyscan, but a
// conflicting existing entry is never overridden.
func NewObsidianHandler(cfg ObsidianConfig, logger *observability.Logger) (*ObsidianHandler, error) {
	repoPath, err := filepath.Abs(cfg.RepositoryPath)
	if err != nil {
		return nil, domain.OutputError("resolve vault path", err)
	}
	cfg.RepositoryPath = repoPath
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.CommitMessageTemplate == "" {
		cfg.CommitMessageTemplate = "A new file from you has been added: {markdown_path}"
	}
	if cfg.MediaDirectory == "" {
		cfg.MediaDirectory = "media"
	}
	if cfg.MediaMode == "" {
		cfg.MediaMode = MediaModePDF
	}
	if cfg.MediaInvert && cfg.MediaMode == MediaModePDF {
		return nil, domain.ConfigError("media_invert is only supported when media_mode is 'png' or 'jpg'", nil)
	}

	if cfg.PrivateKeyPath != "" {
		if _, err := os.Stat(cfg.PrivateKeyPath); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("SSH private key not found: %s", cfg.PrivateKeyPath), err)
		}
	}
	if cfg.KnownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, domain.ConfigError("determine home directory for known_hosts", err)
		}
		cfg.KnownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}

	log := logger.WithComponent("output.obsidian")
	env := buildGitSSHEnv(cfg.PrivateKeyPath, cfg.KnownHostsPath)
	git := &gitRunner{repoPath: repoPath, env: env}

	h := &ObsidianHandler{
		git:    git,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
			return nil, domain.OutputError("create vault parent directory", err)
		}
		if err := h.ensureKnownHost(); err != nil {
			return nil, err
		}
		if err := h.cloneRepository(); err != nil {
			return nil, err
		}
	} else {
		// Refresh the known hosts entry so later pushes do not prompt.
		if err := h.ensureKnownHost(); err != nil {
			return nil, err
		}
	}

	inner, err := NewGitHandler(GitConfig{
		RepositoryPath:        repoPath,
		Directory:             cfg.Directory,
		Branch:                cfg.Branch,
		Remote:                cfg.Remote,
		CommitMessageTemplate: cfg.CommitMessageTemplate,
		Push:                  cfg.Push,
	}, logger)
	if err != nil {
		return nil, err
	}
	inner.git.env = env
	h.inner = inner

	mediaDir, err := resolveWithinRepository(repoPath, cfg.MediaDirectory)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, domain.OutputError("create media directory", err)
	}
	h.mediaDirectory = mediaDir

	if cfg.MediaMode == MediaModePNG {
		h.pngOptimizer = selectPNGOptimizer()
	}

	return h, nil
}

// Write stores the Markdown with appended attachment embeds plus the media
// files, then commits and optionally pushes. Every path is made unique via a
// counter suffix even when documents sanitize to the same stem.
func (h *ObsidianHandler) Write(ctx context.Context, doc domain.Document, markdown string, pdfBytes []byte) (string, error) {
	if pdfBytes == nil {
		return "", domain.ValidationError("obsidian output requires the original PDF bytes to manage media files", nil)
	}

	baseStem := BuildBasename(doc, "document", h.now)
	markdownPath := UniquePath(h.inner.fs.Directory(), baseStem, ".md")
	finalBase := strings.TrimSuffix(filepath.Base(markdownPath), ".md")

	var attachments []string
	var err error
	if h.cfg.MediaMode == MediaModePDF {
		pdfPath := UniquePath(h.mediaDirectory, finalBase, ".pdf")
		if writeErr := os.WriteFile(pdfPath, pdfBytes, 0o644); writeErr != nil {
			return "", domain.OutputError("write vault pdf", writeErr)
		}
		attachments = []string{pdfPath}
		markdown = h.appendPDFReference(markdown, pdfPath)
	} else {
		attachments, err = h.renderMedia(ctx, pdfBytes, finalBase)
		if err != nil {
			return "", err
		}
		markdown = h.appendImageReferences(markdown, attachments)
	}

	if err := os.WriteFile(markdownPath, []byte(markdown), 0o644); err != nil {
		return "", domain.OutputError("write vault markdown", err)
	}

	staged := append([]string{markdownPath}, attachments...)
	relative := make([]string, len(staged))
	for i, p := range staged {
		relative[i] = h.git.relative(p)
		if err := h.git.run(ctx, "add", relative[i]); err != nil {
			return "", err
		}
	}

	changed, err := h.git.hasAnyStagedChanges(ctx)
	if err != nil {
		return "", err
	}
	if !changed {
		if err := h.git.resetPaths(ctx, relative); err != nil {
			return "", err
		}
		return markdownPath, nil
	}

	message := expandCommitTemplate(h.cfg.CommitMessageTemplate, doc, h.git.relative(markdownPath))

	if h.cfg.Push {
		// Fast-forward from the remote first so the push lands on current
		// history. A failed pull is logged rather than fatal; the commit and
		// push still proceed and a divergent push surfaces as its own error.
		if err := h.git.run(ctx, "pull", h.cfg.Remote, h.cfg.Branch, "--ff-only"); err != nil {
			h.logger.Warn().
				Str("branch", h.cfg.Branch).
				Str("remote", h.cfg.Remote).
				Err(err).
				Msg("unable to fast-forward before committing")
		}
	}

	if err := h.git.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	if h.cfg.Push {
		if err := h.git.run(ctx, "push", h.cfg.Remote, h.cfg.Branch); err != nil {
			return "", err
		}
	}

	h.logger.Info().Str("document", doc.Name).Str("path", h.git.relative(markdownPath)).Msg("synced to vault")
	return markdownPath, nil
}

func (h *ObsidianHandler) renderMedia(ctx context.Context, pdfBytes []byte, baseStem string) ([]string, error) {
	format := pdf.FormatPNG
	ext := ".png"
	if h.cfg.MediaMode == MediaModeJPG {
		format = pdf.FormatJPG
		ext = ".jpg"
	}

	pages, err := pdf.RenderPages(ctx, pdfBytes, pdf.RenderOptions{
		Format: format,
		Invert: h.cfg.MediaInvert,
	})
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(pages))
	for _, page := range pages {
		stem := fmt.Sprintf("%s-p%02d", baseStem, page.Number)
		path := UniquePath(h.mediaDirectory, stem, ext)
		if err := os.WriteFile(path, page.Data, 0o644); err != nil {
			return nil, domain.OutputError("write vault page image", err)
		}
		if h.cfg.MediaMode == MediaModePNG {
			h.optimizePNG(ctx, path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (h *ObsidianHandler) appendPDFReference(markdown, pdfPath string) string {
	rel := h.vaultPath(pdfPath)
	parts := []string{
		strings.TrimRight(markdown, "\n \t"),
		"",
		fmt.Sprintf("[Reference PDF](%s)", rel),
		fmt.Sprintf("![[%s]]", rel),
		"",
	}
	return strings.Join(parts, "\n")
}

func (h *ObsidianHandler) appendImageReferences(markdown string, imagePaths []string) string {
	if len(imagePaths) == 0 {
		return markdown
	}
	rels := make([]string, len(imagePaths))
	links := make([]string, len(imagePaths))
	for i, p := range imagePaths {
		rels[i] = h.vaultPath(p)
		links[i] = fmt.Sprintf("[Page %d](%s)", i+1, rels[i])
	}
	parts := []string{strings.TrimRight(markdown, "\n \t"), "", strings.Join(links, " ")}
	for _, rel := range rels {
		parts = append(parts, fmt.Sprintf("![[%s]]", rel))
	}
	parts = append(parts, "")
	return strings.Join(parts, "\n")
}

func (h *ObsidianHandler) vaultPath(path string) string {
	rel, err := filepath.Rel(h.cfg.RepositoryPath, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (h *ObsidianHandler) cloneRepository() error {
	cmd := exec.Command("git", "clone", "--branch", h.cfg.Branch, "--single-branch",
		h.cfg.RepositoryURL, h.cfg.RepositoryPath)
	cmd.Env = h.git.env
	out, err := cmd.CombinedOutput()
	if err != nil {
		return domain.OutputError(
			fmt.Sprintf("failed to clone vault repository: %s", strings.TrimSpace(string(out))), err)
	}
	return nil
}

// ensureKnownHost records the remote's SSH fingerprint when it is not yet
// trusted. An existing entry is left alone; host key verification is never
// disabled.
func (h *ObsidianHandler) ensureKnownHost() error {
	host := extractSSHHost(h.cfg.RepositoryURL)
	if host == "" {
		return nil
	}

	probe := exec.Command("ssh-keygen", "-F", host, "-f", h.cfg.KnownHostsPath)
	out, err := probe.Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(h.cfg.KnownHostsPath), 0o700); err != nil {
		return domain.OutputError("create known_hosts directory", err)
	}

	scan := exec.Command("ssh-keyscan", "-H", host)
	scanned, err := scan.Output()
	if err != nil || strings.TrimSpace(string(scanned)) == "" {
		h.logger.Warn().
			Str("host", host).
			Str("known_hosts", h.cfg.KnownHostsPath).
			Msg("unable to record SSH fingerprint automatically; run ssh-keyscan manually if authentication prompts appear")
		return nil
	}

	f, err := os.OpenFile(h.cfg.KnownHostsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.OutputError("open known_hosts file", err)
	}
	defer f.Close()
	if _, err := f.Write(scanned); err != nil {
		return domain.OutputError("append known_hosts entry", err)
	}
	return nil
}

func (h *ObsidianHandler) optimizePNG(ctx context.Context, path string) {
	if len(h.pngOptimizer) == 0 {
		return
	}
	args := append(h.pngOptimizer[1:], path)
	cmd := exec.CommandContext(ctx, h.pngOptimizer[0], args...)
	if err := cmd.Run(); err != nil {
		h.logger.Debug().Str("path", path).Err(err).Msg("png optimizer failed")
	}
}

// selectPNGOptimizer probes for a lossless PNG optimizer once at
// construction time: optipng first, then zopfli.
func selectPNGOptimizer() []string {
	if path, err := exec.LookPath("optipng"); err == nil {
		return []string{path, "-quiet", "-o7"}
	}
	if path, err := exec.LookPath("zopfli"); err == nil {
		return []string{path, "--png", "--iterations=50"}
	}
	return nil
}

// buildGitSSHEnv returns the process environment with GIT_SSH_COMMAND forcing
// the explicit key, known hosts file, and strict host key checking.
func buildGitSSHEnv(privateKeyPath, knownHostsPath string) []string {
	parts := []string{"ssh"}
	if privateKeyPath != "" {
		parts = append(parts, "-i", shellQuote(privateKeyPath))
	}
	if knownHostsPath != "" {
		parts = append(parts, "-o", shellQuote("UserKnownHostsFile="+knownHostsPath))
	}
	parts = append(parts, "-o", "StrictHostKeyChecking=yes")

	env := os.Environ()
	return append(env, "GIT_SSH_COMMAND="+strings.Join(parts, " "))
}

func shellQuote(value string) string {
	if !strings.ContainsAny(value, " \t'\"\\$`") {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// extractSSHHost pulls the host out of an ssh:// URL or scp-like
// user@host:path remote. Non-SSH remotes yield "".
func extractSSHHost(remoteURL string) string {
	if strings.HasPrefix(remoteURL, "ssh://") {
		parsed, err := url.Parse(remoteURL)
		if err != nil {
			return ""
		}
		return parsed.Hostname()
	}
	if at := strings.Index(remoteURL, "@"); at >= 0 {
		rest := remoteURL[at+1:]
		if colon := strings.Index(rest, ":"); colon > 0 {
			return rest[:colon]
		}
	}
	return ""
}
