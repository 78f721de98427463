package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/observability"
)

// GitConfig configures a git-backed Markdown destination.
type GitConfig struct {
	RepositoryPath        string
	Directory             string
	AssetDirectory        string
	Branch                string
	Remote                string
	CommitMessageTemplate string
	Push                  bool
}

// GitHandler persists Markdown files inside a git working tree and commits
// the changes. It wraps a FilesystemHandler by composition; the
// "commit only if staged diff" check is what guarantees that re-writing
// identical content never produces a duplicate commit.
type GitHandler struct {
	fs     *FilesystemHandler
	git    *gitRunner
	cfg    GitConfig
	logger *observability.Logger
	now    func() time.Time
}

// NewGitHandler validates the repository, ensures the configured branch is
// checked out, and prepares the output directories. Output and asset
// directories may be given relative to the repository root but must resolve
// inside it.
func NewGitHandler(cfg GitConfig, logger *observability.Logger) (*GitHandler, error) {
	repoPath, err := filepath.Abs(cfg.RepositoryPath)
	if err != nil {
		return nil, domain.OutputError("resolve repository path", err)
	}
	if _, err := os.Stat(repoPath); err != nil {
		return nil, domain.OutputError(fmt.Sprintf("git repository path does not exist: %s", repoPath), err)
	}
	cfg.RepositoryPath = repoPath
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.CommitMessageTemplate == "" {
		cfg.CommitMessageTemplate = "Add {document_name}"
	}

	git := &gitRunner{repoPath: repoPath, env: os.Environ()}
	if err := git.verifyWorkTree(); err != nil {
		return nil, err
	}
	if err := git.ensureBranch(cfg.Branch); err != nil {
		return nil, err
	}

	dir, err := resolveWithinRepository(repoPath, cfg.Directory)
	if err != nil {
		return nil, err
	}

	assetDir := ""
	if cfg.AssetDirectory != "" {
		assetDir, err = resolveWithinRepository(repoPath, cfg.AssetDirectory)
		if err != nil {
			return nil, err
		}
	}

	fs, err := NewFilesystemHandler(dir, assetDir)
	if err != nil {
		return nil, err
	}

	return &GitHandler{
		fs:     fs,
		git:    git,
		cfg:    cfg,
		logger: logger.WithComponent("output.git"),
		now:    time.Now,
	}, nil
}

// RepositoryPath returns the resolved repository root.
func (h *GitHandler) RepositoryPath() string {
	return h.cfg.RepositoryPath
}

// Write stores the Markdown (and optional PDF copy) inside the repository,
// stages the new paths, and commits only when the staged diff is non-empty.
// A no-op write is staged and then reset so the index stays clean.
func (h *GitHandler) Write(ctx context.Context, doc domain.Document, markdown string, pdfBytes []byte) (string, error) {
	basename := BuildBasename(doc, "document", h.now)
	markdownPath, pdfPath, err := h.fs.writeWithBasename(doc, markdown, pdfBytes, basename)
	if err != nil {
		return "", err
	}

	paths := []string{h.git.relative(markdownPath)}
	if pdfPath != "" {
		paths = append(paths, h.git.relative(pdfPath))
	}
	for _, p := range paths {
		if err := h.git.run(ctx, "add", p); err != nil {
			return "", err
		}
	}

	staged, err := h.git.hasStagedChanges(ctx, paths)
	if err != nil {
		return "", err
	}
	if !staged {
		h.logger.Debug().Str("document", doc.Name).Msg("no staged changes; skipping commit")
		if err := h.git.resetPaths(ctx, paths); err != nil {
			return "", err
		}
		return markdownPath, nil
	}

	message := expandCommitTemplate(h.cfg.CommitMessageTemplate, doc, paths[0])
	if err := h.git.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	if h.cfg.Push {
		if err := h.git.run(ctx, "push", h.cfg.Remote, h.cfg.Branch); err != nil {
			return "", err
		}
	}
	h.logger.Info().Str("document", doc.Name).Str("path", paths[0]).Msg("committed markdown")
	return markdownPath, nil
}

func resolveWithinRepository(repoPath, value string) (string, error) {
	path := value
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoPath, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.OutputError("resolve directory", err)
	}
	rel, err := filepath.Rel(repoPath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.OutputError(
			fmt.Sprintf("directory %s must reside within the git repository %s", abs, repoPath), nil)
	}
	return abs, nil
}

// gitRunner shells out to the git binary with a fixed working tree. The env
// slice carries GIT_SSH_COMMAND overrides for SSH-backed remotes.
type gitRunner struct {
	repoPath string
	env      []string
}

func (g *gitRunner) relative(path string) string {
	rel, err := filepath.Rel(g.repoPath, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (g *gitRunner) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"-C", g.repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Env = g.env
	return cmd
}

func (g *gitRunner) run(ctx context.Context, args ...string) error {
	cmd := g.command(ctx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return domain.OutputError(
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(out))), err)
	}
	return nil
}

func (g *gitRunner) output(ctx context.Context, args ...string) (string, error) {
	cmd := g.command(ctx, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", domain.OutputError(fmt.Sprintf("git %s failed", strings.Join(args, " ")), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *gitRunner) verifyWorkTree() error {
	out, err := g.output(context.Background(), "rev-parse", "--is-inside-work-tree")
	if err != nil || out != "true" {
		return domain.OutputError(fmt.Sprintf("path is not a git repository: %s", g.repoPath), err)
	}
	return nil
}

// ensureBranch checks out the configured branch, creating it when it does
// not exist yet. The current branch is reused when it already matches.
func (g *gitRunner) ensureBranch(branch string) error {
	ctx := context.Background()
	current, err := g.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err == nil && current == branch {
		return nil
	}
	if err := g.run(ctx, "checkout", branch); err == nil {
		return nil
	}
	return g.run(ctx, "checkout", "-b", branch)
}

// hasStagedChanges reports whether the index differs from HEAD for exactly
// the given paths. Exit code 1 from diff --cached --quiet means "changed".
func (g *gitRunner) hasStagedChanges(ctx context.Context, paths []string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	cmd := g.command(ctx, args...)
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, domain.OutputError("git diff --cached failed", err)
}

// hasAnyStagedChanges reports whether the whole index differs from HEAD.
func (g *gitRunner) hasAnyStagedChanges(ctx context.Context) (bool, error) {
	cmd := g.command(ctx, "diff", "--cached", "--quiet")
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, domain.OutputError("git diff --cached failed", err)
}

func (g *gitRunner) resetPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"reset", "HEAD", "--"}, paths...)
	return g.run(ctx, args...)
}
