package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpipe/inkpipe/internal/config"
	"github.com/inkpipe/inkpipe/internal/observability"
)

func TestBuildMindmapSink_KeepLocalCopyKnobs(t *testing.T) {
	tests := []struct {
		name      string
		configure func(cfg *config.Config)
	}{
		{
			name: "mindmap-level knob",
			configure: func(cfg *config.Config) {
				cfg.Mindmap.KeepLocalCopy = true
			},
		},
		{
			name: "nested google drive knob",
			configure: func(cfg *config.Config) {
				cfg.Mindmap.GoogleDrive.KeepLocalCopy = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Mindmap.GoogleDrive.FolderID = "folder-1"
			cfg.Markdown.Directory = ""
			tt.configure(cfg)

			// Without a local directory the handler must reject the copy
			// request, proving the knob reached the sink.
			_, err := buildMindmapSink(cfg, nil, observability.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "local directory")
		})
	}
}

func TestBuildMindmapSink_LocalCopyDirectoryCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notes")
	cfg := config.DefaultConfig()
	cfg.Mindmap.GoogleDrive.FolderID = "folder-1"
	cfg.Mindmap.GoogleDrive.KeepLocalCopy = true
	cfg.Markdown.Directory = dir

	sink, err := buildMindmapSink(cfg, nil, observability.Nop())
	require.NoError(t, err)
	assert.NotNil(t, sink)
	assert.DirExists(t, dir)
}
