package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftsmith/draftsmith/internal/logging"
	"github.com/draftsmith/draftsmith/internal/types"
)

func TestFormatAssemblesFrontMatter(t *testing.T) {
	role := NewFormatRole()
	role.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	a := New(role, logging.NewForTest())

	input := types.NewArtifact(types.ArtifactCritique, "# Profiling Go\n\n\n\nBody paragraph.\n\n# Another H1\n\nMore.")
	input.SetMeta("title", "Profiling Go")
	input.SetMeta("score", 8.5)

	out, metrics, err := a.Run(context.Background(), Request{
		Input:  input,
		Topic:  "profiling go services",
		Params: map[string]any{"author": "drafts", "tags": []string{"go", "profiling"}},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactArticle, out.Kind)
	assert.Contains(t, out.Body, "---\ntitle: \"Profiling Go\"\ndate: 2026-03-14\n")
	assert.Contains(t, out.Body, "author: \"drafts\"")
	assert.Contains(t, out.Body, "tags: [go, profiling]")
	assert.Contains(t, out.Body, "review_score: 8.5")
	assert.Contains(t, out.Body, "## Another H1", "extra H1s get demoted")
	assert.NotContains(t, out.Body, "\n\n\n", "blank runs collapse")
	assert.Zero(t, metrics.TotalTokens, "format never calls the provider")
}

func TestFormatInsertsMissingTitleHeading(t *testing.T) {
	a := New(NewFormatRole(), logging.NewForTest())

	out, _, err := a.Run(context.Background(), Request{
		Input: types.NewArtifact(types.ArtifactCritique, "Just a paragraph with no heading."),
		Topic: "untitled topic",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Body, "# untitled topic\n")
}

func TestExportWritesArticleFiles(t *testing.T) {
	dir := t.TempDir()
	a := New(NewExportRole(dir), logging.NewForTest())

	input := types.NewArtifact(types.ArtifactArticle, "---\ntitle: \"T\"\n---\n\n# T\n\nBody.\n")
	input.SetMeta("title", "T")

	out, _, err := a.Run(context.Background(), Request{
		Input:  input,
		RunID:  "profiling-go-20260314-120000",
		Topic:  "profiling go",
		Params: map[string]any{"formats": []string{"markdown", "json"}},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactExport, out.Kind)
	assert.Equal(t, filepath.Join(dir, "profiling-go-20260314-120000.md"), out.MetaString("path"))

	written, err := os.ReadFile(filepath.Join(dir, "profiling-go-20260314-120000.md"))
	require.NoError(t, err)
	assert.Equal(t, input.Body, string(written))

	_, err = os.Stat(filepath.Join(dir, "profiling-go-20260314-120000.json"))
	assert.NoError(t, err)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	a := New(NewExportRole(t.TempDir()), logging.NewForTest())

	_, _, err := a.Run(context.Background(), Request{
		Input:  types.NewArtifact(types.ArtifactArticle, "body"),
		RunID:  "run",
		Topic:  "t",
		Params: map[string]any{"formats": []string{"docx"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}
