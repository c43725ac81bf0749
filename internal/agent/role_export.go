package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/draftsmith/draftsmith/internal/types"
)

type exportParams struct {
	Formats []string `mapstructure:"formats"`
}

// ExportRole writes the formatted article to the articles directory and
// returns a receipt naming the written files. Markdown is always
// supported; "json" additionally writes the artifact with its metadata
// for downstream tooling.
type ExportRole struct {
	neverDone
	dir string
}

// NewExportRole creates the export capability writing into dir.
func NewExportRole(dir string) *ExportRole {
	return &ExportRole{dir: dir}
}

func (r *ExportRole) Name() string             { return "export" }
func (r *ExportRole) Kind() types.ArtifactKind { return types.ArtifactExport }

func (r *ExportRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	return "write the article to disk", nil
}

func (r *ExportRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	var p exportParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return "", err
	}
	formats := p.Formats
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating articles directory: %w", err)
	}

	base := sp.RunID
	if base == "" {
		base = "article"
	}

	var paths []string
	for _, format := range formats {
		switch format {
		case "markdown", "md":
			path := filepath.Join(r.dir, base+".md")
			if err := os.WriteFile(path, []byte(sp.Input.Body), 0o644); err != nil {
				return "", fmt.Errorf("writing article: %w", err)
			}
			paths = append(paths, path)
		case "json":
			path := filepath.Join(r.dir, base+".json")
			data, err := json.MarshalIndent(sp.Input, "", "  ")
			if err != nil {
				return "", fmt.Errorf("encoding article: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return "", fmt.Errorf("writing article json: %w", err)
			}
			paths = append(paths, path)
		default:
			return "", fmt.Errorf("unsupported export format: %s", format)
		}
	}
	return strings.Join(paths, "\n"), nil
}

func (r *ExportRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	paths := strings.Split(raw, "\n")
	return Observation{
		Plan:   "export",
		Output: fmt.Sprintf("exported %d file(s):\n%s", len(paths), raw),
		Meta: map[string]any{
			"paths": paths,
			"path":  paths[0],
			"title": sp.Input.MetaString("title"),
		},
	}, nil
}

var _ Role = (*ExportRole)(nil)
