package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/draftsmith/draftsmith/internal/types"
)

// LoadArtifactFile reads a replacement artifact from disk for a
// non-interactive edit. A .json file must hold a full artifact document;
// anything else is taken as a markdown body of the given kind. The
// result is validated before it is returned.
func LoadArtifactFile(path, step string, kind types.ArtifactKind) (types.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("reading artifact file: %w", err)
	}

	var a types.Artifact
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &a); err != nil {
			return types.Artifact{}, fmt.Errorf("parsing artifact file %s: %w", path, err)
		}
		if a.Kind == "" {
			a.Kind = kind
		}
	} else {
		a = types.NewArtifact(kind, string(data))
	}

	if err := ValidateArtifact(step, a); err != nil {
		return types.Artifact{}, err
	}
	return a, nil
}
