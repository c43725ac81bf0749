package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// Artifact schemas, keyed by kind. Edits replace a step's output
// wholesale, so the replacement has to look like something the next
// step can consume.
var artifactSchemas = map[types.ArtifactKind]string{
	types.ArtifactResearch: `{
		"type": "object",
		"required": ["kind", "body"],
		"properties": {
			"kind": {"const": "research"},
			"body": {"type": "string", "minLength": 1},
			"meta": {"type": "object"}
		}
	}`,
	types.ArtifactOutline: `{
		"type": "object",
		"required": ["kind", "body"],
		"properties": {
			"kind": {"const": "outline"},
			"body": {"type": "string", "minLength": 1},
			"meta": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"sections": {"type": "array", "minItems": 1}
				}
			}
		}
	}`,
	types.ArtifactDraft: `{
		"type": "object",
		"required": ["kind", "body"],
		"properties": {
			"kind": {"const": "draft"},
			"body": {"type": "string", "minLength": 1},
			"meta": {"type": "object"}
		}
	}`,
	types.ArtifactCritique: `{
		"type": "object",
		"required": ["kind", "body"],
		"properties": {
			"kind": {"const": "critique"},
			"body": {"type": "string", "minLength": 1},
			"meta": {
				"type": "object",
				"properties": {
					"score": {"type": "number", "minimum": 0, "maximum": 10}
				}
			}
		}
	}`,
	types.ArtifactArticle: `{
		"type": "object",
		"required": ["kind", "body"],
		"properties": {
			"kind": {"const": "article"},
			"body": {"type": "string", "minLength": 1},
			"meta": {"type": "object"}
		}
	}`,
}

// ValidateArtifact checks an edited artifact against the schema for its
// kind. Kinds without a schema only need a valid kind and a body; the
// orchestrator treats a validation failure as an invalid edit.
func ValidateArtifact(step string, a types.Artifact) error {
	if !a.Kind.Valid() {
		return derrors.ReviewInvalidEdit(step, fmt.Errorf("unknown artifact kind: %q", a.Kind))
	}
	if strings.TrimSpace(a.Body) == "" {
		return derrors.ReviewInvalidEdit(step, fmt.Errorf("artifact body is empty"))
	}

	schema, ok := artifactSchemas[a.Kind]
	if !ok {
		return nil
	}

	doc, err := json.Marshal(a)
	if err != nil {
		return derrors.ReviewInvalidEdit(step, err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return derrors.ReviewInvalidEdit(step, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return derrors.ReviewInvalidEdit(step, fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}
