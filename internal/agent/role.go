package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/draftsmith/draftsmith/internal/provider"
)

// validate checks the typed structures parsed out of model responses.
var validate = validator.New()

// generative is embedded by the roles that call the language model. It
// holds the provider handle and the defaults shared by their Act phases.
type generative struct {
	gen  provider.Generator
	name string
}

// generate issues one model call and books its usage on the scratchpad.
func (g *generative) generate(ctx context.Context, sp *Scratchpad, req provider.Request) (string, error) {
	if req.Role == "" {
		req.Role = g.name
	}
	if req.Profile == "" {
		req.Profile = sp.Profile
	}
	resp, err := g.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	sp.AddUsage(resp)
	return resp.Text, nil
}

// parseInto decodes a model's JSON reply into out and validates it.
// The raw content rides along in the error, which is what you want when
// a model goes off script.
func parseInto(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshaling model response: %w (content: %.200s)", err, raw)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("model response failed validation: %w", err)
	}
	return nil
}

// neverDone is embedded by roles without an early-stop condition; they
// use every round the descriptor grants them.
type neverDone struct{}

func (neverDone) Done(*Scratchpad) bool { return false }

// metaParseError marks an observation whose model reply could not be
// parsed. Roles that repair on later rounds key off it.
const metaParseError = "parse_error"

// unclean records an unusable model reply. The raw text is kept so the
// run degrades to whatever the model said if every round stays dirty.
func unclean(raw string, err error) Observation {
	return Observation{
		Output: raw,
		Meta:   map[string]any{metaParseError: err.Error()},
	}
}

// cleanDone reports whether the latest observation parsed cleanly. Roles
// that spend extra rounds only on repairing malformed replies use it as
// their Done predicate.
func cleanDone(sp *Scratchpad) bool {
	last := sp.Last()
	if last == nil {
		return false
	}
	_, dirty := last.Meta[metaParseError]
	return !dirty
}

// repairNote describes the previous round's parse failure for the next
// prompt. Empty on a first attempt or after a clean round.
func repairNote(sp *Scratchpad) string {
	last := sp.Last()
	if last == nil {
		return ""
	}
	msg, _ := last.Meta[metaParseError].(string)
	if msg == "" {
		return ""
	}
	return fmt.Sprintf("\nYour previous reply could not be used: %s\nAnswer again with only the requested JSON.\n", msg)
}

// decodeParams maps a step's free-form params table onto a typed options
// struct.
func decodeParams(params map[string]any, out any) error {
	if params == nil {
		return nil
	}
	if err := mapstructure.Decode(params, out); err != nil {
		return fmt.Errorf("decoding step params: %w", err)
	}
	return nil
}
