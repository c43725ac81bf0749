package workflow

import (
	"fmt"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
)

// Validate checks every workflow in the module.
func (m *Module) Validate() error {
	if len(m.Workflows) == 0 {
		return derrors.WorkflowInvalid(m.Path, "module defines no workflows")
	}
	for _, name := range m.Names() {
		if err := m.Workflows[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single workflow definition: it must have at least one
// step, step names must be unique, and each descriptor must be internally
// consistent. Capability names are resolved later, at bind time, so an
// unregistered capability is not a parse failure.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return derrors.WorkflowInvalid("(unnamed)", "workflow name is required")
	}
	if len(d.Steps) == 0 {
		return derrors.WorkflowInvalid(d.Name, "workflow has no steps")
	}

	seen := make(map[string]bool, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if err := step.Validate(); err != nil {
			return derrors.WorkflowInvalid(d.Name, err.Error())
		}
		if seen[step.Name] {
			return derrors.WorkflowInvalid(d.Name, fmt.Sprintf("duplicate step name: %s", step.Name))
		}
		seen[step.Name] = true
	}
	return nil
}
