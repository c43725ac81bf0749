// Package workflow provides TOML parsing and resolution for draftsmith
// workflow definitions.
package workflow

import (
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// Module represents a parsed definition file containing one or more
// workflows, keyed by their section name.
type Module struct {
	Path      string                 // File path for error messages
	Workflows map[string]*Definition // Named workflows
}

// Definition is a single workflow: an ordered list of step descriptors
// plus presentation metadata.
type Definition struct {
	Name        string                 `toml:"name"`
	Description string                 `toml:"description"`
	Steps       []types.StepDescriptor `toml:"steps"`
}

// Get returns the workflow with the given name, or nil if not found.
func (m *Module) Get(name string) *Definition {
	return m.Workflows[name]
}

// Default returns the module's default workflow: the one matching the
// given name (normally the file's base name), or the sole workflow when
// the module defines exactly one.
func (m *Module) Default(name string) *Definition {
	if def, ok := m.Workflows[name]; ok {
		return def
	}
	if len(m.Workflows) == 1 {
		for _, def := range m.Workflows {
			return def
		}
	}
	return nil
}

// Names returns the workflow names defined in this module, sorted.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.Workflows))
	for name := range m.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Step returns the descriptor with the given name, or nil.
func (d *Definition) Step(name string) *types.StepDescriptor {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// ParseModuleFile parses a workflow definition file from the given path.
func ParseModuleFile(path string) (*Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.WorkflowParseError(path, err)
	}
	return ParseModuleString(string(content), path)
}

// ParseModuleReader parses a workflow definition from the given reader.
func ParseModuleReader(r io.Reader, path string) (*Module, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, derrors.WorkflowParseError(path, err)
	}
	return ParseModuleString(string(content), path)
}

// ParseModuleString parses a workflow definition from a string. Each
// top-level TOML table is a workflow; the module must define at least one
// and every workflow must validate.
func ParseModuleString(content, path string) (*Module, error) {
	var raw map[string]toml.Primitive
	md, err := toml.Decode(content, &raw)
	if err != nil {
		return nil, derrors.WorkflowParseError(path, err)
	}

	module := &Module{
		Path:      path,
		Workflows: make(map[string]*Definition),
	}

	for name, prim := range raw {
		def := &Definition{}
		if err := md.PrimitiveDecode(prim, def); err != nil {
			return nil, derrors.WorkflowParseError(path, err).WithDetail("workflow", name)
		}
		if def.Name == "" {
			def.Name = name
		}
		module.Workflows[name] = def
	}

	if err := module.Validate(); err != nil {
		return nil, err
	}
	return module, nil
}
