package workflow

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
)

//go:embed workflows/*.toml
var embeddedFS embed.FS

// embeddedDir is the subdirectory of embeddedFS holding built-in workflows.
const embeddedDir = "workflows"

// Scope restricts workflow resolution to part of the search hierarchy.
type Scope string

const (
	// ScopeProject searches project -> user -> embedded. The default.
	ScopeProject Scope = "project"

	// ScopeUser searches user -> embedded, never project.
	ScopeUser Scope = "user"

	// ScopeEmbedded searches only the workflows compiled into the binary.
	ScopeEmbedded Scope = "embedded"
)

// Valid returns true for a recognized scope or empty (unrestricted).
func (s Scope) Valid() bool {
	switch s {
	case ScopeProject, ScopeUser, ScopeEmbedded, "":
		return true
	}
	return false
}

// SearchesProject returns true if this scope includes project workflows.
func (s Scope) SearchesProject() bool {
	return s == "" || s == ScopeProject
}

// SearchesUser returns true if this scope includes user workflows.
func (s Scope) SearchesUser() bool {
	return s == "" || s == ScopeProject || s == ScopeUser
}

// SearchesEmbedded returns true. Embedded workflows are always the fallback.
func (s Scope) SearchesEmbedded() bool {
	return true
}

// Loader resolves workflow references against the project directory, the
// user config directory, and the embedded defaults, in that order.
type Loader struct {
	// ProjectDir is the directory containing .draftsmith/workflows/.
	ProjectDir string

	// UserDir is the user config dir containing workflows/.
	// Default: ~/.draftsmith
	UserDir string

	// Scope restricts resolution. Empty searches everything.
	Scope Scope
}

// Location describes where a workflow reference resolved.
type Location struct {
	Path   string
	Source string // "project", "user", or "embedded"
	Name   string // workflow name within the module
}

// Loaded is a resolved workflow definition with its module and origin.
type Loaded struct {
	Module     *Module
	Definition *Definition
	Path       string
	Source     string
}

// NewLoader creates a loader rooted at the given project directory.
func NewLoader(projectDir string) *Loader {
	userDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		userDir = filepath.Join(home, ".draftsmith")
	}

	return &Loader{
		ProjectDir: projectDir,
		UserDir:    userDir,
	}
}

// Load resolves a workflow reference and parses its module.
//
// A reference is a module base name, optionally with a workflow selector:
// "article" loads article.toml and picks the workflow named "article" (or
// the module's only workflow); "article#quick" picks the workflow "quick"
// from the same file.
func (l *Loader) Load(ref string) (*Loaded, error) {
	location, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}

	module, err := l.loadModule(location)
	if err != nil {
		return nil, err
	}

	def := module.Default(location.Name)
	if def == nil {
		return nil, derrors.WorkflowNotFound(ref).
			WithDetail("path", location.Path).
			WithDetail("available", module.Names())
	}

	return &Loaded{
		Module:     module,
		Definition: def,
		Path:       location.Path,
		Source:     location.Source,
	}, nil
}

// Resolve returns the path and workflow name for a reference without
// parsing the module. Search order follows the Scope setting.
func (l *Loader) Resolve(ref string) (*Location, error) {
	base, name := splitRef(ref)
	if base == "" {
		return nil, derrors.WorkflowInvalid(ref, "empty workflow reference")
	}
	filename := base + ".toml"

	if l.Scope.SearchesProject() && l.ProjectDir != "" {
		p := filepath.Join(l.ProjectDir, ".draftsmith", "workflows", filename)
		if fileExists(p) {
			return &Location{Path: p, Source: "project", Name: name}, nil
		}
	}

	if l.Scope.SearchesUser() && l.UserDir != "" {
		p := filepath.Join(l.UserDir, "workflows", filename)
		if fileExists(p) {
			return &Location{Path: p, Source: "user", Name: name}, nil
		}
	}

	if l.Scope.SearchesEmbedded() {
		p := path.Join(embeddedDir, filename)
		if _, err := fs.Stat(embeddedFS, p); err == nil {
			return &Location{Path: p, Source: "embedded", Name: name}, nil
		}
	}

	return nil, derrors.WorkflowNotFound(ref).WithDetail("searched", l.searchPaths(base))
}

func (l *Loader) loadModule(location *Location) (*Module, error) {
	if location.Source == "embedded" {
		data, err := embeddedFS.ReadFile(location.Path)
		if err != nil {
			return nil, derrors.WorkflowParseError(location.Path, err)
		}
		return ParseModuleString(string(data), location.Path)
	}
	return ParseModuleFile(location.Path)
}

// splitRef separates "module#workflow" into its parts. Without a selector
// the workflow name defaults to the module base name.
func splitRef(ref string) (base, name string) {
	base = strings.TrimSpace(ref)
	base = strings.TrimSuffix(base, ".toml")
	if idx := strings.Index(base, "#"); idx != -1 {
		return base[:idx], base[idx+1:]
	}
	return base, base
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Loader) searchPaths(base string) []string {
	filename := base + ".toml"
	var paths []string

	if l.Scope.SearchesProject() && l.ProjectDir != "" {
		paths = append(paths, filepath.Join(l.ProjectDir, ".draftsmith", "workflows", filename))
	}
	if l.Scope.SearchesUser() && l.UserDir != "" {
		paths = append(paths, filepath.Join(l.UserDir, "workflows", filename))
	}
	paths = append(paths, "<embedded>/"+path.Join(embeddedDir, filename))
	return paths
}

// Available describes a workflow offered by one of the sources.
type Available struct {
	Name        string // Module base name (without .toml)
	Description string
	Source      string // "project", "user", or "embedded"
	Path        string
}

// ListAvailable returns the workflows visible from all sources, grouped
// by source. Shadowed entries still appear under their own source.
func (l *Loader) ListAvailable() map[string][]Available {
	result := make(map[string][]Available)

	if l.ProjectDir != "" {
		if found := l.listFromDir(filepath.Join(l.ProjectDir, ".draftsmith", "workflows"), "project"); len(found) > 0 {
			result["project"] = found
		}
	}
	if l.UserDir != "" {
		if found := l.listFromDir(filepath.Join(l.UserDir, "workflows"), "user"); len(found) > 0 {
			result["user"] = found
		}
	}
	if found := l.listEmbedded(); len(found) > 0 {
		result["embedded"] = found
	}
	return result
}

func (l *Loader) listFromDir(dir, source string) []Available {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var found []Available
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".toml")
		full := filepath.Join(dir, entry.Name())

		module, err := ParseModuleFile(full)
		if err != nil {
			// Unparseable files are skipped when listing, not fatal.
			continue
		}
		def := module.Default(base)
		if def == nil {
			continue
		}
		found = append(found, Available{
			Name:        base,
			Description: def.Description,
			Source:      source,
			Path:        full,
		})
	}
	return found
}

func (l *Loader) listEmbedded() []Available {
	entries, err := fs.ReadDir(embeddedFS, embeddedDir)
	if err != nil {
		return nil
	}

	var found []Available
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".toml")
		p := path.Join(embeddedDir, entry.Name())

		data, err := embeddedFS.ReadFile(p)
		if err != nil {
			continue
		}
		module, err := ParseModuleString(string(data), p)
		if err != nil {
			continue
		}
		def := module.Default(base)
		if def == nil {
			continue
		}
		found = append(found, Available{
			Name:        base,
			Description: def.Description,
			Source:      "embedded",
			Path:        p,
		})
	}
	return found
}

// CopyEmbedded writes the built-in workflow modules into destDir so a
// project can customize them. Existing files are left alone.
func CopyEmbedded(destDir string) error {
	return fs.WalkDir(embeddedFS, embeddedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		destPath := filepath.Join(destDir, path.Base(p))
		if _, err := os.Stat(destPath); err == nil {
			return nil
		}
		data, err := embeddedFS.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(destPath, data, 0o644)
	})
}
