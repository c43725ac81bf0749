package agent

import (
	"sort"

	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/research"
)

// Deps bundles the collaborators role constructors need.
type Deps struct {
	Generator   provider.Generator
	Fetcher     *research.Fetcher
	ArticlesDir string
}

// Registry builds the built-in capability set, keyed by the names
// workflow definitions bind steps to.
func Registry(deps Deps) map[string]Role {
	return map[string]Role{
		"research": NewResearchRole(deps.Generator, deps.Fetcher),
		"outline":  NewOutlineRole(deps.Generator),
		"draft":    NewDraftRole(deps.Generator),
		"review":   NewReviewRole(deps.Generator),
		"format":   NewFormatRole(),
		"export":   NewExportRole(deps.ArticlesDir),
	}
}

// Capabilities lists the built-in capability names, sorted.
func Capabilities() []string {
	names := make([]string, 0, len(Registry(Deps{})))
	for name := range Registry(Deps{}) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
