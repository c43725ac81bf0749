package types

// ArtifactKind identifies what a step produced.
type ArtifactKind string

const (
	ArtifactTopic    ArtifactKind = "topic"    // Seed input: the article topic
	ArtifactResearch ArtifactKind = "research" // Source notes and angles
	ArtifactOutline  ArtifactKind = "outline"  // Section structure
	ArtifactDraft    ArtifactKind = "draft"    // Article body text
	ArtifactCritique ArtifactKind = "critique" // Review notes and score
	ArtifactArticle  ArtifactKind = "article"  // Formatted article with front matter
	ArtifactExport   ArtifactKind = "export"   // Export receipt (output path)
)

// Valid returns true if this is a recognized artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactTopic, ArtifactResearch, ArtifactOutline, ArtifactDraft,
		ArtifactCritique, ArtifactArticle, ArtifactExport:
		return true
	}
	return false
}

// Artifact is the opaque work product passed from one step to the next.
// Body carries text content; Meta carries structured extras such as
// outline sections, critique points, or an export path.
type Artifact struct {
	Kind ArtifactKind   `yaml:"kind" json:"kind"`
	Body string         `yaml:"body,omitempty" json:"body,omitempty"`
	Meta map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// NewArtifact creates an artifact with an initialized Meta map.
func NewArtifact(kind ArtifactKind, body string) Artifact {
	return Artifact{
		Kind: kind,
		Body: body,
		Meta: make(map[string]any),
	}
}

// TopicArtifact builds the seed artifact that starts every run.
func TopicArtifact(topic string, seed map[string]string) Artifact {
	a := NewArtifact(ArtifactTopic, topic)
	for k, v := range seed {
		a.Meta[k] = v
	}
	return a
}

// Clone returns a copy with its own Meta map. Nested values are shared;
// gate edits replace the whole artifact rather than mutating in place.
func (a Artifact) Clone() Artifact {
	out := a
	if a.Meta != nil {
		out.Meta = make(map[string]any, len(a.Meta))
		for k, v := range a.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// MetaString returns a string meta value, or empty string if absent.
func (a Artifact) MetaString(key string) string {
	if a.Meta == nil {
		return ""
	}
	if s, ok := a.Meta[key].(string); ok {
		return s
	}
	return ""
}

// MetaFloat returns a numeric meta value. YAML and JSON round-trips may
// deliver numbers as int or float64, so both are accepted.
func (a Artifact) MetaFloat(key string) (float64, bool) {
	if a.Meta == nil {
		return 0, false
	}
	switch v := a.Meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// SetMeta sets a meta value, initializing the map if needed.
func (a *Artifact) SetMeta(key string, value any) {
	if a.Meta == nil {
		a.Meta = make(map[string]any)
	}
	a.Meta[key] = value
}
