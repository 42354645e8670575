// Package persona models the behavioral descriptors injected into generation
// calls. A descriptor is plain text plus an identifier; it carries no logic
// and is never interpreted as code.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is an immutable persona value passed through to the generation
// service as system context.
type Descriptor struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Validate reports whether the descriptor can be used for generation.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("persona: id is required")
	}
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("persona: %s has no text", d.ID)
	}
	return nil
}

// Load reads a persona descriptor from disk. YAML files must carry `id` and
// `text` keys; any other file is taken verbatim as the persona text with the
// file name (minus extension) as the id.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("persona: read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var desc Descriptor
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return Descriptor{}, fmt.Errorf("persona: parse %s: %w", path, err)
		}
		if err := desc.Validate(); err != nil {
			return Descriptor{}, err
		}
		return desc, nil
	}
	desc := Descriptor{
		ID:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Text: strings.TrimSpace(string(data)),
	}
	if err := desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// DefaultWriter is the built-in blog writer persona.
func DefaultWriter() Descriptor {
	return Descriptor{
		ID: "default-writer",
		Text: `You are a skilled blog writer.

Writing style:
- Clear, engaging, accessible prose with strong introductions.
- Well-structured content with smooth transitions between sections.
- Conclusions that leave the reader with something actionable.

Process:
- Produce complete, well-researched posts.
- Address review feedback thoroughly while keeping the core theme.
- Keep voice and quality consistent across revisions.`,
	}
}

// DefaultReviewer is the built-in blog reviewer persona.
func DefaultReviewer() Descriptor {
	return Descriptor{
		ID: "default-reviewer",
		Text: `You are an experienced blog content reviewer.

Evaluate every draft on:
- Quality: accurate, valuable, error-free writing.
- Clarity: the message is easy to follow.
- Structure: logical flow with sensible headings and lists.
- Engagement: the post holds the reader's attention.

Always give a clear APPROVE or REJECT decision. When rejecting, provide
specific, actionable feedback focused on the most impactful changes.`,
	}
}
