// Package generation is the boundary to the text generation service. The
// orchestrator only sees the Generator interface; retries, model selection,
// and transport live behind it.
package generation

import "context"

// Prompt is one generation request. System carries the persona text verbatim;
// User carries the task instructions.
type Prompt struct {
	System string
	User   string
}

// Generator produces free text for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Settings configures a concrete generator implementation.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
}
