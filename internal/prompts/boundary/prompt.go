package boundary

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/sluice-dev/sluice/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// UserPromptData carries the values rendered into the user prompt.
type UserPromptData struct {
	DocumentID   string
	TotalLines   int
	HintStart    int
	HintEnd      int
	StartExcerpt string
	EndExcerpt   string
}

// SystemPrompt returns the system prompt for boundary detection.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt builds the user prompt for boundary detection.
func UserPrompt(data UserPromptData) string {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return userPromptTmpl
	}
	return buf.String()
}

// UserPromptWithOverride renders data through an override template when
// one is provided, falling back to the embedded default.
func UserPromptWithOverride(data UserPromptData, override string) string {
	if override == "" {
		return UserPrompt(data)
	}
	tmpl, err := template.New("user_override").Parse(override)
	if err != nil {
		return UserPrompt(data)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return UserPrompt(data)
	}
	return buf.String()
}

// Prompt keys
const (
	SystemPromptKey = "stages.boundary.system"
	UserPromptKey   = "stages.boundary.user"
)

// RegisterPrompts registers the boundary prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Boundary detection system prompt - confirms core content boundary lines",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Boundary detection user prompt template",
	})
}
