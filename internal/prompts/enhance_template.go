// Package prompts holds the instruction templates the prompt
// enhancement assistant renders before calling the chat model.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// TemplateEngine manages enhancement templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template represents an instruction template with variables
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// EnhanceContext holds the variables for rendering an enhancement
// instruction
type EnhanceContext struct {
	UserPrompt     string `json:"user_prompt"`
	GenerationType string `json:"generation_type"`
	Model          string `json:"model"`
	Style          string `json:"style"`
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		templates: make(map[string]*Template),
	}
}

// RegisterTemplate registers a template; variables are extracted from
// the content when not supplied
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) error {
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[tmpl.Name] = tmpl
	return nil
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Render renders a template with the given context
func (e *TemplateEngine) Render(templateName string, ctx *EnhanceContext) (string, error) {
	tmpl, err := e.GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	varRegex := regexp.MustCompile(`\{\{(\w+)\}\}`)
	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		varName := varRegex.FindStringSubmatch(match)[1]
		value, ok := getVariableValue(ctx, varName)
		if ok {
			return value
		}
		return match // Keep placeholder if not found
	})

	return result, nil
}

func getVariableValue(ctx *EnhanceContext, varName string) (string, bool) {
	switch varName {
	case "user_prompt":
		return ctx.UserPrompt, ctx.UserPrompt != ""
	case "generation_type":
		return ctx.GenerationType, ctx.GenerationType != ""
	case "model":
		return ctx.Model, ctx.Model != ""
	case "style":
		return ctx.Style, ctx.Style != ""
	}
	return "", false
}

// Template names used by the enhancement assistant
const (
	TemplateEnhanceImage = "enhance_image"
	TemplateEnhanceVideo = "enhance_video"
)

// InitializeDefaultTemplates registers the built-in enhancement
// templates
func (e *TemplateEngine) InitializeDefaultTemplates() error {
	templates := []*Template{
		{
			Name:        TemplateEnhanceImage,
			Description: "Rework a rough image prompt into a detailed one",
			Content: `You are a prompt engineer for diffusion image models.

Rewrite the prompt below into a single detailed generation prompt for the model "{{model}}".

Original prompt:
{{user_prompt}}

Requirements:
1. Keep the subject and intent of the original prompt
2. Add concrete visual details: composition, lighting, color palette, texture
3. Append quality tags appropriate for diffusion models
4. Stay under 200 words
5. Reply with the rewritten prompt only, no commentary`,
		},
		{
			Name:        TemplateEnhanceVideo,
			Description: "Rework a rough video prompt into a shot description",
			Content: `You are a prompt engineer for generative video models.

Rewrite the prompt below into a single detailed shot description for the model "{{model}}".

Original prompt:
{{user_prompt}}

Requirements:
1. Keep the subject and intent of the original prompt
2. Describe camera movement, pacing and scene progression
3. Add lighting and atmosphere details
4. Stay under 150 words
5. Reply with the rewritten prompt only, no commentary`,
		},
	}

	for _, tmpl := range templates {
		if err := e.RegisterTemplate(tmpl); err != nil {
			return fmt.Errorf("failed to register template %s: %w", tmpl.Name, err)
		}
	}

	return nil
}

// ParseTemplateVariables extracts variables from a template
func ParseTemplateVariables(templateContent string) []string {
	varRegex := regexp.MustCompile(`\{\{(\w+)\}\}`)
	matches := varRegex.FindAllStringSubmatch(templateContent, -1)

	uniqueVars := make(map[string]bool)
	for _, match := range matches {
		if len(match) > 1 {
			uniqueVars[match[1]] = true
		}
	}

	vars := make([]string, 0, len(uniqueVars))
	for v := range uniqueVars {
		vars = append(vars, v)
	}

	return vars
}

// TemplateForType picks the enhancement template for a generation type
func TemplateForType(generationType string) string {
	if strings.EqualFold(generationType, "video") {
		return TemplateEnhanceVideo
	}
	return TemplateEnhanceImage
}
