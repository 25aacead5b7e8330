// Package templates provides the embedded prompt and artifact templates the
// agents render: LLM prompts as *.tpl.md, artifact scaffolds for the GitHub
// Actions workflow and the Dockerfile.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md *.tpl.yml dockerfile_scaffold.tpl
var templateFS embed.FS

// Data holds the fields the templates draw from. Scaffold fields come from the
// project config; prompt fields are filled per request.
type Data struct {
	Extra map[string]any `json:"extra,omitempty"`

	// Workflow scaffold fields.
	WorkflowName  string `json:"workflow_name,omitempty"`
	PythonVersion string `json:"python_version,omitempty"`
	TargetBranch  string `json:"target_branch,omitempty"`
	RunTests      bool   `json:"run_tests,omitempty"`
	ImageTag      string `json:"image_tag,omitempty"`

	// Dockerfile scaffold fields.
	BaseImage  string `json:"base_image,omitempty"`
	WorkDir    string `json:"work_dir,omitempty"`
	CopySource string `json:"copy_source,omitempty"`
	ExposePort int    `json:"expose_port,omitempty"`

	// Prompt fields.
	BuildData   string `json:"build_data,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileContent string `json:"file_content,omitempty"`
	Diff        string `json:"diff,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
	Context     string `json:"context,omitempty"`
	Draft       string `json:"draft,omitempty"`
}

// TemplateName identifies an embedded template.
type TemplateName string

const (
	// WorkflowScaffold is the GitHub Actions workflow artifact template.
	WorkflowScaffold TemplateName = "workflow_scaffold.tpl.yml"
	// DockerfileScaffold is the Dockerfile artifact template.
	DockerfileScaffold TemplateName = "dockerfile_scaffold.tpl"
	// PredictorPrompt is the build failure prediction user prompt.
	PredictorPrompt TemplateName = "predictor_prompt.tpl.md"
	// ReviewPrompt is the per-file code review user prompt.
	ReviewPrompt TemplateName = "review_prompt.tpl.md"
	// ChatPrompt is the pull request chat user prompt.
	ChatPrompt TemplateName = "chat_prompt.tpl.md"
	// WorkflowRefine is the improvement prompt wrapped around a workflow draft.
	WorkflowRefine TemplateName = "workflow_refine.tpl.md"
	// DockerfileRefine is the improvement prompt wrapped around a Dockerfile draft.
	DockerfileRefine TemplateName = "dockerfile_refine.tpl.md"
)

// Renderer handles template rendering for agent prompts and artifacts.
type Renderer struct {
	templates map[TemplateName]*template.Template
}

// NewRenderer creates a renderer with all embedded templates parsed.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[TemplateName]*template.Template),
	}

	templateNames := []TemplateName{
		// Artifact scaffolds.
		WorkflowScaffold,
		DockerfileScaffold,
		// Agent prompts.
		PredictorPrompt,
		ReviewPrompt,
		ChatPrompt,
		WorkflowRefine,
		DockerfileRefine,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
		})
		if !strings.HasSuffix(string(name), ".tpl.md") {
			// The scaffolds emit GitHub Actions ${{ }} expressions, which
			// collide with the default delimiters.
			tmpl = tmpl.Delims("[[", "]]")
		}

		parsed, err := tmpl.Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = parsed
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName TemplateName, data *Data) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []TemplateName {
	templates := make([]TemplateName, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}
