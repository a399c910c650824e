package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
	}
}

// DefaultLoader creates a loader with standard override paths:
// 1. Project-local: .flowsmith/prompts/
// 2. User config: ~/.config/flowsmith/prompts/
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".flowsmith", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "flowsmith", "prompts"))

	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		fullPath := filepath.Join(dir, path)
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// LoadTemplate loads and parses a template by path (e.g., "pipeline/coder.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(path string, data interface{}) (string, error) {
	tmpl, err := l.LoadTemplate(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}

	return buf.String(), nil
}

// PlannerData holds template variables for the planner prompt.
type PlannerData struct {
	Issue domain.Issue
}

// CoderData holds template variables for the coder prompt.
type CoderData struct {
	Issue       domain.Issue
	Plan        string
	Feedback    string
	Attempt     int
	MaxAttempts int
}

// ReviewerData holds template variables for the reviewer prompt.
type ReviewerData struct {
	Issue domain.Issue
	Plan  string
}

// PRBodyData holds template variables for the pull request body.
type PRBodyData struct {
	Issue       domain.Issue
	Summary     string
	Review      string
	Attempts    int
	GateSummary string
}

// BuildPlannerPrompt renders the planner prompt for an issue.
func (l *Loader) BuildPlannerPrompt(data PlannerData) (string, error) {
	return l.Execute("pipeline/planner.md", data)
}

// BuildCoderPrompt renders the coder prompt for one attempt, including the
// quality-gate feedback of the previous attempt when present.
func (l *Loader) BuildCoderPrompt(data CoderData) (string, error) {
	return l.Execute("pipeline/coder.md", data)
}

// BuildReviewerPrompt renders the reviewer prompt.
func (l *Loader) BuildReviewerPrompt(data ReviewerData) (string, error) {
	return l.Execute("pipeline/reviewer.md", data)
}

// BuildPRBody renders the pull request description.
func (l *Loader) BuildPRBody(data PRBodyData) (string, error) {
	return l.Execute("pipeline/pr_body.md", data)
}
