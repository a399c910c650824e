// Package parser extracts structured metadata from agent output. Planner
// output is markdown with optional YAML frontmatter; everything the pipeline
// needs downstream (branch name, PR title) is pulled from there.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanMeta is the structured part of a planner's output
type PlanMeta struct {
	Title   string `yaml:"title"`
	Branch  string `yaml:"branch"`
	Summary string `yaml:"summary"`
}

// ParsePlan extracts YAML frontmatter from planner output and returns the
// metadata plus the remaining plan body. Output without frontmatter is legal:
// the metadata is then derived from the body (first heading as title).
func ParsePlan(content []byte) (*PlanMeta, []byte, error) {
	meta := &PlanMeta{}
	body := content

	if bytes.HasPrefix(content, []byte("---\n")) {
		rest := content[4:]
		if end := bytes.Index(rest, []byte("\n---")); end != -1 {
			if err := yaml.Unmarshal(rest[:end], meta); err != nil {
				return nil, nil, fmt.Errorf("parsing plan frontmatter: %w", err)
			}
			body = bytes.TrimLeft(rest[end+4:], "\n")
		}
	}

	if meta.Title == "" {
		meta.Title = firstHeading(body)
	}
	if meta.Summary == "" {
		meta.Summary = firstParagraph(body)
	}
	return meta, body, nil
}

var headingRe = regexp.MustCompile(`(?m)^#+\s+(.+)$`)

func firstHeading(body []byte) string {
	if m := headingRe.FindSubmatch(body); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

func firstParagraph(body []byte) string {
	for _, block := range strings.Split(string(body), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "#") {
			continue
		}
		return strings.Join(strings.Fields(block), " ")
	}
	return ""
}

var branchSanitizeRe = regexp.MustCompile(`[^a-z0-9._/-]+`)

// BranchName returns the branch for a run: the planner's explicit choice when
// given, otherwise one derived from the issue number and title.
func (m *PlanMeta) BranchName(issue int) string {
	if m.Branch != "" {
		return SanitizeBranch(m.Branch)
	}
	slug := SanitizeBranch(m.Title)
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		return fmt.Sprintf("flowsmith/issue-%d", issue)
	}
	return fmt.Sprintf("flowsmith/issue-%d-%s", issue, slug)
}

// SanitizeBranch lowercases s and collapses anything git would reject in a
// ref name into single dashes.
func SanitizeBranch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = branchSanitizeRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-/.")
	return s
}
