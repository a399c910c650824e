package domain

import "strings"

// Issue represents a GitHub issue targeted by a pipeline run
type Issue struct {
	Number int
	Title  string
	Body   string
	URL    string
	State  string
	Labels []string
}

// HasLabel reports whether the issue carries the given label
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// LabelWithPrefix returns the first label starting with prefix, in sorted
// label order, or "" when none matches. Used to detect service/operation
// labels like "agent/service:api".
func (i *Issue) LabelWithPrefix(prefix string) string {
	found := ""
	for _, l := range i.Labels {
		if !strings.HasPrefix(l, prefix) {
			continue
		}
		if found == "" || l < found {
			found = l
		}
	}
	return found
}
