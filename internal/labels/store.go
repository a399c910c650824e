// Package labels exposes the narrow label/comment surface of a GitHub issue
// that the exclusion coordinator builds on. Labels are the only shared
// mutable state between concurrent pipeline runs; there is no atomicity
// guarantee beyond per-call success or failure.
package labels

import "time"

// LabeledIssue is the subset of issue fields the coordinator needs when
// listing issues by label.
type LabeledIssue struct {
	Number    int
	UpdatedAt time.Time
	Labels    []string
}

// Comment is an issue comment, used for cooldown and acquire markers
type Comment struct {
	Body      string
	CreatedAt time.Time
}

// Store is the label store adapter contract
type Store interface {
	// ListLabels returns the current labels of an issue
	ListLabels(issue int) ([]string, error)

	// AddLabel adds a label to an issue. Adding an already-present label
	// is not an error.
	AddLabel(issue int, label string) error

	// RemoveLabel removes a label from an issue. Removing an absent label
	// is not an error.
	RemoveLabel(issue int, label string) error

	// EnsureLabel creates the label in the repository if it does not exist
	EnsureLabel(label string) error

	// ListOpenIssuesWithLabel returns all open issues carrying the label
	ListOpenIssuesWithLabel(label string) ([]LabeledIssue, error)

	// ListComments returns an issue's comments in creation order
	ListComments(issue int) ([]Comment, error)

	// PostComment appends a comment to an issue
	PostComment(issue int, body string) error
}
