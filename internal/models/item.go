// Package models defines the domain types for sitekeeper.
package models

import "fmt"

// Kind selects one of the two managed lists.
type Kind string

const (
	KindUpdates   Kind = "updates"
	KindDocuments Kind = "documents"
)

// Kinds lists every managed kind in a stable order.
var Kinds = []Kind{KindUpdates, KindDocuments}

// ParseKind accepts the canonical names plus the singular forms used on the
// command line.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "updates", "update":
		return KindUpdates, nil
	case "documents", "document", "docs", "doc":
		return KindDocuments, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// UpdateItem is a site update rendered as an "update" block.
type UpdateItem struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Body  string `json:"body"`
}

func (u UpdateItem) String() string {
	return fmt.Sprintf("%s  [%s]", u.Title, u.Date)
}

// DocItem is a published document rendered as a "doc-item" block.
// Reference points into the staging directory, relative to the site root.
type DocItem struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	Reference string `json:"reference"`
}

func (d DocItem) String() string {
	return fmt.Sprintf("%s  [%s]", d.Name, d.Date)
}

// Fields carries user input for add and edit operations.
// For documents Title is the document name and Source a local path to stage.
type Fields struct {
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Source string `json:"source,omitempty"`
}
