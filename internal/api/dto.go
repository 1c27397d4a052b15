package api

import (
	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
)

// ItemRequest is the body of item create and edit requests.
// Updates use Title and Body. Documents use Name (or Title) and Upload, the
// name of a file posted to /uploads. Source is always rejected.
type ItemRequest struct {
	Title  string `json:"title,omitempty" example:"Nouvelle version"`
	Name   string `json:"name,omitempty" example:"Rapport final"`
	Body   string `json:"body,omitempty" example:"Le site est en ligne."`
	Source string `json:"source,omitempty"`
	Upload string `json:"upload,omitempty" example:"rapport.pdf"`
}

// UpdateListResponse wraps the update list.
type UpdateListResponse struct {
	Items []models.UpdateItem `json:"items"`
}

// DocumentListResponse wraps the document list.
type DocumentListResponse struct {
	Items []models.DocItem `json:"items"`
}

// PublishFailure describes a publish step that failed after the change was
// saved.
type PublishFailure struct {
	Step   string `json:"step,omitempty" example:"git push"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error"`
}

// MutationResponse reports a saved change. PublishError is set when the
// change was saved but could not be published.
type MutationResponse struct {
	*itemstore.Result
	PublishError *PublishFailure `json:"publish_error,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Filename  string `json:"filename" example:"rapport.pdf"`
	Reference string `json:"reference" example:"uploads/rapport.pdf"`
	Size      int64  `json:"size" example:"12345"`
	URL       string `json:"url" example:"/api/uploads/rapport.pdf"`
}
