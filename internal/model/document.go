package model

import "time"

// DocumentChunk is an ephemeral slice of document text produced by the
// chunker and consumed by the pipeline. Offsets are rune indices into the
// source text; consecutive chunks share Overlap runes.
type DocumentChunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
}

// PageRange is a half-open [Start, End) page interval used when splitting a
// PDF into parts instead of character chunks.
type PageRange struct {
	Part  int `json:"part"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages covered by the range.
func (r PageRange) Pages() int {
	return r.End - r.Start
}

// UploadDocumentResponse is returned after a source document is stored.
type UploadDocumentResponse struct {
	DocumentID  string    `json:"documentId"`
	FileName    string    `json:"fileName"`
	FileURL     string    `json:"fileUrl,omitempty"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
