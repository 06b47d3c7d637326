package jsonl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// Record is one line of the synthetic training data output.
type Record struct {
	Text           string               `json:"text"`
	Classification model.Classification `json:"classification"`
	Source         string               `json:"source"`
	FileName       string               `json:"fileName"`
	ChunkIndex     int                  `json:"chunkIndex"`
}

// Builder accumulates records and renders them as JSONL, one JSON object
// per line.
type Builder struct {
	records []Record
	counts  map[model.Classification]int
}

func NewBuilder() *Builder {
	return &Builder{counts: make(map[model.Classification]int)}
}

func (b *Builder) Add(rec Record) {
	b.records = append(b.records, rec)
	b.counts[rec.Classification]++
}

// Len returns the number of records added so far.
func (b *Builder) Len() int {
	return len(b.records)
}

// Counts returns per-classification record counts.
func (b *Builder) Counts() map[model.Classification]int {
	out := make(map[model.Classification]int, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}

// Bytes renders the accumulated records as JSONL.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, rec := range b.records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
