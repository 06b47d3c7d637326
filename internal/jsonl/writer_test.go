package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	b.Add(Record{Text: "variant one", Classification: model.ClassificationCritical, Source: "clause one", FileName: "policy.pdf", ChunkIndex: 0})
	b.Add(Record{Text: "variant two", Classification: model.ClassificationCritical, Source: "clause two", FileName: "policy.pdf", ChunkIndex: 1})
	b.Add(Record{Text: "variant three", Classification: model.ClassificationStandard, Source: "clause three", FileName: "policy.pdf", ChunkIndex: 2})

	if b.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", b.Len())
	}

	counts := b.Counts()
	if counts[model.ClassificationCritical] != 2 || counts[model.ClassificationStandard] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	// Every line must be a standalone JSON object.
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lines := 0
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("expected 3 lines, got %d", lines)
	}
}

func TestBuilder_Empty(t *testing.T) {
	b := NewBuilder()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(data))
	}
}
