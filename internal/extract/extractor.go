package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
)

// TextExtractor converts uploaded document bytes into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName string) (string, error)
}

// DocconvExtractor extracts text from PDF, DOCX, HTML and plain files using
// docconv. OCR is off; scanned documents come back empty and are reported as
// extraction errors upstream.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, fileName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document %q", fileName)
	}

	// Plain text needs no conversion and docconv rejects unknown types.
	mimeType := docconv.MimeTypeByExtension(fileName)
	if mimeType == "text/plain" || strings.HasSuffix(strings.ToLower(fileName), ".jsonl") {
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("text extraction failed for %q (%s): %w", fileName, mimeType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("no extractable text in %q (%s)", fileName, mimeType)
	}
	return text, nil
}
