package chunker

import (
	"fmt"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// SplitPages partitions totalPages pages into at most numParts contiguous
// ranges of ceil(totalPages/numParts) pages each. Ranges are half-open and
// empty ranges are skipped, so every page index lands in exactly one part.
func SplitPages(totalPages, numParts int) ([]model.PageRange, error) {
	if totalPages < 0 {
		return nil, fmt.Errorf("totalPages must be non-negative, got %d", totalPages)
	}
	if numParts < 1 {
		return nil, fmt.Errorf("numParts must be positive, got %d", numParts)
	}
	if totalPages == 0 {
		return nil, nil
	}

	pagesPerPart := (totalPages + numParts - 1) / numParts

	var parts []model.PageRange
	for i := 0; i < numParts; i++ {
		start := i * pagesPerPart
		end := start + pagesPerPart
		if end > totalPages {
			end = totalPages
		}
		if start >= end {
			continue
		}
		parts = append(parts, model.PageRange{
			Part:  len(parts),
			Start: start,
			End:   end,
		})
	}
	return parts, nil
}
