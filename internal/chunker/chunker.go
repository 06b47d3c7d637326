package chunker

import (
	"log"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// Chunk size bounds enforced by Split.
const (
	MinChunkSize = 500
	MaxChunkSize = 2000
	MaxOverlap   = 200

	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Split partitions text into character-bounded chunks of at most chunkSize
// runes, where each chunk after the first repeats the last overlap runes of
// its predecessor. Offsets are rune indices into text.
//
// Invariant: dropping the first overlap runes of every chunk except the
// first and concatenating the rest reconstructs text exactly.
func Split(text string, chunkSize, overlap int) []model.DocumentChunk {
	chunkSize, overlap = clampParams(chunkSize, overlap)

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []model.DocumentChunk
	start := 0
	for {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, model.DocumentChunk{
			Index:       len(chunks),
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == len(runes) {
			return chunks
		}
		start = end - overlap
	}
}

// clampParams applies defaults for zero values and clamps out-of-range
// parameters rather than failing; overlap must stay below chunkSize or the
// splitter would never advance.
func clampParams(chunkSize, overlap int) (int, int) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize {
		log.Printf("chunker: chunkSize %d below minimum, clamping to %d", chunkSize, MinChunkSize)
		chunkSize = MinChunkSize
	}
	if chunkSize > MaxChunkSize {
		log.Printf("chunker: chunkSize %d above maximum, clamping to %d", chunkSize, MaxChunkSize)
		chunkSize = MaxChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > MaxOverlap {
		log.Printf("chunker: overlap %d above maximum, clamping to %d", overlap, MaxOverlap)
		overlap = MaxOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return chunkSize, overlap
}

// Reassemble inverts Split: it concatenates chunks with the shared overlap
// removed. Exists so the round-trip invariant is checkable where chunks are
// consumed.
func Reassemble(chunks []model.DocumentChunk, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0].Text)
	for _, ch := range chunks[1:] {
		runes := []rune(ch.Text)
		if overlap < len(runes) {
			out = append(out, runes[overlap:]...)
		}
	}
	return string(out)
}
