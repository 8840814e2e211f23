package usecase

import (
	"github.com/tmc/langchaingo/textsplitter"
)

// RecursiveSplit splits on paragraph, line, word and character boundaries in
// turn, keeping chunks under chunkSize runes with the given overlap
func RecursiveSplit(text string, chunkSize, overlap int) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
	)
	return splitter.SplitText(text)
}
