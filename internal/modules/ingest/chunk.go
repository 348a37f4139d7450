package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 150
)

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\r]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText collapses horizontal whitespace runs and blank-line runs left by extraction.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ChunkText splits s into windows of size runes advancing by size-overlap.
// Empty windows are dropped.
func ChunkText(s string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	r := []rune(NormalizeText(s))
	step := size - overlap
	out := make([]string, 0, len(r)/step+1)
	for i := 0; i < len(r); i += step {
		end := i + size
		if end > len(r) {
			end = len(r)
		}
		if c := strings.TrimSpace(string(r[i:end])); c != "" {
			out = append(out, c)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

// Hash is the content address of a chunk.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
