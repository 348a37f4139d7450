package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
)

const (
	chunkDisplayLimit = 1200
	PreviewLimit      = 800
	EmptyContext      = "(none)"
)

var citationRe = regexp.MustCompile(`\[(K\d+)\]`)

// SortMatches orders by distance ascending, then evidence priority descending.
// Ties keep their incoming order.
func SortMatches(matches []knowledge.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].EvidencePriority > matches[j].EvidencePriority
	})
}

// Format renders matches as numbered [K#] blocks and returns the valid ids.
func Format(matches []knowledge.Match) (string, []string) {
	if len(matches) == 0 {
		return EmptyContext, nil
	}
	blocks := make([]string, 0, len(matches))
	ids := make([]string, 0, len(matches))
	for i, m := range matches {
		m = m.Normalize()
		id := fmt.Sprintf("K%d", i+1)
		ids = append(ids, id)
		blocks = append(blocks, fmt.Sprintf("[%s] topic=%s source=%s score=%.4f\n%s",
			id, m.Topic, m.Source, m.Distance, truncate(m.Content, chunkDisplayLimit)))
	}
	return strings.Join(blocks, "\n\n"), ids
}

// Preview cuts formatted context for logs.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLimit {
		return text
	}
	return string(r[:PreviewLimit]) + "…"
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimRightFunc(string(r[:limit]), unicode.IsSpace) + "…"
}

// Confidence maps the average distance to a coarse score in [0.15, 0.90]; no matches gives 0.
func Confidence(matches []knowledge.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	distances := make([]float64, 0, len(matches))
	for _, m := range matches {
		distances = append(distances, m.Distance)
	}
	return ConfidenceFromDistances(distances)
}

func ConfidenceFromDistances(distances []float64) float64 {
	if len(distances) == 0 {
		return 0
	}
	var sum float64
	for _, d := range distances {
		sum += d
	}
	avg := sum / float64(len(distances))
	switch {
	case avg <= 0.25:
		return 0.90
	case avg <= 0.35:
		return 0.75
	case avg <= 0.50:
		return 0.55
	case avg <= 0.70:
		return 0.35
	default:
		return 0.15
	}
}

// ShouldEnforceCitations is true only when there is context and confidence clears threshold.
func ShouldEnforceCitations(confidence, threshold float64, n int) bool {
	return n > 0 && confidence >= threshold
}

// ExtractCitations returns the distinct [K#] tags in order of first appearance.
func ExtractCitations(reply string) []string {
	found := citationRe.FindAllStringSubmatch(reply, -1)
	out := make([]string, 0, len(found))
	seen := map[string]struct{}{}
	for _, f := range found {
		if _, ok := seen[f[1]]; ok {
			continue
		}
		seen[f[1]] = struct{}{}
		out = append(out, f[1])
	}
	return out
}

// InvalidCitations lists cited ids that are not in valid.
func InvalidCitations(cited, valid []string) []string {
	ok := make(map[string]struct{}, len(valid))
	for _, v := range valid {
		ok[v] = struct{}{}
	}
	var out []string
	for _, c := range cited {
		if _, hit := ok[c]; !hit {
			out = append(out, c)
		}
	}
	return out
}
