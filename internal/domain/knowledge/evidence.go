package knowledge

import "strings"

const (
	EvidenceMetaAnalysis = "meta_analysis"
	EvidenceRCT          = "rct"
	EvidenceReview       = "review"
	EvidenceTheory       = "theory"
	EvidenceUnknown      = "unknown"
)

// EvidencePriority ranks source reliability; higher wins distance ties.
func EvidencePriority(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case EvidenceMetaAnalysis:
		return 4
	case EvidenceRCT:
		return 3
	case EvidenceReview:
		return 2
	case EvidenceTheory:
		return 1
	default:
		return 0
	}
}
