package ingest

import (
	"path/filepath"
	"strings"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/topic"
)

// InferTopic classifies filename and content with the chat topic table.
func InferTopic(filename, content string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	if t, ok := topic.Detect(base + " " + content); ok {
		return t
	}
	return knowledge.DefaultTopic
}

var evidenceRules = []struct {
	level    string
	keywords []string
}{
	{knowledge.EvidenceMetaAnalysis, []string{"meta-analysis", "meta analysis", "systematic review"}},
	{knowledge.EvidenceRCT, []string{"randomized", "randomised", "rct"}},
	{knowledge.EvidenceReview, []string{"review"}},
	{knowledge.EvidenceTheory, []string{"theory", "framework"}},
}

// InferEvidence picks the strongest evidence level named in filename or content.
func InferEvidence(filename, content string) (string, int) {
	t := strings.ToLower(filepath.Base(filename) + " " + content)
	for _, r := range evidenceRules {
		for _, k := range r.keywords {
			if strings.Contains(t, k) {
				return r.level, knowledge.EvidencePriority(r.level)
			}
		}
	}
	return knowledge.EvidenceUnknown, knowledge.EvidencePriority(knowledge.EvidenceUnknown)
}
