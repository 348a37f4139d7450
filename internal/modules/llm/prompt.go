package llm

import (
	"fmt"
	"strings"
)

const roleBlock = "You are MEDI, a calm meditation and mental-wellness assistant.\n" +
	"- Supportive, non-medical guidance only.\n" +
	"- Prefer short, actionable suggestions.\n" +
	"- Do not provide medical diagnosis or treatment.\n" +
	"- If self-harm intent or crisis: encourage contacting local emergency services.\n" +
	"Tone: calm, brief, kind.\n\n"

const styleBlock = "=== Response Style ===\n" +
	"- Keep replies brief: a few short sentences or a short list.\n" +
	"- For anxiety or stress, offer one simple breathing exercise with counts.\n" +
	"- For sleep, offer a short wind-down routine.\n" +
	"- If the user describes trauma, shutdown or overwhelm, lead with safety and grounding before anything else.\n" +
	"- Make no medical claims.\n" +
	"- Use at most 2 citations.\n\n"

const safetyHint = "=== Safety ===\n" +
	"- The user may be in high distress. Acknowledge feelings first, keep steps very small, and gently mention reaching out to someone they trust or local support services.\n\n"

const enforcedCitations = "=== Citation Rules ===\n" +
	"- If you use any information from 'Retrieved Knowledge', you MUST cite it using its bracket id (e.g., [K1], [K2]).\n" +
	"- Place citations at the end of the sentence that uses the knowledge.\n" +
	"- If you did NOT use Retrieved Knowledge, do NOT include any [K#] citations.\n" +
	"- Do not invent citations. Only cite ids that appear in Retrieved Knowledge.\n\n"

const relaxedCitations = "=== Citation Rules ===\n" +
	"- Citations are optional. If you use Retrieved Knowledge you may cite it with its bracket id (e.g., [K1]).\n" +
	"- Never cite an id that does not appear in Retrieved Knowledge.\n\n"

const groundingBlock = "=== Grounding Priority ===\n" +
	"- If Retrieved Knowledge is relevant, prioritize it over your general knowledge.\n" +
	"- If it's not relevant, answer normally without citations.\n\n"

type PromptInput struct {
	TopicHint        string
	HighDistress     bool
	EnforceCitations bool
	Summary          string
	Retrieved        string
}

// BuildSystemPrompt assembles the system instruction in a fixed section order.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(roleBlock)
	if t := strings.TrimSpace(in.TopicHint); t != "" {
		fmt.Fprintf(&b, "=== Topic Hint ===\nThe user's message looks related to: %s.\n\n", t)
	}
	b.WriteString(styleBlock)
	if in.HighDistress {
		b.WriteString(safetyHint)
	}
	if in.EnforceCitations {
		b.WriteString(enforcedCitations)
	} else {
		b.WriteString(relaxedCitations)
	}
	b.WriteString(groundingBlock)
	if s := strings.TrimSpace(in.Summary); s != "" {
		b.WriteString("=== Conversation Summary ===\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("=== Retrieved Knowledge (use when relevant; do not invent sources) ===\n")
	retrieved := strings.TrimSpace(in.Retrieved)
	if retrieved == "" {
		retrieved = "(none)"
	}
	b.WriteString(retrieved)
	return b.String()
}
