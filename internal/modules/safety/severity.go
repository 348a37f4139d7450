package safety

import (
	"regexp"
	"sort"
	"strings"
)

const (
	LevelNone     = 0
	LevelGeneral  = 1
	LevelModerate = 2
	LevelHigh     = 3
	LevelCrisis   = 4
)

// Severity is the ephemeral result of Classify. Never persisted.
type Severity struct {
	Level    int      `json:"level"`
	Reasons  []string `json:"reasons"`
	IsCrisis bool     `json:"is_crisis"`
	IsHigh   bool     `json:"is_high"`
}

type rule struct {
	re  *regexp.Regexp
	tag string
}

func mustRule(pattern, tag string) rule {
	return rule{re: regexp.MustCompile(`(?i)\b(` + pattern + `)\b`), tag: tag}
}

const apos = `['’]`

// Tiers are scanned most severe first; the first tier with any hit is reported alone.
var tiers = []struct {
	level int
	rules []rule
}{
	{LevelCrisis, []rule{
		mustRule(`i (want to|wanna|plan to) (die|kill myself)`, "self_harm_intent"),
		mustRule(`suicid(al|e)|end my life`, "self_harm_signal"),
		mustRule(`i have a plan`, "plan_mention"),
		mustRule(`i will (kill|hurt) myself`, "self_harm_intent"),
		mustRule(`can you help me (kill myself|suicide)`, "request_self_harm_help"),
		mustRule(`i am going to do it (now|tonight|today)`, "imminent_timeframe"),
		mustRule(`i have (a gun|a knife|pills|rope)`, "means_mentioned"),
	}},
	{LevelHigh, []rule{
		mustRule(`can`+apos+`t cope|can`+apos+`t take it|can`+apos+`t go on`, "cannot_cope"),
		mustRule(`hopeless|worthless`, "hopelessness"),
		mustRule(`panic attack|panicking`, "panic"),
		mustRule(`i can`+apos+`t function`, "cannot_function"),
		mustRule(`hearing voices|voices telling me`, "possible_psychosis"),
		mustRule(`chest pain|can`+apos+`t breathe|shortness of breath`, "possible_urgent_medical"),
		mustRule(`fainting|passed out`, "possible_urgent_medical"),
	}},
	{LevelModerate, []rule{
		mustRule(`anxious|anxiety|stressed|overwhelmed`, "anxiety_stress"),
		mustRule(`can`+apos+`t sleep|insomnia`, "sleep_issue"),
		mustRule(`sad|down|depressed`, "low_mood"),
	}},
}

// Classify scores text for crisis and distress signals. Pure and deterministic.
func Classify(text string) Severity {
	t := strings.TrimSpace(text)
	if t == "" {
		return Severity{Level: LevelNone, Reasons: []string{}}
	}
	for _, tier := range tiers {
		if reasons := matchAll(t, tier.rules); len(reasons) > 0 {
			return Severity{
				Level:    tier.level,
				Reasons:  reasons,
				IsCrisis: tier.level == LevelCrisis,
				IsHigh:   tier.level >= LevelHigh,
			}
		}
	}
	return Severity{Level: LevelGeneral, Reasons: []string{"general"}}
}

func matchAll(text string, rules []rule) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rules {
		if !r.re.MatchString(text) {
			continue
		}
		if _, ok := seen[r.tag]; ok {
			continue
		}
		seen[r.tag] = struct{}{}
		out = append(out, r.tag)
	}
	sort.Strings(out)
	return out
}
