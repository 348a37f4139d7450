package steps

import "strings"

const (
	breathingScript = "🫁 *Breathing (1 minute)*\n" +
		"Inhale for 4 seconds…\n" +
		"Hold for 2 seconds…\n" +
		"Exhale for 6 seconds…\n\n" +
		"Repeat this 5 times.\n" +
		"Type *done* when you’re finished."

	sleepScript = "😴 *Sleep wind-down*\n" +
		"Lie down comfortably.\n" +
		"Unclench your jaw and relax your shoulders.\n\n" +
		"Inhale slowly… exhale longer.\n" +
		"Type *next* if you want a longer routine."

	stressScript = "🌱 *Grounding (5-4-3-2-1)*\n" +
		"5 things you can see\n" +
		"4 things you can feel\n" +
		"3 things you can hear\n" +
		"2 things you can smell\n" +
		"1 thing you can taste\n\n" +
		"Reply with anything you noticed."

	menuText = "I’m MEDI 🌱 Choose one:\n" +
		"1) Breathing\n" +
		"2) Sleep\n" +
		"3) Stress / Anxiety\n\n" +
		"Reply 1, 2, or 3 (or type menu anytime)."

	greetingReply = "Hi 🙂 I’m MEDI. Want breathing, sleep, or stress support?"
	defaultReply  = "I’m here. Tell me what you’re feeling right now, in one line."

	resetPrefix = "✅ Restarted.\n\n"
)

var (
	resetCommands = set("reset", "restart", "new")
	menuCommands  = set("menu", "help")
	breathingSel  = set("1", "breathing")
	sleepSel      = set("2", "sleep")
	stressSel     = set("3", "stress", "stress/anxiety", "anxiety")
	greetings     = set("hi", "hello", "hey")
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func has(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

// NormalizeCommand trims and lowercases text for command matching.
func NormalizeCommand(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func IsResetCommand(text string) bool { return has(resetCommands, NormalizeCommand(text)) }

func IsMenuCommand(text string) bool { return has(menuCommands, NormalizeCommand(text)) }

func IsMenuSelection(text string) bool {
	t := NormalizeCommand(text)
	return has(breathingSel, t) || has(sleepSel, t) || has(stressSel, t)
}

func MenuText() string { return menuText }

// ResetReply is the acknowledgement sent on the fresh conversation.
func ResetReply() string { return resetPrefix + menuText }

// RuleBasedReply never fails and never calls out.
func RuleBasedReply(text string) string {
	t := NormalizeCommand(text)
	switch {
	case has(menuCommands, t):
		return menuText
	case has(breathingSel, t):
		return breathingScript
	case has(sleepSel, t):
		return sleepScript
	case has(stressSel, t):
		return stressScript
	case has(greetings, t):
		return greetingReply
	default:
		return defaultReply
	}
}
