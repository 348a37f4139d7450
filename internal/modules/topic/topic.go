package topic

import "strings"

const (
	Sleep       = "sleep"
	Breathing   = "breathing"
	Polyvagal   = "polyvagal"
	Anxiety     = "anxiety"
	Stress      = "stress"
	Depression  = "depression"
	Cancer      = "cancer"
	Infertility = "infertility"
	Youth       = "youth"
)

type entry struct {
	topic    string
	keywords []string
}

// Scan order is fixed; the first topic with a keyword hit wins.
var table = []entry{
	{Sleep, []string{"sleep", "insomnia", "awake", "night", "bed", "restless"}},
	{Breathing, []string{"breath", "breathing", "inhale", "exhale", "hyperventilate", "rsa", "hrv"}},
	{Polyvagal, []string{"polyvagal", "vagus", "vagal", "neuroception"}},
	{Anxiety, []string{"anxiety", "anxious", "panic", "worry", "overthinking", "nervous"}},
	{Stress, []string{"stress", "overwhelmed", "pressure", "burnout"}},
	{Depression, []string{"depressed", "depression", "hopeless", "low mood"}},
	{Cancer, []string{"cancer", "chemo", "tumor", "oncology", "lung cancer"}},
	{Infertility, []string{"infertility", "ivf", "fertility"}},
	{Youth, []string{"teen", "teenager", "school", "child", "adolescent"}},
}

// Detect returns the first matching topic and true, or "" and false for unscoped retrieval.
func Detect(text string) (string, bool) {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return "", false
	}
	for _, e := range table {
		for _, k := range e.keywords {
			if strings.Contains(t, k) {
				return e.topic, true
			}
		}
	}
	return "", false
}

// All lists known topics in scan order.
func All() []string {
	out := make([]string, 0, len(table))
	for _, e := range table {
		out = append(out, e.topic)
	}
	return out
}
