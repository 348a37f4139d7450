package safety

import (
	"reflect"
	"strings"
	"testing"
)

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		in      string
		level   int
		reasons []string
	}{
		{"", LevelNone, []string{}},
		{"   ", LevelNone, []string{}},
		{"I want to end my life", LevelCrisis, []string{"self_harm_signal"}},
		{"i wanna die", LevelCrisis, []string{"self_harm_intent"}},
		{"I have pills and I am going to do it tonight", LevelCrisis, []string{"imminent_timeframe", "means_mentioned"}},
		{"I feel hopeless and I can't cope", LevelHigh, []string{"cannot_cope", "hopelessness"}},
		{"I can’t breathe and have chest pain", LevelHigh, []string{"possible_urgent_medical"}},
		{"so anxious, can't sleep", LevelModerate, []string{"anxiety_stress", "sleep_issue"}},
		{"what is polyvagal theory", LevelGeneral, []string{"general"}},
	}
	for _, tc := range cases {
		got := Classify(tc.in)
		if got.Level != tc.level {
			t.Fatalf("Classify(%q) level: want=%d got=%d", tc.in, tc.level, got.Level)
		}
		if !reflect.DeepEqual(got.Reasons, tc.reasons) {
			t.Fatalf("Classify(%q) reasons: want=%v got=%v", tc.in, tc.reasons, got.Reasons)
		}
		if got.IsCrisis != (tc.level == LevelCrisis) || got.IsHigh != (tc.level >= LevelHigh) {
			t.Fatalf("Classify(%q) flags: %+v", tc.in, got)
		}
	}
}

func TestClassifyTierExclusive(t *testing.T) {
	got := Classify("I am suicidal and anxious")
	if got.Level != LevelCrisis || len(got.Reasons) != 1 || got.Reasons[0] != "self_harm_signal" {
		t.Fatalf("lower tiers leaked into crisis result: %+v", got)
	}
}

func TestClassifyWordBoundaries(t *testing.T) {
	if got := Classify("downtown is saddening"); got.Level != LevelGeneral {
		t.Fatalf("substring over-trigger: %+v", got)
	}
}

func TestKeywordChecks(t *testing.T) {
	if !HasCrisisKeyword("Sometimes I WANT TO DIE") {
		t.Fatalf("HasCrisisKeyword: want=true")
	}
	if !IsCrisis("thinking about self harm", Classify("thinking about self harm")) {
		t.Fatalf("IsCrisis: keyword path should trigger")
	}
	if !HasMedicalKeyword("what Dosage should I take") {
		t.Fatalf("HasMedicalKeyword: want=true")
	}
	if HasMedicalKeyword("I feel calm") {
		t.Fatalf("HasMedicalKeyword: want=false")
	}
}

func TestCannedTexts(t *testing.T) {
	if !strings.Contains(CrisisResponse(), "988") || !strings.Contains(CrisisResponse(), "emergency services") {
		t.Fatalf("crisis response missing resources: %q", CrisisResponse())
	}
	got := WithMedicalDisclaimer("Try slow breathing.")
	if !strings.HasPrefix(got, "Try slow breathing.\n\n⚠️") || !strings.HasSuffix(got, "not a medical diagnosis.") {
		t.Fatalf("WithMedicalDisclaimer: %q", got)
	}
}
