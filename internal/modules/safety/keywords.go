package safety

import "strings"

var crisisKeywords = []string{
	"kill myself",
	"end my life",
	"suicide",
	"want to die",
	"self harm",
	"hurt myself",
}

var medicalKeywords = []string{
	"diagnose",
	"medication",
	"dosage",
	"prescription",
	"treatment",
}

// HasCrisisKeyword is the plain substring check used alongside Classify.
func HasCrisisKeyword(text string) bool {
	return containsAny(strings.ToLower(text), crisisKeywords)
}

// HasMedicalKeyword reports medical-sounding text that warrants a disclaimer.
func HasMedicalKeyword(text string) bool {
	return containsAny(strings.ToLower(text), medicalKeywords)
}

// IsCrisis combines the severity tiers with the keyword list.
func IsCrisis(text string, sev Severity) bool {
	return sev.IsCrisis || HasCrisisKeyword(text)
}

func containsAny(t string, needles []string) bool {
	for _, k := range needles {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

const crisisResponse = "I’m really sorry you’re feeling this way. You’re not alone.\n\n" +
	"If you’re in immediate danger, please contact local emergency services.\n" +
	"If you’re in Canada, you can call or text **988** for the Suicide Crisis Helpline.\n\n" +
	"If you want, you can tell me what’s been weighing on you — I’m here to listen."

const disclaimer = "\n\n⚠️ *Note:* I’m not a medical professional. " +
	"This is for general support only and not a medical diagnosis."

func CrisisResponse() string { return crisisResponse }

func WithMedicalDisclaimer(reply string) string { return reply + disclaimer }
