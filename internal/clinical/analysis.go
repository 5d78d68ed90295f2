package clinical

import "strings"

// Confidence levels reported with every advisor response.
const (
	ConfidenceLow      = "low"
	ConfidenceModerate = "moderate"
	ConfidenceHigh     = "high"
)

var referralKeywords = []string{
	"refer", "specialist", "oral surgeon", "endodontist",
	"periodontist", "orthodontist", "prosthodontist",
	"beyond the scope", "seek specialist",
}

var emergencyKeywords = []string{
	"emergency", "urgent", "immediately", "as soon as possible",
	"critical", "life-threatening", "hospital", "er ", "a&e",
}

var uncertaintyKeywords = []string{
	"difficult to determine", "cannot be certain", "limited view",
	"unclear", "inconclusive", "further imaging", "additional tests",
}

var highConfidenceKeywords = []string{"clearly", "definitely", "certainly", "consistent with"}

var lowConfidenceKeywords = []string{"possibly", "might be", "unclear", "difficult to"}

// analyzeResponse infers advisory metadata from unstructured response text.
// Used when the model answers inline instead of through the structured tool
// call.
func analyzeResponse(responseText string) *Advice {
	lower := strings.ToLower(responseText)

	var warnings []string
	if containsAny(lower, emergencyKeywords) {
		warnings = append(warnings, "Urgent attention may be required")
	}
	if containsAny(lower, uncertaintyKeywords) {
		warnings = append(warnings, "Clinical correlation recommended due to limitations")
	}

	confidence := ConfidenceModerate
	if containsAny(lower, lowConfidenceKeywords) {
		confidence = ConfidenceLow
	} else if containsAny(lower, highConfidenceKeywords) {
		confidence = ConfidenceHigh
	}

	return &Advice{
		ReplyText:        responseText,
		ConfidenceLevel:  confidence,
		RequiresReferral: containsAny(lower, referralKeywords),
		SafetyWarnings:   warnings,
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
