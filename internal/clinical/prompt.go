package clinical

import (
	"encoding/json"
	"strings"
)

const clinicalSystemPrompt = `You are a clinical advisor for a dental practice, acting as a knowledgeable professional colleague to the treating dentist.

Your role:
- Discuss diagnosis, treatment planning and materials at a professional level.
- Ground every recommendation in the practice's own philosophy and protocols below.
- Flag cases that warrant specialist referral and say so plainly.
- Never invent clinical facts. If the available information is insufficient, say what additional findings or imaging would be needed.

Practice profile:
%PROFILE%

Relevant practice knowledge:
%CONTEXT%

Respond as a colleague would: direct, specific and grounded in the profile above.`

// buildClinicalPrompt renders the advisor system prompt with the practice
// profile and retrieved knowledge snippets.
func buildClinicalPrompt(profile json.RawMessage, snippets []string) string {
	profileText := "No practice profile on file."
	if len(profile) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(profile, &pretty); err == nil {
			if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				profileText = string(formatted)
			}
		} else {
			profileText = string(profile)
		}
	}

	contextText := "No additional context available."
	if len(snippets) > 0 {
		contextText = strings.Join(snippets, "\n---\n")
	}

	prompt := strings.ReplaceAll(clinicalSystemPrompt, "%PROFILE%", profileText)
	prompt = strings.ReplaceAll(prompt, "%CONTEXT%", contextText)
	return prompt
}
