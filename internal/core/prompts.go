package core

import (
	"fmt"
	"strings"

	"sentient.health/symptom-ai/internal/store"
)

const analysisSchemaDescription = `
You MUST respond with ONLY a valid JSON object that conforms to the following TypeScript interfaces. Do not include any text, explanation, or markdown formatting before or after the JSON object.

interface Diagnosis {
  condition: string;
  uncertaintyScore: number; // 0.0 to 1.0
  briefDescription: string;
  severity: 'High' | 'Medium' | 'Low';
}

interface TestSuggestion {
  testName: string;
  rationale: string;
}

interface SuggestedSpecialist {
  specialistName: string;
  rationale: string;
}

interface CausalPathway {
  symptom: string;
  condition: string;
  explanation: string;
}

interface SeverityAssessment {
  triageLevel: 'Urgent Care Needed' | 'Doctor Visit Recommended' | 'Self-care Manageable';
  reasoning: string;
}

interface AnalysisResult {
  disclaimer: string;
  severityAssessment: SeverityAssessment;
  differentialDiagnosis: Diagnosis[];
  suggestedTests: TestSuggestion[];
  suggestedSpecialists: SuggestedSpecialist[];
  causalPathways: CausalPathway[];
  reasoning: {
    patientFriendly: string; // Must include markdown links
    professional: string; // Must include markdown links
  };
}
`

const notProvided = "Not provided."

func diagnosisSystemInstruction(language string) string {
	var b strings.Builder
	b.WriteString("You are an advanced medical diagnostic AI assistant. ")
	b.WriteString("Your purpose is to analyze patient symptoms and provide a comprehensive analysis in the specified language.\n\n")
	b.WriteString("Instructions:\n")
	fmt.Fprintf(&b, "1. **Language**: The entire response, including all fields in the JSON output, must be in **%s**.\n", language)
	b.WriteString("2. **Analysis**: Analyze the patient's symptoms in conjunction with their provided context.\n")
	b.WriteString("3. **Severity Assessment**: Provide a 'triageLevel' ('Urgent Care Needed', 'Doctor Visit Recommended', or 'Self-care Manageable') and reasoning.\n")
	b.WriteString("4. **Differential Diagnosis**: List potential diagnoses, each with an 'uncertaintyScore' (0.0 to 1.0) and a 'severity' ('High', 'Medium', 'Low').\n")
	b.WriteString("5. **Causal Pathways**: For each diagnosis, identify 1-3 key input symptoms that support it and create a 'causalPathways' object linking them.\n")
	b.WriteString("6. **Knowledge Integration**: In the 'reasoning' fields ('patientFriendly' and 'professional'), embed markdown links for key medical conditions and tests to a reputable source (e.g., Mayo Clinic, Wikipedia). Example: `[Term](URL)`.\n")
	b.WriteString("7. **Disclaimer**: ALWAYS include a clear disclaimer that you are not a real doctor and the user must consult a healthcare professional.\n")
	b.WriteString("8. **JSON Format**: Your entire output must be a single, valid JSON object conforming to the schema provided below. Do not output anything else.\n")
	b.WriteString(analysisSchemaDescription)
	return b.String()
}

func diagnosisUserPrompt(symptoms string, pc store.PatientContext, language string) string {
	return fmt.Sprintf(`Please provide a full diagnostic analysis based on the following patient information.

**Language for Response:** %s

**Primary Symptoms:**
"%s"

**Symptom Timeline & Progression:**
%s

**Current Medications & Allergies:**
%s

**Lifestyle Factors (e.g., recent travel, smoking):**
%s
`, language, symptoms, orNotProvided(pc.Timeline), orNotProvided(pc.Medications), orNotProvided(pc.Lifestyle))
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}

// chatSeed returns the two synthetic messages that give the follow-up chat its context.
func chatSeed(symptoms string, result *store.AnalysisResult) []ChatMessage {
	conditions := make([]string, 0, len(result.DifferentialDiagnosis))
	for _, d := range result.DifferentialDiagnosis {
		conditions = append(conditions, d.Condition)
	}

	return []ChatMessage{
		{
			Role: RoleUser,
			Text: fmt.Sprintf("Here is my initial analysis request. Symptoms: \"%s\". Please answer my follow-up questions based on this and the analysis you provided.", symptoms),
		},
		{
			Role: RoleAssistant,
			Text: fmt.Sprintf("Of course. I have reviewed the analysis based on the symptoms: \"%s\". The top potential diagnoses were: %s. I am ready to answer your follow-up questions. Please remember this is for informational purposes only.",
				symptoms, strings.Join(conditions, ", ")),
		},
	}
}
