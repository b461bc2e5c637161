package openai

import (
	"encoding/json"
	"strings"

	"lumen-backend/internal/parse"
)

// maxRawChars caps the raw document text sent to the model so large
// scans cannot blow the token budget.
const maxRawChars = 3000

const systemPromptTemplate = `You are Lumen, a medical report explainer.

Rules:
- Output ONLY valid JSON.
- Do NOT include markdown or commentary.
- Do NOT omit any required keys.
- Do NOT add extra keys.
- Never invent medical facts.
- Use simple Indian English.
- If unsure, say "insufficient data".

Always follow this JSON schema exactly:
{{SCHEMA}}`

var schemaObj = map[string]any{
	"disclaimer": "string",
	"input_summary": map[string]any{
		"document_type":     "string",
		"detected_language": "string",
		"detected_hospital": "string|null",
		"date_of_report":    "string|null",
	},
	"abnormal_values": []any{map[string]any{
		"test_name":          "string",
		"value":              "string",
		"normal_range":       "string",
		"severity":           "mild|moderate|severe|critical|low|high|unknown",
		"what_it_means":      "string",
		"common_causes":      []any{"string"},
		"what_to_ask_doctor": []any{"string"},
	}},
	"normal_values": []any{map[string]any{
		"test_name":     "string",
		"value":         "string",
		"normal_range":  "string",
		"what_it_means": "string",
	}},
	"medicines": []any{map[string]any{
		"name":                 "string",
		"generic_name":         "string|null",
		"purpose":              "string",
		"mechanism":            "string|null",
		"how_to_take":          "string|null",
		"common_side_effects":  []any{"string"},
		"serious_side_effects": []any{"string"},
		"drug_interactions":    []any{"string"},
		"precautions":          []any{"string"},
		"generic_alternative":  "string|null",
		"lifestyle_tips":       []any{"string"},
	}},
	"overall_summary":         "string",
	"questions_to_ask_doctor": []any{"string"},
	"next_steps":              []any{"string"},
	"confidence_score":        "number",
}

// SystemPrompt returns the system prompt with the response schema embedded.
func SystemPrompt() string {
	schema, _ := json.Marshal(schemaObj)
	return strings.ReplaceAll(systemPromptTemplate, "{{SCHEMA}}", string(schema))
}

// BuildUserPrompt serializes the parsed document into the user message,
// truncating raw text to maxRawChars.
func BuildUserPrompt(parsed parse.Parsed) (string, error) {
	if runes := []rune(parsed.RawText); len(runes) > maxRawChars {
		parsed.RawText = string(runes[:maxRawChars]) + "…"
	}
	payload, err := json.Marshal(map[string]any{
		"parsed_data": parsed,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Return a JSON object that strictly matches the required schema.\n\n")
	b.WriteString("Use this input data:\n")
	b.Write(payload)
	b.WriteString("\n\nImportant:\n- Return ONLY JSON.\n- No explanations.\n- No markdown.\n")
	return b.String(), nil
}
