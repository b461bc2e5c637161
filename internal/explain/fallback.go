package explain

import (
	"fmt"
	"strconv"

	"lumen-backend/internal/catalog"
	"lumen-backend/internal/parse"
)

// Disclaimer is attached to every generated explanation.
const Disclaimer = "This explanation is automated and not a medical diagnosis. Always consult your doctor."

const fallbackConfidence = 0.25

type enrichedTest struct {
	name           string
	valueStr       string
	normalRangeStr string
	severity       string
	isAbnormal     bool
	meaning        string
	commonCauses   []string
	questions      []string
}

// Fallback builds a deterministic catalog-backed explanation when the
// model cannot produce one. It never fails.
func Fallback(parsed parse.Parsed, snap *catalog.Snapshot) map[string]any {
	abnormalValues := []any{}
	normalValues := []any{}
	enriched := make([]enrichedTest, 0, len(parsed.Tests))

	for _, t := range parsed.Tests {
		e := enrichTest(t, snap)
		enriched = append(enriched, e)

		entry := map[string]any{
			"test_name":          e.name,
			"value":              e.valueStr,
			"normal_range":       e.normalRangeStr,
			"severity":           e.severity,
			"what_it_means":      e.meaning,
			"common_causes":      toAnyList(e.commonCauses),
			"what_to_ask_doctor": toAnyList(e.questions),
		}
		if e.isAbnormal {
			abnormalValues = append(abnormalValues, entry)
		} else {
			normalValues = append(normalValues, entry)
		}
	}

	summary := "All detected values are within normal ranges."
	if len(abnormalValues) > 0 {
		summary = fmt.Sprintf("%d value(s) are outside the normal range.", len(abnormalValues))
	}

	result := map[string]any{
		"disclaimer": Disclaimer,
		"input_summary": map[string]any{
			"document_type":     "medical_report",
			"detected_language": "en",
			"detected_hospital": nil,
			"date_of_report":    nil,
		},
		"abnormal_values":         abnormalValues,
		"normal_values":           normalValues,
		"medicines":               fallbackMedicines(parsed.Medicines, snap),
		"overall_summary":         summary,
		"questions_to_ask_doctor": buildQuestions(enriched),
		"next_steps":              buildNextSteps(enriched),
		"confidence_score":        fallbackConfidence,
	}

	return Sanitize(result)
}

func enrichTest(t parse.Test, snap *catalog.Snapshot) enrichedTest {
	def, known := snap.Tests[t.ID]

	isAbnormal := false
	severity := "unknown"

	if t.Value != nil && t.NormalMin != nil && t.NormalMax != nil {
		value, min, max := *t.Value, *t.NormalMin, *t.NormalMax
		var deviation float64
		switch {
		case value < min:
			deviation = ((min - value) / min) * 100
			isAbnormal = true
			severity = "low"
		case value > max:
			deviation = ((value - max) / max) * 100
			isAbnormal = true
			severity = "high"
		}
		switch {
		case deviation >= 30:
			severity = "severe"
		case deviation >= 15:
			severity = "moderate"
		case deviation > 0:
			severity = "mild"
		}
	}

	name := t.Name
	if known && def.DisplayName != "" {
		name = def.DisplayName
	}
	if name == "" {
		name = "Unknown"
	}

	valueStr := ""
	if t.Value != nil {
		valueStr = strconv.FormatFloat(*t.Value, 'f', -1, 64)
	}
	if t.Unit != "" {
		if valueStr != "" {
			valueStr += " " + t.Unit
		} else {
			valueStr = t.Unit
		}
	}

	normalRangeStr := "Not available"
	if t.NormalMin != nil && t.NormalMax != nil {
		normalRangeStr = fmt.Sprintf("%s–%s",
			strconv.FormatFloat(*t.NormalMin, 'f', -1, 64),
			strconv.FormatFloat(*t.NormalMax, 'f', -1, 64))
		if t.Unit != "" {
			normalRangeStr += " " + t.Unit
		}
	}

	meaning := "This value is within the normal range."
	if known && def.NormalMeaning != "" {
		meaning = def.NormalMeaning
	}
	if isAbnormal {
		meaning = "This value is outside the normal range."
		if known && def.Meaning != "" {
			meaning = def.Meaning
		}
	}

	var causes []string
	if known {
		causes = def.CommonCauses
	}

	var questions []string
	if isAbnormal {
		questions = []string{
			fmt.Sprintf("What is causing my %s abnormal result?", name),
			fmt.Sprintf("Is my %s level serious?", name),
			fmt.Sprintf("Do I need further tests for %s?", name),
			fmt.Sprintf("What lifestyle changes can help improve my %s?", name),
		}
	}

	return enrichedTest{
		name:           name,
		valueStr:       valueStr,
		normalRangeStr: normalRangeStr,
		severity:       severity,
		isAbnormal:     isAbnormal,
		meaning:        meaning,
		commonCauses:   causes,
		questions:      questions,
	}
}

func fallbackMedicines(medicines []parse.Medicine, snap *catalog.Snapshot) []any {
	blocks := []any{}
	for _, m := range medicines {
		def, known := snap.Medicines[m.ID]

		name := m.Name
		if known && def.DisplayName != "" {
			name = def.DisplayName
		}

		blocks = append(blocks, map[string]any{
			"name":                 name,
			"generic_name":         nilIfEmpty(def.GenericName),
			"purpose":              orDefault(def.Purpose, "Prescribed by your doctor."),
			"mechanism":            nilIfEmpty(def.Mechanism),
			"how_to_take":          nilIfEmpty(def.HowToTake),
			"common_side_effects":  toAnyList(capStrings(def.CommonSideEffects, 3)),
			"serious_side_effects": toAnyList(capStrings(def.SeriousSideEffects, 3)),
			"drug_interactions":    toAnyList(capStrings(def.DrugInteractions, 3)),
			"precautions":          toAnyList(capStrings(def.Precautions, 3)),
			"generic_alternative":  nilIfEmpty(def.GenericAlternative),
			"lifestyle_tips":       toAnyList(capStrings(def.LifestyleTips, 3)),
		})
	}
	return blocks
}

// buildQuestions gathers canned questions for abnormal tests, deduped in
// first-seen order and capped at 8.
func buildQuestions(tests []enrichedTest) []any {
	questions := []any{}
	seen := make(map[string]bool)
	for _, t := range tests {
		if !t.isAbnormal {
			continue
		}
		for _, q := range t.questions {
			if seen[q] {
				continue
			}
			seen[q] = true
			questions = append(questions, q)
			if len(questions) == 8 {
				return questions
			}
		}
	}
	return questions
}

func buildNextSteps(tests []enrichedTest) []any {
	var abnormal []enrichedTest
	for _, t := range tests {
		if t.isAbnormal {
			abnormal = append(abnormal, t)
		}
	}

	steps := []any{}
	if len(abnormal) > 0 {
		steps = append(steps, "Consult your doctor within 1–2 weeks")
		for _, t := range abnormal {
			if t.severity == "severe" || t.severity == "critical" {
				steps = append(steps, "Seek medical advice urgently")
				break
			}
		}
		steps = append(steps, "Repeat abnormal tests if advised")
	} else {
		steps = append(steps, "Continue healthy habits")
		steps = append(steps, "Repeat routine tests in 6–12 months")
	}
	return steps
}

func toAnyList(items []string) []any {
	out := make([]any, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}

func capStrings(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
