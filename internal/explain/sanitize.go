package explain

import (
	"strconv"
	"strings"
)

var allowedSeverities = map[string]bool{
	"mild": true, "moderate": true, "severe": true, "critical": true,
	"low": true, "high": true, "unknown": true,
}

var allowedUrgencies = map[string]bool{
	"routine": true, "soon": true, "urgent": true, "emergency": true,
}

// Sanitize normalizes an explanation payload so it always satisfies the
// result schema, regardless of what the model returned. It accepts any
// value, never fails, and is idempotent.
func Sanitize(input any) map[string]any {
	data, ok := input.(map[string]any)
	if !ok || data == nil {
		data = map[string]any{}
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	out["disclaimer"] = ensureStr(out["disclaimer"], "")
	out["overall_summary"] = ensureStr(out["overall_summary"], "No data available")
	out["confidence_score"] = ensureFloat(out["confidence_score"])

	abnormal := ensureList(out["abnormal_values"])
	normal := ensureList(out["normal_values"])
	meds := ensureList(out["medicines"])
	out["questions_to_ask_doctor"] = ensureList(out["questions_to_ask_doctor"])
	out["next_steps"] = ensureList(out["next_steps"])
	out["red_flags"] = ensureList(out["red_flags"])

	if !truthy(out["pattern_analysis"]) {
		out["pattern_analysis"] = nil
	}
	urgency := strings.ToLower(ensureStr(out["urgency_level"], ""))
	if allowedUrgencies[urgency] {
		out["urgency_level"] = urgency
	} else {
		out["urgency_level"] = nil
	}
	if !truthy(out["lifestyle_action_plan"]) {
		out["lifestyle_action_plan"] = nil
	}

	metadata, _ := out["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["processing_time_sec"] = ensureInt(metadata["processing_time_sec"])
	metadata["ocr_engine"] = ensureStr(metadata["ocr_engine"], "unknown")
	metadata["llm_provider"] = ensureStr(metadata["llm_provider"], "unknown")
	metadata["model"] = ensureStr(metadata["model"], "unknown")
	metadata["cached"] = truthy(metadata["cached"])
	out["metadata"] = metadata

	summary, _ := out["input_summary"].(map[string]any)
	if summary == nil {
		summary = map[string]any{}
	}
	summary["document_type"] = ensureStr(summary["document_type"], "unknown")
	summary["detected_language"] = ensureStr(summary["detected_language"], "unknown")
	if _, ok := summary["detected_hospital"]; !ok {
		summary["detected_hospital"] = nil
	}
	if _, ok := summary["date_of_report"]; !ok {
		summary["date_of_report"] = nil
	}
	out["input_summary"] = summary

	sanitizedAbnormal := make([]any, 0, len(abnormal))
	for _, e := range abnormal {
		sanitizedAbnormal = append(sanitizedAbnormal, sanitizeTestEntry(e, true))
	}
	out["abnormal_values"] = sanitizedAbnormal

	sanitizedNormal := make([]any, 0, len(normal))
	for _, e := range normal {
		sanitizedNormal = append(sanitizedNormal, sanitizeTestEntry(e, false))
	}
	out["normal_values"] = sanitizedNormal

	sanitizedMeds := make([]any, 0, len(meds))
	for _, m := range meds {
		sanitizedMeds = append(sanitizedMeds, sanitizeMedicineEntry(m))
	}
	out["medicines"] = sanitizedMeds

	return out
}

func sanitizeTestEntry(raw any, abnormal bool) map[string]any {
	e, _ := raw.(map[string]any)
	if e == nil {
		e = map[string]any{}
	}

	base := map[string]any{
		"test_name":     ensureStr(e["test_name"], "Unknown"),
		"value":         ensureStr(e["value"], ""),
		"normal_range":  ensureStr(e["normal_range"], ""),
		"what_it_means": ensureStr(e["what_it_means"], ""),
	}
	if !abnormal {
		return base
	}

	sev := strings.ToLower(ensureStr(e["severity"], "mild"))
	if !allowedSeverities[sev] {
		sev = "unknown"
	}
	base["severity"] = sev
	base["common_causes"] = ensureList(e["common_causes"])
	base["what_to_ask_doctor"] = ensureList(e["what_to_ask_doctor"])
	base["health_risks"] = ensureList(e["health_risks"])
	base["lifestyle_recommendations"] = ensureList(e["lifestyle_recommendations"])
	base["dietary_recommendations"] = ensureList(e["dietary_recommendations"])
	return base
}

func sanitizeMedicineEntry(raw any) map[string]any {
	m, _ := raw.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}

	return map[string]any{
		"name":                 ensureStr(m["name"], "Unknown"),
		"generic_name":         m["generic_name"],
		"purpose":              ensureStr(m["purpose"], "Prescribed by your doctor."),
		"mechanism":            optionalStr(m["mechanism"]),
		"how_to_take":          optionalStr(m["how_to_take"]),
		"common_side_effects":  capList(ensureList(m["common_side_effects"]), 3),
		"serious_side_effects": capList(ensureList(m["serious_side_effects"]), 3),
		"drug_interactions":    capList(ensureList(m["drug_interactions"]), 3),
		"precautions":          capList(ensureList(m["precautions"]), 3),
		"generic_alternative":  m["generic_alternative"],
		"lifestyle_tips":       capList(ensureList(m["lifestyle_tips"]), 3),
		"cost_saving_tip":      optionalStr(m["cost_saving_tip"]),
	}
}

func ensureStr(x any, def string) string {
	switch v := x.(type) {
	case nil:
		return def
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return def
	}
}

func optionalStr(x any) any {
	if x == nil {
		return nil
	}
	s := ensureStr(x, "")
	if s == "" {
		return nil
	}
	return s
}

func ensureList(x any) []any {
	switch v := x.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	default:
		return []any{v}
	}
}

func capList(list []any, n int) []any {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func ensureFloat(x any) float64 {
	switch v := x.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0.0
		}
		return f
	default:
		return 0.0
	}
}

func ensureInt(x any) int {
	switch v := x.(type) {
	case float64:
		return int(v)
	case float32:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func truthy(x any) bool {
	switch v := x.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
