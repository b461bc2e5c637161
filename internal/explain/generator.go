package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lumen-backend/internal/catalog"
	"lumen-backend/internal/llm"
	"lumen-backend/internal/parse"
	"lumen-backend/internal/shared/metrics"
	"lumen-backend/internal/shared/telemetry"
)

// maxBackoff caps the wait between model attempts.
const maxBackoff = 8 * time.Second

// Attempt failure kinds, used for logging and tests.
const (
	kindTransport = "transport_error"
	kindTruncated = "truncated_output"
	kindMalformed = "malformed_json"
	kindSchema    = "schema_violation"
)

var (
	errTruncated = errors.New("llm output truncated (likely token limit)")
	errMalformed = errors.New("llm returned invalid JSON after repair")
)

var requiredKeys = []string{
	"disclaimer",
	"input_summary",
	"abnormal_values",
	"normal_values",
	"medicines",
	"overall_summary",
	"questions_to_ask_doctor",
	"next_steps",
	"confidence_score",
}

// Generator produces an explanation for a parsed document, retrying the
// model and falling back to a catalog-built result when every attempt
// fails. Generate is total: it always returns a schema-valid payload.
type Generator struct {
	client     llm.Client
	catalog    *catalog.Store
	retryCount int
	backoff    time.Duration
	sleep      func(context.Context, time.Duration)
}

// NewGenerator wires a generator with its retry policy.
func NewGenerator(client llm.Client, cat *catalog.Store, retryCount int, backoff time.Duration) *Generator {
	if retryCount <= 0 {
		retryCount = 1
	}
	return &Generator{
		client:     client,
		catalog:    cat,
		retryCount: retryCount,
		backoff:    backoff,
		sleep:      sleepCtx,
	}
}

// Provider returns the underlying client's provider name.
func (g *Generator) Provider() string { return g.client.Provider() }

// Model returns the underlying client's model name.
func (g *Generator) Model() string { return g.client.Model() }

// Generate runs the retry loop. All tests and medicines in parsed are
// interpreted against the catalog snapshot current at call time.
func (g *Generator) Generate(ctx context.Context, parsed parse.Parsed) map[string]any {
	snap := g.catalog.Snapshot()

	for attempt := 1; attempt <= g.retryCount; attempt++ {
		metrics.IncLLMAttempt()
		telemetry.Info("llm.attempt", map[string]any{
			"attempt": attempt,
			"total":   g.retryCount,
		})

		result, kind, err := g.attempt(ctx, parsed)
		if err == nil {
			return result
		}
		telemetry.Warn("llm.attempt_failed", map[string]any{
			"attempt": attempt,
			"kind":    kind,
			"error":   err.Error(),
		})

		if ctx.Err() != nil {
			break
		}
		if attempt < g.retryCount {
			wait := g.backoff * time.Duration(attempt)
			if wait > maxBackoff {
				wait = maxBackoff
			}
			g.sleep(ctx, wait)
		}
	}

	telemetry.Error("llm.exhausted", map[string]any{
		"attempts": g.retryCount,
	})
	metrics.IncLLMFallback()
	return Fallback(parsed, snap)
}

func (g *Generator) attempt(ctx context.Context, parsed parse.Parsed) (map[string]any, string, error) {
	out, err := g.client.ExplainReport(ctx, parsed)
	if err != nil {
		return nil, kindTransport, err
	}

	data, err := parseOrRepair(out)
	if err != nil {
		kind := kindMalformed
		if errors.Is(err, errTruncated) {
			kind = kindTruncated
		}
		return nil, kind, err
	}

	if err := validateSchema(data); err != nil {
		return nil, kindSchema, err
	}
	return Sanitize(data), "", nil
}

// parseOrRepair decodes model output, retrying on the substring between
// the first '{' and the last '}' when the full text does not decode.
func parseOrRepair(text string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err == nil {
		return data, nil
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		if err := json.Unmarshal([]byte(text[first:last+1]), &data); err == nil {
			return data, nil
		}
	}

	if !strings.HasSuffix(strings.TrimSpace(text), "}") {
		return nil, errTruncated
	}
	return nil, errMalformed
}

func validateSchema(data map[string]any) error {
	for _, key := range requiredKeys {
		if _, ok := data[key]; !ok {
			return fmt.Errorf("llm response missing key: %s", key)
		}
	}
	switch data["confidence_score"].(type) {
	case float64, int, int64:
	default:
		return fmt.Errorf("confidence_score must be a number")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
