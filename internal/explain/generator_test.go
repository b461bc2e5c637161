package explain

import (
	"context"
	"errors"
	"testing"
	"time"

	"lumen-backend/internal/catalog"
	"lumen-backend/internal/llm"
	"lumen-backend/internal/parse"
)

const validPayload = `{
	"disclaimer": "test",
	"input_summary": {"document_type": "medical_report", "detected_language": "en", "detected_hospital": null, "date_of_report": null},
	"abnormal_values": [],
	"normal_values": [],
	"medicines": [],
	"overall_summary": "All good",
	"questions_to_ask_doctor": [],
	"next_steps": [],
	"confidence_score": 0.9
}`

type scriptedResponse struct {
	out string
	err error
}

type scriptedClient struct {
	responses []scriptedResponse
	calls     int
}

func (c *scriptedClient) ExplainReport(ctx context.Context, parsed parse.Parsed) (string, error) {
	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	r := c.responses[i]
	return r.out, r.err
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) Model() string    { return "scripted-1" }

func newTestGenerator(t *testing.T, client llm.Client, retries int) (*Generator, *[]time.Duration) {
	t.Helper()
	store, err := catalog.New("")
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	g := NewGenerator(client, store, retries, 2*time.Second)
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	return g, &slept
}

func TestGenerateSuccessFirstAttempt(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{{out: validPayload}}}
	g, slept := newTestGenerator(t, client, 3)

	result := g.Generate(context.Background(), parse.Parsed{})

	if client.calls != 1 {
		t.Fatalf("expected 1 call, got %d", client.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff, got %v", *slept)
	}
	if result["overall_summary"] != "All good" {
		t.Fatalf("unexpected summary: %v", result["overall_summary"])
	}
	if result["confidence_score"] != 0.9 {
		t.Fatalf("unexpected confidence: %v", result["confidence_score"])
	}
}

func TestGenerateRetriesWithLinearCappedBackoff(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{out: validPayload},
	}}
	g, slept := newTestGenerator(t, client, 5)

	result := g.Generate(context.Background(), parse.Parsed{})

	if client.calls != 5 {
		t.Fatalf("expected 5 calls, got %d", client.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep %d = %v, want %v", i, (*slept)[i], d)
		}
	}
	if result["overall_summary"] != "All good" {
		t.Fatalf("expected success after retries")
	}
}

func TestGenerateBackoffIsCappedAtEightSeconds(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: errors.New("boom")},
		{out: validPayload},
	}}
	g, slept := newTestGenerator(t, client, 2)
	g.backoff = 10 * time.Second

	g.Generate(context.Background(), parse.Parsed{})

	if len(*slept) != 1 || (*slept)[0] != maxBackoff {
		t.Fatalf("expected single capped sleep of %v, got %v", maxBackoff, *slept)
	}
}

func TestGenerateFallsBackAfterExhaustion(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{{err: errors.New("down")}}}
	g, _ := newTestGenerator(t, client, 3)

	result := g.Generate(context.Background(), parse.Parsed{})

	if client.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", client.calls)
	}
	if result["confidence_score"] != 0.25 {
		t.Fatalf("expected fallback confidence, got %v", result["confidence_score"])
	}
	if result["disclaimer"] != Disclaimer {
		t.Fatalf("expected fallback disclaimer")
	}
}

func TestGenerateRejectsMissingKeysThenFallsBack(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{out: `{"overall_summary": "incomplete"}`},
	}}
	g, _ := newTestGenerator(t, client, 2)

	result := g.Generate(context.Background(), parse.Parsed{})

	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
	if result["confidence_score"] != 0.25 {
		t.Fatalf("expected fallback, got %v", result["confidence_score"])
	}
}

func TestGenerateRepairsWrappedJSON(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{out: "Here is your result:\n" + validPayload},
	}}
	g, _ := newTestGenerator(t, client, 1)

	result := g.Generate(context.Background(), parse.Parsed{})
	if result["overall_summary"] != "All good" {
		t.Fatalf("expected repaired payload to be accepted, got %v", result["overall_summary"])
	}
}

func TestGenerateStopsRetryingWhenContextCancelled(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{{err: errors.New("down")}}}
	g, _ := newTestGenerator(t, client, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := g.Generate(ctx, parse.Parsed{})

	if client.calls != 1 {
		t.Fatalf("expected 1 call under cancelled context, got %d", client.calls)
	}
	if result["confidence_score"] != 0.25 {
		t.Fatalf("expected fallback result")
	}
}

func TestParseOrRepairOutcomes(t *testing.T) {
	if _, err := parseOrRepair(validPayload); err != nil {
		t.Fatalf("valid payload: %v", err)
	}

	if _, err := parseOrRepair("prose " + validPayload); err != nil {
		t.Fatalf("repairable payload: %v", err)
	}

	_, err := parseOrRepair(`{"disclaimer": "cut off`)
	if !errors.Is(err, errTruncated) {
		t.Fatalf("expected truncation error, got %v", err)
	}

	_, err = parseOrRepair(`{"disclaimer": nonsense}`)
	if !errors.Is(err, errMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestValidateSchema(t *testing.T) {
	valid, err := parseOrRepair(validPayload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := validateSchema(valid); err != nil {
		t.Fatalf("validateSchema: %v", err)
	}

	delete(valid, "next_steps")
	if err := validateSchema(valid); err == nil {
		t.Fatalf("expected missing key error")
	}

	valid["next_steps"] = []any{}
	valid["confidence_score"] = "high"
	if err := validateSchema(valid); err == nil {
		t.Fatalf("expected confidence type error")
	}
}
