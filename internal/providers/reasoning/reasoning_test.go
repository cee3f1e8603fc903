package reasoning

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/providers/genai"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func chatCompletion(content string) string {
	quoted := strings.ReplaceAll(content, `"`, `\"`)
	return `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` +
		quoted + `"}}],"usage":{"prompt_tokens":1000,"completion_tokens":500,"total_tokens":1500}}`
}

var testPricing = Pricing{InputPerKTok: 0.01, OutputPerKTok: 0.02}

func sampleSelect() SelectRequest {
	return SelectRequest{
		RunID:   "run-1",
		Purpose: "assets",
		Groups: []Group{
			{Key: "product", Options: []Option{{ID: "croissant", Score: 0.9}, {ID: "bagel", Score: 0.5}}},
			{Key: "plate", Options: []Option{{ID: "white-plate", Score: 0.7}}},
		},
	}
}

func newOpenAI(t *testing.T, rt roundTripFunc) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIOptions{
		APIKey:     "dummy",
		BaseURL:    "https://llm.test/v1",
		HTTPClient: &http.Client{Transport: rt},
		Pricing:    testPricing,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOpenAISelectParsesFencedJSON(t *testing.T) {
	var path string
	p := newOpenAI(t, func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		return jsonResponse(chatCompletion("```json\\n{\"choices\":{\"product\":\"bagel\",\"plate\":\"white-plate\",\"cup\":\"ghost\"},\"reasoning\":\"variety\"}\\n```")), nil
	})
	d, err := p.Select(context.Background(), sampleSelect())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if path != "/v1/chat/completions" {
		t.Fatalf("path = %q, want /v1/chat/completions", path)
	}
	if d.Choices["product"] != "bagel" || d.Choices["plate"] != "white-plate" {
		t.Fatalf("Choices = %v", d.Choices)
	}
	if _, ok := d.Choices["cup"]; ok {
		t.Fatalf("choice for a group that was not asked kept: %v", d.Choices)
	}
	if d.Tokens != 1500 || !almostEqual(d.Cost, 0.02) {
		t.Fatalf("Tokens = %d Cost = %v, want 1500 and 0.02", d.Tokens, d.Cost)
	}
}

func TestOpenAIUnparsableResponseStillCosts(t *testing.T) {
	p := newOpenAI(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(chatCompletion("I would pick the bagel.")), nil
	})
	d, err := p.Select(context.Background(), sampleSelect())
	if !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
	if !almostEqual(d.Cost, 0.02) {
		t.Fatalf("Cost = %v, want 0.02", d.Cost)
	}
}

func TestOpenAITransportFailure(t *testing.T) {
	p := newOpenAI(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})
	_, err := p.Compose(context.Background(), ComposeRequest{Scenario: domain.Scenario{Name: "x"}})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIOptions{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGeminiComposeUsesTextModel(t *testing.T) {
	client, err := genai.NewClient(genai.Options{
		APIKey:  "k",
		BaseURL: "https://gemini.test/v1beta",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(`{"candidates":[{"content":{"parts":[{"text":"{\"prompt\":\"a croissant on marble\",\"reasoning\":\"clean\"}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2000,"candidatesTokenCount":100}}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("genai.NewClient: %v", err)
	}
	p, err := NewGeminiProvider(GeminiOptions{Client: client, Pricing: testPricing, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	comp, err := p.Compose(context.Background(), ComposeRequest{Scenario: domain.Scenario{Name: "table"}})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Prompt != "a croissant on marble" || comp.Provider != geminiProviderName {
		t.Fatalf("Composition = %+v", comp)
	}
	if comp.Tokens != 2100 || !almostEqual(comp.Cost, 0.022) {
		t.Fatalf("Tokens = %d Cost = %v", comp.Tokens, comp.Cost)
	}
}

func TestGeminiOfflinePropagatesError(t *testing.T) {
	client, _ := genai.NewClient(genai.Options{})
	p, _ := NewGeminiProvider(GeminiOptions{Client: client, Logger: zerolog.Nop()})
	if _, err := p.Select(context.Background(), sampleSelect()); !errors.Is(err, genai.ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
}

func TestStaticProviderPicksBestOption(t *testing.T) {
	p := NewStaticProvider()
	d, err := p.Select(context.Background(), sampleSelect())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Choices["product"] != "croissant" || d.Choices["plate"] != "white-plate" || d.Cost != 0 {
		t.Fatalf("Decision = %+v", d)
	}
}

func TestTemplatePromptIsDeterministic(t *testing.T) {
	req := ComposeRequest{
		Scenario:       domain.Scenario{Description: "held in one hand over a cafe table"},
		HandStyle:      &domain.HandStyle{Description: "fingertips pinching the edge"},
		Assets:         map[domain.Role]domain.AssetRef{domain.RoleProduct: {ID: "p1", Name: "butter croissant"}, domain.RoleCup: {ID: "c1", Name: "white mug"}, domain.RoleTable: {ID: "t1", Name: "oak"}},
		SpecialElement: &domain.SpecialElement{Name: "mascot", Description: "the bear mascot sticker"},
		Context:        Context{TimeSlot: "morning"},
		Hint:           "Make the crust sharper.",
	}
	a, b := TemplatePrompt(req), TemplatePrompt(req)
	if a != b {
		t.Fatal("TemplatePrompt is not deterministic")
	}
	for _, want := range []string{"butter croissant", "fingertips", "white mug cup", "bear mascot", "morning", "crust sharper"} {
		if !strings.Contains(a, want) {
			t.Fatalf("prompt %q missing %q", a, want)
		}
	}
	if strings.Index(a, "white mug") > strings.Index(a, "oak") {
		t.Fatalf("roles not in stable order: %q", a)
	}
}
