package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/internal/geometry"
	"webguide/pkg/apperr"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func testRequest() entity.InstructionRequest {
	return entity.InstructionRequest{
		InstructionText: "launch an instance",
		URL:             "https://console.example.com/instances",
		ElementSummary: entity.ElementSummary{Elements: []entity.ElementDescriptor{
			{Tag: "button", Text: "Launch instance", IsButton: true, Rect: geometry.Rect{X: 600, Y: 300, Width: 160, Height: 40}},
		}},
		ViewportContext: entity.ViewportContext{ViewportWidth: 1280, ViewportHeight: 720, DevicePixelRatio: 1},
		Screenshot:      pngHeader,
	}
}

func newAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.AIConfig{APIKey: "test-key", MaxTokens: 256, BaseURL: srv.URL}
	return NewAnthropicClient(cfg, zaptest.NewLogger(t), srv.Client())
}

func TestAnthropicProposeUsesToolCall(t *testing.T) {
	var got claudeRequest
	client := newAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request is not JSON: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[
			{"type":"text","text":"Pointing at the button."},
			{"type":"tool_use","name":"propose_guide","input":{
				"guideKind":"steps",
				"steps":[{"text":"Click \"Launch instance\"","targetElementIndex":0}]
			}}
		],"stop_reason":"tool_use"}`)
	})

	p, err := client.Propose(testContext(t), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsGuide() || *p.Steps[0].TargetElementIndex != 0 {
		t.Fatalf("unexpected proposal %+v", p)
	}

	if got.ToolChoice == nil || got.ToolChoice.Name != proposeToolName {
		t.Errorf("expected forced tool choice, got %+v", got.ToolChoice)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("expected image and text blocks, got %+v", got.Messages)
	}
	img := got.Messages[0].Content[0]
	if img.Type != "image" || img.Source == nil || img.Source.MediaType != "image/png" {
		t.Errorf("unexpected image block %+v", img)
	}
	if !strings.Contains(got.Messages[0].Content[1].Text, "Launch instance") {
		t.Errorf("element list missing from prompt")
	}
}

func TestAnthropicTextFallback(t *testing.T) {
	client := newAnthropic(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"You can find it under Compute."}]}`)
	})

	p, err := client.Propose(testContext(t), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != entity.GuideKindAnswer || p.Explanation != "You can find it under Compute." {
		t.Errorf("expected plain answer, got %+v", p)
	}
}

func TestAnthropicStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, apperr.CodeRateLimited},
		{"overloaded", http.StatusServiceUnavailable, apperr.CodeUnavailable},
		{"bad request", http.StatusBadRequest, apperr.CodeAIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newAnthropic(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
			})

			_, err := client.Propose(testContext(t), testRequest())
			if !apperr.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestAnthropicNonJSONBodyBecomesAnswer(t *testing.T) {
	client := newAnthropic(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Sorry, I can only answer in prose today.")
	})

	p, err := client.Propose(testContext(t), testRequest())
	if err != nil {
		t.Fatalf("expected a text fallback, got %v", err)
	}
	if p.Kind != entity.GuideKindAnswer || p.Explanation != "Sorry, I can only answer in prose today." {
		t.Errorf("expected the body as an answer, got %+v", p)
	}
	if len(p.Steps) != 0 {
		t.Errorf("expected no steps, got %+v", p.Steps)
	}
}

func newOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.AIConfig{APIKey: "test-key", MaxTokens: 256, BaseURL: srv.URL + "/v1"}
	return NewOpenAIClient(cfg, zaptest.NewLogger(t), srv.Client())
}

func TestOpenAIPropose(t *testing.T) {
	var got map[string]any
	client := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,
			"message":{"role":"assistant","content":"{\"steps\":[{\"text\":\"Click Launch\",\"targetElementIndex\":0}]}"},
			"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
	})

	p, err := client.Propose(testContext(t), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsGuide() {
		t.Fatalf("expected a guide, got %+v", p)
	}

	if got["model"] != openAIModel {
		t.Errorf("expected default model, got %v", got["model"])
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
}

func TestOpenAINonJSONBodyBecomesAnswer(t *testing.T) {
	client := newOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Sorry, I can only answer in prose today.")
	})

	p, err := client.Propose(testContext(t), testRequest())
	if err != nil {
		t.Fatalf("expected a text fallback, got %v", err)
	}
	if p.Kind != entity.GuideKindAnswer || p.Explanation != "Sorry, I can only answer in prose today." {
		t.Errorf("expected the body as an answer, got %+v", p)
	}
}

func TestOpenAIStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, apperr.CodeRateLimited},
		{"server error", http.StatusInternalServerError, apperr.CodeUnavailable},
		{"unauthorized", http.StatusUnauthorized, apperr.CodeAIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"error"}}`)
			})

			_, err := client.Propose(testContext(t), testRequest())
			if !apperr.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNewInstructionSource(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"", false},
		{"Anthropic", false},
		{"openai", false},
		{"carrier-pigeon", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{AIConfig: &config.AIConfig{Provider: tt.provider}}
			src, err := NewInstructionSource(Params{Config: cfg, Logger: logger})
			if tt.wantErr {
				if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
					t.Errorf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil || src == nil {
				t.Errorf("expected a source, got %v", err)
			}
		})
	}
}
