package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
	"webguide/pkg/tracing"
)

const (
	anthropicClientName = "AnthropicClient"
	anthropicTracer     = "ai.anthropic"
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	anthropicModel      = "claude-sonnet-4-20250514"
	maxErrorBody        = 512
)

// AnthropicClient talks to the Messages API directly and forces a single
// propose_guide tool call.
type AnthropicClient struct {
	config     *config.AIConfig
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewAnthropicClient(cfg *config.AIConfig, logger *zap.Logger, httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = anthropicModel
	}

	return &AnthropicClient{
		config:     cfg,
		logger:     logger.With(zap.String(logg.Layer, anthropicClientName)),
		tracer:     otel.Tracer(anthropicTracer),
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      model,
	}
}

type claudeRequest struct {
	Model      string          `json:"model"`
	MaxTokens  int             `json:"max_tokens"`
	System     string          `json:"system,omitempty"`
	Messages   []claudeMessage `json:"messages"`
	Tools      []claudeTool    `json:"tools,omitempty"`
	ToolChoice *claudeChoice   `json:"tool_choice,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicClient) Propose(ctx context.Context, in entity.InstructionRequest) (proposal *entity.Proposal, err error) {
	const op = "Propose"
	logger := c.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.Int("elements", in.ElementSummary.Len()),
		attribute.Bool("screenshot", len(in.Screenshot) > 0),
		attribute.Bool("continuation", in.PriorProgress != nil))
	defer func() {
		step.End(err)
	}()

	content := make([]claudeBlock, 0, 2)
	if len(in.Screenshot) > 0 {
		content = append(content, claudeBlock{
			Type: "image",
			Source: &claudeSource{
				Type:      "base64",
				MediaType: http.DetectContentType(in.Screenshot),
				Data:      base64.StdEncoding.EncodeToString(in.Screenshot),
			},
		})
	}
	content = append(content, claudeBlock{
		Type: "text",
		Text: buildUserPrompt(in) + fmt.Sprintf("\nAnswer by calling %s.", proposeToolName),
	})

	reqBody := claudeRequest{
		Model:     c.model,
		MaxTokens: c.config.MaxTokens,
		System:    systemPrompt,
		Messages:  []claudeMessage{{Role: "user", Content: content}},
		Tools: []claudeTool{{
			Name:        proposeToolName,
			Description: "Propose the next guide steps or an answer.",
			InputSchema: proposeToolSchema(),
		}},
		ToolChoice: &claudeChoice{Type: "tool", Name: proposeToolName},
	}

	step.AddEvent("marshaling request")

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "request_create_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	step.AddEvent("sending HTTP request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "http_request_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "read_body_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(op, httpResp.StatusCode, body)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		logger.Info("Response body is not JSON, reading it as text", zap.Error(err))
		proposal = ParseProposal(string(body))
	} else {
		proposal = c.parseResponse(&claudeResp)
	}

	logger.Debug("Proposal received",
		zap.String("kind", string(proposal.Kind)),
		zap.Int("steps", len(proposal.Steps)),
		zap.Bool("done", proposal.Done),
	)

	return proposal, nil
}

// parseResponse prefers the tool call; a text-only reply goes through the
// tolerant parser.
func (c *AnthropicClient) parseResponse(resp *claudeResponse) *entity.Proposal {
	var text strings.Builder

	for _, content := range resp.Content {
		switch content.Type {
		case "tool_use":
			if content.Name == proposeToolName && content.Input != nil {
				return ProposalFromMap(content.Input)
			}
		case "text":
			text.WriteString(content.Text)
		}
	}

	return ParseProposal(text.String())
}

// statusError maps a non-200 reply onto the retry taxonomy.
func statusError(op string, status int, body []byte) error {
	code := apperr.CodeAIError
	switch {
	case status == http.StatusTooManyRequests:
		code = apperr.CodeRateLimited
	case status >= http.StatusInternalServerError:
		code = apperr.CodeUnavailable
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return apperr.Wrap(op, code, fmt.Errorf("API error (status %d): %s", status, body), map[string]any{
		apperr.MetaReason:     "api_error",
		apperr.MetaStage:      apperr.StageAI,
		apperr.MetaStatusCode: status,
	})
}
