package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
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
	openAIClientName = "OpenAIClient"
	openAITracer     = "ai.openai"
	openAIModel      = openai.GPT4o
)

// OpenAIClient asks a vision chat model for a JSON object in the same shape
// as the propose_guide tool input.
type OpenAIClient struct {
	config *config.AIConfig
	logger *zap.Logger
	tracer trace.Tracer
	client *openai.Client
	model  string
}

func NewOpenAIClient(cfg *config.AIConfig, logger *zap.Logger, httpClient *http.Client) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	clientConfig.HTTPClient = &bodyRecorder{doer: httpClient}

	model := cfg.Model
	if model == "" {
		model = openAIModel
	}

	return &OpenAIClient{
		config: cfg,
		logger: logger.With(zap.String(logg.Layer, openAIClientName)),
		tracer: otel.Tracer(openAITracer),
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (c *OpenAIClient) Propose(ctx context.Context, in entity.InstructionRequest) (proposal *entity.Proposal, err error) {
	const op = "Propose"
	logger := c.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.Int("elements", in.ElementSummary.Len()),
		attribute.Bool("screenshot", len(in.Screenshot) > 0),
		attribute.Bool("continuation", in.PriorProgress != nil))
	defer func() {
		step.End(err)
	}()

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: buildUserPrompt(in) + "\nReply with one JSON object with the fields guideKind, steps " +
			"(text, targetElementIndex, overlayRect), coordSpace, explanation and done.",
	}}
	if len(in.Screenshot) > 0 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(in.Screenshot), base64.StdEncoding.EncodeToString(in.Screenshot)),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	var raw []byte
	resp, err := c.client.CreateChatCompletion(context.WithValue(ctx, rawBodyKey{}, &raw), openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	switch {
	case err != nil && undecodable(err, raw):
		logger.Info("Response body is not a chat completion, reading it as text", zap.Error(err))
		return ParseProposal(string(raw)), nil
	case err != nil:
		return nil, openAIError(op, err)
	case len(resp.Choices) == 0:
		logger.Info("Response has no choices")
		return ParseProposal(""), nil
	}

	proposal = ParseProposal(resp.Choices[0].Message.Content)

	logger.Debug("Proposal received",
		zap.String("kind", string(proposal.Kind)),
		zap.Int("steps", len(proposal.Steps)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return proposal, nil
}

func openAIError(op string, err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	code := apperr.CodeUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = apperr.CodeTimeout
	case status == http.StatusTooManyRequests:
		code = apperr.CodeRateLimited
	case status > 0 && status < http.StatusInternalServerError:
		code = apperr.CodeAIError
	}

	return apperr.Wrap(op, code, err, map[string]any{
		apperr.MetaReason:     "api_error",
		apperr.MetaStage:      apperr.StageAI,
		apperr.MetaStatusCode: status,
	})
}

// undecodable reports whether err is go-openai failing to decode a
// successful response, as opposed to an API or transport error.
func undecodable(err error, raw []byte) bool {
	if len(raw) == 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	return !errors.As(err, &apiErr) && !errors.As(err, &reqErr)
}

type rawBodyKey struct{}

// bodyRecorder keeps a copy of every successful response body in the slot
// the caller put on the request context, so a reply go-openai cannot decode
// can still be read as text.
type bodyRecorder struct {
	doer openai.HTTPDoer
}

func (b *bodyRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := b.doer.Do(req)
	if err != nil {
		return resp, err
	}

	slot, ok := req.Context().Value(rawBodyKey{}).(*[]byte)
	if !ok || resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	*slot = body
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, nil
}
