package ai

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/config"
	"webguide/internal/ports"
	"webguide/pkg/apperr"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewInstructionSource picks the client named by AI_PROVIDER.
func NewInstructionSource(params Params) (ports.InstructionSource, error) {
	cfg := params.Config.AIConfig
	httpClient := &http.Client{}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAnthropic:
		return NewAnthropicClient(cfg, params.Logger, httpClient), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, params.Logger, httpClient), nil
	}

	return nil, apperr.InvalidReqError("NewInstructionSource", "AI_PROVIDER",
		fmt.Errorf("unknown provider %q", cfg.Provider))
}
