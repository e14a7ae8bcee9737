package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig     *AppConfig
	AIConfig      *AIConfig
	BrowserConfig *BrowserConfig
	GuideConfig   *GuideConfig
	TrackerConfig *TrackerConfig
}

type AppConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	// LogFile and TraceFile keep diagnostics off the interactive terminal.
	LogFile   string `envconfig:"LOG_FILE" default:"stderr"`
	TraceFile string `envconfig:"TRACE_FILE"`
}

type AIConfig struct {
	Provider  string `envconfig:"AI_PROVIDER" default:"anthropic"`
	APIKey    string `envconfig:"AI_API_KEY"`
	Model     string `envconfig:"AI_MODEL"`
	MaxTokens int    `envconfig:"AI_MAX_TOKENS" default:"2048"`
	BaseURL   string `envconfig:"AI_BASE_URL"`
}

type BrowserConfig struct {
	Headless           bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
	SlowMo             int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout            int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserDataDir        string `envconfig:"BROWSER_USER_DATA_DIR" default:""`
	UseScreenshots     bool   `envconfig:"BROWSER_USE_SCREENSHOTS" default:"true"`
	ViewportWidth      int    `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight     int    `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"800"`
	ScreenshotMaxWidth uint   `envconfig:"BROWSER_SCREENSHOT_MAX_WIDTH" default:"1024"`
	StartURL           string `envconfig:"BROWSER_START_URL" default:"about:blank"`
}

type GuideConfig struct {
	RequestTimeout  time.Duration `envconfig:"GUIDE_REQUEST_TIMEOUT" default:"60s"`
	SnapshotTimeout time.Duration `envconfig:"GUIDE_SNAPSHOT_TIMEOUT" default:"10s"`
	SettleInterval  time.Duration `envconfig:"GUIDE_SETTLE_INTERVAL" default:"250ms"`
	SettleRetries   int           `envconfig:"GUIDE_SETTLE_RETRIES" default:"8"`
	RetryBackoff    time.Duration `envconfig:"GUIDE_RETRY_BACKOFF" default:"2s"`
	IdleTimeout     time.Duration `envconfig:"GUIDE_IDLE_TIMEOUT" default:"10m"`
	WeightsFile     string        `envconfig:"GUIDE_WEIGHTS_FILE"`
}

type TrackerConfig struct {
	TickInterval  time.Duration `envconfig:"TRACKER_TICK_INTERVAL" default:"100ms"`
	AutoDismiss   time.Duration `envconfig:"TRACKER_AUTO_DISMISS" default:"15s"`
	AnchorTimeout time.Duration `envconfig:"TRACKER_ANCHOR_TIMEOUT" default:"500ms"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}
