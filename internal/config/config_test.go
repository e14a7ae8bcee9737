package config

import (
	"testing"
	"time"
)

func TestGetConfigDefaults(t *testing.T) {
	t.Setenv("GUIDE_IDLE_TIMEOUT", "5m")
	t.Setenv("AI_PROVIDER", "openai")

	conf, err := GetConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conf.GuideConfig.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout override, got %v", conf.GuideConfig.IdleTimeout)
	}
	if conf.AIConfig.Provider != "openai" {
		t.Errorf("expected provider override, got %q", conf.AIConfig.Provider)
	}
	if conf.TrackerConfig.AutoDismiss != 15*time.Second {
		t.Errorf("expected 15s auto-dismiss, got %v", conf.TrackerConfig.AutoDismiss)
	}
	if conf.BrowserConfig.ViewportWidth != 1280 {
		t.Errorf("expected default viewport width, got %d", conf.BrowserConfig.ViewportWidth)
	}
}

func TestGetConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("TRACKER_TICK_INTERVAL", "soon")

	if _, err := GetConfig(); err == nil {
		t.Fatal("expected an error for an unparsable duration")
	}
}
