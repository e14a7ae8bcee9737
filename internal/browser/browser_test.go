package browser

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/pkg/apperr"
)

func TestParsePageEvent(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   entity.PageEvent
		wantOK bool
	}{
		{
			name:   "trusted click",
			raw:    `{"kind":"click","trusted":true,"url":"https://a.example/x","at":1700000000000}`,
			want:   entity.PageEvent{Kind: entity.PageEventClick, Trusted: true, URL: "https://a.example/x"},
			wantOK: true,
		},
		{
			name:   "synthetic click stays untrusted",
			raw:    `{"kind":"click","url":"https://a.example/x"}`,
			want:   entity.PageEvent{Kind: entity.PageEventClick, URL: "https://a.example/x"},
			wantOK: true,
		},
		{
			name:   "navigate",
			raw:    `{"kind":"navigate","trusted":true,"url":"https://a.example/y"}`,
			want:   entity.PageEvent{Kind: entity.PageEventNavigate, Trusted: true, URL: "https://a.example/y"},
			wantOK: true,
		},
		{name: "unknown kind", raw: `{"kind":"focus"}`},
		{name: "not json", raw: `click`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePageEvent(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Kind != tt.want.Kind || got.Trusted != tt.want.Trusted || got.URL != tt.want.URL {
				t.Errorf("event = %+v, want %+v", got, tt.want)
			}
			if got.At.IsZero() {
				t.Error("event has no timestamp")
			}
		})
	}
}

func TestDecodeSnapshot(t *testing.T) {
	raw := `{
		"url": "https://console.example.com/",
		"title": "Console",
		"viewport": {"scrollX": 0, "scrollY": 250, "viewportWidth": 1280, "viewportHeight": 720, "devicePixelRatio": 2},
		"layout": {"mainLeft": 240, "mainRight": 1280},
		"elements": [
			{"tag": "button", "text": "Launch instance", "isButton": true, "visible": true,
			 "styleHints": {"backgroundColor": "rgb(255, 90, 31)"},
			 "rect": {"x": 600, "y": 550, "width": 160, "height": 40}},
			{"tag": "a", "text": "Collapsed", "inNav": true, "rect": {"x": 0, "y": 0, "width": 0, "height": 0}}
		]
	}`

	snap, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}

	if snap.Summary.Len() != 1 {
		t.Fatalf("elements = %d, want 1 (degenerate rect dropped)", snap.Summary.Len())
	}
	el := snap.Summary.Elements[0]
	if el.Text != "Launch instance" || !el.IsButton || el.Hidden() {
		t.Errorf("element = %+v", el)
	}
	if el.StyleHints.BackgroundColor != "rgb(255, 90, 31)" {
		t.Errorf("background = %q", el.StyleHints.BackgroundColor)
	}
	if snap.Viewport.ScrollY != 250 || snap.Viewport.DPR() != 2 {
		t.Errorf("viewport = %+v", snap.Viewport)
	}
	if snap.Layout.MainLeft != 240 {
		t.Errorf("main left = %v, want 240", snap.Layout.MainLeft)
	}
	if snap.Summary.SnapshotID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("snapshot id not assigned")
	}
}

func TestDecodeSnapshotErrors(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{name: "collector error", result: `{"error":"boom"}`},
		{name: "not a string", result: map[string]any{"url": "x"}},
		{name: "broken json", result: `{"url":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeSnapshot(tt.result); !apperr.IsCode(err, apperr.CodeInternal) {
				t.Fatalf("err = %v, want internal", err)
			}
		})
	}
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 16 {
		for x := 0; x < w; x += 16 {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxWidth     uint
		wantW, wantH int
	}{
		{name: "retina viewport", w: 2560, h: 1440, maxWidth: 1024, wantW: 1024, wantH: 576},
		{name: "already narrow", w: 800, h: 600, maxWidth: 1024, wantW: 800, wantH: 600},
		{name: "no limit", w: 2560, h: 1440, maxWidth: 0, wantW: 2560, wantH: 1440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, w, h, err := downscale(pngOf(t, tt.w, tt.h), tt.maxWidth)
			if err != nil {
				t.Fatalf("downscale: %v", err)
			}
			if w != tt.wantW || h != tt.wantH {
				t.Fatalf("size = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if cfg.Width != w || cfg.Height != h {
				t.Errorf("encoded size = %dx%d, reported %dx%d", cfg.Width, cfg.Height, w, h)
			}
		})
	}
}

func TestDownscaleRejectsGarbage(t *testing.T) {
	if _, _, _, err := downscale([]byte("not an image"), 1024); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	m := NewManager(Params{Config: &config.Config{BrowserConfig: &config.BrowserConfig{}}, Logger: zaptest.NewLogger(t)})

	for i := 0; i < eventBuffer+10; i++ {
		m.emit(entity.PageEvent{Kind: entity.PageEventScroll})
	}

	if got := len(m.Events()); got != eventBuffer {
		t.Fatalf("buffered = %d, want %d", got, eventBuffer)
	}
}

func TestEmitWaitsForRoomForClicks(t *testing.T) {
	m := NewManager(Params{Config: &config.Config{BrowserConfig: &config.BrowserConfig{}}, Logger: zaptest.NewLogger(t)})

	for i := 0; i < eventBuffer; i++ {
		m.emit(entity.PageEvent{Kind: entity.PageEventScroll})
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-m.Events()
	}()

	m.emit(entity.PageEvent{Kind: entity.PageEventClick, Trusted: true})

	var clicks int
	for len(m.Events()) > 0 {
		if ev := <-m.Events(); ev.Kind == entity.PageEventClick {
			clicks++
		}
	}
	if clicks != 1 {
		t.Fatalf("clicks delivered = %d, want 1", clicks)
	}
}

// methodBody returns the source of one runtime api method.
func methodBody(t *testing.T, name string) string {
	t.Helper()

	start := strings.Index(runtimeScript, "\t\t"+name+"(")
	if start < 0 {
		t.Fatalf("runtime has no %s method", name)
	}
	end := strings.Index(runtimeScript[start:], "\n\t\t},")
	if end < 0 {
		t.Fatalf("unterminated %s method", name)
	}
	return runtimeScript[start : start+end]
}

func TestRuntimeReleasesScrollListeners(t *testing.T) {
	for _, method := range []string{"mount", "clear"} {
		if !strings.Contains(methodBody(t, method), "unwatchScroll();") {
			t.Errorf("%s does not release scroll-ancestor listeners", method)
		}
	}

	adds := strings.Count(runtimeScript, "p.addEventListener('scroll'")
	if adds != 1 {
		t.Errorf("scroll-ancestor bindings = %d, want 1", adds)
	}
	if !strings.Contains(runtimeScript, "w.el.removeEventListener('scroll', w.handler") {
		t.Error("scroll-ancestor listeners are never removed")
	}
}

func TestSurfaceCallsFailWhenNotReady(t *testing.T) {
	m := NewManager(Params{Config: &config.Config{BrowserConfig: &config.BrowserConfig{}}, Logger: zaptest.NewLogger(t)})

	if _, err := m.MountOverlays(testContext(t), nil); !apperr.IsCode(err, apperr.CodeBrowserNotReady) {
		t.Fatalf("MountOverlays err = %v, want browser_not_ready", err)
	}
	if err := m.ClearOverlays(testContext(t)); err != nil {
		t.Fatalf("ClearOverlays before launch = %v, want nil", err)
	}
}
