package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const snapshotJSON = `{
  "url": "https://console.example.com/instances",
  "summary": {"elements": [
    {"tag": "a", "text": "Dashboard", "inNav": true, "rect": {"x": 10, "y": 100, "width": 150, "height": 30}},
    {"tag": "button", "text": "Launch instance", "isButton": true, "rect": {"x": 600, "y": 300, "width": 160, "height": 40}}
  ]},
  "viewport": {"scrollX": 0, "scrollY": 0, "viewportWidth": 1280, "viewportHeight": 720, "devicePixelRatio": 1},
  "layout": {"mainLeft": 240}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunResolve(t *testing.T) {
	opts := resolveOptions{
		snapshot: writeFile(t, "snap.json", snapshotJSON),
		proposal: writeFile(t, "reply.txt", "Sure:\n```json\n"+
			`{"guideKind":"steps","steps":[{"text":"Click \"Launch instance\"","targetElementIndex":1}]}`+
			"\n```"),
	}

	var out bytes.Buffer
	if err := runResolve(&out, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Overlays []struct {
			ElementIndex *int `json:"elementIndex"`
			Label        string
		} `json:"overlays"`
		TargetIndexes []int `json:"targetIndexes"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}

	if len(got.TargetIndexes) != 1 || got.TargetIndexes[0] != 1 {
		t.Fatalf("expected target 1, got %v", got.TargetIndexes)
	}
	if len(got.Overlays) != 1 || got.Overlays[0].ElementIndex == nil || *got.Overlays[0].ElementIndex != 1 {
		t.Errorf("expected one overlay on element 1, got %+v", got.Overlays)
	}
}

func TestRunResolveErrors(t *testing.T) {
	snap := writeFile(t, "snap.json", snapshotJSON)
	reply := writeFile(t, "reply.txt", `{"steps":["Click Launch instance"]}`)

	tests := []struct {
		name string
		opts resolveOptions
	}{
		{"missing snapshot", resolveOptions{snapshot: filepath.Join(t.TempDir(), "nope.json"), proposal: reply}},
		{"bad snapshot", resolveOptions{snapshot: writeFile(t, "bad.json", "{"), proposal: reply}},
		{"missing proposal", resolveOptions{snapshot: snap, proposal: filepath.Join(t.TempDir(), "nope.txt")}},
		{"missing weights", resolveOptions{snapshot: snap, proposal: reply, weights: filepath.Join(t.TempDir(), "w.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runResolve(&bytes.Buffer{}, tt.opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
