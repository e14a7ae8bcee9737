package matcher

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"webguide/pkg/apperr"
)

func TestNormalizeComposesHangul(t *testing.T) {
	decomposed := "\u1109\u1175\u110c\u1161\u11a8"
	if got := Normalize(decomposed); got != "시작" {
		t.Errorf("expected NFC 시작, got %q", got)
	}
	if got := Normalize("  New   PROJECT "); got != "new project" {
		t.Errorf("unexpected fold: %q", got)
	}
}

func TestTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"click the Save button, then confirm!", []string{"save", "confirm"}},
		{"시작을 눌러서 인스턴스를 생성", []string{"시작", "인스턴스", "생성"}},
		{"메뉴에서 설정으로 이동", []string{"메뉴", "설정", "이동"}},
		{"추가 추가", []string{"추가"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Tokens(Normalize(tt.in)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhrases(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`click "New project" then 'Create'`, []string{"new project", "create"}},
		{"don't forget 'Save'", []string{"save"}},
		{"눌러서 ‘인스턴스 시작’", []string{"인스턴스 시작"}},
		{"「설정」 메뉴", []string{"설정"}},
		{`unterminated "quote`, nil},
		{`empty "" quotes`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Phrases(Normalize(tt.in)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Phrases(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCallToActionColor(t *testing.T) {
	tests := []struct {
		css  string
		want bool
	}{
		{"rgb(255, 87, 34)", true},
		{"#f52", true},
		{"rgb(33, 150, 243)", false},
		{"rgba(255, 87, 34, 0)", false},
		{"rgb(250, 250, 250)", false},
		{"transparent", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isCallToActionColor(tt.css); got != tt.want {
			t.Errorf("isCallToActionColor(%q) = %v, want %v", tt.css, got, tt.want)
		}
	}
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides", func(t *testing.T) {
		path := filepath.Join(dir, "w.yaml")
		if err := os.WriteFile(path, []byte("threshold: 3\nnav: -10\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		w, err := LoadWeights(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Threshold != 3 || w.Nav != -10 {
			t.Errorf("overrides not applied: %+v", w)
		}
		if w.Token != DefaultWeights().Token {
			t.Errorf("missing keys must keep defaults, token=%v", w.Token)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadWeights(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("bogus: 1\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadWeights(path)
		if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("expected invalid_argument, got %v", err)
		}
	})

	t.Run("invalid threshold", func(t *testing.T) {
		path := filepath.Join(dir, "zero.yaml")
		if err := os.WriteFile(path, []byte("threshold: 0\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadWeights(path); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("no path", func(t *testing.T) {
		w, err := LoadWeights("")
		if err != nil || w.Threshold != DefaultWeights().Threshold {
			t.Fatalf("expected defaults, got %+v %v", w, err)
		}
	})
}
