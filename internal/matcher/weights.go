package matcher

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"webguide/pkg/apperr"
)

// Weights holds every scoring constant of the matcher. Penalties are stored
// with their sign so a score is the plain sum of the terms that apply.
type Weights struct {
	Threshold float64 `yaml:"threshold"`

	Token  float64 `yaml:"token"`
	Phrase float64 `yaml:"phrase"`

	Button       float64 `yaml:"button"`
	NotButton    float64 `yaml:"not_button"`
	Hidden       float64 `yaml:"hidden"`
	UsableSize   float64 `yaml:"usable_size"`
	MinWidth     float64 `yaml:"min_width"`
	MinHeight    float64 `yaml:"min_height"`
	Nav          float64 `yaml:"nav"`
	Header       float64 `yaml:"header"`
	LeftOfMain   float64 `yaml:"left_of_main"`
	InsideMain   float64 `yaml:"inside_main"`
	InViewport   float64 `yaml:"in_viewport"`
	ViewportSlop float64 `yaml:"viewport_slop"`
	Masthead     float64 `yaml:"masthead"`
	MastheadBand float64 `yaml:"masthead_band"`

	AreaUnit       float64  `yaml:"area_unit"`
	AreaCap        float64  `yaml:"area_cap"`
	Oversize       float64  `yaml:"oversize"`
	OversizeFrac   float64  `yaml:"oversize_fraction"`
	CallToAction   float64  `yaml:"call_to_action"`
	KeywordIntent  float64  `yaml:"keyword_intent"`
	IntentKeywords []string `yaml:"intent_keywords"`
	ButtonMentions []string `yaml:"button_mentions"`
}

func DefaultWeights() Weights {
	return Weights{
		Threshold: 2.5,

		Token:  2,
		Phrase: 6,

		Button:       2.5,
		NotButton:    -4,
		Hidden:       -2.5,
		UsableSize:   0.5,
		MinWidth:     40,
		MinHeight:    24,
		Nav:          -3,
		Header:       -3.5,
		LeftOfMain:   -2,
		InsideMain:   0.7,
		InViewport:   0.5,
		ViewportSlop: 20,
		Masthead:     -4,
		MastheadBand: 120,

		AreaUnit:      20000,
		AreaCap:       1,
		Oversize:      -5,
		OversizeFrac:  0.8,
		CallToAction:  1,
		KeywordIntent: 1.5,
		IntentKeywords: []string{
			"start", "launch", "create", "new", "add", "run", "deploy",
			"시작", "생성", "실행", "추가", "만들기", "배포",
		},
		ButtonMentions: []string{
			"button", "click", "press", "tap", "버튼", "클릭", "눌러", "누르",
		},
	}
}

// Validate rejects weight sets that would make every element pass or none.
func (w Weights) Validate() error {
	const op = "matcher.Weights.Validate"

	switch {
	case w.Threshold <= 0:
		return apperr.InvalidReqError(op, "threshold", errors.New("must be positive"))
	case w.AreaUnit <= 0:
		return apperr.InvalidReqError(op, "area_unit", errors.New("must be positive"))
	case w.OversizeFrac <= 0 || w.OversizeFrac > 1:
		return apperr.InvalidReqError(op, "oversize_fraction", errors.New("must be in (0, 1]"))
	}

	return nil
}

// LoadWeights overlays the YAML file at path onto DefaultWeights. Keys absent
// from the file keep their defaults; unknown keys are an error.
func LoadWeights(path string) (Weights, error) {
	const op = "matcher.LoadWeights"

	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "read_weights_failed",
			apperr.MetaField:  path,
		})
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil && !errors.Is(err, io.EOF) {
		return w, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "parse_weights_failed",
			apperr.MetaField:  path,
		})
	}

	if err := w.Validate(); err != nil {
		return w, err
	}

	for i, k := range w.IntentKeywords {
		w.IntentKeywords[i] = Normalize(k)
	}
	for i, k := range w.ButtonMentions {
		w.ButtonMentions[i] = Normalize(k)
	}

	return w, nil
}
