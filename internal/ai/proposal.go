package ai

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"webguide/internal/entity"
	"webguide/internal/geometry"
)

// ParseProposal turns a raw model reply into a Proposal. It never fails: a
// reply without a usable JSON object becomes an answer carrying the text.
func ParseProposal(raw string) *entity.Proposal {
	text := strings.TrimSpace(raw)

	obj, ok := extractObject(text)
	if !ok {
		return &entity.Proposal{Kind: entity.GuideKindAnswer, Explanation: text, CoordSpace: entity.CoordSpaceUnknown}
	}

	return ProposalFromMap(obj)
}

// ProposalFromMap validates an already-decoded object, such as tool-call
// input. Unknown or ill-typed fields are ignored rather than rejected.
func ProposalFromMap(obj map[string]any) *entity.Proposal {
	p := &entity.Proposal{
		CoordSpace:  entity.ParseCoordSpace(strings.ToLower(stringField(obj, "coordSpace", "coord_space", "coordinateSpace"))),
		Explanation: stringField(obj, "explanation", "answer", "message", "summary"),
		Done:        boolField(obj, "done", "complete", "completed"),
	}

	if raw, ok := field(obj, "steps"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if st, ok := parseStep(item, p.CoordSpace); ok {
					p.Steps = append(p.Steps, st)
				}
			}
		}
	}

	if list, ok := listField(obj, "targetElementIndexes", "target_element_indexes", "targetIndexes", "elementIndexes"); ok {
		for i := range p.Steps {
			if i >= len(list) {
				break
			}
			if p.Steps[i].TargetElementIndex == nil {
				p.Steps[i].TargetElementIndex = parseIndex(list[i])
			}
		}
	}

	if list, ok := listField(obj, "overlayRects", "overlay_rects", "rects"); ok {
		for i := range p.Steps {
			if i >= len(list) {
				break
			}
			if p.Steps[i].OverlayRect == nil {
				p.Steps[i].OverlayRect = parseRect(list[i])
			}
		}
	}

	switch strings.ToLower(stringField(obj, "guideKind", "guide_kind", "kind", "type")) {
	case string(entity.GuideKindAnswer), "qa", "info":
		p.Kind = entity.GuideKindAnswer
	case string(entity.GuideKindSteps), "guide":
		p.Kind = entity.GuideKindSteps
	default:
		if len(p.Steps) > 0 || p.Done {
			p.Kind = entity.GuideKindSteps
		} else {
			p.Kind = entity.GuideKindAnswer
		}
	}

	return p
}

func parseStep(item any, space entity.CoordSpace) (entity.StepProposal, bool) {
	switch v := item.(type) {
	case string:
		text := strings.TrimSpace(v)
		return entity.StepProposal{Text: text, CoordSpace: space}, text != ""
	case map[string]any:
		st := entity.StepProposal{
			Text:       strings.TrimSpace(stringField(v, "text", "instruction", "description", "label")),
			CoordSpace: space,
		}
		if s := stringField(v, "coordSpace", "coord_space"); s != "" {
			st.CoordSpace = entity.ParseCoordSpace(strings.ToLower(s))
		}
		if raw, ok := field(v, "targetElementIndex", "target_element_index", "elementIndex", "index"); ok {
			st.TargetElementIndex = parseIndex(raw)
		}
		if raw, ok := field(v, "overlayRect", "overlay_rect", "rect", "bbox"); ok {
			st.OverlayRect = parseRect(raw)
		}
		return st, st.Text != "" || st.TargetElementIndex != nil || st.OverlayRect != nil
	}

	return entity.StepProposal{}, false
}

func parseIndex(v any) *int {
	n, ok := number(v)
	if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return nil
	}
	i := int(n)
	return &i
}

// parseRect accepts {x,y,width,height}, {x,y,w,h}, {left,top,right,bottom}
// and [x,y,w,h]. Anything non-finite or without positive size is dropped.
func parseRect(v any) *geometry.Rect {
	var r geometry.Rect

	switch t := v.(type) {
	case []any:
		if len(t) != 4 {
			return nil
		}
		vals := make([]float64, 4)
		for i, x := range t {
			n, ok := number(x)
			if !ok {
				return nil
			}
			vals[i] = n
		}
		r = geometry.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	case map[string]any:
		if l, ok := numberField(t, "left"); ok {
			top, ok1 := numberField(t, "top")
			right, ok2 := numberField(t, "right")
			bottom, ok3 := numberField(t, "bottom")
			if !ok1 || !ok2 || !ok3 {
				return nil
			}
			r = geometry.Rect{X: l, Y: top, Width: right - l, Height: bottom - top}
			break
		}
		x, ok1 := numberField(t, "x")
		y, ok2 := numberField(t, "y")
		w, ok3 := numberField(t, "width", "w")
		h, ok4 := numberField(t, "height", "h")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil
		}
		r = geometry.Rect{X: x, Y: y, Width: w, Height: h}
	default:
		return nil
	}

	if !r.Finite() {
		return nil
	}
	return &r
}

func number(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func field(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys ...string) string {
	v, ok := field(obj, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolField(obj map[string]any, keys ...string) bool {
	v, ok := field(obj, keys...)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

func numberField(obj map[string]any, keys ...string) (float64, bool) {
	v, ok := field(obj, keys...)
	if !ok {
		return 0, false
	}
	return number(v)
}

func listField(obj map[string]any, keys ...string) ([]any, bool) {
	v, ok := field(obj, keys...)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}

// extractObject finds the first decodable JSON object in text: the whole
// text, a fenced block, or the first balanced {...} span.
func extractObject(text string) (map[string]any, bool) {
	if obj, ok := decodeObject(text); ok {
		return obj, true
	}

	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if obj, ok := decodeObject(strings.TrimSpace(rest[:end])); ok {
				return obj, true
			}
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// balancedEnd returns the index of the brace closing the one at start,
// skipping braces inside string literals, or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
