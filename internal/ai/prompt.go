package ai

import (
	"fmt"
	"strings"

	"webguide/internal/entity"
)

const (
	proposeToolName = "propose_guide"
	maxPromptText   = 80
)

const systemPrompt = `You guide a person through a web page. You never act on the page yourself.
Given their instruction, the page's interactive elements and a screenshot, reply with the next
one to three steps they should take, each pointing at the element to interact with.

Rules:
- Prefer targetElementIndex, the index from the element list, over rectangles.
- Only give overlayRect when no listed element fits; say which coordSpace it is in
  ("document", "viewport" or "screenshot").
- Keep each step text short and quote the exact visible label, e.g. Click "Launch instance".
- Do not point at navigation menus or page headers unless the step really is there.
- If the instruction is a question that needs no clicking, set guideKind to "answer" and
  put the answer in explanation.
- If earlier steps already completed the task, set done to true with no steps.`

func proposeToolSchema() map[string]any {
	rect := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":      map[string]any{"type": "number"},
			"y":      map[string]any{"type": "number"},
			"width":  map[string]any{"type": "number"},
			"height": map[string]any{"type": "number"},
		},
		"required": []string{"x", "y", "width", "height"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"guideKind": map[string]any{
				"type": "string",
				"enum": []string{string(entity.GuideKindSteps), string(entity.GuideKindAnswer)},
			},
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":               map[string]any{"type": "string"},
						"targetElementIndex": map[string]any{"type": "integer"},
						"overlayRect":        rect,
					},
					"required": []string{"text"},
				},
			},
			"coordSpace": map[string]any{
				"type": "string",
				"enum": []string{"document", "viewport", "screenshot"},
			},
			"explanation": map[string]any{"type": "string"},
			"done":        map[string]any{"type": "boolean"},
		},
		"required": []string{"guideKind"},
	}
}

// buildUserPrompt renders the request as plain text. Element rects are given
// in document pixels so indices and rectangles agree.
func buildUserPrompt(req entity.InstructionRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Instruction: %s\n", req.InstructionText)
	if req.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", req.URL)
	}

	vp := req.ViewportContext
	fmt.Fprintf(&b, "Viewport: %.0fx%.0f, scroll (%.0f, %.0f), devicePixelRatio %.2g\n",
		vp.ViewportWidth, vp.ViewportHeight, vp.ScrollX, vp.ScrollY, vp.DPR())
	if vp.ScreenshotPixelWidth > 0 {
		fmt.Fprintf(&b, "Screenshot: %.0fx%.0f pixels of the visible viewport\n",
			vp.ScreenshotPixelWidth, vp.ScreenshotPixelHeight)
	}

	if p := req.PriorProgress; p != nil {
		b.WriteString("\nThe person just completed these steps:\n")
		for i, text := range p.StepTexts {
			target := ""
			if i < len(p.TargetIndexes) && p.TargetIndexes[i] >= 0 {
				target = fmt.Sprintf(" (element %d)", p.TargetIndexes[i])
			}
			fmt.Fprintf(&b, "  %d. %s%s\n", i+1, text, target)
		}
		if p.PreviousURL != "" && p.PreviousURL != req.URL {
			fmt.Fprintf(&b, "The page changed from %s.\n", p.PreviousURL)
		}
		b.WriteString("Give the steps that follow. Do not repeat completed ones.\n")
	}

	b.WriteString("\nElements (index | tag | text | flags | x,y,w,h):\n")
	for i, el := range req.ElementSummary.Elements {
		var flags []string
		if el.IsButton {
			flags = append(flags, "button")
		}
		if el.Role != "" {
			flags = append(flags, "role="+el.Role)
		}
		if el.InNav {
			flags = append(flags, "nav")
		}
		if el.InHeader {
			flags = append(flags, "header")
		}
		if el.Hidden() {
			flags = append(flags, "hidden")
		}
		fmt.Fprintf(&b, "%d | %s | %s | %s | %.0f,%.0f,%.0f,%.0f\n",
			i, el.Tag, truncate(el.Text, maxPromptText), strings.Join(flags, ","),
			el.Rect.X, el.Rect.Y, el.Rect.Width, el.Rect.Height)
	}

	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
