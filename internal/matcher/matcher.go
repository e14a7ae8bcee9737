package matcher

import (
	"slices"
	"sort"
	"strings"

	"webguide/internal/entity"
)

// Hints is the page context the positional terms are computed against.
type Hints struct {
	Layout   entity.LayoutHints
	Viewport entity.ViewportContext
}

type Candidate struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Query is a step text prepared for scoring.
type Query struct {
	Text           string
	Tokens         []string
	Phrases        []string
	MentionsButton bool
	Intents        []string
}

type Matcher struct {
	weights Weights
}

func New(weights Weights) *Matcher {
	return &Matcher{weights: weights}
}

func (m *Matcher) Weights() Weights { return m.weights }

func (m *Matcher) Threshold() float64 { return m.weights.Threshold }

func (m *Matcher) NewQuery(stepText string) Query {
	text := Normalize(stepText)
	q := Query{
		Text:    text,
		Tokens:  Tokens(text),
		Phrases: Phrases(text),
	}
	_, q.MentionsButton = containsAny(text, m.weights.ButtonMentions)
	for _, k := range m.weights.IntentKeywords {
		if k != "" && strings.Contains(text, k) {
			q.Intents = append(q.Intents, k)
		}
	}

	return q
}

// Eligible applies the phrase hard filter: when the query quotes anything,
// only elements whose text contains at least one quoted phrase qualify.
func (q Query) Eligible(elementText string) bool {
	if len(q.Phrases) == 0 {
		return true
	}
	_, ok := containsAny(elementText, q.Phrases)
	return ok
}

// Score is the additive score of el for q. The phrase filter is not applied
// here; see Eligible.
func (m *Matcher) Score(q Query, el entity.ElementDescriptor, hints Hints) float64 {
	score, _ := m.score(q, el, hints)
	return score
}

// score also returns how many tokens and phrases hit the element text.
func (m *Matcher) score(q Query, el entity.ElementDescriptor, hints Hints) (float64, int) {
	w := m.weights
	text := Normalize(el.Text)
	score := 0.0
	hits := 0

	for _, tok := range q.Tokens {
		if strings.Contains(text, tok) {
			score += w.Token
			hits++
		}
	}
	for _, p := range q.Phrases {
		if strings.Contains(text, p) {
			score += w.Phrase
			hits++
		}
	}

	buttonLike := IsButtonLike(el)
	if buttonLike {
		score += w.Button
	} else if q.MentionsButton {
		score += w.NotButton
	}

	if el.Hidden() {
		score += w.Hidden
	}

	r := el.Rect
	if r.Width >= w.MinWidth && r.Height >= w.MinHeight {
		score += w.UsableSize
	}

	if el.InNav {
		score += w.Nav
	}
	if el.InHeader {
		score += w.Header
	}

	cx, cy := r.Center()
	if lay := hints.Layout; lay.MainLeft > 0 || lay.MainRight > 0 {
		switch {
		case lay.MainLeft > 0 && cx < lay.MainLeft:
			score += w.LeftOfMain
		case lay.MainRight <= 0 || cx <= lay.MainRight:
			score += w.InsideMain
		}
	}

	if vp := hints.Viewport; vp.ViewportWidth > 0 && vp.ViewportHeight > 0 {
		vx, vy := cx-vp.ScrollX, cy-vp.ScrollY
		slop := w.ViewportSlop
		if vx >= -slop && vx <= vp.ViewportWidth+slop && vy >= -slop && vy <= vp.ViewportHeight+slop {
			score += w.InViewport
		}

		top := r.Y - vp.ScrollY
		if top >= -slop && top < w.MastheadBand {
			score += w.Masthead
		}

		if r.Width > w.OversizeFrac*vp.ViewportWidth || r.Height > w.OversizeFrac*vp.ViewportHeight {
			score += w.Oversize
		}
	}

	if area := r.Area(); area > 0 {
		score += min(area/w.AreaUnit, w.AreaCap)
	}

	if isCallToActionColor(el.StyleHints.BackgroundColor) {
		score += w.CallToAction
	}

	if len(q.Intents) > 0 {
		if _, ok := containsAny(text, q.Intents); ok {
			score += w.KeywordIntent
		}
	}

	return score, hits
}

// Rank scores every eligible element, best first. Equal scores keep summary
// order. Elements sharing no word with the step are left out: structural
// bonuses alone never make a target.
func (m *Matcher) Rank(stepText string, summary entity.ElementSummary, hints Hints) []Candidate {
	return m.rank(m.NewQuery(stepText), summary, hints)
}

func (m *Matcher) rank(q Query, summary entity.ElementSummary, hints Hints) []Candidate {
	out := make([]Candidate, 0, summary.Len())
	for i, el := range summary.Elements {
		if !q.Eligible(Normalize(el.Text)) {
			continue
		}
		score, hits := m.score(q, el, hints)
		if hits == 0 {
			continue
		}
		out = append(out, Candidate{Index: i, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	return out
}

// Match returns the best unclaimed candidate scoring at least the threshold.
func (m *Matcher) Match(stepText string, summary entity.ElementSummary, hints Hints, claimed map[int]bool) (Candidate, bool) {
	for _, c := range m.Rank(stepText, summary, hints) {
		if c.Score < m.weights.Threshold {
			break
		}
		if claimed[c.Index] {
			continue
		}
		return c, true
	}

	return Candidate{}, false
}

// MatchSteps matches steps in order; an element claimed by an earlier step is
// never offered to a later one. Entries are nil where nothing qualified.
func (m *Matcher) MatchSteps(stepTexts []string, summary entity.ElementSummary, hints Hints) []*Candidate {
	claimed := make(map[int]bool, len(stepTexts))
	out := make([]*Candidate, len(stepTexts))

	for i, text := range stepTexts {
		c, ok := m.Match(text, summary, hints, claimed)
		if !ok {
			continue
		}
		claimed[c.Index] = true
		out[i] = &c
	}

	return out
}

var buttonRoles = []string{"button", "menuitem", "menuitemcheckbox", "menuitemradio", "tab", "option"}

var buttonClassHints = []string{"btn", "button", "menu-item", "menuitem"}

// IsButtonLike uses tag, role and class, in that order.
func IsButtonLike(el entity.ElementDescriptor) bool {
	if el.IsButton {
		return true
	}

	switch strings.ToLower(el.Tag) {
	case "button", "summary":
		return true
	}

	if slices.Contains(buttonRoles, strings.ToLower(el.Role)) {
		return true
	}

	class := strings.ToLower(el.Class)
	_, ok := containsAny(class, buttonClassHints)

	return ok
}
