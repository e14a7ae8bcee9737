package matcher

import (
	"math"
	"strconv"
	"strings"
)

// isCallToActionColor reports a warm, saturated, mid-lightness colour, which
// is how primary action buttons are usually painted.
func isCallToActionColor(css string) bool {
	r, g, b, ok := parseCSSColor(css)
	if !ok {
		return false
	}

	h, s, l := toHSL(r, g, b)
	warm := h <= 50 || h >= 340

	return warm && s >= 0.4 && l >= 0.3 && l <= 0.7
}

// parseCSSColor understands the forms getComputedStyle returns (rgb/rgba)
// plus hex. Fully transparent colours are reported as absent.
func parseCSSColor(css string) (r, g, b float64, ok bool) {
	css = strings.TrimSpace(strings.ToLower(css))

	if hex, found := strings.CutPrefix(css, "#"); found {
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return 0, 0, 0, false
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, 0, 0, false
		}
		return float64(v >> 16 & 0xff), float64(v >> 8 & 0xff), float64(v & 0xff), true
	}

	open := strings.IndexByte(css, '(')
	if open < 0 || !strings.HasSuffix(css, ")") {
		return 0, 0, 0, false
	}
	fn := css[:open]
	if fn != "rgb" && fn != "rgba" {
		return 0, 0, 0, false
	}

	parts := strings.FieldsFunc(css[open+1:len(css)-1], func(c rune) bool {
		return c == ',' || c == ' ' || c == '/'
	})
	if len(parts) < 3 {
		return 0, 0, 0, false
	}

	var ch [4]float64
	ch[3] = 1
	for i := 0; i < len(parts) && i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSuffix(parts[i], "%"), 64)
		if err != nil {
			return 0, 0, 0, false
		}
		if strings.HasSuffix(parts[i], "%") {
			if i == 3 {
				v /= 100
			} else {
				v = v * 255 / 100
			}
		}
		ch[i] = v
	}

	if ch[3] <= 0 {
		return 0, 0, 0, false
	}

	return ch[0], ch[1], ch[2], true
}

// toHSL returns hue in degrees and saturation/lightness in [0, 1].
func toHSL(r, g, b float64) (h, s, l float64) {
	r, g, b = r/255, g/255, b/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l = (hi + lo) / 2

	if hi == lo {
		return 0, 0, l
	}

	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}

	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}

	return h * 60, s, l
}
