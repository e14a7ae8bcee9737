package browser

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/playwright-community/playwright-go"

	"webguide/pkg/apperr"
)

const screenshotQuality = 70

// screenshot captures the visible viewport and returns it with its pixel
// size after downscaling. These pixel dimensions define screenshot space.
func (m *Manager) screenshot(ctx context.Context) ([]byte, int, int, error) {
	const op = "screenshot"

	if err := ctx.Err(); err != nil {
		return nil, 0, 0, apperr.Wrap(op, apperr.CodeTimeout, err, nil)
	}

	page, err := m.activePage()
	if err != nil {
		return nil, 0, 0, err
	}

	raw, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(screenshotQuality),
	})
	if err != nil {
		return nil, 0, 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
		})
	}

	return downscale(raw, m.config.BrowserConfig.ScreenshotMaxWidth)
}

// downscale shrinks img to at most maxWidth pixels wide, keeping the aspect
// ratio. Images already narrow enough are returned untouched.
func downscale(raw []byte, maxWidth uint) ([]byte, int, int, error) {
	const op = "downscale"

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "decode_screenshot_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
		})
	}

	if maxWidth == 0 || cfg.Width <= int(maxWidth) {
		return raw, cfg.Width, cfg.Height, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "decode_screenshot_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
		})
	}

	resized := resize.Resize(maxWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: screenshotQuality}); err != nil {
		return nil, 0, 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "encode_screenshot_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
		})
	}

	b := resized.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
