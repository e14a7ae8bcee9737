package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"webguide/internal/entity"
	"webguide/internal/tracker"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
)

// callRuntime runs one method of the page runtime. The runtime is normally
// present from the init script; a document that predates it gets it
// installed on first use.
func (m *Manager) callRuntime(ctx context.Context, op, method string, payload any, out any) error {
	arg := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "encode_payload_failed",
				apperr.MetaStage:  apperr.StageRender,
			})
		}
		arg = string(raw)
	}

	for attempt := 0; attempt < 2; attempt++ {
		result, err := m.evaluate(ctx, op, runtimeCall, []any{method, arg})
		if err != nil {
			return err
		}

		if result != nil {
			return decodeJSONResult(op, result, out)
		}

		m.logger.Debug("Installing overlay runtime", zap.String(logg.Operation, op))
		if _, err := m.evaluate(ctx, op, runtimeScript); err != nil {
			return err
		}
	}

	return apperr.Wrap(op, apperr.CodeUnavailable, errRuntimeMissing, map[string]any{
		apperr.MetaReason: "runtime_missing",
		apperr.MetaStage:  apperr.StageRender,
	})
}

func (m *Manager) MountOverlays(ctx context.Context, placements []tracker.Placement) ([]entity.AnchorBinding, error) {
	var bindings []entity.AnchorBinding
	if err := m.callRuntime(ctx, "MountOverlays", "mount", placements, &bindings); err != nil {
		return nil, err
	}

	return bindings, nil
}

func (m *Manager) ReadAnchors(ctx context.Context, anchorIDs []string) (map[string]tracker.AnchorRead, error) {
	reads := make(map[string]tracker.AnchorRead, len(anchorIDs))
	if err := m.callRuntime(ctx, "ReadAnchors", "read", anchorIDs, &reads); err != nil {
		return nil, err
	}

	return reads, nil
}

func (m *Manager) PlaceOverlays(ctx context.Context, placements []tracker.Placement) error {
	return m.callRuntime(ctx, "PlaceOverlays", "place", placements, nil)
}

func (m *Manager) ClearOverlays(ctx context.Context) error {
	if !m.IsReady() {
		return nil
	}

	return m.callRuntime(ctx, "ClearOverlays", "clear", nil, nil)
}

func (m *Manager) OverlayCount(ctx context.Context) (int, error) {
	var n int
	if err := m.callRuntime(ctx, "OverlayCount", "count", nil, &n); err != nil {
		return 0, err
	}

	return n, nil
}

func (m *Manager) Viewport(ctx context.Context) (entity.ViewportContext, error) {
	const op = "Viewport"

	var vp entity.ViewportContext

	result, err := m.evaluate(ctx, op, viewportScript)
	if err != nil {
		return vp, err
	}

	if err := decodeJSONResult(op, result, &vp); err != nil {
		return vp, err
	}

	return vp, nil
}

// decodeJSONResult decodes a JSON string returned by an evaluated script.
func decodeJSONResult(op string, result any, out any) error {
	raw, ok := result.(string)
	if !ok {
		return apperr.Wrap(op, apperr.CodeInternal, fmt.Errorf("unexpected result type %T", result), map[string]any{
			apperr.MetaReason: "unexpected_result_type",
		})
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "decode_result_failed",
		})
	}

	return nil
}
