package pipeline

import (
	"context"
	"fmt"
	"strings"

	"fixit/internal/llm"
	t "fixit/internal/types"
	"fixit/internal/util/jsonutil"
)

const promptLocate = `You locate components of a physical device in a photo.

For EACH requested target, decide one status:
- "found": the component is visible. Return a bounding_box in fractional
  coordinates (x_min, y_min, x_max, y_max, all in [0,1], min strictly less
  than max), a spatial_description ("top-left, above the paper tray") and a
  landmark_description relative to a nearby visible feature.
- "not_visible": the device has it but it is not in this shot (other side,
  behind a panel). suggest a reposition in suggested_action.
- "not_present": this device category does not have that component. Say so
  in suggested_action.
- "ambiguous": several candidates match. Describe them in suggested_action.

Report confidence in [0,1] per target. Never invent a bounding box for a
target that is not clearly visible.

If the target list is empty, discover the components most relevant to the
user's question yourself and localize those instead.

Return ONLY valid JSON:
{"results": [{"target": "", "status": "found", "bounding_box": {"x_min": 0.0, "y_min": 0.0, "x_max": 0.0, "y_max": 0.0}, "spatial_description": "", "landmark_description": "", "suggested_action": null, "confidence": 0.0}]}`

// LocateGate resolves every target component to a bounding box or an
// explicit miss status. Targets come from the intent; when the intent names
// none the model discovers relevant components from the query.
type LocateGate struct{ LLM llm.Client }

func (g *LocateGate) Run(ctx context.Context, req *t.Request, a *t.Analysis) (t.Localization, error) {
	ctx = llm.WithStage(ctx, "localize")
	targets := gatherTargets(a)
	input := map[string]any{
		"query":       llm.NormalizeQuery(req.Query),
		"device_type": a.Device.Type,
		"targets":     targets,
	}
	raw, err := g.LLM.GenerateVisionJSON(ctx, promptLocate,
		llm.Image{Data: req.ImageData, MIME: req.ImageMIME}, input)
	if err != nil {
		return t.Localization{}, err
	}
	var out t.Localization
	if err := jsonutil.Unmarshal(raw, &out); err != nil {
		return t.Localization{}, fmt.Errorf("localization JSON invalid: %w", err)
	}
	sanitizeLocalization(&out)
	return out, nil
}

// gatherTargets merges the singular and plural target fields, deduplicating
// case-insensitively while preserving order.
func gatherTargets(a *t.Analysis) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		k := strings.ToLower(s)
		if !seen[k] {
			seen[k] = true
			targets = append(targets, s)
		}
	}
	add(a.Intent.TargetComponent)
	for _, c := range a.Intent.TargetComponents {
		add(c)
	}
	return targets
}

// sanitizeLocalization enforces the box invariant: only found results carry
// a box, and a malformed box downgrades its result to ambiguous.
func sanitizeLocalization(loc *t.Localization) {
	for i := range loc.Results {
		r := &loc.Results[i]
		if r.Status != t.LocFound {
			r.Box = nil
			continue
		}
		if r.Box == nil || !r.Box.WellFormed() {
			r.Box = nil
			r.Status = t.LocAmbiguous
			if r.SuggestedAction == "" {
				r.SuggestedAction = "Could not pin down an exact location. Try a closer, straight-on photo."
			}
		}
	}
}
