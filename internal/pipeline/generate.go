package pipeline

import (
	"context"
	"fmt"

	"fixit/internal/llm"
	t "fixit/internal/types"
	"fixit/internal/util/jsonutil"
)

const promptGenerate = `You write troubleshooting content for a physical device, grounded in an
already-completed analysis of the user's photo.

Depending on answer_type:
- troubleshoot_steps: produce a diagnosis (issue, severity low/medium/high/critical,
  possible_causes) and ordered troubleshooting_steps. Each step has step_number,
  a single concrete instruction, estimate_minutes (a positive integer), an
  optional component_ref naming a localized component, and an optional caution.
  Steps must be safe for a non-technician; never instruct opening mains-powered
  equipment.
- diagnose_only: produce the diagnosis only, no steps.
- explain_only: produce an explanation of what the device or component is and
  how it works, no steps.
- mixed: produce an explanation plus a diagnosis plus steps where they help.

If the diagnosis involves any hazard, set diagnosis.safety_warning.
Where grounded_guidance is provided, prefer it over general knowledge and keep
model-specific details intact.

Return ONLY valid JSON:
{"diagnosis": {"issue": "", "severity": "low", "safety_warning": null, "possible_causes": []}, "troubleshooting_steps": [{"step_number": 1, "instruction": "", "estimate_minutes": 1, "component_ref": null, "caution": null}], "explanation": ""}`

// GenerateGate produces the user-facing content: diagnosis, ordered steps,
// explanation, per the answer type the analysis selected.
type GenerateGate struct{ LLM llm.Client }

func (g *GenerateGate) Run(ctx context.Context, req *t.Request, a *t.Analysis, loc *t.Localization, gr *t.Grounding) (t.Content, error) {
	ctx = llm.WithStage(ctx, "generate")
	input := map[string]any{
		"query":       llm.NormalizeQuery(req.Query),
		"answer_type": a.Intent.AnswerType,
		"device":      a.Device,
	}
	if loc != nil && len(loc.Results) > 0 {
		input["localization"] = loc.Results
	}
	if gr != nil && gr.Grounded {
		input["grounded_guidance"] = gr.Guidance
		input["sources_summary"] = gr.Summary
	}
	raw, err := g.LLM.GenerateJSON(ctx, promptGenerate, input)
	if err != nil {
		return t.Content{}, err
	}
	var out t.Content
	if err := jsonutil.Unmarshal(raw, &out); err != nil {
		return t.Content{}, fmt.Errorf("content JSON invalid: %w", err)
	}
	renumberSteps(out.Steps)
	return out, nil
}

// renumberSteps guarantees 1-based contiguous step numbers and a positive
// time estimate regardless of what the model returned.
func renumberSteps(steps []t.Step) {
	for i := range steps {
		steps[i].Number = i + 1
		if steps[i].EstimateMinutes < 1 {
			steps[i].EstimateMinutes = 1
		}
	}
}
