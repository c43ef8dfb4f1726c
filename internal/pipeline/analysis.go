package pipeline

import (
	"context"
	"fmt"

	"fixit/internal/llm"
	t "fixit/internal/types"
	"fixit/internal/util/jsonutil"
)

const promptAnalysis = `You are a visual troubleshooting analysis system for physical devices.

Perform FOUR analyses of the attached photo in ONE response:

1. IMAGE VALIDATION & QUALITY
   - Is this a photo of a physical electronic device? Screenshots, documents,
     people, food and artwork are NOT valid.
   - Assess quality: "good", "blurry", "dark" or "too_far".
   - If multiple devices are visible, set multiple_devices and list them.
   - If invalid, give rejection_reason and a suggestion.

2. DEVICE IDENTIFICATION (if valid)
   - Specific device_type, broader device_category.
   - brand/model ONLY if a readable label or logo is visible; otherwise
     brand "unknown", model "not visible", and brand_model_guidance telling
     the user where the label usually is.
   - device_confidence in [0,1] and confidence_level high/medium/low.
   - List every visible component.

3. QUERY UNDERSTANDING
   - Classify query_type: identify | locate | explain | troubleshoot | diagnose | unclear.
   - Choose answer_type: troubleshoot_steps | locate_only | identify_only |
     explain_only | diagnose_only | mixed | ask_clarifying_questions |
     reject_invalid_image | ask_for_better_input | safety_warning_only.
   - "what is this" style questions are mixed (explain + identify).
   - Extract target_components mentioned in the query.
   - If the query asks about components or topics this device category does
     not have, set device_query_mismatch with mismatch_reason and a few
     alternate_queries the user could ask instead.
   - If the query is ambiguous or combines incompatible intents, set
     clarification_needed with clarifying_questions.

4. SAFETY
   - Detect hazards in the query or image: fire, smoke, burning smell,
     swollen battery, sparking, exposed mains, electric shock.
   - severity "critical" blocks repair (override_answer_type true);
     severity "warning" (paper jams, hot parts, toner) only annotates.

Return ONLY valid JSON shaped as:
{
  "validation": {"is_valid": true, "image_category": "", "what_i_see": "", "image_quality": "good", "multiple_devices": false, "device_list": [], "rejection_reason": null, "suggestion": null},
  "device": {"device_type": "", "device_category": "", "brand": "", "model": "", "brand_model_guidance": null, "device_confidence": 0.0, "confidence_level": "", "components": [], "reasoning": ""},
  "query": {"query_type": "", "answer_type": "", "target_component": null, "target_components": [], "action_requested": "", "needs_localization": false, "needs_steps": false, "needs_explanation": false, "device_query_mismatch": false, "mismatch_reason": null, "alternate_queries": [], "clarification_needed": false, "clarifying_questions": [], "confidence": 0.0},
  "safety": {"safety_detected": false, "safety_severity": "none", "safety_keywords_found": [], "safety_message": null, "override_answer_type": false}
}`

// AnalysisGate is the combined validation + identification + intent + safety
// gate: a single vision call whose output drives every routing decision.
type AnalysisGate struct{ LLM llm.Client }

func (g *AnalysisGate) Run(ctx context.Context, req *t.Request) (t.Analysis, error) {
	ctx = llm.WithStage(ctx, "analysis")
	input := map[string]any{
		"query": llm.NormalizeQuery(req.Query),
	}
	if req.DeviceHint != "" {
		input["device_hint"] = req.DeviceHint
	}
	raw, err := g.LLM.GenerateVisionJSON(ctx, promptAnalysis,
		llm.Image{Data: req.ImageData, MIME: req.ImageMIME}, input)
	if err != nil {
		return t.Analysis{}, err
	}
	var out t.Analysis
	if err := jsonutil.Unmarshal(raw, &out); err != nil {
		return t.Analysis{}, fmt.Errorf("analysis JSON invalid: %w", err)
	}
	if out.Device.ConfidenceLevel == "" {
		out.Device.ConfidenceLevel = confidenceLevel(out.Device.Confidence)
	}
	return out, nil
}

func confidenceLevel(c float64) string {
	switch {
	case c >= 0.6:
		return "high"
	case c >= 0.3:
		return "medium"
	default:
		return "low"
	}
}
