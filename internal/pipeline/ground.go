package pipeline

import (
	"context"
	"strings"

	"fixit/internal/llm"
	t "fixit/internal/types"
	"fixit/internal/util/jsonutil"
)

const promptGround = `You retrieve manufacturer-grade knowledge for a device repair question.

Given the device identification and the user's question, produce guidance a
service manual would give: model-specific procedures, known issues, official
reset sequences, firmware or driver notes.

Cite sources: for each fact that comes from manufacturer documentation or a
well-known support resource, list the url and title. If you cannot ground
the answer in real sources, set grounded to false and leave sources empty.

Return ONLY valid JSON:
{"grounded": false, "grounded_guidance": "", "sources": [{"url": "", "title": ""}], "sources_summary": ""}`

// Generic hobby hardware where web lookup adds nothing over what the model
// already knows.
var genericDevices = []string{
	"arduino", "breadboard", "generic", "usb cable", "prototype board",
}

var groundingKeywords = []string{
	"latest", "official", "manufacturer", "firmware", "driver", "update",
	"specs", "specification", "manual", "warranty", "recall", "model number",
	"error code", "datasheet",
}

// GroundGate enriches content generation with researched, cited guidance.
// It is strictly best-effort: any failure degrades to ungrounded output.
type GroundGate struct {
	LLM     llm.Client
	Enabled bool
}

// ShouldRun decides whether grounding is worth an inference call for this
// request. Identification, localization and short-circuit answers never
// need it; content answers do when the query asks for authoritative info or
// the device is a known brand and model.
func (g *GroundGate) ShouldRun(a *t.Analysis, query string) bool {
	if !g.Enabled {
		return false
	}
	switch a.Intent.AnswerType {
	case t.AnswerLocateOnly, t.AnswerIdentifyOnly, t.AnswerClarify,
		t.AnswerRejectImage, t.AnswerBetterInput, t.AnswerSafetyOnly:
		return false
	}
	dev := strings.ToLower(a.Device.Type + " " + a.Device.Brand + " " + a.Device.Model)
	for _, generic := range genericDevices {
		if strings.Contains(dev, generic) {
			return false
		}
	}
	q := strings.ToLower(query)
	for _, kw := range groundingKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	if knownBrandModel(a.Device) {
		return true
	}
	return a.Intent.AnswerType.NeedsContent()
}

func knownBrandModel(d t.Device) bool {
	brand := strings.ToLower(strings.TrimSpace(d.Brand))
	model := strings.ToLower(strings.TrimSpace(d.Model))
	if brand == "" || brand == "unknown" {
		return false
	}
	return model != "" && model != "not visible" && model != "unknown"
}

// Run performs the grounding call. Errors are swallowed into an ungrounded
// result; the caller only sees a warning string.
func (g *GroundGate) Run(ctx context.Context, req *t.Request, a *t.Analysis) (t.Grounding, string) {
	ctx = llm.WithStage(ctx, "ground")
	input := map[string]any{
		"query":        llm.NormalizeQuery(req.Query),
		"device_type":  a.Device.Type,
		"brand":        a.Device.Brand,
		"model":        a.Device.Model,
		"answer_type":  a.Intent.AnswerType,
	}
	raw, err := g.LLM.GenerateJSON(ctx, promptGround, input)
	if err != nil {
		return t.Grounding{}, "web grounding unavailable: " + err.Error()
	}
	var out t.Grounding
	if err := jsonutil.Unmarshal(raw, &out); err != nil {
		return t.Grounding{}, "web grounding returned invalid JSON"
	}
	if out.Grounded && len(out.Sources) == 0 {
		out.Grounded = false
	}
	return out, ""
}
