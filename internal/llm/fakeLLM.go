package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
)

// FakeClient returns deterministic, minimal JSON payloads per stage for
// offline use and tests. Payloads can be overridden per stage via Responses;
// otherwise the analysis default routes on a few query keywords so pipeline
// tests can exercise every terminal state without scripting.
type FakeClient struct {
	// Responses overrides the canned payload for a stage tag.
	Responses map[string]json.RawMessage
	// Err, when set, is returned by every call.
	Err error

	calls atomic.Int64
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls reports how many calls reached the fake (cache-hit assertions).
func (f *FakeClient) Calls() int64 { return f.calls.Load() }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return f.generate(ctx, input)
}

func (f *FakeClient) GenerateVisionJSON(ctx context.Context, prompt string, img Image, input any) (json.RawMessage, error) {
	return f.generate(ctx, input)
}

func (f *FakeClient) generate(ctx context.Context, input any) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	stage := StageFrom(ctx)
	if raw, ok := f.Responses[stage]; ok {
		return raw, nil
	}
	var obj any
	switch stage {
	case "analysis":
		obj = fakeAnalysis(queryFrom(input))
	case "localize":
		obj = map[string]any{
			"results": []any{
				map[string]any{
					"target":              "reset button",
					"status":              "found",
					"bounding_box":        map[string]any{"x_min": 0.1, "y_min": 0.2, "x_max": 0.3, "y_max": 0.4},
					"spatial_description": "lower left, next to the power port",
					"confidence":          0.9,
				},
			},
		}
	case "ground":
		obj = map[string]any{
			"grounded":          true,
			"grounded_guidance": "fake grounded guidance",
			"sources": []any{
				map[string]any{"url": "https://support.example.com/guide", "title": "Official guide"},
			},
		}
	case "generate":
		obj = map[string]any{
			"diagnosis": map[string]any{
				"issue":           "paper feed obstruction",
				"severity":        "medium",
				"possible_causes": []string{"jammed sheet", "worn pickup roller"},
			},
			"troubleshooting_steps": []any{
				map[string]any{"step_number": 1, "instruction": "Power off the device.", "estimate_minutes": 1},
				map[string]any{"step_number": 2, "instruction": "Open the rear access panel.", "estimate_minutes": 2},
				map[string]any{"step_number": 3, "instruction": "Pull the jammed sheet out slowly.", "estimate_minutes": 2, "component_ref": "rear access panel"},
			},
			"explanation": "fake explanation",
		}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}

func queryFrom(input any) string {
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	q, _ := m["query"].(string)
	return strings.ToLower(q)
}

func fakeAnalysis(query string) map[string]any {
	validation := map[string]any{
		"is_valid":       true,
		"image_category": "printer",
		"what_i_see":     "a laser printer on a desk",
		"image_quality":  "good",
	}
	device := map[string]any{
		"device_type":       "Laser Printer",
		"device_category":   "printing",
		"brand":             "unknown",
		"model":             "not visible",
		"device_confidence": 0.85,
		"confidence_level":  "high",
		"components":        []string{"paper tray", "rear access panel", "control panel"},
	}
	intent := map[string]any{
		"query_type":         "troubleshoot",
		"answer_type":        "troubleshoot_steps",
		"needs_localization": true,
		"needs_steps":        true,
		"confidence":         0.9,
	}
	safety := map[string]any{
		"safety_detected": false,
		"safety_severity": "none",
	}
	switch {
	case strings.Contains(query, "smoke") || strings.Contains(query, "burning"):
		safety = map[string]any{
			"safety_detected":      true,
			"safety_severity":      "critical",
			"safety_message":       "STOP. Disconnect power and contact a professional.",
			"override_answer_type": true,
		}
	case strings.Contains(query, "screenshot") || strings.Contains(query, "document"):
		validation = map[string]any{
			"is_valid":         false,
			"image_category":   "screenshot",
			"what_i_see":       "a screenshot of a user interface",
			"rejection_reason": "Not a physical device.",
			"suggestion":       "Please upload a photo of the device itself.",
		}
		intent["answer_type"] = "reject_invalid_image"
	case strings.Contains(query, "where is"):
		intent = map[string]any{
			"query_type":         "locate",
			"answer_type":        "locate_only",
			"target_components":  []string{"reset button"},
			"needs_localization": true,
			"confidence":         0.9,
		}
	}
	return map[string]any{
		"validation": validation,
		"device":     device,
		"query":      intent,
		"safety":     safety,
	}
}
