package assemble

import (
	"fmt"
	"strings"
	"time"

	t "fixit/internal/types"
)

// SchemaError means the assembled response violated its own contract. It is
// an internal defect: callers log it and return a generic failure, never the
// violation detail.
type SchemaError struct{ Detail string }

func (e *SchemaError) Error() string { return "response schema violation: " + e.Detail }

// Assembler folds gate outputs into the final response envelope and
// validates it before release.
type Assembler struct{}

// Build assembles a successful (business-outcome) response. The answer type
// decides which sections are carried; everything else is dropped so a
// short-circuit answer never leaks partial pipeline output.
func (as *Assembler) Build(req *t.Request, a *t.Analysis, loc *t.Localization, gr *t.Grounding, c *t.Content, warnings []string, elapsed time.Duration) (*t.Response, error) {
	at := a.Intent.AnswerType
	resp := &t.Response{
		RequestID:  req.ID,
		AnswerType: at,
		Status:     statusFor(at),
		ElapsedMS:  elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	switch at {
	case t.AnswerRejectImage:
		resp.Message = a.Validation.RejectionReason
		if resp.Message == "" {
			resp.Message = "This does not look like a photo of a physical device."
		}
		if a.Validation.Suggestion != "" {
			resp.Message += " " + a.Validation.Suggestion
		}
	case t.AnswerBetterInput:
		resp.Message = betterInputMessage(a.Validation.ImageQuality)
		if a.Validation.Suggestion != "" {
			resp.Message += " " + a.Validation.Suggestion
		}
	case t.AnswerSafetyOnly:
		resp.SafetyWarning = a.Safety.Message
		if resp.SafetyWarning == "" {
			resp.SafetyWarning = "A potential hazard was detected. Stop using the device and contact a qualified technician."
		}
		resp.Message = resp.SafetyWarning
		resp.Device = deviceIfIdentified(a)
	case t.AnswerClarify:
		resp.ClarifyingQuestions = a.Intent.ClarifyingQuestions
		resp.SuggestedQueries = a.Intent.AlternateQueries
		if len(resp.ClarifyingQuestions) == 0 {
			resp.ClarifyingQuestions = []string{"Could you describe what you want to do with this device?"}
		}
		resp.Message = a.Intent.MismatchReason
		resp.Device = deviceIfIdentified(a)
	default:
		resp.Device = &a.Device
		if loc != nil {
			resp.Localization = loc.Results
		}
		if c != nil {
			resp.Diagnosis = c.Diagnosis
			resp.Steps = c.Steps
			resp.Explanation = c.Explanation
			if c.Diagnosis != nil && c.Diagnosis.SafetyWarning != "" {
				resp.SafetyWarning = c.Diagnosis.SafetyWarning
			}
		}
		if a.Safety.Detected && resp.SafetyWarning == "" {
			resp.SafetyWarning = a.Safety.Message
		}
		if gr != nil && gr.Grounded {
			resp.GroundingUsed = true
			resp.GroundingSources = gr.Sources
		}
	}

	resp.Warnings = warnings
	resp.AudioInstructions = Narrate(resp)
	if err := Validate(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Failure builds an infrastructure-failure envelope. Partial device info is
// carried when identification completed before the failure.
func (as *Assembler) Failure(req *t.Request, status t.ResponseStatus, msg string, a *t.Analysis, elapsed time.Duration) *t.Response {
	resp := &t.Response{
		RequestID: req.ID,
		Status:    status,
		Message:   msg,
		ElapsedMS: elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if a != nil {
		resp.Device = deviceIfIdentified(a)
	}
	if status == t.StatusQuotaExceeded {
		resp.RetryAfter = "tomorrow"
	}
	resp.AudioInstructions = Narrate(resp)
	return resp
}

func statusFor(at t.AnswerType) t.ResponseStatus {
	switch at {
	case t.AnswerRejectImage:
		return t.StatusRejected
	case t.AnswerBetterInput:
		return t.StatusNeedsBetterInput
	case t.AnswerClarify:
		return t.StatusNeedsClarification
	case t.AnswerSafetyOnly:
		return t.StatusSafetyWarning
	}
	return t.StatusOK
}

func betterInputMessage(q t.ImageQuality) string {
	switch q {
	case t.QualityBlurry:
		return "The photo is too blurry to analyze. Hold the camera steady and try again."
	case t.QualityDark:
		return "The photo is too dark to analyze. Turn on a light or use the flash and try again."
	case t.QualityTooFar:
		return "The device is too far away to analyze. Move closer so it fills the frame."
	}
	return "The photo could not be analyzed. Please retake it."
}

func deviceIfIdentified(a *t.Analysis) *t.Device {
	if a.Device.Type == "" {
		return nil
	}
	d := a.Device
	return &d
}

// Validate enforces the response contract: a valid answer type on success
// statuses, well-formed boxes only on found localizations, numbered steps
// with positive estimates, and a safety warning present on safety answers.
func Validate(resp *t.Response) error {
	if resp.RequestID == "" {
		return &SchemaError{Detail: "missing request_id"}
	}
	if !resp.AnswerType.Valid() {
		return &SchemaError{Detail: fmt.Sprintf("unknown answer_type %q", resp.AnswerType)}
	}
	for _, r := range resp.Localization {
		if r.Status == t.LocFound {
			if r.Box == nil {
				return &SchemaError{Detail: fmt.Sprintf("found localization %q without bounding box", r.Target)}
			}
			if !r.Box.WellFormed() {
				return &SchemaError{Detail: fmt.Sprintf("malformed bounding box for %q", r.Target)}
			}
		} else if r.Box != nil {
			return &SchemaError{Detail: fmt.Sprintf("bounding box on %s localization %q", r.Status, r.Target)}
		}
	}
	for i, s := range resp.Steps {
		if s.Number != i+1 {
			return &SchemaError{Detail: fmt.Sprintf("step %d numbered %d", i+1, s.Number)}
		}
		if s.Instruction == "" {
			return &SchemaError{Detail: fmt.Sprintf("step %d has no instruction", s.Number)}
		}
		if s.EstimateMinutes < 1 {
			return &SchemaError{Detail: fmt.Sprintf("step %d has non-positive estimate", s.Number)}
		}
	}
	switch resp.AnswerType {
	case t.AnswerSafetyOnly:
		if resp.SafetyWarning == "" {
			return &SchemaError{Detail: "safety answer without safety_warning"}
		}
		if len(resp.Steps) > 0 {
			return &SchemaError{Detail: "safety answer carries troubleshooting steps"}
		}
	case t.AnswerRejectImage, t.AnswerBetterInput:
		if len(resp.Steps) > 0 || len(resp.Localization) > 0 {
			return &SchemaError{Detail: "rejection answer carries pipeline output"}
		}
	case t.AnswerClarify:
		if len(resp.ClarifyingQuestions) == 0 {
			return &SchemaError{Detail: "clarification answer without questions"}
		}
	case t.AnswerTroubleshootSteps:
		if resp.Status == t.StatusOK && len(resp.Steps) == 0 {
			return &SchemaError{Detail: "troubleshoot answer without steps"}
		}
	}
	return nil
}

// Narrate renders the response as a plain spoken script for audio playback.
// Markup-free, one sentence per clause, steps read in order.
func Narrate(resp *t.Response) string {
	var b strings.Builder
	if resp.SafetyWarning != "" {
		b.WriteString("Safety warning. ")
		b.WriteString(sentence(resp.SafetyWarning))
	}
	if resp.AnswerType == t.AnswerSafetyOnly {
		return strings.TrimSpace(b.String())
	}
	if resp.Message != "" && len(resp.Steps) == 0 && resp.Explanation == "" {
		b.WriteString(sentence(resp.Message))
	}
	if resp.Device != nil && resp.Device.Type != "" && resp.Status == t.StatusOK {
		b.WriteString("This looks like a ")
		b.WriteString(resp.Device.Type)
		b.WriteString(". ")
	}
	if resp.Explanation != "" {
		b.WriteString(sentence(resp.Explanation))
	}
	if resp.Diagnosis != nil && resp.Diagnosis.Issue != "" {
		b.WriteString("Likely issue: ")
		b.WriteString(sentence(resp.Diagnosis.Issue))
	}
	for _, s := range resp.Steps {
		fmt.Fprintf(&b, "Step %d. %s", s.Number, sentence(s.Instruction))
		if s.Caution != "" {
			b.WriteString("Caution: ")
			b.WriteString(sentence(s.Caution))
		}
	}
	for _, q := range resp.ClarifyingQuestions {
		b.WriteString(sentence(q))
	}
	return strings.TrimSpace(b.String())
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "?") && !strings.HasSuffix(s, "!") {
		s += "."
	}
	return s + " "
}
