package types

import "time"

// AnswerType is the enumerated shape of the final response. It is assigned
// once during intent parsing and never mutated afterward; later gates only
// read it to decide whether they run.
type AnswerType string

const (
	AnswerTroubleshootSteps AnswerType = "troubleshoot_steps"
	AnswerLocateOnly        AnswerType = "locate_only"
	AnswerIdentifyOnly      AnswerType = "identify_only"
	AnswerExplainOnly       AnswerType = "explain_only"
	AnswerDiagnoseOnly      AnswerType = "diagnose_only"
	AnswerMixed             AnswerType = "mixed"
	AnswerClarify           AnswerType = "ask_clarifying_questions"
	AnswerRejectImage       AnswerType = "reject_invalid_image"
	AnswerBetterInput       AnswerType = "ask_for_better_input"
	AnswerSafetyOnly        AnswerType = "safety_warning_only"
)

// Valid reports whether t is one of the known answer types.
func (t AnswerType) Valid() bool {
	switch t {
	case AnswerTroubleshootSteps, AnswerLocateOnly, AnswerIdentifyOnly,
		AnswerExplainOnly, AnswerDiagnoseOnly, AnswerMixed, AnswerClarify,
		AnswerRejectImage, AnswerBetterInput, AnswerSafetyOnly:
		return true
	}
	return false
}

// NeedsLocalization reports whether this answer type requires component
// targeting (the localization gate).
func (t AnswerType) NeedsLocalization() bool {
	switch t {
	case AnswerLocateOnly, AnswerTroubleshootSteps, AnswerMixed:
		return true
	}
	return false
}

// NeedsContent reports whether this answer type requires the content
// generation gate.
func (t AnswerType) NeedsContent() bool {
	switch t {
	case AnswerTroubleshootSteps, AnswerExplainOnly, AnswerDiagnoseOnly, AnswerMixed:
		return true
	}
	return false
}

// Request is the immutable input of one troubleshoot call. The orchestrator
// owns it for the lifetime of the request.
type Request struct {
	ID          string `json:"id"`
	ImageData   []byte `json:"-"`
	ImageMIME   string `json:"image_mime"`
	ImageWidth  int    `json:"image_width"`
	ImageHeight int    `json:"image_height"`
	Query       string `json:"query"`
	DeviceHint  string `json:"device_hint,omitempty"`
}

// Severity grades a diagnosis or safety finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ImageQuality is the validator's verdict on whether the photo is usable.
type ImageQuality string

const (
	QualityGood   ImageQuality = "good"
	QualityBlurry ImageQuality = "blurry"
	QualityDark   ImageQuality = "dark"
	QualityTooFar ImageQuality = "too_far"
)

// Usable reports whether the photo is good enough to analyze.
func (q ImageQuality) Usable() bool {
	return q == QualityGood || q == ""
}

// Validation is the image-validity verdict from the combined analysis gate.
type Validation struct {
	IsValid         bool         `json:"is_valid"`
	ImageCategory   string       `json:"image_category"`
	WhatISee        string       `json:"what_i_see"`
	ImageQuality    ImageQuality `json:"image_quality"`
	MultipleDevices bool         `json:"multiple_devices"`
	DeviceList      []string     `json:"device_list,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	Suggestion      string       `json:"suggestion,omitempty"`
}

// Device is the identification output of the combined analysis gate.
type Device struct {
	Type            string   `json:"device_type"`
	Category        string   `json:"device_category"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	BrandGuidance   string   `json:"brand_model_guidance,omitempty"`
	Confidence      float64  `json:"device_confidence"`
	ConfidenceLevel string   `json:"confidence_level"`
	Components      []string `json:"components,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

// Intent is the parsed query understanding from the combined analysis gate.
type Intent struct {
	QueryType         string     `json:"query_type"`
	AnswerType        AnswerType `json:"answer_type"`
	TargetComponent   string     `json:"target_component,omitempty"`
	TargetComponents  []string   `json:"target_components,omitempty"`
	ActionRequested   string     `json:"action_requested,omitempty"`
	NeedsLocalization bool       `json:"needs_localization"`
	NeedsSteps        bool       `json:"needs_steps"`
	NeedsExplanation  bool       `json:"needs_explanation"`
	DeviceMismatch    bool       `json:"device_query_mismatch"`
	MismatchReason    string     `json:"mismatch_reason,omitempty"`
	AlternateQueries  []string   `json:"alternate_queries,omitempty"`
	ClarificationNeeded bool     `json:"clarification_needed"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
	Confidence        float64    `json:"confidence"`
}

// Safety is the hazard assessment from the combined analysis gate.
type Safety struct {
	Detected      bool     `json:"safety_detected"`
	Severity      Severity `json:"safety_severity,omitempty"`
	KeywordsFound []string `json:"safety_keywords_found,omitempty"`
	Message       string   `json:"safety_message,omitempty"`
	Override      bool     `json:"override_answer_type"`
}

// Analysis is the full output of the combined
// validation+identification+intent gate (one inference call).
type Analysis struct {
	Validation Validation `json:"validation"`
	Device     Device     `json:"device"`
	Intent     Intent     `json:"query"`
	Safety     Safety     `json:"safety"`
}

// LocalizationStatus describes how a single target was resolved.
type LocalizationStatus string

const (
	LocFound      LocalizationStatus = "found"
	LocNotVisible LocalizationStatus = "not_visible"
	LocNotPresent LocalizationStatus = "not_present"
	LocAmbiguous  LocalizationStatus = "ambiguous"
)

// BoundingBox is a rectangle in fractional image coordinates.
// Invariant when attached to a found localization: all coordinates in [0,1],
// XMin < XMax and YMin < YMax.
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// WellFormed reports whether the box satisfies the coordinate invariant.
func (b BoundingBox) WellFormed() bool {
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }
	return inUnit(b.XMin) && inUnit(b.YMin) && inUnit(b.XMax) && inUnit(b.YMax) &&
		b.XMin < b.XMax && b.YMin < b.YMax
}

// ComponentLocalization is the per-target result of the localization gate.
// A box is carried only when Status is found; otherwise SuggestedAction
// tells the user what to do next.
type ComponentLocalization struct {
	Target             string             `json:"target"`
	Status             LocalizationStatus `json:"status"`
	Box                *BoundingBox       `json:"bounding_box,omitempty"`
	SpatialDescription string             `json:"spatial_description,omitempty"`
	LandmarkDescription string            `json:"landmark_description,omitempty"`
	SuggestedAction    string             `json:"suggested_action,omitempty"`
	Confidence         float64            `json:"confidence"`
}

// Localization is the output of the localization gate.
type Localization struct {
	Results []ComponentLocalization `json:"results"`
}

// GroundingSource is a single cited web source.
type GroundingSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Grounding is the output of the knowledge grounding gate. A failed search
// degrades to Grounded=false with an empty source list instead of failing
// the pipeline.
type Grounding struct {
	Grounded bool              `json:"grounded"`
	Guidance string            `json:"grounded_guidance,omitempty"`
	Sources  []GroundingSource `json:"sources,omitempty"`
	Summary  string            `json:"sources_summary,omitempty"`
}

// Diagnosis describes the identified issue.
type Diagnosis struct {
	Issue          string   `json:"issue"`
	Severity       Severity `json:"severity"`
	SafetyWarning  string   `json:"safety_warning,omitempty"`
	PossibleCauses []string `json:"possible_causes,omitempty"`
}

// Step is one ordered troubleshooting instruction.
type Step struct {
	Number          int    `json:"step_number"`
	Instruction     string `json:"instruction"`
	EstimateMinutes int    `json:"estimate_minutes"`
	ComponentRef    string `json:"component_ref,omitempty"`
	Caution         string `json:"caution,omitempty"`
}

// Content is the output of the content generation gate; which fields are
// populated depends on the answer type.
type Content struct {
	Diagnosis   *Diagnosis `json:"diagnosis,omitempty"`
	Steps       []Step     `json:"troubleshooting_steps,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
}

// StageKind tags which variant a StageResult carries.
type StageKind string

const (
	StageAnalysis     StageKind = "analysis"
	StageLocalization StageKind = "localization"
	StageGrounding    StageKind = "grounding"
	StageContent      StageKind = "content"
)

// StageResult is the tagged output of one gate. Exactly one of the variant
// pointers matching Kind is non-nil.
type StageResult struct {
	Kind         StageKind     `json:"kind"`
	Confidence   float64       `json:"confidence"`
	Warnings     []string      `json:"warnings,omitempty"`
	Analysis     *Analysis     `json:"analysis,omitempty"`
	Localization *Localization `json:"localization,omitempty"`
	Grounding    *Grounding    `json:"grounding,omitempty"`
	Content      *Content      `json:"content,omitempty"`
}

// ResponseStatus distinguishes business outcomes from infrastructure
// failures in the final response envelope.
type ResponseStatus string

const (
	StatusOK                 ResponseStatus = "ok"
	StatusRejected           ResponseStatus = "rejected"
	StatusNeedsClarification ResponseStatus = "needs_clarification"
	StatusNeedsBetterInput   ResponseStatus = "needs_better_input"
	StatusSafetyWarning      ResponseStatus = "safety_warning"
	StatusQuotaExceeded      ResponseStatus = "quota_exceeded"
	StatusServiceUnavailable ResponseStatus = "service_unavailable"
	StatusError              ResponseStatus = "error"
)

// Response is the assembled, schema-validated reply to one request.
type Response struct {
	RequestID    string                  `json:"request_id"`
	AnswerType   AnswerType              `json:"answer_type"`
	Status       ResponseStatus          `json:"status"`
	Message      string                  `json:"message,omitempty"`
	RetryAfter   string                  `json:"retry_after,omitempty"`
	Device       *Device                 `json:"device_info,omitempty"`
	Localization []ComponentLocalization `json:"localization_results,omitempty"`
	Diagnosis    *Diagnosis              `json:"diagnosis,omitempty"`
	Steps        []Step                  `json:"troubleshooting_steps,omitempty"`
	Explanation  string                  `json:"explanation,omitempty"`
	SafetyWarning string                 `json:"safety_warning,omitempty"`
	ClarifyingQuestions []string         `json:"clarifying_questions,omitempty"`
	SuggestedQueries    []string         `json:"suggested_queries,omitempty"`
	GroundingUsed   bool                 `json:"web_grounding_used"`
	GroundingSources []GroundingSource   `json:"grounding_sources,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
	AudioInstructions string             `json:"audio_instructions"`
	ElapsedMS    int64                   `json:"elapsed_ms"`
	CreatedAt    time.Time               `json:"created_at"`
}
