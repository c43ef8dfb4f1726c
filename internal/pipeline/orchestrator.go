package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"fixit/internal/assemble"
	"fixit/internal/llm"
	t "fixit/internal/types"
)

type state int

const (
	statePreprocess state = iota
	stateAnalyze
	stateLocalize
	stateGround
	stateGenerate
	stateAssemble
	stateDone
)

func (s state) String() string {
	switch s {
	case statePreprocess:
		return "preprocess"
	case stateAnalyze:
		return "analyze"
	case stateLocalize:
		return "localize"
	case stateGround:
		return "ground"
	case stateGenerate:
		return "generate"
	case stateAssemble:
		return "assemble"
	}
	return "done"
}

// Orchestrator drives one request through the gate pipeline. Gates run in a
// fixed order; routing after analysis decides which later gates are skipped.
type Orchestrator struct {
	Pre      *Preprocess
	Analyze  *AnalysisGate
	Locate   *LocateGate
	Ground   *GroundGate
	Generate *GenerateGate
	Assemble *assemble.Assembler

	// HighConfidence and MinConfidence are the identification thresholds.
	// Zero values fall back to 0.6 and 0.3.
	HighConfidence float64
	MinConfidence  float64
}

// job carries the per-request intermediate state between transitions.
type job struct {
	req      *t.Request
	started  time.Time
	analysis *t.Analysis
	loc      *t.Localization
	grounding *t.Grounding
	content  *t.Content
	warnings []string
	resp     *t.Response
}

// Run executes the pipeline for one request. It always returns a response:
// infrastructure failures map to quota_exceeded or service_unavailable
// envelopes rather than errors.
func (o *Orchestrator) Run(ctx context.Context, req *t.Request) *t.Response {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	j := &job{req: req, started: time.Now()}
	for st := statePreprocess; st != stateDone; {
		next := o.step(ctx, st, j)
		log.Printf("[pipeline] req=%s %s -> %s", req.ID, st, next)
		st = next
	}
	return j.resp
}

// step is the single authoritative transition table.
func (o *Orchestrator) step(ctx context.Context, st state, j *job) state {
	switch st {
	case statePreprocess:
		if err := o.Pre.Run(j.req); err != nil {
			var inErr *InputError
			if errors.As(err, &inErr) {
				j.resp = o.Assemble.Failure(j.req, t.StatusRejected, inErr.Reason, nil, time.Since(j.started))
			} else {
				j.resp = o.Assemble.Failure(j.req, t.StatusError, "could not read the uploaded image", nil, time.Since(j.started))
			}
			return stateDone
		}
		return stateAnalyze

	case stateAnalyze:
		a, err := o.Analyze.Run(ctx, j.req)
		if err != nil {
			return o.fail(j, err)
		}
		a.Safety = ScanSafety(j.req.Query, a.Safety)
		o.route(&a, j.req.Query)
		j.analysis = &a
		if !a.Intent.AnswerType.NeedsLocalization() && !a.Intent.AnswerType.NeedsContent() {
			return stateAssemble
		}
		if a.Intent.AnswerType.NeedsLocalization() {
			return stateLocalize
		}
		return stateGround

	case stateLocalize:
		loc, err := o.Locate.Run(ctx, j.req, j.analysis)
		if err != nil {
			return o.fail(j, err)
		}
		j.loc = &loc
		if j.analysis.Intent.AnswerType == t.AnswerLocateOnly {
			return stateAssemble
		}
		return stateGround

	case stateGround:
		if o.Ground.ShouldRun(j.analysis, j.req.Query) {
			gr, warn := o.Ground.Run(ctx, j.req, j.analysis)
			if warn != "" {
				j.warnings = append(j.warnings, warn)
			} else {
				j.grounding = &gr
			}
		}
		if j.analysis.Intent.AnswerType.NeedsContent() {
			return stateGenerate
		}
		return stateAssemble

	case stateGenerate:
		c, err := o.Generate.Run(ctx, j.req, j.analysis, j.loc, j.grounding)
		if err != nil {
			return o.fail(j, err)
		}
		j.content = &c
		return stateAssemble

	case stateAssemble:
		resp, err := o.Assemble.Build(j.req, j.analysis, j.loc, j.grounding, j.content, j.warnings, time.Since(j.started))
		if err != nil {
			log.Printf("[pipeline] req=%s assembly rejected: %v", j.req.ID, err)
			j.resp = o.Assemble.Failure(j.req, t.StatusError, "internal response validation failed", j.analysis, time.Since(j.started))
			return stateDone
		}
		j.resp = resp
		return stateDone
	}
	return stateDone
}

// fail maps an inference error to its failure envelope and ends the run.
func (o *Orchestrator) fail(j *job, err error) state {
	status := t.StatusServiceUnavailable
	msg := "the analysis service is temporarily unavailable, please retry shortly"
	switch {
	case errors.Is(err, llm.ErrQuotaExceeded):
		status = t.StatusQuotaExceeded
		msg = "the daily analysis budget is exhausted, please retry tomorrow"
	case errors.Is(err, llm.ErrRateLimited):
		status = t.StatusQuotaExceeded
		msg = "too many requests right now, please retry in a minute"
	case errors.Is(err, llm.ErrCircuitOpen):
		msg = "the analysis service is recovering from errors, please retry shortly"
	case errors.Is(err, context.Canceled):
		status = t.StatusError
		msg = "request canceled"
	}
	log.Printf("[pipeline] req=%s inference failed: %v", j.req.ID, err)
	j.resp = o.Assemble.Failure(j.req, status, msg, j.analysis, time.Since(j.started))
	if errors.Is(err, llm.ErrRateLimited) {
		j.resp.RetryAfter = "1m"
	}
	return stateDone
}

// route applies the decision ladder to the analysis, rewriting the answer
// type in priority order. Safety always wins; everything after it runs only
// if nothing higher fired.
func (o *Orchestrator) route(a *t.Analysis, query string) {
	high, min := o.HighConfidence, o.MinConfidence
	if high == 0 {
		high = 0.6
	}
	if min == 0 {
		min = 0.3
	}

	switch {
	case a.Safety.Override || a.Safety.Severity == t.SeverityCritical:
		a.Intent.AnswerType = t.AnswerSafetyOnly
	case !a.Validation.IsValid:
		a.Intent.AnswerType = t.AnswerRejectImage
	case !a.Validation.ImageQuality.Usable():
		a.Intent.AnswerType = t.AnswerBetterInput
	case a.Intent.DeviceMismatch:
		a.Intent.AnswerType = t.AnswerClarify
		if len(a.Intent.ClarifyingQuestions) == 0 && a.Intent.MismatchReason != "" {
			a.Intent.ClarifyingQuestions = []string{"Did you mean to ask about a different device? " + a.Intent.MismatchReason}
		}
	case a.Device.Confidence < min && a.Validation.IsValid:
		a.Intent.AnswerType = t.AnswerBetterInput
		if a.Validation.Suggestion == "" {
			a.Validation.Suggestion = "Take a closer, well-lit photo showing the whole device and any visible branding."
		}
	case a.Validation.MultipleDevices:
		a.Intent.AnswerType = t.AnswerClarify
		a.Intent.ClarifyingQuestions = append(a.Intent.ClarifyingQuestions,
			"I can see several devices in this photo: "+strings.Join(a.Validation.DeviceList, ", ")+". Which one is your question about?")
	case a.Intent.ClarificationNeeded:
		a.Intent.AnswerType = t.AnswerClarify
	}

	// "what is this" asks for both identification and explanation.
	if a.Intent.AnswerType == t.AnswerIdentifyOnly && strings.Contains(strings.ToLower(query), "what is this") {
		a.Intent.AnswerType = t.AnswerMixed
	}
	if !a.Intent.AnswerType.Valid() {
		a.Intent.AnswerType = t.AnswerClarify
		if len(a.Intent.ClarifyingQuestions) == 0 {
			a.Intent.ClarifyingQuestions = []string{"Could you rephrase what you want to do with this device?"}
		}
	}
	if a.Device.Confidence < high && a.Device.Confidence >= min {
		a.Device.ConfidenceLevel = "medium"
	}
}
