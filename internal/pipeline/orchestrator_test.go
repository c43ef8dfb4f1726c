package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fixit/internal/assemble"
	"fixit/internal/llm"
	types "fixit/internal/types"
)

func testImage(tb testing.TB) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(tb, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestOrchestrator(cli llm.Client, grounding bool) *Orchestrator {
	return &Orchestrator{
		Pre:      &Preprocess{},
		Analyze:  &AnalysisGate{LLM: cli},
		Locate:   &LocateGate{LLM: cli},
		Ground:   &GroundGate{LLM: cli, Enabled: grounding},
		Generate: &GenerateGate{LLM: cli},
		Assemble: &assemble.Assembler{},
	}
}

func TestRun_PrinterPaperJam(t *testing.T) {
	fake := llm.NewFakeClient()
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "my printer has a paper jam, how do I fix it?",
	})

	require.Equal(t, types.StatusOK, resp.Status)
	require.Equal(t, types.AnswerTroubleshootSteps, resp.AnswerType)
	require.NotEmpty(t, resp.RequestID)
	require.NotNil(t, resp.Device)
	require.NotEmpty(t, resp.Steps)
	for i, s := range resp.Steps {
		require.Equal(t, i+1, s.Number)
		require.Positive(t, s.EstimateMinutes)
		require.NotEmpty(t, s.Instruction)
	}
	require.NotEmpty(t, resp.Localization)
	require.NotEmpty(t, resp.AudioInstructions)
}

func TestRun_ScreenshotRejected(t *testing.T) {
	fake := llm.NewFakeClient()
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "this is a screenshot of my error message",
	})

	require.Equal(t, types.StatusRejected, resp.Status)
	require.Equal(t, types.AnswerRejectImage, resp.AnswerType)
	require.Empty(t, resp.Steps)
	require.Empty(t, resp.Localization)
	require.NotEmpty(t, resp.Message)
	require.EqualValues(t, 1, fake.Calls(), "rejection short-circuits the later gates")
}

func TestRun_SmokeSafetyOverride(t *testing.T) {
	fake := llm.NewFakeClient()
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "there is smoke coming out of my printer",
	})

	require.Equal(t, types.StatusSafetyWarning, resp.Status)
	require.Equal(t, types.AnswerSafetyOnly, resp.AnswerType)
	require.NotEmpty(t, resp.SafetyWarning)
	require.Empty(t, resp.Steps, "no repair instructions under a critical hazard")
	require.EqualValues(t, 1, fake.Calls(), "safety answer needs only the analysis call")
}

func TestRun_LocateOnly(t *testing.T) {
	fake := llm.NewFakeClient()
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "where is the reset button?",
	})

	require.Equal(t, types.StatusOK, resp.Status)
	require.Equal(t, types.AnswerLocateOnly, resp.AnswerType)
	require.NotEmpty(t, resp.Localization)
	for _, r := range resp.Localization {
		if r.Status == types.LocFound {
			require.NotNil(t, r.Box)
			require.True(t, r.Box.WellFormed())
		} else {
			require.Nil(t, r.Box)
		}
	}
	require.Empty(t, resp.Steps)
	require.EqualValues(t, 2, fake.Calls(), "analysis plus localization only")
}

func TestRun_EmptyInputsRejected(t *testing.T) {
	orch := newTestOrchestrator(llm.NewFakeClient(), false)

	resp := orch.Run(context.Background(), &types.Request{Query: "help"})
	require.Equal(t, types.StatusRejected, resp.Status)

	resp = orch.Run(context.Background(), &types.Request{ImageData: testImage(t)})
	require.Equal(t, types.StatusRejected, resp.Status)
}

func TestRun_InferenceFailureServiceUnavailable(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Err = context.DeadlineExceeded
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "my printer has a paper jam",
	})
	require.Equal(t, types.StatusServiceUnavailable, resp.Status)
	require.NotEmpty(t, resp.Message)
}

func TestRun_QuotaExhaustedEnvelope(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Err = llm.ErrQuotaExceeded
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "my printer has a paper jam",
	})
	require.Equal(t, types.StatusQuotaExceeded, resp.Status)
	require.NotEmpty(t, resp.RetryAfter)
}

func TestRun_RateLimitedEnvelope(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Err = llm.ErrRateLimited
	orch := newTestOrchestrator(fake, false)

	resp := orch.Run(context.Background(), &types.Request{
		ImageData: testImage(t),
		Query:     "my printer has a paper jam",
	})
	require.Equal(t, types.StatusQuotaExceeded, resp.Status)
	require.Equal(t, "1m", resp.RetryAfter)
}

func TestRun_RepeatedRequestServedFromCache(t *testing.T) {
	fake := llm.NewFakeClient()
	cache := llm.NewResponseCache(32, time.Minute)
	cli := llm.Wrap(fake, llm.Cached(cache))
	orch := newTestOrchestrator(cli, false)

	img := testImage(t)
	first := orch.Run(context.Background(), &types.Request{ImageData: img, Query: "my printer has a paper jam"})
	require.Equal(t, types.StatusOK, first.Status)
	after := fake.Calls()

	second := orch.Run(context.Background(), &types.Request{ImageData: img, Query: "my printer has a paper jam"})
	require.Equal(t, types.StatusOK, second.Status)
	require.Equal(t, after, fake.Calls(), "identical request must add zero upstream calls")
	require.Equal(t, first.AnswerType, second.AnswerType)
}

func TestRoute_DecisionLadder(t *testing.T) {
	orch := &Orchestrator{}

	mk := func(mut func(*types.Analysis)) *types.Analysis {
		a := &types.Analysis{
			Validation: types.Validation{IsValid: true, ImageQuality: types.QualityGood},
			Device:     types.Device{Type: "printer", Confidence: 0.8},
			Intent:     types.Intent{AnswerType: types.AnswerTroubleshootSteps, Confidence: 0.9},
		}
		if mut != nil {
			mut(a)
		}
		return a
	}

	t.Run("safety override wins over everything", func(t *testing.T) {
		a := mk(func(a *types.Analysis) {
			a.Safety = types.Safety{Detected: true, Severity: types.SeverityCritical, Override: true}
			a.Validation.IsValid = false
			a.Intent.DeviceMismatch = true
			a.Device.Confidence = 0.1
		})
		orch.route(a, "smoke everywhere")
		require.Equal(t, types.AnswerSafetyOnly, a.Intent.AnswerType)
	})

	t.Run("invalid image rejects", func(t *testing.T) {
		a := mk(func(a *types.Analysis) { a.Validation.IsValid = false })
		orch.route(a, "fix it")
		require.Equal(t, types.AnswerRejectImage, a.Intent.AnswerType)
	})

	t.Run("poor quality asks for better input", func(t *testing.T) {
		a := mk(func(a *types.Analysis) { a.Validation.ImageQuality = types.QualityBlurry })
		orch.route(a, "fix it")
		require.Equal(t, types.AnswerBetterInput, a.Intent.AnswerType)
	})

	t.Run("mismatch beats low confidence", func(t *testing.T) {
		a := mk(func(a *types.Analysis) {
			a.Intent.DeviceMismatch = true
			a.Intent.MismatchReason = "printers have no pedals"
			a.Device.Confidence = 0.1
		})
		orch.route(a, "fix the pedal")
		require.Equal(t, types.AnswerClarify, a.Intent.AnswerType)
		require.NotEmpty(t, a.Intent.ClarifyingQuestions)
	})

	t.Run("low confidence asks for better input", func(t *testing.T) {
		a := mk(func(a *types.Analysis) { a.Device.Confidence = 0.2 })
		orch.route(a, "fix it")
		require.Equal(t, types.AnswerBetterInput, a.Intent.AnswerType)
		require.NotEmpty(t, a.Validation.Suggestion)
	})

	t.Run("multiple devices ask which one", func(t *testing.T) {
		a := mk(func(a *types.Analysis) {
			a.Validation.MultipleDevices = true
			a.Validation.DeviceList = []string{"router", "modem"}
		})
		orch.route(a, "fix it")
		require.Equal(t, types.AnswerClarify, a.Intent.AnswerType)
	})

	t.Run("what is this upgrades identify to mixed", func(t *testing.T) {
		a := mk(func(a *types.Analysis) { a.Intent.AnswerType = types.AnswerIdentifyOnly })
		orch.route(a, "What is this thing on my desk?")
		require.Equal(t, types.AnswerMixed, a.Intent.AnswerType)
	})

	t.Run("unknown answer type falls back to clarify", func(t *testing.T) {
		a := mk(func(a *types.Analysis) { a.Intent.AnswerType = "banana" })
		orch.route(a, "fix it")
		require.Equal(t, types.AnswerClarify, a.Intent.AnswerType)
	})
}

func TestScanSafety_Keywords(t *testing.T) {
	s := ScanSafety("my battery is swollen battery and sparking", types.Safety{})
	require.True(t, s.Detected)
	require.Equal(t, types.SeverityCritical, s.Severity)
	require.True(t, s.Override)
	require.NotEmpty(t, s.Message)

	s = ScanSafety("the printer feels hot and has a paper jam", types.Safety{})
	require.True(t, s.Detected)
	require.False(t, s.Override, "warning keywords only annotate")
	require.NotEqual(t, types.SeverityCritical, s.Severity)

	s = ScanSafety("how do I change the ink?", types.Safety{})
	require.False(t, s.Detected)
}

func TestGroundGate_Trigger(t *testing.T) {
	g := &GroundGate{Enabled: true}
	a := &types.Analysis{
		Device: types.Device{Type: "laser printer", Brand: "unknown", Model: "not visible"},
		Intent: types.Intent{AnswerType: types.AnswerLocateOnly},
	}
	require.False(t, g.ShouldRun(a, "where is the tray?"), "locate answers never ground")

	a.Intent.AnswerType = types.AnswerTroubleshootSteps
	require.True(t, g.ShouldRun(a, "what is the latest firmware?"), "explicit keyword triggers")

	a.Device.Brand = "Brother"
	a.Device.Model = "HL-2350DW"
	require.True(t, g.ShouldRun(a, "it will not print"), "known brand and model triggers")

	a.Device = types.Device{Type: "arduino uno", Brand: "unknown", Model: "not visible"}
	require.False(t, g.ShouldRun(a, "what is the latest firmware?"), "generic hobby boards never ground")

	g.Enabled = false
	a.Device = types.Device{Type: "laser printer"}
	require.False(t, g.ShouldRun(a, "what is the latest firmware?"), "disabled flag wins")
}
