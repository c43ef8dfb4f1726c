package pipeline

import (
	"errors"
	"testing"

	"fixit/internal/tester"
	types "fixit/internal/types"
)

func TestPreprocess_FillsDimensionsAndMIME(t *testing.T) {
	req := &types.Request{ImageData: testImage(t), Query: "what is this?"}
	tester.NoErr(t, Preprocess{}.Run(req))
	tester.Eq(t, req.ImageWidth, 8)
	tester.Eq(t, req.ImageHeight, 8)
	tester.Eq(t, req.ImageMIME, "image/png")
}

func TestPreprocess_Rejects(t *testing.T) {
	cases := []struct {
		name string
		req  *types.Request
	}{
		{"empty image", &types.Request{Query: "q"}},
		{"empty query", &types.Request{ImageData: testImage(t)}},
		{"not an image", &types.Request{ImageData: []byte("plain text"), Query: "q"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Preprocess{}.Run(tc.req)
			var inErr *InputError
			tester.True(t, errors.As(err, &inErr), tc.name)
		})
	}
}

func TestGatherTargets_Dedup(t *testing.T) {
	a := &types.Analysis{Intent: types.Intent{
		TargetComponent:  "Reset Button",
		TargetComponents: []string{"reset button", "power port", " "},
	}}
	got := gatherTargets(a)
	tester.Eq(t, got, []string{"Reset Button", "power port"})
}

func TestSanitizeLocalization(t *testing.T) {
	loc := &types.Localization{Results: []types.ComponentLocalization{
		{Target: "a", Status: types.LocFound, Box: &types.BoundingBox{XMin: 0.1, YMin: 0.1, XMax: 0.9, YMax: 0.9}},
		{Target: "b", Status: types.LocFound, Box: &types.BoundingBox{XMin: 0.9, YMin: 0.1, XMax: 0.1, YMax: 0.9}},
		{Target: "c", Status: types.LocFound},
		{Target: "d", Status: types.LocNotVisible, Box: &types.BoundingBox{XMin: 0.1, YMin: 0.1, XMax: 0.9, YMax: 0.9}},
	}}
	sanitizeLocalization(loc)

	tester.Eq(t, loc.Results[0].Status, types.LocFound)
	tester.True(t, loc.Results[0].Box != nil)

	tester.Eq(t, loc.Results[1].Status, types.LocAmbiguous, "inverted box downgrades")
	tester.True(t, loc.Results[1].Box == nil)
	tester.True(t, loc.Results[1].SuggestedAction != "")

	tester.Eq(t, loc.Results[2].Status, types.LocAmbiguous, "found without box downgrades")

	tester.Eq(t, loc.Results[3].Status, types.LocNotVisible)
	tester.True(t, loc.Results[3].Box == nil, "non-found results never carry a box")
}
