package llm

import (
	"context"
	"testing"
	"time"

	"fixit/internal/tester"
)

func TestCache_HitSkipsUpstream(t *testing.T) {
	cache := NewResponseCache(16, time.Minute)
	fake := NewFakeClient()
	cli := Wrap(fake, Cached(cache))

	ctx := WithStage(context.Background(), "analysis")
	img := Image{Data: []byte("jpegbytes"), MIME: "image/jpeg"}
	input := map[string]any{"query": NormalizeQuery("My printer is jammed")}

	first, err := cli.GenerateVisionJSON(ctx, "p", img, input)
	tester.NoErr(t, err)
	tester.Eq(t, fake.Calls(), int64(1))

	second, err := cli.GenerateVisionJSON(ctx, "p", img, input)
	tester.NoErr(t, err)
	tester.Eq(t, fake.Calls(), int64(1), "identical request must be served from cache")
	tester.Eq(t, string(second), string(first))
	tester.Eq(t, cache.Len(), 1)
}

func TestCache_DistinctByImageAndStage(t *testing.T) {
	prompt := "p"
	input := map[string]any{"query": "printer jam"}
	imgA := Image{Data: []byte("aaaa"), MIME: "image/jpeg"}
	imgB := Image{Data: []byte("bbbb"), MIME: "image/jpeg"}

	fpA := Fingerprint("analysis", prompt, &imgA, input)
	fpB := Fingerprint("analysis", prompt, &imgB, input)
	tester.True(t, fpA != fpB, "different photos must not collide")

	fpOther := Fingerprint("localize", prompt, &imgA, input)
	tester.True(t, fpA != fpOther, "stage tag is part of the key")

	fpAgain := Fingerprint("analysis", prompt, &imgA, input)
	tester.Eq(t, fpAgain, fpA, "fingerprint is deterministic")
}

func TestCache_ErrorsNotCached(t *testing.T) {
	cache := NewResponseCache(16, time.Minute)
	fake := NewFakeClient()
	fake.Err = ErrInvalidJSON
	cli := Wrap(fake, Cached(cache))

	ctx := WithStage(context.Background(), "analysis")
	_, err := cli.GenerateJSON(ctx, "p", map[string]any{"query": "x"})
	tester.Err(t, err)
	tester.Eq(t, cache.Len(), 0, "failures must not poison the cache")

	fake.Err = nil
	_, err = cli.GenerateJSON(ctx, "p", map[string]any{"query": "x"})
	tester.NoErr(t, err)
	tester.Eq(t, fake.Calls(), int64(2), "retry after failure goes upstream")
}

func TestNormalizeQuery(t *testing.T) {
	tester.Eq(t, NormalizeQuery("  My   PRINTER\tis jammed "), "my printer is jammed")
	tester.Eq(t, NormalizeQuery("my printer is jammed"), "my printer is jammed")
}
