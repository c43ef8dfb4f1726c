package imagearchive

import (
	"context"
	"errors"
	"testing"

	"fixit/internal/tester"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key, err := s.Put(ctx, "req-1", "image/png", []byte{1, 2, 3})
	tester.NoErr(t, err)
	tester.Eq(t, key, "uploads/req-1.png")

	got, err := s.Get(ctx, key)
	tester.NoErr(t, err)
	tester.Eq(t, len(got), 3)

	// Returned slice is a copy; mutating it must not touch the archive.
	got[0] = 99
	again, err := s.Get(ctx, key)
	tester.NoErr(t, err)
	tester.Eq(t, again[0], byte(1))
}

func TestMemoryStore_MissingKeyAndBlankID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "uploads/nope.png")
	tester.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Put(ctx, "  ", "image/png", []byte{1})
	tester.Err(t, err, "blank request id is rejected")
}

func TestMemoryStore_URLUnsupported(t *testing.T) {
	s := NewMemoryStore()
	url, err := s.URL(context.Background(), "uploads/req-1.png")
	tester.NoErr(t, err)
	tester.Eq(t, url, "")
}

func TestObjectKey_Extensions(t *testing.T) {
	tester.Eq(t, objectKey("a", "image/jpeg"), "uploads/a.jpg")
	tester.Eq(t, objectKey("b", "image/webp"), "uploads/b.webp")
	tester.Eq(t, objectKey("c", "application/pdf"), "uploads/c.bin")
}
