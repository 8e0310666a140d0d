package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pcx/internal/blob/core"
)

func TestMockRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests("reports")

	info, err := s.Put(ctx, "exports/x/batches.json", strings.NewReader(`[{"id":"BATCH-2026-001"}]`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"rows": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/x/batches.json" || info.Size != 25 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "exports/x/batches.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `[{"id":"BATCH-2026-001"}]` || got.Metadata["rows"] != "1" {
		t.Fatalf("unexpected object %+v %s", got, body)
	}

	if _, err := s.Put(ctx, "exports/x/batches.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	list, err := s.List(ctx, "exports/")
	if err != nil || len(list) != 1 || list[0].Key != "exports/x/batches.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}

	url, err := s.PresignURL(ctx, "exports/x/batches.json", core.SignedURLOptions{})
	if err != nil || !strings.Contains(url, "reports/exports/x/batches.json") {
		t.Fatalf("unexpected presigned url %q %v", url, err)
	}

	existed, err := s.Delete(ctx, "exports/x/batches.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if existed, _ := s.Delete(ctx, "exports/x/batches.json"); existed {
		t.Fatalf("second delete must report missing")
	}
	if _, err := s.Head(ctx, "exports/x/batches.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "exports/x/batches.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); err == nil {
		t.Fatalf("expected bucket required error")
	}
	s := NewMockForTests("")
	if _, err := s.Head(ctx, ""); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestDecodeChunked(t *testing.T) {
	raw := []byte("5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")
	got, ok := decodeChunked(raw)
	if !ok || string(got) != "hello world" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("plain body must not decode")
	}
}
