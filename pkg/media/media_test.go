package media_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx/fsxlocal"
	"github.com/mchuluq/whatsapp-microservice/pkg/media"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
)

func newLocalStore(t *testing.T) *fsxlocal.LocalFileSystem {
	t.Helper()
	store, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileSystem: %v", err)
	}
	return store
}

// presignStore fakes a presign-capable backend on top of local disk.
type presignStore struct {
	*fsxlocal.LocalFileSystem
}

func (p *presignStore) GetPresignedDownloadURL(ctx context.Context, path string, expiration time.Duration) (string, error) {
	return "https://cdn.example/" + path + "?sig=test", nil
}

var _ fsx.FileSystemWithPresign = (*presignStore)(nil)

// --- Data references ---

func TestResolve_DataURI(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	ref := &message.AttachmentRef{
		Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload),
	}

	resolved, err := media.New().Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(resolved.Attachment.Data, payload) {
		t.Fatalf("data = %v, want %v", resolved.Attachment.Data, payload)
	}
	if got := resolved.Attachment.MimeType; got != "image/png" {
		t.Fatalf("mime = %q, want image/png", got)
	}
	if resolved.OwnedKey != "" {
		t.Fatalf("owned key = %q, want empty without snapshotting", resolved.OwnedKey)
	}
}

func TestResolve_RawBase64SniffsType(t *testing.T) {
	payload := []byte("plain text payload")
	ref := &message.AttachmentRef{Data: base64.StdEncoding.EncodeToString(payload)}

	resolved, err := media.New().Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := resolved.Attachment.MimeType; got != "text/plain" {
		t.Fatalf("mime = %q, want text/plain", got)
	}
}

func TestResolve_BadData(t *testing.T) {
	ref := &message.AttachmentRef{Data: "data:image/png;base64,%%%not-base64%%%"}

	if _, err := media.New().Resolve(context.Background(), ref); !errx.HasCode(err, media.ErrBadData) {
		t.Fatalf("err = %v, want %v", err, media.ErrBadData)
	}
}

func TestResolve_DataTooLarge(t *testing.T) {
	r := media.New(media.WithMaxSize(8))
	ref := &message.AttachmentRef{Data: base64.StdEncoding.EncodeToString(make([]byte, 16))}

	if _, err := r.Resolve(context.Background(), ref); !errx.HasCode(err, media.ErrTooLarge) {
		t.Fatalf("err = %v, want %v", err, media.ErrTooLarge)
	}
}

func TestResolve_NoSource(t *testing.T) {
	if _, err := media.New().Resolve(context.Background(), &message.AttachmentRef{}); !errx.HasCode(err, media.ErrNoSource) {
		t.Fatalf("err = %v, want %v", err, media.ErrNoSource)
	}
}

// --- Snapshotting ---

func TestResolve_SnapshotKeepsBytesInline(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	r := media.New(media.WithStorage(store), media.WithSnapshot(true))

	payload := []byte("snapshot me")
	ref := &message.AttachmentRef{
		Data:     base64.StdEncoding.EncodeToString(payload),
		FileName: "note.txt",
	}

	resolved, err := r.Resolve(ctx, ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.OwnedKey == "" {
		t.Fatal("expected an owned storage key")
	}
	if !strings.HasSuffix(resolved.OwnedKey, ".txt") {
		t.Fatalf("key = %q, want .txt suffix", resolved.OwnedKey)
	}
	if resolved.Attachment.StorageKey != resolved.OwnedKey {
		t.Fatalf("attachment key = %q, want %q", resolved.Attachment.StorageKey, resolved.OwnedKey)
	}
	// Local disk cannot presign, so the bytes must stay inline.
	if !bytes.Equal(resolved.Attachment.Data, payload) {
		t.Fatal("expected inline data to survive snapshotting")
	}

	stored, err := store.ReadFile(ctx, resolved.OwnedKey)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Fatal("stored bytes differ from payload")
	}
}

func TestResolve_SnapshotPresignDropsBytes(t *testing.T) {
	ctx := context.Background()
	r := media.New(media.WithStorage(&presignStore{newLocalStore(t)}), media.WithSnapshot(true))

	ref := &message.AttachmentRef{Data: base64.StdEncoding.EncodeToString([]byte("presign me"))}

	resolved, err := r.Resolve(ctx, ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(resolved.Attachment.URL, "https://cdn.example/") {
		t.Fatalf("url = %q, want presigned", resolved.Attachment.URL)
	}
	if resolved.Attachment.Data != nil {
		t.Fatal("expected inline data to be dropped after presign")
	}
	if resolved.Attachment.StorageKey == "" {
		t.Fatal("expected storage key on presigned attachment")
	}
}

// --- URL references ---

func TestResolve_URLPassthrough(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ref := &message.AttachmentRef{URL: srv.URL + "/pic.png", MimeType: "image/png"}

	resolved, err := media.New().Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Attachment.URL != ref.URL {
		t.Fatalf("url = %q, want %q", resolved.Attachment.URL, ref.URL)
	}
	if resolved.Attachment.Data != nil {
		t.Fatal("passthrough must not carry data")
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("server calls = %d, want 0 without snapshotting", n)
	}
}

func TestResolve_URLSnapshotFetches(t *testing.T) {
	ctx := context.Background()
	body := []byte("jpeg bytes here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer srv.Close()

	store := newLocalStore(t)
	r := media.New(media.WithStorage(store), media.WithSnapshot(true))

	resolved, err := r.Resolve(ctx, &message.AttachmentRef{URL: srv.URL + "/shot.jpg?sig=abc"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(resolved.Attachment.Data, body) {
		t.Fatal("fetched bytes differ from server body")
	}
	if got := resolved.Attachment.MimeType; got != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", got)
	}
	if got := resolved.Attachment.FileName; got != "shot.jpg" {
		t.Fatalf("file name = %q, want shot.jpg", got)
	}
	if !strings.HasSuffix(resolved.OwnedKey, ".jpg") {
		t.Fatalf("key = %q, want .jpg suffix", resolved.OwnedKey)
	}

	stored, err := store.ReadFile(ctx, resolved.OwnedKey)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Fatal("stored bytes differ from server body")
	}
}

func TestResolve_URLFetchRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("second time lucky"))
	}))
	defer srv.Close()

	r := media.New(media.WithStorage(newLocalStore(t)), media.WithSnapshot(true))

	if _, err := r.Resolve(context.Background(), &message.AttachmentRef{URL: srv.URL + "/f.bin"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server calls = %d, want 2", n)
	}
}

func TestResolve_URLFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := media.New(media.WithStorage(newLocalStore(t)), media.WithSnapshot(true))

	if _, err := r.Resolve(context.Background(), &message.AttachmentRef{URL: srv.URL + "/f.bin"}); !errx.HasCode(err, media.ErrFetch) {
		t.Fatalf("err = %v, want %v", err, media.ErrFetch)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("server calls = %d, want 3", n)
	}
}

func TestResolve_URLBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	r := media.New(media.WithStorage(newLocalStore(t)), media.WithSnapshot(true), media.WithMaxSize(8))

	if _, err := r.Resolve(context.Background(), &message.AttachmentRef{URL: srv.URL + "/big.bin"}); !errx.HasCode(err, media.ErrTooLarge) {
		t.Fatalf("err = %v, want %v", err, media.ErrTooLarge)
	}
}

// --- Storage key references ---

func TestResolve_StorageKeyInlines(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	payload := []byte("%PDF-1.4 stub")
	if err := store.WriteFile(ctx, "docs/brief.pdf", payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := media.New(media.WithStorage(store))

	resolved, err := r.Resolve(ctx, &message.AttachmentRef{StorageKey: "docs/brief.pdf"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(resolved.Attachment.Data, payload) {
		t.Fatal("inlined bytes differ from stored object")
	}
	if got := resolved.Attachment.MimeType; got != "application/pdf" {
		t.Fatalf("mime = %q, want application/pdf", got)
	}
	if got := resolved.Attachment.FileName; got != "brief.pdf" {
		t.Fatalf("file name = %q, want brief.pdf", got)
	}
	// The object belongs to the caller, not this resolution.
	if resolved.OwnedKey != "" {
		t.Fatalf("owned key = %q, want empty", resolved.OwnedKey)
	}
}

func TestResolve_StorageKeyPresigns(t *testing.T) {
	ctx := context.Background()
	store := &presignStore{newLocalStore(t)}
	if err := store.WriteFile(ctx, "docs/brief.pdf", []byte("stub")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := media.New(media.WithStorage(store))

	resolved, err := r.Resolve(ctx, &message.AttachmentRef{StorageKey: "docs/brief.pdf"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := resolved.Attachment.URL; got != "https://cdn.example/docs/brief.pdf?sig=test" {
		t.Fatalf("url = %q, want presigned", got)
	}
	if resolved.Attachment.Data != nil {
		t.Fatal("presigned attachment must not inline data")
	}
}

func TestResolve_StorageKeyMissing(t *testing.T) {
	r := media.New(media.WithStorage(newLocalStore(t)))

	if _, err := r.Resolve(context.Background(), &message.AttachmentRef{StorageKey: "nope.bin"}); !errx.HasCode(err, media.ErrMissingObject) {
		t.Fatalf("err = %v, want %v", err, media.ErrMissingObject)
	}
}

func TestResolve_StorageKeyWithoutStore(t *testing.T) {
	if _, err := media.New().Resolve(context.Background(), &message.AttachmentRef{StorageKey: "k"}); !errx.HasCode(err, media.ErrNoStorage) {
		t.Fatalf("err = %v, want %v", err, media.ErrNoStorage)
	}
}

// --- Discard ---

func TestDiscard_RemovesSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	r := media.New(media.WithStorage(store), media.WithSnapshot(true))

	resolved, err := r.Resolve(ctx, &message.AttachmentRef{Data: base64.StdEncoding.EncodeToString([]byte("ephemeral"))})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r.Discard(ctx, resolved.OwnedKey, "")

	exists, err := store.Exists(ctx, resolved.OwnedKey)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("discarded object still present")
	}

	// Without a store Discard is a no-op.
	media.New().Discard(ctx, "whatever")
}
