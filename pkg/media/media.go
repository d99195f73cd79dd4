// Package media resolves caller-supplied attachment references into
// deliverable attachments at enqueue time. Base64 payloads are decoded
// and optionally snapshotted to the media store, remote URLs are passed
// through or fetched and snapshotted per config, and storage keys are
// turned into presigned URLs when the backend can mint them or inline
// bytes when it cannot. Resolution happens once per request; recipient
// jobs share the resolved attachment.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mchuluq/whatsapp-microservice/pkg/asyncx"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
)

// DefaultMaxSize caps decoded attachment payloads, matching the upstream
// media limit.
const DefaultMaxSize int64 = 16 << 20

const (
	defaultPresignTTL   = time.Hour
	defaultFetchTimeout = 30 * time.Second
	fetchAttempts       = 3
	fetchBackoff        = 300 * time.Millisecond
)

// Resolved is the outcome of resolving one attachment reference.
type Resolved struct {
	Attachment *message.Attachment

	// OwnedKey is set when resolution wrote a new object to storage.
	// Callers pass it to Discard if the enqueue that needed it fails.
	OwnedKey string
}

// Resolver turns attachment references into deliverable attachments.
type Resolver struct {
	storage    fsx.FileSystem
	maxSize    int64
	snapshot   bool
	presignTTL time.Duration
	client     *http.Client
}

// Option is a functional option for configuring a resolver.
type Option func(*Resolver)

// WithStorage wires a media store. Without one, storage-key references
// are rejected and nothing is snapshotted.
func WithStorage(fs fsx.FileSystem) Option {
	return func(r *Resolver) {
		r.storage = fs
	}
}

// WithSnapshot persists decoded and fetched payloads to the media store.
func WithSnapshot(enabled bool) Option {
	return func(r *Resolver) {
		r.snapshot = enabled
	}
}

// WithMaxSize caps decoded payload bytes.
func WithMaxSize(limit int64) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.maxSize = limit
		}
	}
}

// WithPresignTTL sets how long presigned download URLs stay valid. The
// TTL must cover the job's full retry window.
func WithPresignTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.presignTTL = ttl
		}
	}
}

// WithHTTPClient replaces the client used to fetch URL references.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// New creates a resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		maxSize:    DefaultMaxSize,
		presignTTL: defaultPresignTTL,
		client:     &http.Client{Timeout: defaultFetchTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns one reference into a deliverable attachment. The ref's
// MimeType and FileName override anything derived from the source.
func (r *Resolver) Resolve(ctx context.Context, ref *message.AttachmentRef) (*Resolved, error) {
	if ref.IsZero() {
		return nil, ErrRegistry.New(ErrNoSource)
	}

	switch {
	case ref.Data != "":
		return r.resolveData(ctx, ref)
	case ref.URL != "":
		return r.resolveURL(ctx, ref)
	default:
		return r.resolveStorageKey(ctx, ref)
	}
}

// Discard removes objects written during a resolution whose enqueue
// failed. Best effort: delete failures are logged, not returned.
func (r *Resolver) Discard(ctx context.Context, keys ...string) {
	if r.storage == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := r.storage.DeleteFile(ctx, key); err != nil {
			logx.WithError(err).WithField("key", key).Warn("Failed to discard media snapshot")
		}
	}
}

func (r *Resolver) resolveData(ctx context.Context, ref *message.AttachmentRef) (*Resolved, error) {
	payload, embeddedMime := parseDataURI(ref.Data)
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrBadData, err)
	}
	if err := r.checkSize(int64(len(data))); err != nil {
		return nil, err
	}

	att := &message.Attachment{
		MimeType: firstNonEmpty(ref.MimeType, embeddedMime, cutParams(http.DetectContentType(data))),
		FileName: ref.FileName,
		Data:     data,
	}

	if !r.snapshot || r.storage == nil {
		return &Resolved{Attachment: att}, nil
	}
	key, err := r.snapshotBytes(ctx, att, data)
	if err != nil {
		return nil, err
	}
	return &Resolved{Attachment: att, OwnedKey: key}, nil
}

func (r *Resolver) resolveURL(ctx context.Context, ref *message.AttachmentRef) (*Resolved, error) {
	// Without snapshotting the URL is handed to the bridge untouched.
	if !r.snapshot || r.storage == nil {
		return &Resolved{Attachment: &message.Attachment{
			MimeType: ref.MimeType,
			FileName: ref.FileName,
			URL:      ref.URL,
		}}, nil
	}

	data, contentType, err := r.fetch(ctx, ref.URL)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrFetch, err).WithDetail("url", ref.URL)
	}
	if err := r.checkSize(int64(len(data))); err != nil {
		return nil, err
	}

	att := &message.Attachment{
		MimeType: firstNonEmpty(ref.MimeType, contentType, cutParams(http.DetectContentType(data))),
		FileName: firstNonEmpty(ref.FileName, fileNameFromURL(ref.URL)),
		Data:     data,
	}
	key, err := r.snapshotBytes(ctx, att, data)
	if err != nil {
		return nil, err
	}
	return &Resolved{Attachment: att, OwnedKey: key}, nil
}

func (r *Resolver) resolveStorageKey(ctx context.Context, ref *message.AttachmentRef) (*Resolved, error) {
	if r.storage == nil {
		return nil, ErrRegistry.New(ErrNoStorage)
	}

	key := ref.StorageKey
	exists, err := r.storage.Exists(ctx, key)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
	}
	if !exists {
		return nil, ErrRegistry.New(ErrMissingObject).WithDetail("key", key)
	}

	att := &message.Attachment{
		MimeType:   ref.MimeType,
		FileName:   ref.FileName,
		StorageKey: key,
	}

	// Presign-capable backends hand the bridge a URL; others inline the
	// bytes so the job stays self-contained.
	if presigner, ok := r.storage.(fsx.PresignedURLGenerator); ok {
		url, err := presigner.GetPresignedDownloadURL(ctx, key, r.presignTTL)
		if err != nil {
			return nil, ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
		}
		att.URL = url
		return &Resolved{Attachment: att}, nil
	}

	info, err := r.storage.Stat(ctx, key)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
	}
	if err := r.checkSize(info.Size); err != nil {
		return nil, err
	}
	data, err := r.storage.ReadFile(ctx, key)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
	}

	att.Data = data
	att.MimeType = firstNonEmpty(att.MimeType, info.ContentType)
	att.FileName = firstNonEmpty(att.FileName, info.Name)
	return &Resolved{Attachment: att}, nil
}

// snapshotBytes persists resolved bytes and rewrites the attachment to
// its stored form: a presigned URL when the backend supports it, inline
// bytes otherwise. Returns the written key.
func (r *Resolver) snapshotBytes(ctx context.Context, att *message.Attachment, data []byte) (string, error) {
	key := r.newKey(att.FileName, att.MimeType)
	if err := r.storage.WriteFile(ctx, key, data); err != nil {
		return "", ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
	}
	att.StorageKey = key

	presigner, ok := r.storage.(fsx.PresignedURLGenerator)
	if !ok {
		return key, nil
	}
	url, err := presigner.GetPresignedDownloadURL(ctx, key, r.presignTTL)
	if err != nil {
		r.Discard(ctx, key)
		return "", ErrRegistry.NewWithCause(ErrStorage, err).WithDetail("key", key)
	}
	att.URL = url
	att.Data = nil
	return key, nil
}

// fetch downloads a URL reference, retrying transport failures. The read
// is capped one byte past the size limit so oversized bodies are caught
// without being fully downloaded.
func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, string, error) {
	type fetched struct {
		data        []byte
		contentType string
	}

	out, err := asyncx.RetryWithBackoff(ctx, fetchAttempts, fetchBackoff, func(ctx context.Context) (fetched, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fetched{}, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return fetched{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fetched{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxSize+1))
		if err != nil {
			return fetched{}, err
		}
		return fetched{data: data, contentType: cutParams(resp.Header.Get("Content-Type"))}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return out.data, out.contentType, nil
}

// newKey builds a date-partitioned storage key with a stable extension.
func (r *Resolver) newKey(fileName, mimeType string) string {
	ext := path.Ext(fileName)
	if ext == "" {
		ext = extensionFor(mimeType)
	}
	return r.storage.Join(time.Now().UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

func (r *Resolver) checkSize(n int64) error {
	if n > r.maxSize {
		return ErrRegistry.New(ErrTooLarge).
			WithDetail("size", n).
			WithDetail("limit", r.maxSize)
	}
	return nil
}

// parseDataURI splits "data:<mime>;base64,<payload>" into payload and
// mime type. Anything not shaped like a data URI is returned unchanged
// as the payload.
func parseDataURI(s string) (payload, mimeType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	comma := strings.Index(s, ",")
	if comma < 0 {
		return s, ""
	}
	header := strings.TrimSuffix(s[len("data:"):comma], ";base64")
	if i := strings.Index(header, ";"); i >= 0 {
		header = header[:i]
	}
	return s[comma+1:], header
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cutParams(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// fileNameFromURL extracts the last path segment, ignoring the query.
func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// extensionFor maps common media MIME types onto file extensions.
func extensionFor(mimeType string) string {
	switch cutParams(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
