// Package presigned provides an archive backend that uploads each object with
// an HTTP PUT to a URL derived from a template, for storage gateways that
// hand out pre-signed or token-authenticated upload endpoints.
//
//	archive "presigned" {
//	  url_template = "https://uploads.example.com/reports/{key}?token=${env.UPLOAD_TOKEN}"
//	  headers      = { "x-amz-acl" = "private" }
//	}
package presigned

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// KeyPlaceholder is replaced with the escaped object key in the URL template.
const KeyPlaceholder = "{key}"

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of an `archive "presigned"` block.
type Input struct {
	URLTemplate string            `hcl:"url_template"`
	Headers     map[string]string `hcl:"headers,optional"`
	Timeout     string            `hcl:"timeout,optional"`
}

// Store uploads objects with HTTP PUT.
type Store struct {
	template string
	headers  map[string]string
	client   *http.Client
}

var _ archive.Store = (*Store)(nil)

// New builds a Store. The template must contain KeyPlaceholder.
func New(template string, headers map[string]string, client *http.Client) (*Store, error) {
	if !strings.Contains(template, KeyPlaceholder) {
		return nil, fmt.Errorf("presigned archive: url_template must contain %s", KeyPlaceholder)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Store{template: template, headers: headers, client: client}, nil
}

// Put implements archive.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	logger := ctxlog.FromContext(ctx).With("key", key)
	target := strings.ReplaceAll(s.template, KeyPlaceholder, escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request for '%s': %w", key, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = int64(len(data))

	logger.Debug("Uploading object.", "size", len(data), "contentType", contentType)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request for '%s': %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload of '%s' failed with status: %s", key, resp.Status)
	}
	logger.Debug("Uploaded object.", "status", resp.Status)
	return nil
}

// escapeKey escapes each path segment but keeps the separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterArchive("presigned", &registry.ArchiveFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (archive.Store, error) {
			in := input.(*Input)
			timeout := DefaultTimeout
			if in.Timeout != "" {
				d, err := time.ParseDuration(in.Timeout)
				if err != nil {
					return nil, fmt.Errorf("presigned archive: invalid timeout '%s': %w", in.Timeout, err)
				}
				timeout = d
			}
			return New(in.URLTemplate, in.Headers, &http.Client{Timeout: timeout})
		},
	})
}
