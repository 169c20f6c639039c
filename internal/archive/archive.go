// Package archive publishes a run's artifacts to durable storage.
//
// Publication happens inside the run stage, on the artifact set captured from
// the node that executed the simulator. Files land under "<jobID>/<name>"
// followed by a manifest.json, so a reader that finds the manifest can rely
// on every file it lists being present.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"golang.org/x/sync/errgroup"
)

const (
	// ManifestName is the object written after all artifact files.
	ManifestName = "manifest.json"
	// DefaultConcurrency bounds parallel uploads per job.
	DefaultConcurrency = 4
)

// Store is the write side of an artifact archive. Putting an existing key
// overwrites it.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// PublishError reports that the archive could not be written. The run itself
// succeeded; only its artifacts are missing or incomplete.
type PublishError struct {
	JobID string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish artifacts for job '%s': %v", e.JobID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ManifestFile describes one archived file.
type ManifestFile struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// Manifest is the index written next to a job's artifacts.
type Manifest struct {
	JobID       string         `json:"job_id"`
	NodeID      string         `json:"node_id"`
	EntryPoint  string         `json:"entry_point,omitempty"`
	Title       string         `json:"title,omitempty"`
	Files       []ManifestFile `json:"files"`
	PublishedAt time.Time      `json:"published_at"`
}

// Receipt is returned by a successful Publish.
type Receipt struct {
	JobID       string    `json:"job_id"`
	NodeID      string    `json:"node_id"`
	Keys        []string  `json:"keys"`
	EntryPoint  string    `json:"entry_point,omitempty"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Empty reports whether nothing was archived.
func (r *Receipt) Empty() bool { return r == nil || len(r.Keys) == 0 }

// Options configures a Publisher.
type Options struct {
	// EntryPoint is the file named as the primary report in the manifest.
	EntryPoint  string
	Concurrency int
	Now         func() time.Time
}

// Publisher writes artifact sets to a Store.
type Publisher struct {
	store Store
	opts  Options
}

// NewPublisher creates a Publisher over store.
func NewPublisher(store Store, opts Options) *Publisher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{store: store, opts: opts}
}

// Publish archives every file in set under jobID. An empty set is a success
// with zero files and writes nothing.
func (p *Publisher) Publish(ctx context.Context, jobID string, set *model.ArtifactSet) (*Receipt, error) {
	logger := ctxlog.FromContext(ctx)
	now := p.opts.Now().UTC()

	if set.Empty() {
		logger.Info("⚠️ Run produced no artifacts, nothing to publish.")
		receipt := &Receipt{JobID: jobID, PublishedAt: now}
		if set != nil {
			receipt.NodeID = set.NodeID
		}
		return receipt, nil
	}

	manifest := Manifest{JobID: jobID, NodeID: set.NodeID, PublishedAt: now}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, f := range set.Files {
		key := path.Join(jobID, f.Name)
		ct := contentType(f.Name)
		manifest.Files = append(manifest.Files, ManifestFile{Name: f.Name, Key: key, Size: len(f.Data), ContentType: ct})
		if f.Name == p.opts.EntryPoint {
			manifest.EntryPoint = key
			manifest.Title = reportTitle(f.Data)
		}

		g.Go(func() error {
			logger.Debug("Uploading artifact.", "key", key, "bytes", len(f.Data))
			if err := p.store.Put(gctx, key, f.Data, ct); err != nil {
				return fmt.Errorf("failed to put '%s': %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &PublishError{JobID: jobID, Err: err}
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, &PublishError{JobID: jobID, Err: fmt.Errorf("failed to encode manifest: %w", err)}
	}
	manifestKey := path.Join(jobID, ManifestName)
	if err := p.store.Put(ctx, manifestKey, body, "application/json"); err != nil {
		return nil, &PublishError{JobID: jobID, Err: fmt.Errorf("failed to put '%s': %w", manifestKey, err)}
	}

	receipt := &Receipt{
		JobID:       jobID,
		NodeID:      set.NodeID,
		EntryPoint:  manifest.EntryPoint,
		Title:       manifest.Title,
		PublishedAt: now,
	}
	for _, f := range manifest.Files {
		receipt.Keys = append(receipt.Keys, f.Key)
	}
	receipt.Keys = append(receipt.Keys, manifestKey)
	return receipt, nil
}

var knownTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := knownTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// reportTitle extracts the <title> of an HTML report. Unparseable input
// yields an empty title.
func reportTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
