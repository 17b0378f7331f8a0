// Package upload moves accumulated files from the chat transport to
// the remote store: stage locally, sniff the content type, upload
// resumably, and always clean up staging.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drivedrop/drivedrop/internal/drive"
	"github.com/drivedrop/drivedrop/internal/logging"
	"github.com/drivedrop/drivedrop/internal/monitoring"
	"github.com/drivedrop/drivedrop/internal/session"
)

const fallbackMIME = "application/octet-stream"

// Fetcher streams transport file bytes into a local path.
type Fetcher interface {
	Fetch(ctx context.Context, fileID, path string) error
}

// Pipeline uploads batches one item at a time, in arrival order, so
// the summary order is deterministic and remote rate limits stay
// predictable.
type Pipeline struct {
	store   drive.Store
	fetcher Fetcher
	staging string
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithStagingDir overrides the staging base directory.
func WithStagingDir(dir string) Option {
	return func(p *Pipeline) {
		if dir != "" {
			p.staging = dir
		}
	}
}

// WithMetrics attaches upload metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline staging under the OS temp directory unless
// overridden.
func New(store drive.Store, fetcher Fetcher, log *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		fetcher: fetcher,
		staging: os.TempDir(),
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run attempts every item and returns one result per item in input
// order. A failed item never aborts the batch; staging space is
// released on every exit path.
func (p *Pipeline) Run(ctx context.Context, items []session.FileItem, dest drive.Folder) []session.UploadResult {
	batchDir := filepath.Join(p.staging, "drivedrop-"+uuid.NewString())
	if err := os.MkdirAll(batchDir, 0o700); err != nil {
		results := make([]session.UploadResult, len(items))
		for i, item := range items {
			results[i] = session.UploadResult{Name: item.Name, Err: fmt.Errorf("create staging dir: %w", err)}
			p.metrics.RecordUpload(false, 0)
		}
		return results
	}
	defer os.RemoveAll(batchDir)

	results := make([]session.UploadResult, 0, len(items))
	for _, item := range items {
		results = append(results, p.runOne(ctx, batchDir, item, dest))
	}
	return results
}

func (p *Pipeline) runOne(ctx context.Context, dir string, item session.FileItem, dest drive.Folder) session.UploadResult {
	staged := filepath.Join(dir, stagingName(item.Name))
	// Released unconditionally, including partially written files
	// left behind by a failed fetch.
	defer os.Remove(staged)

	if err := p.fetcher.Fetch(ctx, item.FileID, staged); err != nil {
		p.log.Warn("file download failed", zap.String("name", item.Name), zap.Error(err))
		p.metrics.RecordUpload(false, 0)
		return session.UploadResult{Name: item.Name, Err: fmt.Errorf("download: %w", err)}
	}

	uploaded, err := p.store.UploadFile(ctx, dest.ID, staged, p.detectMIME(staged, item))
	if err != nil {
		p.log.Warn("file upload failed", zap.String("name", item.Name), zap.Error(err))
		p.metrics.RecordUpload(false, 0)
		return session.UploadResult{Name: item.Name, Err: err}
	}

	size := int64(0)
	if info, statErr := os.Stat(staged); statErr == nil {
		size = info.Size()
	}
	p.metrics.RecordUpload(true, size)
	p.log.Info("file uploaded",
		zap.String("name", item.Name),
		zap.String("id", uploaded.ID),
		zap.Int64("bytes", size))
	return session.UploadResult{Name: item.Name, ID: uploaded.ID, Link: uploaded.Link}
}

// detectMIME sniffs the staged bytes, then falls back to the
// transport's hint, then to the generic binary type.
func (p *Pipeline) detectMIME(path string, item session.FileItem) string {
	mt, err := mimetype.DetectFile(path)
	if err == nil && mt.String() != fallbackMIME {
		return mt.String()
	}
	if item.MIME != "" {
		return item.MIME
	}
	return fallbackMIME
}

// stagingName flattens a display name into a safe file name within
// the staging directory.
func stagingName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
