// Package pipeline fans page snapshots out over a worker pool and merges
// the extracted records into the shared store.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archivist-tools/forumharvest/internal/extract"
	"github.com/archivist-tools/forumharvest/internal/metrics"
	"github.com/archivist-tools/forumharvest/internal/store"
)

// Config controls Pipeline behavior.
type Config struct {
	// Root is the directory tree containing page snapshots.
	Root string
	// Extension marks candidate files (default ".html").
	Extension string
	// Workers bounds parallel fan-out. Zero means one worker per CPU.
	Workers int
}

// FileError records one snapshot that contributed nothing to the store.
type FileError struct {
	Path string
	Err  error
}

// Summary aggregates per-file outcomes of one run.
type Summary struct {
	RunID     string
	Files     int
	Succeeded int
	Failed    int
	Errors    []FileError
}

// AllFailed reports whether the run found work but none of it succeeded.
func (s Summary) AllFailed() bool {
	return s.Files > 0 && s.Succeeded == 0
}

// Pipeline executes the extract-and-merge loop for a directory of
// snapshots. Workers are independent: each file is read, parsed and merged
// start to finish by one worker, and the store is the only shared sink.
type Pipeline struct {
	store  store.Store
	locs   *extract.Selectors
	cfg    Config
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(st store.Store, locs *extract.Selectors, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Extension == "" {
		cfg.Extension = ".html"
	}
	return &Pipeline{
		store:  st,
		locs:   locs,
		cfg:    cfg,
		logger: logger,
	}
}

// Run discovers snapshots under the root and processes them. Per-file
// failures are collected in the Summary; only a failure to enumerate the
// root returns an error.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	files, err := p.discover()
	if err != nil {
		return Summary{}, err
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	runID := newRunID()
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("pipeline starting",
		zap.String("root", p.cfg.Root),
		zap.Int("files", len(files)),
		zap.Int("workers", workers),
	)

	summary := Summary{RunID: runID, Files: len(files)}
	var mu sync.Mutex
	paths := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				if err := p.processFile(ctx, logger, path); err != nil {
					mu.Lock()
					summary.Failed++
					summary.Errors = append(summary.Errors, FileError{Path: path, Err: err})
					mu.Unlock()
					continue
				}
				mu.Lock()
				summary.Succeeded++
				mu.Unlock()
			}
		}()
	}

feed:
	for _, path := range files {
		select {
		case <-ctx.Done():
			break feed
		case paths <- path:
		}
	}
	close(paths)
	wg.Wait()

	logger.Info("pipeline finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// discover walks the full subtree under the root collecting candidate
// snapshot files; everything without the snapshot extension is ignored.
func (p *Pipeline) discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), p.cfg.Extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.cfg.Root, err)
	}
	return files, nil
}

func (p *Pipeline) processFile(ctx context.Context, logger *zap.Logger, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordPage("read_error")
		logger.Error("read snapshot failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("read %s: %w", path, err)
	}

	rec, err := extract.ParsePage(string(raw), p.locs)
	if err != nil {
		metrics.RecordPage("parse_error")
		logger.Error("parse snapshot failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if err := p.store.MergeThread(ctx, rec); err != nil {
		metrics.RecordPage("merge_error")
		logger.Error("merge thread failed",
			zap.String("path", path),
			zap.Uint64("thread_id", rec.ID),
			zap.Error(err),
		)
		return err
	}

	metrics.RecordPage("merged")
	metrics.RecordThreadMerged(len(rec.Posts))
	logger.Debug("thread page merged",
		zap.String("path", path),
		zap.Uint64("thread_id", rec.ID),
		zap.Int("posts", len(rec.Posts)),
	)
	return nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
