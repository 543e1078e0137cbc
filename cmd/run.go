package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivist-tools/forumharvest/internal/config"
	"github.com/archivist-tools/forumharvest/internal/extract"
	"github.com/archivist-tools/forumharvest/internal/ops"
	"github.com/archivist-tools/forumharvest/internal/pipeline"
	"github.com/archivist-tools/forumharvest/internal/store"
)

// newRunCmd creates the 'run' subcommand, which provisions the store and
// executes the extraction pipeline over one input directory.
func newRunCmd(cfg *config.Config, logger **zap.Logger) *cobra.Command {
	var (
		storePath string
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "run <input-dir>",
		Short: "Extracts a directory of page snapshots into the store",
		Long: `Walks the given directory tree, parses every page snapshot into a
thread extraction record, and merges the records concurrently and
idempotently into the relational store. Files that fail to parse are
reported and skipped; the run only fails outright when the store is
unreachable or every file failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtraction(cmd.Context(), args[0], *cfg, *logger, storePath, workers)
		},
	}

	cmd.Flags().StringVarP(&storePath, "store", "s", "", "store path or postgres DSN (defaults to store.path)")
	cmd.Flags().IntVarP(&workers, "workers", "w", -1, "worker pool size, 0 for one per CPU (defaults to pipeline.workers)")

	return cmd
}

func runExtraction(
	ctx context.Context,
	root string,
	cfg config.Config,
	logger *zap.Logger,
	storePath string,
	workers int,
) error {
	if storePath == "" {
		storePath = cfg.Store.Path
	}
	if workers < 0 {
		workers = cfg.Pipeline.Workers
	}

	locs, err := extract.NewSelectors()
	if err != nil {
		return fmt.Errorf("build field locators: %w", err)
	}

	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("open store %q: %w", storePath, err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("Failed to close store", zap.Error(cerr))
		}
	}()

	// Schema provisioning happens exactly once, before any worker runs.
	if err := st.Provision(ctx); err != nil {
		return err
	}

	if cfg.Ops.Listen != "" {
		opsSrv := ops.NewServer(cfg.Ops.Listen, logger)
		opsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if serr := opsSrv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("Failed to stop ops listener", zap.Error(serr))
			}
		}()
	}

	p := pipeline.New(st, locs, pipeline.Config{
		Root:      root,
		Extension: cfg.Pipeline.Extension,
		Workers:   workers,
	}, logger)

	summary, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("Extraction complete",
		zap.Int("files", summary.Files),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)

	if summary.AllFailed() {
		return fmt.Errorf("all %d snapshot files failed", summary.Files)
	}
	return nil
}
