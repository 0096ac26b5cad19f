package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragctx-go/internal/ingestion"
	"github.com/54b3r/ragctx-go/internal/logging"
	"github.com/54b3r/ragctx-go/internal/store"
)

// NewIngestCmd constructs the `ragctx ingest` command, which runs the
// ingestion pipeline over a directory to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var workers int
	var maxSize int
	var minOverlap int
	var failFast bool
	var progress bool
	var incremental bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a directory of documents into the vector store",
		Long: `Read every supported document in a directory, split it into overlapping
chunks, embed each chunk and upsert it into the configured vector store.

Supported formats: .txt, .md, .pdf, .docx, .xlsx. Hidden files, directories
and other extensions are skipped. Chunk ids are "<file>_chunk_<n>", so
re-ingesting a directory overwrites the previous records.

Relevant environment variables:
  EMBEDDING_PROVIDER   Embedding backend: openai, azure, ollama, langchain (default: openai)
  VECTOR_BACKEND       Vector store: qdrant, embedded, sqlite, pgvector, weaviate, rest (default: qdrant)
  INGEST_WORKERS       Files processed concurrently (default: 4)
  INGEST_MAX_SIZE      Maximum chunk length in characters (default: 2000)
  INGEST_MIN_OVERLAP   Characters carried over between chunks (default: 300)
  INGEST_FAIL_FAST     Stop at the first failing file (default: false)
  INGEST_MANIFEST      Manifest database for --incremental (default: ~/.ragctx/manifest.db)

Examples:
  ragctx ingest --dir ./handbook
  ragctx ingest --dir ./docs --workers 8 --progress
  ragctx ingest --dir ./docs --incremental
  VECTOR_BACKEND=sqlite ragctx ingest --dir ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			defer initTracing(ctx, log)()

			if !cmd.Flags().Changed("workers") {
				workers = getEnvInt("INGEST_WORKERS", workers)
			}
			if !cmd.Flags().Changed("max-size") {
				maxSize = getEnvInt("INGEST_MAX_SIZE", maxSize)
			}
			if !cmd.Flags().Changed("min-overlap") {
				minOverlap = getEnvInt("INGEST_MIN_OVERLAP", minOverlap)
			}
			if !cmd.Flags().Changed("fail-fast") {
				failFast = getEnvBool("INGEST_FAIL_FAST")
			}

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer s.Close()

			cfg := &ingestion.Config{
				MaxSize:    maxSize,
				MinOverlap: minOverlap,
				Workers:    workers,
				FailFast:   failFast,
				Logger:     log,
			}
			if progress {
				out := cmd.ErrOrStderr()
				cfg.Progress = func(ev ingestion.ProgressEvent) {
					fmt.Fprintf(out, "%s: chunk %d/%d\n", ev.File, ev.Chunk+1, ev.Total)
				}
			}

			if incremental {
				m, closeManifest, err := openManifest(log)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				defer closeManifest()
				cfg.Manifest = m
			}

			pipeline, err := ingestion.NewPipeline(s.embedder, s.store, cfg)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("dir", dir),
				slog.String("store", s.storeBackend),
				slog.Int("workers", workers),
			)

			report, err := pipeline.Ingest(ctx, dir)
			if report != nil {
				printReport(cmd, report)
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if report.Failed > 0 {
				return fmt.Errorf("ingest: %d of %d files failed", report.Failed, report.Failed+report.Files)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of documents to ingest")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Files processed concurrently")
	cmd.Flags().IntVar(&maxSize, "max-size", 0, "Maximum chunk length in characters (default 2000)")
	cmd.Flags().IntVar(&minOverlap, "min-overlap", 0, "Characters carried over between chunks (default 300)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing file")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print a line per stored chunk to stderr")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Skip files unchanged since the last run")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

// printReport writes the run summary to stdout, one failed file per line.
func printReport(cmd *cobra.Command, r *ingestion.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ingested %d files, %d chunks, %d failed", r.Files, r.Chunks, r.Failed)
	for _, extra := range []struct {
		n     int
		label string
	}{{r.Unchanged, "unchanged"}, {r.Skipped, "skipped"}, {r.Pruned, "stale chunks pruned"}} {
		if extra.n > 0 {
			fmt.Fprintf(out, ", %d %s", extra.n, extra.label)
		}
	}
	fmt.Fprintln(out)
	for _, fe := range r.Errors {
		var cause error = fe
		if inner := errors.Unwrap(fe); inner != nil {
			cause = inner
		}
		fmt.Fprintf(out, "  %s: %v\n", fe.File, cause)
	}
}

// openManifest opens the ingestion manifest at INGEST_MANIFEST or the
// default path.
func openManifest(log *slog.Logger) (*store.SQLiteManifest, func(), error) {
	path := os.Getenv("INGEST_MANIFEST")
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, nil, err
		}
	}
	m, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	log.Info("manifest opened", slog.String("path", path))
	return m, func() { _ = m.Close() }, nil
}
