// Package ingestion implements the document ingestion pipeline.
// It reads every supported file of a directory, chunks the text with
// overlap, embeds each chunk and upserts the results into the vector store.
// This pipeline is invoked by the `ragctx ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/ragctx-go/internal/chunker"
	"github.com/54b3r/ragctx-go/internal/rag"
	"github.com/54b3r/ragctx-go/internal/store"
)

// Metadata keys written on every record besides rag.ContentKey.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaDocType    = "doc_type"
	MetaTitle      = "title"
)

// ProgressEvent is emitted after each chunk is stored.
type ProgressEvent struct {
	// File is the base name of the document.
	File string
	// Chunk is the zero-based index of the stored chunk.
	Chunk int
	// Total is the number of chunks the document was split into.
	Total int
}

// FileError records why a file was not fully ingested.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string { return e.File + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// Report summarises one ingestion run.
type Report struct {
	// Files is the number of files that were fully ingested.
	Files int
	// Chunks is the number of chunk records upserted, including those of
	// files that later failed.
	Chunks int
	// Failed is the number of files that could not be fully ingested.
	Failed int
	// Unchanged is the number of files skipped because the manifest
	// already held their digest.
	Unchanged int
	// Skipped is the number of files skipped as unsupported or blank.
	Skipped int
	// Pruned is the number of stale chunk records deleted because a file
	// now splits into fewer chunks than the manifest recorded.
	Pruned int
	// Errors holds one entry per failed file, ordered by file name.
	Errors []FileError
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// MaxSize is the maximum chunk length in runes.
	// Defaults to chunker.DefaultMaxSize if zero.
	MaxSize int

	// MinOverlap is the number of runes carried over between chunks.
	// Defaults to chunker.DefaultMinOverlap if zero and MaxSize is also zero.
	MinOverlap int

	// Workers bounds the number of files processed concurrently.
	// Values below 2 process files one at a time.
	Workers int

	// FailFast stops the run at the first file error instead of recording it
	// and moving on.
	FailFast bool

	// Progress, if set, is called after every stored chunk. With Workers > 1
	// it may be called from several goroutines at once.
	Progress func(ProgressEvent)

	// Registerer receives the ingestion counters. A private registry is used
	// when nil.
	Registerer prometheus.Registerer

	// Manifest, if set, records each fully ingested file and lets later
	// runs skip files whose text and chunking policy are unchanged.
	Manifest Manifest

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manifest remembers which documents have been ingested.
// *store.SQLiteManifest satisfies it.
type Manifest interface {
	Lookup(ctx context.Context, source string) (store.Entry, bool, error)
	Record(ctx context.Context, e store.Entry) error
}

type ingestMetrics struct {
	chunksTotal *prometheus.CounterVec
	filesTotal  *prometheus.CounterVec
}

func newIngestMetrics(reg prometheus.Registerer) *ingestMetrics {
	factory := promauto.With(reg)
	return &ingestMetrics{
		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunk records handled by the ingestion pipeline, partitioned by outcome: ok, error or pruned.",
		}, []string{"outcome"}),
		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files processed by the ingestion pipeline, partitioned by outcome: ok, error, skipped or unchanged.",
		}, []string{"outcome"}),
	}
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for every
// supported file in a directory.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      Config
	log      *slog.Logger
	metrics  *ingestMetrics
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil: %w", rag.ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil: %w", rag.ErrInvalidInput)
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.MaxSize == 0 {
		c.MaxSize = chunker.DefaultMaxSize
		if c.MinOverlap == 0 {
			c.MinOverlap = chunker.DefaultMinOverlap
		}
	}
	if _, err := chunker.Split("", c.MaxSize, c.MinOverlap); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	reg := c.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      c,
		log:      c.Logger,
		metrics:  newIngestMetrics(reg),
	}, nil
}

// Ingest processes every supported file directly inside dir, in directory
// listing order. Subdirectories, hidden files and unsupported formats are
// skipped. A failing file is recorded in the report and the run continues
// unless FailFast is set, in which case the first file error is returned
// alongside the partial report.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list %s: %w", dir, err)
	}

	var (
		files   []string
		skipped int
	)
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			p.log.Debug("ingestion: skipping directory", slog.String("name", name))
		case strings.HasPrefix(name, "."):
			p.log.Debug("ingestion: skipping hidden file", slog.String("name", name))
		case !Supported(name):
			p.log.Debug("ingestion: skipping unsupported file", slog.String("name", name))
			p.metrics.filesTotal.WithLabelValues(fileSkipped).Inc()
			skipped++
		default:
			files = append(files, filepath.Join(dir, name))
		}
	}

	p.log.Info("ingestion: starting",
		slog.String("dir", dir),
		slog.Int("files", len(files)),
		slog.Int("workers", p.cfg.Workers),
	)

	var mu sync.Mutex
	report := Report{Skipped: skipped}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Files queued behind a fail-fast error are not attempted.
			if gctx.Err() != nil {
				return nil
			}
			res, ferr := p.ingestFile(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			report.Chunks += res.stored
			if ferr == nil {
				switch res.outcome {
				case fileUnchanged:
					report.Unchanged++
				case fileSkipped:
					report.Skipped++
				default:
					report.Files++
					report.Pruned += res.pruned
				}
				return nil
			}
			report.Failed++
			report.Errors = append(report.Errors, FileError{File: filepath.Base(path), Err: ferr})
			if p.cfg.FailFast {
				return FileError{File: filepath.Base(path), Err: ferr}
			}
			return nil
		})
	}
	werr := g.Wait()

	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].File < report.Errors[j].File })

	p.log.Info("ingestion: finished",
		slog.Int("files", report.Files),
		slog.Int("chunks", report.Chunks),
		slog.Int("failed", report.Failed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
		slog.Int("pruned", report.Pruned),
	)

	if werr != nil {
		return &report, fmt.Errorf("ingestion: %w", werr)
	}
	if err := ctx.Err(); err != nil {
		return &report, fmt.Errorf("ingestion: %w", err)
	}
	return &report, nil
}

// File outcomes, also used as files_total label values.
const (
	fileOK        = "ok"
	fileError     = "error"
	fileSkipped   = "skipped"
	fileUnchanged = "unchanged"
)

// fileResult is what one file contributed to a run.
type fileResult struct {
	outcome string
	// stored counts chunks upserted, including those before a failure.
	stored int
	// pruned counts stale chunk records deleted.
	pruned int
}

// ingestFile reads, chunks, embeds and upserts one file. With a manifest it
// skips files whose digest is unchanged and, after a successful re-ingest,
// deletes the records of chunk indexes the new version no longer has.
func (p *Pipeline) ingestFile(ctx context.Context, path string) (fileResult, error) {
	name := filepath.Base(path)
	log := p.log.With(slog.String("file", name))

	content, err := ReadFile(path)
	if err != nil {
		p.metrics.filesTotal.WithLabelValues(fileError).Inc()
		log.Warn("ingestion: read failed", slog.String("error", err.Error()))
		return fileResult{outcome: fileError}, err
	}
	if strings.TrimSpace(content) == "" {
		p.metrics.filesTotal.WithLabelValues(fileSkipped).Inc()
		log.Debug("ingestion: skipping empty document")
		return fileResult{outcome: fileSkipped}, nil
	}

	digest := p.digest(content)
	prev, seen := p.previous(ctx, name)
	if seen && prev.Digest == digest {
		p.metrics.filesTotal.WithLabelValues(fileUnchanged).Inc()
		log.Debug("ingestion: unchanged since last run, skipping")
		return fileResult{outcome: fileUnchanged}, nil
	}

	chunks, err := chunker.Split(content, p.cfg.MaxSize, p.cfg.MinOverlap)
	if err != nil {
		p.metrics.filesTotal.WithLabelValues(fileError).Inc()
		return fileResult{outcome: fileError}, err
	}
	meta := InferMetadata(path)
	log.Debug("ingestion: chunked", slog.Int("chunks", len(chunks)))

	res := fileResult{outcome: fileError}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			p.metrics.filesTotal.WithLabelValues(fileError).Inc()
			return res, err
		}
		if err := p.storeChunk(ctx, name, meta, c); err != nil {
			p.metrics.chunksTotal.WithLabelValues("error").Inc()
			p.metrics.filesTotal.WithLabelValues(fileError).Inc()
			log.Warn("ingestion: chunk failed, skipping rest of file",
				slog.Int("chunk", c.Index),
				slog.String("error", err.Error()),
			)
			return res, err
		}
		res.stored++
		p.metrics.chunksTotal.WithLabelValues("ok").Inc()
		log.Debug("ingestion: chunk stored", slog.Int("chunk", c.Index), slog.Int("total", len(chunks)))
		if p.cfg.Progress != nil {
			p.cfg.Progress(ProgressEvent{File: name, Chunk: c.Index, Total: len(chunks)})
		}
	}

	if seen {
		pruned, err := p.prune(ctx, name, res.stored, prev.Chunks)
		if err != nil {
			// Not recorded, so the next run retries the prune.
			p.metrics.filesTotal.WithLabelValues(fileError).Inc()
			log.Warn("ingestion: pruning stale chunks failed", slog.String("error", err.Error()))
			return res, fmt.Errorf("prune stale chunks: %w", err)
		}
		res.pruned = pruned
	}

	if p.cfg.Manifest != nil {
		if err := p.cfg.Manifest.Record(ctx, store.Entry{Source: name, Digest: digest, Chunks: res.stored}); err != nil {
			log.Warn("ingestion: manifest record failed", slog.String("error", err.Error()))
		}
	}

	res.outcome = fileOK
	p.metrics.filesTotal.WithLabelValues(fileOK).Inc()
	log.Info("ingestion: file ingested", slog.Int("chunks", res.stored), slog.Int("pruned", res.pruned))
	return res, nil
}

// digest identifies content split under the pipeline's chunking policy.
func (p *Pipeline) digest(content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d\n", p.cfg.MaxSize, p.cfg.MinOverlap)
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// previous returns the manifest entry for name. Manifest errors are logged
// and treated as a first ingest.
func (p *Pipeline) previous(ctx context.Context, name string) (store.Entry, bool) {
	if p.cfg.Manifest == nil {
		return store.Entry{}, false
	}
	e, ok, err := p.cfg.Manifest.Lookup(ctx, name)
	if err != nil {
		p.log.Warn("ingestion: manifest lookup failed", slog.String("file", name), slog.String("error", err.Error()))
		return store.Entry{}, false
	}
	return e, ok
}

// prune deletes the records of chunk indexes kept..was-1 of name. Stores
// that cannot delete keep them and prune reports zero.
func (p *Pipeline) prune(ctx context.Context, name string, kept, was int) (int, error) {
	if was <= kept {
		return 0, nil
	}
	d, ok := p.store.(rag.Deleter)
	if !ok {
		p.log.Debug("ingestion: store cannot delete, stale chunks kept", slog.String("file", name))
		return 0, nil
	}

	ids := make([]string, 0, was-kept)
	for i := kept; i < was; i++ {
		ids = append(ids, RecordID(name, i))
	}
	if err := d.Delete(ctx, ids); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			p.log.Debug("ingestion: store cannot delete, stale chunks kept", slog.String("file", name))
			return 0, nil
		}
		return 0, err
	}
	p.metrics.chunksTotal.WithLabelValues("pruned").Add(float64(len(ids)))
	return len(ids), nil
}

func (p *Pipeline) storeChunk(ctx context.Context, docID string, meta FileMetadata, c chunker.Chunk) error {
	vec, err := rag.EmbedOne(ctx, p.embedder, c.Text)
	if err != nil {
		return fmt.Errorf("embed chunk %d: %w", c.Index, err)
	}
	rec := rag.Record{
		ID:     RecordID(docID, c.Index),
		Vector: vec,
		Metadata: map[string]string{
			rag.ContentKey: c.Text,
			MetaSource:     docID,
			MetaChunkIndex: strconv.Itoa(c.Index),
			MetaDocType:    meta.DocType,
			MetaTitle:      meta.Title,
		},
	}
	if err := p.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert chunk %d: %w", c.Index, err)
	}
	return nil
}

// RecordID returns the stable record id of chunk index of a document.
func RecordID(docID string, index int) string {
	return docID + "_chunk_" + strconv.Itoa(index)
}

