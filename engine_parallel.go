package scopegraph

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jward/scopegraph/internal/cache"
	"github.com/jward/scopegraph/internal/lang"
	"github.com/jward/scopegraph/internal/store"
	"github.com/jward/scopegraph/internal/symbol"
)

const tracerName = "scopegraph"

// FileError records a file that could not be indexed.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// IndexReport summarizes one IndexFiles or IndexDirectory run.
type IndexReport struct {
	RunID   string
	Indexed int
	// Skipped counts files whose content hash matched the stored one.
	Skipped int
	// CacheHits counts analyzed files served from the cache.
	CacheHits  int
	Failed     []FileError
	ByStrategy map[string]int
	Removed    []string
	Duration   time.Duration
}

// workItem holds everything a worker needs for one file.
type workItem struct {
	path string
	lang *lang.Language
	src  []byte
	hash string
}

// result is the outcome of analyzing one workItem.
type result struct {
	item     workItem
	loc      symbol.Locations
	payload  []byte
	cacheHit bool
	err      error
}

// IndexFiles indexes the given files using a three-phase pipeline:
//
//	Phase A (serial):   language detection, read, hash check.
//	Phase B (parallel): cache lookup, analysis and encoding on a worker pool.
//	Phase C (serial):   commit every analyzed file to SQLite in one transaction.
//
// Per-file failures are collected in the report; the returned error is
// reserved for cancellation and storage failures.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (*IndexReport, error) {
	start := time.Now()
	report := &IndexReport{RunID: uuid.New().String(), ByStrategy: make(map[string]int)}
	logger := e.logger.With("run_id", report.RunID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "scopegraph.IndexFiles",
		trace.WithAttributes(
			attribute.String("run_id", report.RunID),
			attribute.Int("files", len(paths)),
		))
	defer span.End()

	// ---- Phase A: Serial file preparation ----
	items, err := e.prepareFiles(paths, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("scopegraph: %w", err)
	}

	// ---- Phase B: Parallel analysis ----
	results, err := e.analyzeFiles(ctx, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("scopegraph: %w", err)
	}

	// ---- Phase C: Serial commit ----
	if err := e.commitResults(results, report, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("scopegraph: %w", err)
	}

	if err := e.store.SetRun(report.RunID, start); err != nil {
		return report, fmt.Errorf("scopegraph: %w", err)
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("indexed", report.Indexed),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("failed", len(report.Failed)),
	)
	logger.Info("index complete",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"cache_hits", report.CacheHits,
		"failed", len(report.Failed),
		"duration", report.Duration)
	return report, nil
}

// prepareFiles does Phase A: unsupported and unchanged files are dropped,
// unreadable files are recorded as failures.
func (e *Engine) prepareFiles(paths []string, report *IndexReport) ([]workItem, error) {
	type candidate struct {
		path string
		lang *lang.Language
	}
	var candidates []candidate
	var abs []string
	for _, p := range paths {
		l, ok := e.registry.ForPath(p)
		if !ok || !e.handles(l.ID) {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			report.Failed = append(report.Failed, FileError{Path: p, Err: err})
			continue
		}
		candidates = append(candidates, candidate{path: a, lang: l})
		abs = append(abs, a)
	}

	existing, err := e.store.FilesByPaths(abs)
	if err != nil {
		return nil, err
	}

	var items []workItem
	for _, c := range candidates {
		src, err := os.ReadFile(c.path)
		if err != nil {
			report.Failed = append(report.Failed, FileError{Path: c.path, Err: err})
			continue
		}
		hash := store.ContentHash(src)
		if f, ok := existing[c.path]; ok && f.Hash == hash && !e.force {
			report.Skipped++
			continue
		}
		items = append(items, workItem{path: c.path, lang: c.lang, src: src, hash: hash})
	}
	return items, nil
}

// numWorkers returns the pool size for n items.
func (e *Engine) numWorkers(n int) int {
	if !e.parallel {
		return 1
	}
	w := e.workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, n))
}

// analyzeFiles does Phase B. Results keep the order of items.
func (e *Engine) analyzeFiles(ctx context.Context, items []workItem) ([]result, error) {
	results := make([]result, len(items))
	if len(items) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.numWorkers(len(items)))
	regHash := e.registry.Hash()
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.analyzeFile(gctx, regHash, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// analyzeFile produces the symbol location store of one file, from the cache
// when possible.
func (e *Engine) analyzeFile(ctx context.Context, regHash string, item workItem) result {
	res := result{item: item}
	key := cache.Key(regHash, item.lang.ID, item.src)

	if payload, ok, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Debug("cache lookup failed", "path", item.path, "err", err)
	} else if ok {
		loc, err := symbol.Decode(payload, e.registry)
		if err == nil {
			res.loc, res.payload, res.cacheHit = loc, payload, true
			return res
		}
		e.logger.Debug("discarding undecodable cache entry", "path", item.path, "err", err)
	}

	loc, err := e.analyzer.AnalyzeSource(ctx, item.path, item.src, item.lang.ID)
	if err != nil {
		res.err = err
		return res
	}
	payload, err := symbol.Encode(loc)
	if err != nil {
		res.err = fmt.Errorf("encode: %w", err)
		return res
	}
	if err := e.cache.Put(ctx, key, payload); err != nil {
		e.logger.Debug("cache store failed", "path", item.path, "err", err)
	}
	res.loc, res.payload = loc, payload
	return res
}

// commitResults does Phase C. The batch is committed atomically; when that
// fails each file is committed on its own so one bad file cannot block the
// rest.
func (e *Engine) commitResults(results []result, report *IndexReport, logger *slog.Logger) error {
	batch := store.NewBatch()
	var ok []result
	for _, res := range results {
		if res.err != nil {
			logger.Warn("file skipped", "path", res.item.path, "language", res.item.lang.ID, "err", res.err)
			report.Failed = append(report.Failed, FileError{Path: res.item.path, Err: res.err})
			continue
		}
		batch.Add(fileBatch(res))
		ok = append(ok, res)
	}
	if batch.Len() == 0 {
		return nil
	}

	committed := ok
	if err := e.store.CommitBatch(batch); err != nil {
		logger.Warn("batch commit failed, committing files one by one", "err", err)
		committed = nil
		for _, res := range ok {
			if err := e.store.CommitFile(fileBatch(res)); err != nil {
				report.Failed = append(report.Failed, FileError{Path: res.item.path, Err: err})
				continue
			}
			committed = append(committed, res)
		}
	}
	for _, res := range committed {
		report.Indexed++
		report.ByStrategy[res.loc.Strategy.String()]++
		if res.cacheHit {
			report.CacheHits++
		}
	}
	return nil
}

// fileBatch converts an analysis result into the rows stored for its file.
func fileBatch(res result) *store.FileBatch {
	src := res.item.src
	fb := &store.FileBatch{
		File: store.File{
			Path:        res.item.path,
			Language:    res.item.lang.ID,
			Hash:        res.item.hash,
			Strategy:    res.loc.Strategy.String(),
			LineCount:   bytes.Count(src, []byte("\n")) + 1,
			LastIndexed: time.Now(),
		},
		Version: symbol.Version,
		Payload: res.payload,
	}

	g, ok := res.loc.Graph()
	if !ok {
		for _, tag := range res.loc.Flatten() {
			fb.Symbols = append(fb.Symbols, store.Symbol{
				Name:     string(tag.Range.Text(src)),
				Kind:     tag.Kind,
				Range:    tag.Range,
				TopLevel: true,
			})
		}
		return fb
	}

	for _, d := range g.Definitions() {
		kind, _ := g.KindOf(d)
		fb.Symbols = append(fb.Symbols, store.Symbol{
			Name:     g.NameOf(d, src),
			Kind:     kind,
			Range:    g.Node(d).Range,
			TopLevel: g.IsTopLevel(d),
		})
	}
	for _, r := range g.References() {
		kind, _ := g.KindOf(r)
		ref := store.Reference{
			Name:  g.NameOf(r, src),
			Kind:  kind,
			Range: g.Node(r).Range,
		}
		if d, bound := g.DefinitionOf(r); bound {
			dr := g.Node(d).Range
			ref.Definition = &dr
		}
		fb.References = append(fb.References, ref)
	}
	return fb
}
