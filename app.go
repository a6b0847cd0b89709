package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/batch"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/cache"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/config"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ingest"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/metrics"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/output"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts/engines"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// app holds everything one command invocation needs to convert batches.
type app struct {
	engine    ttypes.EngineType
	req       tts.Request
	repo      *batch.Repository
	scheduler *batch.Scheduler
	store     *output.Store
	metrics   *metrics.Metrics
	cache     *cache.Manager
}

// newApp wires the engine, cache, converter, scheduler and output store
// from the loaded configuration.
func newApp(c config.Config) (*app, error) {
	engineType, err := tts.ValidateEngineSelection(c.Engine, "")
	if err != nil {
		return nil, err
	}

	req := c.Request()
	if err := tts.ValidateRequest(engineType, req); err != nil {
		return nil, err
	}

	merge, err := output.ParseMergeMode(c.Output.Merge)
	if err != nil {
		return nil, err
	}

	var (
		synth    tts.Synthesizer
		rewriter tts.Rewriter
		scope    string
	)
	switch engineType {
	case ttypes.EngineGemini:
		g := engines.NewGeminiEngine(c.GeminiEngineConfig())
		synth, scope = g, g.CacheScope()
		if c.Gemini.Rewrite {
			rewriter = g
		}
	case ttypes.EngineMock:
		m := engines.NewMockEngine(c.MockEngineConfig())
		synth, rewriter, scope = m, m, m.CacheScope()
	}

	a := &app{
		engine:  engineType,
		req:     req,
		repo:    batch.NewRepository(),
		metrics: metrics.New(nil),
	}

	if c.Cache.Enabled {
		cc, err := c.CacheManagerConfig()
		if err != nil {
			return nil, fmt.Errorf("unable to resolve cache directory: %w", err)
		}
		mgr, err := cache.NewManager(cc)
		if err != nil {
			return nil, fmt.Errorf("unable to open synthesis cache: %w", err)
		}
		a.cache = mgr
		synth = engines.Cached(synth, mgr, scope)
		if err := a.metrics.RegisterCache(mgr.Stats); err != nil {
			log.Warn("could not export cache metrics", "err", err)
		}
		log.Debug("synthesis cache ready", "dir", cc.DiskPath, "memory", humanize.IBytes(uint64(cc.MemoryCapacity)))
	}

	conv := tts.NewConverter(synth, rewriter,
		tts.WithLogger(log.Default().WithPrefix("line")),
		tts.WithRecorder(a.metrics),
	)
	a.scheduler = batch.NewScheduler(a.repo, conv,
		batch.WithMaxInFlight(c.MaxInFlight),
		batch.WithLogger(log.Default()),
	)

	a.store = output.NewStore(c.Output.Dir, merge)
	a.store.SkipLines = !c.Output.Lines
	a.store.Meta = output.RunMeta{Engine: engineType.String(), Voice: req.VoiceID, Prompt: req.PromptPrefix}

	a.repo.SetUpdateCallback(func(u batch.Update) {
		if u.Line == nil {
			log.Debug("batch status", "batch", u.BatchID, "status", u.BatchStatus)
			return
		}
		if u.Line.Status.IsTerminal() {
			log.Debug("line settled", "batch", u.BatchID, "line", u.Line.ID, "status", u.Line.Status)
		}
	})
	return a, nil
}

// serveMetrics starts the metrics endpoint in the background when addr is set.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, addr); err != nil {
			log.Error("metrics endpoint failed", "addr", addr, "err", err)
		}
	}()
}

// load reads files into the repository. Files that fail to load are kept as
// Error batches so the summary can list them; their errors are returned by
// batch ID.
func (a *app) load(paths []string) map[string]error {
	errs := make(map[string]error)
	for _, p := range paths {
		b, err := ingest.LoadFile(p)
		if err != nil {
			log.Error("could not load input", "file", p, "err", err)
		} else {
			log.Info("loaded input", "file", b.Name, "lines", len(b.Lines), "timed", b.HasTiming())
		}
		if addErr := a.repo.Add(b); addErr != nil {
			log.Error("could not queue input", "file", p, "err", addErr)
			continue
		}
		if err != nil {
			errs[b.ID] = err
		}
	}
	return errs
}

// run converts every Pending batch and writes the deliverables of each one
// that finished. It returns the summary rows in input order.
func (a *app) run(ctx context.Context, loadErrs map[string]error) ([]batchSummary, error) {
	started := time.Now()
	convErr := a.scheduler.ConvertAll(ctx, a.req)

	var rows []batchSummary
	for _, b := range a.repo.All() {
		row := batchSummary{Batch: b, Err: loadErrs[b.ID]}
		if b.Status == ttypes.StatusDone {
			res, err := a.store.Write(b)
			row.Result = res
			if err != nil {
				log.Error("could not write outputs", "batch", b.Name, "err", err)
				row.Err = err
			}
		}
		rows = append(rows, row)
	}

	log.Info("run finished", "batches", len(rows), "elapsed", time.Since(started).Round(time.Millisecond))
	return rows, convErr
}

// convertFile loads, converts and writes a single file, then drops it from
// the repository.
func (a *app) convertFile(ctx context.Context, path string) (batchSummary, error) {
	b, err := ingest.LoadFile(path)
	if err != nil {
		return batchSummary{Batch: b, Err: err}, err
	}
	if err := a.repo.Add(b); err != nil {
		return batchSummary{Batch: b, Err: err}, err
	}
	defer func() { _ = a.repo.Remove(b.ID) }()

	if err := a.scheduler.ConvertBatch(ctx, b.ID, a.req); err != nil {
		return batchSummary{Batch: b, Err: err}, err
	}

	done, _ := a.repo.Get(b.ID)
	res, err := a.store.Write(done)
	return batchSummary{Batch: done, Result: res, Err: err}, err
}

// close releases the cache.
func (a *app) close() {
	if a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		log.Warn("could not close synthesis cache", "err", err)
	}
}
