package dupefy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Engine runs duplicate analyses. Construct it once with NewEngine and share
// it; concurrent runs do not share any per-run state.
type Engine struct {
	cfg   Config
	stats *Stats
}

// NewEngine applies defaults to cfg and returns a ready engine.
func NewEngine(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, stats: &Stats{}}
}

// Stats returns the engine's cumulative counters.
func (e *Engine) Stats() *Stats { return e.stats }

// Analyze partitions images into near-duplicate groups. See Run for the
// error contract; Analyze only drops the bookkeeping fields of the result.
func (e *Engine) Analyze(ctx context.Context, images []ImageRecord, p Params, progress ProgressReporter) ([]DuplicateGroup, error) {
	res, err := e.Run(ctx, images, p, progress)
	if err != nil {
		return nil, err
	}
	return res.Groups, nil
}

// Run performs a full analysis and returns the groups together with the
// images that had to be skipped.
//
// Errors:
//   - *InvalidParameterError: bad params, empty or duplicate IDs (no work done)
//   - *CancelledError: ctx ended; partial work is discarded
//   - *InternalError: unexpected fault; no partial grouping is returned
//
// Undecodable images are not errors: they are listed in Result.Skipped.
func (e *Engine) Run(ctx context.Context, images []ImageRecord, p Params, progress ProgressReporter) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := validateRecords(images); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	start := time.Now()
	rep := MonotonicReporter(progress)
	rep.Report(progressStart, fmt.Sprintf("Analyzing %d images", len(images)))

	feats, skipped, err := e.extractAll(ctx, images, rep)
	if err != nil {
		return nil, err
	}
	analyzed := len(images) - len(skipped)
	rep.Report(progressExtracted, fmt.Sprintf("Computing similarities for %d images (skipped: %d)", analyzed, len(skipped)))

	var clusters [][]int
	err = e.protect("cluster", func() error {
		var cerr error
		clusters, cerr = buildClusters(ctx, feats, newMatcher(p), clusterProgress(rep))
		return cerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	rep.Report(progressClustered, fmt.Sprintf("Ranking %d groups", len(clusters)))

	var groups []DuplicateGroup
	err = e.protect("rank", func() error {
		groups = rankClusters(images, feats, clusters)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Groups:   groups,
		Total:    len(images),
		Analyzed: analyzed,
		Skipped:  skipped,
	}
	e.stats.record(res)

	slog.Debug("dupefy: analysis complete",
		"images", len(images), "skipped", len(skipped), "groups", len(groups),
		"threshold", p.Threshold, "window_hours", p.TimeWindowHours,
		"elapsed", time.Since(start))

	rep.Report(progressDone, fmt.Sprintf("Analysis complete: %d groups found", len(groups)))
	return res, nil
}

func validateRecords(images []ImageRecord) error {
	seen := make(map[string]struct{}, len(images))
	for i := range images {
		id := images[i].ID
		if id == "" {
			return &InvalidParameterError{Param: "images", Value: fmt.Sprintf("#%d", i), Reason: "record has an empty id"}
		}
		if _, dup := seen[id]; dup {
			return &InvalidParameterError{Param: "images", Value: id, Reason: "duplicate id in batch"}
		}
		seen[id] = struct{}{}
	}
	return nil
}

type extractResult struct {
	idx  int
	feat *Features
	err  error
}

// extractAll runs Extract over every record on a bounded pool. The returned
// slice is indexed like images; skipped images leave a nil entry.
func (e *Engine) extractAll(ctx context.Context, images []ImageRecord, rep ProgressReporter) ([]*Features, []SkippedImage, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan extractResult, len(images))
	sem := make(chan struct{}, e.cfg.Concurrency)
	for i := range images {
		go e.extractOne(runCtx, i, &images[i], sem, results)
	}

	feats := make([]*Features, len(images))
	var skippedIdx []int
	var internal error
	for done := 1; done <= len(images); done++ {
		r := <-results

		var decodeErr *DecodeError
		var internalErr *InternalError
		switch {
		case r.err == nil:
			feats[r.idx] = r.feat
		case errors.As(r.err, &decodeErr):
			skippedIdx = append(skippedIdx, r.idx)
			slog.Warn("dupefy: image skipped", "id", images[r.idx].ID, "error", decodeErr.Err.Error())
			if e.cfg.OnSkip != nil {
				e.cfg.OnSkip(images[r.idx].ID, r.err)
			}
		case errors.As(r.err, &internalErr):
			if internal == nil {
				internal = internalErr
				slog.Error("dupefy: internal error", "stage", "extract", "id", images[r.idx].ID,
					"correlation_id", internalErr.CorrelationID, "error", internalErr.Err.Error())
				cancel()
			}
		}

		if internal == nil && (done%e.cfg.ProgressEvery == 0 || done == len(images)) {
			rep.Report(phaseProgress(progressStart, progressExtracted, done, len(images)),
				fmt.Sprintf("Extracting features: %d/%d (skipped: %d)", done, len(images), len(skippedIdx)))
		}
	}

	if internal != nil {
		return nil, nil, internal
	}
	if ctx.Err() != nil {
		return nil, nil, cancelled(ctx)
	}

	sort.Ints(skippedIdx)
	skipped := make([]SkippedImage, 0, len(skippedIdx))
	for _, i := range skippedIdx {
		skipped = append(skipped, SkippedImage{ID: images[i].ID, Reason: "decode failed"})
	}
	return feats, skipped, nil
}

// extractOne is a pool worker. It always sends exactly one result, even when
// Extract panics.
func (e *Engine) extractOne(ctx context.Context, idx int, rec *ImageRecord, sem chan struct{}, out chan<- extractResult) {
	res := extractResult{idx: idx}
	defer func() { out <- res }()
	defer func() {
		if r := recover(); r != nil {
			if e.cfg.OnPanic != nil {
				e.cfg.OnPanic("extract", r)
			}
			res.feat = nil
			res.err = newInternalError(fmt.Errorf("panic extracting %s: %v", rec.ID, r))
		}
	}()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		res.err = ctx.Err()
		return
	}
	defer func() { <-sem }()

	if err := ctx.Err(); err != nil {
		res.err = err
		return
	}

	f, err := e.Extract(*rec)
	if err != nil {
		res.err = err
		return
	}
	res.feat = &f
}

// protect runs fn and converts a panic into *InternalError.
func (e *Engine) protect(tag string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e.cfg.OnPanic != nil {
				e.cfg.OnPanic(tag, r)
			}
			ie := newInternalError(fmt.Errorf("panic in %s: %v", tag, r))
			slog.Error("dupefy: internal error", "stage", tag, "correlation_id", ie.CorrelationID, "error", ie.Err.Error())
			err = ie
		}
	}()
	return fn()
}

// clusterProgress reports the sweep between the extraction and clustering
// boundaries, only when the integer percentage moves.
func clusterProgress(rep ProgressReporter) func(done, total int) {
	last := progressExtracted
	return func(done, total int) {
		pct := phaseProgress(progressExtracted, progressClustered, done, total)
		if pct == last {
			return
		}
		last = pct
		rep.Report(pct, fmt.Sprintf("Comparing images: %d/%d", done, total))
	}
}

func rankClusters(images []ImageRecord, feats []*Features, clusters [][]int) []DuplicateGroup {
	groups := make([]DuplicateGroup, 0, len(clusters))
	for n, members := range clusters {
		cands := make([]candidate, len(members))
		for k, idx := range members {
			cands[k] = candidate{rec: &images[idx], feat: feats[idx]}
		}
		groups = append(groups, rankGroup(groupID(n+1), cands))
	}
	return groups
}
