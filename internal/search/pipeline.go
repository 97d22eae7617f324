package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AssetOverflow/BibleStudyAI/internal/config"
	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/store"
)

// Result is the outcome of one retrieval pass.
type Result struct {
	Results []*FusedResult

	// Degraded is true when at least one origin failed but retrieval
	// still produced evidence from the others.
	Degraded bool

	// FailedOrigins lists the origins that were unavailable.
	FailedOrigins []Origin

	// Faults carries the per-origin errors for logging; empty when all
	// three origins succeeded.
	Faults []error

	// Elapsed is the wall time of the retrieval phase.
	Elapsed time.Duration
}

// Pipeline runs the three retrieval origins concurrently, fuses their hits,
// and hydrates the top results with display fields from the corpus.
//
// Failure policy: one or two unavailable origins degrade the result; only
// total failure, or a fatal configuration error such as an embedding
// dimension mismatch, fails the query.
type Pipeline struct {
	lexical Adapter
	vector  Adapter
	graph   Adapter
	corpus  store.CorpusStore
	cfg     config.SearchConfig
	logger  *slog.Logger
}

// NewPipeline wires the retrieval pipeline from its three adapters.
func NewPipeline(lexical, vector, graph Adapter, corpus store.CorpusStore, cfg config.SearchConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		lexical: lexical,
		vector:  vector,
		graph:   graph,
		corpus:  corpus,
		cfg:     cfg,
		logger:  logger,
	}
}

// Retrieve executes one hybrid query. The retrieval phase is bounded by
// cfg.QueryTimeout; each adapter additionally runs under its own timeout
// so one slow backing store cannot starve the others. Cancellation of ctx
// discards partial results and fails the query.
func (p *Pipeline) Retrieve(ctx context.Context, req *Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.cfg.MaxResults
	}
	if topK > config.ResultCap {
		topK = config.ResultCap
	}

	start := time.Now()

	// The whole retrieval phase runs under QueryTimeout as a backstop
	// over the per-adapter timeouts.
	qctx := ctx
	if p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}

	// Each origin fetches topK candidates; fusion dedups and truncates.
	lexHits, vecHits, graphHits, faults, err := p.parallelSearch(qctx, req, topK)
	if err != nil {
		if ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrCodeAllAdaptersFailed,
				"retrieval phase timed out", err)
		}
		return nil, err
	}

	weights := p.weights(req)
	fused := NewFusion(weights).Fuse(lexHits, vecHits, graphHits, topK)

	if err := p.hydrate(ctx, fused); err != nil {
		return nil, apperrors.InternalError("hydrating fused results", err)
	}

	res := &Result{
		Results: fused,
		Elapsed: time.Since(start),
	}
	for _, origin := range []Origin{OriginLexical, OriginVector, OriginGraph} {
		fault, ok := faults[origin]
		if !ok {
			continue
		}
		res.Degraded = true
		res.FailedOrigins = append(res.FailedOrigins, origin)
		res.Faults = append(res.Faults, fault)
		p.logger.Warn("retrieval origin unavailable, continuing degraded",
			slog.String("origin", string(origin)),
			slog.Any("error", fault))
	}

	p.logger.Debug("retrieval complete",
		slog.Int("lexical", len(lexHits)),
		slog.Int("vector", len(vecHits)),
		slog.Int("graph", len(graphHits)),
		slog.Int("fused", len(fused)),
		slog.Bool("degraded", res.Degraded),
		slog.Duration("elapsed", res.Elapsed))

	return res, nil
}

// parallelSearch runs the three adapters concurrently, each under its own
// timeout. Per-origin failures are captured rather than failing the group;
// only context cancellation, a fatal error, or all three origins failing
// aborts retrieval.
func (p *Pipeline) parallelSearch(ctx context.Context, req *Request, limit int) (
	lexHits, vecHits, graphHits []*RetrievalHit,
	faults map[Origin]error,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var lexErr, vecErr, graphErr error

	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, p.cfg.AdapterTimeout)
		defer cancel()
		lexHits, lexErr = p.lexical.Search(actx, req, limit)
		if isFatal(lexErr) {
			return lexErr
		}
		return nil
	})

	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, p.cfg.AdapterTimeout)
		defer cancel()
		vecHits, vecErr = p.vector.Search(actx, req, limit)
		if isFatal(vecErr) {
			// Dimension mismatch is a deployment defect; abort the
			// whole query instead of degrading.
			return vecErr
		}
		return nil
	})

	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, p.cfg.AdapterTimeout)
		defer cancel()
		graphHits, graphErr = p.graph.Search(actx, req, limit)
		if isFatal(graphErr) {
			return graphErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, nil, nil, waitErr
	}
	if ctx.Err() != nil {
		// The caller went away; partial results are useless because
		// fusion normalization needs complete per-origin batches.
		return nil, nil, nil, nil, ctx.Err()
	}

	faults = make(map[Origin]error, 3)
	if lexErr != nil {
		faults[OriginLexical] = lexErr
	}
	if vecErr != nil {
		faults[OriginVector] = vecErr
	}
	if graphErr != nil {
		faults[OriginGraph] = graphErr
	}

	if len(faults) == 3 {
		joined := errors.Join(lexErr, vecErr, graphErr)
		return nil, nil, nil, nil,
			apperrors.New(apperrors.ErrCodeAllAdaptersFailed,
				"all retrieval origins failed", joined)
	}

	return lexHits, vecHits, graphHits, faults, nil
}

// weights returns the effective fusion weights for a request.
func (p *Pipeline) weights(req *Request) Weights {
	if req.Weights != nil {
		return *req.Weights
	}
	return Weights{
		Lexical: p.cfg.LexicalWeight,
		Vector:  p.cfg.VectorWeight,
		Graph:   p.cfg.GraphWeight,
	}
}

// hydrate attaches chunk display fields to the fused results. Chunks that
// vanished from the corpus since indexing keep empty display fields rather
// than failing the query.
func (p *Pipeline) hydrate(ctx context.Context, results []*FusedResult) error {
	if len(results) == 0 {
		return nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}

	chunks, err := p.corpus.GetChunks(ctx, ids)
	if err != nil {
		return err
	}

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for _, r := range results {
		c, ok := byID[r.ChunkID]
		if !ok {
			continue
		}
		r.Content = c.Content
		r.Reference = c.Reference()
		r.DocumentTitle = c.Book
	}
	return nil
}

// isFatal reports whether an adapter error indicates a configuration
// defect that must not be absorbed into degraded mode.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.GetCode(err) == apperrors.ErrCodeDimensionMismatch
}
