package reconcile

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

// derivation is the per-match output of the pipeline: the candidate plus the
// allowlist entries credited for suppressing it. Slots for malformed matches
// stay zero-valued and are counted as skipped.
type derivation struct {
	candidate findings.CandidateFinding
	matched   []uuid.UUID
	valid     bool
}

// PipelineResult aggregates one pass over a scan's raw matches.
type PipelineResult struct {
	Candidates []findings.CandidateFinding

	// MatchedEntryIDs lists every allowlist entry credited with at least one
	// suppression, deduplicated, for best-effort counter updates.
	MatchedEntryIDs []uuid.UUID

	// Skipped counts malformed matches dropped without failing the scan.
	Skipped int
}

// Pipeline derives candidates from raw matches: validation, fingerprinting,
// severity assignment and allowlist evaluation. Matches are independent, so
// derivation fans out across a bounded worker group while results keep the
// input order.
type Pipeline struct {
	severities findings.SeverityMap
	workers    int

	logger *logger.Logger
	tracer trace.Tracer
}

// NewPipeline returns a Pipeline evaluating matches against the given
// severity map. A non-positive worker count falls back to GOMAXPROCS.
func NewPipeline(severities findings.SeverityMap, workers int, logger *logger.Logger, tracer trace.Tracer) *Pipeline {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		severities: severities,
		workers:    workers,
		logger:     logger.With("component", "reconcile_pipeline"),
		tracer:     tracer,
	}
}

// Derive turns raw matches into candidates. A malformed match is logged and
// skipped; it never aborts the pass. The returned candidates carry their
// suppression verdicts so the reconciler can diff without re-evaluating.
func (p *Pipeline) Derive(ctx context.Context, matches []findings.RawMatch, allowlist *findings.Allowlist) (PipelineResult, error) {
	ctx, span := p.tracer.Start(ctx, "reconcile_pipeline.derive",
		trace.WithAttributes(
			attribute.Int("match_count", len(matches)),
			attribute.Int("workers", p.workers),
		),
	)
	defer span.End()

	derivations := make([]derivation, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, m := range matches {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				p.logger.Warn(gctx, "Skipping malformed match",
					"file_path", m.FilePath,
					"line_number", m.LineNumber,
					"reason", err.Error(),
				)
				return nil
			}

			verdict := allowlist.Evaluate(m, findings.ComputeFingerprint(m.Secret))
			c := findings.NewCandidate(m, p.severities, verdict.Suppressed)

			matched := make([]uuid.UUID, 0, len(verdict.Matched))
			for _, e := range verdict.Matched {
				matched = append(matched, e.ID())
			}
			derivations[i] = derivation{candidate: c, matched: matched, valid: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return PipelineResult{}, err
	}

	var res PipelineResult
	res.Candidates = make([]findings.CandidateFinding, 0, len(matches))
	seenEntries := make(map[uuid.UUID]struct{})
	for _, d := range derivations {
		if !d.valid {
			res.Skipped++
			continue
		}
		res.Candidates = append(res.Candidates, d.candidate)
		for _, id := range d.matched {
			if _, ok := seenEntries[id]; ok {
				continue
			}
			seenEntries[id] = struct{}{}
			res.MatchedEntryIDs = append(res.MatchedEntryIDs, id)
		}
	}

	span.SetAttributes(
		attribute.Int("candidate_count", len(res.Candidates)),
		attribute.Int("skipped_count", res.Skipped),
	)
	return res, nil
}
