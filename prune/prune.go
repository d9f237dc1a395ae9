// Package prune removes nodes left behind by earlier publish jobs.
//
// A node is stale for a label when its published_tag is set and differs from
// the tag of the current job. Nodes without a tag were never published and
// are left alone. Pruning a label is refused when the stale share of its
// nodes exceeds the configured percentage, which protects against pruning
// after a partial publish.
package prune

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rlch/metagraph"
)

// ErrTooManyStale is returned when a label exceeds the stale threshold.
var ErrTooManyStale = errors.New("prune: stale share above threshold")

// LabelResult is the outcome of pruning one label.
type LabelResult struct {
	Label   string
	Total   int64
	Stale   int64
	Deleted int64
}

// Pct returns the stale share of the label in percent.
func (r LabelResult) Pct() float64 {
	if r.Total == 0 {
		return 0
	}

	return float64(r.Stale) * 100 / float64(r.Total)
}

// Pruner deletes stale nodes from a store.
type Pruner struct {
	store  metagraph.StaleStore
	cfg    metagraph.PruneConfig
	logger *zap.Logger
	dryRun bool
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDryRun counts stale nodes without deleting them.
func WithDryRun(enabled bool) Option {
	return func(p *Pruner) {
		p.dryRun = enabled
	}
}

// New creates a Pruner.
func New(store metagraph.StaleStore, cfg metagraph.PruneConfig, opts ...Option) (*Pruner, error) {
	if cfg.MaxStalePct < 0 || cfg.MaxStalePct > 100 {
		return nil, metagraph.NewConfigError("prune.max_stale_pct", "must be between 0 and 100")
	}

	if len(cfg.Labels) == 0 {
		return nil, metagraph.NewConfigError("prune.labels", "required")
	}

	for _, label := range cfg.Labels {
		if err := metagraph.ValidateName(label); err != nil {
			return nil, metagraph.NewConfigError("prune.labels", err.Error())
		}
	}

	p := &Pruner{store: store, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Prune removes the nodes of every configured label not published under
// tag. All labels are checked against the threshold before anything is
// deleted.
func (p *Pruner) Prune(ctx context.Context, tag string) ([]LabelResult, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, metagraph.NewConfigError("job_publish_tag", "required for pruning")
	}

	results := make([]LabelResult, 0, len(p.cfg.Labels))

	for _, label := range p.cfg.Labels {
		total, err := p.store.CountNodes(ctx, label)
		if err != nil {
			return results, fmt.Errorf("prune: counting %s: %w", label, err)
		}

		stale, err := p.store.CountStale(ctx, label, tag)
		if err != nil {
			return results, fmt.Errorf("prune: counting stale %s: %w", label, err)
		}

		r := LabelResult{Label: label, Total: total, Stale: stale}
		results = append(results, r)

		if r.Pct() > p.cfg.MaxStalePct {
			p.logger.Error("stale threshold exceeded",
				zap.String("label", label),
				zap.Int64("total", total),
				zap.Int64("stale", stale),
				zap.Float64("max_stale_pct", p.cfg.MaxStalePct),
			)

			return results, fmt.Errorf("%w: %s has %d of %d nodes stale (%.1f%% > %.1f%%)",
				ErrTooManyStale, label, stale, total, r.Pct(), p.cfg.MaxStalePct)
		}
	}

	if p.dryRun {
		p.logger.Info("dry run, nothing deleted")

		return results, nil
	}

	for i := range results {
		r := &results[i]
		if r.Stale == 0 {
			continue
		}

		deleted, err := p.store.DeleteStale(ctx, r.Label, tag)
		if err != nil {
			return results, fmt.Errorf("prune: deleting stale %s: %w", r.Label, err)
		}

		r.Deleted = deleted

		p.logger.Info("stale nodes deleted", zap.String("label", r.Label), zap.Int64("deleted", deleted))
	}

	return results, nil
}
