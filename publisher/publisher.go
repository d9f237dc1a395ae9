package publisher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/staged"
)

// Publisher upserts staged groups into a Store.
type Publisher struct {
	store        metagraph.Store
	cfg          metagraph.PublisherConfig
	handler      Handler
	logger       *zap.Logger
	now          func() time.Time
	missingLimit int
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHandler sets the event handler.
func WithHandler(h Handler) Option {
	return func(p *Publisher) {
		p.handler = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the clock used for publisher_last_updated_epoch_ms and
// event times. It is read once per job for the stamp.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMissingLimit aborts a job once more than n relationship rows were
// skipped for a missing endpoint. Zero disables the limit.
func WithMissingLimit(n int) Option {
	return func(p *Publisher) {
		p.missingLimit = n
	}
}

// New creates a Publisher writing into store. The configuration is validated
// here so that no job starts with a bad setting.
func New(store metagraph.Store, cfg metagraph.PublisherConfig, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.TransactionSize == 0 {
		cfg.TransactionSize = metagraph.DefaultTransactionSize
	}

	p := &Publisher{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// job holds the state of a single Publish call.
type job struct {
	handler Handler
	result  *Result
	log     *zap.Logger

	// stamp holds the metadata values shared by every row of the job.
	stamp map[string]any

	nodes []nodePlan
	rels  []relPlan
}

type nodePlan struct {
	group    *staged.NodeGroup
	template *metagraph.NodeTemplate
}

type relPlan struct {
	group    *staged.RelationshipGroup
	template *metagraph.RelationshipTemplate
}

// Publish runs a publish job over stage. The returned Result is non-nil once
// the job has started; errors raised before that (invalid names) return a
// nil Result and leave the store untouched.
func (p *Publisher) Publish(ctx context.Context, stage *staged.Stage) (*Result, error) {
	if stage == nil {
		stage = &staged.Stage{}
	}

	j, err := p.plan(stage)
	if err != nil {
		return nil, err
	}

	j.result = NewResult()

	handlers := []Handler{NewResultHandler()}
	if p.handler != nil {
		handlers = append(handlers, p.handler)
	}

	if p.missingLimit > 0 {
		handlers = append(handlers, NewMissingLimitHandler(p.missingLimit))
	}

	j.handler = NewMultiHandler(handlers...)

	j.log.Info("publish started",
		zap.Int("node_groups", len(j.nodes)),
		zap.Int("relationship_groups", len(j.rels)),
		zap.Int("nodes", stage.NodeCount()),
		zap.Int("relationships", stage.RelationshipCount()),
	)

	steps := []func(context.Context, *job, *staged.Stage) error{
		p.bootstrap,
		p.publishNodes,
		p.publishRelationships,
	}
	for _, step := range steps {
		if err := step(ctx, j, stage); err != nil {
			return p.fail(ctx, j, err)
		}
	}

	if err := p.emit(ctx, j, Event{Action: ActionDone, Phase: PhaseDone}); err != nil {
		return p.fail(ctx, j, err)
	}

	j.result.Finish()

	j.log.Info("publish done",
		zap.Int("nodes", j.result.Nodes),
		zap.Int("relationships", j.result.Relationships),
		zap.Int("edges", j.result.Edges),
		zap.Int("skipped", j.result.SkippedCount()),
		zap.Duration("elapsed", j.result.Elapsed()),
	)

	return j.result, nil
}

// plan compiles and validates every template before any store call.
func (p *Publisher) plan(stage *staged.Stage) (*job, error) {
	j := &job{
		log:   p.logger.With(zap.String("store", p.store.Name())),
		stamp: p.stamp(),
	}
	metadata := slices.Sorted(maps.Keys(j.stamp))

	if p.cfg.JobPublishTag != "" {
		j.log = j.log.With(zap.String("publish_tag", p.cfg.JobPublishTag))
	}

	for _, g := range stage.Nodes {
		t := &metagraph.NodeTemplate{
			Label:         g.Label,
			Properties:    staged.ColumnNames(g.Columns),
			Metadata:      metadata,
			CreateOnly:    slices.Contains(p.cfg.CreateOnlyLabels, g.Label),
			PreserveAdhoc: p.cfg.PreserveAdhocUIData,
			PreserveEmpty: p.cfg.PreserveEmptyProps,
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("node group %s: %w", g.Name, err)
		}

		j.nodes = append(j.nodes, nodePlan{group: g, template: t})
	}

	for _, g := range stage.Relationships {
		t := &metagraph.RelationshipTemplate{
			StartLabel:    g.Key.StartLabel,
			EndLabel:      g.Key.EndLabel,
			Type:          g.Key.Type,
			ReverseType:   g.Key.ReverseType,
			Properties:    staged.ColumnNames(g.Columns),
			Metadata:      metadata,
			Reverse:       p.cfg.PublishReverseRelationships && g.Key.ReverseType != "",
			PreserveEmpty: p.cfg.PreserveEmptyProps,
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("relationship group %s: %w", g.Name, err)
		}

		j.rels = append(j.rels, relPlan{group: g, template: t})
	}

	return j, nil
}

// stamp returns the publisher metadata of a job, empty unless metadata
// stamping is enabled. The timestamp is taken once so that every row of a
// job carries the same value.
func (p *Publisher) stamp() map[string]any {
	if !p.cfg.AddPublisherMetadata {
		return map[string]any{}
	}

	stamp := make(map[string]any, len(p.cfg.AdditionalMetadata)+2)
	for name, value := range p.cfg.AdditionalMetadata {
		stamp[name] = value
	}

	stamp[metagraph.PropPublishedTag] = p.cfg.JobPublishTag
	stamp[metagraph.PropLastUpdated] = p.now().UnixMilli()

	return stamp
}

func (p *Publisher) bootstrap(ctx context.Context, j *job, stage *staged.Stage) error {
	labels := stage.Labels()
	slices.Sort(labels)

	if err := p.emit(ctx, j, Event{Action: ActionPhase, Phase: PhaseBootstrap, Rows: len(labels)}); err != nil {
		return err
	}

	ensured := metagraph.NewSeen()

	for _, label := range labels {
		if !ensured.Mark(label) {
			continue
		}

		start := time.Now()

		err := p.store.EnsureUniqueKey(ctx, label)
		if err != nil && !isConstraintExists(err) {
			return &metagraph.SchemaBootstrapError{Label: label, Err: err}
		}

		j.log.Debug("key constraint ensured", zap.String("label", label))

		event := Event{
			Action:  ActionConstraint,
			Phase:   PhaseBootstrap,
			Label:   label,
			Elapsed: time.Since(start),
		}
		if err := p.emit(ctx, j, event); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) publishNodes(ctx context.Context, j *job, stage *staged.Stage) error {
	if err := p.emit(ctx, j, Event{Action: ActionPhase, Phase: PhaseNodes, Rows: stage.NodeCount()}); err != nil {
		return err
	}

	for _, plan := range j.nodes {
		for batch, nodes := range chunks(plan.group.Nodes, p.cfg.TransactionSize) {
			if err := p.publishNodeBatch(ctx, j, plan, batch, nodes); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Publisher) publishNodeBatch(ctx context.Context, j *job, plan nodePlan, batch int, nodes []*metagraph.Node) error {
	start := time.Now()

	rows := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		row := p.row(j, plan.template.Properties, n.Properties, plan.template.PreserveEmpty)
		row[metagraph.RowKey] = n.Key
		rows[i] = row
	}

	err := p.inTx(ctx, func(tx metagraph.StoreTx) error {
		return tx.MergeNodes(ctx, &metagraph.NodeBatch{Template: plan.template, Rows: rows})
	})
	if err != nil {
		return &metagraph.BatchUpsertError{
			Phase: string(PhaseNodes),
			Group: plan.group.Label,
			Batch: batch,
			Rows:  len(rows),
			Err:   err,
		}
	}

	j.log.Debug("node batch committed",
		zap.String("group", plan.group.Name),
		zap.Int("batch", batch),
		zap.Int("rows", len(rows)),
	)

	return p.emit(ctx, j, Event{
		Action:  ActionBatch,
		Phase:   PhaseNodes,
		Group:   plan.group.Name,
		Label:   plan.group.Label,
		Batch:   batch,
		Rows:    len(rows),
		Merged:  len(rows),
		Elapsed: time.Since(start),
	})
}

func (p *Publisher) publishRelationships(ctx context.Context, j *job, stage *staged.Stage) error {
	event := Event{Action: ActionPhase, Phase: PhaseRelationships, Rows: stage.RelationshipCount()}
	if err := p.emit(ctx, j, event); err != nil {
		return err
	}

	for _, plan := range j.rels {
		offset := 0

		for batch, rels := range chunks(plan.group.Relationships, p.cfg.TransactionSize) {
			if err := p.publishRelationshipBatch(ctx, j, plan, batch, offset, rels); err != nil {
				return err
			}

			offset += len(rels)
		}
	}

	return nil
}

func (p *Publisher) publishRelationshipBatch(
	ctx context.Context,
	j *job,
	plan relPlan,
	batch int,
	offset int,
	rels []*metagraph.Relationship,
) error {
	start := time.Now()

	rows := make([]map[string]any, len(rels))
	for i, r := range rels {
		row := p.row(j, plan.template.Properties, r.Properties, plan.template.PreserveEmpty)
		row[metagraph.RowIndex] = offset + i
		row[metagraph.RowStartKey] = r.StartKey
		row[metagraph.RowEndKey] = r.EndKey
		rows[i] = row
	}

	var matched []int

	err := p.inTx(ctx, func(tx metagraph.StoreTx) error {
		var err error

		matched, err = tx.MergeRelationships(ctx, &metagraph.RelationshipBatch{Template: plan.template, Rows: rows})

		return err
	})
	if err != nil {
		return &metagraph.BatchUpsertError{
			Phase: string(PhaseRelationships),
			Group: plan.group.Key.String(),
			Batch: batch,
			Rows:  len(rows),
			Err:   err,
		}
	}

	applied := make(map[int]struct{}, len(matched))
	for _, idx := range matched {
		applied[idx] = struct{}{}
	}

	edges := 1
	if plan.template.Reverse {
		edges = 2
	}

	j.log.Debug("relationship batch committed",
		zap.String("group", plan.group.Name),
		zap.Int("batch", batch),
		zap.Int("rows", len(rows)),
		zap.Int("matched", len(applied)),
	)

	err = p.emit(ctx, j, Event{
		Action:  ActionBatch,
		Phase:   PhaseRelationships,
		Group:   plan.group.Name,
		Batch:   batch,
		Rows:    len(rows),
		Merged:  len(applied),
		Edges:   len(applied) * edges,
		Elapsed: time.Since(start),
	})
	if err != nil {
		return err
	}

	for i, r := range rels {
		if _, ok := applied[offset+i]; ok {
			continue
		}

		missing := &metagraph.EndpointMissing{
			StartLabel: r.StartLabel,
			StartKey:   r.StartKey,
			EndLabel:   r.EndLabel,
			EndKey:     r.EndKey,
			Type:       r.Type,
			Row:        offset + i,
		}

		j.log.Warn("relationship skipped",
			zap.String("group", plan.group.Name),
			zap.Error(missing),
		)

		event := Event{
			Action:  ActionSkipped,
			Phase:   PhaseRelationships,
			Group:   plan.group.Name,
			Batch:   batch,
			Error:   missing,
			Missing: missing,
		}
		if err := p.emit(ctx, j, event); err != nil {
			return err
		}
	}

	return nil
}

// row builds the parameter map of one staged row: its properties followed
// by the job metadata.
func (p *Publisher) row(j *job, names []string, props metagraph.Properties, preserveEmpty bool) map[string]any {
	row := make(map[string]any, len(names)+len(j.stamp)+3)

	for _, name := range names {
		v, _ := props.Get(name)
		if s, ok := v.(string); ok && s == "" && !preserveEmpty {
			v = nil
		}

		row[name] = v
	}

	maps.Copy(row, j.stamp)

	return row
}

// inTx runs fn in its own transaction, rolling back when fn fails.
func (p *Publisher) inTx(ctx context.Context, fn func(metagraph.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Warn("rollback failed", zap.Error(rbErr))
		}

		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (p *Publisher) emit(ctx context.Context, j *job, event Event) error {
	event.Time = p.now()

	return j.handler.Event(ctx, event, j.result)
}

// fail ends the job with err. Handler errors raised while reporting the
// failure are logged and dropped.
func (p *Publisher) fail(ctx context.Context, j *job, err error) (*Result, error) {
	if hErr := p.emit(ctx, j, Event{Action: ActionFailed, Phase: PhaseFailed, Error: err}); hErr != nil {
		j.log.Warn("handler failed while reporting failure", zap.Error(hErr))
	}

	// The result handler runs first, so the failure is always recorded.
	j.result.Finish()

	j.log.Error("publish failed", zap.Error(err), zap.Duration("elapsed", j.result.Elapsed()))

	return j.result, err
}

func isConstraintExists(err error) bool {
	return errors.Is(err, metagraph.ErrConstraintExists)
}

// chunks yields consecutive slices of s of at most size elements with their
// index.
func chunks[T any](s []T, size int) func(yield func(int, []T) bool) {
	return func(yield func(int, []T) bool) {
		i := 0
		for c := range slices.Chunk(s, size) {
			if !yield(i, c) {
				return
			}

			i++
		}
	}
}
