// Package pipeline orchestrates the fraud scoring stages: aggregate,
// extract, normalize, score, evaluate.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/evaluate"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/stats"
)

const engineVersion = "harrier-1.0"

// trainedState is the immutable outcome of one training run. A new
// train swaps the whole value; nothing is patched in place, so a scaler
// fit on one batch is never mixed with stats from another.
type trainedState struct {
	modelID  string
	backend  string
	snapshot *domain.StatsSnapshot
	scaler   *domain.Scaler    // nil for the rule backend
	scorer   classifier.Scorer // nil for the rule backend
}

// Pipeline runs batches through the scoring stages. The zero state is
// untrained: the trainable path refuses to score until Train succeeds,
// while the rule path needs no training at all.
type Pipeline struct {
	mu      sync.RWMutex
	cfg     domain.ScoringConfig
	cascade *rules.Cascade
	repo    domain.Repository // optional
	cache   domain.Cache      // optional
	state   *trainedState     // nil until trained
}

// New creates a pipeline. repo and cache may be nil for in-memory use.
func New(cfg domain.ScoringConfig, repo domain.Repository, cache domain.Cache) *Pipeline {
	cascade := rules.NewCascade()
	if cfg.HighAmountThreshold > 0 {
		cascade.HighAmountThreshold = cfg.HighAmountThreshold
	}
	if cfg.TerminalRateThreshold > 0 {
		cascade.TerminalRateThreshold = cfg.TerminalRateThreshold
	}
	if cfg.SpendingMultiplier > 0 {
		cascade.SpendingMultiplier = cfg.SpendingMultiplier
	}
	return &Pipeline{
		cfg:     cfg,
		cascade: cascade,
		repo:    repo,
		cache:   cache,
	}
}

// Trained reports whether a trainable model is available.
func (p *Pipeline) Trained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state != nil
}

// ModelID returns the id of the current trained model, or "".
func (p *Pipeline) ModelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == nil {
		return ""
	}
	return p.state.modelID
}

// Scaler returns the scaler of the current trained model, or nil.
func (p *Pipeline) Scaler() *domain.Scaler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == nil {
		return nil
	}
	return p.state.scaler
}

// Train fits the trainable path on a labeled batch: aggregate stats,
// extract features, fit the scaler, hand normalized features and labels
// to the classifier, then score the training batch and evaluate it.
//
// Classifier training is the one unbounded stage; it runs under the
// configured timeout and honors ctx cancellation. A cancelled train
// leaves any previous trained state untouched and reusable.
func (p *Pipeline) Train(ctx context.Context, tenantID, batchID string, txs []*domain.Transaction) (*domain.Report, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("train: %w", domain.ErrEmptyBatch)
	}

	start := time.Now()

	snap := stats.Snapshot(txs)
	aggregateMs := time.Since(start).Milliseconds()

	// Labeled subset drives classifier fitting and evaluation.
	labeledIdx, labels := labeledRows(txs)
	if len(labeledIdx) == 0 {
		return nil, fmt.Errorf("train: %w", domain.ErrUnlabeled)
	}

	extractStart := time.Now()
	matrix := features.ExtractParallel(txs, snap, p.cfg.Workers)
	extractMs := time.Since(extractStart).Milliseconds()

	scaler, err := features.Fit(matrix)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	normalized, err := features.Transform(matrix, scaler)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	trainRows := make([][]float64, len(labeledIdx))
	for i, idx := range labeledIdx {
		trainRows[i] = normalized[idx]
	}

	scorer := classifier.NewLogisticScorer(classifier.LogisticConfig{
		Epochs:       p.cfg.Epochs,
		BatchSize:    p.cfg.BatchSize,
		LearningRate: p.cfg.LearningRate,
		Seed:         42,
	})

	fitCtx := ctx
	if p.cfg.TrainTimeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, p.cfg.TrainTimeout)
		defer cancel()
	}

	scoreStart := time.Now()
	if err := scorer.Fit(fitCtx, trainRows, labels); err != nil {
		// Transient: stats and scaler computed in a previous train stay
		// valid; the caller may retry.
		return nil, fmt.Errorf("train: classifier fit: %w", err)
	}

	probs, err := scorer.PredictProba(normalized)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	verdicts := verdictsFromProbs(txs, probs)
	scoreMs := time.Since(scoreStart).Milliseconds()

	state := &trainedState{
		modelID:  uuid.New().String(),
		backend:  domain.BackendLogistic,
		snapshot: snap,
		scaler:   scaler,
		scorer:   scorer,
	}

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	report := p.buildReport(tenantID, batchID, state.modelID, domain.BackendLogistic, txs, verdicts,
		domain.ReportMetadata{
			AggregateMs:   aggregateMs,
			ExtractMs:     extractMs,
			ScoreMs:       scoreMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: engineVersion,
		})

	p.persist(ctx, tenantID, state, verdicts, report)

	slog.Info("pipeline trained",
		"tenant_id", tenantID,
		"batch_id", batchID,
		"model_id", state.modelID,
		"rows", len(txs),
		"labeled", len(labeledIdx),
		"accuracy", report.Metrics.Accuracy,
	)

	return report, nil
}

// Score runs the trainable path over a batch using the stats snapshot
// and scaler fit at training time. Entities unseen at training time use
// the zero-default feature policy; a single transaction scores fine.
func (p *Pipeline) Score(ctx context.Context, tenantID, batchID string, txs []*domain.Transaction) ([]domain.Verdict, *domain.Report, error) {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()

	if state == nil {
		return nil, nil, fmt.Errorf("score: %w", domain.ErrNotFitted)
	}

	start := time.Now()

	if len(txs) == 0 {
		report := p.buildReport(tenantID, batchID, state.modelID, state.backend, nil, nil,
			domain.ReportMetadata{TotalMs: time.Since(start).Milliseconds(), EngineVersion: engineVersion})
		return []domain.Verdict{}, report, nil
	}

	extractStart := time.Now()
	matrix := features.ExtractParallel(txs, state.snapshot, p.cfg.Workers)
	extractMs := time.Since(extractStart).Milliseconds()

	normalized, err := features.Transform(matrix, state.scaler)
	if err != nil {
		return nil, nil, fmt.Errorf("score: %w", err)
	}

	scoreStart := time.Now()
	probs, err := state.scorer.PredictProba(normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("score: %w", err)
	}
	verdicts := verdictsFromProbs(txs, probs)
	scoreMs := time.Since(scoreStart).Milliseconds()

	report := p.buildReport(tenantID, batchID, state.modelID, state.backend, txs, verdicts,
		domain.ReportMetadata{
			ExtractMs:     extractMs,
			ScoreMs:       scoreMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: engineVersion,
		})

	p.persist(ctx, tenantID, state, verdicts, report)

	return verdicts, report, nil
}

// ScoreWithRules runs the deterministic rule path: the cascade consumes
// the batch's own stats snapshot and no feature extraction, scaler or
// training is involved.
func (p *Pipeline) ScoreWithRules(ctx context.Context, tenantID, batchID string, txs []*domain.Transaction) ([]domain.Verdict, *domain.Report, error) {
	start := time.Now()

	snap := p.snapshotFor(ctx, tenantID, batchID, txs)
	aggregateMs := time.Since(start).Milliseconds()

	scoreStart := time.Now()
	verdicts := p.cascade.EvaluateBatch(txs, snap)
	scoreMs := time.Since(scoreStart).Milliseconds()

	report := p.buildReport(tenantID, batchID, "", domain.BackendRules, txs, verdicts,
		domain.ReportMetadata{
			AggregateMs:   aggregateMs,
			ScoreMs:       scoreMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: engineVersion,
		})

	p.persist(ctx, tenantID, nil, verdicts, report)

	return verdicts, report, nil
}

// ApplyVerdicts appends predicted label and probability to the
// transactions, leaving every original field untouched.
func ApplyVerdicts(txs []*domain.Transaction, verdicts []domain.Verdict) error {
	if len(txs) != len(verdicts) {
		return fmt.Errorf("apply verdicts: %d transactions, %d verdicts: %w",
			len(txs), len(verdicts), domain.ErrShapeMismatch)
	}
	for i := range txs {
		label := verdicts[i].Label
		proba := verdicts[i].Probability
		txs[i].PredictedFraud = &label
		txs[i].PredictedProba = &proba
	}
	return nil
}

// buildReport assembles the report; metrics are evaluated over the
// labeled subset when one exists.
func (p *Pipeline) buildReport(tenantID, batchID, modelID, backend string, txs []*domain.Transaction, verdicts []domain.Verdict, meta domain.ReportMetadata) *domain.Report {
	report := &domain.Report{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		BatchID:   batchID,
		ModelID:   modelID,
		Backend:   backend,
		Scored:    len(verdicts),
		Timestamp: time.Now().UTC(),
		Metadata:  meta,
	}

	var fraud int
	for _, v := range verdicts {
		if v.Label == 1 {
			fraud++
		}
	}
	if len(verdicts) > 0 {
		report.FraudRate = float64(fraud) / float64(len(verdicts))
	}

	var truth, predicted []int
	for i, tx := range txs {
		if tx.Fraud != nil {
			truth = append(truth, *tx.Fraud)
			predicted = append(predicted, verdicts[i].Label)
		}
	}
	if len(truth) > 0 {
		metrics, err := evaluate.Evaluate(truth, predicted)
		if err == nil {
			report.Evaluated = true
			report.Metrics = metrics
		}
	}

	return report
}

// persist writes scaler, predictions and report; storage failures are
// logged, not fatal, so scoring output still reaches the caller.
func (p *Pipeline) persist(ctx context.Context, tenantID string, state *trainedState, verdicts []domain.Verdict, report *domain.Report) {
	if p.repo == nil {
		return
	}

	if state != nil && state.scaler != nil {
		if err := p.repo.SaveScaler(ctx, tenantID, state.modelID, state.scaler); err != nil {
			slog.Error("failed to save scaler", "model_id", state.modelID, "error", err)
		}
	}
	if len(verdicts) > 0 {
		if err := p.repo.UpdatePredictions(ctx, tenantID, verdicts); err != nil {
			slog.Error("failed to update predictions", "error", err)
		}
	}
	if err := p.repo.SaveReport(ctx, tenantID, report); err != nil {
		slog.Error("failed to save report", "report_id", report.ID, "error", err)
	}
}

// snapshotFor returns the batch's stats snapshot, reusing the cached
// one when the same batch was aggregated recently.
func (p *Pipeline) snapshotFor(ctx context.Context, tenantID, batchID string, txs []*domain.Transaction) *domain.StatsSnapshot {
	if p.cache != nil && batchID != "" {
		if snap, err := p.cache.GetSnapshot(ctx, tenantID, batchID); err == nil && snap != nil {
			return snap
		}
	}
	snap := stats.Snapshot(txs)
	if p.cache != nil && batchID != "" {
		if err := p.cache.SetSnapshot(ctx, tenantID, batchID, snap, 5*time.Minute); err != nil {
			slog.Debug("failed to cache snapshot", "batch_id", batchID, "error", err)
		}
	}
	return snap
}

func labeledRows(txs []*domain.Transaction) ([]int, []int) {
	var idx, labels []int
	for i, tx := range txs {
		if tx.Fraud != nil {
			idx = append(idx, i)
			labels = append(labels, *tx.Fraud)
		}
	}
	return idx, labels
}

func verdictsFromProbs(txs []*domain.Transaction, probs []float64) []domain.Verdict {
	verdicts := make([]domain.Verdict, len(txs))
	for i, tx := range txs {
		label := 0
		if probs[i] >= 0.5 {
			label = 1
		}
		verdicts[i] = domain.Verdict{
			TxID:        tx.ID,
			Label:       label,
			Probability: probs[i],
		}
	}
	return verdicts
}
