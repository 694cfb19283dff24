// Package worker provides async batch scoring from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

// Worker scores ingested batches asynchronously from the EventBus.
// It subscribes to the batch-ingested topic, loads the batch from the
// repository, runs it through the pipeline and publishes the outcome.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	pipeline *pipeline.Pipeline

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// AlertThreshold is the batch fraud rate above which an alert is
	// published alongside the scored event.
	AlertThreshold float64
}

// NewWorker creates a new async worker. cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing batches for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker(cfg)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID, cfg); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker(cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, msg.TenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string, cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// BatchMessage is the payload published when a batch is ingested.
type BatchMessage struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	Backend  string `json:"backend,omitempty"` // "logistic" or "rules"
	Rows     int    `json:"rows,omitempty"`
}

// ScoredMessage is the payload published after a batch is scored.
type ScoredMessage struct {
	BatchID   string  `json:"batchId"`
	TenantID  string  `json:"tenantId"`
	ReportID  string  `json:"reportId"`
	Backend   string  `json:"backend"`
	Scored    int     `json:"scored"`
	FraudRate float64 `json:"fraudRate"`
}

// processBatch loads an ingested batch and scores it.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message, cfg Config) error {
	start := time.Now()

	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if batchMsg.TenantID != "" {
		tenantID = batchMsg.TenantID
	}

	slog.Debug("processing batch",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
		"backend", batchMsg.Backend,
	)

	txs, err := w.repo.GetBatch(ctx, tenantID, batchMsg.BatchID)
	if err != nil {
		slog.Error("failed to load batch",
			"batch_id", batchMsg.BatchID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	var report *domain.Report
	switch batchMsg.Backend {
	case domain.BackendRules:
		_, report, err = w.pipeline.ScoreWithRules(ctx, tenantID, batchMsg.BatchID, txs)
	default:
		_, report, err = w.pipeline.Score(ctx, tenantID, batchMsg.BatchID, txs)
	}
	if err != nil {
		slog.Error("batch scoring failed",
			"batch_id", batchMsg.BatchID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	resultPayload, _ := json.Marshal(ScoredMessage{
		BatchID:   batchMsg.BatchID,
		TenantID:  tenantID,
		ReportID:  report.ID,
		Backend:   report.Backend,
		Scored:    report.Scored,
		FraudRate: report.FraudRate,
	})

	if err := w.bus.Publish(ctx, tenantID, domain.TopicBatchScored, resultPayload); err != nil {
		slog.Error("failed to publish scored event",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
	}

	if cfg.AlertThreshold > 0 && report.FraudRate >= cfg.AlertThreshold {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"batch_id", batchMsg.BatchID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		_, _ = w.cache.IncrementCounter(ctx, tenantID, "batches_scored", time.Hour)
	}

	slog.Info("batch processed",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
		"backend", report.Backend,
		"scored", report.Scored,
		"fraud_rate", report.FraudRate,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
