package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/stats"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	engine   *rules.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, p *pipeline.Pipeline, engine *rules.Engine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		pipeline: p,
		engine:   engine,
		version:  version,
	}
}

// TrainRequest is the request body for POST /train.
type TrainRequest struct {
	BatchID      string                     `json:"batchId,omitempty"`
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// ScoreRequest is the request body for POST /score and /score/async.
// Transactions may be supplied inline or referenced by a previously
// ingested batch id.
type ScoreRequest struct {
	BatchID      string                     `json:"batchId,omitempty"`
	Backend      string                     `json:"backend,omitempty"` // "logistic" (default) or "rules"
	Transactions []domain.TransactionRecord `json:"transactions,omitempty"`
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	Report      *domain.Report        `json:"report"`
	Records     []*domain.ScoredRecord `json:"records"`
	RuleResults []domain.RuleResult   `json:"ruleResults,omitempty"`
}

// Train handles POST /train: ingest a labeled batch and fit the model.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions are required",
		})
		return
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	txs := recordsToTransactions(req.Transactions, tenantID, batchID)

	if h.repo != nil {
		if err := h.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			slog.Error("failed to save training batch", "batch_id", batchID, "error", err)
		}
	}

	report, err := h.pipeline.Train(ctx, tenantID, batchID, txs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrEmptyBatch) || errors.Is(err, domain.ErrUnlabeled) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	report.Metadata.TraceID = GetTraceID(ctx)
	writeJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"modelId": report.ModelID,
	})
}

// Score handles POST /score: synchronous batch scoring.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	var txs []*domain.Transaction
	switch {
	case len(req.Transactions) > 0:
		txs = recordsToTransactions(req.Transactions, tenantID, batchID)
	case req.BatchID != "" && h.repo != nil:
		var err error
		txs, err = h.repo.GetBatch(ctx, tenantID, req.BatchID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "batch not found",
			})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions or batchId is required",
		})
		return
	}

	var verdicts []domain.Verdict
	var report *domain.Report
	var err error
	switch req.Backend {
	case domain.BackendRules:
		verdicts, report, err = h.pipeline.ScoreWithRules(ctx, tenantID, batchID, txs)
	case "", domain.BackendLogistic:
		verdicts, report, err = h.pipeline.Score(ctx, tenantID, batchID, txs)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unsupported backend: " + req.Backend,
		})
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFitted) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if err := pipeline.ApplyVerdicts(txs, verdicts); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	records := make([]*domain.ScoredRecord, len(txs))
	for i, tx := range txs {
		records[i] = tx.ToRecord()
	}

	report.Metadata.TraceID = GetTraceID(ctx)
	resp := ScoreResponse{Report: report, Records: records}

	// Tenant-defined CEL rules annotate the output; they never change
	// the cascade or classifier verdicts.
	if h.engine != nil && h.engine.RulesCount() > 0 {
		snap := stats.Snapshot(txs)
		for _, tx := range txs {
			results, err := h.engine.EvaluateAll(ctx, tenantID, tx, snap)
			if err != nil {
				slog.Error("custom rule evaluation failed", "tx_id", tx.ID, "error", err)
				continue
			}
			resp.RuleResults = append(resp.RuleResults, results...)
		}
	}

	if h.cache != nil {
		_, _ = h.cache.IncrementCounter(ctx, tenantID, "transactions_scored", time.Hour)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ScoreAsync handles POST /score/async: ingest (if inline) and publish
// the batch for background scoring by the worker.
func (h *Handler) ScoreAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	if len(req.Transactions) > 0 {
		if h.repo == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "repository not available",
			})
			return
		}
		txs := recordsToTransactions(req.Transactions, tenantID, batchID)
		if err := h.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			slog.Error("failed to ingest batch", "batch_id", batchID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to ingest batch",
			})
			return
		}
	} else if req.BatchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions or batchId is required",
		})
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"batchId":  batchID,
		"tenantId": tenantID,
		"backend":  req.Backend,
		"rows":     len(req.Transactions),
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchIngested, payload); err != nil {
		slog.Error("failed to publish batch", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish batch",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"batchId": batchID,
		"status":  "accepted",
	})
}

// GetReport retrieves a scoring report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetModel returns the current trained model status.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"trained": h.pipeline.Trained(),
		"modelId": h.pipeline.ModelID(),
	})
}

// GetScaler retrieves the fitted scaler of a model. The id "current"
// resolves to the model held in memory.
func (h *Handler) GetScaler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	modelID := chi.URLParam(r, "id")

	if modelID == "current" || modelID == h.pipeline.ModelID() {
		scaler := h.pipeline.Scaler()
		if scaler == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no trained model",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"modelId": h.pipeline.ModelID(),
			"scaler":  scaler,
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	scaler, err := h.repo.GetScaler(ctx, tenantID, modelID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scaler not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"modelId": modelID,
		"scaler":  scaler,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded custom rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func recordsToTransactions(records []domain.TransactionRecord, tenantID, batchID string) []*domain.Transaction {
	txs := make([]*domain.Transaction, len(records))
	for i := range records {
		tx := records[i].ToTransaction(tenantID)
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		tx.BatchID = batchID
		txs[i] = tx
	}
	return txs
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
