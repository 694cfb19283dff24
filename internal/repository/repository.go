// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, batch_id, customer_id, terminal_id,
			amount, timestamp, time_seconds, time_days, created_at,
			fraud, fraud_scenario, predicted_fraud, predicted_proba
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.BatchID,
		tx.CustomerID, tx.TerminalID,
		tx.Amount, tx.Timestamp,
		tx.TimeSeconds, tx.TimeDays, tx.CreatedAt,
		tx.Fraud, tx.FraudScenario,
		tx.PredictedFraud, tx.PredictedProba,
	)
	return err
}

// SaveTransactions stores a batch of transactions in a single database
// transaction so a failed ingest never leaves a partial batch behind.
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []*domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, tenant_id, batch_id, customer_id, terminal_id,
			amount, timestamp, time_seconds, time_days, created_at,
			fraud, fraud_scenario, predicted_fraud, predicted_proba
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tenantID, tx.BatchID,
			tx.CustomerID, tx.TerminalID,
			tx.Amount, tx.Timestamp,
			tx.TimeSeconds, tx.TimeDays, tx.CreatedAt,
			tx.Fraud, tx.FraudScenario,
			tx.PredictedFraud, tx.PredictedProba,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
	}

	return dbTx.Commit()
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, customer_id, terminal_id,
			   amount, timestamp, time_seconds, time_days, created_at,
			   fraud, fraud_scenario, predicted_fraud, predicted_proba
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// GetBatch retrieves all transactions of a batch with tenant isolation,
// in ingest order.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, customer_id, terminal_id,
			   amount, timestamp, time_seconds, time_days, created_at,
			   fraud, fraud_scenario, predicted_fraud, predicted_proba
		FROM transactions
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// CountTransactionsByEntity counts transactions touching a customer or
// terminal since a cutoff, with tenant isolation.
func (r *SQLRepository) CountTransactionsByEntity(ctx context.Context, tenantID string, entityID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE tenant_id = ?
		  AND (customer_id = ? OR terminal_id = ?)
		  AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID, entityID, since).Scan(&count)
	return count, err
}

// UpdatePredictions writes predicted label and probability onto stored
// transactions. Original fields are never touched.
func (r *SQLRepository) UpdatePredictions(ctx context.Context, tenantID string, verdicts []domain.Verdict) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(verdicts) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		UPDATE transactions
		SET predicted_fraud = ?, predicted_proba = ?
		WHERE tenant_id = ? AND id = ?
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range verdicts {
		if _, err := stmt.ExecContext(ctx, v.Label, v.Probability, tenantID, v.TxID); err != nil {
			return fmt.Errorf("failed to update prediction for %s: %w", v.TxID, err)
		}
	}

	return dbTx.Commit()
}

// SaveScaler stores the mean/std vectors of a fitted scaler keyed by
// model id, with tenant isolation.
func (r *SQLRepository) SaveScaler(ctx context.Context, tenantID string, modelID string, scaler *domain.Scaler) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if scaler == nil || scaler.Len() == 0 {
		return fmt.Errorf("%w: scaler is empty", ErrInvalidInput)
	}

	mean, _ := json.Marshal(scaler.Mean)
	std, _ := json.Marshal(scaler.Std)

	query := `
		INSERT INTO scalers (model_id, tenant_id, mean, std, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_id, tenant_id) DO UPDATE SET
			mean = excluded.mean,
			std = excluded.std,
			created_at = excluded.created_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		modelID, tenantID, string(mean), string(std), time.Now().UTC(),
	)
	return err
}

// GetScaler retrieves a fitted scaler by model id with tenant isolation.
func (r *SQLRepository) GetScaler(ctx context.Context, tenantID string, modelID string) (*domain.Scaler, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT mean, std
		FROM scalers
		WHERE tenant_id = ? AND model_id = ?
	`

	var mean, std string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, modelID).Scan(&mean, &std)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var scaler domain.Scaler
	if err := json.Unmarshal([]byte(mean), &scaler.Mean); err != nil {
		return nil, fmt.Errorf("failed to parse scaler mean: %w", err)
	}
	if err := json.Unmarshal([]byte(std), &scaler.Std); err != nil {
		return nil, fmt.Errorf("failed to parse scaler std: %w", err)
	}

	return &scaler, nil
}

// SaveReport stores a scoring report with tenant isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metrics, _ := json.Marshal(report.Metrics)
	metadata, _ := json.Marshal(report.Metadata)

	evaluated := 0
	if report.Evaluated {
		evaluated = 1
	}

	query := `
		INSERT INTO reports (
			id, tenant_id, batch_id, model_id, backend,
			scored, fraud_rate, timestamp, evaluated, metrics, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.BatchID, report.ModelID, report.Backend,
		report.Scored, report.FraudRate, report.Timestamp, evaluated,
		string(metrics), string(metadata),
	)
	return err
}

// GetReport retrieves a scoring report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, model_id, backend,
			   scored, fraud_rate, timestamp, evaluated, metrics, metadata
		FROM reports
		WHERE tenant_id = ? AND id = ?
	`

	var report domain.Report
	var metrics, metadata string
	var evaluated int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(
		&report.ID, &report.TenantID, &report.BatchID, &report.ModelID, &report.Backend,
		&report.Scored, &report.FraudRate, &report.Timestamp, &evaluated,
		&metrics, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	report.Evaluated = evaluated == 1
	json.Unmarshal([]byte(metrics), &report.Metrics)
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var batchID sql.NullString
	var fraud, predictedFraud sql.NullInt64
	var predictedProba sql.NullFloat64

	if err := row.Scan(
		&tx.ID, &tx.TenantID, &batchID,
		&tx.CustomerID, &tx.TerminalID,
		&tx.Amount, &tx.Timestamp,
		&tx.TimeSeconds, &tx.TimeDays, &tx.CreatedAt,
		&fraud, &tx.FraudScenario,
		&predictedFraud, &predictedProba,
	); err != nil {
		return nil, err
	}

	tx.BatchID = batchID.String
	if fraud.Valid {
		v := int(fraud.Int64)
		tx.Fraud = &v
	}
	if predictedFraud.Valid {
		v := int(predictedFraud.Int64)
		tx.PredictedFraud = &v
	}
	if predictedProba.Valid {
		v := predictedProba.Float64
		tx.PredictedProba = &v
	}

	return &tx, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
