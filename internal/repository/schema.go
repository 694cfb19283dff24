package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT,
    customer_id TEXT NOT NULL,
    terminal_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    time_seconds INTEGER NOT NULL,
    time_days INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    fraud INTEGER,
    fraud_scenario INTEGER NOT NULL DEFAULT 0,
    predicted_fraud INTEGER,
    predicted_proba REAL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_terminal ON transactions(tenant_id, terminal_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
`

const schemaScalers = `
CREATE TABLE IF NOT EXISTS scalers (
    model_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    mean TEXT NOT NULL,
    std TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (model_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_scalers_tenant ON scalers(tenant_id);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT,
    model_id TEXT,
    backend TEXT NOT NULL,
    scored INTEGER NOT NULL,
    fraud_rate REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    evaluated INTEGER NOT NULL DEFAULT 0,
    metrics TEXT NOT NULL,
    metadata TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_batch ON reports(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(tenant_id, timestamp);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaScalers,
		schemaReports,
		schemaRuleConfigs,
	}
}
