package domain

import (
	"time"
)

// Fraud scenario tags. Scenarios are mutually exclusive; the first
// matching rule in the cascade wins.
const (
	ScenarioNone               = 0
	ScenarioHighAmount         = 1
	ScenarioTerminalCompromise = 2
	ScenarioSpendingAnomaly    = 3
)

// Scoring backend identifiers.
const (
	BackendLogistic = "logistic"
	BackendRules    = "rules"
)

// Verdict is the per-transaction output of the scoring stage.
type Verdict struct {
	TxID        string  `json:"txId"`
	Label       int     `json:"label"` // 0 legitimate, 1 fraud
	Scenario    int     `json:"scenario,omitempty"`
	Probability float64 `json:"probability"` // in [0,1]
	Reason      string  `json:"reason,omitempty"`
}

// ConfusionMatrix is the 2x2 count table of predicted vs. actual labels.
// The four counts always sum to the number of scored transactions.
type ConfusionMatrix struct {
	TrueNegative  int `json:"tn"`
	FalsePositive int `json:"fp"`
	FalseNegative int `json:"fn"`
	TruePositive  int `json:"tp"`
}

// Total returns the number of evaluated rows.
func (m ConfusionMatrix) Total() int {
	return m.TrueNegative + m.FalsePositive + m.FalseNegative + m.TruePositive
}

// Metrics holds classification-quality rates derived from a confusion
// matrix. Any rate whose denominator is zero is reported as 0.
type Metrics struct {
	Matrix    ConfusionMatrix `json:"matrix"`
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
}

// Report is the persisted outcome of one pipeline invocation.
type Report struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	BatchID   string    `json:"batchId,omitempty"`
	ModelID   string    `json:"modelId,omitempty"`
	Backend   string    `json:"backend"`
	Scored    int       `json:"scored"`
	FraudRate float64   `json:"fraudRate"` // fraction of rows predicted fraud
	Timestamp time.Time `json:"timestamp"`

	// Evaluated is false for unlabeled batches; Metrics is then zero.
	Evaluated bool    `json:"evaluated"`
	Metrics   Metrics `json:"metrics"`

	// Processing metadata
	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information for a report.
type ReportMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	AggregateMs   int64  `json:"aggregateMs"`
	ExtractMs     int64  `json:"extractMs"`
	ScoreMs       int64  `json:"scoreMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}
